package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/machina-io/machina/effect"
	"github.com/machina-io/machina/machine"
	"github.com/machina-io/machina/storage"
)

// EffectRunner executes the side effects a dispatch accumulates.
//
// The runner owns all real I/O and real timers. It must interpret
// effect.ScheduleTimeout by arranging a future call back into Dispatch for
// the same instance, and effect.CancelTimeout by cancelling the pending
// timer under that id for that instance.
//
// RunEffects receives the post-cascade state and meta so it can honor
// effect.PersistNow for machines built with AutoPersist disabled.
type EffectRunner[S any] interface {
	RunEffects(ctx context.Context, instanceID string, effects []effect.Effect, state S, meta storage.Meta) error
}

// Transition describes one completed reducer step, as seen by the
// OnTransition hook.
type Transition struct {
	InstanceID string
	FromKey    string
	ToKey      string
	EventType  string
}

// Engine combines a machine, a storage adapter, and an effect runner into
// the dispatch orchestrator.
//
// Construct one Engine per machine at startup and inject it where needed;
// the engine holds no per-instance state beyond the advisory lock table and
// is safe for concurrent use across instance ids.
type Engine[S any, E machine.Event, C any] struct {
	m      *machine.Machine[S, E, C]
	store  storage.Adapter[S]
	runner EffectRunner[S]
	locks  *lockTable
	gen    IDGenerator
	now    func() time.Time
	logger *slog.Logger

	onTransition func(Transition)
	onError      func(instanceID string, err error)
}

// Option configures an Engine at construction time.
type Option[S any, E machine.Event, C any] func(*Engine[S, E, C])

// WithOnTransition installs an observability hook invoked after every
// reducer step, including same-key updates.
func WithOnTransition[S any, E machine.Event, C any](fn func(Transition)) Option[S, E, C] {
	return func(e *Engine[S, E, C]) { e.onTransition = fn }
}

// WithOnError installs the advisory hook for effect-runner failures.
func WithOnError[S any, E machine.Event, C any](fn func(instanceID string, err error)) Option[S, E, C] {
	return func(e *Engine[S, E, C]) { e.onError = fn }
}

// WithClock overrides the wall clock used for dispatch timestamps and
// persisted meta. Used for deterministic tests.
func WithClock[S any, E machine.Event, C any](now func() time.Time) Option[S, E, C] {
	return func(e *Engine[S, E, C]) { e.now = now }
}

// WithIDGenerator overrides the instance id generator.
func WithIDGenerator[S any, E machine.Event, C any](gen IDGenerator) Option[S, E, C] {
	return func(e *Engine[S, E, C]) { e.gen = gen }
}

// WithLogger overrides the engine's structured logger.
func WithLogger[S any, E machine.Event, C any](logger *slog.Logger) Option[S, E, C] {
	return func(e *Engine[S, E, C]) { e.logger = logger }
}

// New creates an Engine. The machine, storage adapter, and effect runner are
// all required.
func New[S any, E machine.Event, C any](
	m *machine.Machine[S, E, C],
	store storage.Adapter[S],
	runner EffectRunner[S],
	opts ...Option[S, E, C],
) (*Engine[S, E, C], error) {
	if m == nil {
		return nil, fmt.Errorf("engine: machine is required")
	}
	if store == nil {
		return nil, fmt.Errorf("engine %s: storage adapter is required", m.Name())
	}
	if runner == nil {
		return nil, fmt.Errorf("engine %s: effect runner is required", m.Name())
	}

	e := &Engine[S, E, C]{
		m:      m,
		store:  store,
		runner: runner,
		locks:  newLockTable(),
		gen:    UUIDv7Generator{},
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Machine returns the bound machine.
func (e *Engine[S, E, C]) Machine() *machine.Machine[S, E, C] {
	return e.m
}

// NewInstanceID allocates a fresh instance id.
// Thread-safe: delegates to the configured generator.
func (e *Engine[S, E, C]) NewInstanceID() string {
	return e.gen.Generate()
}

// Initialize ensures a persisted record exists for the instance and returns
// its state. Idempotent: an existing record is returned untouched.
func (e *Engine[S, E, C]) Initialize(ctx context.Context, instanceID string) (S, error) {
	def := e.m.Definition()

	rec, err := e.store.Load(ctx, instanceID)
	if err != nil {
		var zero S
		return zero, fmt.Errorf("initialize %s: %w", instanceID, err)
	}
	if rec != nil {
		return rec.State, nil
	}

	state := def.Initial()
	if err := e.store.Save(ctx, instanceID, state, e.metaFor(state)); err != nil {
		var zero S
		return zero, fmt.Errorf("initialize %s: %w", instanceID, err)
	}

	e.logger.Debug("instance initialized",
		"machine", e.m.Name(),
		"instance_id", instanceID,
		"state_key", def.Key(state),
	)
	return state, nil
}

// State loads the persisted record for an instance.
// Returns (nil, nil) when no record exists.
func (e *Engine[S, E, C]) State(ctx context.Context, instanceID string) (*storage.Record[S], error) {
	rec, err := e.store.Load(ctx, instanceID)
	if err != nil {
		return nil, fmt.Errorf("get state %s: %w", instanceID, err)
	}
	return rec, nil
}

// Delete removes the persisted record for an instance.
//
// Delete releases no lock: deleting during an in-flight dispatch is a caller
// error, not guarded here.
func (e *Engine[S, E, C]) Delete(ctx context.Context, instanceID string) error {
	if err := e.store.Delete(ctx, instanceID); err != nil {
		return fmt.Errorf("delete %s: %w", instanceID, err)
	}
	return nil
}

// metaFor builds the persisted meta for a state at the current time.
func (e *Engine[S, E, C]) metaFor(state S) storage.Meta {
	return storage.Meta{
		StateKey:       e.m.Definition().Key(state),
		CatalogVersion: e.m.Catalog().Version,
		UpdatedAt:      e.now(),
	}
}
