// Package harness provides the sanctioned way to test machines without real
// I/O: an engine wired to the in-memory storage adapter, a recording effect
// runner, and a transition log, all running on a deterministic clock.
//
// Tests observe engine behavior only through what the harness exposes - the
// recorded effects, the transition log, and the memory adapter's contents.
// Nothing here reaches into engine internals.
//
// Usage:
//
//	h, err := harness.New(m)
//	require.NoError(t, err)
//
//	res, err := h.Engine.Dispatch(ctx, "wizard-1", StartEvent{}, AppCtx{})
//	require.NoError(t, err)
//	require.True(t, res.Success)
//
//	prompts := h.Runner.ByKind("send_prompt")
//	require.Len(t, prompts, 1)
//	require.Equal(t, 1, h.Storage.Len())
package harness

import (
	"io"
	"log/slog"
	"sync"

	"github.com/machina-io/machina/engine"
	"github.com/machina-io/machina/machine"
	"github.com/machina-io/machina/storage"
	"github.com/machina-io/machina/testutil"
)

// Harness bundles an engine with observable test collaborators.
type Harness[S any, E machine.Event, C any] struct {
	Engine  *engine.Engine[S, E, C]
	Storage *storage.Memory[S]
	Runner  *RecordingRunner[S]
	Clock   *testutil.Clock

	mu          sync.Mutex
	transitions []engine.Transition
}

// Option configures a Harness.
type Option[S any, E machine.Event, C any] func(*config[S, E, C])

type config[S any, E machine.Event, C any] struct {
	clock      *testutil.Clock
	instanceID []string
	engineOpts []engine.Option[S, E, C]
}

// WithClock overrides the harness clock. Default: testutil.NewDefaultClock.
func WithClock[S any, E machine.Event, C any](c *testutil.Clock) Option[S, E, C] {
	return func(cfg *config[S, E, C]) { cfg.clock = c }
}

// WithInstanceIDs pins the ids Engine.NewInstanceID hands out, in order.
func WithInstanceIDs[S any, E machine.Event, C any](ids ...string) Option[S, E, C] {
	return func(cfg *config[S, E, C]) { cfg.instanceID = ids }
}

// WithEngineOptions appends extra engine options (hooks, usually).
func WithEngineOptions[S any, E machine.Event, C any](opts ...engine.Option[S, E, C]) Option[S, E, C] {
	return func(cfg *config[S, E, C]) { cfg.engineOpts = append(cfg.engineOpts, opts...) }
}

// New builds a harness around a machine. Logs are discarded.
func New[S any, E machine.Event, C any](m *machine.Machine[S, E, C], opts ...Option[S, E, C]) (*Harness[S, E, C], error) {
	cfg := &config[S, E, C]{clock: testutil.NewDefaultClock()}
	for _, opt := range opts {
		opt(cfg)
	}

	h := &Harness[S, E, C]{
		Storage: storage.NewMemory[S](),
		Runner:  NewRecordingRunner[S](),
		Clock:   cfg.clock,
	}

	engineOpts := []engine.Option[S, E, C]{
		engine.WithClock[S, E, C](cfg.clock.Now),
		engine.WithOnTransition[S, E, C](h.recordTransition),
		engine.WithLogger[S, E, C](slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	if len(cfg.instanceID) > 0 {
		engineOpts = append(engineOpts, engine.WithIDGenerator[S, E, C](engine.NewFixedGenerator(cfg.instanceID...)))
	}
	engineOpts = append(engineOpts, cfg.engineOpts...)

	eng, err := engine.New(m, h.Storage, h.Runner, engineOpts...)
	if err != nil {
		return nil, err
	}
	h.Engine = eng
	return h, nil
}

func (h *Harness[S, E, C]) recordTransition(t engine.Transition) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.transitions = append(h.transitions, t)
}

// Transitions returns a copy of the transition log in occurrence order.
func (h *Harness[S, E, C]) Transitions() []engine.Transition {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]engine.Transition, len(h.transitions))
	copy(out, h.transitions)
	return out
}

// TransitionsFor filters the transition log by instance id.
func (h *Harness[S, E, C]) TransitionsFor(instanceID string) []engine.Transition {
	var out []engine.Transition
	for _, t := range h.Transitions() {
		if t.InstanceID == instanceID {
			out = append(out, t)
		}
	}
	return out
}

// Reset clears the transition log and the recorded effects. Storage is left
// alone so persistence assertions survive a reset.
func (h *Harness[S, E, C]) Reset() {
	h.mu.Lock()
	h.transitions = nil
	h.mu.Unlock()
	h.Runner.Reset()
}
