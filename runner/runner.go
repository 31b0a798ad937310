// Package runner provides the reference effect runner: the impure shell that
// executes the effect lists a dispatch produces.
//
// The runner interprets the four built-in effects - structured logging, real
// timers through a timer.Scheduler, and explicit persistence - and hands
// machine-specific effects to a caller-supplied handler. Timer-fired events
// are dispatched back into the engine, closing the loop the engine itself
// deliberately leaves open.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/machina-io/machina/effect"
	"github.com/machina-io/machina/engine"
	"github.com/machina-io/machina/machine"
	"github.com/machina-io/machina/storage"
	"github.com/machina-io/machina/timer"
)

// DispatchFunc is the engine entry point timers fire into. Bind an engine's
// Dispatch method value here.
type DispatchFunc[S any, E machine.Event, C any] func(ctx context.Context, instanceID string, ev E, app C) (*engine.DispatchResult[S], error)

// CustomFunc handles machine-specific effects the runner does not know.
type CustomFunc[S any] func(ctx context.Context, instanceID string, eff effect.Effect, state S, meta storage.Meta) error

// Runner is the reference engine.EffectRunner implementation.
//
// Safe for concurrent use across instance ids. Bind must be called before
// any scheduled timeout fires; until then fired timers log an error and drop
// the event.
type Runner[S any, E machine.Event, C any] struct {
	sched  timer.Scheduler
	store  storage.Adapter[S]
	logger *slog.Logger
	appCtx func(instanceID string) C
	custom CustomFunc[S]

	mu       sync.RWMutex
	dispatch DispatchFunc[S, E, C]
}

// Option configures a Runner.
type Option[S any, E machine.Event, C any] func(*Runner[S, E, C])

// WithLogger overrides the runner's structured logger.
func WithLogger[S any, E machine.Event, C any](logger *slog.Logger) Option[S, E, C] {
	return func(r *Runner[S, E, C]) { r.logger = logger }
}

// WithAppContext supplies the factory that builds the machine-specific
// context payload for timer-fired dispatches. Defaults to the zero value.
func WithAppContext[S any, E machine.Event, C any](fn func(instanceID string) C) Option[S, E, C] {
	return func(r *Runner[S, E, C]) { r.appCtx = fn }
}

// WithCustom installs the handler for machine-specific effects. Without one,
// unknown effects are logged at debug level and dropped.
func WithCustom[S any, E machine.Event, C any](fn CustomFunc[S]) Option[S, E, C] {
	return func(r *Runner[S, E, C]) { r.custom = fn }
}

// New creates a Runner over a scheduler and a storage adapter.
//
// The storage adapter is only touched for PersistNow effects; pass the same
// adapter the engine uses.
func New[S any, E machine.Event, C any](
	sched timer.Scheduler,
	store storage.Adapter[S],
	opts ...Option[S, E, C],
) *Runner[S, E, C] {
	r := &Runner[S, E, C]{
		sched:  sched,
		store:  store,
		logger: slog.Default(),
		appCtx: func(string) C { var zero C; return zero },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Bind wires the engine's dispatch entry point for timer-fired events.
// Called once at startup, after the engine is constructed with this runner.
func (r *Runner[S, E, C]) Bind(dispatch DispatchFunc[S, E, C]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dispatch = dispatch
}

// RunEffects implements engine.EffectRunner. Effects run in list order; a
// failing effect does not stop the rest, and all failures are joined into
// the returned error.
func (r *Runner[S, E, C]) RunEffects(ctx context.Context, instanceID string, effects []effect.Effect, state S, meta storage.Meta) error {
	var errs []error
	for _, eff := range effects {
		if err := r.runOne(ctx, instanceID, eff, state, meta); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Runner[S, E, C]) runOne(ctx context.Context, instanceID string, eff effect.Effect, state S, meta storage.Meta) error {
	switch ef := eff.(type) {
	case effect.Log:
		args := make([]any, 0, 2+2*len(ef.Data))
		args = append(args, "instance_id", instanceID)
		for k, v := range ef.Data {
			args = append(args, k, v)
		}
		r.logger.Log(ctx, ef.Level, ef.Message, args...)
		return nil

	case effect.ScheduleTimeout:
		ev, ok := ef.Event.(E)
		if !ok {
			return fmt.Errorf("schedule timeout %s/%s: event has type %T, not the machine's event type",
				instanceID, ef.TimeoutID, ef.Event)
		}
		r.sched.Schedule(instanceID, ef.TimeoutID, ef.After, func() {
			r.fireTimeout(instanceID, ef.TimeoutID, ev)
		})
		return nil

	case effect.CancelTimeout:
		r.sched.Cancel(instanceID, ef.TimeoutID)
		return nil

	case effect.PersistNow:
		if err := r.store.Save(ctx, instanceID, state, meta); err != nil {
			return fmt.Errorf("persist now %s: %w", instanceID, err)
		}
		return nil

	default:
		if r.custom != nil {
			return r.custom(ctx, instanceID, eff, state, meta)
		}
		r.logger.Debug("unhandled effect",
			"instance_id", instanceID,
			"kind", eff.EffectKind(),
		)
		return nil
	}
}

// fireTimeout dispatches a timer event back into the engine.
//
// Fires happen outside any request, so the context is fresh and the app
// payload comes from the configured factory. Dispatch rejections (the
// instance is mid-dispatch, or the event is no longer allowed in the current
// state) are expected outcomes for a stale timer and are logged, not raised.
func (r *Runner[S, E, C]) fireTimeout(instanceID, timeoutID string, ev E) {
	r.mu.RLock()
	dispatch := r.dispatch
	r.mu.RUnlock()

	if dispatch == nil {
		r.logger.Error("timeout fired before runner was bound to an engine",
			"instance_id", instanceID,
			"timeout_id", timeoutID,
			"event_type", ev.EventType(),
		)
		return
	}

	res, err := dispatch(context.Background(), instanceID, ev, r.appCtx(instanceID))
	if err != nil {
		r.logger.Error("timeout dispatch failed",
			"instance_id", instanceID,
			"timeout_id", timeoutID,
			"event_type", ev.EventType(),
			"error", err,
		)
		return
	}
	if !res.Success {
		r.logger.Warn("timeout dispatch rejected",
			"instance_id", instanceID,
			"timeout_id", timeoutID,
			"event_type", ev.EventType(),
			"errors", res.Errors,
		)
	}
}
