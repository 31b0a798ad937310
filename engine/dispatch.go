package engine

import (
	"context"
	"fmt"

	"github.com/machina-io/machina/effect"
	"github.com/machina-io/machina/machine"
)

// Reported error strings. These surface verbatim in DispatchResult.Errors;
// calling features map them to user-visible messages.
const errConcurrentDispatch = "Concurrent dispatch blocked"

// DispatchResult reports the outcome of one dispatch call.
//
// Success is false whenever Errors is non-empty. State is the instance's
// state after the cascade - on a reported failure, whatever it was before
// the failing step. Effects holds the full accumulated effect list in
// production order, already handed to the effect runner.
type DispatchResult[S any] struct {
	Success         bool
	State           S
	Errors          []string
	Warnings        []string
	TransitionCount int
	Effects         []effect.Effect
}

// Dispatch runs one event (and the cascade it triggers) against an instance.
//
// The cascade is breadth-first: events emitted by the reducer join the back
// of a FIFO queue and are processed strictly in emission order. Validation
// failures, guard rejections, and loop-limit breaches stop the cascade and
// are reported in the result; they are not Go errors. A non-nil error means
// a storage failure - the dispatch did not complete.
//
// app is the machine-specific context payload, constructed fresh by the
// caller for each dispatch; it reaches the contract funcs through
// machine.Context and is never persisted.
func (e *Engine[S, E, C]) Dispatch(ctx context.Context, instanceID string, ev E, app C) (*DispatchResult[S], error) {
	if !e.locks.tryAcquire(instanceID) {
		return e.rejectConcurrent(ctx, instanceID, ev), nil
	}
	locked := true
	defer func() {
		if locked {
			e.locks.release(instanceID)
		}
	}()

	def := e.m.Definition()
	opts := e.m.Options()
	cat := e.m.Catalog()

	rec, err := e.store.Load(ctx, instanceID)
	if err != nil {
		return nil, fmt.Errorf("dispatch %s: %w", instanceID, err)
	}
	var state S
	if rec != nil {
		state = rec.State
	} else {
		state = def.Initial()
	}

	mctx := machine.Context[C]{InstanceID: instanceID, Time: e.now(), App: app}

	e.logger.Debug("dispatching event",
		"machine", e.m.Name(),
		"instance_id", instanceID,
		"event_type", ev.EventType(),
		"state_key", def.Key(state),
	)

	res := &DispatchResult[S]{}
	queue := []E{ev}
	warned := false

	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]

		prevKey := def.Key(state)
		evType := next.EventType()

		if opts.ValidateEvents && !cat.Allows(prevKey, evType) {
			// Fails closed for unknown state keys as well: a state with
			// no catalog entry allows nothing.
			res.Errors = append(res.Errors, fmt.Sprintf("Event %s not allowed in state %s", evType, prevKey))
			break
		}

		if def.Guard != nil {
			if v := def.Guard(next, state); !v.OK {
				res.Errors = append(res.Errors, "Guard rejected: "+v.Reason)
				break
			}
		}

		if res.TransitionCount >= opts.MaxTransitions {
			// The over-limit event is not reduced; the state from the
			// last valid step is kept.
			res.Errors = append(res.Errors, fmt.Sprintf("Loop limit exceeded: %d transitions (max: %d)",
				opts.MaxTransitions, opts.MaxTransitions))
			break
		}

		out := def.Reduce(state, next, mctx)
		res.TransitionCount++

		if !warned && float64(res.TransitionCount) >= float64(opts.MaxTransitions)*opts.LoopWarningThreshold {
			res.Warnings = append(res.Warnings, fmt.Sprintf("Approaching loop limit: %d of %d transitions",
				res.TransitionCount, opts.MaxTransitions))
			warned = true
		}

		nextState := out.State
		nextKey := def.Key(nextState)

		// Boundary crossings collect onExit -> effects -> onEnter, in that
		// order. Same-key updates collect effects only.
		if prevKey != nextKey {
			if def.OnExit != nil {
				res.Effects = append(res.Effects, def.OnExit(state, mctx)...)
			}
			res.Effects = append(res.Effects, def.Effects(state, nextState, next, mctx)...)
			if def.OnEnter != nil {
				res.Effects = append(res.Effects, def.OnEnter(nextState, mctx)...)
			}
		} else {
			res.Effects = append(res.Effects, def.Effects(state, nextState, next, mctx)...)
		}

		queue = append(queue, out.Emitted...)
		state = nextState

		if e.onTransition != nil {
			e.onTransition(Transition{
				InstanceID: instanceID,
				FromKey:    prevKey,
				ToKey:      nextKey,
				EventType:  evType,
			})
		}
	}

	res.State = state
	res.Success = len(res.Errors) == 0

	meta := e.metaFor(state)

	// AutoPersist saves unconditionally at cascade end, reported failure or
	// not - a cascade stopped at step zero persists the unchanged state.
	// Without AutoPersist, persistence is the runner's job when it sees a
	// PersistNow effect.
	if opts.AutoPersist {
		if err := e.store.Save(ctx, instanceID, state, meta); err != nil {
			return nil, fmt.Errorf("dispatch %s: persist: %w", instanceID, err)
		}
	}

	// Release before running effects: a runner that synchronously
	// re-dispatches gets the normal single-flight treatment instead of a
	// guaranteed rejection against our own lock.
	e.locks.release(instanceID)
	locked = false

	if !res.Success {
		e.logger.Warn("dispatch reported errors",
			"machine", e.m.Name(),
			"instance_id", instanceID,
			"errors", res.Errors,
			"transition_count", res.TransitionCount,
		)
	}

	// Runner failures do not roll back the persisted state; they surface
	// through the advisory OnError hook and are not re-thrown.
	if err := e.runner.RunEffects(ctx, instanceID, res.Effects, state, meta); err != nil {
		e.logger.Error("effect runner failed",
			"machine", e.m.Name(),
			"instance_id", instanceID,
			"error", err,
			"effect_count", len(res.Effects),
		)
		if e.onError != nil {
			e.onError(instanceID, err)
		}
	}

	return res, nil
}

// rejectConcurrent builds the immediate rejection result for a dispatch that
// lost the single-flight race. The persisted state is loaded best-effort so
// callers see the current state; the load never blocks on the in-flight
// dispatch because adapters are safe for concurrent use.
func (e *Engine[S, E, C]) rejectConcurrent(ctx context.Context, instanceID string, ev E) *DispatchResult[S] {
	state := e.m.Definition().Initial()
	if rec, err := e.store.Load(ctx, instanceID); err == nil && rec != nil {
		state = rec.State
	}

	e.logger.Debug("concurrent dispatch rejected",
		"machine", e.m.Name(),
		"instance_id", instanceID,
		"event_type", ev.EventType(),
	)

	return &DispatchResult[S]{
		Success: false,
		State:   state,
		Errors:  []string{errConcurrentDispatch},
	}
}
