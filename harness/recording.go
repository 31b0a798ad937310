package harness

import (
	"context"
	"sync"

	"github.com/machina-io/machina/effect"
	"github.com/machina-io/machina/storage"
)

// RecordedEffect is one effect as the runner received it.
type RecordedEffect struct {
	InstanceID string
	Effect     effect.Effect
}

// RecordingRunner implements engine.EffectRunner by recording every effect
// instead of executing it. No timers start, nothing is logged, nothing is
// persisted - PersistNow is recorded like any other effect.
//
// Safe for concurrent use.
type RecordingRunner[S any] struct {
	mu       sync.Mutex
	recorded []RecordedEffect
	failWith error
}

// NewRecordingRunner creates an empty recorder.
func NewRecordingRunner[S any]() *RecordingRunner[S] {
	return &RecordingRunner[S]{}
}

// RunEffects implements engine.EffectRunner.
func (r *RecordingRunner[S]) RunEffects(_ context.Context, instanceID string, effects []effect.Effect, _ S, _ storage.Meta) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, eff := range effects {
		r.recorded = append(r.recorded, RecordedEffect{InstanceID: instanceID, Effect: eff})
	}
	return r.failWith
}

// FailWith makes every subsequent RunEffects call return err, for testing
// the engine's OnError hook. Pass nil to restore normal behavior.
func (r *RecordingRunner[S]) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failWith = err
}

// All returns every recorded effect in arrival order.
func (r *RecordingRunner[S]) All() []RecordedEffect {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]RecordedEffect, len(r.recorded))
	copy(out, r.recorded)
	return out
}

// ForInstance returns the effects recorded for one instance, in order.
func (r *RecordingRunner[S]) ForInstance(instanceID string) []effect.Effect {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []effect.Effect
	for _, rec := range r.recorded {
		if rec.InstanceID == instanceID {
			out = append(out, rec.Effect)
		}
	}
	return out
}

// ByKind returns every recorded effect with the given kind, in order.
func (r *RecordingRunner[S]) ByKind(kind string) []effect.Effect {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []effect.Effect
	for _, rec := range r.recorded {
		if rec.Effect.EffectKind() == kind {
			out = append(out, rec.Effect)
		}
	}
	return out
}

// Reset discards everything recorded so far.
func (r *RecordingRunner[S]) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recorded = nil
}
