// Package effect defines the effect vocabulary shared by machine definitions
// and effect runners.
//
// Effects are plain data. The engine accumulates them during a dispatch
// cascade and hands the full list to an effect runner after the cascade
// completes; it never executes one itself. The four built-in effects cover
// logging, declarative timers, and explicit persistence. Machine-specific
// effects implement the same Effect interface and are interpreted by the
// feature's own runner.
package effect

import (
	"log/slog"
	"time"
)

// Built-in effect kinds, as returned by EffectKind.
const (
	KindLog             = "log"
	KindScheduleTimeout = "schedule_timeout"
	KindCancelTimeout   = "cancel_timeout"
	KindPersistNow      = "persist_now"
)

// Effect describes one side effect produced by a transition.
//
// EffectKind returns a stable discriminant string. Runners dispatch on the
// concrete type; the kind string exists for recording, filtering, and logs.
type Effect interface {
	EffectKind() string
}

// Log asks the runner to emit a structured log line.
type Log struct {
	Level   slog.Level
	Message string
	Data    map[string]any
}

// EffectKind implements Effect.
func (Log) EffectKind() string { return KindLog }

// ScheduleTimeout asks the runner to arrange a real timer that, on firing,
// dispatches Event back into the engine for the same instance.
//
// TimeoutID is scoped per instance, not global. Scheduling under an id that
// already has a pending timer replaces that timer.
//
// Event must be a value of the machine's event type; the runner asserts it
// back when the timer fires.
type ScheduleTimeout struct {
	TimeoutID string
	After     time.Duration
	Event     any
}

// EffectKind implements Effect.
func (ScheduleTimeout) EffectKind() string { return KindScheduleTimeout }

// CancelTimeout asks the runner to cancel the pending timer under TimeoutID
// for this instance. Cancelling an unknown id is a no-op.
type CancelTimeout struct {
	TimeoutID string
}

// EffectKind implements Effect.
func (CancelTimeout) EffectKind() string { return KindCancelTimeout }

// PersistNow asks the runner to save the instance's post-cascade state.
//
// Only meaningful for machines built with AutoPersist disabled; the engine
// does not special-case it, keeping persistence policy fully pluggable.
type PersistNow struct{}

// EffectKind implements Effect.
func (PersistNow) EffectKind() string { return KindPersistNow }
