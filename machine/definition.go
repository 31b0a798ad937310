package machine

import (
	"fmt"
	"time"

	"github.com/machina-io/machina/effect"
)

// Event is the unit of input to a dispatch and to emitted cascades.
//
// EventType returns the discriminant string checked against the catalog's
// allowed-events list. It must be total and stable for a given event value.
type Event interface {
	EventType() string
}

// Context carries per-dispatch read-only data into the pure contract funcs.
//
// A Context is constructed fresh for every dispatch and never persisted.
// App holds machine-specific fields the calling feature wants visible to the
// reducer (user ids, channel ids, and so on).
type Context[C any] struct {
	InstanceID string
	Time       time.Time
	App        C
}

// Result is what a reducer returns: the replacement state plus any events to
// append to the back of the cascade queue, in emission order.
type Result[S any, E Event] struct {
	State   S
	Emitted []E
}

// GuardVerdict is the outcome of a Definition's Guard func.
type GuardVerdict struct {
	OK     bool
	Reason string
}

// Admit returns a passing verdict.
func Admit() GuardVerdict {
	return GuardVerdict{OK: true}
}

// Reject returns a failing verdict with the given reason.
// The reason surfaces to callers as "Guard rejected: {reason}".
func Reject(reason string) GuardVerdict {
	return GuardVerdict{OK: false, Reason: reason}
}

// Definition is the pure state/event/effect contract for one machine.
//
// Initial, Key, Reduce, and Effects are required. Guard, OnEnter, and OnExit
// are optional and may be nil.
//
// Contract rules:
//   - Reduce must not panic for expected inputs. An unhandled state/event
//     combination returns the state unchanged (a no-op transition, not an
//     error).
//   - Effects is called on every transition, including same-key updates.
//   - OnEnter and OnExit fire only when Key(prev) != Key(next), exactly once
//     per boundary crossing.
//   - Key must be total and stable; it drives catalog lookups and the
//     persisted meta.StateKey.
type Definition[S any, E Event, C any] struct {
	// Name identifies the machine in persisted records and logs.
	Name string

	// Version is the machine/catalog version stamped into persisted meta.
	Version string

	// Initial returns the state used when no persisted record exists.
	Initial func() S

	// Key returns the type discriminant for a state value.
	Key func(s S) string

	// Reduce computes the next state and any emitted follow-on events.
	Reduce func(s S, ev E, mctx Context[C]) Result[S, E]

	// Effects describes what must happen because of a transition.
	Effects func(prev, next S, ev E, mctx Context[C]) []effect.Effect

	// Guard, when non-nil, is a pre-reducer admission check. A rejection
	// aborts processing of the current event only.
	Guard func(ev E, s S) GuardVerdict

	// OnEnter, when non-nil, yields effects for entering a state key.
	OnEnter func(s S, mctx Context[C]) []effect.Effect

	// OnExit, when non-nil, yields effects for leaving a state key.
	OnExit func(s S, mctx Context[C]) []effect.Effect
}

// Validate checks that all required contract funcs are present.
func (d Definition[S, E, C]) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("definition: name is required")
	}
	if d.Initial == nil {
		return fmt.Errorf("definition %s: Initial func is required", d.Name)
	}
	if d.Key == nil {
		return fmt.Errorf("definition %s: Key func is required", d.Name)
	}
	if d.Reduce == nil {
		return fmt.Errorf("definition %s: Reduce func is required", d.Name)
	}
	if d.Effects == nil {
		return fmt.Errorf("definition %s: Effects func is required", d.Name)
	}
	return nil
}
