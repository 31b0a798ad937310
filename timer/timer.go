// Package timer provides the small timer-service abstraction effect runners
// use to honor ScheduleTimeout and CancelTimeout effects.
//
// The engine never starts or tracks real timers itself - it only emits timer
// intentions. Keeping the real timers behind Scheduler means a runner can be
// rewired to a persistent scheduler in production without touching the
// engine or any machine definition.
package timer

import (
	"sync"
	"time"
)

// Scheduler starts and cancels timers keyed by (instanceID, timeoutID).
//
// Timeout ids are scoped per instance, not global: the same timeout id on two
// instances names two independent timers. Scheduling under a key that already
// has a pending timer replaces that timer.
type Scheduler interface {
	// Schedule arranges fire to be called after d.
	Schedule(instanceID, timeoutID string, d time.Duration, fire func())

	// Cancel stops the pending timer under the key, reporting whether one
	// was pending. Cancelling an unknown key is a no-op.
	Cancel(instanceID, timeoutID string) bool

	// Stop cancels every pending timer. The scheduler remains usable.
	Stop()
}

// InProcess is the reference Scheduler built on time.AfterFunc.
//
// Safe for concurrent use. Timers that fire remove themselves before calling
// fire, so a fire callback may schedule again under the same key.
type InProcess struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewInProcess creates an empty in-process scheduler.
func NewInProcess() *InProcess {
	return &InProcess{timers: make(map[string]*time.Timer)}
}

func timerKey(instanceID, timeoutID string) string {
	return instanceID + "/" + timeoutID
}

// Schedule implements Scheduler.
func (s *InProcess) Schedule(instanceID, timeoutID string, d time.Duration, fire func()) {
	key := timerKey(instanceID, timeoutID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.timers[key]; ok {
		prev.Stop()
	}
	s.timers[key] = time.AfterFunc(d, func() {
		s.mu.Lock()
		delete(s.timers, key)
		s.mu.Unlock()
		fire()
	})
}

// Cancel implements Scheduler.
func (s *InProcess) Cancel(instanceID, timeoutID string) bool {
	key := timerKey(instanceID, timeoutID)

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.timers[key]
	if !ok {
		return false
	}
	delete(s.timers, key)
	return t.Stop()
}

// Stop implements Scheduler.
func (s *InProcess) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, t := range s.timers {
		t.Stop()
		delete(s.timers, key)
	}
}

// Pending returns the number of pending timers. Used for tests and
// diagnostics.
func (s *InProcess) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}
