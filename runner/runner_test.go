package runner_test

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/machina-io/machina/effect"
	"github.com/machina-io/machina/engine"
	"github.com/machina-io/machina/runner"
	"github.com/machina-io/machina/storage"
)

type tstate struct {
	Phase string
}

type tevent struct {
	Kind string
}

func (e tevent) EventType() string { return e.Kind }

type tctx struct {
	Source string
}

// fakeScheduler records calls and lets tests fire pending timers by hand.
type fakeScheduler struct {
	mu        sync.Mutex
	scheduled map[string]func()
	cancelled []string
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{scheduled: make(map[string]func())}
}

func (f *fakeScheduler) Schedule(instanceID, timeoutID string, _ time.Duration, fire func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scheduled[instanceID+"/"+timeoutID] = fire
}

func (f *fakeScheduler) Cancel(instanceID, timeoutID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := instanceID + "/" + timeoutID
	f.cancelled = append(f.cancelled, key)
	_, ok := f.scheduled[key]
	delete(f.scheduled, key)
	return ok
}

func (f *fakeScheduler) Stop() {}

func (f *fakeScheduler) fire(t *testing.T, key string) {
	t.Helper()
	f.mu.Lock()
	fn, ok := f.scheduled[key]
	delete(f.scheduled, key)
	f.mu.Unlock()
	require.True(t, ok, "no pending timer %s", key)
	fn()
}

type customEffect struct {
	Payload string
}

func (customEffect) EffectKind() string { return "custom" }

func newTestRunner(t *testing.T, opts ...runner.Option[tstate, tevent, tctx]) (*runner.Runner[tstate, tevent, tctx], *fakeScheduler, *storage.Memory[tstate], *bytes.Buffer) {
	t.Helper()

	sched := newFakeScheduler()
	mem := storage.NewMemory[tstate]()
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	opts = append([]runner.Option[tstate, tevent, tctx]{
		runner.WithLogger[tstate, tevent, tctx](logger),
	}, opts...)
	r := runner.New[tstate, tevent, tctx](sched, mem, opts...)
	return r, sched, mem, &buf
}

func TestRunEffects_Log(t *testing.T) {
	r, _, _, buf := newTestRunner(t)

	err := r.RunEffects(context.Background(), "w-1", []effect.Effect{
		effect.Log{Level: slog.LevelInfo, Message: "step completed", Data: map[string]any{"step": 2}},
	}, tstate{}, storage.Meta{})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "step completed")
	assert.Contains(t, out, "instance_id=w-1")
	assert.Contains(t, out, "step=2")
}

func TestRunEffects_ScheduleTimeout(t *testing.T) {
	r, sched, _, _ := newTestRunner(t)

	err := r.RunEffects(context.Background(), "w-1", []effect.Effect{
		effect.ScheduleTimeout{TimeoutID: "nudge", After: time.Minute, Event: tevent{Kind: "TIMEOUT"}},
	}, tstate{}, storage.Meta{})
	require.NoError(t, err)

	sched.mu.Lock()
	_, pending := sched.scheduled["w-1/nudge"]
	sched.mu.Unlock()
	assert.True(t, pending)
}

func TestRunEffects_ScheduleTimeout_WrongEventType(t *testing.T) {
	r, sched, _, _ := newTestRunner(t)

	err := r.RunEffects(context.Background(), "w-1", []effect.Effect{
		effect.ScheduleTimeout{TimeoutID: "nudge", After: time.Minute, Event: "not-an-event"},
	}, tstate{}, storage.Meta{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not the machine's event type")

	sched.mu.Lock()
	defer sched.mu.Unlock()
	assert.Empty(t, sched.scheduled)
}

func TestRunEffects_CancelTimeout(t *testing.T) {
	r, sched, _, _ := newTestRunner(t)
	ctx := context.Background()

	require.NoError(t, r.RunEffects(ctx, "w-1", []effect.Effect{
		effect.ScheduleTimeout{TimeoutID: "nudge", After: time.Minute, Event: tevent{Kind: "TIMEOUT"}},
	}, tstate{}, storage.Meta{}))
	require.NoError(t, r.RunEffects(ctx, "w-1", []effect.Effect{
		effect.CancelTimeout{TimeoutID: "nudge"},
	}, tstate{}, storage.Meta{}))

	assert.Equal(t, []string{"w-1/nudge"}, sched.cancelled)
}

func TestRunEffects_PersistNow(t *testing.T) {
	r, _, mem, _ := newTestRunner(t)

	meta := storage.Meta{StateKey: "active", CatalogVersion: "1"}
	err := r.RunEffects(context.Background(), "w-1", []effect.Effect{
		effect.PersistNow{},
	}, tstate{Phase: "active"}, meta)
	require.NoError(t, err)

	rec, err := mem.Load(context.Background(), "w-1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "active", rec.State.Phase)
	assert.Equal(t, meta, rec.Meta)
}

func TestRunEffects_CustomHandler(t *testing.T) {
	var got []effect.Effect
	r, _, _, _ := newTestRunner(t,
		runner.WithCustom[tstate, tevent, tctx](func(_ context.Context, instanceID string, eff effect.Effect, _ tstate, _ storage.Meta) error {
			assert.Equal(t, "w-1", instanceID)
			got = append(got, eff)
			return nil
		}),
	)

	err := r.RunEffects(context.Background(), "w-1", []effect.Effect{
		customEffect{Payload: "send email"},
	}, tstate{}, storage.Meta{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, customEffect{Payload: "send email"}, got[0])
}

func TestRunEffects_UnknownEffectDropped(t *testing.T) {
	r, _, _, buf := newTestRunner(t)

	err := r.RunEffects(context.Background(), "w-1", []effect.Effect{
		customEffect{Payload: "nobody home"},
	}, tstate{}, storage.Meta{})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "unhandled effect")
	assert.Contains(t, buf.String(), "kind=custom")
}

func TestRunEffects_FailuresJoined(t *testing.T) {
	r, sched, _, _ := newTestRunner(t)

	// The failing effect does not stop the ones after it.
	err := r.RunEffects(context.Background(), "w-1", []effect.Effect{
		effect.ScheduleTimeout{TimeoutID: "bad", After: time.Minute, Event: 42},
		effect.ScheduleTimeout{TimeoutID: "good", After: time.Minute, Event: tevent{Kind: "TIMEOUT"}},
	}, tstate{}, storage.Meta{})
	require.Error(t, err)

	sched.mu.Lock()
	_, pending := sched.scheduled["w-1/good"]
	sched.mu.Unlock()
	assert.True(t, pending)
}

func TestFireTimeout(t *testing.T) {
	t.Run("dispatches bound engine", func(t *testing.T) {
		r, sched, _, _ := newTestRunner(t,
			runner.WithAppContext[tstate, tevent, tctx](func(string) tctx { return tctx{Source: "timer"} }),
		)

		var gotID string
		var gotEvent tevent
		var gotApp tctx
		r.Bind(func(_ context.Context, instanceID string, ev tevent, app tctx) (*engine.DispatchResult[tstate], error) {
			gotID, gotEvent, gotApp = instanceID, ev, app
			return &engine.DispatchResult[tstate]{Success: true}, nil
		})

		require.NoError(t, r.RunEffects(context.Background(), "w-1", []effect.Effect{
			effect.ScheduleTimeout{TimeoutID: "nudge", After: time.Minute, Event: tevent{Kind: "TIMEOUT"}},
		}, tstate{}, storage.Meta{}))
		sched.fire(t, "w-1/nudge")

		assert.Equal(t, "w-1", gotID)
		assert.Equal(t, tevent{Kind: "TIMEOUT"}, gotEvent)
		assert.Equal(t, tctx{Source: "timer"}, gotApp)
	})

	t.Run("unbound runner drops and logs", func(t *testing.T) {
		r, sched, _, buf := newTestRunner(t)

		require.NoError(t, r.RunEffects(context.Background(), "w-1", []effect.Effect{
			effect.ScheduleTimeout{TimeoutID: "nudge", After: time.Minute, Event: tevent{Kind: "TIMEOUT"}},
		}, tstate{}, storage.Meta{}))
		sched.fire(t, "w-1/nudge")

		assert.Contains(t, buf.String(), "timeout fired before runner was bound")
	})

	t.Run("rejected dispatch logs warning", func(t *testing.T) {
		r, sched, _, buf := newTestRunner(t)
		r.Bind(func(context.Context, string, tevent, tctx) (*engine.DispatchResult[tstate], error) {
			return &engine.DispatchResult[tstate]{Success: false, Errors: []string{"Concurrent dispatch blocked"}}, nil
		})

		require.NoError(t, r.RunEffects(context.Background(), "w-1", []effect.Effect{
			effect.ScheduleTimeout{TimeoutID: "nudge", After: time.Minute, Event: tevent{Kind: "TIMEOUT"}},
		}, tstate{}, storage.Meta{}))
		sched.fire(t, "w-1/nudge")

		assert.Contains(t, buf.String(), "timeout dispatch rejected")
	})
}
