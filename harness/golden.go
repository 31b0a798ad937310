package harness

import (
	"bytes"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// TraceSnapshot is the serialized form of a harness run used for golden
// comparison: the transition log plus every recorded effect, in order.
type TraceSnapshot struct {
	Transitions []TransitionSnapshot `json:"transitions"`
	Effects     []EffectSnapshot     `json:"effects"`
}

// TransitionSnapshot is one transition log entry.
type TransitionSnapshot struct {
	InstanceID string `json:"instance_id"`
	From       string `json:"from"`
	To         string `json:"to"`
	Event      string `json:"event"`
}

// EffectSnapshot is one recorded effect. Detail is the effect's %+v
// rendering - coarse, but deterministic and diffable.
type EffectSnapshot struct {
	InstanceID string `json:"instance_id"`
	Kind       string `json:"kind"`
	Detail     string `json:"detail"`
}

// Snapshot captures the harness's current trace.
func (h *Harness[S, E, C]) Snapshot() TraceSnapshot {
	snap := TraceSnapshot{
		Transitions: []TransitionSnapshot{},
		Effects:     []EffectSnapshot{},
	}
	for _, t := range h.Transitions() {
		snap.Transitions = append(snap.Transitions, TransitionSnapshot{
			InstanceID: t.InstanceID,
			From:       t.FromKey,
			To:         t.ToKey,
			Event:      t.EventType,
		})
	}
	for _, rec := range h.Runner.All() {
		snap.Effects = append(snap.Effects, EffectSnapshot{
			InstanceID: rec.InstanceID,
			Kind:       rec.Effect.EffectKind(),
			Detail:     fmt.Sprintf("%+v", rec.Effect),
		})
	}
	return snap
}

// AssertGolden compares the harness trace against
// testdata/golden/{name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./... -update
func (h *Harness[S, E, C]) AssertGolden(t *testing.T, name string) {
	t.Helper()

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(h.Snapshot()); err != nil {
		t.Fatalf("encode trace snapshot: %v", err)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, buf.Bytes())
}
