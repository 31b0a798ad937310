// Package catalog holds the static per-machine metadata that governs which
// events are valid in which states.
//
// A Catalog is independent of the reducer's actual logic: the engine consults
// it only for event validation, and the docgen package renders it into
// human-readable documentation and diagrams. The transition rows are purely
// declarative - the reducer remains the sole source of truth for what a
// transition actually does.
//
// Catalogs can be constructed in code or authored as YAML documents and
// loaded via LoadFile, which validates the document against an embedded CUE
// schema before decoding.
package catalog

import (
	"fmt"
	"sort"
)

// TimeoutHint documents the intended timeout for a state. It is advisory:
// the feature's effect descriptor decides whether to schedule the timer.
type TimeoutHint struct {
	Seconds        int    `yaml:"seconds"`
	OnTimeoutEvent string `yaml:"on_timeout_event"`
}

// StateDef is the catalog entry for one state key.
type StateDef struct {
	// Summary is a one-line description, required.
	Summary string `yaml:"summary"`

	// Description is optional long-form documentation.
	Description string `yaml:"description,omitempty"`

	// AllowedEvents lists the event types dispatchable in this state.
	// With validation enabled, anything else fails closed.
	AllowedEvents []string `yaml:"allowed_events"`

	// Timeout documents the intended state timeout, if any.
	Timeout *TimeoutHint `yaml:"timeout,omitempty"`

	// Terminal marks a final state. Terminal states are expected to
	// declare no allowed events; Problems reports violations.
	Terminal bool `yaml:"terminal,omitempty"`

	// Tags are free-form labels for documentation grouping.
	Tags []string `yaml:"tags,omitempty"`

	// View names the UI view associated with this state, if any.
	View string `yaml:"view,omitempty"`
}

// Allows reports whether eventType appears in the entry's allowed list.
func (d StateDef) Allows(eventType string) bool {
	for _, e := range d.AllowedEvents {
		if e == eventType {
			return true
		}
	}
	return false
}

// TransitionRow is a declarative documentation row. Rows feed diagram
// generation and are never consulted by the dispatch algorithm.
type TransitionRow struct {
	From        string `yaml:"from"`
	Event       string `yaml:"event"`
	To          string `yaml:"to"`
	Description string `yaml:"description,omitempty"`
}

// Catalog is the static metadata for one machine.
type Catalog struct {
	// Name identifies the machine this catalog belongs to.
	Name string `yaml:"name"`

	// Version is stamped into persisted meta as CatalogVersion.
	Version string `yaml:"version"`

	// States maps state key to its entry. Every reachable state key must
	// have an entry when event validation is enabled.
	States map[string]StateDef `yaml:"states"`

	// Transitions holds the optional documentation-only transition table.
	Transitions []TransitionRow `yaml:"transitions,omitempty"`
}

// State returns the entry for a state key.
func (c *Catalog) State(key string) (StateDef, bool) {
	d, ok := c.States[key]
	return d, ok
}

// Allows reports whether eventType is permitted in the given state.
// An unknown state key allows nothing: validation fails closed.
func (c *Catalog) Allows(stateKey, eventType string) bool {
	d, ok := c.States[stateKey]
	if !ok {
		return false
	}
	return d.Allows(eventType)
}

// StateKeys returns all state keys in sorted order.
func (c *Catalog) StateKeys() []string {
	keys := make([]string, 0, len(c.States))
	for k := range c.States {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Problem is a structural finding from Problems.
type Problem struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Problem codes.
const (
	CodeMissingName     = "C001"
	CodeMissingVersion  = "C002"
	CodeNoStates        = "C003"
	CodeEmptySummary    = "C004"
	CodeTerminalEvents  = "C005"
	CodeUnknownState    = "C006"
	CodeBadTimeout      = "C007"
	CodeDuplicateEvent  = "C008"
)

// Problems lints the catalog and returns all findings.
//
// These are conventions, not dispatch-time enforcement: a catalog with
// problems still validates events exactly as written. An empty slice means
// the catalog is structurally clean.
func (c *Catalog) Problems() []Problem {
	var probs []Problem

	if c.Name == "" {
		probs = append(probs, Problem{Field: "name", Message: "catalog name is required", Code: CodeMissingName})
	}
	if c.Version == "" {
		probs = append(probs, Problem{Field: "version", Message: "catalog version is required", Code: CodeMissingVersion})
	}
	if len(c.States) == 0 {
		probs = append(probs, Problem{Field: "states", Message: "catalog declares no states", Code: CodeNoStates})
		return probs
	}

	for _, key := range c.StateKeys() {
		d := c.States[key]
		field := "states." + key

		if d.Summary == "" {
			probs = append(probs, Problem{Field: field + ".summary", Message: "summary is required", Code: CodeEmptySummary})
		}
		if d.Terminal && len(d.AllowedEvents) > 0 {
			probs = append(probs, Problem{
				Field:   field + ".allowed_events",
				Message: fmt.Sprintf("terminal state %q declares %d allowed events; terminal states should allow none", key, len(d.AllowedEvents)),
				Code:    CodeTerminalEvents,
			})
		}
		if d.Timeout != nil {
			if d.Timeout.Seconds <= 0 {
				probs = append(probs, Problem{
					Field:   field + ".timeout.seconds",
					Message: fmt.Sprintf("timeout seconds must be positive, got %d", d.Timeout.Seconds),
					Code:    CodeBadTimeout,
				})
			}
			if d.Timeout.OnTimeoutEvent == "" {
				probs = append(probs, Problem{Field: field + ".timeout.on_timeout_event", Message: "timeout requires an event", Code: CodeBadTimeout})
			}
		}
		seen := make(map[string]bool, len(d.AllowedEvents))
		for _, ev := range d.AllowedEvents {
			if seen[ev] {
				probs = append(probs, Problem{
					Field:   field + ".allowed_events",
					Message: fmt.Sprintf("event %q listed more than once", ev),
					Code:    CodeDuplicateEvent,
				})
			}
			seen[ev] = true
		}
	}

	for i, row := range c.Transitions {
		field := fmt.Sprintf("transitions[%d]", i)
		if _, ok := c.States[row.From]; !ok {
			probs = append(probs, Problem{
				Field:   field + ".from",
				Message: fmt.Sprintf("transition references unknown state %q", row.From),
				Code:    CodeUnknownState,
			})
		}
		if _, ok := c.States[row.To]; !ok {
			probs = append(probs, Problem{
				Field:   field + ".to",
				Message: fmt.Sprintf("transition references unknown state %q", row.To),
				Code:    CodeUnknownState,
			})
		}
	}

	return probs
}
