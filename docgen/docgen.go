// Package docgen renders a state catalog into human-readable documentation.
//
// Everything here is a pure function over catalog.Catalog with deterministic
// output (states sorted by key, transitions in declaration order), so the
// results are golden-testable and safe to regenerate in CI. Nothing in this
// package is consulted at runtime.
package docgen

import (
	"fmt"
	"strings"

	"github.com/machina-io/machina/catalog"
)

// Markdown renders the catalog as a Markdown reference document.
func Markdown(c *catalog.Catalog) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s state machine\n\n", c.Name)
	fmt.Fprintf(&b, "Version: %s\n\n", c.Version)
	b.WriteString("## States\n")

	for _, key := range c.StateKeys() {
		d := c.States[key]

		fmt.Fprintf(&b, "\n### %s\n\n", key)
		fmt.Fprintf(&b, "%s\n\n", d.Summary)
		if d.Description != "" {
			fmt.Fprintf(&b, "%s\n\n", d.Description)
		}

		if d.Terminal {
			b.WriteString("- Terminal: yes\n")
		}
		if len(d.AllowedEvents) == 0 {
			b.WriteString("- Allowed events: none\n")
		} else {
			fmt.Fprintf(&b, "- Allowed events: %s\n", codeList(d.AllowedEvents))
		}
		if d.Timeout != nil {
			fmt.Fprintf(&b, "- Timeout: %ds -> `%s`\n", d.Timeout.Seconds, d.Timeout.OnTimeoutEvent)
		}
		if len(d.Tags) > 0 {
			fmt.Fprintf(&b, "- Tags: %s\n", strings.Join(d.Tags, ", "))
		}
		if d.View != "" {
			fmt.Fprintf(&b, "- View: %s\n", d.View)
		}
	}

	if len(c.Transitions) > 0 {
		b.WriteString("\n## Transitions\n\n")
		b.WriteString("| From | Event | To | Description |\n")
		b.WriteString("| --- | --- | --- | --- |\n")
		for _, row := range c.Transitions {
			fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", row.From, row.Event, row.To, row.Description)
		}
	}

	return b.String()
}

// Mermaid renders the catalog's transition table as a stateDiagram-v2
// diagram. Terminal states gain an edge to the final pseudo-state.
func Mermaid(c *catalog.Catalog) string {
	var b strings.Builder

	b.WriteString("stateDiagram-v2\n")

	if len(c.Transitions) == 0 {
		b.WriteString("    %% no transition table declared\n")
	}
	for _, row := range c.Transitions {
		fmt.Fprintf(&b, "    %s --> %s: %s\n", row.From, row.To, row.Event)
	}
	for _, key := range c.StateKeys() {
		if c.States[key].Terminal {
			fmt.Fprintf(&b, "    %s --> [*]\n", key)
		}
	}

	return b.String()
}

// StateSummary is one row of the catalog overview.
type StateSummary struct {
	Key        string `json:"key"`
	Summary    string `json:"summary"`
	Terminal   bool   `json:"terminal,omitempty"`
	EventCount int    `json:"event_count"`
}

// Summaries returns a per-state overview, sorted by state key.
func Summaries(c *catalog.Catalog) []StateSummary {
	out := make([]StateSummary, 0, len(c.States))
	for _, key := range c.StateKeys() {
		d := c.States[key]
		out = append(out, StateSummary{
			Key:        key,
			Summary:    d.Summary,
			Terminal:   d.Terminal,
			EventCount: len(d.AllowedEvents),
		})
	}
	return out
}

func codeList(items []string) string {
	quoted := make([]string, len(items))
	for i, item := range items {
		quoted[i] = "`" + item + "`"
	}
	return strings.Join(quoted, ", ")
}
