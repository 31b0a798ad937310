package sqlite

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// marshalState serializes a machine state to the JSON TEXT stored in
// state_json.
//
// Two departures from plain json.Marshal keep stored bytes stable:
//   - HTML escaping disabled: <, >, & are stored literally
//   - NFC normalization: equivalent Unicode sequences serialize identically
//
// Map keys are already sorted by encoding/json, so the same state value
// always produces the same bytes.
func marshalState(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("marshal state: %w", err)
	}
	// Encoder appends a trailing newline; strip it before storage.
	s := strings.TrimSuffix(buf.String(), "\n")
	return norm.NFC.String(s), nil
}

// unmarshalState decodes a state_json payload.
func unmarshalState[S any](data string) (S, error) {
	var s S
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return s, fmt.Errorf("unmarshal state: %w", err)
	}
	return s, nil
}
