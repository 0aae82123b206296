package pool

import (
	"bytes"
	"encoding/json"
)

// jsonToMap decodes a JSON object into a map[string]any, the shape
// common.ToolDescriptor.InputSchema carries.
func jsonToMap(data []byte) (map[string]any, error) {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// extractPropertyOrder recovers the declaration order of a raw JSON
// schema's top-level "properties" object by walking the token stream
// directly, rather than through a map[string]any (whose key order
// encoding/json does not preserve): the Tool Zoo's affordance hints
// (spec.md §4.3 "ordered by schema declaration") otherwise fall back to a
// lexicographic order no downstream schema actually declares.
//
// Returns nil if the schema carries no "properties" object at all, which is
// the common case for tools that take no arguments.
func extractPropertyOrder(data []byte) []string {
	dec := json.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil
		}
		key, ok := tok.(string)
		if !ok || key != "properties" {
			continue
		}
		next, err := dec.Token()
		if err != nil {
			return nil
		}
		delim, ok := next.(json.Delim)
		if !ok || delim != '{' {
			continue
		}
		return readObjectKeysInOrder(dec)
	}
}

// readObjectKeysInOrder reads the keys of a JSON object whose opening '{'
// has already been consumed, skipping each value in turn, and consumes the
// closing '}'.
func readObjectKeysInOrder(dec *json.Decoder) []string {
	var keys []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return keys
		}
		key, ok := tok.(string)
		if !ok {
			return keys
		}
		keys = append(keys, key)
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return keys
		}
	}
	dec.Token() // consume the closing '}'
	return keys
}
