package zoo

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/toolgate/toolgate/internal/common"
)

// computeAffordanceHint derives the "Use when: ... | Inputs: ..." summary
// described in spec.md §3/§4.3. Either half degrades gracefully to empty if
// its source data is absent.
func computeAffordanceHint(d common.ToolDescriptor) string {
	useWhen := firstSentence(d.Description)
	inputs := parameterList(d.InputSchema)

	var parts []string
	if useWhen != "" {
		parts = append(parts, "Use when: "+useWhen)
	}
	if inputs != "" {
		parts = append(parts, "Inputs: "+inputs)
	}
	return strings.Join(parts, " | ")
}

func firstSentence(description string) string {
	description = strings.TrimSpace(description)
	if description == "" {
		return ""
	}
	idx := strings.IndexByte(description, '.')
	if idx < 0 {
		return description
	}
	return strings.TrimSpace(description[:idx])
}

// parameterList renders up to 5 parameter names, in schema declaration
// order, suffixing required parameters with "*".
func parameterList(schema map[string]any) string {
	if schema == nil {
		return ""
	}
	props, _ := schema["properties"].(map[string]any)
	if len(props) == 0 {
		return ""
	}

	order := propertyOrder(schema, props)
	required := make(map[string]bool)
	if req, ok := schema["required"].([]any); ok {
		for _, r := range req {
			if name, ok := r.(string); ok {
				required[name] = true
			}
		}
	} else if req, ok := schema["required"].([]string); ok {
		for _, name := range req {
			required[name] = true
		}
	}

	const maxParams = 5
	if len(order) > maxParams {
		order = order[:maxParams]
	}
	names := make([]string, 0, len(order))
	for _, name := range order {
		if required[name] {
			names = append(names, name+"*")
		} else {
			names = append(names, name)
		}
	}
	return strings.Join(names, ", ")
}

// propertyOrder recovers declaration order of schema's properties. Go maps
// have no stable iteration order, so when the schema carries an explicit
// "x-property-order" hint it is honored; otherwise properties are sorted
// lexicographically, which is the best a plain map[string]any can offer.
func propertyOrder(schema map[string]any, props map[string]any) []string {
	if order, ok := schema["x-property-order"].([]string); ok {
		out := make([]string, 0, len(order))
		for _, name := range order {
			if _, ok := props[name]; ok {
				out = append(out, name)
			}
		}
		return out
	}
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// validateInputSchema checks that schema, if non-nil, decodes and resolves
// as a structurally valid JSON Schema object, per spec.md §3's invariant
// that input_schema is valid JSON Schema.
func validateInputSchema(schema map[string]any) error {
	if schema == nil {
		return nil
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("input_schema is not serializable: %w", err)
	}
	var s jsonschema.Schema
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("input_schema is not valid JSON Schema: %w", err)
	}
	if _, err := s.Resolve(nil); err != nil {
		return fmt.Errorf("input_schema does not resolve: %w", err)
	}
	return nil
}
