package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// FragmentJSONSchema describes the raw JSON a provider may return for one
// chunk: a list of objects, or a single object that is not an error
// envelope. Field-level shape is checked by the provider parser, which knows
// the accepted key aliases.
func FragmentJSONSchema() map[string]any {
	envelope := map[string]any{
		"anyOf": []any{
			map[string]any{"required": []string{"error"}},
			map[string]any{"required": []string{"errors"}},
		},
	}
	return map[string]any{
		"anyOf": []any{
			map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "object", "minProperties": 1},
			},
			map[string]any{
				"type":          "object",
				"minProperties": 1,
				"not":           envelope,
			},
		},
	}
}

var (
	fragmentOnce   sync.Once
	fragmentSchema *jsonschema.Schema
	fragmentErr    error
)

func compiledFragment() (*jsonschema.Schema, error) {
	fragmentOnce.Do(func() {
		b, err := json.Marshal(FragmentJSONSchema())
		if err != nil {
			fragmentErr = fmt.Errorf("marshal schema: %w", err)
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("fragment.json", bytes.NewReader(b)); err != nil {
			fragmentErr = fmt.Errorf("add schema: %w", err)
			return
		}
		fragmentSchema, fragmentErr = compiler.Compile("fragment.json")
	})
	return fragmentSchema, fragmentErr
}

// ValidateFragment checks a decoded provider response against
// FragmentJSONSchema. v must hold plain JSON values (maps, slices,
// strings, json.Number, bools, nil).
func ValidateFragment(v any) error {
	s, err := compiledFragment()
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	if err := s.Validate(v); err != nil {
		return fmt.Errorf("response does not match schema: %w", err)
	}
	return nil
}
