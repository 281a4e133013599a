// Package program provides convenience loaders that turn raw program
// bytes — JSON or YAML — into a compiled ir.Program, wrapping
// internal/preprocess and internal/lower behind the two surface formats
// spec.md §2 names.
package program

import (
	"encoding/json"

	"gopkg.in/yaml.v3"

	"github.com/lyzr/lexflow/internal/ir"
	"github.com/lyzr/lexflow/internal/lexerr"
	"github.com/lyzr/lexflow/internal/lower"
)

const component = "program"

// LoadJSON decodes a `{"workflows": [...]}` JSON document and lowers it
// into a Program whose entry point is entryName.
func LoadJSON(data []byte, entryName string) (*ir.Program, error) {
	raw, err := decodeJSON(data)
	if err != nil {
		return nil, err
	}
	return lower.Load(raw, entryName)
}

// LoadYAML decodes the YAML equivalent of LoadJSON's input.
func LoadYAML(data []byte, entryName string) (*ir.Program, error) {
	raw, err := decodeYAML(data)
	if err != nil {
		return nil, err
	}
	return lower.Load(raw, entryName)
}

func decodeJSON(data []byte) (map[string]any, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, lexerr.Wrap(lexerr.KindJSONParse, component, err, "decode JSON program")
	}
	return raw, nil
}

func decodeYAML(data []byte) (map[string]any, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, lexerr.Wrap(lexerr.KindJSONParse, component, err, "decode YAML program")
	}
	return normalizeYAMLMap(raw).(map[string]any), nil
}

// normalizeYAMLMap recursively copies the map[string]any/[]any tree
// yaml.v3 produces (which nests map[string]any at every level already
// for string-keyed mappings, unlike some YAML decoders that produce
// map[any]any). Scalars are kept as decoded, so a YAML integer is still
// an int here rather than the float64 json.Unmarshal would give;
// lower.Load's JSON round-trip turns every number into float64 afterwards.
func normalizeYAMLMap(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalizeYAMLMap(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalizeYAMLMap(val)
		}
		return out
	default:
		return v
	}
}
