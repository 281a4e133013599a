package preprocess

import (
	"strings"
	"testing"

	"github.com/lyzr/lexflow/internal/lexerr"
)

func node(inputs map[string]any) map[string]any {
	return map[string]any{"opcode": "op_add", "inputs": inputs}
}

func program(inputs map[string]any) map[string]any {
	return map[string]any{
		"workflows": []any{
			map[string]any{
				"name":  "main",
				"nodes": map[string]any{"n1": node(inputs)},
			},
		},
	}
}

func normalizedInput(t *testing.T, raw map[string]any) []any {
	t.Helper()
	out, err := Preprocess(program(raw))
	if err != nil {
		t.Fatalf("Preprocess: %v", err)
	}
	workflows := out["workflows"].([]any)
	wf := workflows[0].(map[string]any)
	nodes := wf["nodes"].(map[string]any)
	n1 := nodes["n1"].(map[string]any)
	inputs := n1["inputs"].(map[string]any)
	return inputs["a"].([]any)
}

func TestThreeSurfaceFormsNormalizeIdentically(t *testing.T) {
	list := normalizedInput(t, map[string]any{"a": []any{"literal", 5.0}})
	dict := normalizedInput(t, map[string]any{"a": map[string]any{"literal": 5.0}})
	bare := normalizedInput(t, map[string]any{"a": 5.0})

	for _, got := range [][]any{list, dict, bare} {
		if len(got) != 2 || got[0] != 1 || got[1] != 5.0 {
			t.Fatalf("expected normalized [1, 5], got %v", got)
		}
	}
}

func TestAllFiveTagNames(t *testing.T) {
	cases := map[string]int{
		"literal":       1,
		"node":          2,
		"variable":      3,
		"branch":        4,
		"workflow_call": 5,
	}
	for name, wantTag := range cases {
		got := normalizedInput(t, map[string]any{"a": []any{name, "x"}})
		if got[0] != wantTag {
			t.Errorf("tag %q normalized to %v, want %d", name, got[0], wantTag)
		}
	}
}

func TestIdempotent(t *testing.T) {
	raw := program(map[string]any{"a": []any{"literal", 5.0}, "b": map[string]any{"variable": "x"}})

	once, err := Preprocess(raw)
	if err != nil {
		t.Fatalf("Preprocess: %v", err)
	}
	twice, err := Preprocess(once)
	if err != nil {
		t.Fatalf("Preprocess (second pass): %v", err)
	}

	onceInputs := once["workflows"].([]any)[0].(map[string]any)["nodes"].(map[string]any)["n1"].(map[string]any)["inputs"]
	twiceInputs := twice["workflows"].([]any)[0].(map[string]any)["nodes"].(map[string]any)["n1"].(map[string]any)["inputs"]

	a1 := onceInputs.(map[string]any)["a"].([]any)
	a2 := twiceInputs.(map[string]any)["a"].([]any)
	if a1[0] != a2[0] || a1[1] != a2[1] {
		t.Fatalf("preprocess is not idempotent: %v != %v", a1, a2)
	}
}

func TestUnknownTagEnumeratesValidTags(t *testing.T) {
	_, err := Preprocess(program(map[string]any{"a": []any{"wat", 1.0}}))
	if err == nil {
		t.Fatal("expected a validation error")
	}
	kind, ok := lexerr.KindOf(err)
	if !ok || kind != lexerr.KindValidation {
		t.Fatalf("kind = %v, %v, want %v", kind, ok, lexerr.KindValidation)
	}
	for _, tag := range []string{"literal", "node", "variable", "branch", "workflow_call"} {
		if !strings.Contains(err.Error(), tag) {
			t.Errorf("error message %q does not enumerate tag %q", err.Error(), tag)
		}
	}
}

func TestAlreadyNormalizedIntTagAccepted(t *testing.T) {
	got := normalizedInput(t, map[string]any{"a": []any{3.0, "x"}})
	if got[0] != 3 {
		t.Fatalf("expected int tag 3 to pass through, got %v", got[0])
	}
}

func TestMalformedListLength(t *testing.T) {
	_, err := Preprocess(program(map[string]any{"a": []any{"literal", 1.0, 2.0}}))
	if err == nil {
		t.Fatal("expected an error for a 3-element descriptor list")
	}
}

