// Package preprocess normalizes the three equivalent surface syntaxes for
// an Input descriptor (spec.md §6) into the canonical `[tag:int, payload]`
// form the lowerer expects. It is deliberately narrow: it only recognizes
// and rewrites values that sit in a node's "inputs" map — it does not
// reinterpret arbitrary user data, and it never touches the payload of a
// LITERAL descriptor.
//
// The front-end parsers (JSON/YAML bytes → dict) are an external
// collaborator per spec.md §1; Preprocess starts from an already-decoded
// dict (map[string]any), matching the contract spec.md §2 draws between
// "raw dict" and "Preprocessor".
package preprocess

import (
	"fmt"
	"strings"

	"github.com/lyzr/lexflow/internal/ir"
	"github.com/lyzr/lexflow/internal/lexerr"
)

const component = "preprocess"

var tagByName = map[string]int{
	"literal":       int(ir.TagLiteral),
	"node":          int(ir.TagNode),
	"variable":      int(ir.TagVariable),
	"branch":        int(ir.TagBranch),
	"workflow_call": int(ir.TagWorkflowCall),
}

func validTagsList() string {
	return strings.Join(ir.ValidTags, ", ")
}

// Preprocess walks raw (a decoded `{"workflows": [...]}` dict) and returns
// a copy with every node input descriptor normalized to canonical form.
// The top-level, workflow, node and inputs maps are copied; every other
// value (a literal payload, a workflow's variables) is shared with raw.
// It is idempotent: Preprocess(Preprocess(x)) produces a value identical
// to Preprocess(x).
func Preprocess(raw map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		out[k] = v
	}

	workflowsRaw, ok := raw["workflows"]
	if !ok {
		return out, nil
	}
	workflowsList, ok := workflowsRaw.([]any)
	if !ok {
		return nil, lexerr.New(lexerr.KindValidation, component, "workflows must be a list")
	}

	normalizedWorkflows := make([]any, len(workflowsList))
	for i, wfRaw := range workflowsList {
		wf, ok := wfRaw.(map[string]any)
		if !ok {
			return nil, lexerr.New(lexerr.KindValidation, component, "workflow %d must be an object", i)
		}
		normalizedWf, err := preprocessWorkflow(wf)
		if err != nil {
			return nil, err
		}
		normalizedWorkflows[i] = normalizedWf
	}
	out["workflows"] = normalizedWorkflows
	return out, nil
}

func preprocessWorkflow(wf map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(wf))
	for k, v := range wf {
		out[k] = v
	}

	name, _ := wf["name"].(string)

	nodesRaw, ok := wf["nodes"]
	if !ok {
		return out, nil
	}
	nodes, ok := nodesRaw.(map[string]any)
	if !ok {
		return nil, lexerr.New(lexerr.KindValidation, component, "workflow %q: nodes must be an object", name).WithWorkflow(name)
	}

	normalizedNodes := make(map[string]any, len(nodes))
	for nodeID, nodeRaw := range nodes {
		node, ok := nodeRaw.(map[string]any)
		if !ok {
			return nil, lexerr.New(lexerr.KindValidation, component, "node %q must be an object", nodeID).
				WithWorkflow(name).WithNode(nodeID)
		}
		normalizedNode, err := preprocessNode(node)
		if err != nil {
			return nil, lexerr.Wrap(lexerr.KindValidation, component, err, "node %q", nodeID).
				WithWorkflow(name).WithNode(nodeID)
		}
		normalizedNodes[nodeID] = normalizedNode
	}
	out["nodes"] = normalizedNodes
	return out, nil
}

func preprocessNode(node map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(node))
	for k, v := range node {
		out[k] = v
	}

	inputsRaw, ok := node["inputs"]
	if !ok {
		return out, nil
	}
	inputs, ok := inputsRaw.(map[string]any)
	if !ok {
		return nil, lexerr.New(lexerr.KindValidation, component, "inputs must be an object")
	}

	normalized := make(map[string]any, len(inputs))
	for argName, descriptor := range inputs {
		nd, err := normalizeDescriptor(descriptor)
		if err != nil {
			return nil, fmt.Errorf("input %q: %w", argName, err)
		}
		normalized[argName] = nd
	}
	out["inputs"] = normalized
	return out, nil
}

// normalizeDescriptor rewrites one surface-form descriptor into the
// canonical []any{tag int, payload} pair.
func normalizeDescriptor(raw any) ([]any, error) {
	switch v := raw.(type) {
	case []any:
		if len(v) != 2 {
			return nil, lexerr.New(lexerr.KindValidation, component,
				"input descriptor list must have exactly 2 elements, got %d (valid tags: %s)", len(v), validTagsList())
		}
		tag, err := normalizeTag(v[0])
		if err != nil {
			return nil, err
		}
		return []any{tag, v[1]}, nil

	case map[string]any:
		if len(v) != 1 {
			return nil, lexerr.New(lexerr.KindValidation, component,
				"input descriptor object must have exactly 1 key (valid tags: %s)", validTagsList())
		}
		for k, payload := range v {
			tag, err := normalizeTag(k)
			if err != nil {
				return nil, err
			}
			return []any{tag, payload}, nil
		}
		panic("unreachable")

	default:
		// Bare scalar/compound value: legacy literal shorthand.
		return []any{int(ir.TagLiteral), raw}, nil
	}
}

func normalizeTag(raw any) (int, error) {
	switch v := raw.(type) {
	case string:
		tag, ok := tagByName[v]
		if !ok {
			return 0, lexerr.New(lexerr.KindValidation, component,
				"unknown input tag %q (valid tags: %s)", v, validTagsList())
		}
		return tag, nil
	case float64:
		return normalizeIntTag(int(v))
	case int:
		return normalizeIntTag(v)
	default:
		return 0, lexerr.New(lexerr.KindValidation, component,
			"input tag must be a string or integer, got %T (valid tags: %s)", raw, validTagsList())
	}
}

func normalizeIntTag(v int) (int, error) {
	if v < int(ir.TagLiteral) || v > int(ir.TagWorkflowCall) {
		return 0, lexerr.New(lexerr.KindValidation, component,
			"unknown input tag %d (valid tags: %s)", v, validTagsList())
	}
	return v, nil
}
