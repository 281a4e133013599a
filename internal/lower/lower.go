// Package lower implements the Parser/Lowerer (spec.md §4.1): it turns a
// preprocessed node-graph dict into an immutable ir.Program — a linear
// Block per workflow plus a single, program-global reporter map.
//
// Node ids are assumed unique across the whole program (main plus every
// external), matching the "process-global-per-program" reporter map
// spec.md §3 describes; the ingestion format never qualifies a NODE(id)
// reference with its owning workflow.
package lower

import (
	"encoding/json"
	"fmt"

	"github.com/lyzr/lexflow/internal/ir"
	"github.com/lyzr/lexflow/internal/lexerr"
	"github.com/lyzr/lexflow/internal/preprocess"
)

const component = "lower"

const workflowStartOpcode = "workflow_start"

// rawProgram mirrors the ingestion format from spec.md §6, decoded from
// an already-preprocessed dict.
type rawProgram struct {
	Workflows []rawWorkflow `json:"workflows"`
}

type rawWorkflow struct {
	Name      string             `json:"name"`
	Interface rawInterface       `json:"interface"`
	Variables map[string]any     `json:"variables"`
	Nodes     map[string]rawNode `json:"nodes"`
	Trigger   map[string]any     `json:"trigger,omitempty"`
}

type rawInterface struct {
	Inputs  []string `json:"inputs"`
	Outputs []string `json:"outputs"`
}

type rawNode struct {
	Opcode     string                     `json:"opcode"`
	Next       *string                    `json:"next"`
	IsReporter bool                       `json:"isReporter"`
	Inputs     map[string]json.RawMessage `json:"inputs"`
}

// Load preprocesses raw and lowers it into an immutable Program. The
// workflow named entryName becomes Main and every other workflow becomes
// an external; a program with exactly one workflow uses it as Main even
// when its name differs from entryName.
func Load(raw map[string]any, entryName string) (*ir.Program, error) {
	normalized, err := preprocess.Preprocess(raw)
	if err != nil {
		return nil, err
	}

	jsonBytes, err := json.Marshal(normalized)
	if err != nil {
		return nil, lexerr.Wrap(lexerr.KindValidation, component, err, "re-marshal preprocessed program")
	}

	var rp rawProgram
	if err := json.Unmarshal(jsonBytes, &rp); err != nil {
		return nil, lexerr.Wrap(lexerr.KindJSONParse, component, err, "decode program")
	}
	if len(rp.Workflows) == 0 {
		return nil, lexerr.New(lexerr.KindValidation, component, "program has no workflows")
	}

	program := &ir.Program{
		Externals: make(map[string]*ir.Workflow, len(rp.Workflows)),
		Reporters: make(map[string]*ir.Statement),
	}

	for _, rw := range rp.Workflows {
		wf, err := lowerWorkflow(&rw, program.Reporters)
		if err != nil {
			return nil, err
		}
		if rw.Name == entryName {
			program.Main = wf
		} else {
			program.Externals[rw.Name] = wf
		}
	}

	if program.Main == nil {
		// Fall back to a single-workflow program: the only workflow is main.
		if len(rp.Workflows) == 1 {
			for name, wf := range program.Externals {
				program.Main = wf
				delete(program.Externals, name)
			}
		} else {
			return nil, lexerr.New(lexerr.KindValidation, component, "entry workflow %q not found", entryName)
		}
	}

	if err := validateWorkflowCalls(program); err != nil {
		return nil, err
	}

	return program, nil
}

// lowerWorkflow lowers one workflow's node graph into an ir.Workflow and
// merges any reporter nodes it discovers into reporters (shared across
// the whole program).
func lowerWorkflow(rw *rawWorkflow, reporters map[string]*ir.Statement) (*ir.Workflow, error) {
	headID, err := findHead(rw)
	if err != nil {
		return nil, lexerr.Wrap(lexerr.KindValidation, component, err, "workflow %q", rw.Name).WithWorkflow(rw.Name)
	}

	emitted := make(map[string]bool)
	nodeRefs := make(map[string]bool)

	body, err := lowerChain(rw, headID, emitted, nodeRefs, reporters)
	if err != nil {
		return nil, lexerr.Wrap(lexerr.KindValidation, component, err, "workflow %q", rw.Name).WithWorkflow(rw.Name)
	}
	if len(body.Statements) == 0 || body.Statements[0].Opcode != workflowStartOpcode {
		return nil, lexerr.New(lexerr.KindValidation, component,
			"workflow %q: body must start with %s", rw.Name, workflowStartOpcode).WithWorkflow(rw.Name)
	}

	// Any node referenced only via NODE(id) — never reached by a next-chain
	// walk — is implicitly a reporter (spec.md §4.1).
	for id := range nodeRefs {
		if emitted[id] {
			continue
		}
		if _, ok := reporters[id]; ok {
			continue
		}
		node, ok := rw.Nodes[id]
		if !ok {
			return nil, lexerr.New(lexerr.KindValidation, component,
				"workflow %q: NODE(%s) refers to a non-existent node", rw.Name, id).WithWorkflow(rw.Name).WithNode(id)
		}
		stmt, err := lowerReporterStatement(rw, id, &node, nodeRefs)
		if err != nil {
			return nil, err
		}
		reporters[id] = stmt
	}

	locals := rw.Variables
	if locals == nil {
		locals = make(map[string]any)
	}

	return &ir.Workflow{
		Name:    rw.Name,
		Params:  rw.Interface.Inputs,
		Locals:  locals,
		Body:    body,
		Trigger: rw.Trigger,
	}, nil
}

func findHead(rw *rawWorkflow) (string, error) {
	var head string
	count := 0
	for id, node := range rw.Nodes {
		if node.Opcode == workflowStartOpcode {
			head = id
			count++
		}
	}
	switch count {
	case 0:
		return "", fmt.Errorf("no %s node found", workflowStartOpcode)
	case 1:
		return head, nil
	default:
		return "", fmt.Errorf("multiple %s nodes found (%d)", workflowStartOpcode, count)
	}
}

// lowerChain walks the next-chain starting at startID, emitting a
// Statement per non-reporter node and recording reporter-only nodes
// directly into reporters.
func lowerChain(
	rw *rawWorkflow,
	startID string,
	emitted map[string]bool,
	nodeRefs map[string]bool,
	reporters map[string]*ir.Statement,
) (*ir.Block, error) {
	block := &ir.Block{}
	currentID := &startID

	for currentID != nil {
		id := *currentID
		node, ok := rw.Nodes[id]
		if !ok {
			return nil, fmt.Errorf("dangling next reference to non-existent node %q", id)
		}

		if node.IsReporter {
			if _, ok := reporters[id]; !ok {
				stmt, err := lowerReporterStatement(rw, id, &node, nodeRefs)
				if err != nil {
					return nil, err
				}
				reporters[id] = stmt
			}
			currentID = node.Next
			continue
		}

		inputs, err := lowerInputs(rw, node.Inputs, nodeRefs, reporters)
		if err != nil {
			return nil, fmt.Errorf("node %q: %w", id, err)
		}

		emitted[id] = true
		block.Statements = append(block.Statements, &ir.Statement{
			Opcode: node.Opcode,
			Inputs: inputs,
			NodeID: id,
		})

		currentID = node.Next
	}

	return block, nil
}

func lowerReporterStatement(rw *rawWorkflow, id string, node *rawNode, nodeRefs map[string]bool) (*ir.Statement, error) {
	inputs, err := lowerInputs(rw, node.Inputs, nodeRefs, nil)
	if err != nil {
		return nil, fmt.Errorf("reporter node %q: %w", id, err)
	}
	return &ir.Statement{Opcode: node.Opcode, Inputs: inputs, NodeID: id}, nil
}

// lowerInputs decodes a node's already-normalized inputs map into
// ir.Input descriptors. reporters is nil while lowering a reporter node's
// own inputs (BRANCH descriptors are not expected there, but are handled
// identically if present).
func lowerInputs(
	rw *rawWorkflow,
	raw map[string]json.RawMessage,
	nodeRefs map[string]bool,
	reporters map[string]*ir.Statement,
) (map[string]*ir.Input, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[string]*ir.Input, len(raw))
	for name, msg := range raw {
		var pair []json.RawMessage
		if err := json.Unmarshal(msg, &pair); err != nil || len(pair) != 2 {
			return nil, fmt.Errorf("input %q: expected normalized [tag, payload] pair", name)
		}
		var tag int
		if err := json.Unmarshal(pair[0], &tag); err != nil {
			return nil, fmt.Errorf("input %q: invalid tag: %w", name, err)
		}

		input, err := decodeInput(rw, ir.Tag(tag), pair[1], nodeRefs, reporters)
		if err != nil {
			return nil, fmt.Errorf("input %q: %w", name, err)
		}
		out[name] = input
	}
	return out, nil
}

func decodeInput(
	rw *rawWorkflow,
	tag ir.Tag,
	payload json.RawMessage,
	nodeRefs map[string]bool,
	reporters map[string]*ir.Statement,
) (*ir.Input, error) {
	switch tag {
	case ir.TagLiteral:
		var v any
		if err := json.Unmarshal(payload, &v); err != nil {
			return nil, fmt.Errorf("literal payload: %w", err)
		}
		return &ir.Input{Tag: ir.TagLiteral, Literal: v}, nil

	case ir.TagVariable:
		var name string
		if err := json.Unmarshal(payload, &name); err != nil {
			return nil, fmt.Errorf("variable payload must be a string: %w", err)
		}
		return &ir.Input{Tag: ir.TagVariable, Name: name}, nil

	case ir.TagWorkflowCall:
		var name string
		if err := json.Unmarshal(payload, &name); err != nil {
			return nil, fmt.Errorf("workflow_call payload must be a string: %w", err)
		}
		return &ir.Input{Tag: ir.TagWorkflowCall, Name: name}, nil

	case ir.TagNode:
		var id string
		if err := json.Unmarshal(payload, &id); err != nil {
			return nil, fmt.Errorf("node payload must be a string: %w", err)
		}
		if nodeRefs != nil {
			nodeRefs[id] = true
		}
		return &ir.Input{Tag: ir.TagNode, NodeID: id}, nil

	case ir.TagBranch:
		var targetID string
		if err := json.Unmarshal(payload, &targetID); err != nil {
			return nil, fmt.Errorf("branch payload must be a string: %w", err)
		}
		if reporters == nil {
			return nil, fmt.Errorf("branch descriptor not valid on a reporter node")
		}
		emitted := make(map[string]bool)
		block, err := lowerChain(rw, targetID, emitted, nodeRefs, reporters)
		if err != nil {
			return nil, fmt.Errorf("branch target %q: %w", targetID, err)
		}
		return &ir.Input{Tag: ir.TagBranch, Branch: block}, nil

	default:
		return nil, fmt.Errorf("unknown tag %d", tag)
	}
}

// validateWorkflowCalls ensures every WORKFLOW_CALL descriptor resolves
// against externals ∪ {main}.
func validateWorkflowCalls(program *ir.Program) error {
	var visitBlock func(wfName string, block *ir.Block) error
	visitBlock = func(wfName string, block *ir.Block) error {
		if block == nil {
			return nil
		}
		for _, stmt := range block.Statements {
			for _, in := range stmt.Inputs {
				switch in.Tag {
				case ir.TagWorkflowCall:
					if _, ok := program.Lookup(in.Name); !ok {
						return lexerr.New(lexerr.KindWorkflowNotFound, component,
							"workflow_call references unknown workflow %q", in.Name).
							WithWorkflow(wfName).WithNode(stmt.NodeID)
					}
				case ir.TagBranch:
					if err := visitBlock(wfName, in.Branch); err != nil {
						return err
					}
				}
			}
		}
		return nil
	}

	workflows := map[string]*ir.Workflow{}
	if program.Main != nil {
		workflows[program.Main.Name] = program.Main
	}
	for name, wf := range program.Externals {
		workflows[name] = wf
	}
	for name, wf := range workflows {
		if err := visitBlock(name, wf.Body); err != nil {
			return err
		}
	}
	for _, stmt := range program.Reporters {
		for _, in := range stmt.Inputs {
			if in.Tag == ir.TagWorkflowCall {
				if _, ok := program.Lookup(in.Name); !ok {
					return lexerr.New(lexerr.KindWorkflowNotFound, component,
						"workflow_call references unknown workflow %q", in.Name).WithNode(stmt.NodeID)
				}
			}
		}
	}
	return nil
}
