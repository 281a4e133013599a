// Package ir defines the immutable program representation produced by
// lowering (spec.md §3): Program, Workflow, Block, Statement, and the
// tagged Input descriptor. Values here are built once by internal/lower
// and never mutated afterward.
package ir

// Tag identifies which of the five surface kinds an Input descriptor is.
// The integers match the canonical wire encoding from spec.md §6.
type Tag int

const (
	TagLiteral      Tag = 1
	TagNode         Tag = 2
	TagVariable     Tag = 3
	TagBranch       Tag = 4
	TagWorkflowCall Tag = 5
)

func (t Tag) String() string {
	switch t {
	case TagLiteral:
		return "literal"
	case TagNode:
		return "node"
	case TagVariable:
		return "variable"
	case TagBranch:
		return "branch"
	case TagWorkflowCall:
		return "workflow_call"
	default:
		return "unknown"
	}
}

// ValidTags lists every accepted surface tag name, in canonical order —
// used to build the enumerated-list error message spec.md §8 scenario 8
// requires.
var ValidTags = []string{"literal", "node", "variable", "branch", "workflow_call"}

// Input is a tagged reference to a value source. Exactly one payload
// field is meaningful, selected by Tag.
type Input struct {
	Tag Tag

	// Literal holds the constant value when Tag == TagLiteral.
	Literal any

	// Name holds the variable name (TagVariable) or workflow name
	// (TagWorkflowCall).
	Name string

	// NodeID holds the reporter node id when Tag == TagNode.
	NodeID string

	// Branch holds the lowered nested Block when Tag == TagBranch.
	Branch *Block
}

// Statement is a single executable unit: an opcode plus its named,
// already-tagged inputs. Statements never produce values on the stack
// except where the opcode's own contract says so (reporters).
type Statement struct {
	Opcode string
	Inputs map[string]*Input
	NodeID string
}

// Block is an ordered, linear sequence of statements — the lowered form
// of a node-graph walk (spec.md §4.1).
type Block struct {
	Statements []*Statement
}

// Workflow is one named entry in a Program.
type Workflow struct {
	Name    string
	Params  []string
	Locals  map[string]any
	Body    *Block
	Trigger map[string]any
}

// Program is the immutable bundle produced by the lowerer: an entry
// workflow, a set of callable externals, and a global reporter map.
type Program struct {
	Main      *Workflow
	Externals map[string]*Workflow
	Reporters map[string]*Statement
}

// Lookup resolves a workflow name against externals ∪ {main}, per the
// WORKFLOW_CALL resolution rule in spec.md §3.
func (p *Program) Lookup(name string) (*Workflow, bool) {
	if p.Main != nil && p.Main.Name == name {
		return p.Main, true
	}
	wf, ok := p.Externals[name]
	return wf, ok
}
