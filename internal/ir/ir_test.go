package ir

import "testing"

func TestTagString(t *testing.T) {
	cases := map[Tag]string{
		TagLiteral:      "literal",
		TagNode:         "node",
		TagVariable:     "variable",
		TagBranch:       "branch",
		TagWorkflowCall: "workflow_call",
		Tag(99):         "unknown",
	}
	for tag, want := range cases {
		if got := tag.String(); got != want {
			t.Errorf("Tag(%d).String() = %q, want %q", tag, got, want)
		}
	}
}

func TestValidTagsMatchesTagString(t *testing.T) {
	for i, name := range ValidTags {
		if got := Tag(i + 1).String(); got != name {
			t.Errorf("ValidTags[%d] = %q, but Tag(%d).String() = %q", i, name, i+1, got)
		}
	}
}

func TestProgramLookup(t *testing.T) {
	main := &Workflow{Name: "main"}
	helper := &Workflow{Name: "helper"}
	p := &Program{Main: main, Externals: map[string]*Workflow{"helper": helper}}

	if wf, ok := p.Lookup("main"); !ok || wf != main {
		t.Fatalf("Lookup(main) = %v, %v", wf, ok)
	}
	if wf, ok := p.Lookup("helper"); !ok || wf != helper {
		t.Fatalf("Lookup(helper) = %v, %v", wf, ok)
	}
	if _, ok := p.Lookup("missing"); ok {
		t.Fatal("Lookup(missing) should not resolve")
	}
}
