package workflow

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
)

const bundledDefault = `
name: default
description: bundled default workflow
variables:
  mode: explore
steps:
  - name: explore
    tools: [Read, Grep, Glob]
    transitions:
      - to: implement
        when:
          var: {name: task_claimed}
  - name: implement
    tools: [Read, Grep, Glob, Edit, Write, Bash]
    transitions:
      - to: complete
        when:
          var: {name: work_done}
  - name: complete
triggers:
  on_before_tool:
    - guard_edits
rules:
  guard_edits:
    condition:
      predicate:
        name: tool_in
        args:
          tools: [Edit, Write]
    actions:
      - action: block_tool
        args:
          message: bundled guard
`

const bundledRules = `
rules:
  shared_rule:
    actions:
      - action: set_variable
        args: {name: seen, value: true}
`

func bundledFS() fstest.MapFS {
	return fstest.MapFS{
		"default.yaml": {Data: []byte(bundledDefault)},
		"rules.yaml":   {Data: []byte(bundledRules)},
	}
}

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoad_BundledOnly(t *testing.T) {
	loader := NewLoader(Sources{Bundled: bundledFS()}, nil)
	snap, err := loader.Load()
	if err != nil {
		t.Fatal(err)
	}
	def, ok := snap.Workflow("default")
	if !ok {
		t.Fatal("expected bundled default workflow")
	}
	if def.Tier != TierBundled {
		t.Fatalf("expected bundled tier, got %q", def.Tier)
	}
	if def.InitialStep() != "explore" {
		t.Fatalf("unexpected initial step %q", def.InitialStep())
	}
	step, ok := def.StepNamed("complete")
	if !ok || len(step.Transitions) != 0 {
		t.Fatal("expected terminal complete step")
	}
	if _, ok := snap.tierRules[TierBundled]["shared_rule"]; !ok {
		t.Fatal("expected standalone rule file in bundled namespace")
	}
}

func TestLoad_ProjectTierReplacesWorkflow(t *testing.T) {
	project := t.TempDir()
	writeFile(t, project, "default.yaml", `
name: default
steps:
  - name: review
`)
	loader := NewLoader(Sources{Bundled: bundledFS(), ProjectDir: project}, nil)
	snap, err := loader.Load()
	if err != nil {
		t.Fatal(err)
	}
	def, _ := snap.Workflow("default")
	if def.Tier != TierProject {
		t.Fatalf("expected project tier to win, got %q", def.Tier)
	}
	if def.InitialStep() != "review" {
		t.Fatalf("expected project definition body, got step %q", def.InitialStep())
	}
}

func TestLoad_ImportCycleFails(t *testing.T) {
	project := t.TempDir()
	writeFile(t, project, "a.yaml", "imports: [b.yaml]\nrules:\n  ra: {actions: [noop]}\n")
	writeFile(t, project, "b.yaml", "imports: [a.yaml]\nrules:\n  rb: {actions: [noop]}\n")

	loader := NewLoader(Sources{ProjectDir: project}, nil)
	_, err := loader.Load()
	if err == nil {
		t.Fatal("expected circular import error")
	}
	if !strings.Contains(err.Error(), "circular import") {
		t.Fatalf("expected circular import in error, got %v", err)
	}
}

func TestLoad_MissingImportFails(t *testing.T) {
	project := t.TempDir()
	writeFile(t, project, "a.yaml", "imports: [nope.yaml]\n")
	loader := NewLoader(Sources{ProjectDir: project}, nil)
	if _, err := loader.Load(); err == nil {
		t.Fatal("expected missing import error")
	}
}

func TestLoad_InvalidConditionFailsAtLoadTime(t *testing.T) {
	project := t.TempDir()
	writeFile(t, project, "w.yaml", `
name: broken
rules:
  bad:
    condition:
      event: {field: tool_name, matches: "("}
    actions: [noop]
`)
	loader := NewLoader(Sources{ProjectDir: project}, nil)
	if _, err := loader.Load(); err == nil {
		t.Fatal("expected condition compile error at load")
	}
}

func TestLoad_TransitionToUnknownStepFails(t *testing.T) {
	project := t.TempDir()
	writeFile(t, project, "w.yaml", `
name: broken
steps:
  - name: a
    transitions:
      - to: nowhere
`)
	loader := NewLoader(Sources{ProjectDir: project}, nil)
	if _, err := loader.Load(); err == nil {
		t.Fatal("expected unknown transition target error")
	}
}

func TestRuleEntry_ScalarAndInlineForms(t *testing.T) {
	project := t.TempDir()
	writeFile(t, project, "w.yaml", `
name: forms
triggers:
  on_after_tool:
    - named_ref
    - name: inline_one
      actions:
        - action: set_variable
          args: {name: x, value: 1}
`)
	loader := NewLoader(Sources{ProjectDir: project}, nil)
	snap, err := loader.Load()
	if err != nil {
		t.Fatal(err)
	}
	def, _ := snap.Workflow("forms")
	entries := def.Triggers["on_after_tool"]
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Ref != "named_ref" || entries[0].Inline != nil {
		t.Fatalf("unexpected first entry %+v", entries[0])
	}
	if entries[1].Inline == nil || entries[1].Inline.Name != "inline_one" {
		t.Fatalf("unexpected second entry %+v", entries[1])
	}
	if entries[1].Inline.Actions[0].Name != "set_variable" {
		t.Fatalf("unexpected inline action %+v", entries[1].Inline.Actions)
	}
}

func TestStepAllowsTool(t *testing.T) {
	step := &Step{Name: "explore", Tools: []string{"Read", "Grep"}}
	if !step.AllowsTool("Read") {
		t.Fatal("expected Read allowed")
	}
	if step.AllowsTool("Edit") {
		t.Fatal("expected Edit blocked")
	}
	open := &Step{Name: "implement"}
	if !open.AllowsTool("Edit") {
		t.Fatal("expected empty capability set to allow everything")
	}
}
