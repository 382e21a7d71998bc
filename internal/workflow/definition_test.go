package workflow

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dohr-michael/loom/internal/tools"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const sampleJSONC = `{
	// research pipeline
	"name": "research",
	"description": "Research a topic and summarize it.",
	"context": {"topic": "go generics"},
	"default_agent": "researcher",
	"budget": {"max_turns": 20},
	"agents": [
		{"name": "researcher", "instructions": "Dig deep."},
		{"name": "editor", "model": "main"},
	],
	"tasks": [
		{"id": "gather", "objective": "Collect sources.", "agents": ["researcher"]},
		{
			"id": "summarize",
			"objective": "Summarize the findings.",
			"agents": ["editor"],
			"depends_on": ["gather"],
			"result": {"type": "labels", "labels": ["ship", "hold"]},
		},
	],
}`

const sampleYAML = `name: triage
description: Route a ticket.
agents:
  - name: triager
tasks:
  - id: classify
    objective: Classify the ticket.
    agents: [triager]
    result:
      type: json
      properties:
        severity:
          type: integer
          required: true
        summary:
          type: string
`

func TestLoad_JSONC(t *testing.T) {
	def, err := Load(writeFile(t, "research.jsonc", sampleJSONC))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if def.Name != "research" || len(def.Agents) != 2 || len(def.Tasks) != 2 {
		t.Errorf("unexpected definition: %+v", def)
	}
	if def.Budget.MaxTurns != 20 {
		t.Errorf("unexpected budget: %+v", def.Budget)
	}
	if def.Tasks[1].Result.Type != "labels" {
		t.Errorf("unexpected result def: %+v", def.Tasks[1].Result)
	}
}

func TestLoad_YAML(t *testing.T) {
	def, err := Load(writeFile(t, "triage.yaml", sampleYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if def.Name != "triage" {
		t.Errorf("unexpected name: %q", def.Name)
	}
	prop := def.Tasks[0].Result.Properties["severity"]
	if prop.Type != "integer" || !prop.Required {
		t.Errorf("unexpected property: %+v", prop)
	}
}

func TestLoad_UnsupportedExtension(t *testing.T) {
	if _, err := Load(writeFile(t, "bad.toml", "name = 'x'")); err == nil {
		t.Fatal("expected error for unsupported extension")
	}
}

func TestValidate_Failures(t *testing.T) {
	base := func() Definition {
		return Definition{
			Name:   "w",
			Agents: []AgentDef{{Name: "a"}},
			Tasks:  []TaskDef{{ID: "t1", Objective: "do it", Agents: []string{"a"}}},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Definition)
		want   string
	}{
		{"missing name", func(d *Definition) { d.Name = "" }, "name is required"},
		{"no tasks", func(d *Definition) { d.Tasks = nil }, "at least one task"},
		{"duplicate agent", func(d *Definition) { d.Agents = append(d.Agents, AgentDef{Name: "a"}) }, "duplicate agent"},
		{"unknown default agent", func(d *Definition) { d.DefaultAgent = "ghost" }, "not declared"},
		{"duplicate task id", func(d *Definition) {
			d.Tasks = append(d.Tasks, TaskDef{ID: "t1", Objective: "again"})
		}, "duplicate task id"},
		{"missing objective", func(d *Definition) { d.Tasks[0].Objective = "" }, "requires an objective"},
		{"unknown agent ref", func(d *Definition) { d.Tasks[0].Agents = []string{"ghost"} }, "unknown agent"},
		{"unknown dep", func(d *Definition) { d.Tasks[0].DependsOn = []string{"ghost"} }, "unknown task"},
		{"self dep", func(d *Definition) { d.Tasks[0].DependsOn = []string{"t1"} }, "cannot depend on itself"},
		{"unknown parent", func(d *Definition) { d.Tasks[0].Parent = "ghost" }, "unknown parent"},
		{"self parent", func(d *Definition) { d.Tasks[0].Parent = "t1" }, "own parent"},
		{"bad result type", func(d *Definition) { d.Tasks[0].Result.Type = "xml" }, "unknown result type"},
		{"labels without labels", func(d *Definition) { d.Tasks[0].Result.Type = "labels" }, "requires labels"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := base()
			tt.mutate(&def)
			err := def.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestBuild(t *testing.T) {
	def, err := Load(writeFile(t, "research.jsonc", sampleJSONC))
	if err != nil {
		t.Fatal(err)
	}

	run, err := def.Build(context.Background(), tools.NewRegistry(), BuildOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if run.Flow.Name != "research" || run.Flow.Context()["topic"] != "go generics" {
		t.Errorf("flow not materialized: %+v", run.Flow)
	}
	if run.Flow.DefaultAgent == nil || run.Flow.DefaultAgent.Name != "researcher" {
		t.Error("default agent not wired")
	}
	if len(run.Roots) != 2 {
		t.Fatalf("expected 2 root tasks, got %d", len(run.Roots))
	}

	gather := run.Tasks["gather"]
	summarize := run.Tasks["summarize"]
	if len(summarize.Dependencies()) != 1 || summarize.Dependencies()[0] != gather {
		t.Error("dependency not wired")
	}
	if summarize.Agents[0].Name != "editor" {
		t.Error("task agents not wired")
	}
}

func TestBuild_SubtaskParent(t *testing.T) {
	def := Definition{
		Name:   "nested",
		Agents: []AgentDef{{Name: "a"}},
		Tasks: []TaskDef{
			{ID: "parent", Objective: "whole", Agents: []string{"a"}},
			{ID: "child", Objective: "part", Agents: []string{"a"}, Parent: "parent"},
		},
	}
	if err := def.Validate(); err != nil {
		t.Fatal(err)
	}

	run, err := def.Build(context.Background(), tools.NewRegistry(), BuildOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(run.Roots) != 1 || run.Roots[0] != run.Tasks["parent"] {
		t.Errorf("child must not be a root: %v", run.Roots)
	}
	if run.Tasks["child"].Parent() != run.Tasks["parent"] {
		t.Error("parent link not wired")
	}
}
