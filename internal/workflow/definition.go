// Package workflow loads declarative flow definitions from JSONC or YAML
// files and materializes them into agents, tasks and a flow ready to run.
package workflow

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tailscale/hujson"
	"gopkg.in/yaml.v3"

	"github.com/dohr-michael/loom/internal/tasks"
)

// Definition is a declarative workflow file.
type Definition struct {
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description" yaml:"description"`
	Context     map[string]any `json:"context,omitempty" yaml:"context,omitempty"`
	// Tools names flow-wide tools from the registry.
	Tools []string `json:"tools,omitempty" yaml:"tools,omitempty"`
	// DefaultAgent names the agent used by tasks without their own.
	DefaultAgent string     `json:"default_agent,omitempty" yaml:"default_agent,omitempty"`
	Budget       BudgetDef  `json:"budget,omitempty" yaml:"budget,omitempty"`
	Agents       []AgentDef `json:"agents" yaml:"agents"`
	Tasks        []TaskDef  `json:"tasks" yaml:"tasks"`
}

// BudgetDef bounds a run.
type BudgetDef struct {
	MaxTurns    int `json:"max_turns,omitempty" yaml:"max_turns,omitempty"`
	MaxLLMCalls int `json:"max_llm_calls,omitempty" yaml:"max_llm_calls,omitempty"`
}

// AgentDef declares an agent.
type AgentDef struct {
	Name         string   `json:"name" yaml:"name"`
	Description  string   `json:"description,omitempty" yaml:"description,omitempty"`
	Instructions string   `json:"instructions,omitempty" yaml:"instructions,omitempty"`
	Model        string   `json:"model,omitempty" yaml:"model,omitempty"`
	Tools        []string `json:"tools,omitempty" yaml:"tools,omitempty"`
	Interactive  bool     `json:"interactive,omitempty" yaml:"interactive,omitempty"`
}

// TaskDef declares a task.
type TaskDef struct {
	ID               string         `json:"id" yaml:"id"`
	Name             string         `json:"name,omitempty" yaml:"name,omitempty"`
	Objective        string         `json:"objective" yaml:"objective"`
	Instructions     string         `json:"instructions,omitempty" yaml:"instructions,omitempty"`
	Context          map[string]any `json:"context,omitempty" yaml:"context,omitempty"`
	Agents           []string       `json:"agents,omitempty" yaml:"agents,omitempty"`
	CompletionAgents []string       `json:"completion_agents,omitempty" yaml:"completion_agents,omitempty"`
	Tools            []string       `json:"tools,omitempty" yaml:"tools,omitempty"`
	DependsOn        []string       `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	// Parent makes this task a subtask (and dependency) of another.
	Parent      string    `json:"parent,omitempty" yaml:"parent,omitempty"`
	Result      ResultDef `json:"result,omitempty" yaml:"result,omitempty"`
	MaxLLMCalls int       `json:"max_llm_calls,omitempty" yaml:"max_llm_calls,omitempty"`
}

// ResultDef declares a task's result contract.
type ResultDef struct {
	// Type is "text" (default), "labels", "json" or "none".
	Type       string                 `json:"type,omitempty" yaml:"type,omitempty"`
	Labels     []string               `json:"labels,omitempty" yaml:"labels,omitempty"`
	Properties map[string]PropertyDef `json:"properties,omitempty" yaml:"properties,omitempty"`
}

// PropertyDef declares one property of a JSON result.
type PropertyDef struct {
	Type        string `json:"type,omitempty" yaml:"type,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Required    bool   `json:"required,omitempty" yaml:"required,omitempty"`
}

// Load reads a workflow definition from disk. The format follows the file
// extension: .jsonc/.json or .yaml/.yml.
func Load(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow %s: %w", path, err)
	}

	var def Definition
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonc", ".json":
		standard, err := hujson.Standardize(data)
		if err != nil {
			return nil, fmt.Errorf("parse workflow %s: %w", path, err)
		}
		if err := json.Unmarshal(standard, &def); err != nil {
			return nil, fmt.Errorf("parse workflow %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &def); err != nil {
			return nil, fmt.Errorf("parse workflow %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("workflow %s: unsupported extension %q", path, filepath.Ext(path))
	}

	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("validate workflow %s: %w", path, err)
	}
	return &def, nil
}

// Validate checks the definition for consistency.
func (d *Definition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("workflow name is required")
	}
	if len(d.Tasks) == 0 {
		return fmt.Errorf("workflow %q: at least one task is required", d.Name)
	}

	agentNames := make(map[string]bool, len(d.Agents))
	for _, a := range d.Agents {
		if a.Name == "" {
			return fmt.Errorf("workflow %q: agent name is required", d.Name)
		}
		if agentNames[a.Name] {
			return fmt.Errorf("workflow %q: duplicate agent %q", d.Name, a.Name)
		}
		agentNames[a.Name] = true
	}

	if d.DefaultAgent != "" && !agentNames[d.DefaultAgent] {
		return fmt.Errorf("workflow %q: default agent %q is not declared", d.Name, d.DefaultAgent)
	}

	taskIDs := make(map[string]bool, len(d.Tasks))
	for _, t := range d.Tasks {
		if t.ID == "" {
			return fmt.Errorf("workflow %q: task id is required", d.Name)
		}
		if taskIDs[t.ID] {
			return fmt.Errorf("workflow %q: duplicate task id %q", d.Name, t.ID)
		}
		taskIDs[t.ID] = true
	}

	for _, t := range d.Tasks {
		if t.Objective == "" {
			return fmt.Errorf("workflow %q: task %q requires an objective", d.Name, t.ID)
		}
		for _, name := range t.Agents {
			if !agentNames[name] {
				return fmt.Errorf("workflow %q: task %q references unknown agent %q", d.Name, t.ID, name)
			}
		}
		for _, dep := range t.DependsOn {
			if !taskIDs[dep] {
				return fmt.Errorf("workflow %q: task %q depends on unknown task %q", d.Name, t.ID, dep)
			}
			if dep == t.ID {
				return fmt.Errorf("workflow %q: task %q cannot depend on itself", d.Name, t.ID)
			}
		}
		if t.Parent != "" {
			if !taskIDs[t.Parent] {
				return fmt.Errorf("workflow %q: task %q has unknown parent %q", d.Name, t.ID, t.Parent)
			}
			if t.Parent == t.ID {
				return fmt.Errorf("workflow %q: task %q cannot be its own parent", d.Name, t.ID)
			}
		}
		if _, err := tasks.ParseResultType(t.Result.Type); err != nil {
			return fmt.Errorf("workflow %q: task %q: %w", d.Name, t.ID, err)
		}
		if t.Result.Type == string(tasks.ResultLabels) && len(t.Result.Labels) == 0 {
			return fmt.Errorf("workflow %q: task %q: labels result requires labels", d.Name, t.ID)
		}
	}

	return nil
}
