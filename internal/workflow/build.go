package workflow

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/schema"

	"github.com/dohr-michael/loom/internal/agents"
	"github.com/dohr-michael/loom/internal/flows"
	"github.com/dohr-michael/loom/internal/tasks"
	"github.com/dohr-michael/loom/internal/tools"
)

// BuildOptions parametrize materialization.
type BuildOptions struct {
	// ThreadID reuses an existing thread. Empty means a fresh one.
	ThreadID string
	// Store persists the flow's history. Optional.
	Store flows.HistoryStore
}

// Run is a materialized workflow.
type Run struct {
	Flow *flows.Flow
	// Roots are the tasks without a parent, in declaration order.
	Roots  []*tasks.Task
	Tasks  map[string]*tasks.Task
	Agents map[string]*agents.Agent
	Budget BudgetDef
}

// Build materializes the definition: agents first, then tasks wired with
// dependencies and subtask links, then the flow. Giving both a ThreadID and
// a Store reopens that thread with its prior history.
func (d *Definition) Build(ctx context.Context, reg *tools.Registry, opts BuildOptions) (*Run, error) {
	builtAgents := make(map[string]*agents.Agent, len(d.Agents))
	for _, def := range d.Agents {
		a, err := agents.New(agents.Config{
			Name:         def.Name,
			Description:  def.Description,
			Instructions: def.Instructions,
			Model:        def.Model,
			Tools:        reg.ToolsByNames(def.Tools),
			Interactive:  def.Interactive,
		})
		if err != nil {
			return nil, fmt.Errorf("agent %q: %w", def.Name, err)
		}
		builtAgents[def.Name] = a
	}

	builtTasks := make(map[string]*tasks.Task, len(d.Tasks))
	var order []*tasks.Task
	for _, def := range d.Tasks {
		spec, err := buildResultSpec(def.Result)
		if err != nil {
			return nil, fmt.Errorf("task %q: %w", def.ID, err)
		}

		var assigned []*agents.Agent
		for _, name := range def.Agents {
			assigned = append(assigned, builtAgents[name])
		}

		t, err := tasks.New(tasks.Config{
			Name:             def.Name,
			Objective:        def.Objective,
			Instructions:     def.Instructions,
			Context:          def.Context,
			Agents:           assigned,
			CompletionAgents: def.CompletionAgents,
			Tools:            reg.ToolsByNames(def.Tools),
			Result:           spec,
			MaxLLMCalls:      def.MaxLLMCalls,
		})
		if err != nil {
			return nil, fmt.Errorf("task %q: %w", def.ID, err)
		}
		builtTasks[def.ID] = t
		order = append(order, t)
	}

	var roots []*tasks.Task
	for i, def := range d.Tasks {
		t := order[i]
		for _, dep := range def.DependsOn {
			t.DependsOn(builtTasks[dep])
		}
		if def.Parent != "" {
			builtTasks[def.Parent].AddSubtask(t)
		} else {
			roots = append(roots, t)
		}
	}

	flowCfg := flows.Config{
		ThreadID:     opts.ThreadID,
		Name:         d.Name,
		Description:  d.Description,
		Context:      d.Context,
		Tools:        reg.ToolsByNames(d.Tools),
		DefaultAgent: builtAgents[d.DefaultAgent],
		Store:        opts.Store,
	}

	var flow *flows.Flow
	if opts.ThreadID != "" && opts.Store != nil {
		var err error
		if flow, err = flows.Open(ctx, opts.Store, opts.ThreadID, flowCfg); err != nil {
			return nil, err
		}
	} else {
		flow = flows.New(flowCfg)
	}

	return &Run{
		Flow:   flow,
		Roots:  roots,
		Tasks:  builtTasks,
		Agents: builtAgents,
		Budget: d.Budget,
	}, nil
}

func buildResultSpec(def ResultDef) (*tasks.ResultSpec, error) {
	typ, err := tasks.ParseResultType(def.Type)
	if err != nil {
		return nil, err
	}

	switch typ {
	case tasks.ResultText:
		return tasks.TextResult(), nil
	case tasks.ResultNone:
		return tasks.NoResult(), nil
	case tasks.ResultLabels:
		return tasks.LabelsResult(def.Labels...), nil
	case tasks.ResultJSON:
		props := make(map[string]*schema.ParameterInfo, len(def.Properties))
		for name, p := range def.Properties {
			dataType, err := parseDataType(p.Type)
			if err != nil {
				return nil, fmt.Errorf("property %q: %w", name, err)
			}
			props[name] = &schema.ParameterInfo{
				Type:     dataType,
				Desc:     p.Description,
				Required: p.Required,
			}
		}
		return tasks.JSONResult(props), nil
	default:
		return nil, fmt.Errorf("unknown result type %q", def.Type)
	}
}

func parseDataType(s string) (schema.DataType, error) {
	switch s {
	case "", "string":
		return schema.String, nil
	case "integer":
		return schema.Integer, nil
	case "number":
		return schema.Number, nil
	case "boolean":
		return schema.Boolean, nil
	case "object":
		return schema.Object, nil
	case "array":
		return schema.Array, nil
	default:
		return "", fmt.Errorf("unknown property type %q", s)
	}
}
