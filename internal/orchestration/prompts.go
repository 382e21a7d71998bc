package orchestration

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dohr-michael/loom/internal/agents"
	"github.com/dohr-michael/loom/internal/flows"
	"github.com/dohr-michael/loom/internal/tasks"
)

// compileSystemPrompt assembles the per-turn system prompt: who the agent
// is, what flow it works in, which tasks are on its plate, and who else is
// around.
func compileSystemPrompt(flow *flows.Flow, agent *agents.Agent, work []*tasks.Task, others []*agents.Agent) string {
	var b strings.Builder

	b.WriteString("# Agent\n\n")
	fmt.Fprintf(&b, "You are %q (id %s).\n", agent.Name, agent.ID)
	if agent.Description != "" {
		b.WriteString(agent.Description + "\n")
	}
	if agent.Instructions != "" {
		b.WriteString("\n" + agent.Instructions + "\n")
	}

	b.WriteString("\n# Flow\n\n")
	if flow.Name != "" {
		fmt.Fprintf(&b, "Flow: %s\n", flow.Name)
	}
	if flow.Description != "" {
		b.WriteString(flow.Description + "\n")
	}

	b.WriteString("\n# Tasks\n\n")
	b.WriteString("Work on the tasks below. A task is only complete once its completion tool has been called; plain replies never complete a task.\n")
	for _, t := range work {
		fmt.Fprintf(&b, "\n## Task %s\n", t.String())
		fmt.Fprintf(&b, "Objective: %s\n", t.Objective)
		if t.Instructions != "" {
			fmt.Fprintf(&b, "Instructions: %s\n", t.Instructions)
		}
		// Task keys shadow flow keys for this task only, so each task
		// renders its own merged view instead of a flow-wide section.
		writeContext(&b, overlayContext(flow.Context(), t.Context))
		writeDependencyResults(&b, t)
		fmt.Fprintf(&b, "Result: %s\n", describeResult(t.Result))
		fmt.Fprintf(&b, "When done call %s; if it cannot be completed call %s.\n",
			tasks.SuccessToolName(t), tasks.FailureToolName(t))
	}

	if len(others) > 0 {
		b.WriteString("\n# Other agents\n\n")
		b.WriteString("Other agents work in this flow. Their messages appear in the conversation attributed to them.\n")
		for _, a := range others {
			fmt.Fprintf(&b, "- %q (id %s)", a.Name, a.ID)
			if a.Description != "" {
				b.WriteString(": " + a.Description)
			}
			b.WriteString("\n")
		}
	}

	return b.String()
}

// overlayContext merges the task context over the flow context. Task keys
// win on conflict.
func overlayContext(flowCtx, taskCtx map[string]any) map[string]any {
	merged := make(map[string]any, len(flowCtx)+len(taskCtx))
	for k, v := range flowCtx {
		merged[k] = v
	}
	for k, v := range taskCtx {
		merged[k] = v
	}
	return merged
}

// writeDependencyResults renders the outcomes of the task's dependencies.
// Every dependency of a ready task is terminal, so the working agent sees
// the values upstream tasks produced.
func writeDependencyResults(b *strings.Builder, t *tasks.Task) {
	deps := t.Dependencies()
	if len(deps) == 0 {
		return
	}
	b.WriteString("Dependency results:\n")
	for _, dep := range deps {
		switch {
		case dep.IsSuccessful():
			fmt.Fprintf(b, "- %s: %v\n", dep.String(), dep.ResultValue())
		case dep.IsFailed():
			fmt.Fprintf(b, "- %s failed: %s\n", dep.String(), dep.Error())
		case dep.IsSkipped():
			fmt.Fprintf(b, "- %s was skipped\n", dep.String())
		}
	}
}

func writeContext(b *strings.Builder, ctx map[string]any) {
	if len(ctx) == 0 {
		return
	}
	keys := make([]string, 0, len(ctx))
	for k := range ctx {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	b.WriteString("Context:\n")
	for _, k := range keys {
		fmt.Fprintf(b, "- %s: %v\n", k, ctx[k])
	}
}

// describeResult renders the result contract for the prompt.
func describeResult(spec *tasks.ResultSpec) string {
	switch spec.Type {
	case tasks.ResultNone:
		return "no result value; completing the task is the outcome"
	case tasks.ResultLabels:
		var choices []string
		for i, label := range spec.Labels {
			choices = append(choices, fmt.Sprintf("%d=%q", i, label))
		}
		return "exactly one of the labels, passed as its index: " + strings.Join(choices, ", ")
	case tasks.ResultJSON:
		var names []string
		for name := range spec.Properties {
			names = append(names, name)
		}
		sort.Strings(names)
		return "a JSON object with properties: " + strings.Join(names, ", ")
	default:
		return "free text"
	}
}
