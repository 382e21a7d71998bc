package orchestration

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/dohr-michael/loom/internal/agents"
	"github.com/dohr-michael/loom/internal/events"
	"github.com/dohr-michael/loom/internal/models"
	"github.com/dohr-michael/loom/internal/tasks"
)

// maxHistoryMessages bounds how much history is replayed into one LLM call.
const maxHistoryMessages = 100

// completionGate ties a completion tool to its task and records whether the
// acting agent may use it this turn.
type completionGate struct {
	tool     tool.InvokableTool
	task     *tasks.Task
	eligible bool
}

// runTurn executes one bounded action: a single model call plus the tool
// calls it requested, processed in order.
func (o *Orchestrator) runTurn(ctx context.Context, task *tasks.Task, agent *agents.Agent, ready []*tasks.Task) error {
	o.record(ctx, events.SourceOrchestrator, events.TurnStartPayload{
		Turn:   o.turns,
		Agent:  agent.ID,
		TaskID: task.ID,
	})

	work := o.workTasks(task, agent, ready)
	gates := o.completionGates(agent, ready, work)
	surface, infos := o.toolSurface(agent, work, gates)

	msgs := []*schema.Message{
		schema.SystemMessage(compileSystemPrompt(o.flow, agent, work, o.otherAgents(agent))),
	}
	msgs = append(msgs, compileMessages(o.flow.Events(), agent.ID)...)

	resp, err := o.generate(ctx, agent, msgs, infos)
	if err != nil {
		return err
	}

	o.record(ctx, events.SourceAgent, events.AgentMessagePayload{
		AgentID:   agent.ID,
		AgentName: agent.Name,
		Content:   resp.Content,
		ToolCalls: toCallRefs(resp.ToolCalls),
	})

	for _, call := range resp.ToolCalls {
		o.processToolCall(ctx, agent, call, surface, gates)
	}

	if task.IsIncomplete() && task.CountLLMCall() {
		if err := task.MarkFailed("max LLM calls reached"); err == nil {
			o.record(ctx, events.SourceOrchestrator, events.TaskFailedPayload{
				TaskID: task.ID,
				Error:  "max LLM calls reached",
			})
		}
	}

	o.record(ctx, events.SourceOrchestrator, events.TurnEndPayload{
		Turn:  o.turns,
		Agent: agent.ID,
	})
	return nil
}

// workTasks returns the ready tasks this agent should be shown: the turn's
// task plus any other ready task it is assigned to.
func (o *Orchestrator) workTasks(primary *tasks.Task, agent *agents.Agent, ready []*tasks.Task) []*tasks.Task {
	work := []*tasks.Task{primary}
	for _, t := range ready {
		if t == primary {
			continue
		}
		if assignedTo(t, agent) {
			work = append(work, t)
		}
	}
	return work
}

// completionGates builds one gate per completion tool of every ready task.
// A gate is eligible when the agent is working the task this turn and the
// task's completion-agent list (if any) names it.
func (o *Orchestrator) completionGates(agent *agents.Agent, ready, work []*tasks.Task) map[string]completionGate {
	working := make(map[string]bool, len(work))
	for _, t := range work {
		working[t.ID] = true
	}

	gates := make(map[string]completionGate, len(ready)*2)
	for _, t := range ready {
		eligible := working[t.ID] && completionAllowed(t, agent)
		gates[tasks.SuccessToolName(t)] = completionGate{tool: tasks.SuccessTool(t), task: t, eligible: eligible}
		gates[tasks.FailureToolName(t)] = completionGate{tool: tasks.FailureTool(t), task: t, eligible: eligible}
	}
	return gates
}

func completionAllowed(t *tasks.Task, agent *agents.Agent) bool {
	if len(t.CompletionAgents) == 0 {
		return true
	}
	for _, name := range t.CompletionAgents {
		if name == agent.Name {
			return true
		}
	}
	return false
}

func assignedTo(t *tasks.Task, agent *agents.Agent) bool {
	for _, a := range t.Agents {
		if a.ID == agent.ID {
			return true
		}
	}
	return false
}

// toolSurface collects the tools offered this turn: task tools, agent
// tools, flow tools, eligible completion tools, and user input for
// interactive agents. First registration of a name wins.
func (o *Orchestrator) toolSurface(agent *agents.Agent, work []*tasks.Task, gates map[string]completionGate) (map[string]tool.InvokableTool, []*schema.ToolInfo) {
	surface := make(map[string]tool.InvokableTool)
	var infos []*schema.ToolInfo

	add := func(t tool.InvokableTool) {
		info, err := t.Info(context.Background())
		if err != nil {
			slog.Warn("tool info unavailable", "error", err)
			return
		}
		if _, dup := surface[info.Name]; dup {
			return
		}
		surface[info.Name] = t
		infos = append(infos, info)
	}

	for _, t := range work {
		for _, tl := range t.Tools {
			add(tl)
		}
	}
	for _, tl := range agent.Tools {
		add(tl)
	}
	for _, tl := range o.flow.Tools {
		add(tl)
	}
	for _, t := range work {
		for _, name := range []string{tasks.SuccessToolName(t), tasks.FailureToolName(t)} {
			if gate, ok := gates[name]; ok && gate.eligible {
				add(gate.tool)
			}
		}
	}
	if agent.Interactive && o.userInput != nil {
		add(o.userInput)
	}

	return surface, infos
}

// otherAgents lists every agent assigned anywhere in the graph except the
// acting one.
func (o *Orchestrator) otherAgents(acting *agents.Agent) []*agents.Agent {
	seen := map[string]bool{acting.ID: true}
	var others []*agents.Agent

	collect := func(list []*agents.Agent) {
		for _, a := range list {
			if a != nil && !seen[a.ID] {
				seen[a.ID] = true
				others = append(others, a)
			}
		}
	}
	for _, t := range o.graph.Tasks() {
		collect(t.Agents)
	}
	if o.flow.DefaultAgent != nil {
		collect([]*agents.Agent{o.flow.DefaultAgent})
	}
	if o.defaultAgent != nil {
		collect([]*agents.Agent{o.defaultAgent})
	}
	return others
}

// generate performs the model call with full accounting.
func (o *Orchestrator) generate(ctx context.Context, agent *agents.Agent, msgs []*schema.Message, infos []*schema.ToolInfo) (*schema.Message, error) {
	m, err := o.model(ctx, agent)
	if err != nil {
		return nil, err
	}
	if len(infos) > 0 {
		if m, err = m.WithTools(infos); err != nil {
			return nil, fmt.Errorf("bind tools: %w", err)
		}
	}

	o.record(ctx, events.SourceOrchestrator, events.LLMCallPayload{
		Phase:        "request",
		Model:        agent.Model,
		Agent:        agent.ID,
		MessageCount: len(msgs),
	})

	start := time.Now()
	resp, err := m.Generate(ctx, msgs)
	o.llmCalls++

	response := events.LLMCallPayload{
		Phase:    "response",
		Model:    agent.Model,
		Agent:    agent.ID,
		Duration: time.Since(start),
	}
	if err != nil {
		err = models.HandleError(err)
		response.Error = err.Error()
		o.record(ctx, events.SourceOrchestrator, response)
		return nil, fmt.Errorf("agent %s: %w", agent.Name, err)
	}
	if resp.ResponseMeta != nil && resp.ResponseMeta.Usage != nil {
		response.TokensInput = resp.ResponseMeta.Usage.PromptTokens
		response.TokensOutput = resp.ResponseMeta.Usage.CompletionTokens
	}
	o.record(ctx, events.SourceOrchestrator, response)
	return resp, nil
}

// processToolCall executes one requested tool call and records its outcome.
// Completion tools pass the eligibility gate first; ordinary tool errors
// come back to the agent as textual results so it can adjust and retry.
func (o *Orchestrator) processToolCall(ctx context.Context, agent *agents.Agent, call schema.ToolCall, surface map[string]tool.InvokableTool, gates map[string]completionGate) {
	name := call.Function.Name
	o.record(ctx, events.SourceAgent, events.ToolCallPayload{
		AgentID:   agent.ID,
		CallID:    call.ID,
		Tool:      name,
		Arguments: call.Function.Arguments,
	})

	if gate, isCompletion := gates[name]; isCompletion {
		if !gate.eligible {
			reason := fmt.Sprintf("agent %q may not complete task %s", agent.Name, gate.task.ID)
			o.record(ctx, events.SourceOrchestrator, events.PolicyViolationPayload{
				AgentID: agent.ID,
				TaskID:  gate.task.ID,
				Tool:    name,
				Reason:  reason,
			})
			o.recordToolResult(ctx, agent, call, "[POLICY] "+reason+". The task status is unchanged.", true)
			return
		}

		out, err := gate.tool.InvokableRun(ctx, call.Function.Arguments)
		if err != nil {
			o.recordToolResult(ctx, agent, call, formatToolError(name, err), true)
		} else {
			o.recordToolResult(ctx, agent, call, out, false)
		}
		o.recordTaskOutcome(ctx, gate.task)
		return
	}

	t, ok := surface[name]
	if !ok {
		o.recordToolResult(ctx, agent, call, formatToolError(name, fmt.Errorf("unknown tool")), true)
		return
	}

	out, err := t.InvokableRun(ctx, call.Function.Arguments)
	if err != nil {
		o.recordToolResult(ctx, agent, call, formatToolError(name, err), true)
		return
	}
	if out == "" {
		// Some providers reject tool results with empty content.
		out = "[OK]"
	}
	o.recordToolResult(ctx, agent, call, out, false)
}

func (o *Orchestrator) recordToolResult(ctx context.Context, agent *agents.Agent, call schema.ToolCall, result string, isError bool) {
	o.record(ctx, events.SourceTool, events.ToolResultPayload{
		AgentID: agent.ID,
		CallID:  call.ID,
		Tool:    call.Function.Name,
		Result:  result,
		IsError: isError,
	})
}

// recordTaskOutcome mirrors a terminal status reached through a completion
// tool into the history. Validation failures surface here as task.failed.
func (o *Orchestrator) recordTaskOutcome(ctx context.Context, t *tasks.Task) {
	switch t.Status() {
	case tasks.StatusSuccessful:
		o.record(ctx, events.SourceOrchestrator, events.TaskSuccessfulPayload{
			TaskID: t.ID,
			Result: t.ResultValue(),
		})
	case tasks.StatusFailed:
		o.record(ctx, events.SourceOrchestrator, events.TaskFailedPayload{
			TaskID: t.ID,
			Error:  t.Error(),
		})
	}
}

func toCallRefs(calls []schema.ToolCall) []events.ToolCallRef {
	var refs []events.ToolCallRef
	for _, c := range calls {
		refs = append(refs, events.ToolCallRef{
			ID:        c.ID,
			Name:      c.Function.Name,
			Arguments: c.Function.Arguments,
		})
	}
	return refs
}

// formatToolError builds the textual error result sent back to the model.
func formatToolError(toolName string, err error) string {
	return fmt.Sprintf("[TOOL_ERROR] Tool %q failed: %s\nYou can retry with different parameters, or mark the task failed if it cannot proceed.", toolName, err)
}

// model resolves the chat model for an agent: its named provider, else the
// registry default.
func (o *Orchestrator) model(ctx context.Context, agent *agents.Agent) (model.ToolCallingChatModel, error) {
	if agent.Model != "" {
		return o.models.Get(ctx, agent.Model)
	}
	return o.models.Default(ctx)
}
