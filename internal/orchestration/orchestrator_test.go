package orchestration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/dohr-michael/loom/internal/agents"
	"github.com/dohr-michael/loom/internal/events"
	"github.com/dohr-michael/loom/internal/flows"
	"github.com/dohr-michael/loom/internal/tasks"
	"github.com/dohr-michael/loom/internal/tools"
)

// fakeModel replays scripted responses, then idles with plain text. It
// records every request so tests can inspect what a turn showed the model.
type fakeModel struct {
	mu        sync.Mutex
	responses []*schema.Message
	idx       int
	tools     []*schema.ToolInfo
	requests  [][]*schema.Message
}

func (m *fakeModel) Generate(_ context.Context, msgs []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, msgs)
	if m.idx < len(m.responses) {
		resp := m.responses[m.idx]
		m.idx++
		return resp, nil
	}
	return schema.AssistantMessage("still working on it", nil), nil
}

func (m *fakeModel) Stream(_ context.Context, _ []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, fmt.Errorf("streaming not supported")
}

func (m *fakeModel) WithTools(infos []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tools = infos
	return m, nil
}

// fakeResolver hands every agent the same fake model.
type fakeResolver struct {
	model *fakeModel
}

func (r *fakeResolver) Get(_ context.Context, _ string) (model.ToolCallingChatModel, error) {
	return r.model, nil
}

func (r *fakeResolver) Default(_ context.Context) (model.ToolCallingChatModel, error) {
	return r.model, nil
}

func callTool(name, args string) *schema.Message {
	return schema.AssistantMessage("", []schema.ToolCall{{
		ID:       "call_" + name,
		Function: schema.FunctionCall{Name: name, Arguments: args},
	}})
}

func testAgent(t *testing.T, name string) *agents.Agent {
	t.Helper()
	a, err := agents.New(agents.Config{Name: name})
	if err != nil {
		t.Fatal(err)
	}
	return a
}

func testTask(t *testing.T, cfg tasks.Config) *tasks.Task {
	t.Helper()
	task, err := tasks.New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	return task
}

func eventsOfType(f *flows.Flow, typ events.EventType) []events.Event {
	var out []events.Event
	for _, e := range f.Events() {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

func run(t *testing.T, cfg Config) error {
	t.Helper()
	o, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	return o.Run(context.Background())
}

func TestRun_SingleTaskSuccess(t *testing.T) {
	agent := testAgent(t, "Writer")
	task := testTask(t, tasks.Config{Objective: "write a haiku", Agents: []*agents.Agent{agent}})
	flow := flows.New(flows.Config{Name: "poetry"})

	fake := &fakeModel{responses: []*schema.Message{
		callTool(tasks.SuccessToolName(task), `{"result":"an old silent pond"}`),
	}}

	if err := run(t, Config{
		Flow:   flow,
		Tasks:  []*tasks.Task{task},
		Models: &fakeResolver{model: fake},
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !task.IsSuccessful() || task.ResultValue() != "an old silent pond" {
		t.Errorf("task not completed: status=%s result=%v", task.Status(), task.ResultValue())
	}
	if len(eventsOfType(flow, events.EventTaskStarted)) != 1 {
		t.Error("missing task.started event")
	}
	if len(eventsOfType(flow, events.EventTaskSuccessful)) != 1 {
		t.Error("missing task.successful event")
	}
	if len(eventsOfType(flow, events.EventOrchestratorEnd)) != 1 {
		t.Error("missing orchestrator.end event")
	}

	// Completion tools must have been offered to the model.
	var names []string
	for _, info := range fake.tools {
		names = append(names, info.Name)
	}
	if !contains(names, tasks.SuccessToolName(task)) || !contains(names, tasks.FailureToolName(task)) {
		t.Errorf("completion tools not offered: %v", names)
	}
}

func TestRun_BudgetExceeded(t *testing.T) {
	a := testAgent(t, "Optimist")
	b := testAgent(t, "Pessimist")
	task := testTask(t, tasks.Config{Objective: "argue forever", Agents: []*agents.Agent{a, b}})
	flow := flows.New(flows.Config{})

	// No scripted completions: the agents talk past each other until the
	// turn budget runs out.
	err := run(t, Config{
		Flow:     flow,
		Tasks:    []*tasks.Task{task},
		Models:   &fakeResolver{model: &fakeModel{}},
		MaxTurns: 5,
	})
	if !errors.Is(err, ErrBudgetExceeded) {
		t.Fatalf("expected ErrBudgetExceeded, got %v", err)
	}
	if task.IsComplete() {
		t.Error("budget exhaustion must not complete the task")
	}

	ends := eventsOfType(flow, events.EventOrchestratorEnd)
	if len(ends) != 1 {
		t.Fatal("missing orchestrator.end event")
	}
	p, _ := events.ExtractPayload[events.OrchestratorEndPayload](ends[0])
	if p.Error == "" || p.Turns != 5 {
		t.Errorf("end event must carry the budget error and turn count: %+v", p)
	}
}

func TestRun_LLMCallBudget(t *testing.T) {
	agent := testAgent(t, "Chatterbox")
	task := testTask(t, tasks.Config{Objective: "never finish", Agents: []*agents.Agent{agent}})

	err := run(t, Config{
		Flow:        flows.New(flows.Config{}),
		Tasks:       []*tasks.Task{task},
		Models:      &fakeResolver{model: &fakeModel{}},
		MaxLLMCalls: 3,
	})
	if !errors.Is(err, ErrBudgetExceeded) {
		t.Fatalf("expected ErrBudgetExceeded, got %v", err)
	}
}

func TestRun_CompletionGate(t *testing.T) {
	worker := testAgent(t, "Worker")
	task := testTask(t, tasks.Config{
		Objective:        "guarded work",
		Agents:           []*agents.Agent{worker},
		CompletionAgents: []string{"Reviewer"},
	})
	flow := flows.New(flows.Config{})

	fake := &fakeModel{responses: []*schema.Message{
		callTool(tasks.SuccessToolName(task), `{"result":"sneaky"}`),
	}}

	err := run(t, Config{
		Flow:     flow,
		Tasks:    []*tasks.Task{task},
		Models:   &fakeResolver{model: fake},
		MaxTurns: 2,
	})
	if !errors.Is(err, ErrBudgetExceeded) {
		t.Fatalf("expected budget exhaustion after blocked completion, got %v", err)
	}
	if task.IsComplete() {
		t.Error("ineligible completion must leave status unchanged")
	}

	violations := eventsOfType(flow, events.EventPolicyViolation)
	if len(violations) != 1 {
		t.Fatalf("expected 1 policy violation, got %d", len(violations))
	}
	results := eventsOfType(flow, events.EventToolResult)
	if len(results) == 0 {
		t.Fatal("blocked completion must still answer the tool call")
	}
	p, _ := events.ExtractPayload[events.ToolResultPayload](results[0])
	if !p.IsError || !strings.Contains(p.Result, "[POLICY]") {
		t.Errorf("expected policy feedback, got %+v", p)
	}
}

func TestRun_LabelsValidationFailure(t *testing.T) {
	agent := testAgent(t, "Classifier")
	task := testTask(t, tasks.Config{
		Objective: "classify sentiment",
		Agents:    []*agents.Agent{agent},
		Result:    tasks.LabelsResult("positive", "negative"),
	})
	flow := flows.New(flows.Config{})

	fake := &fakeModel{responses: []*schema.Message{
		callTool(tasks.SuccessToolName(task), `{"result":7}`),
	}}

	if err := run(t, Config{
		Flow:   flow,
		Tasks:  []*tasks.Task{task},
		Models: &fakeResolver{model: fake},
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !task.IsFailed() || !strings.Contains(task.Error(), "out of range") {
		t.Errorf("invalid label index must fail the task: status=%s error=%q", task.Status(), task.Error())
	}
	if len(eventsOfType(flow, events.EventTaskFailed)) != 1 {
		t.Error("missing task.failed event")
	}
}

func TestRun_FailedDependencyStillUnblocks(t *testing.T) {
	agent := testAgent(t, "Solo")
	dep := testTask(t, tasks.Config{Objective: "fetch data", Agents: []*agents.Agent{agent}})
	main := testTask(t, tasks.Config{Objective: "summarize", Agents: []*agents.Agent{agent}})
	main.DependsOn(dep)

	fake := &fakeModel{responses: []*schema.Message{
		callTool(tasks.FailureToolName(dep), `{"reason":"source offline"}`),
		callTool(tasks.SuccessToolName(main), `{"result":"no data available"}`),
	}}

	if err := run(t, Config{
		Flow:   flows.New(flows.Config{}),
		Tasks:  []*tasks.Task{dep, main},
		Models: &fakeResolver{model: fake},
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !dep.IsFailed() {
		t.Errorf("dep status: %s", dep.Status())
	}
	if !main.IsSuccessful() {
		t.Errorf("failed dependency must still unblock the dependent: %s", main.Status())
	}
}

func TestRun_DependencyResultReachesOtherAgent(t *testing.T) {
	producer := testAgent(t, "Producer")
	consumer := testAgent(t, "Consumer")
	source := testTask(t, tasks.Config{Objective: "produce a number", Agents: []*agents.Agent{producer}})
	compute := testTask(t, tasks.Config{Objective: "add 5 and double", Agents: []*agents.Agent{consumer}})
	compute.DependsOn(source)

	fake := &fakeModel{responses: []*schema.Message{
		callTool(tasks.SuccessToolName(source), `{"result":"10"}`),
		callTool(tasks.SuccessToolName(compute), `{"result":"30"}`),
	}}

	if err := run(t, Config{
		Flow:   flows.New(flows.Config{}),
		Tasks:  []*tasks.Task{source, compute},
		Models: &fakeResolver{model: fake},
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !compute.IsSuccessful() || compute.ResultValue() != "30" {
		t.Fatalf("compute: status=%s result=%v", compute.Status(), compute.ResultValue())
	}

	// The second model call belongs to Consumer, who never took part in
	// Producer's turn. The upstream value must arrive through its prompt.
	if len(fake.requests) != 2 {
		t.Fatalf("expected 2 model calls, got %d", len(fake.requests))
	}
	system := fake.requests[1][0]
	if system.Role != schema.System {
		t.Fatalf("first message must be the system prompt, got %s", system.Role)
	}
	if !strings.Contains(system.Content, source.ID+": 10") {
		t.Errorf("dependency result missing from consumer prompt:\n%s", system.Content)
	}
}

func TestRun_ParentDrivesSubtasks(t *testing.T) {
	agent := testAgent(t, "Builder")
	parent := testTask(t, tasks.Config{Objective: "assemble report", Agents: []*agents.Agent{agent}})
	child := testTask(t, tasks.Config{Objective: "gather figures", Agents: []*agents.Agent{agent}})
	parent.AddSubtask(child)

	fake := &fakeModel{responses: []*schema.Message{
		callTool(tasks.SuccessToolName(child), `{"result":"figures"}`),
		callTool(tasks.SuccessToolName(parent), `{"result":"report"}`),
	}}

	if err := run(t, Config{
		Flow:   flows.New(flows.Config{}),
		Tasks:  []*tasks.Task{parent},
		Models: &fakeResolver{model: fake},
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !child.IsSuccessful() || !parent.IsSuccessful() {
		t.Errorf("statuses: child=%s parent=%s", child.Status(), parent.Status())
	}
}

func TestRun_Cancellation_SkipsRemaining(t *testing.T) {
	agent := testAgent(t, "Sleeper")
	task := testTask(t, tasks.Config{Objective: "wait", Agents: []*agents.Agent{agent}})
	flow := flows.New(flows.Config{})

	o, err := New(Config{
		Flow:   flow,
		Tasks:  []*tasks.Task{task},
		Models: &fakeResolver{model: &fakeModel{}},
	})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := o.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if !task.IsSkipped() {
		t.Errorf("cancelled run must skip incomplete tasks, got %s", task.Status())
	}
	if len(eventsOfType(flow, events.EventTaskSkipped)) != 1 {
		t.Error("missing task.skipped event")
	}
}

func TestRun_PerTaskLLMCap(t *testing.T) {
	agent := testAgent(t, "Stuck")
	task := testTask(t, tasks.Config{
		Objective:   "impossible",
		Agents:      []*agents.Agent{agent},
		MaxLLMCalls: 1,
	})

	if err := run(t, Config{
		Flow:   flows.New(flows.Config{}),
		Tasks:  []*tasks.Task{task},
		Models: &fakeResolver{model: &fakeModel{}},
	}); err != nil {
		t.Fatalf("per-task cap is a task failure, not a run error: %v", err)
	}

	if !task.IsFailed() || task.Error() != "max LLM calls reached" {
		t.Errorf("status=%s error=%q", task.Status(), task.Error())
	}
}

func TestRun_ToolErrorIsRecoverable(t *testing.T) {
	broken := tools.New("flaky", "Always breaks.", nil, func(_ context.Context, _ string) (string, error) {
		return "", fmt.Errorf("disk on fire")
	})
	agent := testAgent(t, "Operator")
	task := testTask(t, tasks.Config{
		Objective: "use the tool",
		Agents:    []*agents.Agent{agent},
		Tools:     []tool.InvokableTool{broken},
	})
	flow := flows.New(flows.Config{})

	fake := &fakeModel{responses: []*schema.Message{
		callTool("flaky", `{}`),
		callTool(tasks.SuccessToolName(task), `{"result":"done without it"}`),
	}}

	if err := run(t, Config{
		Flow:   flow,
		Tasks:  []*tasks.Task{task},
		Models: &fakeResolver{model: fake},
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !task.IsSuccessful() {
		t.Errorf("tool error must not fail the task, got %s", task.Status())
	}

	results := eventsOfType(flow, events.EventToolResult)
	if len(results) < 2 {
		t.Fatalf("expected tool results for both calls, got %d", len(results))
	}
	p, _ := events.ExtractPayload[events.ToolResultPayload](results[0])
	if !p.IsError || !strings.Contains(p.Result, "[TOOL_ERROR]") {
		t.Errorf("tool error must come back as textual feedback: %+v", p)
	}
}

func TestRoundRobin_Deterministic(t *testing.T) {
	a := testAgent(t, "A")
	b := testAgent(t, "B")
	c := testAgent(t, "C")
	candidates := []*agents.Agent{a, b, c}

	var rr RoundRobin
	for turn := 0; turn < 6; turn++ {
		want := candidates[turn%3]
		if got := rr.NextAgent(candidates, turn); got != want {
			t.Errorf("turn %d: got %s, want %s", turn, got.Name, want.Name)
		}
		// Same inputs, same pick.
		if rr.NextAgent(candidates, turn) != rr.NextAgent(candidates, turn) {
			t.Error("round robin must be deterministic")
		}
	}
}

func contains(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
