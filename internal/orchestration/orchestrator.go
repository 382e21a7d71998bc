// Package orchestration runs tasks to completion by handing agents one
// bounded turn at a time. The orchestrator is the only writer of task
// status; agents signal outcomes through completion tools and the
// orchestrator applies them.
package orchestration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"

	"github.com/dohr-michael/loom/internal/agents"
	"github.com/dohr-michael/loom/internal/events"
	"github.com/dohr-michael/loom/internal/flows"
	"github.com/dohr-michael/loom/internal/tasks"
)

// ErrBudgetExceeded is returned when a run exhausts its turn or LLM call
// budget. It is fatal for the run and distinct from any task failure.
var ErrBudgetExceeded = errors.New("orchestration budget exceeded")

const (
	DefaultMaxTurns    = 100
	DefaultMaxLLMCalls = 1000
)

// ModelResolver provides chat models by provider name. *models.Registry
// implements it.
type ModelResolver interface {
	Get(ctx context.Context, name string) (model.ToolCallingChatModel, error)
	Default(ctx context.Context) (model.ToolCallingChatModel, error)
}

// Config describes a run.
type Config struct {
	Flow *flows.Flow
	// Tasks are the root tasks to drive to completion. Dependencies and
	// subtasks are collected automatically.
	Tasks  []*tasks.Task
	Models ModelResolver
	// Bus receives a copy of every history event. Optional.
	Bus *events.Bus
	// Strategy picks among multiple assigned agents. Defaults to RoundRobin.
	Strategy TurnStrategy
	// DefaultAgent works tasks when neither the task, its ancestors, nor
	// the flow name one. Callers sitting at the process boundary may pass
	// agents.Default() here; the orchestrator itself never consults
	// process-wide state.
	DefaultAgent *agents.Agent
	// UserInput is offered to interactive agents. Optional.
	UserInput tool.InvokableTool
	// MaxTurns and MaxLLMCalls bound the whole run. Zero means the default.
	MaxTurns    int
	MaxLLMCalls int
}

// Orchestrator drives a task graph to completion, one turn at a time.
type Orchestrator struct {
	flow         *flows.Flow
	graph        *tasks.Graph
	models       ModelResolver
	bus          *events.Bus
	strategy     TurnStrategy
	defaultAgent *agents.Agent
	userInput    tool.InvokableTool
	maxTurns     int
	maxLLMCalls  int

	turns    int
	llmCalls int
}

// New validates the task graph and prepares a run.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Flow == nil {
		return nil, fmt.Errorf("orchestrator: flow is required")
	}
	if len(cfg.Tasks) == 0 {
		return nil, fmt.Errorf("orchestrator: at least one task is required")
	}
	if cfg.Models == nil {
		return nil, fmt.Errorf("orchestrator: model resolver is required")
	}

	graph, err := tasks.NewGraph(cfg.Tasks...)
	if err != nil {
		return nil, err
	}

	o := &Orchestrator{
		flow:         cfg.Flow,
		graph:        graph,
		models:       cfg.Models,
		bus:          cfg.Bus,
		strategy:     cfg.Strategy,
		defaultAgent: cfg.DefaultAgent,
		userInput:    cfg.UserInput,
		maxTurns:     cfg.MaxTurns,
		maxLLMCalls:  cfg.MaxLLMCalls,
	}
	if o.strategy == nil {
		o.strategy = RoundRobin{}
	}
	if o.maxTurns <= 0 {
		o.maxTurns = DefaultMaxTurns
	}
	if o.maxLLMCalls <= 0 {
		o.maxLLMCalls = DefaultMaxLLMCalls
	}
	return o, nil
}

// Graph exposes the collected task graph.
func (o *Orchestrator) Graph() *tasks.Graph {
	return o.graph
}

// Run executes turns until every task reaches a terminal state, the context
// is cancelled, or a budget is exhausted. Cancellation skips the remaining
// incomplete tasks; budget exhaustion returns ErrBudgetExceeded.
func (o *Orchestrator) Run(ctx context.Context) error {
	var taskIDs []string
	for _, t := range o.graph.Tasks() {
		taskIDs = append(taskIDs, t.ID)
	}
	o.record(ctx, events.SourceOrchestrator, events.OrchestratorStartPayload{TaskIDs: taskIDs})

	err := o.run(ctx)

	end := events.OrchestratorEndPayload{Turns: o.turns, LLMCalls: o.llmCalls}
	if err != nil {
		end.Error = err.Error()
	}
	o.record(ctx, events.SourceOrchestrator, end)
	return err
}

func (o *Orchestrator) run(ctx context.Context) error {
	for o.graph.Incomplete() {
		if ctx.Err() != nil {
			o.skipRemaining(ctx, "run cancelled")
			return ctx.Err()
		}
		if o.turns >= o.maxTurns {
			return fmt.Errorf("%w: %d turns", ErrBudgetExceeded, o.turns)
		}
		if o.llmCalls >= o.maxLLMCalls {
			return fmt.Errorf("%w: %d LLM calls", ErrBudgetExceeded, o.llmCalls)
		}

		ready := o.graph.Ready()
		if len(ready) == 0 {
			return fmt.Errorf("no ready tasks but %d incomplete", countIncomplete(o.graph))
		}
		task := ready[0]

		agent, err := o.resolveAgent(task)
		if err != nil {
			return err
		}

		if task.IsPending() {
			if err := task.MarkRunning(); err != nil {
				return err
			}
			o.record(ctx, events.SourceOrchestrator, events.TaskStartedPayload{
				TaskID:    task.ID,
				Objective: task.Objective,
			})
		}

		o.turns++
		if err := o.runTurn(ctx, task, agent, ready); err != nil {
			return err
		}
	}
	return nil
}

// resolveAgent applies the assignment precedence: the task itself, then its
// ancestors, then the flow default, then the run default. Among several
// assigned agents the turn strategy decides.
func (o *Orchestrator) resolveAgent(task *tasks.Task) (*agents.Agent, error) {
	candidates := task.Agents
	for cur := task.Parent(); len(candidates) == 0 && cur != nil; cur = cur.Parent() {
		candidates = cur.Agents
	}
	if len(candidates) == 0 && o.flow.DefaultAgent != nil {
		candidates = []*agents.Agent{o.flow.DefaultAgent}
	}
	if len(candidates) == 0 && o.defaultAgent != nil {
		candidates = []*agents.Agent{o.defaultAgent}
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("no agent available for task %s", task.String())
	}

	agent := o.strategy.NextAgent(candidates, o.turns)
	if agent == nil {
		return nil, fmt.Errorf("turn strategy returned no agent for task %s", task.String())
	}
	return agent, nil
}

// skipRemaining marks every incomplete task skipped. Used on external
// cancellation only.
func (o *Orchestrator) skipRemaining(ctx context.Context, reason string) {
	for _, t := range o.graph.Tasks() {
		if !t.IsIncomplete() {
			continue
		}
		if err := t.MarkSkipped(); err != nil {
			slog.Warn("skip task", "task", t.ID, "error", err)
			continue
		}
		o.record(ctx, events.SourceOrchestrator, events.TaskSkippedPayload{
			TaskID: t.ID,
			Reason: reason,
		})
	}
}

// record appends the event to the flow history and mirrors it on the bus.
func (o *Orchestrator) record(ctx context.Context, source events.EventSource, payload events.EventPayload) {
	e := events.NewTypedEventWithThread(source, payload, o.flow.ThreadID)
	if err := o.flow.Append(ctx, e); err != nil {
		slog.Error("append history event", "thread", o.flow.ThreadID, "type", e.Type, "error", err)
	}
	if o.bus != nil {
		o.bus.Publish(e)
	}
}

func countIncomplete(g *tasks.Graph) int {
	n := 0
	for _, t := range g.Tasks() {
		if t.IsIncomplete() {
			n++
		}
	}
	return n
}
