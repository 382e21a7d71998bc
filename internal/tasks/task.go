// Package tasks defines the unit of work agents are asked to complete, the
// result contract attached to it, and the dependency graph that orders
// execution.
package tasks

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cloudwego/eino/components/tool"

	"github.com/dohr-michael/loom/internal/agents"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusRunning    Status = "RUNNING"
	StatusSuccessful Status = "SUCCESSFUL"
	StatusFailed     Status = "FAILED"
	StatusSkipped    Status = "SKIPPED"
)

// Config describes a task before creation.
type Config struct {
	// Name is a short human-readable label. Optional.
	Name string
	// Objective states what "done" means. Required.
	Objective string
	// Instructions are delivered only to the agent working this task,
	// never to other agents observing the conversation.
	Instructions string
	// Context holds task-local key/value data shown to the working agent.
	// Keys shadow flow context keys of the same name.
	Context map[string]any
	// Agents assigned to the task. Empty means inherit (parent, then flow,
	// then run default).
	Agents []*agents.Agent
	// CompletionAgents restricts who may mark the task complete. Names of
	// agents; empty means any assigned agent may.
	CompletionAgents []string
	// Tools available while working this task.
	Tools []tool.InvokableTool
	// Result describes the expected result shape. Nil means free text.
	Result *ResultSpec
	// MaxLLMCalls caps model calls attributable to this task. Zero means
	// no per-task cap.
	MaxLLMCalls int
}

// Task is a discrete objective handed to agents. Status only moves forward:
// terminal states never revert, and exactly one of result or error is set
// once terminal.
type Task struct {
	ID               string
	Name             string
	Objective        string
	Instructions     string
	Context          map[string]any
	Agents           []*agents.Agent
	CompletionAgents []string
	Tools            []tool.InvokableTool
	Result           *ResultSpec
	MaxLLMCalls      int
	CreatedAt        time.Time

	mu        sync.Mutex
	status    Status
	result    any
	errMsg    string
	parent    *Task
	dependsOn []*Task
	subtasks  []*Task
	llmCalls  int
}

// New creates a task in the PENDING state.
func New(cfg Config) (*Task, error) {
	if cfg.Objective == "" {
		return nil, fmt.Errorf("task objective is required")
	}

	spec := cfg.Result
	if spec == nil {
		spec = TextResult()
	}
	if err := spec.check(); err != nil {
		return nil, err
	}

	t := &Task{
		Name:             cfg.Name,
		Objective:        cfg.Objective,
		Instructions:     cfg.Instructions,
		Context:          cfg.Context,
		Agents:           cfg.Agents,
		CompletionAgents: cfg.CompletionAgents,
		Tools:            cfg.Tools,
		Result:           spec,
		MaxLLMCalls:      cfg.MaxLLMCalls,
		CreatedAt:        time.Now(),
		status:           StatusPending,
	}
	t.ID = generateID(cfg, spec)
	return t, nil
}

// generateID derives a stable ID from the task's configuration. Equal
// configuration yields an equal ID across processes; the result contract and
// context take part so that two tasks differing only there stay distinct.
func generateID(cfg Config, spec *ResultSpec) string {
	h := sha256.New()
	for _, part := range []string{cfg.Name, cfg.Objective, cfg.Instructions, string(spec.Type)} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	for _, label := range spec.Labels {
		h.Write([]byte(label))
		h.Write([]byte{0})
	}
	keys := make([]string, 0, len(cfg.Context))
	for k := range cfg.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(h, "%s=%v", k, cfg.Context[k])
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:8]
}

func (t *Task) String() string {
	if t.Name != "" {
		return fmt.Sprintf("%s (%s)", t.Name, t.ID)
	}
	return t.ID
}

// Status returns the current lifecycle state.
func (t *Task) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// ResultValue returns the validated result. Meaningful only when SUCCESSFUL.
func (t *Task) ResultValue() any {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result
}

// Error returns the failure reason. Meaningful only when FAILED.
func (t *Task) Error() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.errMsg
}

func (t *Task) IsPending() bool    { return t.Status() == StatusPending }
func (t *Task) IsRunning() bool    { return t.Status() == StatusRunning }
func (t *Task) IsSuccessful() bool { return t.Status() == StatusSuccessful }
func (t *Task) IsFailed() bool     { return t.Status() == StatusFailed }
func (t *Task) IsSkipped() bool    { return t.Status() == StatusSkipped }

// IsIncomplete reports whether the task still needs work.
func (t *Task) IsIncomplete() bool {
	s := t.Status()
	return s == StatusPending || s == StatusRunning
}

// IsComplete reports whether the task reached a terminal state.
func (t *Task) IsComplete() bool {
	return !t.IsIncomplete()
}

// IsReady reports whether the task is incomplete and every dependency has
// reached a terminal state. Failed and skipped dependencies still count as
// resolved; the dependent decides what to do with them.
func (t *Task) IsReady() bool {
	if t.IsComplete() {
		return false
	}
	t.mu.Lock()
	deps := make([]*Task, len(t.dependsOn))
	copy(deps, t.dependsOn)
	t.mu.Unlock()

	for _, dep := range deps {
		if dep.IsIncomplete() {
			return false
		}
	}
	return true
}

// DependsOn declares that the task must wait for the given tasks.
func (t *Task) DependsOn(deps ...*Task) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dependsOn = append(t.dependsOn, deps...)
}

// AddSubtask attaches child under the task. The child becomes both a subtask
// and a dependency, so working the parent drives the child first while
// working the child alone never touches the parent.
func (t *Task) AddSubtask(child *Task) {
	child.mu.Lock()
	child.parent = t
	child.mu.Unlock()

	t.mu.Lock()
	t.subtasks = append(t.subtasks, child)
	t.dependsOn = append(t.dependsOn, child)
	t.mu.Unlock()
}

// Parent returns the parent task, or nil.
func (t *Task) Parent() *Task {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.parent
}

// Dependencies returns the tasks this one waits for.
func (t *Task) Dependencies() []*Task {
	t.mu.Lock()
	defer t.mu.Unlock()
	deps := make([]*Task, len(t.dependsOn))
	copy(deps, t.dependsOn)
	return deps
}

// Subtasks returns the attached child tasks.
func (t *Task) Subtasks() []*Task {
	t.mu.Lock()
	defer t.mu.Unlock()
	subs := make([]*Task, len(t.subtasks))
	copy(subs, t.subtasks)
	return subs
}

// MarkRunning moves the task from PENDING to RUNNING. Idempotent while
// running; an error once terminal.
func (t *Task) MarkRunning() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.status {
	case StatusPending:
		t.status = StatusRunning
		return nil
	case StatusRunning:
		return nil
	default:
		return fmt.Errorf("task %s: cannot run, already %s", t.ID, t.status)
	}
}

// MarkSuccessful validates raw against the result contract and moves the
// task to SUCCESSFUL. Validation failure moves it to FAILED with the
// validation message instead; the returned error describes what happened
// either way.
func (t *Task) MarkSuccessful(raw any) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if isTerminal(t.status) {
		return fmt.Errorf("task %s: already %s", t.ID, t.status)
	}

	value, err := t.Result.validate(raw)
	if err != nil {
		t.status = StatusFailed
		t.errMsg = err.Error()
		return fmt.Errorf("task %s: invalid result: %w", t.ID, err)
	}

	t.status = StatusSuccessful
	t.result = value
	t.errMsg = ""
	return nil
}

// MarkFailed moves the task to FAILED with the given reason.
func (t *Task) MarkFailed(reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if isTerminal(t.status) {
		return fmt.Errorf("task %s: already %s", t.ID, t.status)
	}
	t.status = StatusFailed
	t.errMsg = reason
	t.result = nil
	return nil
}

// MarkSkipped moves the task to SKIPPED. Used for external cancellation,
// never chosen by the orchestrator on its own.
func (t *Task) MarkSkipped() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if isTerminal(t.status) {
		return fmt.Errorf("task %s: already %s", t.ID, t.status)
	}
	t.status = StatusSkipped
	t.result = nil
	t.errMsg = ""
	return nil
}

// CountLLMCall records one model call attributed to this task and reports
// whether the per-task cap is now exhausted.
func (t *Task) CountLLMCall() (exhausted bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.llmCalls++
	return t.MaxLLMCalls > 0 && t.llmCalls > t.MaxLLMCalls
}

// LLMCalls returns the number of model calls attributed to this task.
func (t *Task) LLMCalls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.llmCalls
}

func isTerminal(s Status) bool {
	return s == StatusSuccessful || s == StatusFailed || s == StatusSkipped
}
