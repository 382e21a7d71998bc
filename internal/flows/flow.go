// Package flows groups related work into a thread: shared context, shared
// tools, a default agent, and an append-only event history.
package flows

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/cloudwego/eino/components/tool"
	"github.com/google/uuid"

	"github.com/dohr-michael/loom/internal/agents"
	"github.com/dohr-michael/loom/internal/events"
)

// Config describes a flow before creation.
type Config struct {
	// ThreadID identifies the flow's history thread. Empty means a fresh
	// thread ID is generated.
	ThreadID string
	Name     string
	// Description is shown to agents working tasks in this flow.
	Description string
	// Context holds flow-wide key/value data visible to every task.
	Context map[string]any
	// Tools are available to every task run inside the flow.
	Tools []tool.InvokableTool
	// DefaultAgent works tasks that do not name their own agents.
	DefaultAgent *agents.Agent
	// Store persists appended events. Nil keeps history in memory only.
	Store HistoryStore
}

// Flow is a thread of related work. A child flow sees its parent's context
// and events as they were and as they happen, but the parent never sees the
// child's. The history is append-only.
type Flow struct {
	ThreadID     string
	Name         string
	Description  string
	Tools        []tool.InvokableTool
	DefaultAgent *agents.Agent

	parent    *Flow
	parentCtx map[string]any
	store     HistoryStore

	mu      sync.Mutex
	context map[string]any
	events  []events.Event
}

// New creates a flow with a fresh or given thread ID.
func New(cfg Config) *Flow {
	id := cfg.ThreadID
	if id == "" {
		id = NewThreadID()
	}
	ctx := make(map[string]any, len(cfg.Context))
	for k, v := range cfg.Context {
		ctx[k] = v
	}
	return &Flow{
		ThreadID:     id,
		Name:         cfg.Name,
		Description:  cfg.Description,
		Tools:        cfg.Tools,
		DefaultAgent: cfg.DefaultAgent,
		store:        cfg.Store,
		context:      ctx,
	}
}

// Open creates a flow bound to an existing thread, reloading its prior
// history from the store before anything new is appended.
func Open(ctx context.Context, store HistoryStore, threadID string, cfg Config) (*Flow, error) {
	if store == nil {
		return nil, fmt.Errorf("open flow: store is required")
	}
	cfg.ThreadID = threadID
	cfg.Store = store
	f := New(cfg)

	prior, err := store.Load(ctx, f.ThreadID)
	if err != nil {
		return nil, fmt.Errorf("open flow %s: %w", f.ThreadID, err)
	}
	f.events = prior
	slog.Debug("flow opened", "thread", f.ThreadID, "events", len(prior))
	return f, nil
}

// NewThreadID generates a thread identifier.
func NewThreadID() string {
	return "thr_" + strings.Split(uuid.NewString(), "-")[0]
}

// Child creates a nested flow. The child takes a snapshot of the parent's
// merged context at creation and keeps a live, read-only view of the
// parent's events. Its own thread ID is fresh unless given.
func (f *Flow) Child(cfg Config) *Flow {
	child := New(cfg)
	child.parent = f
	child.parentCtx = f.Context()
	return child
}

// Parent returns the enclosing flow, or nil.
func (f *Flow) Parent() *Flow {
	return f.parent
}

// Set stores a context value on the flow itself.
func (f *Flow) Set(key string, value any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.context[key] = value
}

// Context returns the merged context view: the parent snapshot overlaid by
// the flow's own keys.
func (f *Flow) Context() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()

	merged := make(map[string]any, len(f.parentCtx)+len(f.context))
	for k, v := range f.parentCtx {
		merged[k] = v
	}
	for k, v := range f.context {
		merged[k] = v
	}
	return merged
}

// Append records events on the flow's history and persists them when a
// store is configured.
func (f *Flow) Append(ctx context.Context, evts ...events.Event) error {
	f.mu.Lock()
	f.events = append(f.events, evts...)
	f.mu.Unlock()

	if f.store != nil {
		if err := f.store.Append(ctx, f.ThreadID, evts...); err != nil {
			return fmt.Errorf("persist events for %s: %w", f.ThreadID, err)
		}
	}
	return nil
}

// Events returns the visible history: the parent's events as they stand
// now, followed by the flow's own. The parent never sees the child's.
func (f *Flow) Events() []events.Event {
	var visible []events.Event
	if f.parent != nil {
		visible = f.parent.Events()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	visible = append(visible, f.events...)
	return visible
}

func (f *Flow) String() string {
	if f.Name != "" {
		return fmt.Sprintf("%s (%s)", f.Name, f.ThreadID)
	}
	return f.ThreadID
}
