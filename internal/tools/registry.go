package tools

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/cloudwego/eino/components/tool"
)

// Registry is the unified registry for all named tools.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]tool.InvokableTool
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]tool.InvokableTool),
	}
}

// Register adds a tool under the given name.
func (r *Registry) Register(name string, t tool.InvokableTool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %q already registered", name)
	}
	r.tools[name] = t
	return nil
}

// Tool returns the tool with the given name, or nil.
func (r *Registry) Tool(name string) tool.InvokableTool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// ToolsByNames resolves names to tools, logging and skipping unknown names.
func (r *Registry) ToolsByNames(names []string) []tool.InvokableTool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []tool.InvokableTool
	for _, name := range names {
		if t, ok := r.tools[name]; ok {
			result = append(result, t)
		} else {
			slog.Warn("tool not found", "tool", name)
		}
	}
	return result
}

// Names returns all registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RegisterBuiltins registers the built-in tool set.
func (r *Registry) RegisterBuiltins(ctx context.Context) error {
	if err := r.Register("read_file", NewReadFileTool()); err != nil {
		return err
	}

	search, err := NewWebSearchTool(ctx)
	if err != nil {
		// Search availability depends on the environment; the registry stays usable.
		slog.Warn("web_search tool unavailable", "error", err)
		return nil
	}
	return r.Register("web_search", search)
}
