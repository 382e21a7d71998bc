package agents

import "sync"

// The process-wide default agent is consulted only at the outermost entry
// point, when neither a task, its ancestors, nor the flow resolve an agent.
// Orchestration receives defaults explicitly; this slot exists so embedders
// can set one once for the process lifetime.
var (
	defaultMu    sync.RWMutex
	defaultAgent *Agent
)

// SetDefault replaces the process-wide default agent.
func SetDefault(a *Agent) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultAgent = a
}

// Default returns the process-wide default agent, or nil if unset.
func Default() *Agent {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultAgent
}
