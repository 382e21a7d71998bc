package storage

import (
	"sync"

	"github.com/dohr-michael/loom/internal/events"
)

// TokenUsage accumulates token counts for a thread.
type TokenUsage struct {
	Input  int `json:"input"`
	Output int `json:"output"`
	Calls  int `json:"calls"`
}

// CostTracker subscribes to LLM call events and accumulates token usage per
// thread.
type CostTracker struct {
	mu          sync.Mutex
	usage       map[string]*TokenUsage
	unsubscribe func()
}

// NewCostTracker creates a CostTracker listening on the given bus.
func NewCostTracker(bus *events.Bus) *CostTracker {
	ct := &CostTracker{
		usage: make(map[string]*TokenUsage),
	}
	ct.unsubscribe = bus.Subscribe(ct.handleEvent, events.EventLLMCall)
	return ct
}

// Close unsubscribes the tracker from the event bus.
func (ct *CostTracker) Close() {
	if ct.unsubscribe != nil {
		ct.unsubscribe()
	}
}

func (ct *CostTracker) handleEvent(e events.Event) {
	if e.ThreadID == "" {
		return
	}

	payload, ok := events.ExtractPayload[events.LLMCallPayload](e)
	if !ok {
		return
	}
	if payload.Phase != "response" {
		return
	}
	if payload.TokensInput == 0 && payload.TokensOutput == 0 {
		return
	}

	ct.mu.Lock()
	defer ct.mu.Unlock()

	u := ct.usage[e.ThreadID]
	if u == nil {
		u = &TokenUsage{}
		ct.usage[e.ThreadID] = u
	}
	u.Input += payload.TokensInput
	u.Output += payload.TokensOutput
	u.Calls++
}

// Usage returns the accumulated usage for a thread.
func (ct *CostTracker) Usage(threadID string) TokenUsage {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	if u, ok := ct.usage[threadID]; ok {
		return *u
	}
	return TokenUsage{}
}

// All returns a copy of the usage table.
func (ct *CostTracker) All() map[string]TokenUsage {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	out := make(map[string]TokenUsage, len(ct.usage))
	for id, u := range ct.usage {
		out[id] = *u
	}
	return out
}
