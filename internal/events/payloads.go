package events

import (
	"encoding/json"
	"time"
)

// EventPayload is the interface all typed payloads implement.
type EventPayload interface {
	EventType() EventType
}

// =============================================================================
// ORCHESTRATION EVENTS
// =============================================================================

type OrchestratorStartPayload struct {
	TaskIDs []string `json:"task_ids"`
	Agents  []string `json:"agents,omitempty"`
}

func (OrchestratorStartPayload) EventType() EventType { return EventOrchestratorStart }

type OrchestratorEndPayload struct {
	Turns    int    `json:"turns"`
	LLMCalls int    `json:"llm_calls"`
	Error    string `json:"error,omitempty"`
}

func (OrchestratorEndPayload) EventType() EventType { return EventOrchestratorEnd }

type TurnStartPayload struct {
	Turn   int    `json:"turn"`
	Agent  string `json:"agent"`
	TaskID string `json:"task_id"`
}

func (TurnStartPayload) EventType() EventType { return EventTurnStart }

type TurnEndPayload struct {
	Turn  int    `json:"turn"`
	Agent string `json:"agent"`
}

func (TurnEndPayload) EventType() EventType { return EventTurnEnd }

// =============================================================================
// TASK EVENTS
// =============================================================================

type TaskStartedPayload struct {
	TaskID    string `json:"task_id"`
	Objective string `json:"objective"`
}

func (TaskStartedPayload) EventType() EventType { return EventTaskStarted }

type TaskSuccessfulPayload struct {
	TaskID string `json:"task_id"`
	Result any    `json:"result,omitempty"`
}

func (TaskSuccessfulPayload) EventType() EventType { return EventTaskSuccessful }

type TaskFailedPayload struct {
	TaskID string `json:"task_id"`
	Error  string `json:"error"`
}

func (TaskFailedPayload) EventType() EventType { return EventTaskFailed }

type TaskSkippedPayload struct {
	TaskID string `json:"task_id"`
	Reason string `json:"reason,omitempty"`
}

func (TaskSkippedPayload) EventType() EventType { return EventTaskSkipped }

// =============================================================================
// AGENT EVENTS
// =============================================================================

// ToolCallRef mirrors the parts of a model tool call that history needs.
type ToolCallRef struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type AgentMessagePayload struct {
	AgentID   string        `json:"agent_id"`
	AgentName string        `json:"agent_name"`
	Content   string        `json:"content"`
	ToolCalls []ToolCallRef `json:"tool_calls,omitempty"`
}

func (AgentMessagePayload) EventType() EventType { return EventAgentMessage }

type ToolCallPayload struct {
	AgentID   string `json:"agent_id"`
	CallID    string `json:"call_id"`
	Tool      string `json:"tool"`
	Arguments string `json:"arguments"`
}

func (ToolCallPayload) EventType() EventType { return EventToolCall }

type ToolResultPayload struct {
	AgentID string `json:"agent_id"`
	CallID  string `json:"call_id"`
	Tool    string `json:"tool"`
	Result  string `json:"result"`
	IsError bool   `json:"is_error,omitempty"`
}

func (ToolResultPayload) EventType() EventType { return EventToolResult }

type UserMessagePayload struct {
	Content string `json:"content"`
}

func (UserMessagePayload) EventType() EventType { return EventUserMessage }

// SystemMessagePayload carries orchestrator announcements visible to agents.
type SystemMessagePayload struct {
	Content string `json:"content"`
}

func (SystemMessagePayload) EventType() EventType { return EventSystemMessage }

type PolicyViolationPayload struct {
	AgentID string `json:"agent_id"`
	TaskID  string `json:"task_id"`
	Tool    string `json:"tool"`
	Reason  string `json:"reason"`
}

func (PolicyViolationPayload) EventType() EventType { return EventPolicyViolation }

// =============================================================================
// INTERNAL EVENTS
// =============================================================================

type LLMCallPayload struct {
	Phase        string        `json:"phase"`
	Model        string        `json:"model,omitempty"`
	Agent        string        `json:"agent,omitempty"`
	MessageCount int           `json:"message_count,omitempty"`
	TokensInput  int           `json:"tokens_input,omitempty"`
	TokensOutput int           `json:"tokens_output,omitempty"`
	Duration     time.Duration `json:"duration,omitempty"`
	Error        string        `json:"error,omitempty"`
}

func (LLMCallPayload) EventType() EventType { return EventLLMCall }

// =============================================================================
// TYPED EVENT CONSTRUCTORS
// =============================================================================

func NewTypedEvent(source EventSource, payload EventPayload) Event {
	return Event{
		ID:        generateEventID(),
		Type:      payload.EventType(),
		Timestamp: time.Now(),
		Source:    source,
		Payload:   toMap(payload),
	}
}

func NewTypedEventWithThread(source EventSource, payload EventPayload, threadID string) Event {
	return Event{
		ID:        generateEventID(),
		ThreadID:  threadID,
		Type:      payload.EventType(),
		Timestamp: time.Now(),
		Source:    source,
		Payload:   toMap(payload),
	}
}

func toMap(v any) map[string]any {
	var result map[string]any
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil
	}
	return result
}

// =============================================================================
// TYPED PAYLOAD EXTRACTORS
// =============================================================================

// ExtractPayload decodes an event's payload map into a typed payload.
func ExtractPayload[T EventPayload](e Event) (T, bool) {
	var result T
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return result, false
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return result, false
	}
	if result.EventType() != e.Type {
		return result, false
	}
	return result, true
}
