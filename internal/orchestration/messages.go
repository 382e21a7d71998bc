package orchestration

import (
	"fmt"

	"github.com/cloudwego/eino/schema"

	"github.com/dohr-michael/loom/internal/events"
)

// compileMessages renders the flow history into a conversation from the
// acting agent's point of view: its own messages replay as assistant turns
// with their tool calls, other agents' messages become attributed user
// messages, and tool results stay tool messages only for the acting agent's
// own calls.
func compileMessages(history []events.Event, actingAgentID string) []*schema.Message {
	var msgs []*schema.Message

	for _, e := range history {
		switch e.Type {
		case events.EventUserMessage:
			p, ok := events.ExtractPayload[events.UserMessagePayload](e)
			if !ok {
				continue
			}
			msgs = append(msgs, schema.UserMessage(p.Content))

		case events.EventSystemMessage:
			p, ok := events.ExtractPayload[events.SystemMessagePayload](e)
			if !ok {
				continue
			}
			msgs = append(msgs, schema.UserMessage("SYSTEM: "+p.Content))

		case events.EventAgentMessage:
			p, ok := events.ExtractPayload[events.AgentMessagePayload](e)
			if !ok {
				continue
			}
			if p.AgentID == actingAgentID {
				msgs = append(msgs, schema.AssistantMessage(p.Content, toSchemaCalls(p.ToolCalls)))
			} else if p.Content != "" {
				msgs = append(msgs, schema.UserMessage(fmt.Sprintf("%s (agent %s) said: %s", p.AgentName, p.AgentID, p.Content)))
			}

		case events.EventToolResult:
			p, ok := events.ExtractPayload[events.ToolResultPayload](e)
			if !ok {
				continue
			}
			if p.AgentID == actingAgentID {
				msgs = append(msgs, schema.ToolMessage(p.Result, p.CallID))
			}
		}
	}

	return trimHistory(msgs, maxHistoryMessages)
}

func toSchemaCalls(refs []events.ToolCallRef) []schema.ToolCall {
	var calls []schema.ToolCall
	for _, r := range refs {
		calls = append(calls, schema.ToolCall{
			ID: r.ID,
			Function: schema.FunctionCall{
				Name:      r.Name,
				Arguments: r.Arguments,
			},
		})
	}
	return calls
}

// trimHistory keeps the most recent limit messages without starting the
// window on a dangling tool message.
func trimHistory(msgs []*schema.Message, limit int) []*schema.Message {
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	for len(msgs) > 0 && msgs[0].Role == schema.Tool {
		msgs = msgs[1:]
	}
	return msgs
}
