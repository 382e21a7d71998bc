package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/dohr-michael/loom/internal/tools"
)

// SuccessToolName returns the generated name of the task's success tool.
func SuccessToolName(t *Task) string {
	return fmt.Sprintf("mark_task_%s_successful", t.ID)
}

// FailureToolName returns the generated name of the task's failure tool.
func FailureToolName(t *Task) string {
	return fmt.Sprintf("mark_task_%s_failed", t.ID)
}

// SuccessTool builds the completion tool that marks the task successful.
// Its argument schema follows the task's result contract, so the model is
// told exactly what shape to produce.
func SuccessTool(t *Task) tool.InvokableTool {
	name := SuccessToolName(t)
	desc := fmt.Sprintf("Mark task %s as successful and record its result.", t.String())

	var params map[string]*schema.ParameterInfo
	switch t.Result.Type {
	case ResultText:
		params = map[string]*schema.ParameterInfo{
			"result": {
				Type:     schema.String,
				Desc:     "The task result as text",
				Required: true,
			},
		}
	case ResultLabels:
		var choices strings.Builder
		for i, label := range t.Result.Labels {
			fmt.Fprintf(&choices, "%d=%s ", i, label)
		}
		params = map[string]*schema.ParameterInfo{
			"result": {
				Type:     schema.Integer,
				Desc:     "Index of the chosen label: " + strings.TrimSpace(choices.String()),
				Required: true,
			},
		}
	case ResultJSON:
		params = map[string]*schema.ParameterInfo{
			"result": {
				Type:     schema.Object,
				Desc:     "The task result object",
				SubParams: t.Result.Properties,
				Required:  true,
			},
		}
	case ResultNone:
		// No arguments. Calling the tool is the result.
	}

	return tools.New(name, desc, params, func(_ context.Context, argumentsInJSON string) (string, error) {
		var raw any
		if t.Result.Type != ResultNone {
			var args map[string]any
			if err := json.Unmarshal([]byte(argumentsInJSON), &args); err != nil {
				return "", fmt.Errorf("parse arguments: %w", err)
			}
			raw = args["result"]
		}
		if err := t.MarkSuccessful(raw); err != nil {
			return "", err
		}
		return fmt.Sprintf("Task %s marked successful.", t.ID), nil
	})
}

// FailureTool builds the completion tool that marks the task failed.
func FailureTool(t *Task) tool.InvokableTool {
	name := FailureToolName(t)
	desc := fmt.Sprintf("Mark task %s as failed with a reason.", t.String())
	params := map[string]*schema.ParameterInfo{
		"reason": {
			Type:     schema.String,
			Desc:     "Why the task cannot be completed",
			Required: true,
		},
	}

	return tools.New(name, desc, params, func(_ context.Context, argumentsInJSON string) (string, error) {
		var args struct {
			Reason string `json:"reason"`
		}
		if err := json.Unmarshal([]byte(argumentsInJSON), &args); err != nil {
			return "", fmt.Errorf("parse arguments: %w", err)
		}
		if err := t.MarkFailed(args.Reason); err != nil {
			return "", err
		}
		return fmt.Sprintf("Task %s marked failed.", t.ID), nil
	})
}

// CompletionTools returns both completion tools for the task.
func CompletionTools(t *Task) []tool.InvokableTool {
	return []tool.InvokableTool{SuccessTool(t), FailureTool(t)}
}
