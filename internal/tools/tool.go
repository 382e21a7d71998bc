// Package tools provides the capability registry: named, schema-described
// functions agents can invoke during a turn.
package tools

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
)

// InvokeFunc is the implementation of a tool. It receives the raw JSON
// arguments produced by the model and returns a textual result.
type InvokeFunc func(ctx context.Context, argumentsInJSON string) (string, error)

// FuncTool adapts a Go function to Eino's tool.InvokableTool interface.
type FuncTool struct {
	info *schema.ToolInfo
	fn   InvokeFunc
}

// New creates a FuncTool. params may be nil for tools without arguments.
func New(name, desc string, params map[string]*schema.ParameterInfo, fn InvokeFunc) *FuncTool {
	info := &schema.ToolInfo{
		Name: name,
		Desc: desc,
	}
	if len(params) > 0 {
		info.ParamsOneOf = schema.NewParamsOneOfByParams(params)
	}
	return &FuncTool{info: info, fn: fn}
}

// Name returns the tool's registered name.
func (t *FuncTool) Name() string {
	return t.info.Name
}

// Info returns the ToolInfo for Eino registration.
func (t *FuncTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return t.info, nil
}

// InvokableRun calls the wrapped function.
func (t *FuncTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	out, err := t.fn(ctx, argumentsInJSON)
	if err != nil {
		return "", fmt.Errorf("tool %q: %w", t.info.Name, err)
	}
	return out, nil
}

var _ tool.InvokableTool = (*FuncTool)(nil)
