package tools

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	duckduckgo "github.com/cloudwego/eino-ext/components/tool/duckduckgo/v2"
)

// NewWebSearchTool creates a DuckDuckGo text search tool.
func NewWebSearchTool(ctx context.Context) (tool.InvokableTool, error) {
	return duckduckgo.NewTextSearchTool(ctx, &duckduckgo.Config{
		ToolName:   "web_search",
		ToolDesc:   "Search the web. Returns titles, URLs, and snippets.",
		MaxResults: 10,
		Timeout:    30 * time.Second,
	})
}

// NewReadFileTool creates a tool that reads a text file from disk.
func NewReadFileTool() tool.InvokableTool {
	params := map[string]*schema.ParameterInfo{
		"path": {
			Type:     schema.String,
			Desc:     "Path of the file to read",
			Required: true,
		},
	}
	return New("read_file", "Read a text file and return its contents.", params,
		func(_ context.Context, argumentsInJSON string) (string, error) {
			var args struct {
				Path string `json:"path"`
			}
			if err := json.Unmarshal([]byte(argumentsInJSON), &args); err != nil {
				return "", fmt.Errorf("parse arguments: %w", err)
			}
			if args.Path == "" {
				return "", fmt.Errorf("path is required")
			}
			data, err := os.ReadFile(args.Path)
			if err != nil {
				return "", err
			}
			return string(data), nil
		})
}

// NewUserInputTool creates the tool interactive agents use to ask the human
// operator a question. Reads one line from in (stdin in the CLI).
func NewUserInputTool(in io.Reader, out io.Writer) tool.InvokableTool {
	reader := bufio.NewReader(in)
	params := map[string]*schema.ParameterInfo{
		"message": {
			Type:     schema.String,
			Desc:     "The question or prompt to show the user",
			Required: true,
		},
	}
	return New("user_input", "Ask the human user for input and wait for their reply.", params,
		func(_ context.Context, argumentsInJSON string) (string, error) {
			var args struct {
				Message string `json:"message"`
			}
			if err := json.Unmarshal([]byte(argumentsInJSON), &args); err != nil {
				return "", fmt.Errorf("parse arguments: %w", err)
			}
			fmt.Fprintf(out, "\n%s\n> ", args.Message)
			line, err := reader.ReadString('\n')
			if err != nil && line == "" {
				return "", fmt.Errorf("read user input: %w", err)
			}
			return strings.TrimSpace(line), nil
		})
}
