// Package agents defines the Agent type: a named, configurable bundle of
// instructions, tools, and a model reference that acts on tasks inside a flow.
package agents

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/tool"
)

// DefaultInstructions is the baseline system instruction for agents created
// without their own.
const DefaultInstructions = "You are a diligent AI assistant. You complete your tasks efficiently and without error."

// Agent is one LLM-backed actor. Its ID is deterministic: two agents built
// from the same configuration share an ID, which keeps references stable
// across workflow reloads.
type Agent struct {
	ID           string
	Name         string
	Description  string
	Instructions string
	Model        string // model provider name, resolved via the models registry
	Tools        []tool.InvokableTool
	Interactive  bool
}

// Config is the agent creation surface. Name is required.
type Config struct {
	Name         string
	Description  string
	Instructions string
	Model        string
	Tools        []tool.InvokableTool
	Interactive  bool
}

// New builds an Agent from a Config.
func New(cfg Config) (*Agent, error) {
	if strings.TrimSpace(cfg.Name) == "" {
		return nil, fmt.Errorf("agent name is required")
	}

	instructions := cfg.Instructions
	if instructions == "" {
		instructions = DefaultInstructions
	}

	a := &Agent{
		Name:         cfg.Name,
		Description:  cfg.Description,
		Instructions: instructions,
		Model:        cfg.Model,
		Tools:        cfg.Tools,
		Interactive:  cfg.Interactive,
	}
	a.ID = generateID(a)
	return a, nil
}

// generateID derives a short, stable identifier from the agent configuration.
func generateID(a *Agent) string {
	h := sha256.New()
	for _, part := range []string{a.Name, a.Description, a.Instructions, a.Model} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:8]
}

// String returns a human-readable representation of the agent.
func (a *Agent) String() string {
	return fmt.Sprintf("Agent %s (%s)", a.Name, a.ID)
}
