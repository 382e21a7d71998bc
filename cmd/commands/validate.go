package commands

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/loom/internal/orchestration"
	"github.com/dohr-michael/loom/internal/tools"
	"github.com/dohr-michael/loom/internal/workflow"
)

// NewValidateCommand returns the validate subcommand.
func NewValidateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Usage:     "Check a workflow file without running it",
		ArgsUsage: "<workflow.jsonc|workflow.yaml>",
		Action:    validateWorkflow,
	}
}

func validateWorkflow(ctx context.Context, cmd *cli.Command) error {
	path := cmd.Args().First()
	if path == "" {
		return fmt.Errorf("workflow file is required")
	}

	def, err := workflow.Load(path)
	if err != nil {
		return err
	}

	// Materialize once to catch what static validation cannot: agent and
	// task construction errors, and dependency cycles.
	run, err := def.Build(ctx, tools.NewRegistry(), workflow.BuildOptions{})
	if err != nil {
		return err
	}
	if _, err := orchestration.New(orchestration.Config{
		Flow:   run.Flow,
		Tasks:  run.Roots,
		Models: noModels{},
	}); err != nil {
		return err
	}

	fmt.Printf("%s: ok (%d agents, %d tasks)\n", def.Name, len(def.Agents), len(def.Tasks))
	return nil
}

// noModels satisfies the orchestrator's resolver without touching any
// provider; validation never generates.
type noModels struct{}

func (noModels) Get(_ context.Context, name string) (model.ToolCallingChatModel, error) {
	return nil, fmt.Errorf("model %q not available during validation", name)
}

func (noModels) Default(_ context.Context) (model.ToolCallingChatModel, error) {
	return nil, fmt.Errorf("no model available during validation")
}
