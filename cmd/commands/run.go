package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/loom/internal/agents"
	"github.com/dohr-michael/loom/internal/events"
	"github.com/dohr-michael/loom/internal/models"
	"github.com/dohr-michael/loom/internal/orchestration"
	"github.com/dohr-michael/loom/internal/storage"
	"github.com/dohr-michael/loom/internal/tasks"
	"github.com/dohr-michael/loom/internal/tools"
	"github.com/dohr-michael/loom/internal/workflow"
)

// NewRunCommand returns the run subcommand.
func NewRunCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Execute a workflow file",
		ArgsUsage: "<workflow.jsonc|workflow.yaml>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "thread",
				Usage: "Resume an existing thread by id",
			},
			&cli.IntFlag{
				Name:  "max-turns",
				Usage: "Turn budget for this run",
			},
			&cli.IntFlag{
				Name:  "max-llm-calls",
				Usage: "LLM call budget for this run",
			},
		},
		Action: runWorkflow,
	}
}

func runWorkflow(ctx context.Context, cmd *cli.Command) error {
	path := cmd.Args().First()
	if path == "" {
		return fmt.Errorf("workflow file is required")
	}

	cfg := loadConfig(cmd)

	def, err := workflow.Load(path)
	if err != nil {
		return err
	}

	store, closeStore, err := newHistoryStore(cfg)
	if err != nil {
		return fmt.Errorf("init history store: %w", err)
	}
	defer closeStore()

	bus := events.NewBus(cfg.Events.BufferSize)
	defer bus.Close()

	costs := storage.NewCostTracker(bus)
	defer costs.Close()

	registry := tools.NewRegistry()
	if err := registry.RegisterBuiltins(ctx); err != nil {
		return fmt.Errorf("register tools: %w", err)
	}

	run, err := def.Build(ctx, registry, workflow.BuildOptions{
		ThreadID: cmd.String("thread"),
		Store:    store,
	})
	if err != nil {
		return err
	}

	// The process-wide default agent slot is only consulted here, at the
	// outermost entry; everything below takes it explicitly.
	defaultAgent := agents.Default()
	if defaultAgent == nil && cfg.Defaults.AgentName != "" {
		defaultAgent, err = agents.New(agents.Config{
			Name:         cfg.Defaults.AgentName,
			Instructions: cfg.Defaults.AgentInstructions,
			Model:        cfg.Defaults.Model,
		})
		if err != nil {
			return fmt.Errorf("default agent: %w", err)
		}
	}

	maxTurns := firstPositive(int(cmd.Int("max-turns")), run.Budget.MaxTurns, cfg.Defaults.MaxTurns)
	maxLLMCalls := firstPositive(int(cmd.Int("max-llm-calls")), run.Budget.MaxLLMCalls, cfg.Defaults.MaxLLMCalls)

	orch, err := orchestration.New(orchestration.Config{
		Flow:         run.Flow,
		Tasks:        run.Roots,
		Models:       models.NewRegistry(cfg.Models),
		Bus:          bus,
		DefaultAgent: defaultAgent,
		UserInput:    tools.NewUserInputTool(os.Stdin, os.Stdout),
		MaxTurns:     maxTurns,
		MaxLLMCalls:  maxLLMCalls,
	})
	if err != nil {
		return err
	}

	fmt.Printf("thread %s\n", run.Flow.ThreadID)
	runErr := orch.Run(ctx)

	for _, t := range orch.Graph().Tasks() {
		switch t.Status() {
		case tasks.StatusSuccessful:
			fmt.Printf("✓ %s: %v\n", t.String(), t.ResultValue())
		case tasks.StatusFailed:
			fmt.Printf("✗ %s: %s\n", t.String(), t.Error())
		default:
			fmt.Printf("- %s: %s\n", t.String(), t.Status())
		}
	}

	usage := costs.Usage(run.Flow.ThreadID)
	if usage.Calls > 0 {
		fmt.Printf("tokens: %d in / %d out over %d calls\n", usage.Input, usage.Output, usage.Calls)
	}

	return runErr
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
