package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/loom/internal/events"
)

// NewHistoryCommand returns the history subcommand.
func NewHistoryCommand() *cli.Command {
	return &cli.Command{
		Name:      "history",
		Usage:     "List threads, or show one thread's events",
		ArgsUsage: "[thread-id]",
		Action:    showHistory,
	}
}

func showHistory(ctx context.Context, cmd *cli.Command) error {
	cfg := loadConfig(cmd)

	store, closeStore, err := newHistoryStore(cfg)
	if err != nil {
		return fmt.Errorf("init history store: %w", err)
	}
	defer closeStore()

	threadID := cmd.Args().First()
	if threadID == "" {
		metas, err := store.Threads(ctx)
		if err != nil {
			return err
		}
		if len(metas) == 0 {
			fmt.Println("no threads")
			return nil
		}
		for _, m := range metas {
			fmt.Printf("%s  %4d events  updated %s\n",
				m.ThreadID, m.Events, m.UpdatedAt.Format(time.RFC3339))
		}
		return nil
	}

	evts, err := store.Load(ctx, threadID)
	if err != nil {
		return err
	}
	if len(evts) == 0 {
		return fmt.Errorf("thread not found: %s", threadID)
	}

	for _, e := range evts {
		fmt.Printf("%s  %-20s  %s\n", e.Timestamp.Format("15:04:05.000"), e.Type, summarize(e))
	}
	return nil
}

// summarize renders the interesting part of an event's payload on one line.
func summarize(e events.Event) string {
	switch e.Type {
	case events.EventUserMessage, events.EventSystemMessage:
		return fmt.Sprint(e.Payload["content"])
	case events.EventAgentMessage:
		return fmt.Sprintf("%v: %v", e.Payload["agent_name"], e.Payload["content"])
	case events.EventToolCall:
		return fmt.Sprintf("%v %v", e.Payload["tool"], e.Payload["arguments"])
	case events.EventToolResult:
		return fmt.Sprint(e.Payload["result"])
	case events.EventTaskSuccessful:
		return fmt.Sprintf("%v → %v", e.Payload["task_id"], e.Payload["result"])
	case events.EventTaskFailed:
		return fmt.Sprintf("%v: %v", e.Payload["task_id"], e.Payload["error"])
	default:
		return fmt.Sprintf("%v", e.Payload)
	}
}
