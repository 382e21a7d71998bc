package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/loom/internal/events"
	"github.com/dohr-michael/loom/internal/gateway"
	"github.com/dohr-michael/loom/internal/storage"
)

// NewGatewayCommand returns the gateway subcommand.
func NewGatewayCommand() *cli.Command {
	return &cli.Command{
		Name:  "gateway",
		Usage: "Start the inspection server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Host to listen on",
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "Port to listen on",
			},
		},
		Action: runGateway,
	}
}

func runGateway(ctx context.Context, cmd *cli.Command) error {
	cfg := loadConfig(cmd)

	if cmd.IsSet("host") {
		cfg.Gateway.Host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		cfg.Gateway.Port = int(cmd.Int("port"))
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

	server := gateway.NewServer(bus, store, costs, cfg.Gateway.Host, cfg.Gateway.Port)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
