package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"chatmallu/client/internal/service"
	"chatmallu/client/pkg/config"
	"chatmallu/client/pkg/di"
	"chatmallu/client/pkg/logger"

	"github.com/spf13/cobra"
)

// Execute runs chatctl against the configured storage and inference server.
// Ctrl-C cancels the reply in flight.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd, a := newRootCmd(wireContainer)
	err := rootCmd.ExecuteContext(ctx)
	return errors.Join(err, a.close(ctx))
}

// builder creates the container a command runs against.
type builder func(ctx context.Context, opts ...di.Option) (*di.Container, error)

func wireContainer(ctx context.Context, opts ...di.Option) (*di.Container, error) {
	cfg := config.New()
	opts = append([]di.Option{di.WithLogger(logger.New(cliLoggerConfig(cfg)))}, opts...)
	return di.New(ctx, cfg, opts...)
}

// cliLoggerConfig keeps stdout free for replies.
func cliLoggerConfig(cfg *config.Config) logger.Config {
	lc := di.LoggerConfig(cfg)
	lc.Level = "error"
	lc.JSON = false
	return lc
}

type app struct {
	build     builder
	container *di.Container
	noDelay   bool
	asJSON    bool
}

func (a *app) open(cmd *cobra.Command) error {
	var opts []di.Option
	if a.noDelay {
		opts = append(opts, di.WithSleeper(service.NoSleep))
	}
	c, err := a.build(cmd.Context(), opts...)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	a.container = c
	return nil
}

// close waits for background work such as the suggestion refresh and
// releases storage.
func (a *app) close(ctx context.Context) error {
	if a.container == nil {
		return nil
	}
	err := a.container.Close(context.WithoutCancel(ctx))
	a.container = nil
	return err
}

func newRootCmd(build builder) (*cobra.Command, *app) {
	a := &app{build: build}

	rootCmd := &cobra.Command{
		Use:           "chatctl",
		Short:         "chatctl: talk to your characters from the terminal",
		Long:          "chatctl drives the chat client core directly: it reads and writes the same state as the server and talks to the same inference server.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.open(cmd)
		},
	}
	rootCmd.PersistentFlags().BoolVar(&a.noDelay, "no-delay", false, "Skip the thinking and reading pauses")
	rootCmd.PersistentFlags().BoolVar(&a.asJSON, "json", false, "Print JSON instead of text")

	rootCmd.AddCommand(
		newHealthCmd(a),
		newModelsCmd(a),
		newCharactersCmd(a),
		newGroupsCmd(a),
		newChatCmd(a),
		newGroupCmd(a),
	)

	return rootCmd, a
}
