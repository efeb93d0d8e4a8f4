package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"chatrelay/internal/config"
	"chatrelay/internal/dependency"
)

var (
	serveConfigPath string
	servePort       int
	serveVerbose    bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server and background janitor",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&serveConfigPath, "config", "c", "", "Path to YAML configuration file")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Override server port from configuration")
	serveCmd.Flags().BoolVarP(&serveVerbose, "verbose", "v", false, "Debug logging (overrides CHATRELAY_LOG_LEVEL)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	if serveVerbose {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	cfg, err := config.Load(serveConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("validate config: %w", err)
		}
	}

	container, err := dependency.New(&cfg)
	if err != nil {
		return fmt.Errorf("build services: %w", err)
	}
	defer func() {
		if err := container.Close(); err != nil {
			slog.Warn("close storage", "error", err)
		}
	}()

	g, gctx := errgroup.WithContext(cmd.Context())
	g.Go(func() error { return container.Server().Run(gctx) })
	g.Go(func() error { return container.Janitor().Start(gctx) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
