package main

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nekodrive/nekodrive/internal/discord"
	"github.com/nekodrive/nekodrive/internal/index"
	"github.com/nekodrive/nekodrive/internal/server"
	"github.com/nekodrive/nekodrive/internal/transfer"
)

// newServeCmd returns the serve subcommand: run the storage API.
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the storage API server",
		RunE:  runServe,
	}

	cmd.Flags().IntVarP(&flagPort, "port", "p", 0, "port to listen on (overrides config)")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	logger := buildLogger(cfg)
	slog.SetDefault(logger)

	idx, err := index.Open(cfg.Index.Path, logger)
	if err != nil {
		return fmt.Errorf("opening index: %w", err)
	}
	defer idx.Close()

	adapter, err := discord.New(cfg.Discord.BotToken, cfg.Discord.ChannelID,
		cfg.Discord.BackupChannelID, logger)
	if err != nil {
		return fmt.Errorf("creating discord adapter: %w", err)
	}

	engine := transfer.NewEngine(idx, adapter, logger)

	srv := server.New(server.Options{
		Index:       idx,
		Engine:      engine,
		Pinger:      adapter,
		APISecret:   cfg.Server.APISecret,
		Version:     version,
		Logger:      logger,
		IdleTimeout: time.Duration(cfg.Server.IdleTimeoutSeconds) * time.Second,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting nekodrive",
		slog.String("version", version),
		slog.Int("port", cfg.Server.Port),
		slog.String("index", cfg.Index.Path),
		slog.Bool("backup_channel", cfg.Discord.BackupChannelID != ""),
		slog.Bool("auth", cfg.Server.APISecret != ""),
	)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	shutdownTimeout := time.Duration(cfg.Server.ShutdownTimeoutSeconds) * time.Second

	return srv.ListenAndServe(ctx, addr, shutdownTimeout)
}
