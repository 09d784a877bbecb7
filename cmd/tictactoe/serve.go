package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cory-johannsen/tictactoe/internal/config"
)

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the game server until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			start := time.Now()

			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			app, cleanup, err := initializeApp(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("initializing server: %w", err)
			}
			defer cleanup()

			app.Logger.Info("starting tictactoe server",
				zap.String("addr", cfg.Server.Addr()),
				zap.String("ws_path", cfg.Server.WSPath),
				zap.String("storage", cfg.Storage.Driver),
				zap.Bool("redis", cfg.Redis.Enabled),
				zap.Bool("require_token", cfg.Auth.RequireToken),
				zap.Duration("startup", time.Since(start)),
			)
			return app.Lifecycle.Run(cmd.Context())
		},
	}
}
