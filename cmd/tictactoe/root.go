package main

import (
	"github.com/spf13/cobra"
)

const defaultConfigPath = "configs/dev.yaml"

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "tictactoe",
		Short:         "Real-time two-player tic-tac-toe server",
		Long:          "tictactoe serves WebSocket game sessions and the account, leaderboard and history HTTP API, and manages the PostgreSQL schema.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to configuration file")

	rootCmd.AddCommand(
		newServeCmd(&configPath),
		newMigrateCmd(&configPath),
	)
	return rootCmd
}
