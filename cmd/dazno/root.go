// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Dazno Contributors

package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/dazno/dazno-umbrel/internal/config"
	"github.com/dazno/dazno-umbrel/internal/logging"
)

const serviceName = "dazno"

// NewRootCmd creates the root command for the dazno CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dazno",
		Short: "Dazno - Lightning node dashboard",
		Long: `Dazno serves the Lightning node dashboard behind a password login,
service bearer tokens and per-client rate limits.`,
		SilenceUsage: true,
	}

	addGlobalFlags(cmd)

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewBootstrapAdminCmd())
	cmd.AddCommand(NewTokenCmd())
	cmd.AddCommand(NewConfigCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// addGlobalFlags registers the flags every subcommand reads through
// loadConfig.
func addGlobalFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().String("config", "", "config file path (default: $XDG_CONFIG_HOME/dazno/config.yaml)")
	cmd.PersistentFlags().String("log-format", config.DefaultLogFormat, "log format (json or text)")
	cmd.PersistentFlags().String("log-level", config.DefaultLogLevel, "log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("database-url", "", "PostgreSQL connection URL (default: $DATABASE_URL)")
}

// NewVersionCmd creates the version subcommand.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.Printf("dazno %s\ncommit: %s\nbuilt:  %s\n", version, commit, date)
			return nil
		},
	}
}

// loadConfig reads configuration for cmd and installs the default logger.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(config.LoadOptions{File: path, Flags: cmd.Flags()})
	if err != nil {
		return nil, err
	}
	logging.SetDefault(serviceName, version, cfg.Log.Format, cfg.LogLevel())
	slog.Debug("configuration loaded", "profile", cfg.Session.Profile, "addr", cfg.Server.Addr)
	return cfg, nil
}
