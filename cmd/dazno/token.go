// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Dazno Contributors

package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/dazno/dazno-umbrel/internal/config"
	"github.com/dazno/dazno-umbrel/internal/token"
)

// NewTokenCmd creates the token subcommand.
func NewTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage service bearer tokens",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "issue",
		Short: "Issue a bearer token signed with the configured secret",
		Long: `Print a bearer token for service callers. It is accepted until
auth.token_ttl after issue, by any dashboard sharing the same secret.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			tok, err := issueToken(cfg)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	})

	return cmd
}

func issueToken(cfg *config.Config) (string, error) {
	secret, err := cfg.Auth.ResolveSecret()
	if err != nil {
		return "", err
	}
	if secret.IsFallback() {
		slog.Warn("issuing a token signed with the built-in development secret")
	}
	codec, err := token.NewCodec([]byte(secret.Key), cfg.Auth.TokenTTL)
	if err != nil {
		return "", err
	}
	return codec.Issue(), nil
}
