// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Dazno Contributors

package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/dazno/dazno-umbrel/internal/auth"
	"github.com/dazno/dazno-umbrel/internal/config"
)

// NewBootstrapAdminCmd creates the bootstrap-admin subcommand.
func NewBootstrapAdminCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bootstrap-admin",
		Short: "Create the admin account and print its temporary password",
		Long: `Create the admin account on an empty database and print the generated
password once. The password must be changed at first login. Fails when any
user already exists.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runBootstrapAdmin(cmd.Context(), cfg, cmd, nil)
		},
	}
}

func runBootstrapAdmin(ctx context.Context, cfg *config.Config, cmd *cobra.Command, deps *ServeDeps) error {
	if ctx == nil {
		ctx = context.Background()
	}
	deps = deps.withDefaults()
	if err := cfg.RequireDatabase(); err != nil {
		return err
	}

	st, err := deps.StoreFactory(ctx, cfg.Database.URL)
	if err != nil {
		return oops.With("operation", "open store").Wrap(err)
	}
	defer st.Close()

	svc, err := auth.NewService(st.Users(), deps.Hasher)
	if err != nil {
		return err
	}
	password, err := svc.InitializeDefaultUser(ctx)
	if errors.Is(err, auth.ErrAlreadyInitialized) {
		return oops.Code("ALREADY_INITIALIZED").Errorf("a user already exists; bootstrap only runs on an empty database")
	}
	if err != nil {
		return err
	}

	printAdminCredentials(cmd.OutOrStdout(), password)
	return nil
}

func printAdminCredentials(out io.Writer, password string) {
	_, _ = fmt.Fprintf(out, "Username: %s\n", auth.DefaultAdminUsername)
	_, _ = fmt.Fprintf(out, "Password: %s\n", password)
	_, _ = fmt.Fprintln(out, "Sign in and change this password now; it is not stored anywhere.")
}
