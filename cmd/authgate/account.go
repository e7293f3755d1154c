// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package main

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/authgate/authgate/internal/auth"
)

const defaultAdminTimeout = 30 * time.Second

// NewAccountCmd creates the account subcommand.
func NewAccountCmd() *cobra.Command {
	return newAccountCmdWithDeps(nil)
}

func newAccountCmdWithDeps(deps *AdminDeps) *cobra.Command {
	deps = deps.withDefaults()

	cmd := &cobra.Command{
		Use:   "account",
		Short: "Administer accounts",
		Long:  `Create accounts and change their activation status.`,
	}

	cmd.PersistentFlags().Duration("timeout", defaultAdminTimeout, "timeout for database operations (e.g., 30s, 1m)")

	cmd.AddCommand(newAccountCreateCmd(deps))
	cmd.AddCommand(newAccountSetStatusCmd(deps))

	return cmd
}

// withRepository opens the account store under the command timeout, runs fn
// and closes the store.
func withRepository(cmd *cobra.Command, deps *AdminDeps, fn func(context.Context, auth.AccountRepository) error) error {
	databaseURL, err := requireDatabaseURL(cmd)
	if err != nil {
		return err
	}
	timeout, err := cmd.Flags().GetDuration("timeout")
	if err != nil {
		return oops.Code("CONFIG_INVALID").With("key", "timeout").Wrap(err)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	opened, err := deps.StoreOpener(ctx, databaseURL)
	if err != nil {
		return err
	}
	if opened.close != nil {
		defer opened.close()
	}

	return fn(ctx, opened.repo)
}

func newAccountCreateCmd(deps *AdminDeps) *cobra.Command {
	var (
		email string
		name  string
		role  string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an account",
		Long: `Create an ACTIVE account. The password is prompted for on a terminal,
otherwise the first line of standard input is used.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			parsedRole, err := auth.ParseRole(role)
			if err != nil {
				return err
			}

			password, err := readPassword(cmd)
			if err != nil {
				return err
			}
			hash, err := deps.Hasher.Hash(password)
			if err != nil {
				return err
			}

			var namePtr *string
			if name != "" {
				namePtr = &name
			}
			account, err := auth.NewAccount(email, namePtr, hash, parsedRole)
			if err != nil {
				return err
			}

			return withRepository(cmd, deps, func(ctx context.Context, repo auth.AccountRepository) error {
				if err := repo.Create(ctx, account); err != nil {
					return err
				}
				cmd.Printf("Created account %s (%s, %s)\n", account.ID, account.Email, account.Role)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "account email (required)")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&role, "role", string(auth.RoleUser), "role (ADMIN or USER)")
	_ = cmd.MarkFlagRequired("email") //nolint:errcheck // flag is defined above

	return cmd
}

func newAccountSetStatusCmd(deps *AdminDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "set-status EMAIL ACTIVE|INACTIVE",
		Short: "Activate or deactivate an account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := auth.ParseStatus(args[1])
			if err != nil {
				return err
			}
			email := auth.NormalizeEmail(args[0])

			return withRepository(cmd, deps, func(ctx context.Context, repo auth.AccountRepository) error {
				account, err := repo.FindByEmail(ctx, email)
				if err != nil {
					return err
				}
				if err := repo.SetStatus(ctx, account.ID, status); err != nil {
					return err
				}
				cmd.Printf("Account %s is now %s\n", account.Email, status)
				return nil
			})
		},
	}
}

// readPassword prompts twice on a terminal, otherwise reads one line.
func readPassword(cmd *cobra.Command) (string, error) {
	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return promptPassword(cmd, int(f.Fd()))
	}
	return readPasswordLine(in)
}

func promptPassword(cmd *cobra.Command, fd int) (string, error) {
	cmd.PrintErr("Password: ")
	first, err := term.ReadPassword(fd)
	cmd.PrintErrln()
	if err != nil {
		return "", oops.Code("PASSWORD_READ_FAILED").Wrap(err)
	}

	cmd.PrintErr("Confirm password: ")
	second, err := term.ReadPassword(fd)
	cmd.PrintErrln()
	if err != nil {
		return "", oops.Code("PASSWORD_READ_FAILED").Wrap(err)
	}

	if string(first) != string(second) {
		return "", oops.Code("PASSWORD_MISMATCH").Errorf("passwords do not match")
	}
	if len(first) == 0 {
		return "", oops.Code("AUTH_EMPTY_PASSWORD").Errorf("password cannot be empty")
	}
	return string(first), nil
}

func readPasswordLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", oops.Code("PASSWORD_READ_FAILED").Wrap(err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", oops.Code("AUTH_EMPTY_PASSWORD").Errorf("password cannot be empty")
	}
	return password, nil
}
