// File: cmd/mailbox.go
package cmd

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/erplogin/api/schemas"
	"github.com/xkilldash9x/erplogin/internal/mailbox"
)

func newMailboxCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mailbox",
		Short: "Manage the mailbox the OTP is read from",
	}
	cmd.AddCommand(newMailboxConnectCmd(a), newMailboxDisconnectCmd(a), newMailboxStatusCmd(a))
	return cmd
}

func newMailboxConnectCmd(a *app) *cobra.Command {
	var auth schemas.MailboxAuth
	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Store a Gmail access token (and optionally a refresh token)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if auth.Token == "" {
				return fmt.Errorf("--token is required")
			}
			auth.GrantedScopes = []string{mailbox.ReadonlyScope}
			auth.ConnectedAt = a.deps.now()

			// Verify the token before storing it, and learn the address if not given.
			mb, err := a.deps.newMailbox(ctx, a.cfg, &auth, a.logger)
			if err != nil {
				return err
			}
			email, err := mb.Profile(ctx)
			if err != nil {
				return err
			}
			if auth.Email == "" {
				auth.Email = email
			} else if auth.Email != email {
				a.logger.Warn("Token belongs to a different account.", zap.String("expected", auth.Email), zap.String("actual", email))
				auth.Email = email
			}

			prof, kv, err := a.openProfile(ctx)
			if err != nil {
				return err
			}
			defer kv.Close()
			if err := prof.SaveMailboxAuth(ctx, auth); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Mailbox connected: %s\n", auth.Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&auth.Token, "token", "", "OAuth access token with the gmail.readonly scope")
	cmd.Flags().StringVar(&auth.RefreshToken, "refresh-token", "", "OAuth refresh token (requires mailbox.client_id)")
	cmd.Flags().StringVar(&auth.Email, "email", "", "expected account address")
	return cmd
}

func newMailboxDisconnectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect",
		Short: "Forget the stored mailbox authorization",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			prof, kv, err := a.openProfile(cmd.Context())
			if err != nil {
				return err
			}
			defer kv.Close()
			if err := prof.ClearMailboxAuth(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Mailbox disconnected.")
			return nil
		},
	}
}

func newMailboxStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the connected mailbox and verify its token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			prof, kv, err := a.openProfile(ctx)
			if err != nil {
				return err
			}
			defer kv.Close()

			out := cmd.OutOrStdout()
			auth, err := prof.MailboxAuth(ctx)
			if err != nil {
				return err
			}
			if auth == nil {
				fmt.Fprintln(out, "Mailbox: not connected")
				return nil
			}
			fmt.Fprintf(out, "Mailbox: %s (connected %s)\n", auth.Email, humanize.Time(auth.ConnectedAt))

			mb, err := a.deps.newMailbox(ctx, a.cfg, auth, a.logger)
			if err == nil {
				_, err = mb.Profile(ctx)
			}
			if err != nil {
				fmt.Fprintf(out, "Token:   rejected (%v)\n", err)
				return nil
			}
			fmt.Fprintln(out, "Token:   valid")
			return nil
		},
	}
}
