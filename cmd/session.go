// File: cmd/session.go
package cmd

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/erplogin/api/schemas"
	"github.com/xkilldash9x/erplogin/internal/observability"
	"github.com/xkilldash9x/erplogin/internal/profile"
)

func newSessionCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect or reuse the saved ERP session",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Show the saved session",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				ctx := cmd.Context()
				prof, kv, err := a.openProfile(ctx)
				if err != nil {
					return err
				}
				defer kv.Close()

				out := cmd.OutOrStdout()
				if last, ok, err := prof.LastLogin(ctx); err != nil {
					return err
				} else if ok {
					fmt.Fprintf(out, "Last login:    %s\n", humanize.Time(last))
				}

				sess, err := prof.Session(ctx)
				if err != nil {
					return err
				}
				if sess == nil {
					fmt.Fprintln(out, "No active session.")
					return nil
				}
				now := a.deps.now()
				fmt.Fprintf(out, "Session token: %s\n", observability.Redact(sess.SessionToken))
				if sess.SSOToken != "" {
					fmt.Fprintf(out, "SSO token:     %s\n", observability.Redact(sess.SSOToken))
				} else {
					fmt.Fprintln(out, "SSO token:     none (welcome-page login)")
				}
				fmt.Fprintf(out, "Cookies:       %d\n", len(sess.Cookies))
				fmt.Fprintf(out, "Created:       %s\n", humanize.RelTime(sess.Timestamp, now, "ago", "from now"))
				fmt.Fprintf(out, "Expires in:    %s\n", profile.FormatRemaining(sess.Remaining(now)))
				return nil
			},
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Forget the saved session",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				prof, kv, err := a.openProfile(cmd.Context())
				if err != nil {
					return err
				}
				defer kv.Close()
				if err := prof.ClearSession(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Session cleared.")
				return nil
			},
		},
		&cobra.Command{
			Use:   "open",
			Short: "Open the portal in a browser with the saved session",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				ctx := cmd.Context()
				sess, err := loadSession(cmd, a)
				if err != nil {
					return err
				}
				return openPortal(ctx, a, sess)
			},
		},
		&cobra.Command{
			Use:   "check",
			Short: "Ask the portal whether the saved session is still alive",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				sess, err := loadSession(cmd, a)
				if err != nil {
					return err
				}
				client, err := a.newPortalClient()
				if err != nil {
					return err
				}
				defer client.CloseIdleConnections()
				client.RestoreCookies(sess.Cookies)

				alive, err := client.CheckSession(cmd.Context())
				if err != nil {
					return err
				}
				if alive {
					fmt.Fprintln(cmd.OutOrStdout(), "Session is active on the portal.")
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), "Session is no longer accepted by the portal.")
				}
				return nil
			},
		},
	)
	return cmd
}

func loadSession(cmd *cobra.Command, a *app) (*schemas.ERPSession, error) {
	prof, kv, err := a.openProfile(cmd.Context())
	if err != nil {
		return nil, err
	}
	defer kv.Close()
	sess, err := prof.Session(cmd.Context())
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, fmt.Errorf("no active session; run 'erplogin login' first")
	}
	return sess, nil
}
