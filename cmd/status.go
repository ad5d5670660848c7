// File: cmd/status.go
package cmd

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/erplogin/internal/profile"
)

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Summarize credentials, mailbox and session state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			prof, kv, err := a.openProfile(ctx)
			if err != nil {
				return err
			}
			defer kv.Close()

			var credsLine, mailboxLine, sessionLine string
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				creds, err := prof.Credentials(gctx)
				if err != nil {
					return err
				}
				if creds == nil {
					credsLine = "not configured (run 'erplogin setup')"
					return nil
				}
				credsLine = fmt.Sprintf("%s, %d security question(s)", creds.RollNumber, len(creds.SecurityQuestions))
				return nil
			})
			g.Go(func() error {
				auth, err := prof.MailboxAuth(gctx)
				if err != nil {
					return err
				}
				if auth == nil {
					mailboxLine = "not connected (run 'erplogin mailbox connect')"
					return nil
				}
				mailboxLine = auth.Email
				return nil
			})
			g.Go(func() error {
				remaining, err := prof.SessionRemaining(gctx)
				if err != nil {
					return err
				}
				if remaining == 0 {
					sessionLine = "none"
				} else {
					sessionLine = "active, expires in " + profile.FormatRemaining(remaining)
				}
				if last, ok, err := prof.LastLogin(gctx); err != nil {
					return err
				} else if ok {
					sessionLine += "; last login " + humanize.Time(last)
				}
				return nil
			})
			if err := g.Wait(); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Credentials: %s\n", credsLine)
			fmt.Fprintf(out, "Mailbox:     %s\n", mailboxLine)
			fmt.Fprintf(out, "Session:     %s\n", sessionLine)
			return nil
		},
	}
}
