// File: cmd/login.go
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/erplogin/api/schemas"
	"github.com/xkilldash9x/erplogin/internal/mailbox"
	"github.com/xkilldash9x/erplogin/internal/orchestrator"
	"github.com/xkilldash9x/erplogin/internal/portal"
	"github.com/xkilldash9x/erplogin/internal/profile"
)

type loginOptions struct {
	noSave bool
	open   bool
}

func newLoginCmd(a *app) *cobra.Command {
	opts := &loginOptions{}
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to the ERP portal with the stored credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLogin(cmd, a, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.noSave, "no-save", false, "do not persist the resulting session")
	cmd.Flags().BoolVar(&opts.open, "open", false, "open the portal in a browser after signing in")
	return cmd
}

func runLogin(cmd *cobra.Command, a *app, opts *loginOptions) error {
	ctx := cmd.Context()
	if timeout := a.cfg.Login().Timeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	prof, kv, err := a.openProfile(ctx)
	if err != nil {
		return err
	}
	defer kv.Close()

	auth, err := prof.MailboxAuth(ctx)
	if err != nil {
		return err
	}
	if auth == nil {
		return schemas.NewError(schemas.KindMailboxNotConnected, "mailbox is not connected; run 'erplogin mailbox connect' first")
	}
	mb, err := a.deps.newMailbox(ctx, a.cfg, auth, a.logger)
	if err != nil {
		return err
	}
	poller := mailbox.NewPoller(mb, mailbox.PollerConfig{
		Query:      a.cfg.Mailbox().Query,
		MaxResults: a.cfg.Mailbox().MaxResults,
	}, a.logger)

	client, err := a.newPortalClient()
	if err != nil {
		return err
	}
	defer client.CloseIdleConnections()

	lc := a.cfg.Login()
	orch, err := orchestrator.New(orchestrator.Config{
		MaxOTPAttempts: lc.MaxOTPAttempts,
		OTPBackoff:     lc.OTPBackoff,
		PollAttempts:   lc.PollAttempts,
		PollInterval:   lc.PollInterval,
	}, client, poller, prof, a.logger)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	printer := newProgressPrinter(out)
	result, err := orch.Run(ctx, nil, printer.Handle)
	if err != nil {
		return err
	}

	if !opts.noSave {
		sess, err := prof.SaveSession(ctx, profile.SessionFromResult(result, client.SessionCookies()))
		if err != nil {
			return err
		}
		if err := prof.SetLastLogin(ctx, sess.Timestamp); err != nil {
			a.logger.Warn("Failed to record last login.", zap.Error(err))
		}
		fmt.Fprintf(out, "Session saved; valid for %s.\n", profile.FormatRemaining(sess.Remaining(a.deps.now())))
	}

	target := client.Endpoints().Homepage
	if result.SSOToken != "" {
		if target, err = client.AuthenticatedURL(result.SSOToken); err != nil {
			return err
		}
		fmt.Fprintf(out, "Portal link: %s\n", target)
	} else {
		fmt.Fprintln(out, "Signed in via the welcome page; the portal did not issue an SSO token.")
	}

	if opts.open {
		return a.deps.newBrowser(a.cfg.Browser(), a.logger).Open(ctx, target, client.SessionCookies(), !a.cfg.Browser().Headless)
	}
	return nil
}

// openPortal is shared with 'session open'.
func openPortal(ctx context.Context, a *app, sess *schemas.ERPSession) error {
	ep := portal.EndpointsFor(a.cfg.Portal().BaseURL)
	target := ep.Homepage
	if sess.SSOToken != "" {
		var err error
		if target, err = portal.AuthenticatedURL(ep, sess.SSOToken); err != nil {
			return err
		}
	}
	return a.deps.newBrowser(a.cfg.Browser(), a.logger).Open(ctx, target, sess.Cookies, !a.cfg.Browser().Headless)
}
