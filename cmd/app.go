// File: cmd/app.go
package cmd

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/erplogin/api/schemas"
	"github.com/xkilldash9x/erplogin/internal/browser"
	"github.com/xkilldash9x/erplogin/internal/config"
	"github.com/xkilldash9x/erplogin/internal/mailbox"
	"github.com/xkilldash9x/erplogin/internal/network"
	"github.com/xkilldash9x/erplogin/internal/portal"
	"github.com/xkilldash9x/erplogin/internal/profile"
	"github.com/xkilldash9x/erplogin/internal/store"
)

// mailboxClient is a Mailbox that can also name its account.
type mailboxClient interface {
	mailbox.Mailbox
	Profile(ctx context.Context) (string, error)
}

// browserOpener launches a browser on the portal.
type browserOpener interface {
	Open(ctx context.Context, target string, cookies []schemas.SessionCookie, wait bool) error
}

// dependencies are the constructors commands use to reach the outside world. Tests swap
// them for fakes.
type dependencies struct {
	openStore  func(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (store.KV, error)
	newMailbox func(ctx context.Context, cfg *config.Config, auth *schemas.MailboxAuth, logger *zap.Logger) (mailboxClient, error)
	newBrowser func(cfg config.BrowserConfig, logger *zap.Logger) browserOpener
	now        func() time.Time
}

func defaultDependencies() dependencies {
	return dependencies{
		openStore: func(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (store.KV, error) {
			return store.Open(ctx, store.Config{Backend: cfg.Backend, Path: cfg.Path, DSN: cfg.DSN}, logger)
		},
		newMailbox: newGmailMailbox,
		newBrowser: func(cfg config.BrowserConfig, logger *zap.Logger) browserOpener {
			return browser.NewOpener(browser.Config{ExecPath: cfg.ExecPath, Headless: cfg.Headless, Timeout: cfg.Timeout}, logger)
		},
		now: time.Now,
	}
}

// app carries per-invocation state from the root command to its children.
type app struct {
	cfgFile string
	cfg     *config.Config
	logger  *zap.Logger
	deps    dependencies
}

// openProfile opens the store and wraps it in the profile service. The caller closes the
// returned store.
func (a *app) openProfile(ctx context.Context) (*profile.Service, store.KV, error) {
	kv, err := a.deps.openStore(ctx, a.cfg.Store(), a.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open store: %w", err)
	}
	svc := profile.New(kv, a.logger,
		profile.WithSessionTTL(a.cfg.Session().TTL),
		profile.WithClock(a.deps.now),
	)
	return svc, kv, nil
}

// newPortalClient builds a portal client over a fresh cookie jar.
func (a *app) newPortalClient() (*portal.Client, error) {
	netCfg := a.cfg.Network()
	portalCfg := a.cfg.Portal()

	clientCfg := network.NewDefaultClientConfig()
	clientCfg.RequestTimeout = netCfg.Timeout
	clientCfg.DialerConfig.Timeout = netCfg.DialTimeout
	clientCfg.DialerConfig.KeepAlive = netCfg.KeepAlive
	clientCfg.IdleConnTimeout = netCfg.IdleConnTimeout
	clientCfg.IgnoreTLSErrors = netCfg.IgnoreTLSErrors
	clientCfg.RequestsPerSecond = netCfg.RequestsPerSecond
	clientCfg.Burst = netCfg.Burst
	clientCfg.Logger = a.logger
	if portalCfg.UserAgent != "" {
		clientCfg.UserAgent = portalCfg.UserAgent
	} else {
		clientCfg.UserAgent = portal.DefaultUserAgent
	}
	if netCfg.Proxy.Enabled {
		proxyURL, err := url.Parse(netCfg.Proxy.Address)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy address: %w", err)
		}
		clientCfg.ProxyURL = proxyURL
	}

	return portal.NewClient(portal.Config{
		Endpoints:    portal.EndpointsFor(portalCfg.BaseURL),
		UserAgent:    clientCfg.UserAgent,
		MaxRedirects: portalCfg.MaxRedirects,
		MaxBodyBytes: portalCfg.MaxBodyBytes,
	}, network.NewClient(clientCfg), a.logger), nil
}

func newGmailMailbox(ctx context.Context, cfg *config.Config, auth *schemas.MailboxAuth, logger *zap.Logger) (mailboxClient, error) {
	mcfg := cfg.Mailbox()
	ts, err := mailbox.TokenSource(ctx, auth, mailbox.OAuthConfig{
		ClientID:     mcfg.ClientID,
		ClientSecret: mcfg.ClientSecret,
		AuthURL:      mcfg.AuthURL,
		TokenURL:     mcfg.TokenURL,
	})
	if err != nil {
		return nil, err
	}
	return mailbox.NewGmail(ctx, mailbox.GmailConfig{
		Endpoint: mcfg.Endpoint,
		RetryMax: mcfg.RetryMax,
		Timeout:  mcfg.Timeout,
	}, ts, logger)
}
