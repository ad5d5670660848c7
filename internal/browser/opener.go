// internal/browser/opener.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/erplogin/api/schemas"
)

// Config controls the browser launched for an authenticated session.
type Config struct {
	ExecPath string
	Headless bool
	// Timeout bounds navigation only; a visible browser stays open until closed.
	Timeout time.Duration
}

// Opener launches Chrome on the portal with the saved session attached.
type Opener struct {
	cfg    Config
	logger *zap.Logger
}

// NewOpener creates an Opener.
func NewOpener(cfg Config, logger *zap.Logger) *Opener {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Opener{cfg: cfg, logger: logger.Named("browser")}
}

// AllocatorOptions translates the config into chromedp allocator options.
func (o *Opener) AllocatorOptions() []chromedp.ExecAllocatorOption {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Flag("disable-dev-shm-usage", true),
	}
	if o.cfg.Headless {
		opts = append(opts, chromedp.Headless, chromedp.DisableGPU)
	}
	if o.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(o.cfg.ExecPath))
	}
	return opts
}

// CookieParams converts saved cookies into DevTools cookie commands scoped to target's host.
func CookieParams(target string, cookies []schemas.SessionCookie) ([]*network.SetCookieParams, error) {
	u, err := url.Parse(target)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid target URL %q", target)
	}
	params := make([]*network.SetCookieParams, 0, len(cookies))
	for _, c := range cookies {
		domain := c.Domain
		if domain == "" {
			domain = u.Hostname()
		}
		path := c.Path
		if path == "" {
			path = "/"
		}
		params = append(params, network.SetCookie(c.Name, c.Value).
			WithDomain(domain).
			WithPath(path).
			WithSecure(u.Scheme == "https"))
	}
	return params, nil
}

// Open navigates to target with cookies installed. With wait set it blocks until the
// browser is closed or ctx ends; otherwise it returns after navigation and the browser
// is torn down.
func (o *Opener) Open(ctx context.Context, target string, cookies []schemas.SessionCookie, wait bool) error {
	params, err := CookieParams(target, cookies)
	if err != nil {
		return err
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, o.AllocatorOptions()...)
	defer allocCancel()
	taskCtx, taskCancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(o.logger.Sugar().Debugf))
	defer taskCancel()

	navCtx, navCancel := context.WithTimeout(taskCtx, o.cfg.Timeout)
	defer navCancel()

	actions := chromedp.Tasks{
		network.Enable(),
		chromedp.ActionFunc(func(ctx context.Context) error {
			for _, p := range params {
				if err := p.Do(ctx); err != nil {
					return fmt.Errorf("failed to set cookie %s: %w", p.Name, err)
				}
			}
			return nil
		}),
		chromedp.Navigate(target),
	}
	if err := chromedp.Run(navCtx, actions); err != nil {
		return fmt.Errorf("failed to open portal: %w", err)
	}
	o.logger.Info("Portal opened in browser.", zap.Int("cookies", len(params)))

	if !wait {
		return nil
	}
	<-taskCtx.Done()
	if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
