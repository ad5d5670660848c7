// internal/portal/client.go
package portal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/erplogin/api/schemas"
	"github.com/xkilldash9x/erplogin/internal/erp/extract"
	"github.com/xkilldash9x/erplogin/internal/network"
)

const (
	defaultMaxRedirects = 10
	defaultMaxBodyBytes = 4 << 20

	// CaptchaSentinel is returned in place of a solved CAPTCHA.
	CaptchaSentinel = "0000"

	formContentType = "application/x-www-form-urlencoded"
	typeeeSignIn    = "SI"
)

// Config tunes a portal Client. Zero values take production defaults.
type Config struct {
	Endpoints    Endpoints
	Markers      *Markers
	Rules        *extract.Rules
	UserAgent    string
	MaxRedirects int
	MaxBodyBytes int64
}

// Client speaks the portal's login protocol over a cookie-carrying HTTP client.
// One Client corresponds to one portal session.
type Client struct {
	http   *network.Client
	cfg    Config
	logger *zap.Logger
}

// NewClient creates a portal client. When httpClient is nil a default network client is
// built with the configured User-Agent.
func NewClient(cfg Config, httpClient *network.Client, logger *zap.Logger) *Client {
	if cfg.Endpoints == (Endpoints{}) {
		cfg.Endpoints = DefaultEndpoints()
	}
	if cfg.Markers == nil {
		cfg.Markers = DefaultMarkers()
	}
	if cfg.Rules == nil {
		cfg.Rules = extract.DefaultRules()
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.MaxRedirects <= 0 {
		cfg.MaxRedirects = defaultMaxRedirects
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if httpClient == nil {
		netCfg := network.NewDefaultClientConfig()
		netCfg.UserAgent = cfg.UserAgent
		netCfg.Logger = logger
		httpClient = network.NewClient(netCfg)
	}
	return &Client{http: httpClient, cfg: cfg, logger: logger.Named("portal")}
}

// Endpoints returns the endpoint set in use.
func (c *Client) Endpoints() Endpoints { return c.cfg.Endpoints }

// CloseIdleConnections releases pooled connections once the session is done.
func (c *Client) CloseIdleConnections() { c.http.CloseIdleConnections() }

// FetchSessionToken loads the homepage and extracts the anti-forgery session token.
func (c *Client) FetchSessionToken(ctx context.Context) (string, error) {
	resp, body, err := c.do(ctx, http.MethodGet, c.cfg.Endpoints.Homepage, nil)
	if err != nil {
		return "", err
	}
	if !is2xx(resp.StatusCode) {
		return "", schemas.NewError(schemas.KindNetwork, "failed to get homepage: status %d", resp.StatusCode)
	}

	token, err := c.cfg.Rules.SessionToken(body)
	if err != nil {
		return "", err
	}
	c.logger.Debug("Session token acquired.", zap.Int("length", len(token)))
	return token, nil
}

// FetchSecurityQuestion asks the portal which security question it will pose for the roll
// number. A literal FALSE body means the roll number is unknown.
func (c *Client) FetchSecurityQuestion(ctx context.Context, rollNumber string) (string, error) {
	form := url.Values{"user_id": {rollNumber}}
	resp, body, err := c.do(ctx, http.MethodPost, c.cfg.Endpoints.Security, form)
	if err != nil {
		return "", err
	}
	if !is2xx(resp.StatusCode) {
		return "", schemas.NewError(schemas.KindNetwork, "failed to get security question: status %d", resp.StatusCode)
	}

	question := strings.TrimSpace(body)
	if question == "FALSE" {
		return "", schemas.NewError(schemas.KindInvalidRollNumber, "invalid roll number %q", rollNumber)
	}
	return question, nil
}

type otpResponse struct {
	Msg string `json:"msg"`
}

// RequestOTP asks the portal to email a one-time password.
func (c *Client) RequestOTP(ctx context.Context, creds *schemas.Credentials, sessionToken, answer string) error {
	resp, body, err := c.do(ctx, http.MethodPost, c.cfg.Endpoints.OTP, c.loginForm(creds, sessionToken, answer))
	if err != nil {
		return err
	}
	if !is2xx(resp.StatusCode) {
		return schemas.NewError(schemas.KindNetwork, "failed to request OTP: status %d", resp.StatusCode)
	}

	var reply otpResponse
	if err := json.UnmarshalFromString(body, &reply); err != nil {
		return schemas.WrapError(schemas.KindOTPRequestFailed, err, "unexpected OTP endpoint response")
	}
	if err := ClassifyOTPMessage(reply.Msg); err != nil {
		return err
	}
	c.logger.Info("OTP requested.", zap.String("portal_message", reply.Msg))
	return nil
}

// SubmitLogin posts the full payload including the OTP and classifies the outcome.
// Redirects are followed by hand so every intermediate Location is observed.
func (c *Client) SubmitLogin(ctx context.Context, creds *schemas.Credentials, sessionToken, otp, answer string) (*schemas.LoginResult, error) {
	form := c.loginForm(creds, sessionToken, answer)
	form.Set("email_otp", otp)

	method, target, payload := http.MethodPost, c.cfg.Endpoints.Login, form
	var (
		resp *http.Response
		body string
		err  error
	)
	for hop := 0; ; hop++ {
		resp, body, err = c.do(ctx, method, target, payload)
		if err != nil {
			return nil, err
		}
		if !isRedirect(resp.StatusCode) {
			break
		}

		location := resp.Header.Get("Location")
		if resp.StatusCode == http.StatusMovedPermanently || resp.StatusCode == http.StatusFound {
			if sso, ok := c.cfg.Rules.SSOToken(location); ok {
				c.logger.Info("Login succeeded via redirect.", zap.Int("hop", hop))
				return &schemas.LoginResult{Success: true, SSOToken: sso}, nil
			}
		}
		if location == "" || hop+1 >= c.cfg.MaxRedirects {
			break
		}
		next, err := resp.Request.URL.Parse(location)
		if err != nil {
			c.logger.Warn("Ignoring unparseable redirect.", zap.String("location", location), zap.Error(err))
			break
		}
		target = next.String()
		if resp.StatusCode != http.StatusTemporaryRedirect && resp.StatusCode != http.StatusPermanentRedirect {
			method, payload = http.MethodGet, nil
		}
	}

	if finalURL := resp.Request.URL.String(); finalURL != "" {
		if sso, ok := c.cfg.Rules.SSOToken(finalURL); ok {
			c.logger.Info("Login succeeded via final URL.")
			return &schemas.LoginResult{Success: true, SSOToken: sso}, nil
		}
	}

	welcome, err := c.cfg.Markers.ClassifyBody(body)
	if err != nil {
		var perr *schemas.Error
		if errors.As(err, &perr) && perr.Kind == schemas.KindLoginFailed {
			perr.Message = fmt.Sprintf("%s (status %d)", perr.Message, resp.StatusCode)
		}
		return nil, err
	}
	c.logger.Info("Login succeeded via welcome page; no SSO token issued.")
	return &schemas.LoginResult{Success: true, WelcomePage: welcome, Message: "Login successful"}, nil
}

// CheckSession reports whether the cookie session still reaches the dashboard.
func (c *Client) CheckSession(ctx context.Context) (bool, error) {
	_, body, err := c.do(ctx, http.MethodGet, c.cfg.Endpoints.Dashboard, nil)
	if err != nil {
		return false, err
	}
	return !strings.Contains(body, "login") && strings.Contains(body, "welcome"), nil
}

// AuthenticatedURL builds the deep link that opens the portal with an SSO token.
func (c *Client) AuthenticatedURL(ssoToken string) (string, error) {
	return AuthenticatedURL(c.cfg.Endpoints, ssoToken)
}

// AuthenticatedURL builds the deep link for the given endpoint set.
func AuthenticatedURL(ep Endpoints, ssoToken string) (string, error) {
	if ssoToken == "" {
		return "", schemas.NewError(schemas.KindLoginFailed, "session has no SSO token; portal cannot be deep-linked")
	}
	return ep.Homepage + "?ssoToken=" + url.QueryEscape(ssoToken), nil
}

// SolveCaptcha is not supported. It returns the fixed sentinel and an error so callers
// can fall back to manual entry.
func SolveCaptcha() (string, error) {
	return CaptchaSentinel, schemas.NewError(schemas.KindCaptchaUnsupported, "automatic CAPTCHA solving is not supported; enter it manually")
}

// SessionCookies snapshots the portal cookies for persistence.
func (c *Client) SessionCookies() []schemas.SessionCookie {
	u, err := url.Parse(c.cfg.Endpoints.Homepage)
	if err != nil {
		return nil
	}
	var out []schemas.SessionCookie
	for _, ck := range c.http.Cookies(u) {
		out = append(out, schemas.SessionCookie{Name: ck.Name, Value: ck.Value, Domain: u.Hostname(), Path: "/"})
	}
	return out
}

// RestoreCookies seeds the jar from a persisted session.
func (c *Client) RestoreCookies(cookies []schemas.SessionCookie) {
	u, err := url.Parse(c.cfg.Endpoints.Homepage)
	if err != nil || len(cookies) == 0 {
		return
	}
	hc := make([]*http.Cookie, 0, len(cookies))
	for _, ck := range cookies {
		path := ck.Path
		if path == "" {
			path = "/"
		}
		hc = append(hc, &http.Cookie{Name: ck.Name, Value: ck.Value, Path: path})
	}
	c.http.SetCookies(u, hc)
}

func (c *Client) loginForm(creds *schemas.Credentials, sessionToken, answer string) url.Values {
	return url.Values{
		"user_id":      {creds.RollNumber},
		"password":     {creds.Password},
		"answer":       {answer},
		"typeee":       {typeeeSignIn},
		"sessionToken": {sessionToken},
		"requestedUrl": {c.cfg.Endpoints.Homepage},
	}
}

// do performs one request and reads the capped body. Transport failures become
// NetworkError; status handling is left to the caller.
func (c *Client) do(ctx context.Context, method, target string, form url.Values) (*http.Response, string, error) {
	var reqBody io.Reader
	if form != nil {
		reqBody = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
	if err != nil {
		return nil, "", schemas.WrapError(schemas.KindNetwork, err, "failed to build %s request", method)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	if form != nil {
		req.Header.Set("Content-Type", formContentType)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, "", ctxErr
		}
		return nil, "", schemas.WrapError(schemas.KindNetwork, err, "%s %s failed", method, req.URL.Path)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxBodyBytes))
	if err != nil {
		return nil, "", schemas.WrapError(schemas.KindNetwork, err, "failed to read %s response", req.URL.Path)
	}
	c.logger.Debug("Portal request completed.",
		zap.String("method", method),
		zap.String("path", req.URL.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)
	return resp, string(raw), nil
}

func is2xx(code int) bool { return code >= 200 && code < 300 }

func isRedirect(code int) bool {
	switch code {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}
