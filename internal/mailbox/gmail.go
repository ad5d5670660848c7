// internal/mailbox/gmail.go
package mailbox

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/xkilldash9x/erplogin/api/schemas"
	"github.com/xkilldash9x/erplogin/internal/erp/extract"
)

// GmailUser addresses the mailbox of whoever owns the token.
const GmailUser = "me"

// GmailConfig tunes the Gmail REST client.
type GmailConfig struct {
	// Endpoint overrides the API base URL. Empty uses Google's production endpoint.
	Endpoint     string
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	Timeout      time.Duration
}

// Gmail implements Mailbox on top of the Gmail v1 API.
type Gmail struct {
	svc    *gmail.Service
	user   string
	logger *zap.Logger
}

// NewGmail builds a Gmail mailbox whose requests carry tokens from ts. Transient HTTP
// failures are retried by the transport before the poller ever sees them.
func NewGmail(ctx context.Context, cfg GmailConfig, ts oauth2.TokenSource, logger *zap.Logger) (*Gmail, error) {
	if ts == nil {
		return nil, schemas.NewError(schemas.KindMailboxNotConnected, "no mailbox token available")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("gmail")

	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.RetryMax
	if cfg.RetryWaitMin > 0 {
		rc.RetryWaitMin = cfg.RetryWaitMin
	}
	if cfg.RetryWaitMax > 0 {
		rc.RetryWaitMax = cfg.RetryWaitMax
	}
	rc.Logger = leveledLogger{logger.Sugar()}
	rc.RequestLogHook = func(_ retryablehttp.Logger, req *http.Request, attempt int) {
		if attempt > 0 {
			logger.Debug("Retrying mailbox request.", zap.String("method", req.Method), zap.String("path", req.URL.Path), zap.Int("attempt", attempt))
		}
	}
	base := rc.StandardClient()
	if cfg.Timeout > 0 {
		base.Timeout = cfg.Timeout
	}

	// oauth2 picks up the retrying client as its underlying transport.
	authCtx := context.WithValue(ctx, oauth2.HTTPClient, base)
	client := oauth2.NewClient(authCtx, ts)

	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(strings.TrimSuffix(cfg.Endpoint, "/")+"/"))
	}
	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail service: %w", err)
	}
	return &Gmail{svc: svc, user: GmailUser, logger: logger}, nil
}

// Search lists message stubs matching query, newest first.
func (g *Gmail) Search(ctx context.Context, query string, maxResults int) ([]MessageRef, error) {
	call := g.svc.Users.Messages.List(g.user).Q(query).Context(ctx)
	if maxResults > 0 {
		call = call.MaxResults(int64(maxResults))
	}
	resp, err := call.Do()
	if err != nil {
		return nil, classifyGmailError(err, "failed to search messages")
	}

	refs := make([]MessageRef, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		if m == nil || m.Id == "" {
			continue
		}
		refs = append(refs, MessageRef{ID: m.Id})
	}
	return refs, nil
}

// FetchFull fetches a message in full format.
func (g *Gmail) FetchFull(ctx context.Context, id string) (*Message, error) {
	msg, err := g.svc.Users.Messages.Get(g.user, id).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, classifyGmailError(err, "failed to get message")
	}
	out := &Message{ID: msg.Id}
	if msg.InternalDate > 0 {
		out.InternalDate = time.UnixMilli(msg.InternalDate)
	}
	if msg.Payload != nil {
		out.Payload = convertPart(msg.Payload)
	}
	return out, nil
}

// Profile returns the email address of the authorized account.
func (g *Gmail) Profile(ctx context.Context) (string, error) {
	p, err := g.svc.Users.GetProfile(g.user).Context(ctx).Do()
	if err != nil {
		return "", classifyGmailError(err, "failed to read mailbox profile")
	}
	return p.EmailAddress, nil
}

func convertPart(p *gmail.MessagePart) extract.MessagePart {
	part := extract.MessagePart{MimeType: p.MimeType}
	if p.Body != nil {
		part.Data = p.Body.Data
	}
	for _, child := range p.Parts {
		if child == nil {
			continue
		}
		part.Parts = append(part.Parts, convertPart(child))
	}
	return part
}

// classifyGmailError maps an unauthorized response onto MailboxNotConnected. Everything
// else is a network failure.
func classifyGmailError(err error, msg string) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && (gerr.Code == http.StatusUnauthorized || gerr.Code == http.StatusForbidden) {
		return schemas.WrapError(schemas.KindMailboxNotConnected, err, "%s", msg)
	}
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		return schemas.WrapError(schemas.KindMailboxNotConnected, err, "%s", msg)
	}
	return schemas.WrapError(schemas.KindNetwork, err, "%s", msg)
}

// leveledLogger adapts a sugared zap logger to retryablehttp.LeveledLogger.
type leveledLogger struct {
	s *zap.SugaredLogger
}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }
