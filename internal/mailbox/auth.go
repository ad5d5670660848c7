// internal/mailbox/auth.go
package mailbox

import (
	"context"
	"time"

	"golang.org/x/oauth2"

	"github.com/xkilldash9x/erplogin/api/schemas"
)

// ReadonlyScope is the only scope the poller needs.
const ReadonlyScope = "https://www.googleapis.com/auth/gmail.readonly"

// accessTokenLifetime is a conservative estimate of how long Google access tokens live.
const accessTokenLifetime = 55 * time.Minute

// OAuthConfig holds the client registration used to refresh tokens. When ClientID is
// empty the access token is used as is until it stops working.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
}

// TokenSource turns a stored authorization into an oauth2.TokenSource.
func TokenSource(ctx context.Context, auth *schemas.MailboxAuth, cfg OAuthConfig) (oauth2.TokenSource, error) {
	if auth == nil || auth.Token == "" {
		return nil, schemas.NewError(schemas.KindMailboxNotConnected, "mailbox is not connected")
	}
	tok := &oauth2.Token{AccessToken: auth.Token, TokenType: "Bearer"}

	if auth.RefreshToken == "" || cfg.ClientID == "" {
		return oauth2.StaticTokenSource(tok), nil
	}

	tok.RefreshToken = auth.RefreshToken
	// Without a known connect time the stored access token is treated as stale.
	tok.Expiry = time.Now()
	if !auth.ConnectedAt.IsZero() {
		tok.Expiry = auth.ConnectedAt.Add(accessTokenLifetime)
	}
	oc := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  cfg.AuthURL,
			TokenURL: cfg.TokenURL,
		},
		Scopes: []string{ReadonlyScope},
	}
	return oc.TokenSource(ctx, tok), nil
}
