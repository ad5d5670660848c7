// internal/profile/profile.go
// Description: Typed access to everything the CLI persists between runs: credentials,
// mailbox authorization, the last ERP session and the last login time.

package profile

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/erplogin/api/schemas"
	"github.com/xkilldash9x/erplogin/internal/store"
)

// Storage keys.
const (
	KeyUserData   = "user_data"
	KeyGmailData  = "gmail_data"
	KeyLastLogin  = "last_login"
	KeyERPSession = "erp_session"
)

// DefaultSessionTTL is how long a saved ERP session is trusted when the portal does not
// say otherwise.
const DefaultSessionTTL = 10 * time.Minute

// Service wraps a KV store with the profile's keys and expiry rules.
type Service struct {
	kv     store.KV
	ttl    time.Duration
	now    func() time.Time
	logger *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithSessionTTL overrides the session lifetime.
func WithSessionTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates a profile Service over kv.
func New(kv store.KV, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{kv: kv, ttl: DefaultSessionTTL, now: time.Now, logger: logger.Named("profile")}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// -- Credentials --

// SaveCredentials stores the credentials, stamping them and filling missing question IDs.
func (s *Service) SaveCredentials(ctx context.Context, creds schemas.Credentials) error {
	for i := range creds.SecurityQuestions {
		if creds.SecurityQuestions[i].ID == "" {
			creds.SecurityQuestions[i].ID = schemas.SecurityQuestionID(creds.SecurityQuestions[i].Question)
		}
	}
	creds.Timestamp = s.now()
	if err := s.kv.Set(ctx, KeyUserData, creds); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	s.logger.Info("Credentials saved.",
		zap.String("roll_number", creds.RollNumber),
		zap.Int("security_questions", len(creds.SecurityQuestions)),
	)
	return nil
}

// Credentials returns the stored credentials, or nil when none are saved.
func (s *Service) Credentials(ctx context.Context) (*schemas.Credentials, error) {
	var creds schemas.Credentials
	found, err := s.kv.Get(ctx, KeyUserData, &creds)
	if err != nil {
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &creds, nil
}

// UpdateCredentials applies fn to the stored credentials. It reports false when nothing
// is stored.
func (s *Service) UpdateCredentials(ctx context.Context, fn func(*schemas.Credentials)) (bool, error) {
	creds, err := s.Credentials(ctx)
	if err != nil || creds == nil {
		return false, err
	}
	fn(creds)
	return true, s.SaveCredentials(ctx, *creds)
}

// ClearCredentials deletes the stored credentials.
func (s *Service) ClearCredentials(ctx context.Context) error {
	return s.kv.Remove(ctx, KeyUserData)
}

// -- Mailbox --

// SaveMailboxAuth stores the mailbox authorization.
func (s *Service) SaveMailboxAuth(ctx context.Context, auth schemas.MailboxAuth) error {
	if auth.ConnectedAt.IsZero() {
		auth.ConnectedAt = s.now()
	}
	return s.kv.Set(ctx, KeyGmailData, auth)
}

// MailboxAuth returns the stored authorization, or nil when the mailbox is not connected.
func (s *Service) MailboxAuth(ctx context.Context) (*schemas.MailboxAuth, error) {
	var auth schemas.MailboxAuth
	found, err := s.kv.Get(ctx, KeyGmailData, &auth)
	if err != nil {
		return nil, fmt.Errorf("failed to load mailbox authorization: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &auth, nil
}

// ClearMailboxAuth disconnects the mailbox.
func (s *Service) ClearMailboxAuth(ctx context.Context) error {
	return s.kv.Remove(ctx, KeyGmailData)
}

// -- ERP Session --

// SaveSession persists a session. Timestamp is set to now and a zero ExpiresAt becomes
// now plus the session TTL.
func (s *Service) SaveSession(ctx context.Context, sess schemas.ERPSession) (*schemas.ERPSession, error) {
	now := s.now()
	sess.Timestamp = now
	if sess.ExpiresAt.IsZero() {
		sess.ExpiresAt = now.Add(s.ttl)
	}
	if err := s.kv.Set(ctx, KeyERPSession, sess); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	return &sess, nil
}

// SessionFromResult builds the session record for a successful login.
func SessionFromResult(result *schemas.LoginResult, cookies []schemas.SessionCookie) schemas.ERPSession {
	return schemas.ERPSession{
		SessionToken: result.SessionToken,
		SSOToken:     result.SSOToken,
		Cookies:      cookies,
	}
}

// Session returns the saved session. An expired session is deleted and reported as nil.
func (s *Service) Session(ctx context.Context) (*schemas.ERPSession, error) {
	sess, err := s.rawSession(ctx)
	if err != nil || sess == nil {
		return nil, err
	}
	if sess.Expired(s.now()) {
		s.logger.Debug("Purging expired session.", zap.Time("expired_at", sess.ExpiresAt))
		if err := s.ClearSession(ctx); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return sess, nil
}

// ClearSession deletes the saved session.
func (s *Service) ClearSession(ctx context.Context) error {
	return s.kv.Remove(ctx, KeyERPSession)
}

// SessionValid reports whether a session is saved and has an expiry in the future.
// Unlike Session it never deletes anything.
func (s *Service) SessionValid(ctx context.Context) (bool, error) {
	sess, err := s.rawSession(ctx)
	if err != nil || sess == nil {
		return false, err
	}
	return !sess.ExpiresAt.IsZero() && s.now().Before(sess.ExpiresAt), nil
}

// SessionRemaining returns the time left on the saved session, zero when there is none.
func (s *Service) SessionRemaining(ctx context.Context) (time.Duration, error) {
	sess, err := s.rawSession(ctx)
	if err != nil || sess == nil {
		return 0, err
	}
	return sess.Remaining(s.now()), nil
}

func (s *Service) rawSession(ctx context.Context) (*schemas.ERPSession, error) {
	var sess schemas.ERPSession
	found, err := s.kv.Get(ctx, KeyERPSession, &sess)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &sess, nil
}

// FormatRemaining renders a remaining duration as m:ss.
func FormatRemaining(d time.Duration) string {
	return schemas.FormatClock(d)
}

// -- Last Login --

// SetLastLogin records t as the last successful login.
func (s *Service) SetLastLogin(ctx context.Context, t time.Time) error {
	if t.IsZero() {
		t = s.now()
	}
	return s.kv.Set(ctx, KeyLastLogin, t)
}

// LastLogin returns the last successful login time and whether one is recorded.
func (s *Service) LastLogin(ctx context.Context) (time.Time, bool, error) {
	var t time.Time
	found, err := s.kv.Get(ctx, KeyLastLogin, &t)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to load last login: %w", err)
	}
	return t, found, nil
}

// -- Import --

// ImportYAML decodes credentials from a YAML document:
//
//	roll_number: 21CS10001
//	password: secret
//	security_questions:
//	  - question: What is your pet's name?
//	    answer: Bruno
func ImportYAML(r io.Reader) (*schemas.Credentials, error) {
	var creds schemas.Credentials
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&creds); err != nil {
		return nil, fmt.Errorf("failed to parse credentials file: %w", err)
	}
	if !schemas.ValidateCredentials(creds.RollNumber, creds.Password) {
		return nil, fmt.Errorf("invalid credentials: roll number must be at least 8 characters and password at least 6")
	}
	for i, q := range creds.SecurityQuestions {
		if q.Question == "" || q.Answer == "" {
			return nil, fmt.Errorf("security question %d is missing its question or answer", i+1)
		}
		if q.ID == "" {
			creds.SecurityQuestions[i].ID = schemas.SecurityQuestionID(q.Question)
		}
	}
	return &creds, nil
}
