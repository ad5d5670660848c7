// internal/orchestrator/orchestrator.go
// Description: Drives one login against the portal. Collaborators are injected through
// interfaces so the state machine can be exercised without a network.

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/erplogin/api/schemas"
	"github.com/xkilldash9x/erplogin/internal/erp/matcher"
)

// Defaults for the OTP submission loop and the mailbox polls inside it.
const (
	DefaultMaxOTPAttempts = 10
	DefaultOTPBackoff     = 5 * time.Second
	DefaultPollAttempts   = 10
	DefaultPollInterval   = 5 * time.Second
)

// Portal is the subset of the portal transport the orchestrator drives.
type Portal interface {
	FetchSessionToken(ctx context.Context) (string, error)
	FetchSecurityQuestion(ctx context.Context, rollNumber string) (string, error)
	RequestOTP(ctx context.Context, creds *schemas.Credentials, sessionToken, answer string) error
	SubmitLogin(ctx context.Context, creds *schemas.Credentials, sessionToken, otp, answer string) (*schemas.LoginResult, error)
}

// OTPSource waits for a fresh one-time password.
type OTPSource interface {
	AwaitOTP(ctx context.Context, maxAttempts int, interval time.Duration, onStatus schemas.StatusFunc) (string, error)
}

// CredentialsSource loads stored credentials. A nil result with a nil error means none
// are stored.
type CredentialsSource interface {
	Credentials(ctx context.Context) (*schemas.Credentials, error)
}

// Config holds the retry constants for a run.
type Config struct {
	MaxOTPAttempts int
	OTPBackoff     time.Duration
	PollAttempts   int
	PollInterval   time.Duration
}

// DefaultConfig returns the production constants.
func DefaultConfig() Config {
	return Config{
		MaxOTPAttempts: DefaultMaxOTPAttempts,
		OTPBackoff:     DefaultOTPBackoff,
		PollAttempts:   DefaultPollAttempts,
		PollInterval:   DefaultPollInterval,
	}
}

// Orchestrator composes the portal, the mailbox and the question matcher into the login
// state machine. It holds no per-run state, so one value can serve sequential runs.
type Orchestrator struct {
	cfg    Config
	portal Portal
	otp    OTPSource
	creds  CredentialsSource
	logger *zap.Logger
}

// New creates an Orchestrator. creds may be nil when callers always pass credentials to Run.
func New(cfg Config, portal Portal, otp OTPSource, creds CredentialsSource, logger *zap.Logger) (*Orchestrator, error) {
	if portal == nil || otp == nil {
		return nil, errors.New("cannot initialize orchestrator with nil portal or otp source")
	}
	def := DefaultConfig()
	if cfg.MaxOTPAttempts <= 0 {
		cfg.MaxOTPAttempts = def.MaxOTPAttempts
	}
	if cfg.OTPBackoff < 0 {
		cfg.OTPBackoff = 0
	}
	if cfg.PollAttempts <= 0 {
		cfg.PollAttempts = def.PollAttempts
	}
	if cfg.PollInterval < 0 {
		cfg.PollInterval = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		cfg:    cfg,
		portal: portal,
		otp:    otp,
		creds:  creds,
		logger: logger.Named("orchestrator"),
	}, nil
}

// Run performs one login. When creds is nil they are loaded from the credentials source.
// Progress events are informational only. Nothing is persisted; the caller stores the
// returned result.
func (o *Orchestrator) Run(ctx context.Context, creds *schemas.Credentials, onProgress schemas.ProgressFunc) (*schemas.LoginResult, error) {
	runID := uuid.NewString()
	logger := o.logger.With(zap.String("run_id", runID))
	start := time.Now()

	result, err := o.run(ctx, logger, creds, onProgress)
	if err != nil {
		onProgress.Emit(schemas.Progress{Step: schemas.StepError, Message: err.Error()})
		logger.Warn("Login failed.",
			zap.String("kind", string(schemas.KindOf(err))),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return nil, err
	}

	onProgress.Emit(schemas.Progress{Step: schemas.StepCompleted, Message: "Login successful"})
	logger.Info("Login completed.",
		zap.Bool("sso_token", result.SSOToken != ""),
		zap.Bool("welcome_page", result.WelcomePage),
		zap.Duration("duration", time.Since(start)),
	)
	return result, nil
}

func (o *Orchestrator) run(ctx context.Context, logger *zap.Logger, creds *schemas.Credentials, onProgress schemas.ProgressFunc) (*schemas.LoginResult, error) {
	creds, err := o.resolveCredentials(ctx, creds)
	if err != nil {
		return nil, err
	}
	logger = logger.With(zap.String("roll_number", creds.RollNumber))

	onProgress.Emit(schemas.Progress{Step: schemas.StepInit, Message: "Getting session token"})
	sessionToken, err := o.portal.FetchSessionToken(ctx)
	if err != nil {
		return nil, err
	}

	onProgress.Emit(schemas.Progress{Step: schemas.StepSecurity, Message: "Getting security question"})
	question, err := o.portal.FetchSecurityQuestion(ctx, creds.RollNumber)
	if err != nil {
		return nil, err
	}
	answer, err := matcher.Match(question, matcher.NewQuestionMap(creds.SecurityQuestions))
	if err != nil {
		return nil, err
	}
	logger.Debug("Security question matched.", zap.String("question", question))

	onProgress.Emit(schemas.Progress{Step: schemas.StepOTP, Message: "Requesting OTP"})
	if err := o.portal.RequestOTP(ctx, creds, sessionToken, answer); err != nil {
		return nil, err
	}

	onProgress.Emit(schemas.Progress{Step: schemas.StepOTP, Message: "Retrieving OTP from mailbox"})
	onStatus := func(st schemas.PollingStatus) {
		onProgress.Emit(schemas.Progress{Step: schemas.StepPolling, Message: st.Message, Polling: &st})
	}

	var lastErr error
	for attempt := 1; attempt <= o.cfg.MaxOTPAttempts; attempt++ {
		otp, err := o.otp.AwaitOTP(ctx, o.cfg.PollAttempts, o.cfg.PollInterval, onStatus)
		if err != nil {
			return nil, err
		}

		onProgress.Emit(schemas.Progress{
			Step:    schemas.StepCredentials,
			Message: fmt.Sprintf("Submitting login with OTP (attempt %d)", attempt),
		})
		result, err := o.portal.SubmitLogin(ctx, creds, sessionToken, otp, answer)
		if err == nil {
			if result == nil {
				return nil, schemas.NewError(schemas.KindLoginFailed, "portal returned no login result")
			}
			result.SessionToken = sessionToken
			return result, nil
		}
		if !schemas.KindOf(err).Retryable() {
			return nil, err
		}

		lastErr = err
		logger.Info("Portal rejected OTP.", zap.Int("attempt", attempt), zap.Int("max_attempts", o.cfg.MaxOTPAttempts))
		if attempt == o.cfg.MaxOTPAttempts {
			break
		}
		onProgress.Emit(schemas.Progress{
			Step:    schemas.StepOTP,
			Message: fmt.Sprintf("Invalid OTP, waiting for new one (%d/%d)...", attempt, o.cfg.MaxOTPAttempts),
		})
		if err := sleep(ctx, o.cfg.OTPBackoff); err != nil {
			return nil, err
		}
	}

	return nil, schemas.WrapError(schemas.KindLoginFailed, lastErr, "login failed after %d OTP attempts", o.cfg.MaxOTPAttempts)
}

func (o *Orchestrator) resolveCredentials(ctx context.Context, creds *schemas.Credentials) (*schemas.Credentials, error) {
	if creds != nil {
		return creds, nil
	}
	if o.creds == nil {
		return nil, schemas.NewError(schemas.KindNoCredentials, "no credentials found; please complete setup first")
	}
	stored, err := o.creds.Credentials(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}
	if stored == nil {
		return nil, schemas.NewError(schemas.KindNoCredentials, "no credentials found; please complete setup first")
	}
	return stored, nil
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
