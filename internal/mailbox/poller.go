// internal/mailbox/poller.go
package mailbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"go.uber.org/zap"

	"github.com/xkilldash9x/erplogin/api/schemas"
	"github.com/xkilldash9x/erplogin/internal/erp/extract"
)

// Defaults for a single AwaitOTP run.
const (
	DefaultPollAttempts = 10
	DefaultPollInterval = 5 * time.Second
)

// errNotArrived marks an attempt that completed cleanly without finding a code.
var errNotArrived = errors.New("otp not arrived yet")

// PollerConfig tunes the search issued on every attempt.
type PollerConfig struct {
	Query      string
	MaxResults int
	Rules      *extract.Rules
}

// Poller repeatedly searches a mailbox for the newest OTP email.
type Poller struct {
	mailbox Mailbox
	cfg     PollerConfig
	logger  *zap.Logger
}

// NewPoller creates a poller over the given mailbox. Zero config fields take defaults.
func NewPoller(mb Mailbox, cfg PollerConfig, logger *zap.Logger) *Poller {
	if cfg.Query == "" {
		cfg.Query = DefaultQuery
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = DefaultMaxResults
	}
	if cfg.Rules == nil {
		cfg.Rules = extract.DefaultRules()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{mailbox: mb, cfg: cfg, logger: logger.Named("poller")}
}

// AwaitOTP polls up to maxAttempts times, sleeping interval between attempts (never after
// the last one). Each attempt searches, and when a match exists fetches the newest message
// and runs the extractor. A transport failure is reported with status error and retried,
// unless it happens on the final attempt, in which case it is returned. Running out of
// attempts without a code fails with OtpTimeout. The context is checked between attempts.
func (p *Poller) AwaitOTP(ctx context.Context, maxAttempts int, interval time.Duration, onStatus schemas.StatusFunc) (string, error) {
	if maxAttempts <= 0 {
		maxAttempts = DefaultPollAttempts
	}
	if interval < 0 {
		interval = 0
	}

	start := time.Now()
	attempt := 0
	report := func(status schemas.PollStatus, msg string, err error) {
		if onStatus == nil {
			return
		}
		elapsed := time.Since(start)
		st := schemas.PollingStatus{
			Message:     msg,
			Attempt:     attempt,
			MaxAttempts: maxAttempts,
			Elapsed:     elapsed,
			Timer:       schemas.FormatClock(elapsed),
			Status:      status,
		}
		if err != nil {
			st.Error = err.Error()
		}
		onStatus(st)
	}

	otp, err := retry.DoWithData(
		func() (string, error) {
			if err := ctx.Err(); err != nil {
				return "", retry.Unrecoverable(err)
			}
			attempt++
			p.logger.Debug("Polling mailbox for OTP.", zap.Int("attempt", attempt), zap.Int("max_attempts", maxAttempts))

			otp, err := p.attempt(ctx, report)
			if err != nil && !errors.Is(err, errNotArrived) {
				report(schemas.PollError, "Error occurred while polling", err)
				p.logger.Warn("Mailbox poll attempt failed.", zap.Int("attempt", attempt), zap.Error(err))
			}
			return otp, err
		},
		retry.Context(ctx),
		retry.Attempts(uint(maxAttempts)),
		retry.Delay(interval),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
	if err == nil {
		return otp, nil
	}

	if errors.Is(err, errNotArrived) {
		return "", schemas.NewError(schemas.KindOTPTimeout, "OTP not found after %d attempts", maxAttempts)
	}
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return "", err
	}
	if schemas.KindOf(err) != "" {
		return "", err
	}
	return "", schemas.WrapError(schemas.KindNetwork, err, "mailbox polling failed on attempt %d", attempt)
}

// attempt runs one search/extract cycle.
func (p *Poller) attempt(ctx context.Context, report func(schemas.PollStatus, string, error)) (string, error) {
	report(schemas.PollSearching, "Retrieving OTP from mailbox...", nil)

	refs, err := p.mailbox.Search(ctx, p.cfg.Query, p.cfg.MaxResults)
	if err != nil {
		return "", fmt.Errorf("mailbox search failed: %w", err)
	}

	if len(refs) > 0 {
		report(schemas.PollExtracting, "Found email, extracting OTP...", nil)

		// Only the newest message is inspected.
		msg, err := p.mailbox.FetchFull(ctx, refs[0].ID)
		if err != nil {
			return "", fmt.Errorf("failed to fetch message %s: %w", refs[0].ID, err)
		}
		if otp, ok := p.cfg.Rules.OTPFromMessage(msg.Payload); ok {
			report(schemas.PollSuccess, "OTP retrieved successfully!", nil)
			p.logger.Info("OTP retrieved from mailbox.", zap.String("message_id", msg.ID))
			return otp, nil
		}
	}

	report(schemas.PollWaiting, "No OTP yet, retrying...", nil)
	return "", errNotArrived
}
