// api/schemas/login.go
package schemas

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// -- Credential Schemas --

// SecurityQuestion is a single user-configured challenge question and its stored answer.
type SecurityQuestion struct {
	Question string `json:"question" yaml:"question"`
	Answer   string `json:"answer" yaml:"answer"`
	ID       string `json:"id" yaml:"id"`
}

// Credentials are owned by the caller and are read-only to the login core.
type Credentials struct {
	RollNumber        string             `json:"rollNumber" yaml:"roll_number"`
	Password          string             `json:"password" yaml:"password"`
	SecurityQuestions []SecurityQuestion `json:"securityQuestions" yaml:"security_questions"`
	// Timestamp records when the credentials were last saved.
	Timestamp time.Time `json:"timestamp,omitempty" yaml:"-"`
}

const (
	minRollNumberLength      = 8
	minPasswordLength        = 6
	securityQuestionIDLength = 20
)

// ValidateCredentials enforces the boundary rules applied when credentials are entered.
// The login core never calls it.
func ValidateCredentials(rollNumber, password string) bool {
	if rollNumber == "" || password == "" {
		return false
	}
	return len(rollNumber) >= minRollNumberLength && len(password) >= minPasswordLength
}

var nonAlphanumeric = regexp.MustCompile(`[^a-z0-9]`)

// SecurityQuestionID derives a stable identifier from the question text.
func SecurityQuestionID(question string) string {
	id := nonAlphanumeric.ReplaceAllString(strings.ToLower(question), "")
	if len(id) > securityQuestionIDLength {
		id = id[:securityQuestionIDLength]
	}
	return id
}

// -- Session Schemas --

// SessionCookie is a serializable subset of an http.Cookie.
type SessionCookie struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Domain string `json:"domain,omitempty"`
	Path   string `json:"path,omitempty"`
}

// ERPSession is created on a successful login and persisted by the caller.
type ERPSession struct {
	SessionToken string          `json:"sessionToken"`
	SSOToken     string          `json:"ssoToken,omitempty"`
	Cookies      []SessionCookie `json:"cookies,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
	ExpiresAt    time.Time       `json:"expiresAt"`
}

// Expired reports whether the session is past its expiry at the given instant.
// A zero ExpiresAt never expires.
func (s *ERPSession) Expired(now time.Time) bool {
	if s.ExpiresAt.IsZero() {
		return false
	}
	return now.After(s.ExpiresAt)
}

// Remaining returns the time left before expiry, floored at zero.
func (s *ERPSession) Remaining(now time.Time) time.Duration {
	if s.ExpiresAt.IsZero() {
		return 0
	}
	if d := s.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// LoginResult is the terminal value of one orchestration run.
type LoginResult struct {
	Success      bool   `json:"success"`
	SessionToken string `json:"sessionToken"`
	SSOToken     string `json:"ssoToken,omitempty"`
	// WelcomePage marks a success detected from the post-login page body. No SSO token
	// is available in that case, so the portal cannot be deep-linked.
	WelcomePage bool   `json:"welcomePage,omitempty"`
	Message     string `json:"message,omitempty"`
}

// MailboxAuth is the outcome of the external authorization flow for the mailbox.
type MailboxAuth struct {
	Token         string    `json:"token"`
	RefreshToken  string    `json:"refreshToken,omitempty"`
	Email         string    `json:"email,omitempty"`
	GrantedScopes []string  `json:"grantedScopes,omitempty"`
	ConnectedAt   time.Time `json:"connectedAt,omitempty"`
}

// -- Progress Schemas --

// ProgressStep tags a progress event emitted by the login orchestrator.
type ProgressStep string

const (
	StepInit        ProgressStep = "init"
	StepSecurity    ProgressStep = "security"
	StepOTP         ProgressStep = "otp"
	StepPolling     ProgressStep = "polling"
	StepCredentials ProgressStep = "credentials"
	StepCompleted   ProgressStep = "completed"
	StepError       ProgressStep = "error"
)

// PollStatus is the state of a single mailbox poll attempt.
type PollStatus string

const (
	PollSearching  PollStatus = "searching"
	PollExtracting PollStatus = "extracting"
	PollSuccess    PollStatus = "success"
	PollWaiting    PollStatus = "waiting"
	PollError      PollStatus = "error"
)

// PollingStatus is reported once per state change inside a poll attempt and then discarded.
type PollingStatus struct {
	Message     string        `json:"message"`
	Attempt     int           `json:"attempt"`
	MaxAttempts int           `json:"maxAttempts"`
	Elapsed     time.Duration `json:"elapsed"`
	Timer       string        `json:"timer"`
	Status      PollStatus    `json:"status"`
	Error       string        `json:"error,omitempty"`
}

// StatusFunc receives polling status updates.
type StatusFunc func(PollingStatus)

// Progress is purely informational and never affects control flow.
type Progress struct {
	Step    ProgressStep   `json:"step"`
	Message string         `json:"message,omitempty"`
	Polling *PollingStatus `json:"polling,omitempty"`
}

// ProgressFunc receives progress events. It is fire-and-forget.
type ProgressFunc func(Progress)

// Emit calls f if it is non-nil.
func (f ProgressFunc) Emit(p Progress) {
	if f != nil {
		f(p)
	}
}

// FormatClock renders a duration as m:ss.
func FormatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
