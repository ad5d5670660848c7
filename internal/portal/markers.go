// internal/portal/markers.go
package portal

import (
	"strings"

	"github.com/xkilldash9x/erplogin/api/schemas"
)

// OTP endpoint response codes carried in the JSON msg field.
const (
	msgAnswerMismatch   = "ANSWER_MISMATCH"
	msgPasswordMismatch = "PASSWORD_MISMATCH"
)

// Markers are the body substrings used to classify a login submission. The portal has no
// structured API, so these are kept in one swappable place.
type Markers struct {
	OTPMismatch      []string
	PasswordMismatch []string
	AnswerMismatch   []string
	// Welcome markers indicate a logged-in page. They are only consulted after every
	// failure marker, since generic words like "success" also show up on error pages.
	Welcome []string
}

// DefaultMarkers returns the strings the production portal emits.
func DefaultMarkers() *Markers {
	return &Markers{
		OTPMismatch:      []string{"ERROR:Email OTP mismatch"},
		PasswordMismatch: []string{"Unable to send OTP due to password mismatch"},
		AnswerMismatch:   []string{"Unable to send OTP due to security question's answare mismatch"},
		Welcome:          []string{"Welcome to ERP", "welcome.jsp", "home.jsp", "dashboard", "Welcome", "success"},
	}
}

// ClassifyBody maps a post-login page onto an outcome. A nil error with welcome=true
// means the page looks logged in. The returned error carries the failing kind.
func (m *Markers) ClassifyBody(body string) (welcome bool, err error) {
	switch {
	case containsAny(body, m.OTPMismatch):
		return false, schemas.NewError(schemas.KindInvalidOTP, "Invalid OTP")
	case containsAny(body, m.PasswordMismatch):
		return false, schemas.NewError(schemas.KindInvalidPassword, "authentication failed: invalid credentials")
	case containsAny(body, m.AnswerMismatch):
		return false, schemas.NewError(schemas.KindSecurityAnswerMismatch, "invalid security question answer")
	case containsAny(body, m.Welcome):
		return true, nil
	}
	return false, schemas.NewError(schemas.KindLoginFailed, "login failed: no success indicators found")
}

// ClassifyOTPMessage maps the msg field of the OTP endpoint's JSON reply.
func ClassifyOTPMessage(msg string) error {
	switch {
	case msg == msgAnswerMismatch:
		return schemas.NewError(schemas.KindSecurityAnswerMismatch, "invalid security question answer")
	case msg == msgPasswordMismatch:
		return schemas.NewError(schemas.KindInvalidPassword, "invalid password")
	case strings.Contains(msg, "OTP") && strings.Contains(msg, "sent"):
		return nil
	case msg != "" && !strings.Contains(msg, "sent"):
		return schemas.NewError(schemas.KindOTPRequestFailed, "failed to request OTP: %s", msg)
	}
	return nil
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if n != "" && strings.Contains(s, n) {
			return true
		}
	}
	return false
}
