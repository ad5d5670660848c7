// internal/erp/extract/extract.go
package extract

import (
	"encoding/base64"
	"regexp"
	"strings"

	"github.com/xkilldash9x/erplogin/api/schemas"
)

// Rules groups the ordered strategies used for each extraction target.
// The portal has no structured API, so these patterns are the protocol. Keeping them in one
// value lets callers swap them as the portal changes without touching the transport.
type Rules struct {
	// SessionTokenPatterns are tried in order against the homepage HTML. The first
	// pattern with a non-empty first capture group wins.
	SessionTokenPatterns []*regexp.Regexp
	// SessionTokenFallback matches a bare token when no attribute form is present.
	// The whole match is used.
	SessionTokenFallback *regexp.Regexp
	// SSOTokenPattern is matched against a redirect Location or a final URL.
	SSOTokenPattern *regexp.Regexp
	// OTPPatterns are tried in order against a decoded email body.
	OTPPatterns []*regexp.Regexp
	// OTPMinLength and OTPMaxLength bound an acceptable candidate.
	OTPMinLength int
	OTPMaxLength int
}

// DefaultRules returns the strategies matching the portal's known response shapes.
func DefaultRules() *Rules {
	return &Rules{
		SessionTokenPatterns: []*regexp.Regexp{
			regexp.MustCompile(`id=["']sessionToken["'][^>]*value=["']([^"']+)["']`),
			regexp.MustCompile(`name=["']sessionToken["'][^>]*value=["']([^"']+)["']`),
			regexp.MustCompile(`sessionToken["'][^>]*value=["']([^"']+)["']`),
			regexp.MustCompile(`(?i)<input[^>]*sessionToken[^>]*value=["']([^"']+)["']`),
			regexp.MustCompile(`(?i)sessionToken[^>]*=["']([^"']+)["']`),
		},
		SessionTokenFallback: regexp.MustCompile(`[A-F0-9]{32,}`),
		SSOTokenPattern:      regexp.MustCompile(`ssoToken=([^&]+)`),
		OTPPatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)OTP[:\s]*(\d{4,8})`),
			regexp.MustCompile(`(?i)verification code[:\s]*(\d{4,8})`),
			regexp.MustCompile(`(?i)code[:\s]*(\d{4,8})`),
			regexp.MustCompile(`(?i)is[:\s]*(\d{6})`),
			regexp.MustCompile(`(?i)OTP is (\d{6})`),
			regexp.MustCompile(`(\d{6})`),
		},
		OTPMinLength: 4,
		OTPMaxLength: 8,
	}
}

var defaultRules = DefaultRules()

// ErrTokenNotFound is returned when no session token strategy matched.
var ErrTokenNotFound = &schemas.Error{Kind: schemas.KindTokenNotFound, Message: "session token not found in homepage"}

// SessionToken extracts the session token using the default rules.
func SessionToken(html string) (string, error) {
	return defaultRules.SessionToken(html)
}

// SSOToken extracts an SSO token using the default rules.
func SSOToken(s string) (string, bool) {
	return defaultRules.SSOToken(s)
}

// OTP extracts a one-time password using the default rules.
func OTP(text string) (string, bool) {
	return defaultRules.OTP(text)
}

// SessionToken returns the first non-empty capture of the ordered strategies, then the
// hex fallback.
func (r *Rules) SessionToken(html string) (string, error) {
	for _, re := range r.SessionTokenPatterns {
		if m := re.FindStringSubmatch(html); len(m) > 1 && m[1] != "" {
			return m[1], nil
		}
	}
	if r.SessionTokenFallback != nil {
		if m := r.SessionTokenFallback.FindString(html); m != "" {
			return m, nil
		}
	}
	return "", ErrTokenNotFound
}

// SSOToken searches a redirect Location or URL for the token. Absence is reported with
// ok=false and is not an error: it only means there was no redirect-based success signal.
func (r *Rules) SSOToken(s string) (string, bool) {
	if s == "" || r.SSOTokenPattern == nil {
		return "", false
	}
	m := r.SSOTokenPattern.FindStringSubmatch(s)
	if len(m) < 2 || m[1] == "" {
		return "", false
	}
	return m[1], true
}

// OTP runs the ordered patterns and accepts the first candidate that is all digits and
// within the configured length bounds. A pattern whose candidate is rejected does not stop
// the search. ok=false means the code has not arrived yet.
func (r *Rules) OTP(text string) (string, bool) {
	for _, re := range r.OTPPatterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		candidate := m[0]
		if len(m) > 1 && m[1] != "" {
			candidate = m[1]
		}
		if r.validOTP(candidate) {
			return candidate, true
		}
	}
	return "", false
}

func (r *Rules) validOTP(s string) bool {
	if len(s) < r.OTPMinLength || len(s) > r.OTPMaxLength {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// -- Message Bodies --

// MessagePart mirrors the MIME tree returned by the mailbox provider. Body data is
// base64url encoded.
type MessagePart struct {
	MimeType string
	Data     string
	Parts    []MessagePart
}

// DecodeMessageBody returns the readable text of a message. A single-part body is used when
// present; otherwise every text/plain part is concatenated in order, descending into nested
// multiparts. Undecodable parts are skipped.
func DecodeMessageBody(payload MessagePart) string {
	if payload.Data != "" {
		if text, ok := decodeBase64URL(payload.Data); ok {
			return text
		}
	}
	var b strings.Builder
	collectPlainText(payload.Parts, &b)
	return b.String()
}

func collectPlainText(parts []MessagePart, b *strings.Builder) {
	for _, part := range parts {
		if strings.HasPrefix(strings.ToLower(part.MimeType), "multipart/") {
			collectPlainText(part.Parts, b)
			continue
		}
		if !strings.EqualFold(part.MimeType, "text/plain") || part.Data == "" {
			continue
		}
		if text, ok := decodeBase64URL(part.Data); ok {
			b.WriteString(text)
		}
	}
}

// decodeBase64URL accepts both padded and unpadded input; the provider emits either.
func decodeBase64URL(data string) (string, bool) {
	trimmed := strings.TrimRight(data, "=")
	decoded, err := base64.RawURLEncoding.DecodeString(trimmed)
	if err != nil {
		// Some clients hand over the standard alphabet.
		decoded, err = base64.RawStdEncoding.DecodeString(trimmed)
		if err != nil {
			return "", false
		}
	}
	return string(decoded), true
}

// OTPFromMessage decodes a message body and extracts an OTP in one step.
func (r *Rules) OTPFromMessage(payload MessagePart) (string, bool) {
	return r.OTP(DecodeMessageBody(payload))
}
