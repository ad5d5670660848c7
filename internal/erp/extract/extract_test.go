// internal/erp/extract/extract_test.go
package extract

import (
	"encoding/base64"
	"regexp"
	"testing"

	fuzz "github.com/AdaLogics/go-fuzz-headers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/erplogin/api/schemas"
)

// -- Session Token --

func TestSessionToken_AttributeForms(t *testing.T) {
	const token = "3F9A0C17B2D44E8A9C1E5F60718293AB"

	tests := []struct {
		name string
		html string
	}{
		{"id before value", `<input type="hidden" id="sessionToken" value="` + token + `"/>`},
		{"name before value", `<input type='hidden' name='sessionToken' value='` + token + `'>`},
		{"quoted key then value", `<input data-x="sessionToken" value="` + token + `">`},
		{"input tag case insensitive", `<INPUT TYPE="hidden" CLASS="SESSIONTOKEN" VALUE="` + token + `">`},
		{"generic attribute assignment", `<meta sessionToken content="` + token + `">`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SessionToken("<html><body><form>" + tt.html + "</form></body></html>")
			require.NoError(t, err)
			assert.Equal(t, token, got)
		})
	}
}

func TestSessionToken_PriorityOrder(t *testing.T) {
	// The id form is listed first and must win over a later name form.
	html := `<input name="sessionToken" value="from-name"><input id="sessionToken" value="from-id">`
	got, err := SessionToken(html)
	require.NoError(t, err)
	assert.Equal(t, "from-id", got)
}

func TestSessionToken_HexFallback(t *testing.T) {
	html := `<script>var t = "ABCDEF0123456789ABCDEF0123456789AB";</script>`
	got, err := SessionToken(html)
	require.NoError(t, err)
	assert.Equal(t, "ABCDEF0123456789ABCDEF0123456789AB", got)
}

func TestSessionToken_NotFound(t *testing.T) {
	_, err := SessionToken("<html><body>maintenance</body></html>")
	require.Error(t, err)
	assert.Equal(t, schemas.KindTokenNotFound, schemas.KindOf(err))
}

// -- SSO Token --

func TestSSOToken(t *testing.T) {
	tok, ok := SSOToken("https://erp.iitkgp.ac.in/IIT_ERP3/?ssoToken=abc.def-123&next=1")
	require.True(t, ok)
	assert.Equal(t, "abc.def-123", tok)

	_, ok = SSOToken("https://erp.iitkgp.ac.in/IIT_ERP3/welcome.jsp")
	assert.False(t, ok)

	_, ok = SSOToken("")
	assert.False(t, ok)
}

// -- OTP --

func TestOTP_Patterns(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
		ok   bool
	}{
		{"labelled", "OTP: 4829", "4829", true},
		{"sentence", "Your OTP is 482913", "482913", true},
		{"verification code", "Your verification code 12345678 expires soon", "12345678", true},
		{"code label", "code:7777", "7777", true},
		{"bare six digits", "Use 918273 to continue", "918273", true},
		{"too short everywhere", "OTP: 12", "", false},
		{"no digits", "Hello there", "", false},
		{"empty", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := OTP(tt.body)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOTP_Idempotent(t *testing.T) {
	body := "Dear student, your OTP is 482913. Do not share it."
	first, ok1 := OTP(body)
	for i := 0; i < 5; i++ {
		again, ok := OTP(body)
		assert.Equal(t, ok1, ok)
		assert.Equal(t, first, again)
	}
}

func TestOTP_RejectedCandidateFallsThrough(t *testing.T) {
	// A custom first pattern that captures a non-numeric value must not stop the search.
	rules := DefaultRules()
	rules.OTPPatterns = append([]*regexp.Regexp{regexp.MustCompile(`PIN=(\w+)`)}, rules.OTPPatterns...)
	got, ok := rules.OTP("PIN=abc OTP: 555666")
	require.True(t, ok)
	assert.Equal(t, "555666", got)
}

// -- Message Bodies --

func TestDecodeMessageBody(t *testing.T) {
	enc := func(s string) string { return base64.URLEncoding.EncodeToString([]byte(s)) }
	raw := func(s string) string { return base64.RawURLEncoding.EncodeToString([]byte(s)) }

	t.Run("single part padded", func(t *testing.T) {
		assert.Equal(t, "Your OTP is 482913", DecodeMessageBody(MessagePart{Data: enc("Your OTP is 482913")}))
	})

	t.Run("single part raw", func(t *testing.T) {
		assert.Equal(t, "OTP:1234?", DecodeMessageBody(MessagePart{Data: raw("OTP:1234?")}))
	})

	t.Run("multipart keeps only text/plain", func(t *testing.T) {
		payload := MessagePart{
			MimeType: "multipart/alternative",
			Parts: []MessagePart{
				{MimeType: "text/html", Data: enc("<b>OTP 000000</b>")},
				{MimeType: "text/plain", Data: enc("OTP 654321")},
			},
		}
		assert.Equal(t, "OTP 654321", DecodeMessageBody(payload))
	})

	t.Run("nested multipart", func(t *testing.T) {
		payload := MessagePart{
			MimeType: "multipart/mixed",
			Parts: []MessagePart{
				{MimeType: "multipart/alternative", Parts: []MessagePart{
					{MimeType: "text/plain", Data: enc("first ")},
				}},
				{MimeType: "TEXT/PLAIN", Data: enc("second")},
			},
		}
		assert.Equal(t, "first second", DecodeMessageBody(payload))
	})

	t.Run("garbage is skipped", func(t *testing.T) {
		assert.Equal(t, "", DecodeMessageBody(MessagePart{Parts: []MessagePart{{MimeType: "text/plain", Data: "!!!"}}}))
	})

	t.Run("end to end otp", func(t *testing.T) {
		otp, ok := DefaultRules().OTPFromMessage(MessagePart{Data: enc("Your OTP is 482913")})
		require.True(t, ok)
		assert.Equal(t, "482913", otp)
	})
}

// -- Fuzz Testing --

// FuzzOTP checks that extraction never panics and only ever returns digit strings of an
// acceptable length.
func FuzzOTP(f *testing.F) {
	f.Add("Your OTP is 482913")
	f.Add("code: 99")
	f.Fuzz(func(t *testing.T, body string) {
		otp, ok := OTP(body)
		if !ok {
			assert.Empty(t, otp)
			return
		}
		assert.Regexp(t, `^\d{4,8}$`, otp)
		again, _ := OTP(body)
		assert.Equal(t, otp, again)
	})
}

// FuzzDecodeMessageBody fuzzes whole MIME trees built from raw bytes.
func FuzzDecodeMessageBody(f *testing.F) {
	f.Fuzz(func(t *testing.T, data []byte) {
		consumer := fuzz.NewConsumer(data)
		var payload MessagePart
		if err := consumer.GenerateStruct(&payload); err != nil {
			return
		}
		defer func() {
			if r := recover(); r != nil {
				t.Errorf("DecodeMessageBody panicked: %v", r)
			}
		}()
		_ = DecodeMessageBody(payload)
	})
}

func TestRules_SwappedPatterns(t *testing.T) {
	rules := &Rules{
		SessionTokenPatterns: []*regexp.Regexp{regexp.MustCompile(`data-token="([^"]+)"`)},
		SSOTokenPattern:      regexp.MustCompile(`sso=([^&]+)`),
		OTPPatterns:          []*regexp.Regexp{regexp.MustCompile(`PIN (\d+)`)},
		OTPMinLength:         4,
		OTPMaxLength:         8,
	}

	tok, err := rules.SessionToken(`<div data-token="abc123"></div>`)
	require.NoError(t, err)
	assert.Equal(t, "abc123", tok)

	sso, ok := rules.SSOToken("/home?sso=xyz&x=1")
	require.True(t, ok)
	assert.Equal(t, "xyz", sso)
	_, ok = rules.SSOToken("/home?ssoToken=xyz")
	assert.False(t, ok, "default pattern is not consulted")

	otp, ok := rules.OTP("PIN 9081")
	require.True(t, ok)
	assert.Equal(t, "9081", otp)

	_, err = rules.SessionToken("<html></html>")
	assert.ErrorIs(t, err, ErrTokenNotFound, "nil fallback is skipped")
}
