package schemas_test

import (
	"testing"
	"time"

	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/erplogin/api/schemas"
)

// -- Test Cases --

func TestValidateCredentials(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		name     string
		roll     string
		password string
		valid    bool
	}{
		{"Valid", "21CS10001", "secret", true},
		{"ExactMinimums", "12345678", "123456", true},
		{"ShortRoll", "21CS100", "secret", false},
		{"ShortPassword", "21CS10001", "12345", false},
		{"EmptyRoll", "", "secret", false},
		{"EmptyPassword", "21CS10001", "", false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.valid, schemas.ValidateCredentials(tc.roll, tc.password))
		})
	}
}

func TestSecurityQuestionID(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "whatisyourpetsname", schemas.SecurityQuestionID("What is your pet's name?"))
	assert.Equal(t, "inwhichcitywereyoubo", schemas.SecurityQuestionID("In which city were you born?"), "truncated to 20 characters")
	assert.Equal(t, "", schemas.SecurityQuestionID("?!"))
	assert.Equal(t,
		schemas.SecurityQuestionID("Favourite  colour"),
		schemas.SecurityQuestionID("favourite colour"),
		"case and punctuation do not change the identifier")
}

func TestERPSession_Expiry(t *testing.T) {
	t.Parallel()
	now := getTestTime(t)

	t.Run("NoExpiry", func(t *testing.T) {
		s := &schemas.ERPSession{Timestamp: now}
		assert.False(t, s.Expired(now.Add(24*time.Hour)))
		assert.Zero(t, s.Remaining(now))
	})

	t.Run("Live", func(t *testing.T) {
		s := &schemas.ERPSession{Timestamp: now, ExpiresAt: now.Add(10 * time.Minute)}
		assert.False(t, s.Expired(now.Add(10*time.Minute)), "expiry instant itself is still valid")
		assert.Equal(t, 4*time.Minute, s.Remaining(now.Add(6*time.Minute)))
	})

	t.Run("Expired", func(t *testing.T) {
		s := &schemas.ERPSession{Timestamp: now, ExpiresAt: now.Add(10 * time.Minute)}
		assert.True(t, s.Expired(now.Add(10*time.Minute+time.Nanosecond)))
		assert.Zero(t, s.Remaining(now.Add(time.Hour)))
	})
}

func TestERPSession_JSONFieldNames(t *testing.T) {
	t.Parallel()
	now := getTestTime(t)
	s := schemas.ERPSession{
		SessionToken: "tok",
		SSOToken:     "sso",
		Cookies:      []schemas.SessionCookie{{Name: "JSESSIONID", Value: "v"}},
		Timestamp:    now,
		ExpiresAt:    now.Add(10 * time.Minute),
	}
	raw, err := json.Marshal(s)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))
	for _, key := range []string{"sessionToken", "ssoToken", "cookies", "timestamp", "expiresAt"} {
		assert.Contains(t, fields, key)
	}

	// A welcome-page session carries no SSO token.
	raw, err = json.Marshal(schemas.ERPSession{SessionToken: "tok"})
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "ssoToken")
}

func TestProgressFunc_Emit(t *testing.T) {
	t.Parallel()
	var nilFunc schemas.ProgressFunc
	assert.NotPanics(t, func() { nilFunc.Emit(schemas.Progress{Step: schemas.StepInit}) })

	var got []schemas.ProgressStep
	f := schemas.ProgressFunc(func(p schemas.Progress) { got = append(got, p.Step) })
	f.Emit(schemas.Progress{Step: schemas.StepInit})
	f.Emit(schemas.Progress{Step: schemas.StepCompleted})
	assert.Equal(t, []schemas.ProgressStep{schemas.StepInit, schemas.StepCompleted}, got)
}

func TestFormatClock(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		d    time.Duration
		want string
	}{
		{0, "0:00"},
		{-5 * time.Second, "0:00"},
		{5 * time.Second, "0:05"},
		{59*time.Second + 900*time.Millisecond, "0:59"},
		{6 * time.Minute, "6:00"},
		{75 * time.Minute, "75:00"},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.want, schemas.FormatClock(tc.d), "duration %s", tc.d)
	}
}
