// internal/browser/opener_test.go
package browser

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/erplogin/api/schemas"
)

func TestCookieParams(t *testing.T) {
	params, err := CookieParams("https://erp.iitkgp.ac.in/IIT_ERP3/?ssoToken=abc", []schemas.SessionCookie{
		{Name: "JSESSIONID", Value: "s1"},
		{Name: "ssoToken", Value: "s2", Domain: ".iitkgp.ac.in", Path: "/IIT_ERP3"},
	})
	require.NoError(t, err)
	require.Len(t, params, 2)

	assert.Equal(t, "JSESSIONID", params[0].Name)
	assert.Equal(t, "erp.iitkgp.ac.in", params[0].Domain)
	assert.Equal(t, "/", params[0].Path)
	assert.True(t, params[0].Secure)

	assert.Equal(t, ".iitkgp.ac.in", params[1].Domain)
	assert.Equal(t, "/IIT_ERP3", params[1].Path)
}

func TestCookieParams_PlainHTTP(t *testing.T) {
	params, err := CookieParams("http://127.0.0.1:8080/", []schemas.SessionCookie{{Name: "a", Value: "b"}})
	require.NoError(t, err)
	assert.False(t, params[0].Secure)
	assert.Equal(t, "127.0.0.1", params[0].Domain)
}

func TestOpen_InvalidTarget(t *testing.T) {
	o := NewOpener(Config{Headless: true}, nil)
	err := o.Open(context.Background(), "not a url", nil, false)
	assert.ErrorContains(t, err, "invalid target URL")
}

func TestNewOpener_Defaults(t *testing.T) {
	o := NewOpener(Config{}, nil)
	assert.Equal(t, 30*time.Second, o.cfg.Timeout)
	assert.Len(t, o.AllocatorOptions(), 3)

	o = NewOpener(Config{Headless: true, ExecPath: "/usr/bin/chromium"}, nil)
	assert.Len(t, o.AllocatorOptions(), 6)
}
