// File: cmd/cmd_test.go
package cmd

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/erplogin/api/schemas"
	"github.com/xkilldash9x/erplogin/internal/config"
	"github.com/xkilldash9x/erplogin/internal/erp/extract"
	"github.com/xkilldash9x/erplogin/internal/mailbox"
	"github.com/xkilldash9x/erplogin/internal/profile"
	"github.com/xkilldash9x/erplogin/internal/store"
)

// -- Fakes --

type fakeMailbox struct {
	mu      sync.Mutex
	otp     string
	email   string
	profErr error
	fetches int
}

func (f *fakeMailbox) Search(context.Context, string, int) ([]mailbox.MessageRef, error) {
	return []mailbox.MessageRef{{ID: "m1"}}, nil
}

func (f *fakeMailbox) FetchFull(_ context.Context, id string) (*mailbox.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	body := base64.URLEncoding.EncodeToString([]byte("Your OTP is " + f.otp))
	return &mailbox.Message{ID: id, Payload: extract.MessagePart{MimeType: "text/plain", Data: body}}, nil
}

func (f *fakeMailbox) Profile(context.Context) (string, error) {
	return f.email, f.profErr
}

type openCall struct {
	target  string
	cookies []schemas.SessionCookie
	wait    bool
}

type fakeBrowser struct {
	mu    sync.Mutex
	calls []openCall
}

func (f *fakeBrowser) Open(_ context.Context, target string, cookies []schemas.SessionCookie, wait bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, openCall{target: target, cookies: cookies, wait: wait})
	return nil
}

// -- Harness --

const (
	testRoll     = "21CS10001"
	testPassword = "hunter22"
	testSSO      = "SSO-TOKEN-123"
	testSession  = "ABCDEF0123456789ABCDEF0123456789"
)

type testEnv struct {
	t       *testing.T
	kv      *store.Memory
	mb      *fakeMailbox
	br      *fakeBrowser
	server  *httptest.Server
	cfgFile string
	now     time.Time

	mu         sync.Mutex
	loginCalls int
	lastOTP    string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		t:   t,
		kv:  store.NewMemory(),
		mb:  &fakeMailbox{otp: "482913", email: "student@example.com"},
		br:  &fakeBrowser{},
		now: time.Now(),
	}

	r := mux.NewRouter()
	r.HandleFunc("/IIT_ERP3/", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `<html><input type="hidden" id="sessionToken" value="%s"/></html>`, testSession)
	}).Methods(http.MethodGet)
	r.HandleFunc("/SSOAdministration/getSecurityQues.htm", func(w http.ResponseWriter, r *http.Request) {
		if r.FormValue("user_id") != testRoll {
			fmt.Fprint(w, "FALSE")
			return
		}
		fmt.Fprint(w, "What is your pet's name?")
	}).Methods(http.MethodPost)
	r.HandleFunc("/SSOAdministration/getEmilOTP.htm", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"msg":"OTP has been sent to your registered email"}`)
	}).Methods(http.MethodPost)
	r.HandleFunc("/SSOAdministration/auth.htm", func(w http.ResponseWriter, r *http.Request) {
		env.mu.Lock()
		env.loginCalls++
		env.lastOTP = r.FormValue("email_otp")
		env.mu.Unlock()
		http.SetCookie(w, &http.Cookie{Name: "JSESSIONID", Value: "jsess-1", Path: "/"})
		http.Redirect(w, r, "/IIT_ERP3/?ssoToken="+testSSO, http.StatusFound)
	}).Methods(http.MethodPost)
	r.HandleFunc("/IIT_ERP3/home.jsp", func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("JSESSIONID"); err == nil && c.Value == "jsess-1" {
			fmt.Fprint(w, "<h1>welcome back</h1>")
			return
		}
		fmt.Fprint(w, "<form action='login'>")
	}).Methods(http.MethodGet)
	env.server = httptest.NewServer(r)
	t.Cleanup(env.server.Close)

	env.cfgFile = filepath.Join(t.TempDir(), "erplogin.yaml")
	cfg := fmt.Sprintf(`
logger:
  level: error
  format: json
  log_file: ""
portal:
  base_url: %s
network:
  requests_per_second: 0
login:
  otp_backoff: 1ms
  poll_interval: 1ms
  poll_attempts: 2
store:
  backend: memory
`, env.server.URL)
	require.NoError(t, os.WriteFile(env.cfgFile, []byte(cfg), 0o600))
	return env
}

func (e *testEnv) deps() dependencies {
	return dependencies{
		openStore: func(context.Context, config.StoreConfig, *zap.Logger) (store.KV, error) {
			return e.kv, nil
		},
		newMailbox: func(_ context.Context, _ *config.Config, auth *schemas.MailboxAuth, _ *zap.Logger) (mailboxClient, error) {
			if auth == nil || auth.Token == "" {
				return nil, schemas.NewError(schemas.KindMailboxNotConnected, "no token")
			}
			return e.mb, nil
		},
		newBrowser: func(config.BrowserConfig, *zap.Logger) browserOpener { return e.br },
		now:        func() time.Time { return e.now },
	}
}

func (e *testEnv) run(args ...string) (string, error) {
	return e.runWithInput("", args...)
}

func (e *testEnv) runWithInput(input string, args ...string) (string, error) {
	root := newRootCommand(e.deps())
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(bytes.NewBufferString(input))
	root.SetArgs(append(args, "--config", e.cfgFile))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func (e *testEnv) profile() *profile.Service {
	return profile.New(e.kv, nil, profile.WithClock(func() time.Time { return e.now }))
}

func (e *testEnv) seed() {
	e.t.Helper()
	ctx := context.Background()
	p := e.profile()
	require.NoError(e.t, p.SaveCredentials(ctx, schemas.Credentials{
		RollNumber: testRoll,
		Password:   testPassword,
		SecurityQuestions: []schemas.SecurityQuestion{
			{Question: "What is your pet's name?", Answer: "Bruno"},
		},
	}))
	require.NoError(e.t, p.SaveMailboxAuth(ctx, schemas.MailboxAuth{Token: "ya29.token", Email: "student@example.com"}))
}

// -- Test Cases --

func TestRootCmd_Version(t *testing.T) {
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"--version"})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "erplogin version "+Version)
}

func TestVersionCmd(t *testing.T) {
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "erplogin "+Version)
}

func TestLoginCmd_EndToEnd(t *testing.T) {
	env := newTestEnv(t)
	env.seed()

	out, err := env.run("login", "--open")
	require.NoError(t, err, out)

	assert.Contains(t, out, "[init] Getting session token")
	assert.Contains(t, out, "[security] Getting security question")
	assert.Contains(t, out, "[completed] Login successful")
	assert.Contains(t, out, "Session saved; valid for 10:00.")
	assert.Contains(t, out, "ssoToken="+testSSO)
	assert.Equal(t, 1, env.loginCalls)
	assert.Equal(t, "482913", env.lastOTP)

	sess, err := env.profile().Session(context.Background())
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, testSSO, sess.SSOToken)
	assert.Equal(t, testSession, sess.SessionToken)
	require.Len(t, sess.Cookies, 1)
	assert.Equal(t, "JSESSIONID", sess.Cookies[0].Name)

	_, found, err := env.profile().LastLogin(context.Background())
	require.NoError(t, err)
	assert.True(t, found)

	require.Len(t, env.br.calls, 1)
	assert.Equal(t, env.server.URL+"/IIT_ERP3/?ssoToken="+testSSO, env.br.calls[0].target)
	assert.True(t, env.br.calls[0].wait)
}

func TestLoginCmd_NoSave(t *testing.T) {
	env := newTestEnv(t)
	env.seed()

	_, err := env.run("login", "--no-save")
	require.NoError(t, err)

	sess, err := env.profile().Session(context.Background())
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestLoginCmd_MailboxNotConnected(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.profile().SaveCredentials(context.Background(), schemas.Credentials{RollNumber: testRoll, Password: testPassword}))

	_, err := env.run("login")
	assert.True(t, schemas.IsKind(err, schemas.KindMailboxNotConnected))
	assert.Equal(t, 0, env.loginCalls)
}

func TestLoginCmd_NoCredentials(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.profile().SaveMailboxAuth(context.Background(), schemas.MailboxAuth{Token: "t"}))

	_, err := env.run("login")
	assert.True(t, schemas.IsKind(err, schemas.KindNoCredentials))
	assert.Contains(t, formatError(err), "Error [credential]")
}

func TestSetupCmd_FromFile(t *testing.T) {
	env := newTestEnv(t)
	path := filepath.Join(t.TempDir(), "creds.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
roll_number: 21CS10001
password: hunter22
security_questions:
  - question: What is your pet's name?
    answer: Bruno
`), 0o600))

	out, err := env.run("setup", "--from", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Saved credentials for 21CS10001 with 1 security question(s).")

	creds, err := env.profile().Credentials(context.Background())
	require.NoError(t, err)
	require.NotNil(t, creds)
	assert.Equal(t, "whatisyourpetsname", creds.SecurityQuestions[0].ID)
}

func TestSetupCmd_Interactive(t *testing.T) {
	env := newTestEnv(t)
	input := "21CS10001\nhunter22\nWhat is your pet's name?\nBruno\n\n"

	out, err := env.runWithInput(input, "setup")
	require.NoError(t, err)
	assert.Contains(t, out, "with 1 security question(s)")

	creds, _ := env.profile().Credentials(context.Background())
	require.NotNil(t, creds)
	assert.Equal(t, "Bruno", creds.SecurityQuestions[0].Answer)
}

func TestSetupCmd_RejectsShortPassword(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.runWithInput("21CS10001\nabc\n", "setup")
	assert.ErrorContains(t, err, "invalid credentials")
}

func TestSessionCmds(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	out, err := env.run("session", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "No active session.")

	_, err = env.run("session", "open")
	assert.ErrorContains(t, err, "no active session")

	_, err = env.profile().SaveSession(ctx, schemas.ERPSession{
		SessionToken: testSession,
		SSOToken:     testSSO,
		Cookies:      []schemas.SessionCookie{{Name: "JSESSIONID", Value: "jsess-1", Path: "/"}},
	})
	require.NoError(t, err)
	env.now = env.now.Add(90 * time.Second)

	out, err = env.run("session", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "Expires in:    8:30")
	assert.Contains(t, out, "Cookies:       1")
	assert.NotContains(t, out, testSSO, "tokens are redacted")

	out, err = env.run("session", "check")
	require.NoError(t, err)
	assert.Contains(t, out, "Session is active on the portal.")

	_, err = env.run("session", "open")
	require.NoError(t, err)
	require.Len(t, env.br.calls, 1)
	assert.Equal(t, env.server.URL+"/IIT_ERP3/?ssoToken="+testSSO, env.br.calls[0].target)
	assert.Len(t, env.br.calls[0].cookies, 1)

	out, err = env.run("session", "clear")
	require.NoError(t, err)
	assert.Contains(t, out, "Session cleared.")
	sess, _ := env.profile().Session(ctx)
	assert.Nil(t, sess)
}

func TestSessionCheck_StaleCookie(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.profile().SaveSession(context.Background(), schemas.ERPSession{
		SessionToken: testSession,
		Cookies:      []schemas.SessionCookie{{Name: "JSESSIONID", Value: "old"}},
	})
	require.NoError(t, err)

	out, err := env.run("session", "check")
	require.NoError(t, err)
	assert.Contains(t, out, "no longer accepted")
}

func TestMailboxCmds(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.run("mailbox", "connect")
	assert.ErrorContains(t, err, "--token is required")

	out, err := env.run("mailbox", "connect", "--token", "ya29.abc")
	require.NoError(t, err)
	assert.Contains(t, out, "Mailbox connected: student@example.com")

	auth, err := env.profile().MailboxAuth(context.Background())
	require.NoError(t, err)
	require.NotNil(t, auth)
	assert.Equal(t, []string{mailbox.ReadonlyScope}, auth.GrantedScopes)

	out, err = env.run("mailbox", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Mailbox: student@example.com")
	assert.Contains(t, out, "Token:   valid")

	env.mb.profErr = schemas.NewError(schemas.KindMailboxNotConnected, "token revoked")
	out, err = env.run("mailbox", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Token:   rejected")

	out, err = env.run("mailbox", "disconnect")
	require.NoError(t, err)
	assert.Contains(t, out, "Mailbox disconnected.")

	out, err = env.run("mailbox", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Mailbox: not connected")
}

func TestStatusCmd(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run("status")
	require.NoError(t, err)
	assert.Contains(t, out, "Credentials: not configured")
	assert.Contains(t, out, "Mailbox:     not connected")
	assert.Contains(t, out, "Session:     none")

	env.seed()
	_, err = env.profile().SaveSession(context.Background(), schemas.ERPSession{SessionToken: testSession})
	require.NoError(t, err)

	out, err = env.run("status")
	require.NoError(t, err)
	assert.Contains(t, out, "Credentials: 21CS10001, 1 security question(s)")
	assert.Contains(t, out, "Mailbox:     student@example.com")
	assert.Contains(t, out, "Session:     active, expires in 10:00")
}

func TestFormatProgress(t *testing.T) {
	assert.Equal(t, "[otp] Requesting OTP", formatProgress(schemas.Progress{Step: schemas.StepOTP, Message: "Requesting OTP"}))

	line := formatProgress(schemas.Progress{
		Step: schemas.StepPolling,
		Polling: &schemas.PollingStatus{
			Status: schemas.PollError, Attempt: 2, MaxAttempts: 10, Timer: "0:05",
			Message: "Error checking emails", Error: "boom",
		},
	})
	assert.Equal(t, "  [error 2/10 0:05] Error checking emails (boom)", line)

	var buf bytes.Buffer
	p := newProgressPrinter(&buf)
	ev := schemas.Progress{Step: schemas.StepInit, Message: "x"}
	p.Handle(ev)
	p.Handle(ev)
	assert.Equal(t, "[init] x\n", buf.String())
}
