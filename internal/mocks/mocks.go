// File: internal/mocks/mocks.go
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/erplogin/api/schemas"
	"github.com/xkilldash9x/erplogin/internal/mailbox"
)

// -- Portal Mock --

// MockPortal mocks the portal transport driven by the orchestrator.
type MockPortal struct {
	mock.Mock
}

func (m *MockPortal) FetchSessionToken(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockPortal) FetchSecurityQuestion(ctx context.Context, rollNumber string) (string, error) {
	args := m.Called(ctx, rollNumber)
	return args.String(0), args.Error(1)
}

func (m *MockPortal) RequestOTP(ctx context.Context, creds *schemas.Credentials, sessionToken, answer string) error {
	return m.Called(ctx, creds, sessionToken, answer).Error(0)
}

func (m *MockPortal) SubmitLogin(ctx context.Context, creds *schemas.Credentials, sessionToken, otp, answer string) (*schemas.LoginResult, error) {
	args := m.Called(ctx, creds, sessionToken, otp, answer)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schemas.LoginResult), args.Error(1)
}

// -- OTP Source Mock --

// MockOTPSource mocks the mailbox poller. Use Run to drive the status callback.
type MockOTPSource struct {
	mock.Mock
}

func (m *MockOTPSource) AwaitOTP(ctx context.Context, maxAttempts int, interval time.Duration, onStatus schemas.StatusFunc) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	args := m.Called(ctx, maxAttempts, interval, onStatus)
	return args.String(0), args.Error(1)
}

// -- Credentials Source Mock --

// MockCredentialsSource mocks stored credential lookups.
type MockCredentialsSource struct {
	mock.Mock
}

func (m *MockCredentialsSource) Credentials(ctx context.Context) (*schemas.Credentials, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schemas.Credentials), args.Error(1)
}

// -- Mailbox Mock --

// MockMailbox mocks the mailbox provider.
type MockMailbox struct {
	mock.Mock
}

func (m *MockMailbox) Search(ctx context.Context, query string, maxResults int) ([]mailbox.MessageRef, error) {
	args := m.Called(ctx, query, maxResults)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]mailbox.MessageRef), args.Error(1)
}

func (m *MockMailbox) FetchFull(ctx context.Context, id string) (*mailbox.Message, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*mailbox.Message), args.Error(1)
}

// -- KV Store Mock --

// MockKV mocks the key-value storage collaborator.
type MockKV struct {
	mock.Mock
}

func (m *MockKV) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	args := m.Called(ctx, key, dest)
	return args.Bool(0), args.Error(1)
}

func (m *MockKV) Set(ctx context.Context, key string, value interface{}) error {
	return m.Called(ctx, key, value).Error(0)
}

func (m *MockKV) Remove(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

func (m *MockKV) Close() error {
	return m.Called().Error(0)
}
