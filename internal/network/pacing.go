// internal/network/pacing.go
package network

import (
	"fmt"
	"net/http"

	"golang.org/x/time/rate"
)

// PacedTransport delays each request until the limiter admits it.
type PacedTransport struct {
	next    http.RoundTripper
	limiter *rate.Limiter
}

// NewPacedTransport admits rps requests per second with the given burst. A burst
// below one is raised to one.
func NewPacedTransport(next http.RoundTripper, rps float64, burst int) *PacedTransport {
	if next == nil {
		next = http.DefaultTransport
	}
	if burst < 1 {
		burst = 1
	}
	return &PacedTransport{next: next, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// RoundTrip implements http.RoundTripper. Waiting honors the request context.
func (t *PacedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, fmt.Errorf("request pacing aborted: %w", err)
	}
	return t.next.RoundTrip(req)
}
