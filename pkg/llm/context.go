package llm

import (
	"context"
	"net/http"
	"time"

	"github.com/ekaya-inc/ekaya-reports/pkg/middleware"
)

type contextKey string

const purposeContextKey contextKey = "llm_purpose"

// Purposes label LLM requests in logs and metrics.
const (
	PurposeIntent  = "intent"
	PurposeRerank  = "rerank"
	PurposeSQL     = "sql"
	PurposeUnknown = "unknown"
)

// WithPurpose tags the LLM calls made with ctx.
func WithPurpose(ctx context.Context, purpose string) context.Context {
	return context.WithValue(ctx, purposeContextKey, purpose)
}

// PurposeFromContext returns the purpose set by WithPurpose, or PurposeUnknown.
func PurposeFromContext(ctx context.Context) string {
	if p, ok := ctx.Value(purposeContextKey).(string); ok && p != "" {
		return p
	}
	return PurposeUnknown
}

// contextAwareTransport forwards the inbound request ID to the provider so
// provider-side logs can be correlated with ours.
type contextAwareTransport struct {
	base http.RoundTripper
}

func (t *contextAwareTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if id := middleware.RequestIDFromContext(req.Context()); id != "" {
		req = req.Clone(req.Context())
		req.Header.Set(middleware.RequestIDHeader, id)
	}
	return t.base.RoundTrip(req)
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: &contextAwareTransport{base: http.DefaultTransport},
	}
}
