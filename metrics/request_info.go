package metrics

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/zxjlm/playwright-gateway/internal/constants"
)

type requestMetricKey struct{}

// RequestMetric is the per-request bookkeeping threaded through a request's
// context for access logging: when it started, which engine served it,
// and whether the result came from the history cache.
type RequestMetric struct {
	StartAt           time.Time
	RequestID         string
	RecvReq           uint64
	SentResp          uint64
	Engine            string
	CacheHit          bool
	RemoteAddr        string
	FirstResponseTime time.Time
}

func WithRequestMetric(req *http.Request) (*http.Request, *RequestMetric) {
	metric := &RequestMetric{
		StartAt:   time.Now(),
		RequestID: MustParseRequestID(req.Header), // X-Request-ID, or a generated ID; read it later via FromContext(ctx).RequestID.
	}
	return req.WithContext(newContext(req.Context(), metric)), metric
}

func FromContext(ctx context.Context) *RequestMetric {
	if v, ok := ctx.Value(requestMetricKey{}).(*RequestMetric); ok {
		return v
	}
	return &RequestMetric{}
}

func newContext(ctx context.Context, metric *RequestMetric) context.Context {
	return context.WithValue(ctx, requestMetricKey{}, metric)
}

func MustParseRequestID(h http.Header) string {
	id := h.Get(constants.ProtocolRequestIDKey)
	// protocol request id header not found, generate a new one
	if id == "" {
		return generateRequestID()
	}
	return id
}

func generateRequestID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return ""
	}
	return hex.EncodeToString(b)
}
