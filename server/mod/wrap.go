package mod

import (
	"fmt"
	"net/http"
	"os"

	"github.com/zxjlm/playwright-gateway/metrics"
	xhttp "github.com/zxjlm/playwright-gateway/pkg/x/http"
)

// fillRequest completes a request's URL scheme/host from TLS/Host when the
// router or a reverse proxy didn't already set them.
func fillRequest(req *http.Request) {
	if req.URL.Scheme == "" {
		req.URL.Scheme = xhttp.Scheme(req)
	}
	if req.URL.Host == "" {
		req.URL.Host = req.Host
	}
}

// wrap is the fallback access-log handler used when no log path is
// configured: it still threads a RequestMetric through the context and
// writes each access-log line to stdout.
func wrap(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		fillRequest(req)

		req, metric := metrics.WithRequestMetric(req)
		recorder := xhttp.NewResponseRecorder(w)

		defer func() {
			metric.SentResp = recorder.SentBytes()
			fmt.Fprintln(os.Stdout, string(WithNormalFields(req, recorder)))
		}()

		next(recorder, req)
	}
}
