package mod

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/zxjlm/playwright-gateway/metrics"
	xhttp "github.com/zxjlm/playwright-gateway/pkg/x/http"
)

// WithNormalFields renders one Apache-combined-log-style access-log line,
// replacing the CDN fields (cache status, store url) with the fields that
// matter for the gateway's business routes: which engine served the
// request and whether the history cache answered it.
func WithNormalFields(req *http.Request, resp *xhttp.ResponseRecorder) []byte {
	metric := metrics.FromContext(req.Context())
	buf := NewFieldBuffer(' ')

	buf.Append(xhttp.ClientIP(req.RemoteAddr, req.Header))
	buf.Append(req.Host)
	buf.Append(req.Header.Get("Content-Type"))
	buf.Append(metric.StartAt.Format(time.RFC3339))
	buf.FAppend(fmt.Sprintf("%s %s %s", req.Method, req.URL.RequestURI(), req.Proto))
	buf.Append(strconv.Itoa(resp.Status()))
	buf.Append(strconv.FormatUint(bytesSent(resp), 10))
	buf.Append(req.Header.Get("Referer"))
	buf.FAppend(req.Header.Get("User-Agent"))
	buf.Append(strconv.FormatInt(time.Since(metric.StartAt).Milliseconds(), 10))
	buf.Append(strconv.FormatUint(resp.Size(), 10))
	buf.Append(req.Header.Get("Content-Length"))
	buf.Append(req.Header.Get("Range"))
	buf.Append(req.Header.Get("X-Forwarded-For"))
	buf.Append(metric.Engine)
	buf.Append(strconv.FormatBool(metric.CacheHit))
	buf.Append(metric.RequestID)

	return buf.Bytes()
}

func bytesSent(resp *xhttp.ResponseRecorder) uint64 {
	return resp.SentBytes()
}
