package http

import (
	"net/http"
	"net/textproto"
	"slices"
	"strings"
)

// CopyHeader copies all headers from the source http.Header to the destination http.Header.
// It iterates over each header key-value pair in the source and adds them to the destination.
func CopyHeader(dst, src http.Header) {
	for k, vv := range src {
		dst[k] = make([]string, 0, len(vv))
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}

// CopyHeadersWithout copies all headers from the source http.Header to the destination http.Header,
// excluding the headers specified in excludeKeys.
func CopyHeadersWithout(dst, src http.Header, excludeKeys ...string) {
	excludeMap := make(map[string]struct{}, len(excludeKeys))
	for _, key := range excludeKeys {
		excludeMap[textproto.CanonicalMIMEHeaderKey(key)] = struct{}{}
	}

	for k, vv := range src {
		if _, excluded := excludeMap[textproto.CanonicalMIMEHeaderKey(k)]; excluded {
			continue
		}
		dst[k] = make([]string, 0, len(vv))
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}

// CopyTrailer copies all headers from the source http.Header to the destination http.Header,
// prefixing each header key with the http.TrailerPrefix.
//
// see https://pkg.go.dev/net/http#example-ResponseWriter-Trailers
func CopyTrailer(dst, src http.Header) {
	for k, v := range src {
		dst[http.TrailerPrefix+k] = slices.Clone(v)
	}
}

// Hop-by-hop headers. These are removed when sent to the backend.
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// RemoveHopByHopHeaders removes hop-by-hop headers.
func RemoveHopByHopHeaders(h http.Header) {
	for _, f := range h["Connection"] {
		for _, sf := range strings.Split(f, ",") {
			if sf = textproto.TrimString(sf); sf != "" {
				h.Del(sf)
			}
		}
	}
	for _, f := range hopHeaders {
		h.Del(f)
	}
}

// IsChunked reports whether the Transfer-Encoding header is chunked or no
// Content-Length header is set.
func IsChunked(h http.Header) bool {
	return h.Get("Transfer-Encoding") == "chunked" || h.Get("Content-Length") == ""
}
