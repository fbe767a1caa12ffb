package proxypool

import "strings"

// transportErrorPatterns are exception-message substrings that imply a
// proxy transport-level failure.
var transportErrorPatterns = []struct {
	pattern string
	reason  string
}{
	{"net::ERR_TUNNEL_CONNECTION_FAILED", "tunnel_failed"},
	{"NS_ERROR_PROXY_CONNECTION_REFUSED", "connection_refused"},
	{"NS_ERROR_NET_EMPTY_RESPONSE", "other"},
	{"ERR_PROXY_CONNECTION_FAILED", "connection_refused"},
	{"Proxy connection refused", "connection_refused"},
	{"Could not connect to proxy", "other"},
}

// IsProxyException classifies an exception/error message as a proxy
// transport failure, returning the reason bucket used for metrics and
// invalidation (tunnel_failed, connection_refused, other).
func IsProxyException(message string) (bool, string) {
	for _, p := range transportErrorPatterns {
		if strings.Contains(message, p.pattern) {
			return true, p.reason
		}
	}
	if strings.Contains(strings.ToUpper(message), "PROXY") {
		return true, "other"
	}
	return false, ""
}

// proxyErrorPagePatterns are content substrings indicating the proxy
// itself served an error page for an HTTP-200 response.
var proxyErrorPagePatterns = []string{
	"ErrorCode:631",
	"ErrorCode:632",
	"ErrorCode:633",
	"ErrorCode:634",
	"ErrorCode:635",
	"Proxy Error",
	"代理错误",
	"隧道连接失败",
}

// minLeafNodes is the DOM-leaf-node floor below which a page is declared a
// proxy error page regardless of content patterns.
const minLeafNodes = 32

// IsProxyErrorPage detects whether page content is a proxy-served error
// page rather than the target origin's content. It returns the matched
// pattern ("leaf_nodes_too_few" or the literal pattern text) as the reason.
func IsProxyErrorPage(html string) (bool, string) {
	if html == "" {
		return false, ""
	}

	if leaves := countLeafNodes(html); leaves < minLeafNodes {
		return true, "leaf_nodes_too_few"
	}

	for _, pattern := range proxyErrorPagePatterns {
		if strings.Contains(html, pattern) {
			return true, pattern
		}
	}

	return false, ""
}
