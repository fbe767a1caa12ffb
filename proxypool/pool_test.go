package proxypool

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPool(t *testing.T, source Source) *Pool {
	t.Helper()
	reg := prometheus.NewRegistry()
	return New(source, reg)
}

func TestPoolReuseMonotonic(t *testing.T) {
	p := newTestPool(t, NewStaticSource("http://127.0.0.1:8080"))

	proxy, err := p.Get(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:8080", proxy)
	assert.Equal(t, 1, p.current.ReuseCount)

	for i := 2; i <= 5; i++ {
		_, err := p.Get(context.Background(), false)
		require.NoError(t, err)
		assert.Equal(t, i, p.current.ReuseCount)
	}
}

func TestPoolInvalidateResetsReuseCount(t *testing.T) {
	p := newTestPool(t, NewStaticSource("http://127.0.0.1:8080"))

	_, _ = p.Get(context.Background(), false)
	_, _ = p.Get(context.Background(), false)
	assert.Equal(t, 2, p.current.ReuseCount)

	p.Invalidate("tunnel_failed")
	assert.Nil(t, p.current)

	proxy, err := p.Get(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:8080", proxy)
	assert.Equal(t, 1, p.current.ReuseCount)
}

func TestPoolNoneSourceYieldsEmptyProxy(t *testing.T) {
	p := newTestPool(t, NewNoneSource())

	proxy, err := p.Get(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "", proxy)
	assert.Nil(t, p.current)
}

func TestIsProxyException(t *testing.T) {
	cases := []struct {
		msg        string
		wantHit    bool
		wantReason string
	}{
		{"net::ERR_TUNNEL_CONNECTION_FAILED", true, "tunnel_failed"},
		{"NS_ERROR_PROXY_CONNECTION_REFUSED", true, "connection_refused"},
		{"Could not connect to proxy", true, "other"},
		{"some PROXY weirdness", true, "other"},
		{"unrelated timeout", false, ""},
	}
	for _, tc := range cases {
		hit, reason := IsProxyException(tc.msg)
		assert.Equal(t, tc.wantHit, hit, tc.msg)
		assert.Equal(t, tc.wantReason, reason, tc.msg)
	}
}

func TestIsProxyErrorPageContentPattern(t *testing.T) {
	html := buildPage(40, "<p>ErrorCode:631 proxy failure</p>")
	hit, reason := IsProxyErrorPage(html)
	assert.True(t, hit)
	assert.Equal(t, "ErrorCode:631", reason)
}

func TestIsProxyErrorPageLeafNodesTooFew(t *testing.T) {
	hit, reason := IsProxyErrorPage("<html><body><div></div></body></html>")
	assert.True(t, hit)
	assert.Equal(t, "leaf_nodes_too_few", reason)
}

func TestIsProxyErrorPageValidContent(t *testing.T) {
	html := buildPage(40, "legitimate body copy")
	hit, _ := IsProxyErrorPage(html)
	assert.False(t, hit)
}

func buildPage(leaves int, extra string) string {
	body := "<html><body>"
	for i := 0; i < leaves; i++ {
		body += "<p>leaf</p>"
	}
	body += extra + "</body></html>"
	return body
}
