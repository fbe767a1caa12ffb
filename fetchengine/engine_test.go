package fetchengine

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zxjlm/playwright-gateway/browserdriver"
	"github.com/zxjlm/playwright-gateway/browserdriver/fakedriver"
	"github.com/zxjlm/playwright-gateway/browserpool"
	"github.com/zxjlm/playwright-gateway/fetchtypes"
	"github.com/zxjlm/playwright-gateway/proxypool"
)

// htmlWithLeaves builds a page with n trivial <div> leaves so it clears the
// 32-leaf-node floor while still being cheap to
// author per scenario.
func htmlWithLeaves(n int, extra string) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "<div>leaf-%d</div>", i)
	}
	b.WriteString(extra)
	b.WriteString("</body></html>")
	return b.String()
}

func newTestEngine(t *testing.T, driver *fakedriver.Factory) (*Engine, *browserpool.Manager) {
	t.Helper()
	reg := prometheus.NewRegistry()
	browsers := browserpool.New(driver.Build, reg, 0)
	proxies := proxypool.New(proxypool.NewNoneSource(), reg)
	return New(browsers, proxies, reg), browsers
}

func baseRequest() *fetchtypes.FetchRequest {
	return &fetchtypes.FetchRequest{
		URL:       "https://example.com",
		Engine:    fetchtypes.EngineChromium,
		TimeoutMS: 30000,
		WaitUntil: fetchtypes.WaitDOMContentLoaded,
	}
}

// Scenario 1: happy path.
func TestFetchHTMLHappyPath(t *testing.T) {
	body := htmlWithLeaves(40, "<p>Hi</p>")
	driver := fakedriver.New(fakedriver.Outcome{Status: 200, HTML: body})
	engine, _ := newTestEngine(t, driver)

	res, err := engine.FetchHTML(context.Background(), baseRequest())
	require.NoError(t, err)
	assert.Equal(t, 200, res.Status)
	assert.Empty(t, res.Error)
	assert.Equal(t, body, res.HTML)
	assert.EqualValues(t, 1, driver.ContextsCreated())
	assert.EqualValues(t, 1, driver.ContextsClosed())
}

// Scenario 3: proxy exception exhaustion.
func TestFetchHTMLProxyExceptionExhaustion(t *testing.T) {
	timeoutErr := fmt.Errorf("net::ERR_TUNNEL_CONNECTION_FAILED")
	driver := fakedriver.New(
		fakedriver.Outcome{Err: timeoutErr},
		fakedriver.Outcome{Err: timeoutErr},
		fakedriver.Outcome{Err: timeoutErr},
	)
	engine, _ := newTestEngine(t, driver)

	res, err := engine.FetchHTML(context.Background(), baseRequest())
	require.NoError(t, err)
	assert.Equal(t, fetchtypes.StatusProxyExceptionExhaust, res.Status)
	assert.Contains(t, res.Error, "Proxy error after 3 retries")
	assert.EqualValues(t, 3, driver.ContextsCreated())
}

// Scenario 4: proxy-page then success.
func TestFetchHTMLProxyPageThenSuccess(t *testing.T) {
	errPage := htmlWithLeaves(40, "ErrorCode:631")
	goodPage := htmlWithLeaves(60, "<p>"+strings.Repeat("x", 2000)+"</p>")
	driver := fakedriver.New(
		fakedriver.Outcome{Status: 200, HTML: errPage},
		fakedriver.Outcome{Status: 200, HTML: goodPage},
	)
	engine, _ := newTestEngine(t, driver)

	res, err := engine.FetchHTML(context.Background(), baseRequest())
	require.NoError(t, err)
	assert.Equal(t, 200, res.Status)
	assert.Equal(t, goodPage, res.HTML)
	assert.EqualValues(t, 2, driver.ContextsCreated())
}

// Scenario 5: timeout with forced content.
func TestFetchHTMLTimeoutForcedContent(t *testing.T) {
	harvested := htmlWithLeaves(80, strings.Repeat("y", 12000))
	driver := fakedriver.New(fakedriver.Outcome{
		Err:  &browserdriver.TimeoutError{Message: "Timeout 30000ms exceeded"},
		HTML: harvested,
	})
	engine, _ := newTestEngine(t, driver)

	req := baseRequest()
	req.ForceContentOnTimeout = true

	res, err := engine.FetchHTML(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, fetchtypes.StatusTimeoutForcedContent, res.Status)
	assert.Equal(t, harvested, res.HTML)
	assert.EqualValues(t, 1, driver.ContextsCreated())
}

// Scenario 5 variant: timeout without forced content yields 601 and no html.
func TestFetchHTMLTimeoutNoContent(t *testing.T) {
	driver := fakedriver.New(fakedriver.Outcome{
		Err: &browserdriver.TimeoutError{Message: "Timeout 30000ms exceeded"},
	})
	engine, _ := newTestEngine(t, driver)

	res, err := engine.FetchHTML(context.Background(), baseRequest())
	require.NoError(t, err)
	assert.Equal(t, fetchtypes.StatusTimeoutNoContent, res.Status)
	assert.Empty(t, res.HTML)
}

// Scenario 6: stale engine recovery, then a second stale error is fatal.
func TestFetchHTMLStaleEngineRecovers(t *testing.T) {
	body := htmlWithLeaves(40, "<p>recovered</p>")
	driver := fakedriver.New(
		fakedriver.Outcome{StaleOnCtx: true},
		fakedriver.Outcome{Status: 200, HTML: body},
	)
	engine, _ := newTestEngine(t, driver)

	res, err := engine.FetchHTML(context.Background(), baseRequest())
	require.NoError(t, err)
	assert.Equal(t, 200, res.Status)
	assert.Equal(t, body, res.HTML)
}

func TestFetchHTMLSecondStaleErrorIsFatal(t *testing.T) {
	driver := fakedriver.New(
		fakedriver.Outcome{StaleOnCtx: true},
		fakedriver.Outcome{StaleOnCtx: true},
	)
	engine, _ := newTestEngine(t, driver)

	res, err := engine.FetchHTML(context.Background(), baseRequest())
	require.NoError(t, err)
	assert.Equal(t, fetchtypes.StatusFailureOutsideNav, res.Status)
}
