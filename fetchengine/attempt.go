package fetchengine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/zxjlm/playwright-gateway/browserdriver"
	"github.com/zxjlm/playwright-gateway/browserpool"
	"github.com/zxjlm/playwright-gateway/fetchtypes"
	"github.com/zxjlm/playwright-gateway/proxypool"
)

// attemptOutput is what a single NavigateAttempt produces: either a terminal
// result (success, timeout, or fatal) or a retryable outcome that the caller
// loop acts on.
type attemptOutput struct {
	result *fetchtypes.FetchResult
	oc     outcome
}

// attempt runs one full setup → navigate → settle → extract → validate →
// emit cycle against a fresh context+page, closing both before returning
// regardless of outcome.
func (e *Engine) attempt(ctx context.Context, req *fetchtypes.FetchRequest, wantScreenshot bool, proxyURL string) attemptOutput {
	bctx, page, err := e.acquireContextAndPage(ctx, req, proxyURL)
	if err != nil {
		return attemptOutput{
			result: &fetchtypes.FetchResult{
				Status: fetchtypes.StatusFailureOutsideNav,
				Error:  fmt.Sprintf("request failed, %v", err),
			},
			oc: outcome{kind: outcomeFatal, err: err},
		}
	}
	defer func() {
		_ = page.Close(ctx)
		_ = bctx.Close(ctx)
	}()

	if len(req.ExtraHeaders) > 0 {
		if err := page.SetExtraHeaders(ctx, req.ExtraHeaders); err != nil {
			return attemptOutput{
				result: &fetchtypes.FetchResult{Status: fetchtypes.StatusNonProxyFailure, Error: fmt.Sprintf("page load failed, %v", err)},
				oc:     outcome{kind: outcomeFatal, err: err},
			}
		}
	}

	status, err := page.Goto(ctx, req.URL, browserdriver.NavigateOptions{TimeoutMS: req.TimeoutMS, WaitUntil: req.WaitUntil})
	if err != nil {
		return e.classifyNavigateError(ctx, page, req, err)
	}
	if status == http.StatusProxyAuthRequired {
		return attemptOutput{oc: outcome{kind: outcomeProxyException, reason: "auth_required"}}
	}

	settle(ctx, page, wantScreenshot)

	html, screenshot, err := extract(ctx, page, wantScreenshot, req.FullPage)
	if err != nil {
		return attemptOutput{
			result: &fetchtypes.FetchResult{Status: fetchtypes.StatusNonProxyFailure, Error: fmt.Sprintf("page load failed, %v", err)},
			oc:     outcome{kind: outcomeFatal, err: err},
		}
	}

	if bad, reason := proxypool.IsProxyErrorPage(html); bad {
		return attemptOutput{oc: outcome{kind: outcomeProxyPage, reason: "page_error_" + reason}}
	}

	result := &fetchtypes.FetchResult{Status: status, Error: getError(status)}
	if wantScreenshot {
		result.ScreenshotB64 = encodeScreenshot(screenshot)
	} else {
		result.HTML = html
	}
	return attemptOutput{result: result, oc: outcome{kind: outcomeSuccess}}
}

// acquireContextAndPage opens a context+page on req.Engine, recovering once
// from a stale driver via a full engine reinitialization; a
// second stale error in the same attempt propagates as a plain error.
func (e *Engine) acquireContextAndPage(ctx context.Context, req *fetchtypes.FetchRequest, proxyURL string) (browserdriver.Context, browserdriver.Page, error) {
	eng, err := e.browsers.Acquire(ctx, req.Engine)
	if err != nil {
		return nil, nil, err
	}

	bctx, page, err := newContextAndPage(ctx, eng, proxyURL, req)
	if err != nil && browserpool.IsStale(err) {
		eng, err = e.browsers.Reinitialize(ctx, req.Engine)
		if err != nil {
			return nil, nil, err
		}
		bctx, page, err = newContextAndPage(ctx, eng, proxyURL, req)
	}
	if err != nil {
		return nil, nil, err
	}
	return bctx, page, nil
}

func newContextAndPage(ctx context.Context, eng browserdriver.Engine, proxyURL string, req *fetchtypes.FetchRequest) (browserdriver.Context, browserdriver.Page, error) {
	bctx, err := eng.NewContext(ctx, proxyURL, req.ViewportW, req.ViewportH)
	if err != nil {
		return nil, nil, err
	}
	page, err := bctx.NewPage(ctx)
	if err != nil {
		_ = bctx.Close(ctx)
		return nil, nil, err
	}
	return bctx, page, nil
}

// classifyNavigateError sorts a Goto failure into the timeout, proxy
// exception, or fatal branches.
func (e *Engine) classifyNavigateError(ctx context.Context, page browserdriver.Page, req *fetchtypes.FetchRequest, err error) attemptOutput {
	var timeoutErr *browserdriver.TimeoutError
	if errors.As(err, &timeoutErr) {
		return e.timeoutBranch(ctx, page, req, err)
	}

	var authErr *browserdriver.ProxyAuthError
	if errors.As(err, &authErr) {
		return attemptOutput{oc: outcome{kind: outcomeProxyException, reason: "auth_required"}}
	}

	if isProxy, reason := proxypool.IsProxyException(err.Error()); isProxy {
		return attemptOutput{oc: outcome{kind: outcomeProxyException, reason: reason}}
	}

	return attemptOutput{
		result: &fetchtypes.FetchResult{Status: fetchtypes.StatusNonProxyFailure, Error: fmt.Sprintf("page load failed, %v", err)},
		oc:     outcome{kind: outcomeFatal, err: err},
	}
}

// timeoutBranch implements timeout handling: without
// force_content_on_timeout, emit 601 directly; with it, harvest via
// force_get_content and escalate to the proxy-page branch if the harvested
// body itself looks like a proxy error page.
func (e *Engine) timeoutBranch(ctx context.Context, page browserdriver.Page, req *fetchtypes.FetchRequest, timeoutErr error) attemptOutput {
	if !req.ForceContentOnTimeout {
		return attemptOutput{
			result: &fetchtypes.FetchResult{Status: fetchtypes.StatusTimeoutNoContent, Error: fmt.Sprintf("page load timeout, %v", timeoutErr)},
			oc:     outcome{kind: outcomeTimeout, err: timeoutErr},
		}
	}

	html, ok := forceGetContent(ctx, page)
	if !ok {
		return attemptOutput{
			result: &fetchtypes.FetchResult{Status: fetchtypes.StatusTimeoutNoContent, Error: fmt.Sprintf("page load timeout, %v", timeoutErr)},
			oc:     outcome{kind: outcomeTimeout, err: timeoutErr},
		}
	}

	if bad, reason := proxypool.IsProxyErrorPage(html); bad {
		return attemptOutput{oc: outcome{kind: outcomeProxyPage, reason: "page_error_" + reason}}
	}

	return attemptOutput{
		result: &fetchtypes.FetchResult{
			HTML:   html,
			Status: fetchtypes.StatusTimeoutForcedContent,
			Error:  fmt.Sprintf("page load timeout, forced content retrieved, %v", timeoutErr),
		},
		oc: outcome{kind: outcomeTimeout, err: timeoutErr},
	}
}

// forceGetContent implements the harvesting loop: up to 3
// rounds of sleep 0.5s → best-effort settle wait → read content, exiting as
// soon as the body is longer than 5000 bytes.
func forceGetContent(ctx context.Context, page browserdriver.Page) (string, bool) {
	for i := 0; i < 3; i++ {
		sleepCtx(ctx, 500*time.Millisecond)
		_ = page.WaitForLoadState(ctx, "domcontentloaded", 2000)

		html, _, err := page.Content(ctx)
		if err != nil {
			continue
		}
		if len(html) > 5000 {
			return html, true
		}
	}
	return "", false
}

// settle sleeps the fixed post-navigation window (1s for HTML, 2s for
// screenshots) then waits up to 2s for domcontentloaded, ignoring its
// timeout.
func settle(ctx context.Context, page browserdriver.Page, wantScreenshot bool) {
	d := time.Second
	if wantScreenshot {
		d = 2 * time.Second
	}
	sleepCtx(ctx, d)
	_ = page.WaitForLoadState(ctx, "domcontentloaded", 2000)
}

// extract reads page content (HTML mode) or content-then-screenshot
// (screenshot mode, so the proxy-page detector still runs against the
// origin's HTML).
func extract(ctx context.Context, page browserdriver.Page, wantScreenshot, fullPage bool) (html string, screenshot []byte, err error) {
	html, _, err = page.Content(ctx)
	if err != nil {
		return "", nil, err
	}
	if !wantScreenshot {
		return html, nil, nil
	}
	screenshot, err = page.Screenshot(ctx, browserdriver.ScreenshotOptions{FullPage: fullPage})
	if err != nil {
		return "", nil, err
	}
	return html, screenshot, nil
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
