// Package browserdriver defines the small interface a real CDP/Playwright
// automation binding must satisfy. The automation engine itself is an
// external collaborator (out of scope); this package only states the
// contract the fetch engine and browser lifecycle manager need from it.
package browserdriver

import (
	"context"

	"github.com/zxjlm/playwright-gateway/fetchtypes"
)

// NavigateOptions configures a single navigation.
type NavigateOptions struct {
	TimeoutMS int
	WaitUntil fetchtypes.WaitUntil
}

// ScreenshotOptions configures a screenshot extraction.
type ScreenshotOptions struct {
	FullPage bool
}

// Engine is one long-lived automation back-end (chromium, firefox, webkit).
// Implementations must be safe for concurrent NewContext calls.
type Engine interface {
	// NewContext creates a per-fetch browsing context, optionally routed
	// through proxyURL, with the WAF-evasion defaults (realistic user
	// agent, viewport, locale) already applied.
	NewContext(ctx context.Context, proxyURL string, viewportW, viewportH int) (Context, error)
	Close(ctx context.Context) error
}

// Context is a per-fetch browser context, owning zero or more pages.
type Context interface {
	NewPage(ctx context.Context) (Page, error)
	Close(ctx context.Context) error
}

// Page is a single navigable page within a Context.
type Page interface {
	SetExtraHeaders(ctx context.Context, headers map[string]string) error
	Goto(ctx context.Context, url string, opts NavigateOptions) (status int, err error)
	WaitForLoadState(ctx context.Context, state string, timeoutMS int) error
	Content(ctx context.Context) (string, string, error) // (html, content-type)
	Screenshot(ctx context.Context, opts ScreenshotOptions) ([]byte, error)
	Close(ctx context.Context) error
}

// StaleError is returned by NewContext/NewPage when the underlying driver
// reports itself closed (its "has been closed" family).
type StaleError struct {
	Message string
}

func (e *StaleError) Error() string { return e.Message }

// TimeoutError is returned by Goto when navigation exceeds its deadline.
type TimeoutError struct {
	Message string
}

func (e *TimeoutError) Error() string { return e.Message }

// ProxyAuthError is synthesized by Goto when the transport surfaces HTTP
// 407 ("treat as a proxy exception, not fatal").
type ProxyAuthError struct{}

func (e *ProxyAuthError) Error() string { return "auth_required" }

// Factory builds Engine instances by name.
type Factory func(ctx context.Context, engine fetchtypes.Engine) (Engine, error)
