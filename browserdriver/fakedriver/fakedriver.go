// Package fakedriver is a scriptable browserdriver.Engine used by tests to
// exercise the fetch state machine without a real browser.
package fakedriver

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/zxjlm/playwright-gateway/browserdriver"
	"github.com/zxjlm/playwright-gateway/fetchtypes"
)

// Outcome scripts one full navigation attempt: the NewContext call that
// opens it consumes exactly one Outcome, and every later call in that same
// attempt (NewPage, Goto) replays fields stashed off the same Outcome.
type Outcome struct {
	Status      int
	HTML        string
	Err         error // returned from Goto, e.g. a *browserdriver.TimeoutError
	StaleOnCtx  bool  // NewContext fails with a StaleError and consumes this Outcome
	StaleOnPage bool  // NewPage fails with a StaleError
}

// Factory is a scripted sequence of Outcomes, consumed one per NewContext
// call across however many attempts the state machine makes.
type Factory struct {
	mu       sync.Mutex
	outcomes []Outcome
	cursor   int

	contextsCreated int64
	contextsClosed  int64
	pagesCreated    int64
	pagesClosed     int64
}

// New builds a Factory that replays outcomes in order, repeating the last
// one once exhausted. With no outcomes, every navigation returns status 200
// with a minimal "<html><body>ok</body></html>" page.
func New(outcomes ...Outcome) *Factory {
	return &Factory{outcomes: outcomes}
}

func (f *Factory) Build(ctx context.Context, engine fetchtypes.Engine) (browserdriver.Engine, error) {
	return &fakeEngine{f: f}, nil
}

func (f *Factory) next() Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.outcomes) == 0 {
		return Outcome{Status: 200, HTML: "<html><body>ok</body></html>"}
	}
	idx := f.cursor
	if idx >= len(f.outcomes) {
		idx = len(f.outcomes) - 1
	} else {
		f.cursor++
	}
	return f.outcomes[idx]
}

// ContextsCreated reports how many NewContext calls succeeded (for
// asserting exactly-one-evict_all style invariants in tests).
func (f *Factory) ContextsCreated() int64 { return atomic.LoadInt64(&f.contextsCreated) }
func (f *Factory) ContextsClosed() int64  { return atomic.LoadInt64(&f.contextsClosed) }
func (f *Factory) PagesCreated() int64    { return atomic.LoadInt64(&f.pagesCreated) }
func (f *Factory) PagesClosed() int64     { return atomic.LoadInt64(&f.pagesClosed) }

type fakeEngine struct {
	f      *Factory
	closed bool
}

func (e *fakeEngine) NewContext(ctx context.Context, proxyURL string, vw, vh int) (browserdriver.Context, error) {
	o := e.f.next()
	if o.StaleOnCtx {
		return nil, &browserdriver.StaleError{Message: "browser has been closed"}
	}
	atomic.AddInt64(&e.f.contextsCreated, 1)
	return &fakeContext{f: e.f, outcome: o}, nil
}

func (e *fakeEngine) Close(ctx context.Context) error { e.closed = true; return nil }

type fakeContext struct {
	f       *Factory
	outcome Outcome
}

func (c *fakeContext) NewPage(ctx context.Context) (browserdriver.Page, error) {
	if c.outcome.StaleOnPage {
		return nil, &browserdriver.StaleError{Message: "the handler is closed"}
	}
	atomic.AddInt64(&c.f.pagesCreated, 1)
	return &fakePage{f: c.f, outcome: c.outcome}, nil
}

func (c *fakeContext) Close(ctx context.Context) error {
	atomic.AddInt64(&c.f.contextsClosed, 1)
	return nil
}

type fakePage struct {
	f       *Factory
	outcome Outcome
}

func (p *fakePage) SetExtraHeaders(ctx context.Context, headers map[string]string) error {
	return nil
}

func (p *fakePage) Goto(ctx context.Context, url string, opts browserdriver.NavigateOptions) (int, error) {
	if p.outcome.Err != nil {
		return 0, p.outcome.Err
	}
	return p.outcome.Status, nil
}

func (p *fakePage) WaitForLoadState(ctx context.Context, state string, timeoutMS int) error {
	return nil
}

func (p *fakePage) Content(ctx context.Context) (string, string, error) {
	return p.outcome.HTML, "text/html; charset=utf-8", nil
}

func (p *fakePage) Screenshot(ctx context.Context, opts browserdriver.ScreenshotOptions) ([]byte, error) {
	return []byte("fake-png-bytes"), nil
}

func (p *fakePage) Close(ctx context.Context) error {
	atomic.AddInt64(&p.f.pagesClosed, 1)
	return nil
}
