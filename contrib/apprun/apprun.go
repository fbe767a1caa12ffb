// Package apprun is a minimal application runner over a list of
// transport.Server implementations: the same option-functions-over-a-struct
// call shape as go-kratos (App.ID/Name/Version/StopTimeout/Logger/Server,
// then Run()), built over golang.org/x/sync/errgroup for concurrent
// start/stop instead of hand-rolled goroutine/WaitGroup bookkeeping.
package apprun

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zxjlm/playwright-gateway/contrib/log"
	"github.com/zxjlm/playwright-gateway/contrib/transport"
)

// Option configures an App.
type Option func(*App)

func ID(id string) Option { return func(a *App) { a.id = id } }

func Name(name string) Option { return func(a *App) { a.name = name } }

func Version(v string) Option { return func(a *App) { a.version = v } }

// StopTimeout bounds how long Stop is given to every server on shutdown.
func StopTimeout(d time.Duration) Option { return func(a *App) { a.stopTimeout = d } }

func Logger(l log.Logger) Option { return func(a *App) { a.logger = l } }

// Server appends transport servers to run.
func Server(servers ...transport.Server) Option {
	return func(a *App) { a.servers = append(a.servers, servers...) }
}

// App runs a fixed set of transport.Server instances until an OS signal
// or a server failure, then stops all of them within StopTimeout.
type App struct {
	id, name, version string
	stopTimeout        time.Duration
	logger             log.Logger
	servers            []transport.Server
}

// New builds an App from opts.
func New(opts ...Option) *App {
	a := &App{stopTimeout: 30 * time.Second}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = log.GetLogger()
	}
	return a
}

// Run starts every server concurrently, blocks until SIGINT/SIGTERM or a
// server returns an error, then stops every server within StopTimeout and
// returns the first error encountered on either side.
func (a *App) Run() error {
	helper := log.NewHelper(a.logger)
	helper.Infof("app %s (%s) id=%s starting with %d server(s)", a.name, a.version, a.id, len(a.servers))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eg, egCtx := errgroup.WithContext(ctx)
	for _, srv := range a.servers {
		srv := srv
		eg.Go(func() error {
			return srv.Start(egCtx)
		})
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		helper.Infof("app %s received signal %s, shutting down", a.name, sig)
	case <-egCtx.Done():
		helper.Warnf("app %s: a server exited, shutting down the rest", a.name)
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), a.stopTimeout)
	defer stopCancel()

	var stopErr error
	for _, srv := range a.servers {
		if err := srv.Stop(stopCtx); err != nil && stopErr == nil {
			stopErr = err
		}
	}

	cancel()
	if err := eg.Wait(); err != nil && stopErr == nil {
		stopErr = err
	}
	return stopErr
}
