package main

import (
	"os"
	"time"

	"flag"

	"github.com/cloudflare/tableflip"
	"github.com/getsentry/sentry-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	pluginv1 "github.com/zxjlm/playwright-gateway/api/defined/v1/plugin"
	"github.com/zxjlm/playwright-gateway/browserdriver/fakedriver"
	"github.com/zxjlm/playwright-gateway/browserpool"
	"github.com/zxjlm/playwright-gateway/conf"
	"github.com/zxjlm/playwright-gateway/contrib/apprun"
	"github.com/zxjlm/playwright-gateway/contrib/config"
	"github.com/zxjlm/playwright-gateway/contrib/config/provider/file"
	"github.com/zxjlm/playwright-gateway/contrib/log"
	"github.com/zxjlm/playwright-gateway/contrib/transport"
	"github.com/zxjlm/playwright-gateway/fetchengine"
	"github.com/zxjlm/playwright-gateway/historycache"
	"github.com/zxjlm/playwright-gateway/metrics"
	"github.com/zxjlm/playwright-gateway/orchestrator"
	"github.com/zxjlm/playwright-gateway/plugin"
	_ "github.com/zxjlm/playwright-gateway/plugin/auth"
	_ "github.com/zxjlm/playwright-gateway/plugin/mcpstub"
	_ "github.com/zxjlm/playwright-gateway/plugin/sanitizer"
	"github.com/zxjlm/playwright-gateway/proxypool"
	"github.com/zxjlm/playwright-gateway/server"
)

var (
	id, _ = os.Hostname()

	// flagConf is the config flag.
	flagConf string = "config.yaml"
	// flagVerbose is the verbose flag.
	flagVerbose bool

	// Version is the version of the app.
	Version string = "no-set"
	GitHash string = "no-set"
	Built   string = "0"
)

func init() {
	// init flag
	flag.StringVar(&flagConf, "c", "config.yaml", "config file path")
	flag.BoolVar(&flagVerbose, "v", false, "enable verbose log")

	// init logger
	log.SetLogger(log.With(log.DefaultLogger, "ts", log.Timestamp(time.RFC3339), "pid", os.Getpid()))

	// init prometheus
	prometheus.Unregister(collectors.NewGoCollector())
	registerer := prometheus.WrapRegistererWithPrefix("gateway_", prometheus.DefaultRegisterer)
	registerer.MustRegister(collectors.NewGoCollector(collectors.WithGoCollectorMemStatsMetricsDisabled()))
}

func main() {
	flag.Parse()

	c := config.New[conf.Bootstrap](config.WithSource(file.NewSource(flagConf)))
	defer c.Close()

	bc := &conf.Bootstrap{}
	if err := c.Scan(bc); err != nil {
		log.Fatal(err)
	}
	if err := bc.Validate(); err != nil {
		log.Fatal(err)
	}

	if bc.Auth != nil && bc.Auth.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: bc.Auth.SentryDSN}); err != nil {
			log.Errorf("failed to initialize sentry: %v", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	app, err := newApp(bc)
	if err != nil {
		log.Fatal(err)
	}

	if err := app.Run(); err != nil {
		log.Fatal(err)
	}
}

func newApp(bc *conf.Bootstrap) (*apprun.App, error) {
	stopTimeout := 120 * time.Second

	// graceful upgrade
	flip, err := tableflip.New(tableflip.Options{
		PIDFile:        bc.PidFile,
		UpgradeTimeout: stopTimeout,
	})
	if err != nil {
		return nil, err
	}

	if bc.Cache == nil {
		bc.Cache = &conf.Cache{}
	}
	if bc.Browser == nil {
		bc.Browser = &conf.Browser{}
	}

	history, err := historycache.Open(bc.Cache.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to open history store: %v", err)
	}

	reg := prometheus.DefaultRegisterer

	proxies := proxypool.New(buildProxySource(bc.Proxy), reg)

	// Real headless-browser automation is out of scope: fakedriver backs
	// every engine with a scripted, always-available driver.
	browsers := browserpool.New(fakedriver.New().Build, reg, bc.Browser.IdleTimeout)

	engine := fetchengine.New(browsers, proxies, reg)
	metricsReg := metrics.New(reg)

	orch := orchestrator.New(history, engine.FetchHTML, engine.FetchScreenshot, metricsReg, bc.Cache.MaxConcurrentRequests, log.GetLogger())

	// load plugin
	plugins := loadPlugin(log.GetLogger(), bc)

	srv := server.NewServer(flip, bc, plugins, orch, browsers, metricsReg)

	servers := make([]transport.Server, 0, 1+len(plugins))
	servers = append(servers, srv)
	for _, plug := range plugins {
		servers = append(servers, plug)
	}

	return apprun.New(
		apprun.ID(id),
		apprun.Name("playwright-gateway"),
		apprun.Version(Version),
		apprun.StopTimeout(stopTimeout),
		apprun.Logger(log.GetLogger()),
		apprun.Server(servers...),
	), nil
}

// buildProxySource maps its service_proxy_type onto a proxypool.Source.
func buildProxySource(cfg *conf.Proxy) proxypool.Source {
	if cfg == nil {
		return proxypool.NewNoneSource()
	}
	switch cfg.Type {
	case conf.ProxyTypeDynamic:
		return proxypool.NewDynamicSource(cfg.APIURL, proxypool.NewHTTPHealthProbe(cfg.CheckURL))
	case conf.ProxyTypeStatic:
		return proxypool.NewStaticSource(cfg.StaticProxy)
	default:
		return proxypool.NewNoneSource()
	}
}

func loadPlugin(logger log.Logger, bc *conf.Bootstrap) []pluginv1.Plugin {
	ctxlog := log.NewHelper(logger)

	plugins := make([]pluginv1.Plugin, 0, len(bc.Plugin))
	for _, plug := range bc.Plugin {
		instance, err := plugin.Create(plug, ctxlog)
		if err != nil {
			ctxlog.Errorf("load plugin %s failed: %v", plug.Name, err)
			continue
		}
		ctxlog.Debugf("plugin %s loaded", plug.PluginName())
		plugins = append(plugins, instance)
	}
	return plugins
}
