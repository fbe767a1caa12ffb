package conf

import (
	"errors"
	"time"

	"github.com/zxjlm/playwright-gateway/pkg/mapstruct"
)

type Bootstrap struct {
	Strict   bool      `json:"strict" yaml:"strict"`
	Hostname string    `json:"hostname" yaml:"hostname"`
	PidFile  string    `json:"pidfile" yaml:"pidfile"`
	Logger   *Logger   `json:"logger" yaml:"logger"`
	Server   *Server   `json:"server" yaml:"server"`
	Plugin   []*Plugin `json:"plugin" yaml:"plugin"`
	Proxy    *Proxy    `json:"proxy" yaml:"proxy"`
	Browser  *Browser  `json:"browser" yaml:"browser"`
	Cache    *Cache    `json:"cache" yaml:"cache"`
	Auth     *Auth     `json:"auth" yaml:"auth"`
}

// Validate enforces the cross-field config constraints.
func (b *Bootstrap) Validate() error {
	if b.Proxy != nil {
		if err := b.Proxy.Validate(); err != nil {
			return err
		}
	}
	return nil
}

type Logger struct {
	Level      string `json:"level" yaml:"level"`
	Path       string `json:"path" yaml:"path"`
	Caller     bool   `json:"caller" yaml:"caller"`
	TraceID    bool   `json:"traceid" yaml:"traceid"`
	MaxSize    int    `json:"max_size" yaml:"max_size"`
	MaxAge     int    `json:"max_age" yaml:"max_age"`
	MaxBackups int    `json:"max_backups" yaml:"max_backups"`
	Compress   bool   `json:"compress" yaml:"compress"`
	NoPid      bool   `json:"nopid" yaml:"nopid"`
}

type Server struct {
	Addr              string           `json:"addr" yaml:"addr"`
	ReadTimeout       time.Duration    `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout      time.Duration    `json:"write_timeout" yaml:"write_timeout"`
	IdleTimeout       time.Duration    `json:"idle_timeout" yaml:"idle_timeout"`
	ReadHeaderTimeout time.Duration    `json:"read_header_timeout" yaml:"read_header_timeout"`
	MaxHeaderBytes    int              `json:"max_header_bytes" yaml:"max_header_bytes"`
	PProf             *ServerPProf     `json:"pprof" yaml:"pprof"`
	AccessLog         *ServerAccessLog `json:"access_log" yaml:"access_log"`
}

type ServerPProf struct {
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
}

type ServerAccessLog struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path"`
	Encrypt struct {
		Enabled bool   `json:"enabled" yaml:"enabled"`
		Secret  string `json:"secret" yaml:"secret"`
	} `json:"encrypt" yaml:"encrypt"`
}

// ProxyType mirrors its service_proxy_type: dynamic, static or none.
const (
	ProxyTypeDynamic = "dynamic"
	ProxyTypeStatic  = "static"
	ProxyTypeNone    = "none"
)

// Proxy maps its service_proxy_* environment variables.
type Proxy struct {
	Type        string `json:"type" yaml:"type"`
	APIURL      string `json:"api_url" yaml:"api_url"`
	CheckURL    string `json:"check_url" yaml:"check_url"`
	StaticProxy string `json:"static_proxy" yaml:"static_proxy"`
}

// Validate enforces "dynamic requires proxy_api_url; static requires
// static_proxy".
func (p *Proxy) Validate() error {
	switch p.Type {
	case ProxyTypeDynamic:
		if p.APIURL == "" {
			return errors.New("conf: proxy.type=dynamic requires proxy.api_url")
		}
	case ProxyTypeStatic:
		if p.StaticProxy == "" {
			return errors.New("conf: proxy.type=static requires proxy.static_proxy")
		}
	case ProxyTypeNone, "":
	default:
		return errors.New("conf: proxy.type must be one of dynamic, static, none")
	}
	return nil
}

// Browser configures the browser lifecycle manager.
type Browser struct {
	MaxIdlePerEngine int           `json:"max_idle_per_engine" yaml:"max_idle_per_engine"`
	IdleTimeout      time.Duration `json:"idle_timeout" yaml:"idle_timeout"`
}

// Cache maps its persistence and admission-control settings.
type Cache struct {
	DatabaseURL           string `json:"database_url" yaml:"database_url"`
	MaxConcurrentRequests int64  `json:"max_concurrent_requests" yaml:"max_concurrent_requests"`
}

// Auth maps its authentication/observability collaborator settings.
type Auth struct {
	MCPBearerToken string `json:"mcp_bearer_token" yaml:"mcp_bearer_token"`
	// AuthConfig is the header-auth toggle; 0 disables it.
	AuthConfig   int    `json:"auth_config" yaml:"auth_config"`
	SentryDSN    string `json:"sentry_dsn" yaml:"sentry_dsn"`
	OTLPEndpoint string `json:"otlp_endpoint" yaml:"otlp_endpoint"`
}

type Plugin struct {
	Name    string         `json:"name" yaml:"name"`
	Options map[string]any `json:"options" yaml:"options"`
}

func (r *Plugin) PluginName() string {
	return r.Name
}

func (r *Plugin) Unmarshal(v any) error {
	return mapstruct.Decode(r.Options, v)
}
