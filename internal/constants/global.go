package constants

const AppName = "playwright-gateway"

// define gw->client protocol constants
const (
	ProtocolRequestIDKey   = "X-Request-ID"
	ProtocolCacheStatusKey = "X-Cache"

	InternalTraceKey = "i-xtrace"
)
