package fetchengine

import (
	"fmt"
	"net/http"

	"github.com/zxjlm/playwright-gateway/fetchtypes"
)

// getError builds the human-readable page_error for a terminal status,
// mirroring the "get_error(status)" lookup the source applies on every
// emit.
func getError(status int) string {
	switch status {
	case 0:
		return ""
	case fetchtypes.StatusTimeoutForcedContent:
		return "page load timeout, forced content retrieved"
	case fetchtypes.StatusTimeoutNoContent:
		return "page load timeout, no usable content"
	case fetchtypes.StatusNonProxyFailure:
		return "page load failed"
	case fetchtypes.StatusFailureOutsideNav:
		return "request failed"
	case fetchtypes.StatusProxyExceptionExhaust:
		return fmt.Sprintf("Proxy error after %d retries", fetchtypes.MaxProxyRetryAttempts)
	case fetchtypes.StatusProxyPageExhaust:
		return fmt.Sprintf("Proxy returned error page after %d retries", fetchtypes.MaxProxyRetryAttempts)
	default:
		if status >= 200 && status < 300 {
			return ""
		}
		if text := http.StatusText(status); text != "" {
			return text
		}
		return fmt.Sprintf("unexpected status %d", status)
	}
}
