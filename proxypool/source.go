package proxypool

import (
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/zxjlm/playwright-gateway/contrib/log"
	"github.com/zxjlm/playwright-gateway/fetchtypes"
)

func parseProxyURL(raw string) (*url.URL, error) {
	return url.Parse(raw)
}

// Source yields a single proxy server URL. Static and none sources return
// immediately; the dynamic source polls an HTTP provider.
type Source interface {
	Fetch(ctx context.Context) (string, error)
	Type() fetchtypes.ProxyType
}

type noneSource struct{}

func NewNoneSource() Source { return noneSource{} }

func (noneSource) Fetch(ctx context.Context) (string, error) { return "", nil }
func (noneSource) Type() fetchtypes.ProxyType                 { return fetchtypes.ProxyNone }

type staticSource struct {
	url string
}

// NewStaticSource returns a Source that always yields the fixed url.
func NewStaticSource(url string) Source {
	return &staticSource{url: url}
}

func (s *staticSource) Fetch(ctx context.Context) (string, error) { return s.url, nil }
func (s *staticSource) Type() fetchtypes.ProxyType                { return fetchtypes.ProxyStatic }

// HealthProbe confirms a candidate dynamic proxy is alive before it's
// accepted, by HEAD-requesting checkURL through it. Optional.
type HealthProbe func(ctx context.Context, proxyURL string) bool

// NewHTTPHealthProbe builds a HealthProbe issuing a HEAD request through
// the candidate proxy against checkURL.
func NewHTTPHealthProbe(checkURL string) HealthProbe {
	if checkURL == "" {
		return nil
	}
	return func(ctx context.Context, proxyURL string) bool {
		client, err := proxyClient(proxyURL)
		if err != nil {
			return false
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, checkURL, nil)
		if err != nil {
			return false
		}
		req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) Chrome/120.0.0.0 Safari/537.36")
		resp, err := client.Do(req)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}
}

func proxyClient(proxyURL string) (*http.Client, error) {
	u, err := parseProxyURL(proxyURL)
	if err != nil {
		return nil, err
	}
	return &http.Client{
		Timeout: 5 * time.Second,
		Transport: &http.Transport{
			Proxy:           http.ProxyURL(u),
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}, nil
}

type dynamicSource struct {
	apiURL string
	probe  HealthProbe
	client *http.Client
	backoff time.Duration
}

// NewDynamicSource polls apiURL for a plain-text proxy URL, retrying
// indefinitely on failure with a fixed backoff.
func NewDynamicSource(apiURL string, probe HealthProbe) Source {
	return &dynamicSource{
		apiURL:  apiURL,
		probe:   probe,
		backoff: 2 * time.Second,
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

func (d *dynamicSource) Type() fetchtypes.ProxyType { return fetchtypes.ProxyDynamic }

func (d *dynamicSource) Fetch(ctx context.Context) (string, error) {
	first := true
	for {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if !first {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(d.backoff):
			}
		}
		first = false

		proxy, retry := d.fetchOnce(ctx)
		if !retry {
			return proxy, nil
		}
	}
}

// fetchOnce returns (proxy, retry). retry is true when the caller should
// loop back and try again after the backoff.
func (d *dynamicSource) fetchOnce(ctx context.Context) (string, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.apiURL, nil)
	if err != nil {
		log.Errorf("proxypool: build dynamic source request failed: %v", err)
		return "", true
	}

	resp, err := d.client.Do(req)
	if err != nil {
		log.Warnf("proxypool: dynamic source request failed: %v", err)
		return "", true
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusBadRequest, http.StatusServiceUnavailable:
		body, _ := io.ReadAll(resp.Body)
		log.Warnf("proxypool: dynamic source returned %d: %s", resp.StatusCode, string(body))
		return "", true
	case http.StatusOK:
	default:
		log.Warnf("proxypool: dynamic source unexpected status %d", resp.StatusCode)
		return "", true
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", true
	}
	proxy := strings.TrimSpace(string(body))
	if proxy == "" {
		log.Warnf("proxypool: dynamic source returned empty body")
		return "", true
	}

	if d.probe != nil && !d.probe(ctx, proxy) {
		log.Warnf("proxypool: candidate proxy %s failed health probe", proxy)
		return "", true
	}

	return proxy, false
}
