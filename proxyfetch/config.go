package proxyfetch

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fogfish/opts"
)

const (
	DefaultMaxAttempts  = 3
	DefaultInitialDelay = 500 * time.Millisecond
	DefaultMaxDelay     = 5 * time.Second
)

// HeaderUpstreamHost carries the host of the original request to the proxy.
const HeaderUpstreamHost = "X-Tapes-Upstream-Host"

// RetryPolicy controls how many times the proxy is tried and how long to wait in between.
// It does not decide what is retryable; see IsTransientError and IsTransientStatus.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultRetryPolicy returns 3 attempts with delays starting at 500ms and capped at 5s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  DefaultMaxAttempts,
		InitialDelay: DefaultInitialDelay,
		MaxDelay:     DefaultMaxDelay,
	}
}

// Validate reports whether the policy can drive a retry loop.
func (p RetryPolicy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("%w: max attempts must be at least 1, got %d", ErrInvalidConfig, p.MaxAttempts)
	}
	if p.InitialDelay < 0 {
		return fmt.Errorf("%w: initial delay must not be negative, got %s", ErrInvalidConfig, p.InitialDelay)
	}
	if p.MaxDelay < 0 {
		return fmt.Errorf("%w: max delay must not be negative, got %s", ErrInvalidConfig, p.MaxDelay)
	}
	return nil
}

// Config describes a Fetcher. Only ProxyTarget is required.
//
// A zero Retry means DefaultRetryPolicy. Logger defaults to slog.Default and Transport to
// http.DefaultTransport.
type Config struct {
	ProxyTarget  string
	ExtraHeaders map[string]string
	Debug        bool
	Retry        RetryPolicy
	Failover     bool

	Logger    *slog.Logger
	Transport http.RoundTripper
}

var (
	WithHeaders   = opts.ForName[Config, map[string]string]("ExtraHeaders")
	WithDebug     = opts.ForName[Config, bool]("Debug")
	WithRetry     = opts.ForName[Config, RetryPolicy]("Retry")
	WithFailover  = opts.ForName[Config, bool]("Failover")
	WithLogger    = opts.ForName[Config, *slog.Logger]("Logger")
	WithTransport = opts.ForName[Config, http.RoundTripper]("Transport")
)

// WithHeader adds a single extra header, keeping headers set by earlier options.
func WithHeader(key, value string) opts.Option[Config] {
	return opts.Type[Config](func(c *Config) error {
		if strings.TrimSpace(key) == "" {
			return fmt.Errorf("%w: empty header name", ErrInvalidConfig)
		}
		if c.ExtraHeaders == nil {
			c.ExtraHeaders = make(map[string]string)
		}
		c.ExtraHeaders[key] = value
		return nil
	})
}

// normalizeTarget parses the proxy target and strips the trailing separator so request
// paths can be appended verbatim.
func normalizeTarget(target string) (*url.URL, error) {
	if strings.TrimSpace(target) == "" {
		return nil, fmt.Errorf("%w: proxy target is required", ErrInvalidConfig)
	}
	u, err := url.Parse(strings.TrimSpace(target))
	if err != nil {
		return nil, fmt.Errorf("%w: proxy target %q: %w", ErrInvalidConfig, target, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: proxy target %q must use http or https", ErrInvalidConfig, target)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: proxy target %q has no host", ErrInvalidConfig, target)
	}

	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = strings.TrimRight(u.RawPath, "/")
	u.RawQuery = ""
	u.ForceQuery = false
	u.Fragment = ""
	u.RawFragment = ""
	return u, nil
}

func canonicalHeaders(extra map[string]string) (http.Header, error) {
	h := make(http.Header, len(extra))
	for k, v := range extra {
		if strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("%w: empty header name", ErrInvalidConfig)
		}
		h.Set(k, v)
	}
	return h, nil
}
