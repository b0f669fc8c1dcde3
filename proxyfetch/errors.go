package proxyfetch

import "errors"

var (
	// ErrInvalidConfig is returned by New and Build when the configuration cannot be used.
	ErrInvalidConfig = errors.New("invalid proxy fetch configuration")

	// ErrUnsupportedTarget is returned by Fetch when the target is not a URL or request.
	ErrUnsupportedTarget = errors.New("unsupported fetch target")

	// ErrRetriesExhausted wraps the last network error once every proxied attempt failed.
	ErrRetriesExhausted = errors.New("proxy retries exhausted")

	// ErrProxyRequest wraps a network error against the proxy that is not worth retrying.
	ErrProxyRequest = errors.New("proxy request failed")

	// ErrFailover wraps the error of the direct request issued after the proxy gave up.
	ErrFailover = errors.New("failover request failed")
)
