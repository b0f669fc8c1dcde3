/*
Package proxyfetch routes outbound HTTP traffic through a Tapes recording proxy.

A Fetcher rewrites every request so it reaches the proxy instead of the upstream API: the
scheme, host and port are replaced by the proxy target while the path and query string are kept
exactly. Static headers configured on the Fetcher are layered over the caller's headers and the
original host travels in the X-Tapes-Upstream-Host header so the proxy knows where to forward.

# Resilience

Calls against the proxy follow a two-phase policy:

 1. A bounded retry loop. Network failures that look transient (connection refused or reset,
    timeouts, broken pipes) and 502/503/504 responses are retried up to RetryPolicy.MaxAttempts
    times with a delay of min(InitialDelay*2^attempt, MaxDelay) between attempts.
 2. An optional failover. When the retry budget is spent and failover is enabled, a single
    direct request goes to the original destination with only the caller's headers.

Any other response, including 4xx and 500, is returned to the caller on the first attempt.

# Usage

The Fetcher is an http.RoundTripper, so it plugs into any client library that accepts an
*http.Client:

	f, err := proxyfetch.Build("http://localhost:8080",
		proxyfetch.WithHeader("X-Tapes-Session", sessionID),
		proxyfetch.WithFailover(true),
	)
	if err != nil {
		return err
	}
	client := f.Client()

For fetch-style call sites use Fetch, which accepts a string, a *url.URL or an *http.Request:

	resp, err := f.Fetch(ctx, "https://api.openai.com/v1/models", &proxyfetch.Init{
		Header: http.Header{"Authorization": {"Bearer " + key}},
	})

A Fetcher holds no mutable state and is safe for concurrent use.
*/
package proxyfetch
