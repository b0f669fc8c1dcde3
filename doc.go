/*
Package tapes connects OpenAI compatible chat clients to a Tapes recording proxy.

Tapes records model traffic for replay and inspection. Clients reach it by sending their
requests to the proxy instead of the model provider; the proxy learns the real destination
from the X-Tapes-Upstream-Host header.

# Layout

  - proxyfetch: an http.RoundTripper that rewrites requests to the proxy, retries transient
    failures with exponential backoff and can fail over to the original destination
  - provider, provider/openai: chat completions as a stream of events, backed by openai-go
    running on a proxyfetch client
  - internal/config: environment and .env configuration
  - internal/chat: conversation sessions, a terminal chat loop and an HTTP chat API
  - internal/broker: live fan-out of session events, in process or over NATS
  - cmd/tapes-chat: the command that ties it together

# Usage

	f, err := proxyfetch.Build("http://localhost:8080",
		proxyfetch.WithHeader("X-Tapes-Session", sessionID),
		proxyfetch.WithFailover(true),
	)
	if err != nil {
		return err
	}
	client := openai.New(f, option.WithAPIKey(key))

Any other client built on net/http can use f.Client() the same way.

# Resilience

Attempts against the proxy are strictly sequential. Network errors that look transient and
502, 503 and 504 responses are retried; every other response is returned as is. Once the
attempts are used up and failover is enabled, one direct request goes to the original URL
with only the caller's headers, and its outcome is final.
*/
package tapes
