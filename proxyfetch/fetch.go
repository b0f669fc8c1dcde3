package proxyfetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/casualjim/tapes/pkg/slogx"
	"github.com/fogfish/opts"
	"github.com/tidwall/gjson"
)

const traceMsgPrefix = "tapes-fetch: "

var _ http.RoundTripper = (*Fetcher)(nil)

// Init holds the optional request options of a Fetch call.
type Init struct {
	Method string
	Header http.Header
	Body   io.Reader
}

// Fetcher sends requests to the proxy target with retry and optional failover.
type Fetcher struct {
	proxy     *url.URL
	headers   http.Header
	debug     bool
	retry     RetryPolicy
	failover  bool
	log       *slog.Logger
	transport http.RoundTripper

	sleep func(context.Context, time.Duration) error
}

// New validates cfg and builds a Fetcher. No network traffic happens here.
func New(cfg Config) (*Fetcher, error) {
	proxy, err := normalizeTarget(cfg.ProxyTarget)
	if err != nil {
		return nil, err
	}
	headers, err := canonicalHeaders(cfg.ExtraHeaders)
	if err != nil {
		return nil, err
	}

	retry := cfg.Retry
	if retry == (RetryPolicy{}) {
		retry = DefaultRetryPolicy()
	}
	if err := retry.Validate(); err != nil {
		return nil, err
	}

	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	return &Fetcher{
		proxy:     proxy,
		headers:   headers,
		debug:     cfg.Debug,
		retry:     retry,
		failover:  cfg.Failover,
		log:       log,
		transport: transport,
		sleep:     sleepWithContext,
	}, nil
}

// Build is New in functional options form.
func Build(proxyTarget string, options ...opts.Option[Config]) (*Fetcher, error) {
	cfg := Config{ProxyTarget: proxyTarget}
	if err := opts.Apply(&cfg, options); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return New(cfg)
}

// Client returns an http.Client that sends every request through f.
func (f *Fetcher) Client() *http.Client {
	return &http.Client{Transport: f}
}

// RetryPolicy returns the policy in effect after defaults were applied.
func (f *Fetcher) RetryPolicy() RetryPolicy {
	return f.retry
}

// Fetch resolves target, which may be a string, a URL or an *http.Request, and sends it
// through the proxy. Init overrides the method, headers and body of the request when set.
func (f *Fetcher) Fetch(ctx context.Context, target any, init *Init) (*http.Response, error) {
	req, err := newRequest(ctx, target, init)
	if err != nil {
		return nil, err
	}
	return f.RoundTrip(req)
}

// RoundTrip implements http.RoundTripper. The request is never modified; its body is read
// once and replayed for every attempt.
func (f *Fetcher) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	body, err := readBody(req)
	if err != nil {
		return nil, err
	}

	proxied := f.ProxiedURL(req.URL)
	if f.debug {
		f.trace(ctx, "rewrote request",
			slog.String("method", req.Method),
			slogx.Stringer("original_url", req.URL),
			slogx.Stringer("proxied_url", proxied),
			slog.String("model", gjson.GetBytes(body, "model").String()),
			slogx.Headers("headers", proxyHeaders(req.Header, f.headers, upstreamHost(req))),
		)
	}

	out := f.proxyWithRetry(ctx, req, proxied, body)
	if !out.exhausted {
		return out.resp, out.err
	}

	if f.failover {
		discard(out.resp)
		return f.direct(ctx, req, body, out)
	}

	if out.err != nil {
		discard(out.resp)
		return nil, out.err
	}
	return out.resp, nil
}

// outcome is the state carried out of the retry loop.
type outcome struct {
	resp      *http.Response
	err       error
	attempts  int
	exhausted bool
}

func (f *Fetcher) proxyWithRetry(ctx context.Context, orig *http.Request, target *url.URL, body []byte) outcome {
	var out outcome

	for attempt := 0; attempt < f.retry.MaxAttempts; attempt++ {
		out.attempts = attempt + 1

		resp, err := f.transport.RoundTrip(f.proxiedRequest(ctx, orig, target, body))
		switch {
		case err != nil && ctx.Err() != nil:
			discard(out.resp)
			return outcome{err: err, attempts: out.attempts}

		case err != nil && !IsTransientError(err):
			f.trace(ctx, "proxy attempt failed, not retrying",
				slog.Int("attempt", attempt), slogx.Error(err))
			discard(out.resp)
			return outcome{
				err:       fmt.Errorf("%w: %s: %w", ErrProxyRequest, target.Redacted(), err),
				attempts:  out.attempts,
				exhausted: true,
			}

		case err != nil:
			f.trace(ctx, "proxy attempt failed",
				slog.Int("attempt", attempt),
				slog.Int("max_attempts", f.retry.MaxAttempts),
				slogx.Error(err))
			out.err = fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, out.attempts, err)

		case !IsTransientStatus(resp.StatusCode):
			f.trace(ctx, "proxy attempt completed",
				slog.Int("attempt", attempt), slog.Int("status", resp.StatusCode))
			discard(out.resp)
			return outcome{resp: resp, attempts: out.attempts}

		default:
			f.trace(ctx, "proxy attempt returned transient status",
				slog.Int("attempt", attempt),
				slog.Int("max_attempts", f.retry.MaxAttempts),
				slog.Int("status", resp.StatusCode))
			discard(out.resp)
			out.resp = resp
		}

		if attempt == f.retry.MaxAttempts-1 {
			break
		}

		delay := f.retry.Backoff(attempt)
		f.trace(ctx, "retrying proxy request",
			slog.Int("next_attempt", attempt+1), slog.Duration("delay", delay))
		if err := f.sleep(ctx, delay); err != nil {
			discard(out.resp)
			return outcome{err: err, attempts: out.attempts}
		}
	}

	out.exhausted = true
	return out
}

// direct sends the one-shot failover request to the original destination with only the
// caller's headers. Whatever it returns is final.
func (f *Fetcher) direct(ctx context.Context, orig *http.Request, body []byte, proxied outcome) (*http.Response, error) {
	attrs := []any{
		slogx.Stringer("url", orig.URL),
		slog.Int("proxy_attempts", proxied.attempts),
	}
	if proxied.err != nil {
		attrs = append(attrs, slogx.Error(proxied.err))
	}
	f.trace(ctx, "proxy unavailable, failing over to upstream", attrs...)

	req := orig.Clone(ctx)
	req.RequestURI = ""
	setBody(req, body)

	resp, err := f.transport.RoundTrip(req)
	if err != nil {
		f.trace(ctx, "failover request failed", slogx.Error(err))
		return nil, fmt.Errorf("%w: %s: %w", ErrFailover, orig.URL.Redacted(), err)
	}
	f.trace(ctx, "failover request completed", slog.Int("status", resp.StatusCode))
	return resp, nil
}

func (f *Fetcher) proxiedRequest(ctx context.Context, orig *http.Request, target *url.URL, body []byte) *http.Request {
	req := orig.Clone(ctx)
	req.URL = target
	req.Host = ""
	req.RequestURI = ""
	req.Header = proxyHeaders(orig.Header, f.headers, upstreamHost(orig))
	setBody(req, body)
	return req
}

func (f *Fetcher) trace(ctx context.Context, msg string, args ...any) {
	if !f.debug {
		return
	}
	f.log.DebugContext(ctx, traceMsgPrefix+msg, args...)
}

func newRequest(ctx context.Context, target any, init *Init) (*http.Request, error) {
	if init == nil {
		init = &Init{}
	}

	var req *http.Request
	switch t := target.(type) {
	case *http.Request:
		if t == nil || t.URL == nil {
			return nil, fmt.Errorf("%w: request without URL", ErrUnsupportedTarget)
		}
		req = t.Clone(ctx)
		if init.Method != "" {
			req.Method = init.Method
		}
		if init.Body != nil {
			req.Body = io.NopCloser(init.Body)
			req.GetBody = nil
			req.ContentLength = -1
		}
	case string:
		u, err := url.Parse(strings.TrimSpace(t))
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %w", ErrUnsupportedTarget, t, err)
		}
		return newRequest(ctx, u, init)
	case url.URL:
		return newRequest(ctx, &t, init)
	case *url.URL:
		if t == nil || !t.IsAbs() {
			return nil, fmt.Errorf("%w: target must be an absolute URL", ErrUnsupportedTarget)
		}
		method := init.Method
		if method == "" {
			method = http.MethodGet
		}
		r, err := http.NewRequestWithContext(ctx, method, t.String(), init.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUnsupportedTarget, err)
		}
		req = r
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedTarget, target)
	}

	for k, v := range init.Header {
		req.Header[http.CanonicalHeaderKey(k)] = append([]string(nil), v...)
	}
	return req, nil
}

// readBody drains and closes the request body. A nil slice means the request had no body.
func readBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	defer req.Body.Close()
	b, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, fmt.Errorf("read request body: %w", err)
	}
	if b == nil {
		b = []byte{}
	}
	return b, nil
}

func setBody(req *http.Request, body []byte) {
	if body == nil {
		req.Body = nil
		req.GetBody = nil
		req.ContentLength = 0
		return
	}
	if len(body) == 0 {
		req.Body = http.NoBody
		req.GetBody = func() (io.ReadCloser, error) { return http.NoBody, nil }
		req.ContentLength = 0
		return
	}
	req.ContentLength = int64(len(body))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}
	req.Body, _ = req.GetBody()
}

// discard releases a response that will not be handed to the caller.
func discard(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}
