package proxyfetch

import (
	"net/http"
	"net/url"
	"strings"
)

// ProxiedURL returns the URL the proxy should receive for original: the proxy's scheme, host
// and port, followed by the original path and query string. Fragments are dropped.
func (f *Fetcher) ProxiedURL(original *url.URL) *url.URL {
	return rewriteURL(f.proxy, original)
}

func rewriteURL(proxy, original *url.URL) *url.URL {
	u := *proxy
	u.Path = proxy.Path + original.Path
	if original.RawPath != "" {
		u.RawPath = proxy.EscapedPath() + original.RawPath
	} else if proxy.RawPath != "" {
		u.RawPath = proxy.RawPath + original.EscapedPath()
	} else {
		u.RawPath = ""
	}
	u.RawQuery = original.RawQuery
	u.ForceQuery = original.ForceQuery
	u.Fragment = ""
	u.RawFragment = ""
	return &u
}

// proxyHeaders layers the configured headers over the caller's and records the upstream host.
// Configured headers replace caller values with the same name, whatever the caller's casing.
func proxyHeaders(caller, extra http.Header, host string) http.Header {
	h := caller.Clone()
	if h == nil {
		h = make(http.Header, len(extra)+1)
	}
	for k, v := range extra {
		dropHeader(h, k)
		h[k] = append([]string(nil), v...)
	}
	dropHeader(h, HeaderUpstreamHost)
	h.Set(HeaderUpstreamHost, host)
	return h
}

// dropHeader removes every key of h that names the same header as name, including keys that
// were stored without canonical casing.
func dropHeader(h http.Header, name string) {
	for k := range h {
		if strings.EqualFold(k, name) {
			delete(h, k)
		}
	}
}

func upstreamHost(req *http.Request) string {
	if req.URL.Host != "" {
		return req.URL.Host
	}
	return req.Host
}
