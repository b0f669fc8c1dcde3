package proxyfetch

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProxiedURL(t *testing.T) {
	tests := []struct {
		name     string
		proxy    string
		original string
		want     string
	}{
		{
			name:     "path and query preserved",
			proxy:    "http://localhost:8080",
			original: "https://api.openai.com/v1/chat/completions?stream=true&x=1",
			want:     "http://localhost:8080/v1/chat/completions?stream=true&x=1",
		},
		{
			name:     "trailing slash on proxy",
			proxy:    "http://localhost:8080/",
			original: "https://api.anthropic.com/v1/messages",
			want:     "http://localhost:8080/v1/messages",
		},
		{
			name:     "proxy path prefix",
			proxy:    "https://recorder.internal:9443/tapes/",
			original: "https://api.openai.com/v1/models",
			want:     "https://recorder.internal:9443/tapes/v1/models",
		},
		{
			name:     "fragment dropped",
			proxy:    "http://localhost:8080",
			original: "https://api.openai.com/v1/models#top",
			want:     "http://localhost:8080/v1/models",
		},
		{
			name:     "root path",
			proxy:    "http://localhost:8080",
			original: "http://localhost:11434",
			want:     "http://localhost:8080",
		},
		{
			name:     "escaped path kept verbatim",
			proxy:    "http://localhost:8080",
			original: "https://api.example.com/v1/files/a%2Fb?name=x%20y",
			want:     "http://localhost:8080/v1/files/a%2Fb?name=x%20y",
		},
		{
			name:     "empty query kept",
			proxy:    "http://localhost:8080",
			original: "https://api.example.com/v1/models?",
			want:     "http://localhost:8080/v1/models?",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := New(Config{ProxyTarget: tt.proxy})
			require.NoError(t, err)
			orig, err := url.Parse(tt.original)
			require.NoError(t, err)

			got := f.ProxiedURL(orig)
			assert.Equal(t, tt.want, got.String())
			assert.Equal(t, orig.EscapedPath(), got.EscapedPath()[len(f.proxy.EscapedPath()):])
			assert.Equal(t, orig.RawQuery, got.RawQuery)
		})
	}
}

func TestProxiedURL_DoesNotAliasProxy(t *testing.T) {
	f, err := New(Config{ProxyTarget: "http://localhost:8080"})
	require.NoError(t, err)

	first := f.ProxiedURL(&url.URL{Scheme: "https", Host: "a", Path: "/one"})
	second := f.ProxiedURL(&url.URL{Scheme: "https", Host: "b", Path: "/two"})
	assert.Equal(t, "/one", first.Path)
	assert.Equal(t, "/two", second.Path)
	assert.Empty(t, f.proxy.Path)
}

func TestProxyHeaders(t *testing.T) {
	caller := http.Header{
		"Authorization":   {"Bearer caller"},
		"X-Tapes-Session": {"from-caller"},
		"Content-Type":    {"application/json"},
	}
	extra := http.Header{
		"X-Tapes-Session": {"configured"},
		"X-Tapes-App":     {"demo"},
	}

	got := proxyHeaders(caller, extra, "api.openai.com")

	assert.Equal(t, "configured", got.Get("X-Tapes-Session"), "extra headers win on collision")
	assert.Equal(t, "demo", got.Get("X-Tapes-App"))
	assert.Equal(t, "Bearer caller", got.Get("Authorization"))
	assert.Equal(t, "application/json", got.Get("Content-Type"))
	assert.Equal(t, "api.openai.com", got.Get(HeaderUpstreamHost))

	assert.Equal(t, "from-caller", caller.Get("X-Tapes-Session"), "caller headers are not mutated")
	assert.Empty(t, caller.Get(HeaderUpstreamHost))
}

func TestProxyHeaders_NonCanonicalCallerKeys(t *testing.T) {
	caller := http.Header{
		"x-tapes-session":       {"from-caller"},
		"x-tapes-upstream-host": {"spoofed"},
		"accept":                {"application/json"},
	}
	extra := http.Header{"X-Tapes-Session": {"configured"}}

	got := proxyHeaders(caller, extra, "api.openai.com")

	assert.Equal(t, []string{"configured"}, got["X-Tapes-Session"])
	assert.NotContains(t, got, "x-tapes-session")
	assert.Equal(t, []string{"api.openai.com"}, got[HeaderUpstreamHost])
	assert.NotContains(t, got, "x-tapes-upstream-host")
	assert.Equal(t, []string{"application/json"}, got["accept"], "unrelated caller keys are kept as written")
	assert.Equal(t, []string{"from-caller"}, caller["x-tapes-session"], "caller headers are not mutated")
}

func TestProxyHeaders_NilCaller(t *testing.T) {
	got := proxyHeaders(nil, http.Header{"X-Tapes-Env": {"dev"}}, "localhost:11434")
	assert.Equal(t, "dev", got.Get("X-Tapes-Env"))
	assert.Equal(t, "localhost:11434", got.Get(HeaderUpstreamHost))
}
