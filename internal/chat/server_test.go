package chat

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/casualjim/tapes/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func newTestServer(t *testing.T, p provider.Provider) *httptest.Server {
	t.Helper()
	srv := NewServer(func(id string) *Session {
		return NewSession(id, p, "gpt-4o-mini", "sys")
	}, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func post(t *testing.T, ts *httptest.Server, body string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Post(ts.URL+"/chat", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, b
}

func TestServer_Healthz(t *testing.T) {
	ts := newTestServer(t, echoProvider())
	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	b, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "ok", gjson.GetBytes(b, "status").String())
}

func TestServer_Chat(t *testing.T) {
	ts := newTestServer(t, echoProvider())

	resp, body := post(t, ts, `{"session":"abc","message":"hello"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Equal(t, "abc", gjson.GetBytes(body, "session").String())
	assert.Equal(t, "echo: hello", gjson.GetBytes(body, "reply").String())

	hresp, err := http.Get(ts.URL + "/sessions/abc/history")
	require.NoError(t, err)
	defer hresp.Body.Close()
	hb, _ := io.ReadAll(hresp.Body)
	assert.Equal(t, http.StatusOK, hresp.StatusCode)
	msgs := gjson.GetBytes(hb, "messages").Array()
	require.Len(t, msgs, 3)
	assert.Equal(t, "system", msgs[0].Get("role").String())
	assert.Equal(t, "echo: hello", msgs[2].Get("content").String())
}

func TestServer_ChatDefaultSession(t *testing.T) {
	ts := newTestServer(t, echoProvider())

	_, body := post(t, ts, `{"message":"hello"}`)
	assert.Equal(t, defaultSessionID, gjson.GetBytes(body, "session").String())
}

func TestServer_ChatStream(t *testing.T) {
	ts := newTestServer(t, echoProvider())

	resp, body := post(t, ts, `{"session":"s","message":"hi","stream":true}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/x-ndjson", resp.Header.Get("Content-Type"))

	var types []string
	var text string
	sc := bufio.NewScanner(strings.NewReader(string(body)))
	for sc.Scan() {
		line := gjson.Parse(sc.Text())
		types = append(types, line.Get("type").String())
		if line.Get("type").String() == "chunk" {
			text += line.Get("content").String()
		}
	}
	assert.Equal(t, []string{"delim", "chunk", "chunk", "delim", "response"}, types)
	assert.Equal(t, "echo: hi", text)
}

func TestServer_ChatStreamProviderError(t *testing.T) {
	ts := newTestServer(t, &fakeProvider{err: errors.New("no model configured")})

	resp, body := post(t, ts, `{"message":"hi","stream":true}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "no model configured", gjson.GetBytes(body, "error").String())
}

func TestServer_ChatBadRequest(t *testing.T) {
	ts := newTestServer(t, echoProvider())

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{`},
		{"empty message", `{"message":"  "}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := post(t, ts, tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.NotEmpty(t, gjson.GetBytes(body, "error").String())
		})
	}
}

func TestServer_ChatUpstreamFailure(t *testing.T) {
	ts := newTestServer(t, failingProvider(errors.New("proxy down")))

	resp, body := post(t, ts, `{"message":"hi"}`)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Contains(t, gjson.GetBytes(body, "error").String(), "proxy down")
}

func TestServer_History(t *testing.T) {
	ts := newTestServer(t, echoProvider())

	resp, err := http.Get(ts.URL + "/sessions/missing/history")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_DeleteSession(t *testing.T) {
	ts := newTestServer(t, echoProvider())
	post(t, ts, `{"session":"gone","message":"hello"}`)

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/sessions/gone", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/sessions/gone/history")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_Events(t *testing.T) {
	ts := newTestServer(t, echoProvider())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/sessions/live/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := bufio.NewReader(resp.Body)
	first, err := lines.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, ": subscribed\n", first)

	post(t, ts, `{"session":"live","message":"hi"}`)

	var data string
	for data == "" {
		line, err := lines.ReadString('\n')
		require.NoError(t, err)
		data, _ = strings.CutPrefix(strings.TrimSpace(line), "data: ")
	}
	assert.Equal(t, "response", gjson.Get(data, "type").String())
	assert.Equal(t, "echo: hi", gjson.Get(data, "message.content").String())
}

func TestServer_RateLimit(t *testing.T) {
	srv := NewServer(func(id string) *Session {
		return NewSession(id, echoProvider(), "m", "")
	}, nil, slog.New(slog.NewTextHandler(io.Discard, nil))).WithRateLimit(1, time.Minute)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	resp, _ := post(t, ts, `{"message":"one"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = post(t, ts, `{"message":"two"}`)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	health, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	health.Body.Close()
	assert.Equal(t, http.StatusOK, health.StatusCode)
}

func TestServer_CORSPreflight(t *testing.T) {
	ts := newTestServer(t, echoProvider())

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/chat", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Content-Type")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), http.MethodPost)
}
