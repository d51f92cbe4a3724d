package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"relay-api/internal/shared"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func sseUpstream(t *testing.T, lines ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		w.Header().Set("Content-Type", "text/event-stream")
		for _, line := range lines {
			fmt.Fprintf(w, "%s\n\n", line)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func chunk(content, finish string) string {
	if finish != "" {
		return fmt.Sprintf(`data: {"choices":[{"delta":{},"finish_reason":%q}]}`, finish)
	}
	return fmt.Sprintf(`data: {"choices":[{"delta":{"content":%q},"finish_reason":null}]}`, content)
}

func TestHTTPGenerator_Stream(t *testing.T) {
	srv := sseUpstream(t,
		chunk("Hel", ""),
		chunk("lo", ""),
		chunk("", "stop"),
		"data: [DONE]",
	)

	gen := NewHTTPGenerator(zap.NewNop().Sugar())
	fs, err := gen.Stream(context.Background(), Request{
		Model:       "llama",
		UpstreamURL: srv.URL,
		Messages:    []shared.ChatMessage{{Role: "user", Content: "hi"}},
	})
	require.NoError(t, err)
	defer fs.Close()

	text, reason, err := drain(t, fs)
	require.NoError(t, err)
	assert.Equal(t, "Hello", text)
	assert.Equal(t, "stop", reason)
}

func TestHTTPGenerator_DefaultFinishReason(t *testing.T) {
	srv := sseUpstream(t,
		chunk("hi", ""),
		"data: [DONE]",
	)

	gen := NewHTTPGenerator(zap.NewNop().Sugar())
	fs, err := gen.Stream(context.Background(), Request{UpstreamURL: srv.URL})
	require.NoError(t, err)
	defer fs.Close()

	_, reason, err := drain(t, fs)
	require.NoError(t, err)
	assert.Equal(t, "stop", reason)
}

func TestHTTPGenerator_SkipsMalformedChunks(t *testing.T) {
	srv := sseUpstream(t,
		"data: {not json",
		": comment line",
		chunk("ok", ""),
		"data: [DONE]",
	)

	gen := NewHTTPGenerator(zap.NewNop().Sugar())
	fs, err := gen.Stream(context.Background(), Request{UpstreamURL: srv.URL})
	require.NoError(t, err)
	defer fs.Close()

	text, reason, err := drain(t, fs)
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, "stop", reason)
}

func TestHTTPGenerator_TruncatedStream(t *testing.T) {
	// Body ends without a [DONE] sentinel.
	srv := sseUpstream(t, chunk("partial", ""))

	gen := NewHTTPGenerator(zap.NewNop().Sugar())
	fs, err := gen.Stream(context.Background(), Request{UpstreamURL: srv.URL})
	require.NoError(t, err)
	defer fs.Close()

	_, _, err = drain(t, fs)
	assert.ErrorIs(t, err, ErrUpstream)
}

func TestHTTPGenerator_UpstreamStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	gen := NewHTTPGenerator(zap.NewNop().Sugar())
	_, err := gen.Stream(context.Background(), Request{UpstreamURL: srv.URL})
	assert.ErrorIs(t, err, ErrUpstream)
}

func TestHTTPGenerator_ClientReuse(t *testing.T) {
	srv := sseUpstream(t, "data: [DONE]")

	gen := NewHTTPGenerator(zap.NewNop().Sugar())
	a := gen.getHTTPClient(srv.URL)
	b := gen.getHTTPClient(srv.URL)
	assert.Same(t, a, b)

	c := gen.getHTTPClient("http://other-host:8008")
	assert.NotSame(t, a, c)
}

func TestHTTPGenerator_NoClientWideTimeout(t *testing.T) {
	// http.Client.Timeout spans the entire body read, so any value would
	// cap stream duration regardless of the configured stream bound.
	gen := NewHTTPGenerator(zap.NewNop().Sugar())
	client := gen.getHTTPClient("http://llm-0:8008")
	assert.Zero(t, client.Timeout)
}
