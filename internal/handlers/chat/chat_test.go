package chat

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"relay-api/internal/ctx"
	"relay-api/internal/inflight"
	"relay-api/internal/llm"
	"relay-api/internal/shared"
	"relay-api/internal/stream"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	log := zap.NewNop().Sugar()

	models := llm.NewRegistry(&llm.Config{
		DefaultModel: "relay-chat",
		Models: []llm.ModelConfig{
			{Name: "relay-chat", UpstreamURL: "http://llm-0:8008", UpstreamModel: "llama"},
		},
	}, log, true)

	registry := inflight.NewRegistry(log, time.Minute, 0)
	t.Cleanup(registry.Shutdown)

	orch := stream.NewOrchestrator(registry, models, nil, log, stream.Config{})
	return NewHandler(orch, models, log)
}

func perform(t *testing.T, h func(echo.Context) error, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()

	c := &ctx.Context{
		Context:   e.NewContext(req, rec),
		Log:       zap.NewNop().Sugar(),
		Reqid:     "req_test",
		User:      &shared.UserMetadata{UserID: 42, Role: "MEMBER"},
		LogValues: &ctx.ContextLogValues{RequestID: "req_test"},
	}
	require.NoError(t, h(c))
	return rec
}

func TestHandleStream_MalformedBody(t *testing.T) {
	h := newTestHandler(t)
	rec := perform(t, h.HandleStream, http.MethodPost, "/v1/chat/stream", "{not json")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var body shared.ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "INVALID_REQUEST", body.Type)
}

func TestHandleStream_ValidationFailure(t *testing.T) {
	h := newTestHandler(t)
	cases := map[string]string{
		"missing request_id": `{"messages":[{"role":"user","content":"hi"}]}`,
		"no messages":        `{"request_id":"req-1","messages":[]}`,
		"bad role":           `{"request_id":"req-1","messages":[{"role":"robot","content":"hi"}]}`,
		"empty content":      `{"request_id":"req-1","messages":[{"role":"user","content":""}]}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := perform(t, h.HandleStream, http.MethodPost, "/v1/chat/stream", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestHandleStream_UnknownModel(t *testing.T) {
	h := newTestHandler(t)
	rec := perform(t, h.HandleStream, http.MethodPost, "/v1/chat/stream",
		`{"request_id":"req-1","model":"nope","messages":[{"role":"user","content":"hi"}]}`)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	var body shared.ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, http.StatusNotFound, body.Code)
}

func TestHandleStream_HappyPath(t *testing.T) {
	h := newTestHandler(t)
	rec := perform(t, h.HandleStream, http.MethodPost, "/v1/chat/stream",
		`{"request_id":"req-1","model":"lorem-fast","messages":[{"role":"user","content":"hi"}]}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/x-ndjson", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no", rec.Header().Get("X-Accel-Buffering"))
	assert.True(t, rec.Flushed)

	lines := strings.Split(strings.TrimSuffix(rec.Body.String(), "\n"), "\n")
	require.GreaterOrEqual(t, len(lines), 2)

	var first, last map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &last))

	assert.Equal(t, "meta", first["type"])
	assert.Equal(t, "req-1", first["request_id"])
	assert.Equal(t, "lorem-fast", first["model"])

	assert.Equal(t, "done", last["type"])
	assert.Equal(t, "stop", last["finish_reason"])
	assert.Equal(t, float64(len(lines)-2), last["total_tokens"])
}

func TestHandleStream_DuplicateStreamsErrorEvent(t *testing.T) {
	h := newTestHandler(t)
	body := `{"request_id":"req-dup","model":"lorem-slow","messages":[{"role":"user","content":"hi"}]}`

	finished := make(chan struct{})
	go func() {
		defer close(finished)
		e := echo.New()
		req := httptest.NewRequest(http.MethodPost, "/v1/chat/stream", strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		c := &ctx.Context{
			Context:   e.NewContext(req, httptest.NewRecorder()),
			Log:       zap.NewNop().Sugar(),
			LogValues: &ctx.ContextLogValues{},
		}
		_ = h.HandleStream(c)
	}()
	// Give the first call time to claim the id; lorem-slow streams for
	// seconds, so the race window is wide.
	time.Sleep(100 * time.Millisecond)

	rec := perform(t, h.HandleStream, http.MethodPost, "/v1/chat/stream", body)
	<-finished

	assert.Equal(t, http.StatusOK, rec.Code)
	lines := strings.Split(strings.TrimSuffix(rec.Body.String(), "\n"), "\n")
	require.Len(t, lines, 1)

	var ev map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &ev))
	assert.Equal(t, "error", ev["type"])
	assert.Equal(t, "DUPLICATE_INFLIGHT", ev["code"])
}

func TestHandleModels(t *testing.T) {
	h := newTestHandler(t)
	rec := perform(t, h.HandleModels, http.MethodGet, "/v1/models", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	var list ModelList
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Data, 1)
	assert.Equal(t, "relay-chat", list.Data[0].Name)
	// Upstream routing details stay internal.
	assert.NotContains(t, rec.Body.String(), "upstream_url")
}
