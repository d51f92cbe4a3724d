package stream

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flushCountingWriter struct {
	bytes.Buffer
	flushes int
}

func (w *flushCountingWriter) Flush() {
	w.flushes++
}

func TestEncoder_OneLinePerEvent(t *testing.T) {
	w := &flushCountingWriter{}
	enc := NewEncoder(w)

	require.NoError(t, enc.Write(NewMetaEvent("req-1", "relay-chat", time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))))
	require.NoError(t, enc.Write(NewTokenEvent("안")))
	require.NoError(t, enc.Write(NewTokenEvent("녕")))
	require.NoError(t, enc.Write(NewDoneEvent("stop", 2, 1500*time.Millisecond)))

	out := w.String()
	require.True(t, strings.HasSuffix(out, "\n"))
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	require.Len(t, lines, 4)

	// Every line is an independently parseable JSON object.
	var meta map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &meta))
	assert.Equal(t, "meta", meta["type"])
	assert.Equal(t, "req-1", meta["request_id"])
	assert.Equal(t, "relay-chat", meta["model"])
	assert.Equal(t, "2025-06-01T12:00:00Z", meta["timestamp"])

	var token map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &token))
	assert.Equal(t, "token", token["type"])
	assert.Equal(t, "안", token["text"])

	var done map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[3]), &done))
	assert.Equal(t, "done", done["type"])
	assert.Equal(t, "stop", done["finish_reason"])
	assert.Equal(t, float64(2), done["total_tokens"])
	assert.Equal(t, float64(1500), done["elapsed_ms"])

	// Each event was flushed individually, never batched.
	assert.Equal(t, 4, w.flushes)
}

func TestEncoder_ErrorEventShape(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)

	require.NoError(t, enc.Write(NewErrorEvent("LLM_TIMEOUT", "generation timed out", "req-9")))

	var ev map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &ev))
	assert.Equal(t, "error", ev["type"])
	assert.Equal(t, "LLM_TIMEOUT", ev["code"])
	assert.Equal(t, "generation timed out", ev["message"])
	assert.Equal(t, "req-9", ev["request_id"])
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, assert.AnError
}

func TestEncoder_WriteFailure(t *testing.T) {
	enc := NewEncoder(failingWriter{})
	err := enc.Write(NewTokenEvent("x"))
	assert.ErrorIs(t, err, ErrWrite)
}
