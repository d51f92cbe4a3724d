package stream

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

var (
	// ErrEncode means the event could not be serialized. Fatal for the
	// stream, but the channel itself may still be writable.
	ErrEncode = errors.New("failed encoding stream event")

	// ErrWrite means the line could not be delivered, which in practice
	// means the client is gone.
	ErrWrite = errors.New("failed writing stream event")
)

// Encoder frames events as newline-delimited JSON: one UTF-8 JSON object per
// line, flushed immediately so no intermediary batches events together.
type Encoder struct {
	w       io.Writer
	flusher http.Flusher
}

func NewEncoder(w io.Writer) *Encoder {
	e := &Encoder{w: w}
	if f, ok := w.(http.Flusher); ok {
		e.flusher = f
	}
	return e
}

// Write emits one event as a single line. Events are never batched or
// reordered.
func (e *Encoder) Write(ev Event) error {
	line, err := json.Marshal(ev)
	if err != nil {
		return errors.Join(ErrEncode, err)
	}
	if _, err := e.w.Write(append(line, '\n')); err != nil {
		return errors.Join(ErrWrite, err)
	}
	if e.flusher != nil {
		e.flusher.Flush()
	}
	return nil
}

// SetHeaders prepares an HTTP response for NDJSON streaming.
func SetHeaders(h http.Header) {
	h.Set("Content-Type", "application/x-ndjson")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	// Tell nginx-style proxies not to buffer the stream.
	h.Set("X-Accel-Buffering", "no")
}
