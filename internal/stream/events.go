// Package stream implements the streaming chat session coordinator: the
// NDJSON event protocol, the per-stream metrics collector, the disconnect
// monitor, and the orchestrator state machine that ties them to the
// in-flight registry and a generation backend.
package stream

import "time"

// Event is one NDJSON line on the wire. A stream that produces any events
// opens with exactly one meta event, carries zero or more token events, and
// ends with exactly one done or error event, or with nothing at all when the
// client disconnected.
type Event interface {
	isEvent()
}

type MetaEvent struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id"`
	Model     string `json:"model"`
	Timestamp string `json:"timestamp"`
}

func (MetaEvent) isEvent() {}

func NewMetaEvent(requestID, model string, ts time.Time) MetaEvent {
	return MetaEvent{
		Type:      "meta",
		RequestID: requestID,
		Model:     model,
		Timestamp: ts.UTC().Format(time.RFC3339Nano),
	}
}

type TokenEvent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (TokenEvent) isEvent() {}

func NewTokenEvent(text string) TokenEvent {
	return TokenEvent{Type: "token", Text: text}
}

type DoneEvent struct {
	Type         string `json:"type"`
	FinishReason string `json:"finish_reason"`
	TotalTokens  int    `json:"total_tokens"`
	ElapsedMS    int64  `json:"elapsed_ms"`
}

func (DoneEvent) isEvent() {}

func NewDoneEvent(finishReason string, totalTokens int, elapsed time.Duration) DoneEvent {
	return DoneEvent{
		Type:         "done",
		FinishReason: finishReason,
		TotalTokens:  totalTokens,
		ElapsedMS:    elapsed.Milliseconds(),
	}
}

type ErrorEvent struct {
	Type      string `json:"type"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
}

func (ErrorEvent) isEvent() {}

func NewErrorEvent(code, message, requestID string) ErrorEvent {
	return ErrorEvent{Type: "error", Code: code, Message: message, RequestID: requestID}
}
