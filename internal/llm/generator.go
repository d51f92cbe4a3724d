// Package llm abstracts the text-generation backends. A Generator produces a
// lazy, finite, cancellable sequence of fragments terminated by a finish
// reason; the caller decides when (and whether) to pull the next fragment.
package llm

import (
	"context"
	"errors"

	"relay-api/internal/shared"
)

var (
	ErrModelNotFound = errors.New("model not found")
	ErrUpstream      = errors.New("upstream generation failure")
)

type Request struct {
	// Model is the upstream model identifier, already resolved by the
	// registry (not the caller-facing alias).
	Model string

	// UpstreamURL is the base URL of the backend serving Model. Unused by
	// in-process backends.
	UpstreamURL string

	Messages []shared.ChatMessage
}

// Fragment is one unit of generated text. The terminal fragment carries a
// non-empty FinishReason ("stop", "length") and no text.
type Fragment struct {
	Text         string
	FinishReason string
}

// FragmentStream is a pull-based fragment source. Recv blocks until the next
// fragment is available, the stream finishes, or ctx is done. After the
// terminal fragment has been returned, further calls fail.
type FragmentStream interface {
	Recv(ctx context.Context) (Fragment, error)
	Close() error
}

type Generator interface {
	Stream(ctx context.Context, req Request) (FragmentStream, error)
}
