package llm

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// drain pulls fragments until the stream finishes or errors.
func drain(t *testing.T, fs FragmentStream) (string, string, error) {
	t.Helper()
	var text strings.Builder
	for {
		frag, err := fs.Recv(context.Background())
		if err != nil {
			return text.String(), "", err
		}
		if frag.FinishReason != "" {
			return text.String(), frag.FinishReason, nil
		}
		text.WriteString(frag.Text)
	}
}

func TestLoremStream_Stop(t *testing.T) {
	gen := NewLoremGenerator()
	fs, err := gen.Stream(context.Background(), Request{Model: "lorem-fast"})
	require.NoError(t, err)
	defer fs.Close()

	text, reason, err := drain(t, fs)
	require.NoError(t, err)
	assert.Equal(t, "stop", reason)
	assert.NotEmpty(t, strings.Fields(text))

	// After the finish fragment the stream is exhausted.
	_, err = fs.Recv(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestLoremStream_Cutoff(t *testing.T) {
	gen := NewLoremGenerator()
	fs, err := gen.Stream(context.Background(), Request{Model: "lorem-fast-cutoff"})
	require.NoError(t, err)
	defer fs.Close()

	text, reason, err := drain(t, fs)
	require.NoError(t, err)
	assert.Equal(t, "length", reason)
	assert.LessOrEqual(t, len(strings.Fields(text)), 4)
}

func TestLoremStream_Fail(t *testing.T) {
	gen := NewLoremGenerator()
	fs, err := gen.Stream(context.Background(), Request{Model: "lorem-fast-fail"})
	require.NoError(t, err)
	defer fs.Close()

	text, _, err := drain(t, fs)
	require.ErrorIs(t, err, ErrUpstream)
	assert.Len(t, strings.Fields(text), 2)
}

func TestLoremStream_ContextCancelled(t *testing.T) {
	gen := NewLoremGenerator()
	fs, err := gen.Stream(context.Background(), Request{Model: "lorem-slow"})
	require.NoError(t, err)
	defer fs.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = fs.Recv(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoremGenerator_CancelledBeforeStream(t *testing.T) {
	gen := NewLoremGenerator()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := gen.Stream(ctx, Request{Model: "lorem-fast"})
	assert.ErrorIs(t, err, context.Canceled)
}
