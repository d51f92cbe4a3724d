package llm

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	loremgen "github.com/bozaro/golorem"
)

// LoremGenerator is a mock backend that streams lorem ipsum words. It exists
// so the service can run without a real model server: debug deployments and
// tests select it with a "lorem-" model name.
//
// Model name variants:
//   - lorem-fast / lorem-slow / lorem-medium control word cadence
//   - lorem-cutoff finishes with reason "length"
//   - lorem-fail reports an upstream error mid-stream
type LoremGenerator struct {
	mu        sync.Mutex
	generator *loremgen.Lorem
}

func NewLoremGenerator() *LoremGenerator {
	return &LoremGenerator{generator: loremgen.New()}
}

func streamDelay(model string) time.Duration {
	if strings.Contains(model, "slow") {
		return 500 * time.Millisecond
	}
	if strings.Contains(model, "fast") {
		return 5 * time.Millisecond
	}
	return 100 * time.Millisecond
}

func (g *LoremGenerator) Stream(ctx context.Context, req Request) (FragmentStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g.mu.Lock()
	sentence := g.generator.Sentence(8, 20)
	g.mu.Unlock()

	words := strings.Fields(sentence)
	finishReason := "stop"
	failAfter := -1
	if strings.Contains(req.Model, "cutoff") {
		if len(words) > 4 {
			words = words[:4]
		}
		finishReason = "length"
	}
	if strings.Contains(req.Model, "fail") {
		failAfter = 2
	}

	return &loremStream{
		words:        words,
		delay:        streamDelay(req.Model),
		finishReason: finishReason,
		failAfter:    failAfter,
	}, nil
}

type loremStream struct {
	words        []string
	next         int
	delay        time.Duration
	finishReason string
	failAfter    int
	finished     bool
}

func (s *loremStream) Recv(ctx context.Context) (Fragment, error) {
	if s.finished {
		return Fragment{}, io.EOF
	}

	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return Fragment{}, ctx.Err()
	}

	if s.failAfter >= 0 && s.next >= s.failAfter {
		s.finished = true
		return Fragment{}, errors.Join(ErrUpstream, errors.New("simulated backend failure"))
	}
	if s.next >= len(s.words) {
		s.finished = true
		return Fragment{FinishReason: s.finishReason}, nil
	}

	word := s.words[s.next]
	s.next++
	if s.next < len(s.words) {
		word += " "
	}
	return Fragment{Text: word}, nil
}

func (s *loremStream) Close() error {
	return nil
}
