package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"relay-api/internal/shared"

	"go.uber.org/zap"
)

// HTTPGenerator streams completions from an OpenAI-compatible upstream.
// One http.Client is kept per upstream host so connection pools are reused
// across streams.
type HTTPGenerator struct {
	log          *zap.SugaredLogger
	clients      map[string]*http.Client
	clientsMutex sync.RWMutex
}

func NewHTTPGenerator(log *zap.SugaredLogger) *HTTPGenerator {
	return &HTTPGenerator{
		log:     log,
		clients: make(map[string]*http.Client),
	}
}

func (g *HTTPGenerator) getHTTPClient(upstreamURL string) *http.Client {
	parsedURL, err := url.Parse(upstreamURL)
	if err != nil {
		g.log.Warnw("Failed to parse upstream URL, using full URL as key", "url", upstreamURL, "error", err)
		parsedURL = &url.URL{Host: upstreamURL}
	}
	host := parsedURL.Host

	g.clientsMutex.RLock()
	if client, exists := g.clients[host]; exists {
		g.clientsMutex.RUnlock()
		return client
	}
	g.clientsMutex.RUnlock()

	g.clientsMutex.Lock()
	defer g.clientsMutex.Unlock()

	if client, exists := g.clients[host]; exists {
		return client
	}

	tr := &http.Transport{
		Dial: (&net.Dialer{
			Timeout: 2 * time.Second,
		}).Dial,
		TLSHandshakeTimeout: 2 * time.Second,
		DisableKeepAlives:   false,
	}
	// No client-wide timeout: it would cover the whole body read and cut
	// long streams short. Stream lifetime is bounded by the request context.
	client := &http.Client{Transport: tr}

	g.clients[host] = client
	g.log.Infow("Created new HTTP client for upstream host", "host", host)

	return client
}

type upstreamPayload struct {
	Model    string               `json:"model"`
	Messages []shared.ChatMessage `json:"messages"`
	Stream   bool                 `json:"stream"`
}

// Stream opens a chat completion against the upstream and returns a stream
// over its SSE body. The request inherits ctx, so cancelling ctx aborts the
// upstream read mid-flight.
func (g *HTTPGenerator) Stream(ctx context.Context, req Request) (FragmentStream, error) {
	payload, err := json.Marshal(upstreamPayload{
		Model:    req.Model,
		Messages: req.Messages,
		Stream:   true,
	})
	if err != nil {
		return nil, errors.Join(ErrUpstream, err)
	}

	r, err := http.NewRequestWithContext(ctx, http.MethodPost, req.UpstreamURL+"/v1/chat/completions", bytes.NewBuffer(payload))
	if err != nil {
		return nil, errors.Join(ErrUpstream, errors.New("failed building upstream request"), err)
	}
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("Connection", "keep-alive")

	client := g.getHTTPClient(req.UpstreamURL)
	res, err := client.Do(r)
	if err != nil {
		return nil, errors.Join(ErrUpstream, err)
	}
	if res.StatusCode != http.StatusOK {
		_ = res.Body.Close()
		return nil, errors.Join(ErrUpstream, fmt.Errorf("upstream responded with status %d", res.StatusCode))
	}

	return &sseStream{
		body:    res.Body,
		scanner: bufio.NewScanner(res.Body),
	}, nil
}

type chatChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

// sseStream turns "data: {...}" SSE lines into fragments. The terminal
// fragment carries the finish reason reported by the last chunk before the
// [DONE] sentinel.
type sseStream struct {
	body         io.ReadCloser
	scanner      *bufio.Scanner
	finishReason string
	finished     bool
}

func (s *sseStream) Recv(ctx context.Context) (Fragment, error) {
	if s.finished {
		return Fragment{}, io.EOF
	}
	for s.scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return Fragment{}, err
		}
		line := s.scanner.Text()
		if line == "" {
			continue
		}
		jsonData, found := strings.CutPrefix(line, "data: ")
		if !found {
			continue
		}
		if jsonData == "[DONE]" {
			s.finished = true
			reason := s.finishReason
			if reason == "" {
				reason = "stop"
			}
			return Fragment{FinishReason: reason}, nil
		}

		var chunk chatChunk
		if err := json.Unmarshal([]byte(jsonData), &chunk); err != nil {
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		if choice.FinishReason != nil && *choice.FinishReason != "" {
			s.finishReason = *choice.FinishReason
		}
		if choice.Delta.Content != "" {
			return Fragment{Text: choice.Delta.Content}, nil
		}
	}

	if err := ctx.Err(); err != nil {
		return Fragment{}, err
	}
	if err := s.scanner.Err(); err != nil {
		return Fragment{}, errors.Join(ErrUpstream, err)
	}
	// Upstream closed the body without a [DONE] sentinel.
	return Fragment{}, errors.Join(ErrUpstream, errors.New("upstream stream ended without done sentinel"))
}

func (s *sseStream) Close() error {
	return s.body.Close()
}
