package stream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"relay-api/internal/inflight"
	"relay-api/internal/llm"
	"relay-api/internal/metrics"
	"relay-api/internal/shared"

	"go.uber.org/zap"
)

// State is the terminal state of one stream.
type State string

const (
	StateDone      State = "done"
	StateError     State = "error"
	StateCancelled State = "cancelled"
)

// Result summarizes one finished stream for the caller's logging. By the
// time Run returns, the registry slot is released and metrics are final.
type Result struct {
	State            State
	Code             shared.StreamErrorCode
	FinishReason     string
	TotalTokens      int
	TimeToFirstToken time.Duration
	Elapsed          time.Duration
	Err              error
}

type Config struct {
	FirstTokenTimeout time.Duration
	StreamTimeout     time.Duration
}

// ModelResolver maps a caller-facing model name to a generation backend.
// Satisfied by llm.Registry.
type ModelResolver interface {
	Resolve(name string) (llm.Generator, llm.ModelConfig, error)
}

// Orchestrator drives streaming chat sessions: it claims the request id in
// the in-flight registry, pulls fragments from a generation backend, frames
// them as NDJSON events, and reacts to disconnects and deadlines.
type Orchestrator struct {
	registry *inflight.Registry
	models   ModelResolver
	sink     RecordSink
	log      *zap.SugaredLogger

	firstTokenTimeout time.Duration
	streamTimeout     time.Duration
}

// NewOrchestrator wires the orchestrator. sink may be nil when finished
// streams need not be persisted.
func NewOrchestrator(registry *inflight.Registry, models ModelResolver, sink RecordSink, log *zap.SugaredLogger, cfg Config) *Orchestrator {
	if cfg.FirstTokenTimeout <= 0 {
		cfg.FirstTokenTimeout = shared.DefaultFirstTokenTimeout
	}
	if cfg.StreamTimeout <= 0 {
		cfg.StreamTimeout = shared.DefaultStreamTimeout
	}
	return &Orchestrator{
		registry:          registry,
		models:            models,
		sink:              sink,
		log:               log,
		firstTokenTimeout: cfg.FirstTokenTimeout,
		streamTimeout:     cfg.StreamTimeout,
	}
}

// Prepare resolves the requested model and freezes the session parameters.
// It runs before any response bytes are written, so a failure here is
// returned as a plain RequestError, never as stream events.
func (o *Orchestrator) Prepare(req *shared.StreamRequest, user *shared.UserMetadata) (*Session, error) {
	gen, modelCfg, err := o.models.Resolve(req.Model)
	if err != nil {
		return nil, errors.Join(&shared.RequestError{StatusCode: 404, Err: errors.New("model not found")}, err)
	}

	channel := req.Channel
	if channel == "" {
		channel = shared.DefaultChannel
	}
	firstTokenTimeout := modelCfg.FirstTokenTimeout
	if firstTokenTimeout <= 0 {
		firstTokenTimeout = o.firstTokenTimeout
	}
	streamTimeout := modelCfg.StreamTimeout
	if streamTimeout <= 0 {
		streamTimeout = o.streamTimeout
	}
	var userID uint64
	if user != nil {
		userID = user.UserID
	}

	return &Session{
		orch:              o,
		req:               req,
		gen:               gen,
		model:             modelCfg,
		channel:           channel,
		userID:            userID,
		firstTokenTimeout: firstTokenTimeout,
		streamTimeout:     streamTimeout,
	}, nil
}

// Session is one prepared stream. Run may be called once.
type Session struct {
	orch    *Orchestrator
	req     *shared.StreamRequest
	gen     llm.Generator
	model   llm.ModelConfig
	channel string
	userID  uint64

	firstTokenTimeout time.Duration
	streamTimeout     time.Duration

	terminalSent bool
}

// Run executes the state machine:
//
//	INIT -> META_SENT -> STREAMING -> {DONE | ERROR | CANCELLED}
//
// A rejected duplicate goes straight to ERROR with no meta event. A
// cancelled stream emits no terminal event at all. The registry slot is
// released exactly once on every exit path, panics included.
func (s *Session) Run(parent context.Context, enc *Encoder) (res Result) {
	genCtx, cancel := context.WithCancel(parent)
	defer cancel()

	// INIT: claim the request id.
	handle, err := s.orch.registry.Register(s.req.RequestID, cancel)
	if err != nil {
		metrics.DuplicateRejections.WithLabelValues(s.channel).Inc()
		werr := enc.Write(NewErrorEvent(string(shared.CodeDuplicateInFlight), "request is already being processed", s.req.RequestID))
		return Result{State: StateError, Code: shared.CodeDuplicateInFlight, Err: errors.Join(err, werr)}
	}
	defer handle.Complete()

	col := NewCollector(s.model.Name, s.channel)
	defer func() {
		if r := recover(); r != nil {
			s.orch.log.Errorw("Panic inside stream orchestrator", "request_id", s.req.RequestID, "panic", r)
			if !s.terminalSent {
				s.terminalSent = true
				_ = enc.Write(NewErrorEvent(string(shared.CodeInternalError), "internal error", s.req.RequestID))
			}
			res = Result{State: StateError, Code: shared.CodeInternalError, Err: fmt.Errorf("orchestrator panic: %v", r)}
		}
		res.TotalTokens = col.TotalTokens()
		res.TimeToFirstToken = col.TimeToFirstToken()
		col.Finalize(string(res.State))
		res.Elapsed = col.Elapsed()
		s.record(col, res)
	}()

	mon := NewMonitor(parent, cancel, s.firstTokenTimeout, s.streamTimeout)
	defer mon.Stop()

	// META_SENT: exactly one meta event opens the stream.
	if err := enc.Write(NewMetaEvent(s.req.RequestID, s.model.Name, time.Now())); err != nil {
		return s.fail(enc, mon, err)
	}
	col.Start()

	fragStream, err := s.gen.Stream(genCtx, llm.Request{
		Model:       s.model.UpstreamModel,
		UpstreamURL: s.model.UpstreamURL,
		Messages:    s.req.Messages,
	})
	if err != nil {
		return s.fail(enc, mon, err)
	}
	defer func() {
		_ = fragStream.Close()
	}()

	// STREAMING: consult the monitor, pull, emit.
	for {
		if mon.TimedOut() {
			return s.terminalError(enc, shared.CodeLLMTimeout, "generation timed out", nil)
		}
		if mon.Disconnected() {
			return s.cancelled(parent.Err())
		}

		frag, err := fragStream.Recv(genCtx)
		if err != nil {
			return s.fail(enc, mon, err)
		}

		if frag.FinishReason != "" {
			s.terminalSent = true
			werr := enc.Write(NewDoneEvent(frag.FinishReason, col.TotalTokens(), col.Elapsed()))
			return Result{State: StateDone, FinishReason: frag.FinishReason, Err: werr}
		}

		mon.FirstToken()
		if err := enc.Write(NewTokenEvent(frag.Text)); err != nil {
			if errors.Is(err, ErrEncode) {
				return s.terminalError(enc, shared.CodeInternalError, "internal error", err)
			}
			return s.cancelled(err)
		}
		col.RecordToken()
	}
}

// fail classifies a mid-stream failure. Deadlines win over disconnects so a
// fired timeout is reported as LLM_TIMEOUT even though it also cancelled the
// generation context.
func (s *Session) fail(enc *Encoder, mon *Monitor, err error) Result {
	switch {
	case mon.TimedOut(), errors.Is(err, context.DeadlineExceeded):
		return s.terminalError(enc, shared.CodeLLMTimeout, "generation timed out", err)
	case mon.Disconnected(), errors.Is(err, context.Canceled):
		return s.cancelled(err)
	case errors.Is(err, ErrEncode):
		return s.terminalError(enc, shared.CodeInternalError, "internal error", err)
	case errors.Is(err, ErrWrite):
		return s.cancelled(err)
	default:
		return s.terminalError(enc, shared.CodeLLMError, "generation failed", err)
	}
}

func (s *Session) terminalError(enc *Encoder, code shared.StreamErrorCode, msg string, err error) Result {
	metrics.ErrorCount.WithLabelValues(s.model.Name, s.channel, string(code)).Inc()
	if !s.terminalSent {
		s.terminalSent = true
		// Best effort: the channel may already be gone.
		_ = enc.Write(NewErrorEvent(string(code), msg, s.req.RequestID))
	}
	return Result{State: StateError, Code: code, Err: shared.NewStreamError(code, msg, err)}
}

// cancelled ends the stream with no terminal event; the client is gone and
// the connection is simply closed. Recorded internally for observability.
func (s *Session) cancelled(err error) Result {
	return Result{State: StateCancelled, Code: shared.CodeClientDisconnected, Err: err}
}

func (s *Session) record(col *Collector, res Result) {
	if s.orch.sink == nil {
		return
	}
	defer func() {
		_ = recover()
	}()
	s.orch.sink.Add(&Record{
		RequestID:        s.req.RequestID,
		SessionID:        s.req.SessionID,
		UserID:           s.userID,
		Model:            s.model.Name,
		Channel:          s.channel,
		TotalTokens:      res.TotalTokens,
		TimeToFirstToken: res.TimeToFirstToken,
		TotalTime:        res.Elapsed,
		TerminalState:    string(res.State),
		ErrorCode:        string(res.Code),
		CreatedAt:        time.Now(),
	})
}
