package stream

import (
	"time"

	"relay-api/internal/metrics"
)

// Record is the per-stream accounting row handed to the sink after the
// stream terminates.
type Record struct {
	RequestID        string
	SessionID        string
	UserID           uint64
	Model            string
	Channel          string
	TotalTokens      int
	TimeToFirstToken time.Duration
	TotalTime        time.Duration
	TerminalState    string
	ErrorCode        string
	CreatedAt        time.Time
}

// RecordSink receives finished-stream records. Implementations must not
// block; delivery is fire-and-forget.
type RecordSink interface {
	Add(rec *Record)
}

// Collector tracks the timings and counters of exactly one stream. It is
// owned by that stream's goroutine and never shared.
type Collector struct {
	model   string
	channel string

	streamStartedAt time.Time
	firstTokenAt    time.Time
	streamEndedAt   time.Time
	totalTokens     int
}

func NewCollector(model, channel string) *Collector {
	return &Collector{model: model, channel: channel}
}

// Start marks the beginning of the stream clock. Called when the meta event
// goes out.
func (c *Collector) Start() {
	c.streamStartedAt = time.Now()
}

// RecordToken counts one delivered token and pins the first-token timestamp.
func (c *Collector) RecordToken() {
	if c.firstTokenAt.IsZero() {
		c.firstTokenAt = time.Now()
	}
	c.totalTokens++
}

func (c *Collector) TotalTokens() int {
	return c.totalTokens
}

// Elapsed is the wall-clock time since Start, or the final stream duration
// once Finalize ran.
func (c *Collector) Elapsed() time.Duration {
	if c.streamStartedAt.IsZero() {
		return 0
	}
	if !c.streamEndedAt.IsZero() {
		return c.streamEndedAt.Sub(c.streamStartedAt)
	}
	return time.Since(c.streamStartedAt)
}

// TimeToFirstToken is zero when no token was ever delivered.
func (c *Collector) TimeToFirstToken() time.Duration {
	if c.firstTokenAt.IsZero() {
		return 0
	}
	return c.firstTokenAt.Sub(c.streamStartedAt)
}

// Finalize stops the clock and publishes prometheus observations. It must
// never fail the stream: any panic from the metrics backend is swallowed.
func (c *Collector) Finalize(terminalState string) {
	c.streamEndedAt = time.Now()

	defer func() {
		_ = recover()
	}()

	total := c.Elapsed()
	metrics.StreamCount.WithLabelValues(c.model, c.channel, terminalState).Inc()
	metrics.StreamDuration.WithLabelValues(c.model, c.channel).Observe(total.Seconds())
	if ttft := c.TimeToFirstToken(); ttft != 0 {
		metrics.TimeToFirstToken.WithLabelValues(c.model, c.channel).Observe(ttft.Seconds())
	}
	if c.totalTokens > 0 {
		metrics.CompletionTokens.WithLabelValues(c.model, c.channel).Add(float64(c.totalTokens))
		if total > 0 {
			metrics.TokensPerSecond.WithLabelValues(c.model, c.channel).Observe(float64(c.totalTokens) / total.Seconds())
		}
	}
}
