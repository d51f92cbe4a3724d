package stream

import (
	"context"
	"sync/atomic"
	"time"
)

// Monitor bridges the client connection state and the stream deadlines into
// the orchestrator's two suspension points. Cancellation is cooperative: the
// orchestrator consults the monitor before pulling a fragment and after
// delivering one, never mid-pull.
//
// A fired deadline cancels the generation context so a blocked pull returns,
// and is reported as a timeout, not a client cancellation.
type Monitor struct {
	clientCtx context.Context
	timedOut  atomic.Bool

	firstTokenTimer *time.Timer
	streamTimer     *time.Timer
}

// NewMonitor arms the time-to-first-token and total-duration deadlines.
// cancel must cancel the generation context. Pass zero durations to disable
// either bound.
func NewMonitor(clientCtx context.Context, cancel context.CancelFunc, firstToken, total time.Duration) *Monitor {
	m := &Monitor{clientCtx: clientCtx}
	trip := func() {
		m.timedOut.Store(true)
		cancel()
	}
	if firstToken > 0 {
		m.firstTokenTimer = time.AfterFunc(firstToken, trip)
	}
	if total > 0 {
		m.streamTimer = time.AfterFunc(total, trip)
	}
	return m
}

// FirstToken disarms the time-to-first-token deadline. Called once when the
// first fragment arrives.
func (m *Monitor) FirstToken() {
	if m.firstTokenTimer != nil {
		m.firstTokenTimer.Stop()
	}
}

// TimedOut reports whether either deadline fired.
func (m *Monitor) TimedOut() bool {
	return m.timedOut.Load()
}

// Disconnected reports whether the client went away. A timeout also cancels
// the generation context, so a timeout is checked first by callers.
func (m *Monitor) Disconnected() bool {
	return m.clientCtx.Err() != nil
}

// Stop disarms all deadlines.
func (m *Monitor) Stop() {
	if m.firstTokenTimer != nil {
		m.firstTokenTimer.Stop()
	}
	if m.streamTimer != nil {
		m.streamTimer.Stop()
	}
}
