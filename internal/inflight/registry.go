// Package inflight tracks request ids that are currently executing so a
// second submission of the same id is rejected instead of run twice.
package inflight

import (
	"context"
	"errors"
	"sync"
	"time"

	"relay-api/internal/metrics"
	"relay-api/internal/shared"

	"go.uber.org/zap"
)

var ErrDuplicateInFlight = errors.New("request id already in flight")

type entry struct {
	startedAt time.Time
	deadline  time.Time
	cancel    context.CancelFunc
}

type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
	ttl     time.Duration
	log     *zap.SugaredLogger
	ticker  *time.Ticker
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewRegistry returns a registry whose entries expire after ttl. A sweeper
// goroutine runs every sweepInterval to reclaim entries orphaned by a crashed
// worker; pass sweepInterval <= 0 to rely on the lazy sweep inside Register
// only. Zero ttl falls back to the documented default.
func NewRegistry(log *zap.SugaredLogger, ttl time.Duration, sweepInterval time.Duration) *Registry {
	if ttl <= 0 {
		ttl = shared.DefaultInFlightTTL
	}
	r := &Registry{
		entries: map[string]*entry{},
		ttl:     ttl,
		log:     log,
		done:    make(chan struct{}),
	}
	if sweepInterval > 0 {
		r.ticker = time.NewTicker(sweepInterval)
		r.wg.Add(1)
		go r.sweepLoop()
	}
	return r
}

func (r *Registry) sweepLoop() {
	defer r.wg.Done()
	for {
		select {
		case <-r.ticker.C:
			if n := r.Sweep(time.Now()); n > 0 {
				r.log.Warnw("Swept orphaned in-flight entries", "count", n)
			}
		case <-r.done:
			return
		}
	}
}

// Register claims requestID. The check and the insert happen inside one
// critical section: concurrent calls for the same id yield exactly one
// success. cancel is invoked if the entry is later reclaimed by the sweeper,
// so abandoned generation work is actually stopped.
func (r *Registry) Register(requestID string, cancel context.CancelFunc) (*Handle, error) {
	now := time.Now()

	r.mu.Lock()
	if e, ok := r.entries[requestID]; ok {
		if now.Before(e.deadline) {
			r.mu.Unlock()
			return nil, ErrDuplicateInFlight
		}
		// Lazy sweep: the previous holder crashed or stalled past the TTL.
		delete(r.entries, requestID)
		stale := e.cancel
		r.log.Warnw("Replacing expired in-flight entry", "request_id", requestID, "started_at", e.startedAt)
		metrics.SweptEntries.Inc()
		defer func() {
			if stale != nil {
				stale()
			}
		}()
	}
	e := &entry{
		startedAt: now,
		deadline:  now.Add(r.ttl),
		cancel:    cancel,
	}
	r.entries[requestID] = e
	size := len(r.entries)
	r.mu.Unlock()

	metrics.InFlightStreams.Set(float64(size))
	return &Handle{registry: r, requestID: requestID, entry: e}, nil
}

// complete releases requestID only while e still owns the slot. A stale
// handle whose entry was reclaimed by the sweeper must not free the
// successor's claim.
func (r *Registry) complete(requestID string, e *entry) {
	r.mu.Lock()
	if cur, ok := r.entries[requestID]; ok && cur == e {
		delete(r.entries, requestID)
	}
	size := len(r.entries)
	r.mu.Unlock()
	metrics.InFlightStreams.Set(float64(size))
}

// Sweep removes every entry whose deadline is at or before now and cancels
// its generation context. Returns the number of entries removed.
func (r *Registry) Sweep(now time.Time) int {
	var cancels []context.CancelFunc

	r.mu.Lock()
	for id, e := range r.entries {
		if now.Before(e.deadline) {
			continue
		}
		delete(r.entries, id)
		if e.cancel != nil {
			cancels = append(cancels, e.cancel)
		}
	}
	size := len(r.entries)
	r.mu.Unlock()

	metrics.InFlightStreams.Set(float64(size))
	for _, cancel := range cancels {
		cancel()
	}
	if len(cancels) > 0 {
		metrics.SweptEntries.Add(float64(len(cancels)))
	}
	return len(cancels)
}

// Len reports the number of live entries.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Shutdown stops the sweeper goroutine. Live entries are left to their
// owning streams to release.
func (r *Registry) Shutdown() {
	if r.ticker == nil {
		return
	}
	r.ticker.Stop()
	close(r.done)
	r.wg.Wait()
}

// Handle releases one claimed slot exactly once no matter how many times
// Complete is called on it. It remembers the entry it claimed, so a handle
// that outlived its TTL cannot release a successor registration.
type Handle struct {
	registry  *Registry
	requestID string
	entry     *entry
	once      sync.Once
}

func (h *Handle) Complete() {
	h.once.Do(func() {
		h.registry.complete(h.requestID, h.entry)
	})
}
