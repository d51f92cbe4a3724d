// Package records batches finished-stream accounting rows per user and
// flushes them to the database on a timer, so a burst of short streams costs
// one insert instead of many.
package records

import (
	"database/sql"
	"sync"
	"time"

	"relay-api/internal/database"
	"relay-api/internal/shared"
	"relay-api/internal/stream"

	"go.uber.org/zap"
)

type Cache struct {
	mu      sync.Mutex
	buckets map[uint64]*bucket
	log     *zap.SugaredLogger
	db      *sql.DB
}

type bucket struct {
	userID uint64
	recs   []*stream.Record
	timer  *time.Timer
}

func NewCache(log *zap.SugaredLogger, db *sql.DB) *Cache {
	return &Cache{
		db:      db,
		log:     log,
		buckets: map[uint64]*bucket{},
	}
}

// Add queues one finished-stream record. Implements stream.RecordSink; never
// blocks on the database.
func (c *Cache) Add(rec *stream.Record) {
	c.mu.Lock()
	defer c.mu.Unlock()

	b, ok := c.buckets[rec.UserID]
	if !ok {
		b = &bucket{userID: rec.UserID}
		c.buckets[rec.UserID] = b
	}
	b.recs = append(b.recs, rec)

	if b.timer == nil {
		userID := rec.UserID
		b.timer = time.AfterFunc(shared.RecordFlushInterval, func() {
			c.Flush(userID)
		})
	}
}

// Flush writes the user's queued records. Failed batches are retried a few
// times; records are dropped after that, they are accounting data, not the
// source of truth for the streams themselves.
func (c *Cache) Flush(userID uint64) {
	c.mu.Lock()
	b, ok := c.buckets[userID]
	if !ok {
		c.mu.Unlock()
		return
	}
	delete(c.buckets, userID)
	if b.timer != nil {
		b.timer.Stop()
	}
	c.mu.Unlock()

	if len(b.recs) == 0 {
		return
	}

	var err error
	for range shared.MaxFlushRetries {
		err = database.SaveStreamRecords(c.db, b.recs)
		if err == nil {
			c.log.Infow("Flushed stream records", "user_id", userID, "records", len(b.recs))
			return
		}
		c.log.Errorw("Failed to save stream records, retrying", "user_id", userID, "error", err)
		time.Sleep(shared.RecordRetryDelay)
	}
	c.log.Errorw("Dropping stream records after repeated failures", "user_id", userID, "records", len(b.recs), "error", err)
}

// Shutdown flushes every pending bucket before the process exits.
func (c *Cache) Shutdown() {
	c.log.Info("Shutting down record cache")

	c.mu.Lock()
	userIDs := make([]uint64, 0, len(c.buckets))
	for id, b := range c.buckets {
		if b.timer != nil {
			b.timer.Stop()
		}
		userIDs = append(userIDs, id)
	}
	c.mu.Unlock()

	wg := sync.WaitGroup{}
	for _, id := range userIDs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Flush(id)
		}()
	}
	wg.Wait()
}
