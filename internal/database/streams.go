// Package database defines the insertions and transactions to the database
package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"relay-api/internal/stream"
)

type DailyStats struct {
	Date             string
	UserID           uint64
	Model            string
	StreamCount      uint64
	CompletionTokens uint64
	TimeToFirstToken int64
	TotalTime        int64
	CancelledStreams uint64
	ErroredStreams   uint64
}

// aggregateDailyStats rolls finished-stream records up into per-user
// per-model rows for the given date. Latency sums only count completed
// streams so averages are not skewed by aborted ones.
func aggregateDailyStats(recs []*stream.Record, date string) map[string]*DailyStats {
	aggregated := make(map[string]*DailyStats)
	for _, rec := range recs {
		key := fmt.Sprintf("%d-%s", rec.UserID, rec.Model)
		existing, ok := aggregated[key]
		if !ok {
			existing = &DailyStats{
				Date:   date,
				UserID: rec.UserID,
				Model:  rec.Model,
			}
			aggregated[key] = existing
		}
		existing.StreamCount += 1
		existing.CompletionTokens += uint64(rec.TotalTokens)
		switch rec.TerminalState {
		case "cancelled":
			existing.CancelledStreams += 1
		case "error":
			existing.ErroredStreams += 1
		}
		if rec.TerminalState == "done" {
			existing.TimeToFirstToken += rec.TimeToFirstToken.Milliseconds()
			existing.TotalTime += rec.TotalTime.Milliseconds()
		}
	}
	return aggregated
}

// SaveStreamRecords persists finished-stream rows and rolls them up into
// per-user per-model daily stats.
func SaveStreamRecords(db *sql.DB, recs []*stream.Record) error {
	if len(recs) == 0 {
		return nil
	}

	streamSQLStr := `INSERT INTO stream_log (
            user_id, request_id, session_id, model, channel,
            total_tokens, time_to_first_token, total_time,
            terminal_state, error_code, created_at
        ) VALUES`

	statsSQLStr := `INSERT INTO daily_stats (
		date, user_id, model, stream_count, completion_tokens,
		time_to_first_token, total_time, cancelled_streams, errored_streams
	) VALUES`

	today := time.Now().Format("2006-01-02")

	streamVals := []any{}
	statsVals := []any{}

	for _, rec := range recs {
		streamSQLStr += "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?),"
		streamVals = append(streamVals,
			rec.UserID, rec.RequestID, rec.SessionID, rec.Model, rec.Channel,
			rec.TotalTokens, rec.TimeToFirstToken.Milliseconds(), rec.TotalTime.Milliseconds(),
			rec.TerminalState, rec.ErrorCode, rec.CreatedAt,
		)
	}

	for _, val := range aggregateDailyStats(recs, today) {
		statsSQLStr += "(?, ?, ?, ?, ?, ?, ?, ?, ?),"
		statsVals = append(statsVals, val.Date, val.UserID, val.Model, val.StreamCount, val.CompletionTokens, val.TimeToFirstToken, val.TotalTime, val.CancelledStreams, val.ErroredStreams)
	}

	streamSQLStr = strings.TrimSuffix(streamSQLStr, ",")
	statsSQLStr = strings.TrimSuffix(statsSQLStr, ",")
	statsSQLStr += ` ON DUPLICATE KEY UPDATE
		stream_count = stream_count + VALUES(stream_count),
		completion_tokens = completion_tokens + VALUES(completion_tokens),
		time_to_first_token = time_to_first_token + VALUES(time_to_first_token),
		total_time = total_time + VALUES(total_time),
		cancelled_streams = cancelled_streams + VALUES(cancelled_streams),
		errored_streams = errored_streams + VALUES(errored_streams)`

	// Log rows and their rollup commit together or not at all.
	return ExecuteTransaction(context.Background(), db, []func(*sql.Tx) error{
		func(tx *sql.Tx) error {
			if _, err := tx.Exec(streamSQLStr, streamVals...); err != nil {
				return fmt.Errorf("failed to save stream records: %w", err)
			}
			return nil
		},
		func(tx *sql.Tx) error {
			if _, err := tx.Exec(statsSQLStr, statsVals...); err != nil {
				return fmt.Errorf("failed to save daily stats: %w", err)
			}
			return nil
		},
	})
}

// ExecuteTransaction executes one transaction with one or multiple database executions.
func ExecuteTransaction(ctx context.Context, writeDB *sql.DB, fns []func(*sql.Tx) error) error {
	tx, err := writeDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Execute all functions in the transaction
	for _, fn := range fns {
		if err := fn(tx); err != nil {
			return fmt.Errorf("failed to execute transaction function: %w", err)
		}
	}

	// Commit the transaction if all functions succeeded
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
