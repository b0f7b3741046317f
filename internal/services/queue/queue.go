// Package queue is the durable work queue the loader runs on. Items are
// rows in a single SQLite file; every state transition is committed before
// the work it unlocks proceeds, so a crashed run resumes where it stopped.
package queue

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"

	perr "westminster/internal/platform/errors"
	"westminster/internal/platform/logger"
)

// Item states
const (
	StatusPending    = "PENDING"
	StatusProcessing = "PROCESSING"
	StatusCompleted  = "COMPLETED"
	StatusFailed     = "FAILED"
)

// Source types stored in the queue
const (
	SourceHansard = "hansard"
	SourcePQ      = "pq"
)

const schema = `
CREATE TABLE IF NOT EXISTS queue (
	id            TEXT PRIMARY KEY,
	source_type   TEXT NOT NULL,
	date          TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'PENDING',
	error_message TEXT,
	attempts      INTEGER NOT NULL DEFAULT 0,
	last_attempt  TEXT,
	metadata      TEXT
);
CREATE INDEX IF NOT EXISTS idx_queue_status ON queue(status);
CREATE INDEX IF NOT EXISTS idx_queue_date ON queue(date);
`

// Item is one unit of ingestion work
type Item struct {
	ID           string
	SourceType   string
	Date         string // YYYY-MM-DD
	Status       string
	ErrorMessage string
	Attempts     int
	LastAttempt  string
	Metadata     string // JSON blob, shape depends on SourceType
}

// Stats is the per-status item count
type Stats struct {
	Pending    int
	Processing int
	Completed  int
	Failed     int
}

// Total sums all states
func (s Stats) Total() int { return s.Pending + s.Processing + s.Completed + s.Failed }

// Store wraps the SQLite queue database
type Store struct {
	db  *sql.DB
	log logger.Logger
	now func() time.Time
}

// Open opens (creating if needed) the queue database at path. Path must
// be a file: with a plain ":memory:" DSN every pooled connection gets its
// own empty database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeDB, "open queue db %q failed", path)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, perr.Wrapf(err, perr.ErrorCodeDB, "queue schema init failed")
	}
	return &Store{
		db:  db,
		log: *logger.Named("queue"),
		now: time.Now,
	}, nil
}

// Close closes the underlying database
func (s *Store) Close() error { return s.db.Close() }

// AddItem inserts a pending item, reporting whether it was newly added.
// Re-adding an existing id is a no-op regardless of its state, which is
// what makes harvesting idempotent.
func (s *Store) AddItem(ctx context.Context, id, sourceType, date, metadata string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO queue (id, source_type, date, status, metadata) VALUES (?, ?, ?, ?, ?)`,
		id, sourceType, date, StatusPending, metadata)
	if err != nil {
		return false, perr.Wrapf(err, perr.ErrorCodeDB, "add queue item %q failed", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, perr.Wrapf(err, perr.ErrorCodeDB, "rows affected for %q failed", id)
	}
	return n > 0, nil
}

// GetPendingBatch returns up to limit pending items, oldest dates first
// with id as the tiebreak so claiming order is deterministic
func (s *Store) GetPendingBatch(ctx context.Context, limit int) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source_type, date, status, COALESCE(error_message, ''), attempts, COALESCE(last_attempt, ''), COALESCE(metadata, '')
		 FROM queue WHERE status = ? ORDER BY date ASC, id ASC LIMIT ?`,
		StatusPending, limit)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeDB, "pending batch query failed")
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.SourceType, &it.Date, &it.Status, &it.ErrorMessage, &it.Attempts, &it.LastAttempt, &it.Metadata); err != nil {
			return nil, perr.Wrapf(err, perr.ErrorCodeDB, "pending batch scan failed")
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeDB, "pending batch rows failed")
	}
	return items, nil
}

// MarkProcessing claims an item: PROCESSING, attempts+1, last_attempt=now
func (s *Store) MarkProcessing(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE queue SET status = ?, attempts = attempts + 1, last_attempt = ? WHERE id = ?`,
		StatusProcessing, s.now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeDB, "mark processing %q failed", id)
	}
	return nil
}

// MarkCompleted finalizes an item and clears any stale error message
func (s *Store) MarkCompleted(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE queue SET status = ?, error_message = NULL WHERE id = ?`,
		StatusCompleted, id)
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeDB, "mark completed %q failed", id)
	}
	return nil
}

// MarkFailed records the failure reason on the item
func (s *Store) MarkFailed(ctx context.Context, id, errMsg string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE queue SET status = ?, error_message = ? WHERE id = ?`,
		StatusFailed, errMsg, id)
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeDB, "mark failed %q failed", id)
	}
	return nil
}

// ResetProcessing returns items stuck in PROCESSING (a previous run died
// mid-batch) to PENDING, reporting how many were reset
func (s *Store) ResetProcessing(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE queue SET status = ? WHERE status = ?`,
		StatusPending, StatusProcessing)
	if err != nil {
		return 0, perr.Wrapf(err, perr.ErrorCodeDB, "reset processing failed")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, perr.Wrapf(err, perr.ErrorCodeDB, "reset processing rows failed")
	}
	if n > 0 {
		s.log.Info().Int64("count", n).Msg("reset stuck items to pending")
	}
	return int(n), nil
}

// RetryFailed returns FAILED items to PENDING with their error cleared
func (s *Store) RetryFailed(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE queue SET status = ?, error_message = NULL WHERE status = ?`,
		StatusPending, StatusFailed)
	if err != nil {
		return 0, perr.Wrapf(err, perr.ErrorCodeDB, "retry failed failed")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, perr.Wrapf(err, perr.ErrorCodeDB, "retry failed rows failed")
	}
	if n > 0 {
		s.log.Info().Int64("count", n).Msg("requeued failed items")
	}
	return int(n), nil
}

// Stats returns the whole-queue per-status counts
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	return s.stats(ctx, `SELECT status, COUNT(*) FROM queue GROUP BY status`)
}

// DailyStats returns per-status counts for one (date, source type) pair
func (s *Store) DailyStats(ctx context.Context, date, sourceType string) (Stats, error) {
	return s.stats(ctx,
		`SELECT status, COUNT(*) FROM queue WHERE date = ? AND source_type = ? GROUP BY status`,
		date, sourceType)
}

func (s *Store) stats(ctx context.Context, query string, args ...any) (Stats, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return Stats{}, perr.Wrapf(err, perr.ErrorCodeDB, "queue stats query failed")
	}
	defer rows.Close()

	var st Stats
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return Stats{}, perr.Wrapf(err, perr.ErrorCodeDB, "queue stats scan failed")
		}
		switch status {
		case StatusPending:
			st.Pending = count
		case StatusProcessing:
			st.Processing = count
		case StatusCompleted:
			st.Completed = count
		case StatusFailed:
			st.Failed = count
		}
	}
	if err := rows.Err(); err != nil {
		return Stats{}, perr.Wrapf(err, perr.ErrorCodeDB, "queue stats rows failed")
	}
	return st, nil
}
