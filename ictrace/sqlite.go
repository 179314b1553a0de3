package ictrace

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schema = `CREATE TABLE IF NOT EXISTS ic_events (
	seq      INTEGER PRIMARY KEY AUTOINCREMENT,
	isolate  TEXT NOT NULL,
	site     INTEGER NOT NULL,
	kind     TEXT NOT NULL,
	name     TEXT NOT NULL,
	from_state TEXT NOT NULL,
	to_state TEXT NOT NULL,
	shape    INTEGER NOT NULL,
	handler  TEXT NOT NULL,
	reason   TEXT NOT NULL,
	detail   TEXT NOT NULL,
	at       INTEGER NOT NULL
)`

// SQLiteStore persists events to a SQLite database. Record buffers
// events; Flush writes them in one transaction.
type SQLiteStore struct {
	db  *sql.DB
	mu  sync.Mutex
	buf []Event
	// FlushEvery is the number of buffered events that triggers a flush.
	FlushEvery int
	err        error
}

// OpenSQLite opens (creating if needed) the trace database at path. Use
// ":memory:" for a private in-memory database.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening trace database: %w", err)
	}
	// An in-memory database exists per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating trace table: %w", err)
	}
	return &SQLiteStore{db: db, FlushEvery: 256}, nil
}

// Record buffers e. A failed background flush is reported by the next
// Flush or Close.
func (s *SQLiteStore) Record(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf = append(s.buf, e)
	if s.FlushEvery > 0 && len(s.buf) >= s.FlushEvery {
		if err := s.flushLocked(context.Background()); err != nil && s.err == nil {
			s.err = err
		}
	}
}

// Flush writes the buffered events.
func (s *SQLiteStore) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.flushLocked(ctx); err != nil {
		return err
	}
	err := s.err
	s.err = nil
	return err
}

func (s *SQLiteStore) flushLocked(ctx context.Context) error {
	if len(s.buf) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning trace flush: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO ic_events
		(isolate, site, kind, name, from_state, to_state, shape, handler, reason, detail, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("preparing trace insert: %w", err)
	}
	defer stmt.Close()
	for _, e := range s.buf {
		_, err := stmt.ExecContext(ctx, e.Isolate.String(), e.Site, e.Kind, e.Name,
			e.From, e.To, int64(e.Shape), e.Handler, string(e.Reason), e.Detail, e.Time.UnixNano())
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("inserting trace event: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing trace flush: %w", err)
	}
	s.buf = s.buf[:0]
	return nil
}

// Query selects events, oldest first. An empty kind matches every kind;
// limit <= 0 means no limit.
func (s *SQLiteStore) Query(ctx context.Context, kind string, limit int) ([]Event, error) {
	if err := s.Flush(ctx); err != nil {
		return nil, err
	}
	q := `SELECT isolate, site, kind, name, from_state, to_state, shape, handler, reason, detail, at
		FROM ic_events WHERE (? = '' OR kind = ?) ORDER BY seq`
	args := []any{kind, kind}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying trace events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			e      Event
			iso    string
			shape  int64
			reason string
			at     int64
		)
		if err := rows.Scan(&iso, &e.Site, &e.Kind, &e.Name, &e.From, &e.To, &shape,
			&e.Handler, &reason, &e.Detail, &at); err != nil {
			return nil, fmt.Errorf("scanning trace event: %w", err)
		}
		e.Isolate, err = uuid.Parse(iso)
		if err != nil {
			return nil, fmt.Errorf("parsing isolate id %q: %w", iso, err)
		}
		e.Shape = uint32(shape)
		e.Reason = Reason(reason)
		e.Time = time.Unix(0, at)
		out = append(out, e)
	}
	return out, rows.Err()
}

// SummaryRow counts events per kind and reason.
type SummaryRow struct {
	Kind   string
	Reason Reason
	Count  int
}

// Summary aggregates the stored events.
func (s *SQLiteStore) Summary(ctx context.Context) ([]SummaryRow, error) {
	if err := s.Flush(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, reason, COUNT(*) FROM ic_events GROUP BY kind, reason ORDER BY kind, reason`)
	if err != nil {
		return nil, fmt.Errorf("summarizing trace events: %w", err)
	}
	defer rows.Close()

	var out []SummaryRow
	for rows.Next() {
		var r SummaryRow
		var reason string
		if err := rows.Scan(&r.Kind, &reason, &r.Count); err != nil {
			return nil, fmt.Errorf("scanning summary row: %w", err)
		}
		r.Reason = Reason(reason)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close flushes and closes the database.
func (s *SQLiteStore) Close() error {
	ferr := s.Flush(context.Background())
	if err := s.db.Close(); err != nil {
		return err
	}
	return ferr
}
