package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pkg/errors"

	"github.com/PhantoomDev/reddit-content-generator/internal/core"
)

const schema = `CREATE TABLE IF NOT EXISTS batches (
  id TEXT NOT NULL PRIMARY KEY,
  created_at TEXT NOT NULL,
  segment_count INTEGER NOT NULL,
  window_name TEXT NOT NULL,
  window_weight REAL NOT NULL
);
CREATE TABLE IF NOT EXISTS segments (
  id TEXT NOT NULL,
  batch_id TEXT NOT NULL REFERENCES batches(id),
  post_id TEXT NOT NULL,
  post_created TEXT NOT NULL,
  engagement_score REAL NOT NULL,
  quality_score REAL NOT NULL,
  payload TEXT NOT NULL,
  PRIMARY KEY (batch_id, id)
);`

// SQLiteStore persists sealed batches. The full segment record is kept as
// a JSON payload so downstream stages can consume it without re-deriving
// scores; the scalar columns exist for listing and filtering.
type SQLiteStore struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "apply schema")
	}
	if _, err := db.Exec(`PRAGMA journal_mode=wal;`); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "set WAL")
	}
	ApplySQLitePragmas(context.Background(), db)
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) Ping() error { return s.db.Ping() }

func (s *SQLiteStore) String() string { return fmt.Sprintf("SQLiteStore{%p}", s.db) }

// SaveBatch writes the batch header and every segment in one transaction.
func (s *SQLiteStore) SaveBatch(ctx context.Context, batch core.Batch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer func() { _ = tx.Rollback() }()

	const insertBatch = `INSERT INTO batches (id, created_at, segment_count, window_name, window_weight)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(id) DO NOTHING;`
	created := batch.CreatedAt.UTC().Format(time.RFC3339Nano)
	if _, err := tx.ExecContext(ctx, insertBatch, batch.ID, created, batch.SegmentCount, batch.Window.Name, batch.Window.Weight); err != nil {
		return errors.Wrap(err, "insert batch")
	}

	const insertSegment = `INSERT INTO segments (id, batch_id, post_id, post_created, engagement_score, quality_score, payload)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(batch_id, id) DO NOTHING;`
	for _, seg := range batch.Segments {
		payload, err := json.Marshal(seg)
		if err != nil {
			return errors.Wrap(err, "encode segment")
		}
		postCreated := seg.Post.Created.UTC().Format(time.RFC3339Nano)
		if _, err := tx.ExecContext(ctx, insertSegment,
			seg.ID, batch.ID, seg.Post.ID, postCreated,
			seg.Post.EngagementScore, seg.Post.QualityScore, string(payload)); err != nil {
			return errors.Wrap(err, "insert segment")
		}
	}

	return errors.Wrap(tx.Commit(), "commit")
}

// BatchFilters narrows ListBatches results.
type BatchFilters struct {
	Window string
	Since  *time.Time
	Limit  int
	Asc    bool
}

// CountBatches returns the number of sealed batches matching the filters.
func (s *SQLiteStore) CountBatches(ctx context.Context, filters BatchFilters) (int64, error) {
	query, args := buildBatchQuery(filters, true)
	var n int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "count batches")
	}
	return n, nil
}

// ListBatches returns sealed batch records, segments included.
func (s *SQLiteStore) ListBatches(ctx context.Context, filters BatchFilters) ([]core.Batch, error) {
	query, args := buildBatchQuery(filters, false)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list batches")
	}
	defer rows.Close()

	var out []core.Batch
	for rows.Next() {
		var (
			b       core.Batch
			created string
		)
		if err := rows.Scan(&b.ID, &created, &b.SegmentCount, &b.Window.Name, &b.Window.Weight); err != nil {
			return nil, errors.Wrap(err, "scan batch")
		}
		if t, err := time.Parse(time.RFC3339Nano, created); err == nil {
			b.CreatedAt = t
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate batches")
	}

	for i := range out {
		segments, err := s.listSegments(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Segments = segments
	}
	return out, nil
}

func (s *SQLiteStore) listSegments(ctx context.Context, batchID string) ([]core.Segment, error) {
	const q = `SELECT payload FROM segments WHERE batch_id = ? ORDER BY quality_score DESC, post_created ASC;`
	rows, err := s.db.QueryContext(ctx, q, batchID)
	if err != nil {
		return nil, errors.Wrap(err, "list segments")
	}
	defer rows.Close()

	var out []core.Segment
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, errors.Wrap(err, "scan segment")
		}
		var seg core.Segment
		if err := json.Unmarshal([]byte(payload), &seg); err != nil {
			return nil, errors.Wrap(err, "decode segment")
		}
		out = append(out, seg)
	}
	return out, errors.Wrap(rows.Err(), "iterate segments")
}

func buildBatchQuery(filters BatchFilters, count bool) (string, []any) {
	var builder strings.Builder
	if count {
		builder.WriteString("SELECT COUNT(*) FROM batches")
	} else {
		builder.WriteString("SELECT id, created_at, segment_count, window_name, window_weight FROM batches")
	}

	var (
		clauses []string
		args    []any
	)
	if filters.Window != "" {
		clauses = append(clauses, "window_name = ?")
		args = append(args, filters.Window)
	}
	if filters.Since != nil {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, filters.Since.UTC().Format(time.RFC3339Nano))
	}
	if len(clauses) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(clauses, " AND "))
	}

	if !count {
		if filters.Asc {
			builder.WriteString(" ORDER BY created_at ASC")
		} else {
			builder.WriteString(" ORDER BY created_at DESC")
		}
		if filters.Limit > 0 {
			builder.WriteString(" LIMIT ?")
			args = append(args, filters.Limit)
		}
	}
	builder.WriteString(";")
	return builder.String(), args
}
