package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/outreach-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS attempts (
	id         TEXT PRIMARY KEY,
	site_url   TEXT NOT NULL,
	target_url TEXT NOT NULL DEFAULT '',
	outcome    TEXT NOT NULL,
	method     TEXT NOT NULL DEFAULT '',
	reason     TEXT NOT NULL DEFAULT '',
	elapsed_ms INTEGER NOT NULL DEFAULT 0,
	attempt    TEXT NOT NULL,
	started_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_attempts_outcome ON attempts(outcome);
CREATE INDEX IF NOT EXISTS idx_attempts_site_url ON attempts(site_url);
CREATE INDEX IF NOT EXISTS idx_attempts_started_at ON attempts(started_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveAttempt(ctx context.Context, a *model.SubmissionAttempt) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.StartedAt.IsZero() {
		a.StartedAt = time.Now().UTC()
	}
	data, err := json.Marshal(a)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal attempt")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO attempts (id, site_url, target_url, outcome, method, reason, elapsed_ms, attempt, started_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			target_url = excluded.target_url,
			outcome = excluded.outcome,
			method = excluded.method,
			reason = excluded.reason,
			elapsed_ms = excluded.elapsed_ms,
			attempt = excluded.attempt,
			updated_at = excluded.updated_at`,
		a.ID, a.SiteURL, a.TargetURL(), string(a.Outcome), string(a.MethodUsed), string(a.Reason),
		a.Elapsed.Milliseconds(), string(data), a.StartedAt.UTC(), time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: save attempt %s", a.ID)
}

func (s *SQLiteStore) GetAttempt(ctx context.Context, id string) (*model.SubmissionAttempt, error) {
	row := s.db.QueryRowContext(ctx, `SELECT attempt FROM attempts WHERE id = ?`, id)
	a, err := scanAttempt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: get attempt %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get attempt %s", id)
	}
	return a, nil
}

func (s *SQLiteStore) ListAttempts(ctx context.Context, filter AttemptFilter) ([]model.SubmissionAttempt, error) {
	query := `SELECT attempt FROM attempts WHERE 1=1`
	var args []any

	if filter.Outcome != "" {
		query += ` AND outcome = ?`
		args = append(args, string(filter.Outcome))
	}
	if filter.Reason != "" {
		query += ` AND reason = ?`
		args = append(args, string(filter.Reason))
	}
	if filter.SiteURL != "" {
		query += ` AND site_url = ?`
		args = append(args, filter.SiteURL)
	}
	if !filter.Since.IsZero() {
		query += ` AND started_at >= ?`
		args = append(args, filter.Since.UTC())
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list attempts")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.SubmissionAttempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan attempt")
		}
		out = append(out, *a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list attempts iterate")
}

func (s *SQLiteStore) DeleteAttemptsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM attempts WHERE started_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete attempts")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: rows affected")
	}
	return int(n), nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanAttempt(row scannable) (*model.SubmissionAttempt, error) {
	var data []byte
	if err := row.Scan(&data); err != nil {
		return nil, err
	}
	return decodeAttempt(data)
}

func decodeAttempt(data []byte) (*model.SubmissionAttempt, error) {
	var a model.SubmissionAttempt
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, eris.Wrap(err, "unmarshal attempt")
	}
	return &a, nil
}
