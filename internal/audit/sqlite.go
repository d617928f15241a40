package audit

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/smykla-skalski/hookgate/pkg/config"
	"github.com/smykla-skalski/hookgate/pkg/hook"
	"github.com/smykla-skalski/hookgate/pkg/logger"
)

const (
	sqliteSchema = `
CREATE TABLE IF NOT EXISTS invocations (
	id               TEXT PRIMARY KEY,
	hook_name        TEXT NOT NULL,
	event            TEXT NOT NULL,
	session_key      TEXT NOT NULL DEFAULT '',
	exit_code        INTEGER,
	stdout           TEXT NOT NULL DEFAULT '',
	stderr           TEXT NOT NULL DEFAULT '',
	stdout_truncated INTEGER NOT NULL DEFAULT 0,
	stderr_truncated INTEGER NOT NULL DEFAULT 0,
	duration_ms      INTEGER NOT NULL,
	outcome          TEXT NOT NULL,
	started_at       INTEGER NOT NULL,
	error            TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_invocations_started_at ON invocations (started_at);
CREATE INDEX IF NOT EXISTS idx_invocations_hook_name ON invocations (hook_name);`

	sqliteColumns = `id, hook_name, event, session_key, exit_code, stdout, stderr,
	stdout_truncated, stderr_truncated, duration_ms, outcome, started_at, error`

	// sqliteWriteTimeout bounds a single insert from Record.
	sqliteWriteTimeout = 5 * time.Second
)

// SQLiteSink stores records in the invocations table of a SQLite database.
type SQLiteSink struct {
	db     *sql.DB
	path   string
	config *config.AuditConfig
	logger logger.Logger
	now    func() time.Time
}

// OpenSQLite opens or creates the database at path and applies the schema.
func OpenSQLite(path string, cfg *config.AuditConfig, opts ...Option) (*SQLiteSink, error) {
	o := newOptions(opts)

	if err := os.MkdirAll(filepath.Dir(path), auditDirPermissions); err != nil {
		return nil, errors.Wrap(err, "creating audit directory")
	}

	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "opening audit database %s", path)
	}

	// One writer at a time; readers share the same connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()

		return nil, errors.Wrap(err, "creating audit schema")
	}

	if err := os.Chmod(path, auditFilePermissions); err != nil {
		o.logger.Warn("failed to restrict audit database permissions", "path", path, "error", err)
	}

	return &SQLiteSink{
		db:     db,
		path:   path,
		config: cfg,
		logger: o.logger,
		now:    o.now,
	}, nil
}

// Record inserts rec, logging failures instead of returning them.
func (s *SQLiteSink) Record(rec *hook.InvocationRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), sqliteWriteTimeout)
	defer cancel()

	if err := s.Insert(ctx, rec); err != nil {
		s.logger.Error("failed to write audit record",
			"id", rec.ID,
			"path", s.path,
			"error", err,
		)
	}
}

// Insert stores rec. Inserting an ID twice keeps the first row.
func (s *SQLiteSink) Insert(ctx context.Context, rec *hook.InvocationRecord) error {
	if rec == nil {
		return nil
	}

	var exitCode sql.NullInt64
	if rec.ExitCode != nil {
		exitCode = sql.NullInt64{Int64: int64(*rec.ExitCode), Valid: true}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO invocations (`+sqliteColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.HookName,
		string(rec.Event),
		rec.SessionKey,
		exitCode,
		rec.Stdout,
		rec.Stderr,
		rec.StdoutTruncated,
		rec.StderrTruncated,
		rec.DurationMs,
		string(rec.Outcome),
		rec.StartedAt.UnixNano(),
		rec.Error,
	)

	return errors.Wrap(err, "inserting audit record")
}

// List returns matching records, newest first.
func (s *SQLiteSink) List(ctx context.Context, filter Filter) ([]*hook.InvocationRecord, error) {
	var (
		where []string
		args  []any
	)

	if filter.Hook != "" {
		where = append(where, "hook_name = ?")
		args = append(args, filter.Hook)
	}

	if filter.Event != "" {
		where = append(where, "event = ?")
		args = append(args, string(filter.Event))
	}

	if filter.Outcome != "" {
		where = append(where, "outcome = ?")
		args = append(args, string(filter.Outcome))
	}

	if !filter.Since.IsZero() {
		where = append(where, "started_at >= ?")
		args = append(args, filter.Since.UnixNano())
	}

	query := "SELECT " + sqliteColumns + " FROM invocations"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	query += " ORDER BY started_at DESC, rowid DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying audit records")
	}

	defer func() {
		_ = rows.Close()
	}()

	var records []*hook.InvocationRecord

	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}

		records = append(records, rec)
	}

	return records, errors.Wrap(rows.Err(), "reading audit records")
}

func scanRecord(rows *sql.Rows) (*hook.InvocationRecord, error) {
	var (
		rec       hook.InvocationRecord
		event     string
		outcome   string
		exitCode  sql.NullInt64
		startedAt int64
	)

	err := rows.Scan(
		&rec.ID,
		&rec.HookName,
		&event,
		&rec.SessionKey,
		&exitCode,
		&rec.Stdout,
		&rec.Stderr,
		&rec.StdoutTruncated,
		&rec.StderrTruncated,
		&rec.DurationMs,
		&outcome,
		&startedAt,
		&rec.Error,
	)
	if err != nil {
		return nil, errors.Wrap(err, "scanning audit record")
	}

	rec.Event = hook.Event(event)
	rec.Outcome = hook.Outcome(outcome)
	rec.StartedAt = time.Unix(0, startedAt).UTC()

	if exitCode.Valid {
		code := int(exitCode.Int64)
		rec.ExitCode = &code
	}

	return &rec, nil
}

// Stats counts records per outcome.
func (s *SQLiteSink) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{
		Backend:  config.AuditBackendSQLite,
		Path:     s.path,
		Outcomes: make(map[hook.Outcome]int),
	}

	if info, err := os.Stat(s.path); err == nil {
		stats.SizeBytes = info.Size()
		stats.ModTime = info.ModTime()
	}

	rows, err := s.db.QueryContext(ctx, "SELECT outcome, COUNT(*) FROM invocations GROUP BY outcome")
	if err != nil {
		return nil, errors.Wrap(err, "counting audit records")
	}

	defer func() {
		_ = rows.Close()
	}()

	for rows.Next() {
		var (
			outcome string
			count   int
		)

		if err := rows.Scan(&outcome, &count); err != nil {
			return nil, errors.Wrap(err, "scanning audit counts")
		}

		stats.Outcomes[hook.Outcome(outcome)] = count
		stats.EntryCount += count
	}

	return stats, errors.Wrap(rows.Err(), "reading audit counts")
}

// Cleanup deletes records older than the retention.
func (s *SQLiteSink) Cleanup(ctx context.Context) error {
	if s.config.GetMaxAgeDays() <= 0 {
		return nil
	}

	cutoff := s.now().Add(-retention(s.config))

	res, err := s.db.ExecContext(ctx, "DELETE FROM invocations WHERE started_at < ?", cutoff.UnixNano())
	if err != nil {
		return errors.Wrap(err, "deleting expired audit records")
	}

	if n, _ := res.RowsAffected(); n > 0 {
		s.logger.Debug("cleaned up old audit records", "removed", n)
	}

	return nil
}

// Path returns the database file.
func (s *SQLiteSink) Path() string {
	return s.path
}

// Close closes the database.
func (s *SQLiteSink) Close() error {
	return errors.Wrap(s.db.Close(), "closing audit database")
}
