package debloat

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// ActionRecord is one applied or failed package mutation, as persisted by
// a HistoryRecorder.
type ActionRecord struct {
	Serial    string
	UserID    int
	Package   string
	Operation string
	Outcome   string
	Detail    string
	At        time.Time
}

// HistoryRecorder receives records of real (non-dry-run) mutations. The
// core persists nothing on its own; callers opt in by wiring a recorder.
type HistoryRecorder interface {
	RecordAction(ctx context.Context, rec ActionRecord) error
}

const historySchema = `CREATE TABLE IF NOT EXISTS action_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	serial TEXT NOT NULL,
	user_id INTEGER NOT NULL,
	package TEXT NOT NULL,
	operation TEXT NOT NULL,
	outcome TEXT NOT NULL,
	detail TEXT,
	at TIMESTAMP NOT NULL
)`

// SQLiteHistory is a HistoryRecorder backed by a local sqlite file.
type SQLiteHistory struct {
	db *sql.DB
}

// OpenSQLiteHistory opens (and migrates) the action-history database at
// path.
func OpenSQLiteHistory(path string) (*SQLiteHistory, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open action history db")
	}
	if _, err := db.Exec(historySchema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "migrate action history db")
	}
	return &SQLiteHistory{db: db}, nil
}

func (h *SQLiteHistory) Close() error { return h.db.Close() }

func (h *SQLiteHistory) RecordAction(ctx context.Context, rec ActionRecord) error {
	const insert = `INSERT INTO action_history (serial, user_id, package, operation, outcome, detail, at) VALUES (?, ?, ?, ?, ?, ?, ?)`
	args := []any{rec.Serial, rec.UserID, rec.Package, rec.Operation, rec.Outcome, rec.Detail, rec.At.UTC()}
	if _, err := h.db.ExecContext(ctx, insert, args...); err != nil {
		return errors.Wrap(err, "insert action record")
	}
	log.Debug().Str("sql", formatSQLForLog(insert, args...)).Msg("action recorded")
	return nil
}

// Recent returns the latest n records for a device, newest first. Used by
// the CLI to show what a session did.
func (h *SQLiteHistory) Recent(ctx context.Context, serial string, n int) ([]ActionRecord, error) {
	const query = `SELECT serial, user_id, package, operation, outcome, detail, at
		FROM action_history WHERE serial = ? ORDER BY id DESC LIMIT ?`
	rows, err := h.db.QueryContext(ctx, query, serial, n)
	if err != nil {
		return nil, errors.Wrap(err, "query action history")
	}
	defer rows.Close()

	var records []ActionRecord
	for rows.Next() {
		var rec ActionRecord
		var detail sql.NullString
		if err := rows.Scan(&rec.Serial, &rec.UserID, &rec.Package, &rec.Operation, &rec.Outcome, &detail, &rec.At); err != nil {
			return nil, errors.Wrap(err, "scan action record")
		}
		rec.Detail = detail.String
		records = append(records, rec)
	}
	return records, rows.Err()
}
