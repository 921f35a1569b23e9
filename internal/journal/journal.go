// Package journal keeps an append-only SQLite log of committed seat changes:
// every admit, promotion, demotion, reorder and release, in commit order.
//
// The journal is an audit trail only. Seat state is never rebuilt from it.
package journal

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/thehansentribe/honorsfest/internal/model"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - seat_changes table
const currentSchemaVersion = 1

// Entry is one journaled seat change.
type Entry struct {
	Seq            int64                    `json:"seq"`
	ID             string                   `json:"id"`
	Action         string                   `json:"action"`
	Op             model.SeatOp             `json:"op"`
	Reason         model.SeatReason         `json:"reason"`
	RegistrationID model.RegistrationID     `json:"registrationId"`
	ClassID        model.ClassID            `json:"classId"`
	UserID         model.UserID             `json:"userId"`
	Status         model.RegistrationStatus `json:"status"`
	WaitlistOrder  int                      `json:"waitlistOrder,omitempty"`
	RecordedAt     time.Time                `json:"recordedAt"`
}

// Journal is the SQLite-backed seat log.
type Journal struct {
	db  *sql.DB
	now func() time.Time
}

// Open creates or opens the journal database at path. Use ":memory:" for a
// throwaway journal.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect journal: %w", err)
	}

	// SQLite allows one writer; a single connection also keeps ":memory:"
	// databases alive across calls.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Journal{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	if j.db == nil {
		return nil
	}
	return j.db.Close()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("journal schema version %d is newer than supported %d", version, currentSchemaVersion)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("apply journal schema: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// Record appends the changes of one seat transaction atomically.
func (j *Journal) Record(ctx context.Context, action string, changes []model.SeatChange) (err error) {
	if len(changes) == 0 {
		return nil
	}
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin journal tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO seat_changes
			(id, action, op, reason, registration_id, class_id, user_id, status, waitlist_order, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare journal insert: %w", err)
	}
	defer stmt.Close()

	at := j.now().Format(time.RFC3339Nano)
	for _, ch := range changes {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("journal entry id: %w", err)
		}
		r := ch.Registration
		if _, err := stmt.ExecContext(ctx, id.String(), action, string(ch.Op), string(ch.Reason),
			int64(r.ID), int64(r.ClassID), int64(r.UserID), string(r.Status), r.WaitlistOrder, at); err != nil {
			return fmt.Errorf("insert journal entry for registration %d: %w", r.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit journal tx: %w", err)
	}
	return nil
}

// ListByClass returns the entries of a class in commit order, starting after
// sequence number after. limit <= 0 means no limit.
func (j *Journal) ListByClass(ctx context.Context, classID model.ClassID, after int64, limit int) ([]Entry, error) {
	return j.list(ctx, "class_id = ?", int64(classID), after, limit)
}

// ListByRegistration returns the history of one registration.
func (j *Journal) ListByRegistration(ctx context.Context, id model.RegistrationID) ([]Entry, error) {
	return j.list(ctx, "registration_id = ?", int64(id), 0, 0)
}

func (j *Journal) list(ctx context.Context, where string, arg int64, after int64, limit int) ([]Entry, error) {
	query := `
		SELECT seq, id, action, op, reason, registration_id, class_id, user_id, status, waitlist_order, recorded_at
		FROM seat_changes
		WHERE ` + where + ` AND seq > ?
		ORDER BY seq`
	args := []any{arg, after}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e                 Entry
			op, reason, state string
			regID, classID    int64
			userID            int64
			at                string
		)
		if err := rows.Scan(&e.Seq, &e.ID, &e.Action, &op, &reason, &regID, &classID, &userID, &state, &e.WaitlistOrder, &at); err != nil {
			return nil, fmt.Errorf("scan journal entry: %w", err)
		}
		e.Op = model.SeatOp(op)
		e.Reason = model.SeatReason(reason)
		e.RegistrationID = model.RegistrationID(regID)
		e.ClassID = model.ClassID(classID)
		e.UserID = model.UserID(userID)
		e.Status = model.RegistrationStatus(state)
		if e.RecordedAt, err = time.Parse(time.RFC3339Nano, at); err != nil {
			return nil, fmt.Errorf("parse journal time %q: %w", at, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
