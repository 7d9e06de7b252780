// Package journal keeps a persistent record of operator actions in sqlite.
package journal

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	_ "github.com/mattn/go-sqlite3"

	"github.com/autopeer-io/groundpeer/internal/pkg/metrics"
	"github.com/autopeer-io/groundpeer/pkg/log"
)

//go:embed schema.sql
var schemaSQL string

const (
	insertSQL = `
INSERT INTO operations (time_ns, role, action, status, duration_ms, error)
VALUES (?, ?, ?, ?, ?, ?)`

	listSQL = `
SELECT id, time_ns, role, action, status, duration_ms, error
FROM operations
WHERE (? = '' OR role = ?)
ORDER BY id DESC
LIMIT ?`
)

// Entry is one journaled action.
type Entry struct {
	ID       int64         `json:"id"`
	Time     time.Time     `json:"time"`
	Role     string        `json:"role"`
	Action   string        `json:"action"`
	Status   string        `json:"status"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

func (e Entry) String() string {
	s := fmt.Sprintf("%s %s %s %s (%s)", humanize.Time(e.Time), e.Role, e.Action, e.Status, e.Duration.Round(time.Millisecond))
	if e.Error != "" {
		s += ": " + e.Error
	}
	return s
}

// Journal is a sqlite-backed action log. The database is opened on first use.
type Journal struct {
	path string
	now  func() time.Time

	dbOnce sync.Once
	db     *sql.DB
	dbErr  error

	closeOnce sync.Once
	closeErr  error
}

func New(path string) *Journal {
	return &Journal{path: path, now: time.Now}
}

func (j *Journal) open() (*sql.DB, error) {
	j.dbOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", j.path, "_journal_mode=WAL&_synchronous=NORMAL"))
		if err != nil {
			j.dbErr = fmt.Errorf("opening journal: %w", err)
			return
		}
		db.SetMaxOpenConns(1)

		if _, err = db.Exec(schemaSQL); err != nil {
			_ = db.Close()
			j.dbErr = fmt.Errorf("initializing schema: %w", err)
			return
		}
		j.db = db
	})
	return j.db, j.dbErr
}

// Record appends e. A zero Time is stamped with the current time.
func (j *Journal) Record(ctx context.Context, e Entry) (int64, error) {
	db, err := j.open()
	if err != nil {
		return 0, err
	}
	if e.Time.IsZero() {
		e.Time = j.now()
	}

	var errText sql.NullString
	if e.Error != "" {
		errText = sql.NullString{String: e.Error, Valid: true}
	}

	res, err := db.ExecContext(ctx, insertSQL,
		e.Time.UnixNano(), e.Role, e.Action, e.Status, e.Duration.Milliseconds(), errText)
	if err != nil {
		return 0, fmt.Errorf("inserting entry: %w", err)
	}
	return res.LastInsertId()
}

// List returns up to limit entries, newest first. An empty role lists all.
func (j *Journal) List(ctx context.Context, role string, limit int) (entries []Entry, err error) {
	db, err := j.open()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, listSQL, role, role, limit)
	if err != nil {
		return nil, fmt.Errorf("querying entries: %w", err)
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var (
			e       Entry
			ns, ms  int64
			errText sql.NullString
		)
		if err = rows.Scan(&e.ID, &ns, &e.Role, &e.Action, &e.Status, &ms, &errText); err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}
		e.Time = time.Unix(0, ns)
		e.Duration = time.Duration(ms) * time.Millisecond
		e.Error = errText.String
		entries = append(entries, e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating entries: %w", err)
	}
	return entries, nil
}

// ObserveAction journals a finished coordinator action.
func (j *Journal) ObserveAction(role, action string, elapsed time.Duration, err error) {
	e := Entry{Role: role, Action: action, Status: metrics.Status(err), Duration: elapsed}
	if err != nil {
		e.Error = err.Error()
	}
	if _, rerr := j.Record(context.Background(), e); rerr != nil {
		log.Error(rerr, "Failed to journal action", "role", role, "action", action)
	}
}

// Close is safe to call more than once.
func (j *Journal) Close() error {
	j.closeOnce.Do(func() {
		if j.db != nil {
			j.closeErr = j.db.Close()
		}
	})
	return j.closeErr
}

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}
