package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"taskbot/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
  chat_id INTEGER NOT NULL,
  name TEXT NOT NULL,
  question TEXT NOT NULL,
  interval INTEGER NOT NULL CHECK(interval > 0),
  last_run TEXT NOT NULL,
  created_at TEXT NOT NULL,
  PRIMARY KEY (chat_id, name)
);
CREATE TABLE IF NOT EXISTS bot_logs (
  id TEXT PRIMARY KEY,
  timestamp TEXT NOT NULL,
  chat_id INTEGER NOT NULL,
  user_id INTEGER,
  username TEXT,
  command TEXT NOT NULL,
  args TEXT,
  error TEXT,
  execution_time_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_bot_logs_user ON bot_logs(user_id);
CREATE INDEX IF NOT EXISTS idx_bot_logs_command ON bot_logs(command);
`

// Open creates the database directory if needed, opens the SQLite file and
// applies the schema.
func Open(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite single writer

	if err := EnsureSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// EnsureSchema creates tables if they don't exist.
func EnsureSchema(db *sql.DB) error {
	for _, raw := range strings.Split(schema, ";") {
		stmt := strings.TrimSpace(raw)
		if stmt == "" {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w (statement=%q)", err, stmt)
		}
	}
	return nil
}

type Repository interface {
	CreateTask(ctx context.Context, t domain.Task) error
	DeleteTask(ctx context.Context, chatID int64, name string) (bool, error)
	// ListTasks returns the tasks of one chat, or of all chats when chatID
	// is nil. Rows whose last_run cannot be parsed are left out and
	// reported through the returned error alongside the remaining tasks.
	ListTasks(ctx context.Context, chatID *int64) ([]domain.Task, error)
	// UpdateLastRun moves the watermark of t to now, provided it still holds
	// the value t was read with. It reports whether a row was updated.
	UpdateLastRun(ctx context.Context, t domain.Task, now time.Time) (bool, error)
	CountTasks(ctx context.Context) (int, error)

	LogInteraction(ctx context.Context, in domain.Interaction) error
	UserStats(ctx context.Context, userID int64) (domain.UserStats, error)
	CommandStats(ctx context.Context) ([]domain.CommandStats, error)
}

type sqliteRepo struct{ db *sql.DB }

func NewSQLiteRepo(db *sql.DB) Repository { return &sqliteRepo{db: db} }

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrStorage, op, err)
}

func (r *sqliteRepo) CreateTask(ctx context.Context, t domain.Task) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = t.LastRun
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO tasks (chat_id,name,question,interval,last_run,created_at)
VALUES (?,?,?,?,?,?)`, t.ChatID, t.Name, t.Question, t.Interval, formatTime(t.LastRun), formatTime(t.CreatedAt))
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %q", domain.ErrTaskExists, t.Name)
	}
	if err != nil {
		return storageErr("insert task", err)
	}
	return nil
}

func (r *sqliteRepo) DeleteTask(ctx context.Context, chatID int64, name string) (bool, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM tasks WHERE chat_id=? AND name=?", chatID, name)
	if err != nil {
		return false, storageErr("delete task", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storageErr("delete task", err)
	}
	return n > 0, nil
}

func (r *sqliteRepo) ListTasks(ctx context.Context, chatID *int64) ([]domain.Task, error) {
	query := `SELECT chat_id,name,question,interval,last_run,created_at FROM tasks`
	var args []any
	if chatID != nil {
		query += ` WHERE chat_id=?`
		args = append(args, *chatID)
	}
	query += ` ORDER BY created_at, name`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("list tasks", err)
	}
	defer rows.Close()

	var (
		tasks   []domain.Task
		badRows []error
	)
	for rows.Next() {
		var t domain.Task
		var createdAt string
		if err := rows.Scan(&t.ChatID, &t.Name, &t.Question, &t.Interval, &t.LastRunText, &createdAt); err != nil {
			return nil, storageErr("scan task", err)
		}
		t.LastRun, err = time.Parse(time.RFC3339Nano, t.LastRunText)
		if err != nil {
			badRows = append(badRows, fmt.Errorf("%w: task %q: %w", domain.ErrDateParse, t.Name, err))
			continue
		}
		t.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate tasks", err)
	}
	return tasks, errors.Join(badRows...)
}

func (r *sqliteRepo) UpdateLastRun(ctx context.Context, t domain.Task, now time.Time) (bool, error) {
	prev := t.LastRunText
	if prev == "" {
		prev = formatTime(t.LastRun)
	}
	res, err := r.db.ExecContext(ctx, `
UPDATE tasks SET last_run=? WHERE chat_id=? AND name=? AND last_run=?`, formatTime(now), t.ChatID, t.Name, prev)
	if err != nil {
		return false, storageErr("update last_run", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storageErr("update last_run", err)
	}
	return n > 0, nil
}

func (r *sqliteRepo) CountTasks(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tasks").Scan(&n); err != nil {
		return 0, storageErr("count tasks", err)
	}
	return n, nil
}

func (r *sqliteRepo) LogInteraction(ctx context.Context, in domain.Interaction) error {
	id := in.ID
	if id == "" {
		id = newID()
	}
	if in.Timestamp.IsZero() {
		in.Timestamp = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO bot_logs (id,timestamp,chat_id,user_id,username,command,args,error,execution_time_ms)
VALUES (?,?,?,?,?,?,?,?,?)`,
		id, formatTime(in.Timestamp), in.ChatID, in.UserID, nullString(in.Username),
		in.Command, nullString(in.Args), nullString(in.Error), in.Duration.Milliseconds())
	if err != nil {
		return storageErr("insert interaction", err)
	}
	return nil
}

func (r *sqliteRepo) UserStats(ctx context.Context, userID int64) (domain.UserStats, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT
  COUNT(*),
  COUNT(DISTINCT substr(timestamp, 1, 10)),
  AVG(execution_time_ms),
  COUNT(CASE WHEN error IS NOT NULL THEN 1 END)
FROM bot_logs WHERE user_id=?`, userID)
	var s domain.UserStats
	var avg sql.NullFloat64
	var errCount int64
	if err := row.Scan(&s.TotalCommands, &s.ActiveDays, &avg, &errCount); err != nil {
		return domain.UserStats{}, storageErr("user stats", err)
	}
	s.AvgExecutionMS = avg.Float64
	s.ErrorRate = percent(errCount, s.TotalCommands)
	return s, nil
}

func (r *sqliteRepo) CommandStats(ctx context.Context) ([]domain.CommandStats, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT
  command,
  COUNT(*) AS usage_count,
  AVG(execution_time_ms),
  COUNT(CASE WHEN error IS NOT NULL THEN 1 END)
FROM bot_logs
GROUP BY command
ORDER BY usage_count DESC, command`)
	if err != nil {
		return nil, storageErr("command stats", err)
	}
	defer rows.Close()

	var out []domain.CommandStats
	for rows.Next() {
		var c domain.CommandStats
		var avg sql.NullFloat64
		var errCount int64
		if err := rows.Scan(&c.Command, &c.UsageCount, &avg, &errCount); err != nil {
			return nil, storageErr("scan command stats", err)
		}
		c.AvgExecutionMS = avg.Float64
		c.ErrorRate = percent(errCount, c.UsageCount)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate command stats", err)
	}
	return out, nil
}

func percent(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// newID returns a UUIDv7, falling back to a random UUIDv4.
func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
