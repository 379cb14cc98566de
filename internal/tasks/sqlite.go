package tasks

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fetchctl/fetch/pkg/models"
	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// SQLiteStore is a durable Store backed by a local SQLite file, the
// embedded relational store SPEC_FULL.md's domain-stack table assigns to
// the task manager. One row per task, keyed by id, with session_id and
// status broken out as queryable columns alongside the JSON blob.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (and migrates) a task store at path.
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("tasks: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	migrator, err := NewMigrator(db)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("tasks: build migrator: %w", err)
	}
	if _, err := migrator.Up(context.Background(), 0); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("tasks: apply migrations: %w", err)
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) Create(ctx context.Context, task *models.Task) error {
	if task == nil {
		return errors.New("tasks: task is required")
	}
	if task.ID == "" {
		task.ID = models.NewTaskID()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (id, session_id, status, data) VALUES (?, ?, ?, ?)`,
		task.ID, task.SessionID, string(task.Status), mustJSON(task))
	if err != nil {
		return fmt.Errorf("tasks: insert task: %w", err)
	}
	s.logger.Debug("tasks: created task", "task_id", task.ID, "session_id", task.SessionID)
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*models.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT data FROM tasks WHERE id = ?`, id)
	var raw string
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("tasks: query task: %w", err)
	}
	var task models.Task
	if err := json.Unmarshal([]byte(raw), &task); err != nil {
		return nil, fmt.Errorf("tasks: decode task: %w", err)
	}
	return &task, nil
}

func (s *SQLiteStore) Update(ctx context.Context, task *models.Task) error {
	if task == nil {
		return errors.New("tasks: task is required")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET session_id = ?, status = ?, data = ? WHERE id = ?`,
		task.SessionID, string(task.Status), mustJSON(task), task.ID)
	if err != nil {
		return fmt.Errorf("tasks: update task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context, sessionID string, limit int) ([]*models.Task, error) {
	query := `SELECT data FROM tasks`
	args := []any{}
	if sessionID != "" {
		query += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	query += ` ORDER BY created_at DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("tasks: list tasks: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Task, 0)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("tasks: scan task: %w", err)
		}
		var task models.Task
		if err := json.Unmarshal([]byte(raw), &task); err != nil {
			return nil, fmt.Errorf("tasks: decode task: %w", err)
		}
		out = append(out, &task)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) NonTerminal(ctx context.Context) ([]*models.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT data FROM tasks WHERE status NOT IN (?, ?, ?, ?)`,
		string(models.TaskCompleted), string(models.TaskFailed),
		string(models.TaskCancelled), string(models.TaskTimedOut))
	if err != nil {
		return nil, fmt.Errorf("tasks: query non-terminal: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Task, 0)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("tasks: scan task: %w", err)
		}
		var task models.Task
		if err := json.Unmarshal([]byte(raw), &task); err != nil {
			return nil, fmt.Errorf("tasks: decode task: %w", err)
		}
		out = append(out, &task)
	}
	return out, rows.Err()
}

func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("tasks: marshal: %v", err))
	}
	return string(data)
}

var _ Store = (*SQLiteStore)(nil)
