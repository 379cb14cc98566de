package sessions

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fetchctl/fetch/pkg/models"
	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// SQLiteStore is a durable Store backed by a local SQLite file (spec
// section 4.8's persistence requirement; domain-stack assignment in
// SPEC_FULL.md section 1.2). Sessions, threads, and messages are each
// kept as a JSON blob column alongside the columns queries filter on,
// the same shape as the teacher pack's oasis sqlite store.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (and migrates) a session store at path. A single
// connection is used, matching the oasis sqlite store's rationale:
// SQLite serializes writers anyway, and one connection avoids
// SQLITE_BUSY from independent connections racing on the same file.
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sessions: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	migrator, err := NewMigrator(db)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sessions: build migrator: %w", err)
	}
	if _, err := migrator.Up(context.Background(), 0); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sessions: apply migrations: %w", err)
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) GetOrCreate(ctx context.Context, userID string) (*models.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT data FROM sessions WHERE user_id = ?`, userID)
	var raw string
	switch err := row.Scan(&raw); {
	case err == nil:
		var session models.Session
		if err := json.Unmarshal([]byte(raw), &session); err != nil {
			return nil, fmt.Errorf("sessions: decode session: %w", err)
		}
		return &session, nil
	case errors.Is(err, sql.ErrNoRows):
		// fall through to create
	default:
		return nil, fmt.Errorf("sessions: query session: %w", err)
	}

	now := time.Now()
	thread := &models.Thread{
		ID:        models.NewThreadID(),
		Status:    models.ThreadActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	session := &models.Session{
		ID:             models.NewSessionID(),
		UserID:         userID,
		CreatedAt:      now,
		LastActivityAt: now,
		Preferences:    models.DefaultPreferences(),
		ActiveThreadID: thread.ID,
	}
	thread.SessionID = session.ID

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sessions: begin create: %w", err)
	}
	if err := insertSession(ctx, tx, session); err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	if err := insertThread(ctx, tx, thread); err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sessions: commit create: %w", err)
	}
	s.logger.Debug("sessions: created session", "user_id", userID, "session_id", session.ID)
	return session, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*models.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT data FROM sessions WHERE id = ?`, id)
	var raw string
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.New("session not found")
		}
		return nil, fmt.Errorf("sessions: query session: %w", err)
	}
	var session models.Session
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		return nil, fmt.Errorf("sessions: decode session: %w", err)
	}
	return &session, nil
}

func (s *SQLiteStore) Update(ctx context.Context, session *models.Session) error {
	if session == nil {
		return errors.New("session is required")
	}
	res, err := s.db.ExecContext(ctx, `UPDATE sessions SET user_id = ?, data = ? WHERE id = ?`,
		session.UserID, mustJSON(session), session.ID)
	if err != nil {
		return fmt.Errorf("sessions: update session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.New("session not found")
	}
	return nil
}

func (s *SQLiteStore) CreateThread(ctx context.Context, sessionID string) (*models.Thread, error) {
	if _, err := s.Get(ctx, sessionID); err != nil {
		return nil, err
	}
	now := time.Now()
	thread := &models.Thread{
		ID:        models.NewThreadID(),
		SessionID: sessionID,
		Status:    models.ThreadActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := insertThread(ctx, s.db, thread); err != nil {
		return nil, err
	}
	return thread, nil
}

func (s *SQLiteStore) GetThread(ctx context.Context, threadID string) (*models.Thread, error) {
	row := s.db.QueryRowContext(ctx, `SELECT data FROM threads WHERE id = ?`, threadID)
	var raw string
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.New("thread not found")
		}
		return nil, fmt.Errorf("sessions: query thread: %w", err)
	}
	var thread models.Thread
	if err := json.Unmarshal([]byte(raw), &thread); err != nil {
		return nil, fmt.Errorf("sessions: decode thread: %w", err)
	}
	return &thread, nil
}

func (s *SQLiteStore) UpdateThread(ctx context.Context, thread *models.Thread) error {
	if thread == nil {
		return errors.New("thread is required")
	}
	thread.UpdatedAt = time.Now()
	res, err := s.db.ExecContext(ctx, `UPDATE threads SET session_id = ?, status = ?, data = ?, updated_at = ? WHERE id = ?`,
		thread.SessionID, string(thread.Status), mustJSON(thread), thread.UpdatedAt, thread.ID)
	if err != nil {
		return fmt.Errorf("sessions: update thread: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.New("thread not found")
	}
	return nil
}

func (s *SQLiteStore) ListThreads(ctx context.Context, sessionID string) ([]*models.Thread, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM threads WHERE session_id = ? ORDER BY updated_at`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("sessions: list threads: %w", err)
	}
	defer rows.Close()

	var out []*models.Thread
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("sessions: scan thread: %w", err)
		}
		var thread models.Thread
		if err := json.Unmarshal([]byte(raw), &thread); err != nil {
			return nil, fmt.Errorf("sessions: decode thread: %w", err)
		}
		out = append(out, &thread)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) AppendMessage(ctx context.Context, threadID string, msg *models.Message) error {
	if msg == nil {
		return errors.New("message is required")
	}
	if _, err := s.GetThread(ctx, threadID); err != nil {
		return err
	}
	clone := *msg
	if clone.ID == "" {
		clone.ID = models.NewMessageID()
	}
	clone.ThreadID = threadID
	if clone.Timestamp.IsZero() {
		clone.Timestamp = time.Now()
	}

	var seq int
	row := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), -1) + 1 FROM messages WHERE thread_id = ?`, threadID)
	if err := row.Scan(&seq); err != nil {
		return fmt.Errorf("sessions: next seq: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sessions: begin append: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO messages (id, thread_id, seq, data, created_at) VALUES (?, ?, ?, ?, ?)`,
		clone.ID, threadID, seq, mustJSON(&clone), clone.Timestamp); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("sessions: insert message: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE threads SET updated_at = ? WHERE id = ?`, clone.Timestamp, threadID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("sessions: touch thread: %w", err)
	}
	// Trim to maxMessagesPerThread, mirroring MemoryStore's bound.
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM messages WHERE thread_id = ? AND seq <= (
			SELECT seq FROM messages WHERE thread_id = ? ORDER BY seq DESC LIMIT 1 OFFSET ?
		)`, threadID, threadID, maxMessagesPerThread); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("sessions: trim messages: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sessions: commit append: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetHistory(ctx context.Context, threadID string, limit int) ([]*models.Message, error) {
	query := `SELECT data FROM messages WHERE thread_id = ? ORDER BY seq DESC`
	args := []any{threadID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sessions: get history: %w", err)
	}
	defer rows.Close()

	var reversed []*models.Message
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("sessions: scan message: %w", err)
		}
		var msg models.Message
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			return nil, fmt.Errorf("sessions: decode message: %w", err)
		}
		reversed = append(reversed, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	out := make([]*models.Message, len(reversed))
	for i, msg := range reversed {
		out[len(reversed)-1-i] = msg
	}
	return out, nil
}

func (s *SQLiteStore) SetPendingApproval(ctx context.Context, sessionID string, approval *models.PendingApproval) error {
	session, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	session.PendingApproval = approval
	return s.Update(ctx, session)
}

func (s *SQLiteStore) AddActiveFile(ctx context.Context, sessionID, path string) error {
	session, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	for _, existing := range session.ActiveFiles {
		if existing == path {
			return nil
		}
	}
	session.ActiveFiles = append(session.ActiveFiles, path)
	return s.Update(ctx, session)
}

func (s *SQLiteStore) RemoveActiveFile(ctx context.Context, sessionID, path string) error {
	session, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	filtered := session.ActiveFiles[:0]
	for _, existing := range session.ActiveFiles {
		if existing != path {
			filtered = append(filtered, existing)
		}
	}
	session.ActiveFiles = filtered
	return s.Update(ctx, session)
}

func (s *SQLiteStore) SetGitStartCommit(ctx context.Context, sessionID, commit string) error {
	session, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	session.GitStartCommit = commit
	return s.Update(ctx, session)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertSession(ctx context.Context, db execer, session *models.Session) error {
	_, err := db.ExecContext(ctx, `INSERT INTO sessions (id, user_id, data, created_at) VALUES (?, ?, ?, ?)`,
		session.ID, session.UserID, mustJSON(session), session.CreatedAt)
	if err != nil {
		return fmt.Errorf("sessions: insert session: %w", err)
	}
	return nil
}

func insertThread(ctx context.Context, db execer, thread *models.Thread) error {
	_, err := db.ExecContext(ctx, `INSERT INTO threads (id, session_id, status, data, updated_at) VALUES (?, ?, ?, ?, ?)`,
		thread.ID, thread.SessionID, string(thread.Status), mustJSON(thread), thread.UpdatedAt)
	if err != nil {
		return fmt.Errorf("sessions: insert thread: %w", err)
	}
	return nil
}

func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("sessions: marshal: %v", err))
	}
	return string(data)
}

var _ Store = (*SQLiteStore)(nil)
