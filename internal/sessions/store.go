package sessions

import (
	"context"

	"github.com/fetchctl/fetch/pkg/models"
)

// Store is the durable Session/Thread/Message store of spec section 4.8.
// Sessions are keyed by userId, created on first message, and never deleted.
type Store interface {
	// GetOrCreate returns the existing session for a user, or creates one
	// (with a fresh default thread) if none exists yet.
	GetOrCreate(ctx context.Context, userID string) (*models.Session, error)
	Get(ctx context.Context, id string) (*models.Session, error)
	Update(ctx context.Context, session *models.Session) error

	// CreateThread starts a new conversation thread under a session.
	CreateThread(ctx context.Context, sessionID string) (*models.Thread, error)
	GetThread(ctx context.Context, threadID string) (*models.Thread, error)
	UpdateThread(ctx context.Context, thread *models.Thread) error
	ListThreads(ctx context.Context, sessionID string) ([]*models.Thread, error)

	// AppendMessage appends to a thread's log.
	AppendMessage(ctx context.Context, threadID string, msg *models.Message) error
	GetHistory(ctx context.Context, threadID string, limit int) ([]*models.Message, error)

	SetPendingApproval(ctx context.Context, sessionID string, approval *models.PendingApproval) error
	AddActiveFile(ctx context.Context, sessionID, path string) error
	RemoveActiveFile(ctx context.Context, sessionID, path string) error
	SetGitStartCommit(ctx context.Context, sessionID, commit string) error
}
