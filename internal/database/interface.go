package database

import (
	"context"
	"time"

	"github.com/neo/rapport_backend/internal/conversation"
)

// DatabaseInterface defines the interface for archive operations
type DatabaseInterface interface {
	Close() error

	// Archive
	conversation.Archiver
	ListArchived(ctx context.Context, limit, offset int) ([]*ArchivedSummary, int, error)
	GetArchived(ctx context.Context, id string) (*ArchivedConversation, error)
	DeleteArchivedBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Migration runner
	RunMigrations() error
}

// Ensure Database implements DatabaseInterface
var _ DatabaseInterface = (*Database)(nil)
