package server

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/neo/rapport_backend/internal/conversation"
	"github.com/neo/rapport_backend/internal/database"
)

// MockDB is a mock implementation of the archive database for testing
type MockDB struct {
	mock.Mock
}

// Ensure MockDB implements database.DatabaseInterface
var _ database.DatabaseInterface = (*MockDB)(nil)

func (m *MockDB) Close() error {
	return m.Called().Error(0)
}

func (m *MockDB) ArchiveConversation(ctx context.Context, c *conversation.Conversation, reason string) error {
	return m.Called(ctx, c, reason).Error(0)
}

func (m *MockDB) ListArchived(ctx context.Context, limit, offset int) ([]*database.ArchivedSummary, int, error) {
	args := m.Called(ctx, limit, offset)
	items, _ := args.Get(0).([]*database.ArchivedSummary)
	return items, args.Int(1), args.Error(2)
}

func (m *MockDB) GetArchived(ctx context.Context, id string) (*database.ArchivedConversation, error) {
	args := m.Called(ctx, id)
	archived, _ := args.Get(0).(*database.ArchivedConversation)
	return archived, args.Error(1)
}

func (m *MockDB) DeleteArchivedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockDB) RunMigrations() error {
	return m.Called().Error(0)
}
