package conversation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/neo/rapport_backend/internal/agent"
	"github.com/neo/rapport_backend/internal/persona"
	"github.com/neo/rapport_backend/internal/rapport"
)

// MockBackend is a mock implementation of agent.Backend
type MockBackend struct {
	mock.Mock
}

func (m *MockBackend) Name() string {
	return "mock"
}

func (m *MockBackend) Complete(ctx context.Context, instruction string, turns []agent.Message) (string, error) {
	args := m.Called(ctx, instruction, turns)
	return args.String(0), args.Error(1)
}

// MockArchiver is a mock implementation of Archiver
type MockArchiver struct {
	mock.Mock
}

func (m *MockArchiver) ArchiveConversation(ctx context.Context, c *Conversation, reason string) error {
	args := m.Called(ctx, c, reason)
	return args.Error(0)
}

// funcBackend adapts a function to agent.Backend
type funcBackend func(ctx context.Context, instruction string, turns []agent.Message) (string, error)

func (f funcBackend) Name() string { return "func" }

func (f funcBackend) Complete(ctx context.Context, instruction string, turns []agent.Message) (string, error) {
	return f(ctx, instruction, turns)
}

func staticReply(reply string) funcBackend {
	return func(ctx context.Context, instruction string, turns []agent.Message) (string, error) {
		return reply, nil
	}
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestManager(t *testing.T, backend agent.Backend, opts ...Option) (*Manager, *fakeClock) {
	t.Helper()
	clock := newFakeClock()

	catalog, err := persona.Default()
	require.NoError(t, err)
	engine, err := rapport.NewEngine(rapport.DefaultTuning(), rapport.WithClock(clock.Now))
	require.NoError(t, err)

	all := append([]Option{WithClock(clock.Now)}, opts...)
	return NewManager(engine, catalog, backend, all...), clock
}
