package conversation

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/neo/rapport_backend/internal/types"
)

// ErrConversationChanged is returned by an update whose precondition no
// longer holds because another writer saved the conversation first
var ErrConversationChanged = errors.New("conversation changed by another writer")

// UpdateFunc edits a conversation in place. Returning an error discards
// the edit.
type UpdateFunc func(c *Conversation) error

// Store holds live conversations. Get returns a copy that the caller may
// mutate freely; changes become visible only through Set or Update.
type Store interface {
	Get(ctx context.Context, id string) (*Conversation, error)
	Set(ctx context.Context, c *Conversation) error
	// Update reads, edits and writes one conversation atomically with
	// respect to every other write of the same id
	Update(ctx context.Context, id string, fn UpdateFunc) (*Conversation, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*Conversation, error)
}

// MemoryStore keeps conversations in process memory
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*Conversation
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{conversations: make(map[string]*Conversation)}
}

// Get returns a copy of the conversation or a NotFoundError
func (s *MemoryStore) Get(ctx context.Context, id string) (*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.conversations[id]
	if !ok {
		return nil, &types.NotFoundError{Kind: "conversation", ID: id}
	}
	return c.Clone(), nil
}

// Set stores a copy of c
func (s *MemoryStore) Set(ctx context.Context, c *Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conversations[c.ID] = c.Clone()
	return nil
}

// Update applies fn to a copy of the conversation and stores the result
func (s *MemoryStore) Update(ctx context.Context, id string, fn UpdateFunc) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.conversations[id]
	if !ok {
		return nil, &types.NotFoundError{Kind: "conversation", ID: id}
	}
	c := cur.Clone()
	if err := fn(c); err != nil {
		return nil, err
	}
	s.conversations[id] = c.Clone()
	return c, nil
}

// Delete removes a conversation. Deleting a missing id is not an error.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.conversations, id)
	return nil
}

// List returns copies of all conversations, newest first
func (s *MemoryStore) List(ctx context.Context) ([]*Conversation, error) {
	s.mu.RLock()
	out := make([]*Conversation, 0, len(s.conversations))
	for _, c := range s.conversations {
		out = append(out, c.Clone())
	}
	s.mu.RUnlock()

	sortNewestFirst(out)
	return out, nil
}

func sortNewestFirst(cs []*Conversation) {
	sort.Slice(cs, func(i, j int) bool {
		if !cs[i].StartedAt.Equal(cs[j].StartedAt) {
			return cs[i].StartedAt.After(cs[j].StartedAt)
		}
		return cs[i].ID < cs[j].ID
	})
}

// idleSince reports whether c has been inactive since before cutoff
func idleSince(c *Conversation, cutoff time.Time) bool {
	return c.LastActivity.Before(cutoff)
}
