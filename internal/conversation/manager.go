package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/neo/rapport_backend/internal/agent"
	"github.com/neo/rapport_backend/internal/logging"
	"github.com/neo/rapport_backend/internal/persona"
	"github.com/neo/rapport_backend/internal/rapport"
	"github.com/neo/rapport_backend/internal/types"
)

// Archive reasons
const (
	ReasonEvicted = "evicted"
	ReasonDeleted = "deleted"
)

// Config holds the orchestrator limits
type Config struct {
	// RecentTurns bounds how many transcript turns are sent to the backend
	RecentTurns       int
	MaxMessageLength  int
	GenerationTimeout time.Duration
	// Retention is how long a conversation may sit idle before eviction
	Retention time.Duration
}

// DefaultConfig returns the standard limits
func DefaultConfig() Config {
	return Config{
		RecentTurns:       15,
		MaxMessageLength:  500,
		GenerationTimeout: 30 * time.Second,
		Retention:         time.Hour,
	}
}

// Archiver keeps conversations that leave the live store
type Archiver interface {
	ArchiveConversation(ctx context.Context, c *Conversation, reason string) error
}

// Opening is what a trainee receives when a conversation starts
type Opening struct {
	ConversationID string `json:"conversation_id"`
	PersonaID      string `json:"persona_id"`
	PersonaName    string `json:"persona_name"`
	PersonaRole    string `json:"persona_role"`
	Greeting       string `json:"greeting"`
}

func newOpening(c *Conversation, p *persona.Persona) *Opening {
	return &Opening{
		ConversationID: c.ID,
		PersonaID:      p.ID,
		PersonaName:    p.Name,
		PersonaRole:    p.Role,
		Greeting:       p.Greeting,
	}
}

// Manager runs conversations: it scores each trainee message, picks the
// persona directive for the resulting tier and asks the backend for a reply
type Manager struct {
	engine   *rapport.Engine
	personas persona.Directory
	backend  agent.Backend
	store    Store
	locks    Locker
	archive  Archiver
	cfg      Config
	now      func() time.Time
}

// Option configures a Manager
type Option func(*Manager)

// WithStore replaces the in-memory store
func WithStore(s Store) Option {
	return func(m *Manager) { m.store = s }
}

// WithLocker replaces the in-process locker
func WithLocker(l Locker) Option {
	return func(m *Manager) { m.locks = l }
}

// WithArchiver archives evicted and deleted conversations
func WithArchiver(a Archiver) Option {
	return func(m *Manager) { m.archive = a }
}

// WithConfig sets the limits
func WithConfig(cfg Config) Option {
	return func(m *Manager) { m.cfg = cfg }
}

// WithClock sets the time source
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a manager with an in-memory store and local locks
// unless options say otherwise
func NewManager(engine *rapport.Engine, personas persona.Directory, backend agent.Backend, opts ...Option) *Manager {
	m := &Manager{
		engine:   engine,
		personas: personas,
		backend:  backend,
		store:    NewMemoryStore(),
		locks:    NewLocalLocker(),
		cfg:      DefaultConfig(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Config returns the manager limits
func (m *Manager) Config() Config {
	return m.cfg
}

// Personas returns the persona directory
func (m *Manager) Personas() persona.Directory {
	return m.personas
}

// StartConversation opens a conversation with personaID at the initial
// rapport score. The persona greeting becomes the first turn.
func (m *Manager) StartConversation(ctx context.Context, personaID string) (*Opening, error) {
	p, err := m.personas.Resolve(personaID)
	if err != nil {
		return nil, err
	}

	now := m.now()
	initial := m.engine.InitialScore()
	c := &Conversation{
		ID:           uuid.NewString(),
		PersonaID:    p.ID,
		PersonaName:  p.Name,
		StartedAt:    now,
		LastActivity: now,
		Rapport: RapportState{
			Score:   initial,
			Tier:    m.engine.TierFor(initial),
			History: []rapport.Event{},
		},
		Transcript: []Turn{{Role: types.RolePersona, Content: p.Greeting, Time: now}},
	}

	if err := m.store.Set(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}

	logging.LogConversationEvent("started", c.ID, map[string]interface{}{
		"persona_id": p.ID,
	})

	return newOpening(c, p), nil
}

// Opening returns the trainee view of an existing conversation
func (m *Manager) Opening(ctx context.Context, conversationID string) (*Opening, error) {
	c, err := m.store.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	p, err := m.personas.Resolve(c.PersonaID)
	if err != nil {
		return nil, err
	}
	return newOpening(c, p), nil
}

// SubmitMessage scores text, commits the rapport update and returns the
// persona's reply. The score and tier never leave this method.
//
// If the backend fails the rapport update stays committed, no reply is
// recorded, and a GenerationFailedError is returned.
func (m *Manager) SubmitMessage(ctx context.Context, conversationID, text string) (string, error) {
	text, err := m.validateMessage(text)
	if err != nil {
		return "", err
	}

	unlock, err := m.locks.Lock(ctx, conversationID)
	if err != nil {
		return "", err
	}
	defer unlock()

	c, err := m.live(ctx, conversationID)
	if err != nil {
		return "", err
	}
	p, err := m.personas.Resolve(c.PersonaID)
	if err != nil {
		return "", err
	}

	var ev rapport.Event
	var seq int
	c, err = m.store.Update(ctx, conversationID, func(cur *Conversation) error {
		ev = m.engine.Classify(text, cur.Rapport.Score, p.DisplayName())
		seq = cur.Rapport.Apply(ev)
		cur.AddTurn(Turn{Role: types.RoleTrainee, Content: text, Time: m.now(), EventSequence: seq})
		return nil
	})
	if types.IsNotFound(err) {
		return "", err
	}
	if err != nil {
		return "", fmt.Errorf("failed to save conversation: %w", err)
	}

	logging.LogRapportEvent(c.ID, ev.ScoreBefore, ev.ScoreAfter, string(ev.TierAfter), map[string]interface{}{
		"delta":    ev.Delta,
		"sequence": seq,
	})

	return m.generate(ctx, c, p)
}

// RegenerateReply asks the backend again for the last unanswered trainee
// message without scoring it a second time
func (m *Manager) RegenerateReply(ctx context.Context, conversationID string) (string, error) {
	unlock, err := m.locks.Lock(ctx, conversationID)
	if err != nil {
		return "", err
	}
	defer unlock()

	c, err := m.live(ctx, conversationID)
	if err != nil {
		return "", err
	}
	if !c.AwaitingReply() {
		return "", &types.ValidationError{Field: "conversation", Reason: "no message is waiting for a reply"}
	}
	p, err := m.personas.Resolve(c.PersonaID)
	if err != nil {
		return "", err
	}

	logging.LogConversationEvent("reply_retried", c.ID, nil)
	return m.generate(ctx, c, p)
}

// live loads a conversation that has not outlived the retention window.
// An expired conversation is reported as missing even before the janitor
// removes it.
func (m *Manager) live(ctx context.Context, conversationID string) (*Conversation, error) {
	c, err := m.store.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if m.cfg.Retention > 0 && idleSince(c, m.now().Add(-m.cfg.Retention)) {
		return nil, &types.NotFoundError{Kind: "conversation", ID: conversationID}
	}
	return c, nil
}

func (m *Manager) validateMessage(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", &types.ValidationError{Field: "message", Reason: "must not be empty"}
	}
	if n := utf8.RuneCountInString(text); n > m.cfg.MaxMessageLength {
		return "", &types.ValidationError{
			Field:  "message",
			Reason: fmt.Sprintf("must be at most %d characters, got %d", m.cfg.MaxMessageLength, n),
		}
	}
	return text, nil
}

// generate must be called with the conversation lock held
func (m *Manager) generate(ctx context.Context, c *Conversation, p *persona.Persona) (string, error) {
	instruction, err := p.BuildInstruction(c.Rapport.Tier)
	if err != nil {
		return "", &types.GenerationFailedError{ConversationID: c.ID, Err: err}
	}
	turns := toMessages(c.RecentTurns(m.cfg.RecentTurns))

	genCtx := ctx
	if m.cfg.GenerationTimeout > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, m.cfg.GenerationTimeout)
		defer cancel()
	}

	start := m.now()
	reply, err := m.backend.Complete(genCtx, instruction, turns)
	if err != nil {
		logging.LogConversationEvent("generation_failed", c.ID, map[string]interface{}{
			"backend": m.backend.Name(),
			"error":   err,
		})
		return "", &types.GenerationFailedError{ConversationID: c.ID, Err: err}
	}

	// The reply answers the transcript it was generated from. If another
	// writer saved first, the reply is dropped and the newer state is kept.
	wantTurns, wantEvents := len(c.Transcript), len(c.Rapport.History)
	_, err = m.store.Update(ctx, c.ID, func(cur *Conversation) error {
		if len(cur.Transcript) != wantTurns || len(cur.Rapport.History) != wantEvents {
			return ErrConversationChanged
		}
		cur.AddTurn(Turn{Role: types.RolePersona, Content: reply, Time: m.now()})
		return nil
	})
	if errors.Is(err, ErrConversationChanged) {
		logging.LogConversationEvent("reply_discarded", c.ID, map[string]interface{}{
			"backend": m.backend.Name(),
		})
		return "", &types.GenerationFailedError{ConversationID: c.ID, Err: err}
	}
	if types.IsNotFound(err) {
		return "", err
	}
	if err != nil {
		return "", fmt.Errorf("failed to save conversation: %w", err)
	}

	logging.LogConversationEvent("replied", c.ID, map[string]interface{}{
		"turns_sent": len(turns),
		"latency":    m.now().Sub(start),
	})
	return reply, nil
}

// Delete archives and removes a conversation
func (m *Manager) Delete(ctx context.Context, conversationID string) error {
	unlock, err := m.locks.Lock(ctx, conversationID)
	if err != nil {
		return err
	}
	defer unlock()

	c, err := m.store.Get(ctx, conversationID)
	if err != nil {
		return err
	}
	return m.remove(ctx, c, ReasonDeleted)
}

// DeleteAll removes every live conversation and returns how many went
func (m *Manager) DeleteAll(ctx context.Context) (int, error) {
	all, err := m.store.List(ctx)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, c := range all {
		err := m.Delete(ctx, c.ID)
		if types.IsNotFound(err) {
			continue
		}
		if err != nil {
			return deleted, err
		}
		deleted++
	}
	logging.LogConversationEvent("cleared", "", map[string]interface{}{"count": deleted})
	return deleted, nil
}

// remove must be called with the conversation lock held
func (m *Manager) remove(ctx context.Context, c *Conversation, reason string) error {
	if m.archive != nil {
		if err := m.archive.ArchiveConversation(ctx, c, reason); err != nil {
			logging.Error("Failed to archive conversation", map[string]interface{}{
				"conversation_id": c.ID,
				"reason":          reason,
				"error":           err,
			})
		}
	}
	if err := m.store.Delete(ctx, c.ID); err != nil {
		return err
	}
	logging.LogConversationEvent(reason, c.ID, map[string]interface{}{
		"final_score": c.Rapport.Score,
		"messages":    c.TraineeMessageCount(),
	})
	return nil
}
