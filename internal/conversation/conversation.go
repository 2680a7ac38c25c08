package conversation

import (
	"time"

	"github.com/neo/rapport_backend/internal/agent"
	"github.com/neo/rapport_backend/internal/rapport"
	"github.com/neo/rapport_backend/internal/types"
)

// Turn is one utterance in the transcript
type Turn struct {
	Role      types.Role `json:"role"`
	Content   string     `json:"content"`
	Time      time.Time  `json:"time"`
	// EventSequence links a trainee turn to its rapport event; zero for
	// persona turns
	EventSequence int `json:"event_sequence,omitempty"`
}

// RapportState is the score, tier and scoring history of one conversation.
// Score and Tier only change together through Apply.
type RapportState struct {
	Score   int             `json:"score"`
	Tier    types.Tier      `json:"tier"`
	History []rapport.Event `json:"history"`
}

// Apply appends ev to the history and adopts its score and tier. The event
// is assigned the next sequence number, which is returned.
func (r *RapportState) Apply(ev rapport.Event) int {
	ev.Sequence = len(r.History) + 1
	r.History = append(r.History, ev)
	r.Score = ev.ScoreAfter
	r.Tier = ev.TierAfter
	return ev.Sequence
}

// Conversation is the full state of one training interview
type Conversation struct {
	ID           string       `json:"id"`
	PersonaID    string       `json:"persona_id"`
	PersonaName  string       `json:"persona_name"`
	StartedAt    time.Time    `json:"started_at"`
	LastActivity time.Time    `json:"last_activity"`
	Rapport      RapportState `json:"rapport"`
	Transcript   []Turn       `json:"transcript"`
}

// Clone returns a deep copy, so stores never share slices with callers
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	out := *c
	out.Transcript = append([]Turn(nil), c.Transcript...)
	out.Rapport.History = make([]rapport.Event, len(c.Rapport.History))
	for i, ev := range c.Rapport.History {
		ev.Signals = append([]rapport.Signal(nil), ev.Signals...)
		out.Rapport.History[i] = ev
	}
	return &out
}

// AddTurn appends a turn to the transcript
func (c *Conversation) AddTurn(t Turn) {
	c.Transcript = append(c.Transcript, t)
	c.LastActivity = t.Time
}

// RecentTurns returns a copy of the last n turns
func (c *Conversation) RecentTurns(n int) []Turn {
	if n <= 0 || len(c.Transcript) == 0 {
		return []Turn{}
	}
	start := len(c.Transcript) - n
	if start < 0 {
		start = 0
	}
	out := make([]Turn, len(c.Transcript)-start)
	copy(out, c.Transcript[start:])
	return out
}

// TraineeMessageCount counts trainee turns
func (c *Conversation) TraineeMessageCount() int {
	n := 0
	for _, t := range c.Transcript {
		if t.Role == types.RoleTrainee {
			n++
		}
	}
	return n
}

// AwaitingReply reports whether the last turn is an unanswered trainee turn
func (c *Conversation) AwaitingReply() bool {
	return len(c.Transcript) > 0 && c.Transcript[len(c.Transcript)-1].Role == types.RoleTrainee
}

// Event returns the rapport event with the given sequence number
func (c *Conversation) Event(seq int) (rapport.Event, bool) {
	if seq < 1 || seq > len(c.Rapport.History) {
		return rapport.Event{}, false
	}
	return c.Rapport.History[seq-1], true
}

func toMessages(turns []Turn) []agent.Message {
	out := make([]agent.Message, len(turns))
	for i, t := range turns {
		out[i] = agent.Message{Role: t.Role, Content: t.Content}
	}
	return out
}
