package conversation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/neo/rapport_backend/internal/rapport"
	"github.com/neo/rapport_backend/internal/types"
)

// Snapshot is the full observer view of one conversation. It must never
// be served on the trainee surface.
type Snapshot struct {
	ConversationID string          `json:"conversation_id"`
	PersonaID      string          `json:"persona_id"`
	PersonaName    string          `json:"persona_name"`
	StartedAt      time.Time       `json:"started_at"`
	LastActivity   time.Time       `json:"last_activity"`
	Score          int             `json:"score"`
	Tier           types.Tier      `json:"tier"`
	MessageCount   int             `json:"message_count"`
	History        []rapport.Event `json:"history"`
	Transcript     []Turn          `json:"transcript"`
}

// NewSnapshot builds the observer view of c
func NewSnapshot(c *Conversation) Snapshot {
	return Snapshot{
		ConversationID: c.ID,
		PersonaID:      c.PersonaID,
		PersonaName:    c.PersonaName,
		StartedAt:      c.StartedAt,
		LastActivity:   c.LastActivity,
		Score:          c.Rapport.Score,
		Tier:           c.Rapport.Tier,
		MessageCount:   c.TraineeMessageCount(),
		History:        c.Rapport.History,
		Transcript:     c.Transcript,
	}
}

// Snapshot returns the observer view of one conversation
func (m *Manager) Snapshot(ctx context.Context, conversationID string) (Snapshot, error) {
	c, err := m.store.Get(ctx, conversationID)
	if err != nil {
		return Snapshot{}, err
	}
	return NewSnapshot(c), nil
}

// Snapshots returns every live conversation, newest first
func (m *Manager) Snapshots(ctx context.Context) ([]Snapshot, error) {
	all, err := m.store.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Snapshot, len(all))
	for i, c := range all {
		out[i] = NewSnapshot(c)
	}
	return out, nil
}

// Report renders every live conversation as plain text
func (m *Manager) Report(ctx context.Context) (string, error) {
	all, err := m.store.List(ctx)
	if err != nil {
		return "", err
	}
	return FormatReport(all, m.now()), nil
}

const reportRule = "================================================================"

// FormatReport renders conversations for post-session review: timing,
// final score, progression and the transcript with each trainee message's
// rapport change and reasoning
func FormatReport(conversations []*Conversation, generated time.Time) string {
	var b strings.Builder

	b.WriteString("RAPPORT TRAINING REPORT\n")
	fmt.Fprintf(&b, "Generated: %s\n", generated.UTC().Format(time.RFC1123))
	fmt.Fprintf(&b, "Conversations: %d\n", len(conversations))
	b.WriteString(reportRule + "\n")

	if len(conversations) == 0 {
		b.WriteString("\nNo conversations.\n")
		return b.String()
	}

	for _, c := range conversations {
		writeConversation(&b, c)
	}
	return b.String()
}

func writeConversation(b *strings.Builder, c *Conversation) {
	fmt.Fprintf(b, "\nCONVERSATION %s\n", c.ID)
	fmt.Fprintf(b, "Persona: %s (%s)\n", c.PersonaName, c.PersonaID)
	fmt.Fprintf(b, "Started: %s\n", c.StartedAt.UTC().Format(time.RFC1123))
	fmt.Fprintf(b, "Last activity: %s\n", c.LastActivity.UTC().Format(time.RFC1123))
	fmt.Fprintf(b, "Duration: %s\n", c.LastActivity.Sub(c.StartedAt).Round(time.Second))
	fmt.Fprintf(b, "Final rapport: %d (%s)\n", c.Rapport.Score, c.Rapport.Tier.Label())
	fmt.Fprintf(b, "Trainee messages: %d\n", c.TraineeMessageCount())

	progression := []string{}
	if len(c.Rapport.History) > 0 {
		progression = append(progression, fmt.Sprint(c.Rapport.History[0].ScoreBefore))
	}
	for _, ev := range c.Rapport.History {
		progression = append(progression, fmt.Sprint(ev.ScoreAfter))
	}
	if len(progression) == 0 {
		progression = append(progression, fmt.Sprint(c.Rapport.Score))
	}
	fmt.Fprintf(b, "Score progression: %s\n", strings.Join(progression, " -> "))

	b.WriteString("\nTRANSCRIPT\n")
	for _, t := range c.Transcript {
		speaker := "Trainee"
		if t.Role == types.RolePersona {
			speaker = c.PersonaName
		}
		fmt.Fprintf(b, "[%s] %s: %s\n", t.Time.UTC().Format("15:04:05"), speaker, t.Content)

		ev, ok := c.Event(t.EventSequence)
		if t.Role != types.RoleTrainee || !ok {
			continue
		}
		fmt.Fprintf(b, "    Rapport: %+d (%d -> %d, %s)\n", ev.Delta, ev.ScoreBefore, ev.ScoreAfter, ev.TierAfter.Label())
		if len(ev.Signals) > 0 {
			signals := make([]string, len(ev.Signals))
			for i, s := range ev.Signals {
				signals[i] = fmt.Sprintf("%s (%+d)", s.Label, s.Points)
			}
			fmt.Fprintf(b, "    Signals: %s\n", strings.Join(signals, ", "))
		}
		fmt.Fprintf(b, "    Reasoning: %s\n", ev.Explanation)
	}
	b.WriteString(reportRule + "\n")
}
