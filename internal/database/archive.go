package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/neo/rapport_backend/internal/conversation"
	"github.com/neo/rapport_backend/internal/logging"
	"github.com/neo/rapport_backend/internal/rapport"
	"github.com/neo/rapport_backend/internal/types"
)

// ArchivedSummary is one row of the archive listing
type ArchivedSummary struct {
	ID           string     `json:"conversation_id"`
	PersonaID    string     `json:"persona_id"`
	PersonaName  string     `json:"persona_name"`
	StartedAt    time.Time  `json:"started_at"`
	LastActivity time.Time  `json:"last_activity"`
	FinalScore   int        `json:"final_score"`
	FinalTier    types.Tier `json:"final_tier"`
	MessageCount int        `json:"message_count"`
	Reason       string     `json:"reason"`
	ArchivedAt   time.Time  `json:"archived_at"`
}

// ArchivedConversation is a full archived conversation
type ArchivedConversation struct {
	Reason       string                     `json:"reason"`
	ArchivedAt   time.Time                  `json:"archived_at"`
	Conversation *conversation.Conversation `json:"conversation"`
}

// ArchiveConversation stores c with its transcript and rapport history.
// Archiving the same conversation again replaces the earlier copy.
func (d *Database) ArchiveConversation(ctx context.Context, c *conversation.Conversation, reason string) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"archived_turns", "archived_events"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE conversation_id = ?", c.ID); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO archived_conversations
			(id, persona_id, persona_name, started_at, last_activity, final_score, final_tier, message_count, reason, archived_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.PersonaID, c.PersonaName, c.StartedAt.UTC(), c.LastActivity.UTC(),
		c.Rapport.Score, string(c.Rapport.Tier), c.TraineeMessageCount(), reason, d.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to archive conversation: %w", err)
	}

	for i, t := range c.Transcript {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO archived_turns (conversation_id, position, role, content, created_at, event_sequence)
			VALUES (?, ?, ?, ?, ?, ?)`,
			c.ID, i, string(t.Role), t.Content, t.Time.UTC(), t.EventSequence,
		)
		if err != nil {
			return fmt.Errorf("failed to archive turn %d: %w", i, err)
		}
	}

	for _, ev := range c.Rapport.History {
		signals, err := json.Marshal(ev.Signals)
		if err != nil {
			return fmt.Errorf("failed to encode signals: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO archived_events
				(conversation_id, sequence, occurred_at, score_before, score_after, raw_delta, delta, tier_after, signals, explanation)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, ev.Sequence, ev.Timestamp.UTC(), ev.ScoreBefore, ev.ScoreAfter, ev.RawDelta, ev.Delta,
			string(ev.TierAfter), string(signals), ev.Explanation,
		)
		if err != nil {
			return fmt.Errorf("failed to archive event %d: %w", ev.Sequence, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit archive: %w", err)
	}

	logging.LogDatabaseEvent("archive", "archived_conversations", map[string]interface{}{
		"conversation_id": c.ID,
		"reason":          reason,
		"turns":           len(c.Transcript),
	})
	return nil
}

// ListArchived returns archived conversations, most recently archived
// first, and the total number archived
func (d *Database) ListArchived(ctx context.Context, limit, offset int) ([]*ArchivedSummary, int, error) {
	var total int
	if err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM archived_conversations").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count archived conversations: %w", err)
	}

	if limit <= 0 {
		limit = -1
	}
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, persona_id, persona_name, started_at, last_activity, final_score, final_tier, message_count, reason, archived_at
		FROM archived_conversations
		ORDER BY archived_at DESC, id
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query archived conversations: %w", err)
	}
	defer rows.Close()

	summaries := []*ArchivedSummary{}
	for rows.Next() {
		var s ArchivedSummary
		var tier string
		err := rows.Scan(&s.ID, &s.PersonaID, &s.PersonaName, &s.StartedAt, &s.LastActivity,
			&s.FinalScore, &tier, &s.MessageCount, &s.Reason, &s.ArchivedAt)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan archived conversation: %w", err)
		}
		s.FinalTier = types.Tier(tier)
		summaries = append(summaries, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return summaries, total, nil
}

// GetArchived loads one archived conversation with its transcript and history
func (d *Database) GetArchived(ctx context.Context, id string) (*ArchivedConversation, error) {
	c := &conversation.Conversation{ID: id}
	out := &ArchivedConversation{Conversation: c}

	var tier string
	err := d.db.QueryRowContext(ctx, `
		SELECT persona_id, persona_name, started_at, last_activity, final_score, final_tier, reason, archived_at
		FROM archived_conversations WHERE id = ?`, id,
	).Scan(&c.PersonaID, &c.PersonaName, &c.StartedAt, &c.LastActivity, &c.Rapport.Score, &tier, &out.Reason, &out.ArchivedAt)
	if err == sql.ErrNoRows {
		return nil, &types.NotFoundError{Kind: "archived conversation", ID: id}
	} else if err != nil {
		return nil, fmt.Errorf("failed to get archived conversation: %w", err)
	}
	c.Rapport.Tier = types.Tier(tier)

	if c.Transcript, err = d.archivedTurns(ctx, id); err != nil {
		return nil, err
	}
	if c.Rapport.History, err = d.archivedEvents(ctx, id); err != nil {
		return nil, err
	}
	return out, nil
}

func (d *Database) archivedTurns(ctx context.Context, id string) ([]conversation.Turn, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT role, content, created_at, event_sequence
		FROM archived_turns WHERE conversation_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query archived turns: %w", err)
	}
	defer rows.Close()

	turns := []conversation.Turn{}
	for rows.Next() {
		var t conversation.Turn
		var role string
		if err := rows.Scan(&role, &t.Content, &t.Time, &t.EventSequence); err != nil {
			return nil, fmt.Errorf("failed to scan archived turn: %w", err)
		}
		t.Role = types.Role(role)
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

func (d *Database) archivedEvents(ctx context.Context, id string) ([]rapport.Event, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT sequence, occurred_at, score_before, score_after, raw_delta, delta, tier_after, signals, explanation
		FROM archived_events WHERE conversation_id = ? ORDER BY sequence`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query archived events: %w", err)
	}
	defer rows.Close()

	events := []rapport.Event{}
	for rows.Next() {
		var ev rapport.Event
		var tier, signals string
		err := rows.Scan(&ev.Sequence, &ev.Timestamp, &ev.ScoreBefore, &ev.ScoreAfter,
			&ev.RawDelta, &ev.Delta, &tier, &signals, &ev.Explanation)
		if err != nil {
			return nil, fmt.Errorf("failed to scan archived event: %w", err)
		}
		ev.TierAfter = types.Tier(tier)
		if err := json.Unmarshal([]byte(signals), &ev.Signals); err != nil {
			return nil, fmt.Errorf("failed to decode signals for event %d: %w", ev.Sequence, err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// DeleteArchivedBefore removes conversations archived before cutoff and
// returns how many were removed
func (d *Database) DeleteArchivedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := d.db.ExecContext(ctx, "DELETE FROM archived_conversations WHERE archived_at < ?", cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge archive: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	logging.LogDatabaseEvent("purge", "archived_conversations", map[string]interface{}{"count": n})
	return n, nil
}
