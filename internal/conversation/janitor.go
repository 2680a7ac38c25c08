package conversation

import (
	"context"
	"time"

	"github.com/neo/rapport_backend/internal/logging"
	"github.com/neo/rapport_backend/internal/types"
)

// EvictIdle removes conversations idle longer than the retention window.
// Each eviction takes the conversation lock, so it waits for an in-flight
// message and then re-checks idleness.
func (m *Manager) EvictIdle(ctx context.Context) (int, error) {
	if m.cfg.Retention <= 0 {
		return 0, nil
	}

	all, err := m.store.List(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := m.now().Add(-m.cfg.Retention)
	evicted := 0
	for _, c := range all {
		if !idleSince(c, cutoff) {
			continue
		}
		ok, err := m.evictIfIdle(ctx, c.ID)
		if err != nil {
			return evicted, err
		}
		if ok {
			evicted++
		}
	}
	return evicted, nil
}

func (m *Manager) evictIfIdle(ctx context.Context, id string) (bool, error) {
	unlock, err := m.locks.Lock(ctx, id)
	if err != nil {
		return false, err
	}
	defer unlock()

	c, err := m.store.Get(ctx, id)
	if types.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !idleSince(c, m.now().Add(-m.cfg.Retention)) {
		return false, nil
	}
	return true, m.remove(ctx, c, ReasonEvicted)
}

// RunJanitor evicts idle conversations every interval until ctx is done
func (m *Manager) RunJanitor(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logging.Info("Conversation janitor started", map[string]interface{}{
		"interval":  interval,
		"retention": m.cfg.Retention,
	})

	for {
		select {
		case <-ctx.Done():
			logging.Info("Conversation janitor stopped")
			return nil
		case <-ticker.C:
			n, err := m.EvictIdle(ctx)
			if err != nil && ctx.Err() == nil {
				logging.Error("Failed to evict idle conversations", map[string]interface{}{"error": err})
				continue
			}
			if n > 0 {
				logging.Info("Evicted idle conversations", map[string]interface{}{"count": n})
			}
		}
	}
}
