package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sethvargo/go-retry"

	"github.com/neo/rapport_backend/internal/logging"
	"github.com/neo/rapport_backend/internal/types"
)

const (
	conversationKeyPrefix = "rapport:conversation:"
	lockKeyPrefix         = "rapport:lock:"

	updateAttempts = 5
)

// OpenRedis parses a redis:// URL and checks the connection
func OpenRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}
	logging.Info("Connected to redis", map[string]interface{}{"addr": opts.Addr, "db": opts.DB})
	return client, nil
}

// RedisStore keeps conversations as JSON values so several server
// processes can share them. The key TTL is a safety net behind the janitor.
type RedisStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a store. ttl of zero disables key expiry.
func NewRedisStore(client redis.UniversalClient, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func conversationKey(id string) string {
	return conversationKeyPrefix + id
}

// Get loads a conversation or returns a NotFoundError
func (s *RedisStore) Get(ctx context.Context, id string) (*Conversation, error) {
	return s.load(ctx, s.client, id)
}

func (s *RedisStore) load(ctx context.Context, cmd redis.Cmdable, id string) (*Conversation, error) {
	data, err := cmd.Get(ctx, conversationKey(id)).Bytes()
	if err == redis.Nil {
		return nil, &types.NotFoundError{Kind: "conversation", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation %s: %w", id, err)
	}

	var c Conversation
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to decode conversation %s: %w", id, err)
	}
	return &c, nil
}

// Set writes a conversation and refreshes its TTL
func (s *RedisStore) Set(ctx context.Context, c *Conversation) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode conversation %s: %w", c.ID, err)
	}
	if err := s.client.Set(ctx, conversationKey(c.ID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save conversation %s: %w", c.ID, err)
	}
	return nil
}

// Update runs fn inside a WATCH transaction on the conversation key and
// retries a few times when another writer commits first
func (s *RedisStore) Update(ctx context.Context, id string, fn UpdateFunc) (*Conversation, error) {
	key := conversationKey(id)
	var out *Conversation

	txf := func(tx *redis.Tx) error {
		c, err := s.load(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := fn(c); err != nil {
			return err
		}
		data, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("failed to encode conversation %s: %w", id, err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			return nil
		})
		if err != nil {
			return err
		}
		out = c
		return nil
	}

	backoff := retry.WithMaxRetries(updateAttempts, retry.NewConstant(10*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			return retry.RetryableError(err)
		}
		return err
	})
	if errors.Is(err, redis.TxFailedErr) {
		return nil, fmt.Errorf("failed to update conversation %s: %w", id, ErrConversationChanged)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes a conversation
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, conversationKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete conversation %s: %w", id, err)
	}
	return nil
}

// List scans all conversation keys, newest first
func (s *RedisStore) List(ctx context.Context) ([]*Conversation, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, conversationKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan conversations: %w", err)
	}

	out := make([]*Conversation, 0, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load conversations: %w", err)
	}
	for i, v := range values {
		// Expired or deleted between SCAN and MGET
		str, ok := v.(string)
		if !ok {
			continue
		}
		var c Conversation
		if err := json.Unmarshal([]byte(str), &c); err != nil {
			logging.Warn("Skipping undecodable conversation", map[string]interface{}{
				"key":   keys[i],
				"error": err,
			})
			continue
		}
		out = append(out, &c)
	}

	sortNewestFirst(out)
	return out, nil
}

var errLockHeld = errors.New("lock held")

var unlockScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

var extendScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLocker serializes conversation writers across processes. The lock
// expires after ttl so a crashed holder cannot block a conversation forever;
// a live holder extends it every ttl/3 until it unlocks.
type RedisLocker struct {
	client redis.UniversalClient
	ttl    time.Duration
	poll   time.Duration
}

var _ Locker = (*RedisLocker)(nil)

// NewRedisLocker creates a locker
func NewRedisLocker(client redis.UniversalClient, ttl, poll time.Duration) *RedisLocker {
	if poll <= 0 {
		poll = 25 * time.Millisecond
	}
	return &RedisLocker{client: client, ttl: ttl, poll: poll}
}

// Lock polls until the lock is taken or ctx is done
func (l *RedisLocker) Lock(ctx context.Context, id string) (func(), error) {
	key := lockKeyPrefix + id
	token := uuid.NewString()

	err := retry.Do(ctx, retry.NewConstant(l.poll), func(ctx context.Context) error {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return err
		}
		if !ok {
			return retry.RetryableError(errLockHeld)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to lock conversation %s: %w", id, err)
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go l.keepAlive(id, key, token, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := unlockScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
				logging.Warn("Failed to release conversation lock", map[string]interface{}{
					"conversation_id": id,
					"error":           err,
				})
			}
		})
	}, nil
}

func (l *RedisLocker) keepAlive(id, key, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	interval := l.ttl / 3
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			held, err := extendScript.Run(ctx, l.client, []string{key}, token, l.ttl.Milliseconds()).Int()
			cancel()
			if err != nil {
				logging.Warn("Failed to extend conversation lock", map[string]interface{}{
					"conversation_id": id,
					"error":           err,
				})
				continue
			}
			if held == 0 {
				logging.Warn("Conversation lock lost", map[string]interface{}{"conversation_id": id})
				return
			}
		}
	}
}
