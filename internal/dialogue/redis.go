package dialogue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/tuitionchat/tuition-chat-go/internal/config"
	apperrors "github.com/tuitionchat/tuition-chat-go/internal/errors"
	"github.com/tuitionchat/tuition-chat-go/internal/logger"
)

// ErrStateBusy is returned when the session lock cannot be taken before
// the context deadline.
var ErrStateBusy = apperrors.ErrStateBusy

// releaseScript deletes the lock only if we still own it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisOptions tunes a RedisStore. Zero values use the defaults.
type RedisOptions struct {
	// TTL expires idle sessions. It is refreshed on every write.
	TTL time.Duration
	// LockTTL bounds how long a crashed holder can block a session.
	LockTTL time.Duration
	// RetryInterval is the pause between lock attempts.
	RetryInterval time.Duration
	Logger        *logger.Logger
}

// RedisStore shares dialogue state between replicas.
type RedisStore struct {
	rdb     redis.Cmdable
	ttl     time.Duration
	lockTTL time.Duration
	retry   time.Duration
	logger  *logger.Logger
}

// NewRedisStore creates a RedisStore on rdb. The caller owns rdb.
func NewRedisStore(rdb redis.Cmdable, opts RedisOptions) *RedisStore {
	if opts.LockTTL <= 0 {
		opts.LockTTL = config.SessionLockTTL
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = config.SessionLockRetry
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	return &RedisStore{
		rdb:     rdb,
		ttl:     opts.TTL,
		lockTTL: opts.LockTTL,
		retry:   opts.RetryInterval,
		logger:  opts.Logger.WithModule("dialogue"),
	}
}

func stateKey(sessionID string) string {
	return fmt.Sprintf("dialogue:%s:state", sessionID)
}

func lockKey(sessionID string) string {
	return fmt.Sprintf("dialogue:%s:lock", sessionID)
}

// Update implements Store.
func (s *RedisStore) Update(ctx context.Context, sessionID string, fn func(*State) error) error {
	token, err := s.acquire(ctx, sessionID)
	if err != nil {
		return err
	}
	defer s.release(ctx, sessionID, token)

	st, err := s.load(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := fn(&st); err != nil {
		return err
	}
	return s.save(ctx, sessionID, st)
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.rdb.Del(ctx, stateKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("delete dialogue state: %w", err)
	}
	return nil
}

// Close is a no-op; the Redis client is closed by its owner.
func (s *RedisStore) Close() error { return nil }

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *RedisStore) acquire(ctx context.Context, sessionID string) (string, error) {
	token := uuid.NewString()
	key := lockKey(sessionID)

	// Without a caller deadline, waiting longer than the lock TTL is pointless.
	waitCtx, cancel := context.WithTimeout(ctx, s.lockTTL)
	defer cancel()

	for {
		ok, err := s.rdb.SetNX(waitCtx, key, token, s.lockTTL).Result()
		if err == nil && ok {
			return token, nil
		}
		if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
			return "", fmt.Errorf("acquire dialogue lock: %w", err)
		}

		select {
		case <-waitCtx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return "", ctx.Err()
			}
			return "", fmt.Errorf("session %s: %w", sessionID, ErrStateBusy)
		case <-time.After(s.retry):
		}
	}
}

func (s *RedisStore) release(ctx context.Context, sessionID, token string) {
	ctx = context.WithoutCancel(ctx)
	if err := releaseScript.Run(ctx, s.rdb, []string{lockKey(sessionID)}, token).Err(); err != nil {
		s.logger.WithError(err).WarnContext(ctx, "failed to release dialogue lock", "session_id", sessionID)
	}
}

func (s *RedisStore) load(ctx context.Context, sessionID string) (State, error) {
	raw, err := s.rdb.Get(ctx, stateKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return State{}, nil
	}
	if err != nil {
		return State{}, fmt.Errorf("load dialogue state: %w", err)
	}

	var st State
	if err := json.Unmarshal(raw, &st); err != nil {
		// A corrupt entry must not wedge the session.
		s.logger.WithError(err).WarnContext(ctx, "discarding unreadable dialogue state", "session_id", sessionID)
		return State{}, nil
	}
	return st, nil
}

func (s *RedisStore) save(ctx context.Context, sessionID string, st State) error {
	key := stateKey(sessionID)
	if st.IsZero() {
		if err := s.rdb.Del(ctx, key).Err(); err != nil {
			return fmt.Errorf("clear dialogue state: %w", err)
		}
		return nil
	}

	b, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal dialogue state: %w", err)
	}
	if err := s.rdb.Set(ctx, key, b, s.ttl).Err(); err != nil {
		return fmt.Errorf("save dialogue state: %w", err)
	}
	return nil
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*RedisStore)(nil)
)
