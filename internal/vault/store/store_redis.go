package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"piiguard/internal/vault/models"
	"piiguard/pkg/domain"
	"piiguard/pkg/platform/sentinel"
)

const (
	entryKeyPrefix = "piiguard:vault:entry:"
	logKeyPrefix   = "piiguard:vault:log:"
	scanBatch      = 200
)

// RedisStore keeps entries in Redis so every node shares one authoritative
// store. Entry and access-log keys carry an absolute expiry equal to the
// entry's ExpiresAt, so Redis drops dead entries even if no node sweeps.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore constructs a Redis-backed secure store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func entryKey(id domain.SessionID) string { return entryKeyPrefix + id.String() }
func logKey(id domain.SessionID) string   { return logKeyPrefix + id.String() }

// createScript writes the entry only if it is absent and seeds its access
// log in the same atomic step, so a failed seed never leaves an orphan entry.
// KEYS: entry, log. ARGV: payload, expiry in unix ms, then the log events.
var createScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
redis.call('DEL', KEYS[2])
if #ARGV > 2 then
	redis.call('RPUSH', KEYS[2], unpack(ARGV, 3))
	redis.call('PEXPIREAT', KEYS[2], ARGV[2])
end
redis.call('SET', KEYS[1], ARGV[1])
redis.call('PEXPIREAT', KEYS[1], ARGV[2])
return 1
`)

// Create writes the entry and its access log, failing with ErrConflict if the
// session already has an entry.
func (s *RedisStore) Create(ctx context.Context, entry *models.Entry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal vault entry: %w", err)
	}
	args := make([]any, 0, 2+len(entry.AccessLog))
	args = append(args, payload, entry.ExpiresAt.UnixMilli())
	for _, ev := range entry.AccessLog {
		b, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("marshal access event: %w", err)
		}
		args = append(args, b)
	}

	created, err := createScript.Run(ctx, s.client,
		[]string{entryKey(entry.SessionID), logKey(entry.SessionID)}, args...).Int()
	if err != nil {
		return fmt.Errorf("create vault entry: %w", err)
	}
	if created == 0 {
		return sentinel.ErrConflict
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, sessionID domain.SessionID) (*models.Entry, error) {
	entry, err := s.getEntry(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	raw, err := s.client.LRange(ctx, logKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read access log: %w", err)
	}
	for _, r := range raw {
		var ev models.AccessEvent
		if err := json.Unmarshal([]byte(r), &ev); err != nil {
			return nil, fmt.Errorf("decode access event: %w", err)
		}
		entry.AccessLog = append(entry.AccessLog, ev)
	}
	return entry, nil
}

func (s *RedisStore) getEntry(ctx context.Context, sessionID domain.SessionID) (*models.Entry, error) {
	raw, err := s.client.Get(ctx, entryKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read vault entry: %w", err)
	}
	var entry models.Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("decode vault entry: %w", err)
	}
	return &entry, nil
}

func (s *RedisStore) AppendEvent(ctx context.Context, sessionID domain.SessionID, event models.AccessEvent) error {
	entry, err := s.getEntry(ctx, sessionID)
	if err != nil {
		return err
	}
	b, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal access event: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, logKey(sessionID), b)
		pipe.ExpireAt(ctx, logKey(sessionID), entry.ExpiresAt)
		return nil
	})
	if err != nil {
		return fmt.Errorf("append access event: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, sessionID domain.SessionID) error {
	var deleted *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		deleted = pipe.Del(ctx, entryKey(sessionID))
		pipe.Del(ctx, logKey(sessionID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete vault entry: %w", err)
	}
	if deleted.Val() == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// ListExpired scans entry keys and returns those whose ExpiresAt is before
// now. Redis normally drops them first; this catches clock skew between nodes.
func (s *RedisStore) ListExpired(ctx context.Context, now time.Time) ([]domain.SessionID, error) {
	var expired []domain.SessionID
	iter := s.client.Scan(ctx, 0, entryKeyPrefix+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		id := domain.SessionID(strings.TrimPrefix(iter.Val(), entryKeyPrefix))
		entry, err := s.getEntry(ctx, id)
		if errors.Is(err, sentinel.ErrNotFound) {
			continue
		}
		if err != nil {
			return expired, err
		}
		if entry.IsExpired(now) {
			expired = append(expired, id)
		}
	}
	if err := iter.Err(); err != nil {
		return expired, fmt.Errorf("scan vault entries: %w", err)
	}
	return expired, nil
}

// Health pings Redis.
func (s *RedisStore) Health(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
