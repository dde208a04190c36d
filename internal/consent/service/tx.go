package service

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"piiguard/pkg/domain"
	dErrors "piiguard/pkg/domain-errors"
)

// ConsentStoreTx provides a transactional boundary for consent store mutations.
// Implementations may wrap a database transaction or, in memory, a lock.
type ConsentStoreTx interface {
	RunInTx(ctx context.Context, fn func(store Store) error) error
}

const numConsentShards = 128

// DefaultConsentTxTimeout bounds one consent transaction.
const DefaultConsentTxTimeout = 5 * time.Second

// shardedConsentTx serialises mutations per session using sharded mutexes.
type shardedConsentTx struct {
	shards  [numConsentShards]sync.Mutex
	store   Store
	timeout time.Duration
}

// NewInMemoryTx wraps store with per-session locking.
func NewInMemoryTx(store Store) ConsentStoreTx {
	return &shardedConsentTx{store: store, timeout: DefaultConsentTxTimeout}
}

func (t *shardedConsentTx) RunInTx(ctx context.Context, fn func(store Store) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	shard := t.selectShard(ctx)
	t.shards[shard].Lock()
	defer t.shards[shard].Unlock()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	return fn(t.store)
}

// selectShard picks a shard from the session in ctx, or shard 0.
func (t *shardedConsentTx) selectShard(ctx context.Context) int {
	if id, ok := ctx.Value(txSessionKeyCtx).(domain.SessionID); ok && !id.IsZero() {
		h := fnv.New32a()
		_, _ = h.Write([]byte(id.String()))
		return int(h.Sum32() % numConsentShards)
	}
	return 0
}

type txSessionKey struct{}

var txSessionKeyCtx = txSessionKey{}

// withTxSession tags ctx with the session a transaction touches.
func withTxSession(ctx context.Context, id domain.SessionID) context.Context {
	return context.WithValue(ctx, txSessionKeyCtx, id)
}
