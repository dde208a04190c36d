package service

import (
	"context"
	"hash/fnv"
	"sync"

	"piiguard/pkg/domain"
	dErrors "piiguard/pkg/domain-errors"
)

// numSessionShards spreads per-session critical sections over a fixed set of
// mutexes. Two sessions may share a shard; one session always maps to the
// same shard, so check-expiry-then-act sequences never interleave.
const numSessionShards = 256

type sessionLocks struct {
	shards [numSessionShards]sync.Mutex
}

// run executes fn while holding the shard lock for sessionID.
func (l *sessionLocks) run(ctx context.Context, sessionID domain.SessionID, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "operation aborted: context cancelled")
	}

	shard := &l.shards[hashSession(sessionID.String())%numSessionShards]
	shard.Lock()
	defer shard.Unlock()

	// Check again after acquiring lock
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "operation aborted: context cancelled")
	}
	return fn()
}

func hashSession(s string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return h.Sum32()
}
