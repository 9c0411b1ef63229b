package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	mem "fieldpay/pkg/memcache"
	"fieldpay/pkg/utils"
)

// AccountLocker serializes work on one account across requests. Lock blocks
// until the lease is taken, ctx is done, or the wait exceeds the lease TTL.
type AccountLocker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

const lockPollInterval = 50 * time.Millisecond

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`)

type redisAccountLocker struct {
	client *redis.Client
	ttl    time.Duration
	log    zerolog.Logger
}

type memoryAccountLocker struct {
	leases mem.LeaseStore
	ttl    time.Duration
	log    zerolog.Logger
}

// NewAccountLocker uses redis when a client is configured and the in-process
// lease store otherwise.
func NewAccountLocker(client *redis.Client, leases mem.LeaseStore, ttl time.Duration, log zerolog.Logger) AccountLocker {
	if ttl <= 0 {
		ttl = 15 * time.Second
	}
	if client != nil {
		return &redisAccountLocker{client: client, ttl: ttl, log: log}
	}
	return &memoryAccountLocker{leases: leases, ttl: ttl, log: log}
}

func (l *redisAccountLocker) Lock(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	err := waitForLease(ctx, l.ttl, func() (bool, error) {
		return l.client.SetNX(ctx, key, token, l.ttl).Result()
	})
	if err != nil {
		return nil, err
	}
	return func() {
		if err := releaseScript.Run(context.Background(), l.client, []string{key}, token).Err(); err != nil {
			l.log.Warn().Err(err).Str("key", key).Msg("release account lock")
		}
	}, nil
}

func (l *memoryAccountLocker) Lock(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	err := waitForLease(ctx, l.ttl, func() (bool, error) {
		return l.leases.TryAcquire(key, token, l.ttl), nil
	})
	if err != nil {
		if holder, held := l.leases.Holder(key); held && errors.Is(err, utils.ErrConflict) {
			l.log.Warn().Str("key", key).Str("holder", holder).Msg("account lock still held")
		}
		return nil, err
	}
	return func() { l.leases.Release(key, token) }, nil
}

func waitForLease(ctx context.Context, maxWait time.Duration, try func() (bool, error)) error {
	deadline := time.Now().Add(maxWait)
	ticker := time.NewTicker(lockPollInterval)
	defer ticker.Stop()

	for {
		ok, err := try()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return utils.NewConflict("another request is already setting up this customer, try again")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
