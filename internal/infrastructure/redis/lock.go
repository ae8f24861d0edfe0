package redis

import (
	"context"
	"fmt"
	"time"

	domainErrors "github.com/cassiomorais/cardgateway/internal/domain/errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// Lua script for safe lock release (only owner can release)
	releaseLockScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`)

	// Lua script for lock extension
	extendLockScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("pexpire", KEYS[1], ARGV[2])
		else
			return 0
		end
	`)
)

// DistributedLock is a single-owner lock on one key.
type DistributedLock struct {
	client   redis.UniversalClient
	key      string
	token    string
	ttl      time.Duration
	acquired bool
}

func NewDistributedLock(client redis.UniversalClient, key string, ttl time.Duration) *DistributedLock {
	return &DistributedLock{
		client: client,
		key:    "lock:" + key,
		token:  uuid.NewString(),
		ttl:    ttl,
	}
}

// Acquire tries once; it does not wait for the current holder.
func (l *DistributedLock) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock %s: %w", l.key, err)
	}
	l.acquired = ok
	return ok, nil
}

func (l *DistributedLock) Extend(ctx context.Context, ttl time.Duration) error {
	if !l.acquired {
		return domainErrors.ErrLockNotHeld
	}
	return l.runOwned(ctx, extendLockScript, ttl.Milliseconds())
}

func (l *DistributedLock) Release(ctx context.Context) error {
	if !l.acquired {
		return nil
	}
	if err := l.runOwned(ctx, releaseLockScript); err != nil {
		return err
	}
	l.acquired = false
	return nil
}

func (l *DistributedLock) runOwned(ctx context.Context, script *redis.Script, args ...any) error {
	result, err := script.Run(ctx, l.client, []string{l.key}, append([]any{l.token}, args...)...).Int64()
	if err != nil {
		return fmt.Errorf("lock %s: %w", l.key, err)
	}
	if result == 0 {
		return fmt.Errorf("lock %s: %w", l.key, domainErrors.ErrLockNotHeld)
	}
	return nil
}

// ReferenceLocker serializes work on one merchant reference across
// processes.
type ReferenceLocker struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewReferenceLocker(client redis.UniversalClient, ttl time.Duration) *ReferenceLocker {
	return &ReferenceLocker{client: client, ttl: ttl}
}

// Lock fails with ErrLockAcquisitionFailed when another holder owns the
// reference.
func (r *ReferenceLocker) Lock(ctx context.Context, reference string) (func(context.Context) error, error) {
	lock := NewDistributedLock(r.client, "payment:"+reference, r.ttl)
	ok, err := lock.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("reference %s: %w", reference, domainErrors.ErrLockAcquisitionFailed)
	}
	return lock.Release, nil
}
