package locker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	dErrors "marquee/pkg/domain-errors"
)

const (
	lockKeyPrefix   = "marquee:payout:lock:"
	defaultLockTTL  = 2 * time.Minute
	acquirePollWait = 100 * time.Millisecond
)

// unlockScript releases the lock only if we still own it, so an expired lock
// taken over by another instance is never released out from under it.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker serializes per-recipient disbursement across instances using a
// SET NX lease. The TTL bounds how long a crashed holder can block a
// recipient; it comfortably exceeds the payout request timeout.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedis(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client, ttl: defaultLockTTL}
}

func (l *RedisLocker) Lock(ctx context.Context, recipient string) (func(), error) {
	key := lockKeyPrefix + recipient
	owner := uuid.NewString()

	for {
		ok, err := l.client.SetNX(ctx, key, owner, l.ttl).Result()
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "recipient lock acquisition failed")
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(acquirePollWait):
		}
	}

	unlock := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, _ = unlockScript.Run(ctx, l.client, []string{key}, owner).Result()
	}
	return unlock, nil
}
