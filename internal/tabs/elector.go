package tabs

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/abelbrown/vinewatch/internal/logging"
	"github.com/abelbrown/vinewatch/internal/model"
)

const keyPrefix = "vinewatch:"

// DefaultLeaseTTL is the master lease lifetime. The holder renews it every
// TTL/3; a master that stops renewing loses the role after at most one TTL.
const DefaultLeaseTTL = 9 * time.Second

// renewScript extends the lease only if this process still holds it.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// releaseScript deletes the lease only if this process holds it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisElector elects a master through a lease key with a TTL.
type RedisElector struct {
	rdb      *redis.Client
	key      string
	id       string
	ttl      time.Duration
	interval time.Duration
}

// LeaseKey returns the lease key for session.
func LeaseKey(session string) string {
	return keyPrefix + session + ":master"
}

// NewRedisElector creates an elector for tab id within session.
func NewRedisElector(rdb *redis.Client, session, id string, ttl time.Duration) *RedisElector {
	if ttl <= 0 {
		ttl = DefaultLeaseTTL
	}
	return &RedisElector{
		rdb:      rdb,
		key:      LeaseKey(session),
		id:       id,
		ttl:      ttl,
		interval: ttl / 3,
	}
}

// Run implements Elector. Slaves re-campaign every interval, so an expired
// lease is taken over by the first process to notice.
func (e *RedisElector) Run(ctx context.Context, report func(model.Role)) error {
	if err := e.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: ping: %v", ErrNoPeers, err)
	}
	defer e.release()

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	role := model.RoleUndetermined
	for {
		next, err := e.campaign(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			// Keep the current role; the next tick retries.
			logging.Warn("election round failed", "tab", e.id, "error", err)
		} else if next != role {
			role = next
			report(role)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// campaign renews the lease if held, otherwise tries to acquire it.
func (e *RedisElector) campaign(ctx context.Context) (model.Role, error) {
	ms := e.ttl.Milliseconds()
	renewed, err := renewScript.Run(ctx, e.rdb, []string{e.key}, e.id, ms).Int()
	if err != nil {
		return model.RoleUndetermined, fmt.Errorf("renew lease: %w", err)
	}
	if renewed == 1 {
		return model.RoleMaster, nil
	}

	ok, err := e.rdb.SetNX(ctx, e.key, e.id, e.ttl).Result()
	if err != nil {
		return model.RoleUndetermined, fmt.Errorf("acquire lease: %w", err)
	}
	if ok {
		return model.RoleMaster, nil
	}
	return model.RoleSlave, nil
}

func (e *RedisElector) release() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := releaseScript.Run(ctx, e.rdb, []string{e.key}, e.id).Err(); err != nil {
		logging.Warn("release lease", "tab", e.id, "error", err)
	}
}
