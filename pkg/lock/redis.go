package lock

import (
	"context"
	"sync"
	"time"

	"github.com/garyburd/redigo/redis"
	"github.com/gofrs/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	keyPrefix     = "scanmesh:lock:"
	retryInterval = 50 * time.Millisecond
	defaultTTL    = time.Minute
)

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(1, `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// extendScript pushes the expiry forward only if the key still holds our token.
var extendScript = redis.NewScript(1, `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Redis is a Locker backed by SET NX PX on a shared Redis server. While a
// lock is held its TTL is refreshed every third of the TTL, so a crashed
// holder loses the lock within one TTL but a slow one keeps it.
type Redis struct {
	pool *redis.Pool
	ttl  time.Duration
}

// NewRedisPool creates a connection pool for address.
func NewRedisPool(address string, maxConnections int) *redis.Pool {
	return redis.NewPool(func() (redis.Conn, error) {
		c, err := redis.Dial("tcp", address)
		if err != nil {
			return nil, err
		}
		return c, err
	}, maxConnections)
}

// NewRedis creates a locker on pool with the given lock TTL. A TTL below
// 3ms is replaced by one minute.
func NewRedis(pool *redis.Pool, ttl time.Duration) *Redis {
	if ttl < 3*time.Millisecond {
		ttl = defaultTTL
	}
	return &Redis{pool: pool, ttl: ttl}
}

// Ping checks that the server is reachable.
func (r *Redis) Ping() error {
	conn := r.pool.Get()
	defer conn.Close()
	_, err := conn.Do("PING")
	return err
}

// Lock polls until key is acquired or ctx is done.
func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	token := uuid.Must(uuid.NewV4()).String()
	name := keyPrefix + key

	for {
		ok, err := r.tryLock(name, token)
		if err != nil {
			return nil, errors.Wrapf(err, "lock %s", key)
		}
		if ok {
			break
		}
		select {
		case <-time.After(retryInterval):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go r.refresh(name, token, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done

			conn := r.pool.Get()
			defer conn.Close()
			if _, err := releaseScript.Do(conn, name, token); err != nil {
				log.Warnf("[Lock] Couldn't release %s: %v", key, err)
			}
		})
	}, nil
}

// refresh extends the lock until stop is closed or the key is lost.
func (r *Redis) refresh(name, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(r.ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		conn := r.pool.Get()
		n, err := redis.Int(extendScript.Do(conn, name, token, r.ttl.Milliseconds()))
		conn.Close()
		if err != nil {
			log.Warnf("[Lock] Couldn't extend %s: %v", name, err)
			continue
		}
		if n == 0 {
			log.Warnf("[Lock] Lost %s before release", name)
			return
		}
	}
}

func (r *Redis) tryLock(name, token string) (bool, error) {
	conn := r.pool.Get()
	defer conn.Close()

	_, err := redis.String(conn.Do("SET", name, token, "NX", "PX", r.ttl.Milliseconds()))
	if err == redis.ErrNil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
