package redisstore

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const lockPrefix = "tutor:lock:conversation:"

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type Store struct {
	rdb *redis.Client

	// LockTTL bounds how long a crashed holder blocks a conversation.
	LockTTL time.Duration
	// LockPoll is the wait between acquisition attempts.
	LockPoll time.Duration
}

func New(addr, password string, db int) *Store {
	return NewFromClient(redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	}))
}

func NewFromClient(rdb *redis.Client) *Store {
	return &Store{rdb: rdb, LockTTL: 10 * time.Minute, LockPoll: 50 * time.Millisecond}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.rdb.Close()
}

// Lock takes a per-conversation lock shared by every server and worker
// process. The returned unlock only deletes the key while it still holds
// this holder's token.
func (s *Store) Lock(ctx context.Context, key string) (func(), error) {
	k := lockPrefix + key
	token := uuid.NewString()

	for {
		ok, err := s.rdb.SetNX(ctx, k, token, s.LockTTL).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			break
		}

		t := time.NewTimer(s.LockPoll)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}

	released := false
	return func() {
		if released {
			return
		}
		released = true
		rctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		// on failure the TTL frees the key
		_ = releaseScript.Run(rctx, s.rdb, []string{k}, token).Err()
	}, nil
}
