package store

import (
	"context"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
)

// Entries are hashes with a "data" field and an "at" field holding the
// fetch time in unix microseconds. Tombstones carry only "at".

// putScript writes data unless the stored entry is newer.
var putScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'at')
if cur and tonumber(cur) > tonumber(ARGV[2]) then
	return 0
end
redis.call('HSET', KEYS[1], 'data', ARGV[1], 'at', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

// deleteScript replaces the entry with a tombstone unless it is newer.
var deleteScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'at')
if cur and tonumber(cur) > tonumber(ARGV[1]) then
	return 0
end
redis.call('HDEL', KEYS[1], 'data')
redis.call('HSET', KEYS[1], 'at', ARGV[1])
redis.call('PEXPIRE', KEYS[1], ARGV[2])
return 1
`)

// Redis is a Store shared by all service instances.
type Redis struct {
	client    redis.UniversalClient
	retention time.Duration
}

// NewRedis creates a Redis-backed store. A zero retention uses
// DefaultRetention.
func NewRedis(client redis.UniversalClient, retention time.Duration) *Redis {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Redis{client: client, retention: retention}
}

var _ Store = (*Redis)(nil)

func (r *Redis) Get(ctx context.Context, key Key) (Entry, error) {
	vals, err := r.client.HMGet(ctx, key.String(), "data", "at").Result()
	if err != nil {
		return Entry{}, errors.Wrap(err, "redis hmget")
	}
	data, ok := vals[0].(string)
	if !ok {
		return Entry{}, ErrNotFound
	}
	rawAt, _ := vals[1].(string)
	at, err := strconv.ParseInt(rawAt, 10, 64)
	if err != nil {
		return Entry{}, errors.Wrapf(err, "parse fetch time of %s", key)
	}
	return Entry{Data: []byte(data), FetchedAt: time.UnixMicro(at)}, nil
}

func (r *Redis) Put(ctx context.Context, key Key, e Entry) error {
	written, err := putScript.Run(ctx, r.client,
		[]string{key.String()},
		e.Data, e.FetchedAt.UnixMicro(), r.retention.Milliseconds(),
	).Int()
	if err != nil {
		return errors.Wrap(err, "redis put")
	}
	if written == 0 {
		return ErrStale
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, key Key, at time.Time) error {
	if err := deleteScript.Run(ctx, r.client,
		[]string{key.String()},
		at.UnixMicro(), r.retention.Milliseconds(),
	).Err(); err != nil {
		return errors.Wrap(err, "redis delete")
	}
	return nil
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
