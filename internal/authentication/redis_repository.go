package authentication

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "refresh:"

// upsertScript writes the user -> hash and hash -> user keys and drops the reverse key of
// the superseded token. With ARGV[5] == "1" it refuses to create a missing record.
const upsertScript = `
local old = redis.call("GET", KEYS[1])
if ARGV[5] == "1" and not old then
  return 0
end
if old then
  redis.call("DEL", ARGV[3] .. old)
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
redis.call("SET", ARGV[3] .. ARGV[1], ARGV[4], "PX", ARGV[2])
return 1
`

const removeScript = `
local uid = redis.call("GET", KEYS[1])
if not uid then
  return 0
end
redis.call("DEL", KEYS[1])
local user_key = ARGV[1] .. uid
if redis.call("GET", user_key) == ARGV[2] then
  redis.call("DEL", user_key)
end
return 1
`

var (
	upsertLua = redis.NewScript(upsertScript)
	removeLua = redis.NewScript(removeScript)
)

type redisRecordRepository struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisRecordRepository stores refresh tokens in redis with a key TTL equal to the
// token expiry, so expired records disappear on their own.
func NewRedisRecordRepository(client redis.UniversalClient, prefix string) RecordRepository {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &redisRecordRepository{client: client, prefix: prefix}
}

func (r *redisRecordRepository) userPrefix() string  { return r.prefix + "user:" }
func (r *redisRecordRepository) tokenPrefix() string { return r.prefix + "token:" }

func (r *redisRecordRepository) userKey(userID uint) string {
	return r.userPrefix() + strconv.FormatUint(uint64(userID), 10)
}

func (r *redisRecordRepository) Store(ctx context.Context, userID uint, tokenHash string, expiresAt time.Time) error {
	_, err := r.upsert(ctx, userID, tokenHash, expiresAt, false)
	if err != nil {
		return fmt.Errorf("%w: store: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (r *redisRecordRepository) Find(ctx context.Context, userID uint, tokenHash string) (*RefreshTokenRecord, error) {
	key := r.userKey(userID)
	var (
		getCmd  *redis.StringCmd
		pttlCmd *redis.DurationCmd
	)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		getCmd = pipe.Get(ctx, key)
		pttlCmd = pipe.PTTL(ctx, key)
		return nil
	})
	if errors.Is(err, redis.Nil) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: find: %v", ErrStoreUnavailable, err)
	}

	stored := getCmd.Val()
	if stored != tokenHash {
		return nil, ErrRecordNotFound
	}
	return &RefreshTokenRecord{
		UserID:    userID,
		TokenHash: stored,
		ExpiresAt: time.Now().Add(pttlCmd.Val()).UTC(),
	}, nil
}

func (r *redisRecordRepository) Update(ctx context.Context, userID uint, newTokenHash string, expiresAt time.Time) error {
	written, err := r.upsert(ctx, userID, newTokenHash, expiresAt, true)
	if err != nil {
		return fmt.Errorf("%w: update: %v", ErrStoreUnavailable, err)
	}
	if !written {
		return ErrRecordNotFound
	}
	return nil
}

func (r *redisRecordRepository) Remove(ctx context.Context, tokenHash string) error {
	removed, err := removeLua.Run(ctx, r.client,
		[]string{r.tokenPrefix() + tokenHash},
		r.userPrefix(), tokenHash,
	).Int()
	if err != nil {
		return fmt.Errorf("%w: remove: %v", ErrStoreUnavailable, err)
	}
	if removed == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (r *redisRecordRepository) upsert(ctx context.Context, userID uint, tokenHash string, expiresAt time.Time, mustExist bool) (bool, error) {
	ttl := time.Until(expiresAt)
	if ttl < time.Millisecond {
		ttl = time.Millisecond
	}
	flag := "0"
	if mustExist {
		flag = "1"
	}
	written, err := upsertLua.Run(ctx, r.client,
		[]string{r.userKey(userID)},
		tokenHash,
		ttl.Milliseconds(),
		r.tokenPrefix(),
		strconv.FormatUint(uint64(userID), 10),
		flag,
	).Int()
	if err != nil {
		return false, err
	}
	return written == 1, nil
}
