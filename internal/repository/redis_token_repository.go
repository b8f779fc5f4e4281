package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"task_manager/internal/domain/models"
	redisapp "task_manager/internal/storage/redis"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	redisTokenPrefix = "refresh:token:"
	redisUserPrefix  = "refresh:user:"
	redisExpiryKey   = "refresh:expiry"
)

// Scripts share one layout:
//   refresh:token:<id>  string, value is the owner id, expires at exp
//   refresh:user:<uid>  set of the owner's token ids
//   refresh:expiry      zset of "<uid>:<id>" scored by exp in unix millis
// ARGV[1] and ARGV[2] always carry the token and user key prefixes.
const redisLuaHelpers = `
local token_prefix = ARGV[1]
local user_prefix = ARGV[2]
local expiry_key = KEYS[1]

local function remove(uid, id)
  redis.call("DEL", token_prefix .. id)
  redis.call("SREM", user_prefix .. uid, id)
  redis.call("ZREM", expiry_key, uid .. ":" .. id)
end

local function remove_all(uid)
  local ids = redis.call("SMEMBERS", user_prefix .. uid)
  for _, id in ipairs(ids) do
    remove(uid, id)
  end
  redis.call("DEL", user_prefix .. uid)
  return #ids
end

local function insert(uid, id, exp_ms)
  local key = token_prefix .. id
  redis.call("SET", key, uid)
  redis.call("PEXPIREAT", key, exp_ms)
  redis.call("SADD", user_prefix .. uid, id)
  redis.call("ZADD", expiry_key, exp_ms, uid .. ":" .. id)
end
`

// ARGV[3] = token id
var redisDeleteLua = redis.NewScript(redisLuaHelpers + `
local uid = redis.call("GET", token_prefix .. ARGV[3])
if not uid then
  return 0
end
remove(uid, ARGV[3])
return 1
`)

// ARGV[3] = user id
var redisDeleteAllLua = redis.NewScript(redisLuaHelpers + `
return remove_all(ARGV[3])
`)

// ARGV[3] = user id, ARGV[4] = new token id, ARGV[5] = exp millis
var redisReplaceLua = redis.NewScript(redisLuaHelpers + `
remove_all(ARGV[3])
insert(ARGV[3], ARGV[4], ARGV[5])
return 1
`)

// ARGV[3] = old token id, ARGV[4] = user id, ARGV[5] = new token id, ARGV[6] = exp millis
var redisRotateLua = redis.NewScript(redisLuaHelpers + `
local owner = redis.call("GET", token_prefix .. ARGV[3])
if not owner then
  return 0
end
remove(owner, ARGV[3])
insert(ARGV[4], ARGV[5], ARGV[6])
return 1
`)

// ARGV[3] = now millis
var redisSweepLua = redis.NewScript(redisLuaHelpers + `
local members = redis.call("ZRANGEBYSCORE", expiry_key, "-inf", ARGV[3])
for _, member in ipairs(members) do
  local sep = string.find(member, ":", 1, true)
  if sep then
    remove(string.sub(member, 1, sep - 1), string.sub(member, sep + 1))
  else
    redis.call("ZREM", expiry_key, member)
  end
end
return #members
`)

// RedisTokenRepo is the Redis refresh token store. Token keys carry a native
// expiry, so an expired token is absent even before the sweeper runs.
type RedisTokenRepo struct {
	Client *redisapp.Client
}

func NewRedisTokenRepo(client *redisapp.Client) *RedisTokenRepo {
	return &RedisTokenRepo{Client: client}
}

func (r *RedisTokenRepo) SaveRefreshToken(ctx context.Context, token models.RefreshToken) error {
	const op = "repository.redis_token_repository.SaveRefreshToken"

	uid := token.UserID.String()
	id := token.ID.String()

	_, err := r.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, refreshTokenKey(id), uid, 0)
		pipe.PExpireAt(ctx, refreshTokenKey(id), token.ExpireAt)
		pipe.SAdd(ctx, refreshUserKey(uid), id)
		pipe.ZAdd(ctx, redisExpiryKey, redis.Z{
			Score:  float64(token.ExpireAt.UnixMilli()),
			Member: uid + ":" + id,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (r *RedisTokenRepo) RefreshTokenExists(ctx context.Context, id uuid.UUID) (bool, error) {
	const op = "repository.redis_token_repository.RefreshTokenExists"

	n, err := r.Client.Exists(ctx, refreshTokenKey(id.String())).Result()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return n > 0, nil
}

func (r *RedisTokenRepo) DeleteRefreshToken(ctx context.Context, id uuid.UUID) (bool, error) {
	const op = "repository.redis_token_repository.DeleteRefreshToken"

	n, err := r.run(ctx, redisDeleteLua, id.String())
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return n == 1, nil
}

func (r *RedisTokenRepo) DeleteAllUserTokens(ctx context.Context, userID uuid.UUID) error {
	const op = "repository.redis_token_repository.DeleteAllUserTokens"

	if _, err := r.run(ctx, redisDeleteAllLua, userID.String()); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (r *RedisTokenRepo) DeleteExpiredTokens(ctx context.Context) (int64, error) {
	const op = "repository.redis_token_repository.DeleteExpiredTokens"

	n, err := r.run(ctx, redisSweepLua, millis(time.Now()))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return n, nil
}

func (r *RedisTokenRepo) ReplaceUserTokens(ctx context.Context, token models.RefreshToken) error {
	const op = "repository.redis_token_repository.ReplaceUserTokens"

	_, err := r.run(ctx, redisReplaceLua,
		token.UserID.String(),
		token.ID.String(),
		millis(token.ExpireAt),
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (r *RedisTokenRepo) RotateRefreshToken(ctx context.Context, oldID uuid.UUID, token models.RefreshToken) (bool, error) {
	const op = "repository.redis_token_repository.RotateRefreshToken"

	n, err := r.run(ctx, redisRotateLua,
		oldID.String(),
		token.UserID.String(),
		token.ID.String(),
		millis(token.ExpireAt),
	)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return n == 1, nil
}

func (r *RedisTokenRepo) run(ctx context.Context, script *redis.Script, args ...interface{}) (int64, error) {
	argv := append([]interface{}{redisTokenPrefix, redisUserPrefix}, args...)

	n, err := script.Run(ctx, r.Client, []string{redisExpiryKey}, argv...).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, err
	}

	return n, nil
}

func refreshTokenKey(id string) string {
	return redisTokenPrefix + id
}

func refreshUserKey(userID string) string {
	return redisUserPrefix + userID
}

func millis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}
