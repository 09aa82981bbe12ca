package redisq

import goredis "github.com/redis/go-redis/v9"

// receiveScript pops one id and leases it under a fresh token.
//
// KEYS[1] ready, KEYS[2] leases
// ARGV[1] lease expiry (ms), ARGV[2] message key prefix, ARGV[3] lease token
//
// Returns nil when the queue is empty, {id} for an id whose hash is gone,
// else {id, body, delivery_count}.
var receiveScript = goredis.NewScript(`
local id = redis.call('RPOP', KEYS[1])
if not id then
  return nil
end
local key = ARGV[2] .. id
if redis.call('EXISTS', key) == 0 then
  return {id}
end
local count = redis.call('HINCRBY', key, 'delivery_count', 1)
redis.call('HSET', key, 'lease', ARGV[3])
redis.call('ZADD', KEYS[2], ARGV[1], id)
return {id, redis.call('HGET', key, 'body'), count}
`)

// Every script below first checks that the lease is still held by the
// caller's token: the id must be in the lease zset and the hash's lease
// field must match.

// renewScript extends a lease that is still held.
//
// KEYS[1] leases, KEYS[2] message hash; ARGV[1] id, ARGV[2] new expiry (ms), ARGV[3] token
var renewScript = goredis.NewScript(`
if not redis.call('ZSCORE', KEYS[1], ARGV[1]) or redis.call('HGET', KEYS[2], 'lease') ~= ARGV[3] then
  return 0
end
redis.call('ZADD', KEYS[1], ARGV[2], ARGV[1])
return 1
`)

// completeScript drops the lease and the message.
//
// KEYS[1] leases, KEYS[2] message hash; ARGV[1] id, ARGV[2] token
var completeScript = goredis.NewScript(`
if not redis.call('ZSCORE', KEYS[1], ARGV[1]) or redis.call('HGET', KEYS[2], 'lease') ~= ARGV[2] then
  return 0
end
redis.call('ZREM', KEYS[1], ARGV[1])
redis.call('DEL', KEYS[2])
return 1
`)

// abandonScript drops the lease and requeues the id.
//
// KEYS[1] leases, KEYS[2] ready, KEYS[3] message hash; ARGV[1] id, ARGV[2] token
var abandonScript = goredis.NewScript(`
if not redis.call('ZSCORE', KEYS[1], ARGV[1]) or redis.call('HGET', KEYS[3], 'lease') ~= ARGV[2] then
  return 0
end
redis.call('ZREM', KEYS[1], ARGV[1])
redis.call('HDEL', KEYS[3], 'lease')
redis.call('LPUSH', KEYS[2], ARGV[1])
return 1
`)

// deadLetterScript drops the lease, annotates the message and moves the id
// to the dead list.
//
// KEYS[1] leases, KEYS[2] dead, KEYS[3] message hash
// ARGV[1] id, ARGV[2] token, ARGV[3] reason, ARGV[4] description, ARGV[5] error, ARGV[6] now (ms)
var deadLetterScript = goredis.NewScript(`
if not redis.call('ZSCORE', KEYS[1], ARGV[1]) or redis.call('HGET', KEYS[3], 'lease') ~= ARGV[2] then
  return 0
end
redis.call('ZREM', KEYS[1], ARGV[1])
redis.call('HDEL', KEYS[3], 'lease')
redis.call('HSET', KEYS[3], 'dead_reason', ARGV[3], 'dead_description', ARGV[4], 'dead_error', ARGV[5], 'dead_at', ARGV[6])
redis.call('LPUSH', KEYS[2], ARGV[1])
return 1
`)

// reapScript requeues every id whose lease expired and revokes its token.
//
// KEYS[1] leases, KEYS[2] ready; ARGV[1] now (ms), ARGV[2] message key prefix
var reapScript = goredis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
for _, id in ipairs(ids) do
  redis.call('ZREM', KEYS[1], id)
  redis.call('HDEL', ARGV[2] .. id, 'lease')
  redis.call('LPUSH', KEYS[2], id)
end
return #ids
`)
