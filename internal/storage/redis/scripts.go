package redis

const (
	// incrementDailyUsageScript atomically increments or creates daily usage
	// and returns the new total.
	incrementDailyUsageScript = `
local usage_key = KEYS[1]     -- tvwarden:usage:daily:{date}:{package}
local index_key = KEYS[2]     -- tvwarden:usage:daily:index:{date}
local dates_key = KEYS[3]     -- tvwarden:usage:daily:dates

local date = ARGV[1]
local package_name = ARGV[2]
local minutes = tonumber(ARGV[3])
local ttl_seconds = tonumber(ARGV[4])

local exists = redis.call('EXISTS', usage_key)

if exists == 0 then
  redis.call('HSET', usage_key,
    'date', date,
    'package_name', package_name,
    'minutes', 0
  )
  if ttl_seconds > 0 then
    redis.call('EXPIRE', usage_key, ttl_seconds)
  end

  redis.call('SADD', index_key, package_name)
  if ttl_seconds > 0 then
    redis.call('EXPIRE', index_key, ttl_seconds)
  end
  redis.call('SADD', dates_key, date)
end

return redis.call('HINCRBY', usage_key, 'minutes', minutes)
`

	// deleteDailyUsageDateScript removes every entry of one date along with
	// its index and returns the number of usage keys deleted.
	deleteDailyUsageDateScript = `
local index_key = KEYS[1]     -- tvwarden:usage:daily:index:{date}
local dates_key = KEYS[2]     -- tvwarden:usage:daily:dates

local date = ARGV[1]
local key_prefix = ARGV[2]

local deleted = 0
local members = redis.call('SMEMBERS', index_key)
for _, package_name in ipairs(members) do
  deleted = deleted + redis.call('DEL', key_prefix .. date .. ':' .. package_name)
end

redis.call('DEL', index_key)
redis.call('SREM', dates_key, date)

return deleted
`

	// upsertAppScript writes an app hash and keeps the registry index in step.
	upsertAppScript = `
local app_key = KEYS[1]       -- tvwarden:app:{package}
local index_key = KEYS[2]     -- tvwarden:apps

redis.call('DEL', app_key)
redis.call('HSET', app_key, unpack(ARGV, 2))
redis.call('SADD', index_key, ARGV[1])

return 'OK'
`
)
