package redis

import goredis "github.com/redis/go-redis/v9"

// toggleFlagScript flips the flag stored at KEYS[1] between "0" and "1" and
// returns the new value. A missing key counts as "0".
var toggleFlagScript = goredis.NewScript(`
local next = '1'
if redis.call('GET', KEYS[1]) == '1' then
  next = '0'
end
redis.call('SET', KEYS[1], next)
return next
`)
