// internal/service/flashdeal/infrastructure/redis_counter.go
package infrastructure

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/Noman836/flesh-deal-api/internal/pkg/redis"
	"github.com/Noman836/flesh-deal-api/internal/service/flashdeal/domain/port"
)

const (
	stockKeyPrefix = "stock:"

	tryReserveScriptName = "try_reserve"
)

// CounterRedisAdapter 是 port.StockCounter 的 Redis 实现。
//
// "检查并扣减"用 Lua 脚本在服务端一步完成。拆成 GET + DECRBY 两次
// 往返的话，两个并发请求会同时看到足够的库存并都扣减，把计数器
// 减成负数——这正是脚本要挡住的竞态。
type CounterRedisAdapter struct {
	redisClient *redis.Client
}

// NewCounterRedisAdapter 创建计数器适配器，并注册所需的 Lua 脚本。
func NewCounterRedisAdapter(redisClient *redis.Client) (*CounterRedisAdapter, error) {
	if err := redisClient.LoadScriptFromContent(tryReserveScriptName, TryReserveScript); err != nil {
		return nil, fmt.Errorf("failed to load critical try_reserve script: %w", err)
	}
	return &CounterRedisAdapter{redisClient: redisClient}, nil
}

// Initialize 把计数器覆写为 totalUnits。幂等。
func (a *CounterRedisAdapter) Initialize(ctx context.Context, productID string, totalUnits int64) error {
	key := stockKeyPrefix + productID
	if err := a.redisClient.GetClient().Set(ctx, key, totalUnits, 0).Err(); err != nil {
		return fmt.Errorf("failed to initialize stock counter for %s: %w", productID, err)
	}
	return nil
}

// TryReserve 原子地检查并扣减。脚本返回扣减后的余量，
// 库存不足返回 -1，计数器不存在返回 -2。
func (a *CounterRedisAdapter) TryReserve(ctx context.Context, productID string, quantity int64) (bool, error) {
	key := stockKeyPrefix + productID

	result, err := a.redisClient.RunScript(ctx, tryReserveScriptName, []string{key}, quantity)
	if err != nil {
		return false, fmt.Errorf("counter adapter failed to run try_reserve script: %w", err)
	}

	code, ok := result.(int64)
	if !ok {
		return false, fmt.Errorf("unexpected result type from Lua script: %T", result)
	}

	switch {
	case code >= 0:
		return true, nil
	case code == -1:
		return false, nil
	case code == -2:
		return false, fmt.Errorf("stock counter for product %s is not initialized", productID)
	default:
		return false, fmt.Errorf("unknown result code from try_reserve script: %d", code)
	}
}

// Release 原子加回。INCRBY 本身是单命令原子操作，无需脚本。
func (a *CounterRedisAdapter) Release(ctx context.Context, productID string, quantity int64) error {
	key := stockKeyPrefix + productID
	if err := a.redisClient.GetClient().IncrBy(ctx, key, quantity).Err(); err != nil {
		return fmt.Errorf("failed to release %d units back to %s: %w", quantity, productID, err)
	}
	return nil
}

// Get 返回当前值；计数器不存在视为 0。仅供展示。
func (a *CounterRedisAdapter) Get(ctx context.Context, productID string) (int64, error) {
	key := stockKeyPrefix + productID
	val, err := a.redisClient.GetClient().Get(ctx, key).Int64()
	if err != nil {
		if err == goredis.Nil {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read stock counter for %s: %w", productID, err)
	}
	return val, nil
}

var _ port.StockCounter = (*CounterRedisAdapter)(nil)

// TryReserveScript 在服务端一步完成"检查并扣减"。
//
// KEYS[1]: 库存计数器的 Key, 例如: stock:product_123
// ARGV[1]: 请求预约的数量
//
// 返回值: >=0 扣减后的余量; -1 库存不足; -2 计数器不存在
var TryReserveScript = `
local stock = redis.call('get', KEYS[1])
if not stock then
    return -2
end

stock = tonumber(stock)
local qty = tonumber(ARGV[1])

if stock >= qty then
    return redis.call('decrby', KEYS[1], qty)
end

return -1
`
