// internal/service/flashdeal/infrastructure/redis_registry.go
package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/Noman836/flesh-deal-api/internal/pkg/logger"
	"github.com/Noman836/flesh-deal-api/internal/pkg/redis"
	"github.com/Noman836/flesh-deal-api/internal/service/flashdeal/domain"
	"github.com/Noman836/flesh-deal-api/internal/service/flashdeal/domain/port"
)

const (
	reservationKeyPrefix         = "reservation:"
	userReservationsKeyPrefix    = "user_reservations:"
	productReservationsKeyPrefix = "product_reservations:"

	consumeScriptName = "consume_reservation"
)

// RegistryRedisAdapter 是 port.ReservationRegistry 的 Redis 实现。
//
// 每条预约占一个带 TTL 的 String, 另外按用户、按商品各维护一个
// Set 索引。记录本体到期自动消失, 索引里的悬空 ID 在读取时跳过。
//
// Consume 用 Lua 脚本把"读取-删除-清索引"压成一步, 两个并发的
// 取消/成交请求只有一个能拿到记录。脚本在服务端拼索引 Key,
// 因此该适配器只支持单实例 Redis, 不支持 Cluster。
type RegistryRedisAdapter struct {
	redisClient *redis.Client
}

func NewRegistryRedisAdapter(redisClient *redis.Client) (*RegistryRedisAdapter, error) {
	if err := redisClient.LoadScriptFromContent(consumeScriptName, ConsumeReservationScript); err != nil {
		return nil, fmt.Errorf("failed to load consume_reservation script: %w", err)
	}
	return &RegistryRedisAdapter{redisClient: redisClient}, nil
}

// Create 写入预约记录并登记两个索引。索引的 TTL 只会被延长:
// NX 给新建的索引设上初始 TTL, GT 在更晚到期的记录进来时把它推后,
// 短 TTL 的记录不能缩短索引的存活期, 索引至少活到最晚到期的记录之后。
func (a *RegistryRedisAdapter) Create(ctx context.Context, r *domain.Reservation, ttl time.Duration) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal reservation %s: %w", r.ID, err)
	}

	recordKey := reservationKeyPrefix + r.ID
	userKey := userReservationsKeyPrefix + r.UserID
	productKey := productReservationsKeyPrefix + r.ProductID

	pipe := a.redisClient.GetClient().TxPipeline()
	pipe.Set(ctx, recordKey, raw, ttl)
	pipe.SAdd(ctx, userKey, r.ID)
	pipe.ExpireNX(ctx, userKey, ttl)
	pipe.ExpireGT(ctx, userKey, ttl)
	pipe.SAdd(ctx, productKey, r.ID)
	pipe.ExpireNX(ctx, productKey, ttl)
	pipe.ExpireGT(ctx, productKey, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to persist reservation %s: %w", r.ID, err)
	}
	return nil
}

// Get 读取一条预约, 不存在或已到期返回 domain.ErrReservationNotFound。
func (a *RegistryRedisAdapter) Get(ctx context.Context, reservationID string) (*domain.Reservation, error) {
	raw, err := a.redisClient.GetClient().Get(ctx, reservationKeyPrefix+reservationID).Result()
	if err != nil {
		if err == goredis.Nil {
			return nil, domain.ErrReservationNotFound
		}
		return nil, fmt.Errorf("failed to read reservation %s: %w", reservationID, err)
	}
	return unmarshalReservation(reservationID, raw)
}

// Consume 原子地删除记录并返回删除前的内容。记录已不存在
// (已取消、已成交或已到期)时返回 domain.ErrReservationNotFound。
// 取消和成交都必须走这里, 谁先删成功谁拿到记录。
func (a *RegistryRedisAdapter) Consume(ctx context.Context, reservationID string) (*domain.Reservation, error) {
	result, err := a.redisClient.RunScript(ctx, consumeScriptName,
		[]string{reservationKeyPrefix + reservationID},
		reservationID, userReservationsKeyPrefix, productReservationsKeyPrefix)
	if err != nil {
		if err == goredis.Nil {
			return nil, domain.ErrReservationNotFound
		}
		return nil, fmt.Errorf("failed to consume reservation %s: %w", reservationID, err)
	}

	raw, ok := result.(string)
	if !ok {
		return nil, fmt.Errorf("unexpected result type from consume script: %T", result)
	}
	return unmarshalReservation(reservationID, raw)
}

// ListByUser 返回某用户当前存活的全部预约。索引里指向已消失
// 记录的 ID 直接跳过。
func (a *RegistryRedisAdapter) ListByUser(ctx context.Context, userID string) ([]*domain.Reservation, error) {
	return a.listByIndex(ctx, userReservationsKeyPrefix+userID)
}

// ListByProduct 返回某商品当前存活的全部预约。
func (a *RegistryRedisAdapter) ListByProduct(ctx context.Context, productID string) ([]*domain.Reservation, error) {
	return a.listByIndex(ctx, productReservationsKeyPrefix+productID)
}

func (a *RegistryRedisAdapter) listByIndex(ctx context.Context, indexKey string) ([]*domain.Reservation, error) {
	ids, err := a.redisClient.GetClient().SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read reservation index %s: %w", indexKey, err)
	}

	reservations := make([]*domain.Reservation, 0, len(ids))
	for _, id := range ids {
		raw, err := a.redisClient.GetClient().Get(ctx, reservationKeyPrefix+id).Result()
		if err != nil {
			if err == goredis.Nil {
				// 记录到期后索引里留下的悬空 ID
				continue
			}
			return nil, fmt.Errorf("failed to read reservation %s from index: %w", id, err)
		}
		r, err := unmarshalReservation(id, raw)
		if err != nil {
			logger.Ctx(ctx).Warn().Str("reservation_id", id).Err(err).Msg("skipping corrupt reservation record")
			continue
		}
		reservations = append(reservations, r)
	}
	return reservations, nil
}

func unmarshalReservation(id, raw string) (*domain.Reservation, error) {
	var r domain.Reservation
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return nil, fmt.Errorf("corrupt reservation record %s: %w", id, err)
	}
	return &r, nil
}

var _ port.ReservationRegistry = (*RegistryRedisAdapter)(nil)

// ConsumeReservationScript 原子地取走一条预约记录。
//
// KEYS[1]: 预约记录 Key, 例如: reservation:abc
// ARGV[1]: 预约 ID
// ARGV[2]: 用户索引前缀
// ARGV[3]: 商品索引前缀
//
// 返回值: 记录的 JSON; 记录不存在时返回 nil(客户端收到 redis.Nil)
var ConsumeReservationScript = `
local raw = redis.call('get', KEYS[1])
if not raw then
    return nil
end

redis.call('del', KEYS[1])

local rec = cjson.decode(raw)
if rec.userId then
    redis.call('srem', ARGV[2] .. rec.userId, ARGV[1])
end
if rec.productId then
    redis.call('srem', ARGV[3] .. rec.productId, ARGV[1])
end

return raw
`
