// internal/service/flashdeal/domain/port/counter.go
package port

import "context"

// StockCounter 是商品可用库存快速计数器的出站端口，由低延迟 KV 存储实现。
//
// 实现必须保证 TryReserve 的"检查并扣减"在存储端是单个原子步骤：
// 分开的读和减在并发下会让两个调用方都看到足够的库存并都扣减，
// 计数器被减成负数。
type StockCounter interface {
	// Initialize 把计数器设置为 totalUnits。幂等覆盖，商品（重新）激活时调用。
	Initialize(ctx context.Context, productID string, totalUnits int64) error

	// TryReserve 原子地检查并扣减：当前值 >= quantity 时扣减并返回 true；
	// 否则计数器不变，返回 false。
	TryReserve(ctx context.Context, productID string, quantity int64) (bool, error)

	// Release 原子地加回 quantity。取消和补偿路径使用。
	Release(ctx context.Context, productID string, quantity int64) error

	// Get 返回当前值。仅供展示，绝不能用它做预约的准入判断。
	Get(ctx context.Context, productID string) (int64, error)
}
