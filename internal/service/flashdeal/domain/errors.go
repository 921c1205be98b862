// internal/service/flashdeal/domain/errors.go
package domain

import "errors"

// 领域层的哨兵错误。接口层通过 errors.Is 把它们映射为 HTTP 状态码。
var (
	// ErrInsufficientStock 库存不足。计数器未发生任何变更。
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrReservationNotFound 预约不存在。注册表不区分"从未存在"和"已过期"，
	// 两种情况都返回本错误。
	ErrReservationNotFound = errors.New("reservation not found or expired")

	ErrProductNotFound  = errors.New("product not found")
	ErrProductInactive  = errors.New("product is not active")
	ErrDealWindowClosed = errors.New("flash deal is not active")

	// ErrNotEligible 预约请求未通过商品配置的资格规则
	ErrNotEligible = errors.New("reservation request is not eligible for this deal")

	// ErrInvalidQuantity 数量必须为正整数
	ErrInvalidQuantity = errors.New("quantity must be a positive integer")

	// ErrBatchSizeExceeded 批量预约条目数超出上限
	ErrBatchSizeExceeded = errors.New("too many items in batch reservation")

	// ErrPartialBatchUnavailable 批量结算时发现部分预约已经消失（被消费或过期），
	// 为避免生成残缺订单，整个结算失败。
	ErrPartialBatchUnavailable = errors.New("one or more reservations of the batch are no longer available")

	// ErrDuplicateOrder 同一个预约已经生成过订单，重试方应视为成功。
	ErrDuplicateOrder = errors.New("an order for this reservation already exists")
)
