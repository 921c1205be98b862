// internal/service/flashdeal/application/dto.go
package application

import (
	"time"

	"github.com/Noman836/flesh-deal-api/internal/service/flashdeal/domain"
)

// BatchItem 是批量预约里的一个条目。
type BatchItem struct {
	ProductID string `json:"productId"`
	Quantity  int64  `json:"quantity"`
}

// ReservationResult 单品预约的返回值。
type ReservationResult struct {
	ReservationID string    `json:"reservationId"`
	ProductID     string    `json:"productId"`
	Quantity      int64     `json:"quantity"`
	ExpiresAt     time.Time `json:"expiresAt"`
}

// BatchReservationResult 批量预约的返回值，所有兄弟共享同一个过期时间。
type BatchReservationResult struct {
	BatchID      string              `json:"batchReservationId"`
	Reservations []ReservationResult `json:"reservations"`
	ExpiresAt    time.Time           `json:"expiresAt"`
}

// ReleaseResult 取消预约的返回值。
// 预约不存在或已过期不算错误，Released 为 false。
type ReleaseResult struct {
	Released  bool   `json:"released"`
	ProductID string `json:"productId,omitempty"`
	Quantity  int64  `json:"quantity,omitempty"`
}

// OrderDetails 是结算时由调用方补充的订单信息。
type OrderDetails struct {
	ShippingAddress string `json:"shippingAddress"`
	BillingAddress  string `json:"billingAddress,omitempty"`
	Notes           string `json:"notes,omitempty"`
}

// OrderResult 结算成功后的订单视图。
type OrderResult struct {
	OrderID        string             `json:"orderId"`
	UserID         string             `json:"userId"`
	Items          []OrderItemResult  `json:"items"`
	TotalAmount    float64            `json:"totalAmount"`
	ReservationRef string             `json:"reservationRef"`
	Status         domain.OrderStatus `json:"status"`
	CreatedAt      time.Time          `json:"createdAt"`
}

// OrderItemResult 订单行项目视图。
type OrderItemResult struct {
	ProductID string  `json:"productId"`
	SKU       string  `json:"sku"`
	Quantity  int64   `json:"quantity"`
	UnitPrice float64 `json:"price"`
	Subtotal  float64 `json:"subtotal"`
}

// StockStatusResult 库存状态视图。reservedStock 来自注册表活跃预约的
// 实时求和，availableStock 来自快速计数器。
type StockStatusResult struct {
	ProductID             string               `json:"productId"`
	SKU                   string               `json:"sku"`
	Name                  string               `json:"name"`
	TotalStock            int64                `json:"totalStock"`
	SoldStock             int64                `json:"soldStock"`
	ReservedStock         int64                `json:"reservedStock"`
	AvailableStock        int64                `json:"availableStock"`
	Status                domain.StockStatus   `json:"stockStatus"`
	ReservationPercentage float64              `json:"reservationPercentage"`
	Reservations          []ReservationSummary `json:"reservations"`
}

// ReservationSummary 库存状态里附带的活跃预约摘要。
type ReservationSummary struct {
	ReservationID string    `json:"reservationId"`
	UserID        string    `json:"userId"`
	Quantity      int64     `json:"quantity"`
	CreatedAt     time.Time `json:"createdAt"`
	ExpiresAt     time.Time `json:"expiresAt"`
}

func toOrderResult(o *domain.Order) *OrderResult {
	items := make([]OrderItemResult, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, OrderItemResult{
			ProductID: it.ProductID,
			SKU:       it.SKU,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
			Subtotal:  it.Subtotal,
		})
	}
	return &OrderResult{
		OrderID:        o.ID,
		UserID:         o.UserID,
		Items:          items,
		TotalAmount:    o.TotalAmount,
		ReservationRef: o.ReservationRef,
		Status:         o.Status,
		CreatedAt:      o.CreatedAt,
	}
}
