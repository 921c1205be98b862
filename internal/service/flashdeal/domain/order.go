// internal/service/flashdeal/domain/order.go
package domain

import (
	"errors"
	"time"
)

// OrderStatus 订单生命周期状态。本引擎只负责把订单写进台账，
// 后续的状态流转（发货、送达）由订单域处理。
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusConfirmed OrderStatus = "CONFIRMED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// OrderItem 是订单中的一个行项目。
type OrderItem struct {
	ProductID string
	SKU       string
	Quantity  int64
	UnitPrice float64
	Subtotal  float64
}

// Order 是一笔由成功结算的预约转化而来的持久订单。
// ReservationRef 回指源预约（或批次）的 ID，台账以它为唯一键，
// 这样对同一个预约的重复结算要么完成原始写入、要么被检测为已存在。
type Order struct {
	ID             string
	UserID         string
	Items          []OrderItem
	TotalAmount    float64
	ReservationRef string
	Status         OrderStatus
	Notes          string
	CreatedAt      time.Time
}

// NewOrder 从已消费的预约构造订单。
func NewOrder(id, userID, reservationRef string, items []OrderItem, now time.Time) (*Order, error) {
	if id == "" || userID == "" || reservationRef == "" {
		return nil, errors.New("cannot create order with empty required fields")
	}
	if len(items) == 0 {
		return nil, errors.New("cannot create order without line items")
	}
	var total float64
	for _, it := range items {
		total += it.Subtotal
	}
	return &Order{
		ID:             id,
		UserID:         userID,
		Items:          items,
		TotalAmount:    total,
		ReservationRef: reservationRef,
		Status:         OrderStatusConfirmed,
		CreatedAt:      now,
	}, nil
}
