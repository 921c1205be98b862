// internal/service/flashdeal/domain/reservation.go
package domain

import (
	"errors"
	"time"
)

// Reservation 是一次对库存的限时独占认领，还不是一笔交易。
// 记录创建前，它的数量一定已经从对应商品的快速计数器里扣掉；
// 记录消失（被消费、被取消或 TTL 过期）即认领终止。
type Reservation struct {
	ID        string    `json:"reservationId"`
	UserID    string    `json:"userId"`
	ProductID string    `json:"productId"`
	Quantity  int64     `json:"quantity"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`

	// BatchID 把同一次批量预约里的兄弟记录关联起来；单品预约时为空。
	BatchID string `json:"batchReservationId,omitempty"`
	// BatchSize 是批次的兄弟总数，结算时用于校验批次是否完整。
	BatchSize int `json:"batchSize,omitempty"`
}

// NewReservation 创建一条新的预约记录。
func NewReservation(id, userID, productID string, quantity int64, now time.Time, ttl time.Duration) (*Reservation, error) {
	if id == "" || userID == "" || productID == "" {
		return nil, errors.New("cannot create reservation with empty required fields")
	}
	if quantity < 1 {
		return nil, ErrInvalidQuantity
	}
	return &Reservation{
		ID:        id,
		UserID:    userID,
		ProductID: productID,
		Quantity:  quantity,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}, nil
}

// AttachToBatch 把预约归入一个批次。
func (r *Reservation) AttachToBatch(batchID string, batchSize int) {
	r.BatchID = batchID
	r.BatchSize = batchSize
}

// Expired 判断预约在给定时刻是否已过期。
// 注册表的 TTL 才是权威；这里只用于展示层过滤。
func (r *Reservation) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// Remaining 返回距离过期的剩余时长，已过期时为 0。
func (r *Reservation) Remaining(now time.Time) time.Duration {
	if r.Expired(now) {
		return 0
	}
	return r.ExpiresAt.Sub(now)
}
