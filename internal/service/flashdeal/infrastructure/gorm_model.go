// internal/service/flashdeal/infrastructure/gorm_model.go
package infrastructure

import (
	"time"

	"gorm.io/gorm"

	"github.com/Noman836/flesh-deal-api/internal/service/flashdeal/domain"
)

// ProductModel 对应数据库中的 flash_product 表
type ProductModel struct {
	ProductID   string `gorm:"primaryKey;size:64"`
	SKU         string `gorm:"uniqueIndex;size:64"`
	Name        string
	Description string  `gorm:"type:text"`
	Price       float64 `gorm:"type:decimal(10,2)"`
	Category    string  `gorm:"index;size:64"`

	TotalStock    int64
	ReservedStock int64
	SoldStock     int64

	IsActive bool `gorm:"index"`

	DealStartTime         time.Time
	DealEndTime           time.Time
	MaxReservationSeconds int

	EligibilityRule string `gorm:"type:text"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName 指定 GORM 应该使用的表名
func (ProductModel) TableName() string {
	return "flash_product"
}

// OrderModel 对应数据库中的 flash_order 表。
// ReservationRef 上的唯一索引是结算幂等的落点：对同一预约的
// 重复写入会撞到这个索引。
type OrderModel struct {
	gorm.Model
	OrderID        string             `gorm:"uniqueIndex;size:64"`
	UserID         string             `gorm:"index;size:64"`
	ReservationRef string             `gorm:"uniqueIndex;size:128"`
	TotalAmount    float64            `gorm:"type:decimal(12,2)"`
	Status         domain.OrderStatus `gorm:"size:16"`
	Notes          string
	// 关联关系
	Items []OrderItemModel `gorm:"foreignKey:OrderModelID"`
}

// TableName 指定 GORM 应该使用的表名
func (OrderModel) TableName() string {
	return "flash_order"
}

// OrderItemModel 对应数据库中的 flash_order_item 表
type OrderItemModel struct {
	gorm.Model
	OrderModelID uint   `gorm:"index"`
	ProductID    string `gorm:"size:64"`
	SKU          string `gorm:"size:64"`
	Quantity     int64
	UnitPrice    float64 `gorm:"type:decimal(10,2)"`
	Subtotal     float64 `gorm:"type:decimal(12,2)"`
}

// TableName 指定 GORM 应该使用的表名
func (OrderItemModel) TableName() string {
	return "flash_order_item"
}
