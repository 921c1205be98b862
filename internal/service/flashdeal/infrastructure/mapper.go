// internal/service/flashdeal/infrastructure/mapper.go
package infrastructure

import (
	"github.com/Noman836/flesh-deal-api/internal/service/flashdeal/domain"
)

// ToDomainProduct 将数据库模型转换为领域模型
func ToDomainProduct(model *ProductModel) *domain.Product {
	if model == nil {
		return nil
	}
	return &domain.Product{
		ID:                    model.ProductID,
		SKU:                   model.SKU,
		Name:                  model.Name,
		Description:           model.Description,
		Price:                 model.Price,
		Category:              model.Category,
		TotalStock:            model.TotalStock,
		ReservedStock:         model.ReservedStock,
		SoldStock:             model.SoldStock,
		IsActive:              model.IsActive,
		DealStartTime:         model.DealStartTime,
		DealEndTime:           model.DealEndTime,
		MaxReservationSeconds: model.MaxReservationSeconds,
		EligibilityRule:       model.EligibilityRule,
		CreatedAt:             model.CreatedAt,
		UpdatedAt:             model.UpdatedAt,
	}
}

// FromDomainProduct 将领域模型转换为数据库模型 (用于插入和更新)
func FromDomainProduct(dmn *domain.Product) *ProductModel {
	if dmn == nil {
		return nil
	}
	return &ProductModel{
		ProductID:             dmn.ID,
		SKU:                   dmn.SKU,
		Name:                  dmn.Name,
		Description:           dmn.Description,
		Price:                 dmn.Price,
		Category:              dmn.Category,
		TotalStock:            dmn.TotalStock,
		ReservedStock:         dmn.ReservedStock,
		SoldStock:             dmn.SoldStock,
		IsActive:              dmn.IsActive,
		DealStartTime:         dmn.DealStartTime,
		DealEndTime:           dmn.DealEndTime,
		MaxReservationSeconds: dmn.MaxReservationSeconds,
		EligibilityRule:       dmn.EligibilityRule,
	}
}

// ToDomainOrder 将数据库模型转换为领域模型
func ToDomainOrder(model *OrderModel) *domain.Order {
	if model == nil {
		return nil
	}
	items := make([]domain.OrderItem, 0, len(model.Items))
	for _, it := range model.Items {
		items = append(items, domain.OrderItem{
			ProductID: it.ProductID,
			SKU:       it.SKU,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
			Subtotal:  it.Subtotal,
		})
	}
	return &domain.Order{
		ID:             model.OrderID,
		UserID:         model.UserID,
		Items:          items,
		TotalAmount:    model.TotalAmount,
		ReservationRef: model.ReservationRef,
		Status:         model.Status,
		Notes:          model.Notes,
		CreatedAt:      model.CreatedAt,
	}
}

// FromDomainOrder 将领域模型转换为数据库模型 (用于插入)
func FromDomainOrder(dmn *domain.Order) *OrderModel {
	if dmn == nil {
		return nil
	}
	items := make([]OrderItemModel, 0, len(dmn.Items))
	for _, it := range dmn.Items {
		items = append(items, OrderItemModel{
			ProductID: it.ProductID,
			SKU:       it.SKU,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
			Subtotal:  it.Subtotal,
		})
	}
	return &OrderModel{
		OrderID:        dmn.ID,
		UserID:         dmn.UserID,
		ReservationRef: dmn.ReservationRef,
		TotalAmount:    dmn.TotalAmount,
		Status:         dmn.Status,
		Notes:          dmn.Notes,
		Items:          items,
	}
}
