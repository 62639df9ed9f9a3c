package infrastructure

import (
	"storefront/internal/service/storefront/domain"
)

// ToDomainOffer 将数据库模型转换为领域模型
func ToDomainOffer(m *OfferModel) *domain.Offer {
	if m == nil {
		return nil
	}
	o := &domain.Offer{
		ID:                 int64(m.ID),
		Code:               m.Code,
		Name:               m.Name,
		Description:        m.Description,
		Type:               domain.OfferType(m.Type),
		DiscountPercentage: m.DiscountPercentage,
		FlatDiscount:       m.FlatDiscount,
		MinOrderValue:      m.MinOrderValue,
		MaxDiscount:        m.MaxDiscount,
		IsActive:           m.IsActive,
		AutoApply:          m.AutoApply,
		FirstTimeOnly:      m.FirstTimeOnly,
		Priority:           domain.Priority(m.Priority),
		BadgeOverride:      m.BadgeText,
		RuleExpression:     m.RuleExpression,
		StartDate:          m.StartDate,
		EndDate:            m.EndDate,
		UsedCount:          m.UsedCount,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}
	for _, p := range m.Products {
		o.ProductIDs = append(o.ProductIDs, int64(p.ProductID))
	}
	for _, c := range m.Categories {
		o.CategoryIDs = append(o.CategoryIDs, int64(c.CategoryID))
	}
	return o
}

// FromDomainOffer 将领域模型转换为数据库模型, 包括范围关联
func FromDomainOffer(o *domain.Offer) *OfferModel {
	m := &OfferModel{
		ID:                 uint(o.ID),
		Code:               o.Code,
		Name:               o.Name,
		Description:        o.Description,
		Type:               string(o.Type),
		DiscountPercentage: o.DiscountPercentage,
		FlatDiscount:       o.FlatDiscount,
		MinOrderValue:      o.MinOrderValue,
		MaxDiscount:        o.MaxDiscount,
		IsActive:           o.IsActive,
		AutoApply:          o.AutoApply,
		FirstTimeOnly:      o.FirstTimeOnly,
		Priority:           string(o.Priority),
		PriorityRank:       o.Priority.Rank(),
		BadgeText:          o.BadgeOverride,
		RuleExpression:     o.RuleExpression,
		StartDate:          o.StartDate,
		EndDate:            o.EndDate,
		UsedCount:          o.UsedCount,
		CreatedAt:          o.CreatedAt,
		UpdatedAt:          o.UpdatedAt,
	}
	m.Products = scopeProducts(m.ID, o.ProductIDs)
	m.Categories = scopeCategories(m.ID, o.CategoryIDs)
	return m
}

func scopeProducts(offerID uint, ids []int64) []OfferProductModel {
	out := make([]OfferProductModel, 0, len(ids))
	for _, id := range ids {
		out = append(out, OfferProductModel{OfferID: offerID, ProductID: uint(id)})
	}
	return out
}

func scopeCategories(offerID uint, ids []int64) []OfferCategoryModel {
	out := make([]OfferCategoryModel, 0, len(ids))
	for _, id := range ids {
		out = append(out, OfferCategoryModel{OfferID: offerID, CategoryID: uint(id)})
	}
	return out
}

func ToDomainProduct(m *ProductModel) *domain.Product {
	return &domain.Product{
		ID:         int64(m.ID),
		Name:       m.Name,
		CategoryID: int64(m.CategoryID),
		Price:      m.Price,
		Stock:      m.Stock,
		Available:  m.Available,
	}
}

// ToDomainCart 要求 Items.Product 与 Offers 已经预加载, Offers 已按 Position 排序
func ToDomainCart(m *CartModel) *domain.Cart {
	c := &domain.Cart{
		ID:        int64(m.ID),
		UserID:    int64(m.UserID),
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
	for _, item := range m.Items {
		c.Items = append(c.Items, domain.CartItem{
			ID:       int64(item.ID),
			Product:  *ToDomainProduct(&item.Product),
			Quantity: item.Quantity,
			AddedAt:  item.AddedAt,
		})
	}
	entries := make([]domain.AppliedOffer, 0, len(m.Offers))
	for _, e := range m.Offers {
		entries = append(entries, domain.AppliedOffer{
			OfferID:        int64(e.OfferID),
			OfferCode:      e.OfferCode,
			OfferName:      e.OfferName,
			OfferType:      domain.OfferType(e.OfferType),
			DiscountAmount: e.DiscountAmount,
			BadgeText:      e.BadgeText,
			AutoApply:      e.AutoApply,
			FreeItems:      e.FreeItems,
			AppliedAt:      e.AppliedAt,
		})
	}
	c.Ledger = domain.NewLedger(entries)
	return c
}

func fromDomainCartItems(c *domain.Cart) []CartItemModel {
	out := make([]CartItemModel, 0, len(c.Items))
	for _, item := range c.Items {
		out = append(out, CartItemModel{
			ID:        uint(item.ID),
			CartID:    uint(c.ID),
			ProductID: uint(item.Product.ID),
			Quantity:  item.Quantity,
			AddedAt:   item.AddedAt,
		})
	}
	return out
}

func fromDomainLedger(c *domain.Cart) []CartOfferModel {
	entries := c.Ledger.Entries()
	out := make([]CartOfferModel, 0, len(entries))
	for i, e := range entries {
		out = append(out, CartOfferModel{
			CartID:         uint(c.ID),
			OfferID:        uint(e.OfferID),
			Position:       i,
			OfferCode:      e.OfferCode,
			OfferName:      e.OfferName,
			OfferType:      string(e.OfferType),
			DiscountAmount: e.DiscountAmount,
			BadgeText:      e.BadgeText,
			AutoApply:      e.AutoApply,
			FreeItems:      e.FreeItems,
			AppliedAt:      e.AppliedAt,
		})
	}
	return out
}

func ToDomainOrder(m *OrderModel) *domain.Order {
	o := &domain.Order{
		ID:              int64(m.ID),
		OrderNumber:     m.OrderNumber,
		UserID:          int64(m.UserID),
		TotalAmount:     m.TotalAmount,
		DiscountAmount:  m.DiscountAmount,
		FinalAmount:     m.FinalAmount,
		Status:          domain.OrderStatus(m.Status),
		ShippingAddress: m.ShippingAddress,
		PaymentMethod:   m.PaymentMethod,
		PaymentStatus:   domain.PaymentStatus(m.PaymentStatus),
		PaymentRef:      m.PaymentRef,
		RefundAmount:    m.RefundAmount,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
	for _, item := range m.Items {
		o.Items = append(o.Items, domain.OrderItem{
			ID:             int64(item.ID),
			ProductID:      int64(item.ProductID),
			ProductName:    item.ProductName,
			Quantity:       item.Quantity,
			UnitPrice:      item.UnitPrice,
			FreeQuantity:   item.FreeQuantity,
			DiscountAmount: item.DiscountAmount,
		})
	}
	for _, e := range m.Offers {
		o.AppliedOffers = append(o.AppliedOffers, domain.AppliedOffer{
			OfferID:        int64(e.OfferID),
			OfferCode:      e.OfferCode,
			OfferName:      e.OfferName,
			OfferType:      domain.OfferType(e.OfferType),
			DiscountAmount: e.DiscountAmount,
			BadgeText:      e.BadgeText,
			AutoApply:      e.AutoApply,
			FreeItems:      e.FreeItems,
			AppliedAt:      e.AppliedAt,
		})
	}
	return o
}

func FromDomainOrder(o *domain.Order) *OrderModel {
	m := &OrderModel{
		ID:              uint(o.ID),
		OrderNumber:     o.OrderNumber,
		UserID:          uint(o.UserID),
		TotalAmount:     o.TotalAmount,
		DiscountAmount:  o.DiscountAmount,
		FinalAmount:     o.FinalAmount,
		Status:          string(o.Status),
		ShippingAddress: o.ShippingAddress,
		PaymentMethod:   o.PaymentMethod,
		PaymentStatus:   string(o.PaymentStatus),
		PaymentRef:      o.PaymentRef,
		RefundAmount:    o.RefundAmount,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
	for _, item := range o.Items {
		m.Items = append(m.Items, OrderItemModel{
			ProductID:      uint(item.ProductID),
			ProductName:    item.ProductName,
			Quantity:       item.Quantity,
			UnitPrice:      item.UnitPrice,
			FreeQuantity:   item.FreeQuantity,
			DiscountAmount: item.DiscountAmount,
		})
	}
	for _, e := range o.AppliedOffers {
		m.Offers = append(m.Offers, OrderOfferModel{
			OfferID:        uint(e.OfferID),
			OfferCode:      e.OfferCode,
			OfferName:      e.OfferName,
			OfferType:      string(e.OfferType),
			DiscountAmount: e.DiscountAmount,
			BadgeText:      e.BadgeText,
			AutoApply:      e.AutoApply,
			FreeItems:      e.FreeItems,
			AppliedAt:      e.AppliedAt,
		})
	}
	return m
}
