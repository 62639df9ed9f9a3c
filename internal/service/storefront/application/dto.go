package application

import (
	"time"

	"storefront/internal/service/storefront/domain"

	"github.com/shopspring/decimal"
)

// OfferDTO 是优惠的对外表示, Status 为读取时刻的派生状态
type OfferDTO struct {
	ID                 int64              `json:"id"`
	Code               string             `json:"code"`
	Name               string             `json:"name"`
	Description        string             `json:"description"`
	OfferType          domain.OfferType   `json:"offer_type"`
	DiscountPercentage decimal.Decimal    `json:"discount_percentage"`
	FlatDiscount       decimal.Decimal    `json:"flat_discount"`
	MinOrderValue      decimal.Decimal    `json:"min_order_value"`
	MaxDiscount        *decimal.Decimal   `json:"max_discount"`
	ProductIDs         []int64            `json:"product_ids"`
	CategoryIDs        []int64            `json:"category_ids"`
	IsActive           bool               `json:"is_active"`
	AutoApply          bool               `json:"auto_apply"`
	FirstTimeOnly      bool               `json:"first_time_only"`
	Priority           domain.Priority    `json:"priority"`
	BadgeText          string             `json:"badge_text"`
	RuleExpression     string             `json:"rule_expression,omitempty"`
	StartDate          time.Time          `json:"start_date"`
	EndDate            time.Time          `json:"end_date"`
	UsedCount          int64              `json:"used_count"`
	Status             domain.OfferStatus `json:"status"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

func toOfferDTO(o *domain.Offer, now time.Time) OfferDTO {
	dto := OfferDTO{
		ID:                 o.ID,
		Code:               o.Code,
		Name:               o.Name,
		Description:        o.Description,
		OfferType:          o.Type,
		DiscountPercentage: o.DiscountPercentage,
		FlatDiscount:       o.FlatDiscount,
		MinOrderValue:      o.MinOrderValue,
		ProductIDs:         nonNil(o.ProductIDs),
		CategoryIDs:        nonNil(o.CategoryIDs),
		IsActive:           o.IsActive,
		AutoApply:          o.AutoApply,
		FirstTimeOnly:      o.FirstTimeOnly,
		Priority:           o.Priority,
		BadgeText:          o.BadgeText(),
		RuleExpression:     o.RuleExpression,
		StartDate:          o.StartDate,
		EndDate:            o.EndDate,
		UsedCount:          o.UsedCount,
		Status:             o.Status(now),
		CreatedAt:          o.CreatedAt,
		UpdatedAt:          o.UpdatedAt,
	}
	if o.MaxDiscount.Valid {
		v := o.MaxDiscount.Decimal
		dto.MaxDiscount = &v
	}
	return dto
}

func toOfferDTOs(offers []*domain.Offer, now time.Time) []OfferDTO {
	out := make([]OfferDTO, 0, len(offers))
	for _, o := range offers {
		out = append(out, toOfferDTO(o, now))
	}
	return out
}

func nonNil(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}

// OfferCandidate 是当前购物车可用但尚未挂载的优惠, 附带预估折扣
type OfferCandidate struct {
	ID                int64            `json:"id"`
	Code              string           `json:"code"`
	Name              string           `json:"name"`
	Description       string           `json:"description"`
	OfferType         domain.OfferType `json:"offer_type"`
	EstimatedDiscount decimal.Decimal  `json:"estimated_discount"`
	BadgeText         string           `json:"badge_text"`
	AutoApply         bool             `json:"auto_apply"`
	Priority          domain.Priority  `json:"priority"`
	FirstTimeOnly     bool             `json:"first_time_only"`
	MinOrderValue     decimal.Decimal  `json:"min_order_value"`
}

func toCandidate(o *domain.Offer, result domain.DiscountResult) OfferCandidate {
	return OfferCandidate{
		ID:                o.ID,
		Code:              o.Code,
		Name:              o.Name,
		Description:       o.Description,
		OfferType:         o.Type,
		EstimatedDiscount: result.DiscountAmount,
		BadgeText:         result.BadgeText,
		AutoApply:         o.AutoApply,
		Priority:          o.Priority,
		FirstTimeOnly:     o.FirstTimeOnly,
		MinOrderValue:     o.MinOrderValue,
	}
}

type AppliedOfferDTO struct {
	OfferID        int64             `json:"offer_id"`
	OfferCode      string            `json:"offer_code"`
	OfferName      string            `json:"offer_name"`
	OfferType      domain.OfferType  `json:"offer_type"`
	DiscountAmount decimal.Decimal   `json:"discount_amount"`
	BadgeText      string            `json:"badge_text"`
	AutoApply      bool              `json:"auto_apply"`
	FreeItems      []domain.FreeItem `json:"free_items"`
	AppliedAt      time.Time         `json:"applied_at"`
}

func toAppliedOfferDTO(e domain.AppliedOffer) AppliedOfferDTO {
	items := e.FreeItems
	if items == nil {
		items = []domain.FreeItem{}
	}
	return AppliedOfferDTO{
		OfferID:        e.OfferID,
		OfferCode:      e.OfferCode,
		OfferName:      e.OfferName,
		OfferType:      e.OfferType,
		DiscountAmount: e.DiscountAmount,
		BadgeText:      e.BadgeText,
		AutoApply:      e.AutoApply,
		FreeItems:      items,
		AppliedAt:      e.AppliedAt,
	}
}

func toAppliedOfferDTOs(entries []domain.AppliedOffer) []AppliedOfferDTO {
	out := make([]AppliedOfferDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, toAppliedOfferDTO(e))
	}
	return out
}

type CartItemDTO struct {
	ID          int64           `json:"id"`
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	CategoryID  int64           `json:"category_id,omitempty"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Quantity    int             `json:"quantity"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

// CartDTO 携带三个派生金额。OffersRemoved 表示本次读取时有失效的优惠被清理
type CartDTO struct {
	ID            int64             `json:"id"`
	UserID        int64             `json:"user_id"`
	Items         []CartItemDTO     `json:"items"`
	AppliedOffers []AppliedOfferDTO `json:"applied_offers"`
	ItemCount     int               `json:"item_count"`
	TotalPrice    decimal.Decimal   `json:"total_price"`
	DiscountTotal decimal.Decimal   `json:"discount_total"`
	FinalTotal    decimal.Decimal   `json:"final_total"`
	OffersRemoved bool              `json:"offers_removed"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

func toCartDTO(c *domain.Cart, offersRemoved bool) CartDTO {
	items := make([]CartItemDTO, 0, len(c.Items))
	for _, item := range c.Items {
		items = append(items, CartItemDTO{
			ID:          item.ID,
			ProductID:   item.Product.ID,
			ProductName: item.Product.Name,
			CategoryID:  item.Product.CategoryID,
			UnitPrice:   item.Product.Price,
			Quantity:    item.Quantity,
			LineTotal:   item.Cost(),
		})
	}
	return CartDTO{
		ID:            c.ID,
		UserID:        c.UserID,
		Items:         items,
		AppliedOffers: toAppliedOfferDTOs(c.Ledger.Entries()),
		ItemCount:     c.ItemCount(),
		TotalPrice:    c.TotalPrice(),
		DiscountTotal: c.DiscountTotal(),
		FinalTotal:    c.FinalTotal(),
		OffersRemoved: offersRemoved,
		UpdatedAt:     c.UpdatedAt,
	}
}

// CartOffersResponse 对应购物车优惠面板
type CartOffersResponse struct {
	AvailableOffers []OfferCandidate  `json:"available_offers"`
	AppliedOffers   []AppliedOfferDTO `json:"applied_offers"`
	AutoApplied     *AppliedOfferDTO  `json:"auto_applied,omitempty"`
	OffersRemoved   bool              `json:"offers_removed"`
	TotalPrice      decimal.Decimal   `json:"total_price"`
	DiscountTotal   decimal.Decimal   `json:"discount_total"`
	FinalTotal      decimal.Decimal   `json:"final_total"`
}

type ApplicableOffersResponse struct {
	Offers        []OfferCandidate `json:"offers"`
	AutoApplied   *AppliedOfferDTO `json:"auto_applied,omitempty"`
	OffersRemoved bool             `json:"offers_removed"`
	Message       string           `json:"message,omitempty"`
}

// ApplyOfferRequest 用 OfferID 或 Code 指定优惠, 两者都给时以 OfferID 为准
type ApplyOfferRequest struct {
	OfferID int64  `json:"offer_id"`
	Code    string `json:"code"`
}

type ApplyOfferResponse struct {
	Success         bool            `json:"success"`
	Message         string          `json:"message"`
	DiscountAmount  decimal.Decimal `json:"discount_amount"`
	AppliedOffer    AppliedOfferDTO `json:"applied_offer"`
	ReplacedOfferID *int64          `json:"replaced_offer_id,omitempty"`
	Cart            CartDTO         `json:"cart"`
}

type RemoveOfferResponse struct {
	Success bool    `json:"success"`
	Removed bool    `json:"removed"`
	Message string  `json:"message"`
	Cart    CartDTO `json:"cart"`
}

// ValidateCodeResponse 是一次不落库的试算
type ValidateCodeResponse struct {
	Valid          bool            `json:"valid"`
	Message        string          `json:"message"`
	Code           string          `json:"code,omitempty"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	Offer          *OfferDTO       `json:"offer,omitempty"`
}

type AddItemRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type UpdateItemRequest struct {
	Quantity int `json:"quantity"`
}

// CheckoutRequest 结算的输入。PaymentDetails 原样透传给支付机构
type CheckoutRequest struct {
	ShippingAddress string            `json:"shipping_address"`
	PaymentMethod   string            `json:"payment_method"`
	PaymentDetails  map[string]string `json:"payment_details"`
}

type CheckoutResponse struct {
	OrderID        int64                `json:"order_id"`
	OrderNumber    string               `json:"order_number"`
	TotalAmount    decimal.Decimal      `json:"total_amount"`
	DiscountAmount decimal.Decimal      `json:"discount_amount"`
	FinalAmount    decimal.Decimal      `json:"final_amount"`
	Status         domain.OrderStatus   `json:"status"`
	PaymentStatus  domain.PaymentStatus `json:"payment_status"`
}

type OrderItemDTO struct {
	ID             int64           `json:"id"`
	ProductID      int64           `json:"product_id"`
	ProductName    string          `json:"product_name"`
	Quantity       int             `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	FreeQuantity   int             `json:"free_quantity"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
}

type OrderDTO struct {
	ID              int64                `json:"id"`
	OrderNumber     string               `json:"order_number"`
	UserID          int64                `json:"user_id"`
	TotalAmount     decimal.Decimal      `json:"total_amount"`
	DiscountAmount  decimal.Decimal      `json:"discount_amount"`
	FinalAmount     decimal.Decimal      `json:"final_amount"`
	AppliedOffers   []AppliedOfferDTO    `json:"applied_offers"`
	Items           []OrderItemDTO       `json:"items"`
	Status          domain.OrderStatus   `json:"status"`
	ShippingAddress string               `json:"shipping_address"`
	PaymentMethod   string               `json:"payment_method"`
	PaymentStatus   domain.PaymentStatus `json:"payment_status"`
	RefundAmount    decimal.Decimal      `json:"refund_amount"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
}

func toOrderDTO(o *domain.Order) OrderDTO {
	items := make([]OrderItemDTO, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, OrderItemDTO{
			ID:             item.ID,
			ProductID:      item.ProductID,
			ProductName:    item.ProductName,
			Quantity:       item.Quantity,
			UnitPrice:      item.UnitPrice,
			FreeQuantity:   item.FreeQuantity,
			DiscountAmount: item.DiscountAmount,
		})
	}
	return OrderDTO{
		ID:              o.ID,
		OrderNumber:     o.OrderNumber,
		UserID:          o.UserID,
		TotalAmount:     o.TotalAmount,
		DiscountAmount:  o.DiscountAmount,
		FinalAmount:     o.FinalAmount,
		AppliedOffers:   toAppliedOfferDTOs(o.AppliedOffers),
		Items:           items,
		Status:          o.Status,
		ShippingAddress: o.ShippingAddress,
		PaymentMethod:   o.PaymentMethod,
		PaymentStatus:   o.PaymentStatus,
		RefundAmount:    o.RefundAmount,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
}

type CancelOrderResponse struct {
	Success      bool            `json:"success"`
	Message      string          `json:"message"`
	RefundAmount decimal.Decimal `json:"refund_amount"`
	Order        OrderDTO        `json:"order"`
}

type UpdateStatusRequest struct {
	Status domain.OrderStatus `json:"status"`
}

// CreateOfferRequest 是管理端创建优惠的显式请求结构。
// 金额字段为 nil 表示未提供; 日期接受 RFC3339, 不带时区的日期时间, 或者只有日期。
type CreateOfferRequest struct {
	Code               string           `json:"code"`
	Name               string           `json:"name"`
	Description        string           `json:"description"`
	OfferType          domain.OfferType `json:"offer_type"`
	DiscountPercentage *decimal.Decimal `json:"discount_percentage"`
	FlatDiscount       *decimal.Decimal `json:"flat_discount"`
	MinOrderValue      *decimal.Decimal `json:"min_order_value"`
	MaxDiscount        *decimal.Decimal `json:"max_discount"`
	ProductIDs         []int64          `json:"product_ids"`
	CategoryIDs        []int64          `json:"category_ids"`
	IsActive           *bool            `json:"is_active"`
	AutoApply          bool             `json:"auto_apply"`
	FirstTimeOnly      bool             `json:"first_time_only"`
	Priority           domain.Priority  `json:"priority"`
	BadgeText          string           `json:"badge_text"`
	RuleExpression     string           `json:"rule_expression"`
	StartDate          string           `json:"start_date"`
	EndDate            string           `json:"end_date"`
}

// UpdateOfferRequest 部分更新, 只有非 nil 的字段会被修改
type UpdateOfferRequest struct {
	Code               *string           `json:"code"`
	Name               *string           `json:"name"`
	Description        *string           `json:"description"`
	OfferType          *domain.OfferType `json:"offer_type"`
	DiscountPercentage *decimal.Decimal  `json:"discount_percentage"`
	FlatDiscount       *decimal.Decimal  `json:"flat_discount"`
	MinOrderValue      *decimal.Decimal  `json:"min_order_value"`
	MaxDiscount        *decimal.Decimal  `json:"max_discount"`
	ClearMaxDiscount   bool              `json:"clear_max_discount"`
	ProductIDs         *[]int64          `json:"product_ids"`
	CategoryIDs        *[]int64          `json:"category_ids"`
	IsActive           *bool             `json:"is_active"`
	AutoApply          *bool             `json:"auto_apply"`
	FirstTimeOnly      *bool             `json:"first_time_only"`
	Priority           *domain.Priority  `json:"priority"`
	BadgeText          *string           `json:"badge_text"`
	RuleExpression     *string           `json:"rule_expression"`
	StartDate          *string           `json:"start_date"`
	EndDate            *string           `json:"end_date"`
}

type OfferChangeResponse struct {
	Offer        OfferDTO `json:"offer"`
	CartsUpdated int64    `json:"carts_updated"`
}

type DeleteOfferResponse struct {
	Deleted      bool  `json:"deleted"`
	OfferID      int64 `json:"offer_id"`
	CartsUpdated int64 `json:"carts_updated"`
}

// UsageStatsResponse 是用量对账的结果
type UsageStatsResponse struct {
	OfferID        int64    `json:"offer_id"`
	OldCount       int64    `json:"old_count"`
	UsedCount      int64    `json:"used_count"`
	MatchingOrders []string `json:"matching_orders"`
}

// SweepResult 是一次过期清理的统计
type SweepResult struct {
	ExpiredOffersDeleted int64 `json:"expired_offers_deleted"`
	CartsUpdated         int64 `json:"carts_updated"`
}
