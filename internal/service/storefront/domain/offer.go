package domain

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// OfferType 决定折扣计算走哪个分支。
type OfferType string

const (
	OfferTypePercentage OfferType = "percentage_discount" // 按比例打折
	OfferTypeFlat       OfferType = "flat_discount"       // 立减
	OfferTypeCategory   OfferType = "category_offer"      // 品类折扣
	OfferTypeFirstTime  OfferType = "first_time_only"     // 首单专享
)

// Valid 判断类型是否属于受支持的集合。
func (t OfferType) Valid() bool {
	switch t {
	case OfferTypePercentage, OfferTypeFlat, OfferTypeCategory, OfferTypeFirstTime:
		return true
	}
	return false
}

// Priority 只用于多个自动优惠同时满足时的排序。
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Rank 返回可比较的序数, 未知值视为 low。
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	default:
		return 1
	}
}

func (p Priority) Valid() bool {
	return p == PriorityLow || p == PriorityMedium || p == PriorityHigh
}

// OfferStatus 是管理端展示用的派生状态, 不落库。
type OfferStatus string

const (
	OfferStatusActive    OfferStatus = "active"
	OfferStatusScheduled OfferStatus = "scheduled"
	OfferStatusExpired   OfferStatus = "expired"
	OfferStatusInactive  OfferStatus = "inactive"
)

// Offer 是一条促销规则: 类型, 折扣参数, 适用范围和有效期 [StartDate, EndDate)。
type Offer struct {
	ID          int64
	Code        string
	Name        string
	Description string
	Type        OfferType

	DiscountPercentage decimal.Decimal
	FlatDiscount       decimal.Decimal
	MinOrderValue      decimal.Decimal
	MaxDiscount        decimal.NullDecimal

	// 适用范围取并集: 商品命中或者商品所属品类命中都算
	ProductIDs  []int64
	CategoryIDs []int64

	IsActive      bool
	AutoApply     bool
	FirstTimeOnly bool
	Priority      Priority
	BadgeOverride string

	// RuleExpression 是可选的 CEL 表达式, 在类型规则通过之后再做一次校验
	RuleExpression string

	StartDate time.Time
	EndDate   time.Time
	UsedCount int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsValid 当且仅当优惠处于激活状态并且 now 落在 [StartDate, EndDate) 内。
func (o *Offer) IsValid(now time.Time) bool {
	return o.IsActive && !now.Before(o.StartDate) && now.Before(o.EndDate)
}

// IsExpired 只看时间: now >= EndDate。
func (o *Offer) IsExpired(now time.Time) bool {
	return !now.Before(o.EndDate)
}

// Status 派生出管理端的状态标签。
func (o *Offer) Status(now time.Time) OfferStatus {
	switch {
	case !o.IsActive:
		return OfferStatusInactive
	case o.IsExpired(now):
		return OfferStatusExpired
	case now.Before(o.StartDate):
		return OfferStatusScheduled
	default:
		return OfferStatusActive
	}
}

// validityError 给出不可用原因, 可用时返回 nil。
func (o *Offer) validityError(now time.Time) *Error {
	switch {
	case !o.IsActive:
		return ErrOfferNotFoundOrInactive
	case o.IsExpired(now):
		return ErrOfferNotFoundOrInactive.WithMessage("This offer has expired")
	case now.Before(o.StartDate):
		return ErrOfferNotFoundOrInactive.WithMessage("This offer is not active yet")
	}
	return nil
}

// CanUserUse 首单专享的优惠要求用户已登录并且没有任何历史订单。
func (o *Offer) CanUserUse(shopper Shopper) bool {
	if !o.FirstTimeOnly && o.Type != OfferTypeFirstTime {
		return true
	}
	return shopper.Authenticated && shopper.PriorOrders == 0
}

func (o *Offer) hasProduct(id int64) bool {
	for _, p := range o.ProductIDs {
		if p == id {
			return true
		}
	}
	return false
}

func (o *Offer) hasCategory(id int64) bool {
	if id == 0 {
		return false
	}
	for _, c := range o.CategoryIDs {
		if c == id {
			return true
		}
	}
	return false
}

// EligibleItems 返回命中商品集合或品类集合的购物车行。
func (o *Offer) EligibleItems(items []LineItem) []LineItem {
	var eligible []LineItem
	for _, item := range items {
		if o.hasProduct(item.ProductID) || o.hasCategory(item.CategoryID) {
			eligible = append(eligible, item)
		}
	}
	return eligible
}

// AppliesToProduct 用于商品详情页展示, 没有配置范围的优惠对所有商品可见。
func (o *Offer) AppliesToProduct(productID, categoryID int64) bool {
	if len(o.ProductIDs) == 0 && len(o.CategoryIDs) == 0 {
		return true
	}
	return o.hasProduct(productID) || o.hasCategory(categoryID)
}

// BadgeText 优先使用配置的文案, 否则按类型生成。
func (o *Offer) BadgeText() string {
	if o.BadgeOverride != "" {
		return o.BadgeOverride
	}
	switch o.Type {
	case OfferTypePercentage, OfferTypeCategory:
		return o.DiscountPercentage.String() + "% OFF"
	case OfferTypeFlat:
		return "Rs." + o.FlatDiscount.String() + " OFF"
	case OfferTypeFirstTime:
		return "First Purchase Offer"
	}
	return "Special Offer"
}

// SortForAutoApply 按优先级降序, 同优先级按创建时间降序。
func SortForAutoApply(offers []*Offer) {
	sort.SliceStable(offers, func(i, j int) bool {
		ri, rj := offers[i].Priority.Rank(), offers[j].Priority.Rank()
		if ri != rj {
			return ri > rj
		}
		return offers[i].CreatedAt.After(offers[j].CreatedAt)
	})
}

// LineItem 是计算器看到的购物车行, 与存储无关。
type LineItem struct {
	ProductID  int64
	CategoryID int64 // 0 表示商品没有品类
	Quantity   int
	UnitPrice  decimal.Decimal
}

func (l LineItem) Cost() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Shopper 描述发起请求的用户。
type Shopper struct {
	UserID        int64
	Authenticated bool
	PriorOrders   int64
}
