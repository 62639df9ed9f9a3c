package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// DiscountResult 是一次计算的结果。Success 为 false 时 Err 说明原因, 计算器本身从不返回 error。
type DiscountResult struct {
	Success        bool
	DiscountAmount decimal.Decimal
	EligibleTotal  decimal.Decimal
	OfferID        int64
	OfferCode      string
	OfferName      string
	OfferType      OfferType
	BadgeText      string
	AutoApply      bool
	FreeItems      []FreeItem
	Err            *Error
}

func failed(offer *Offer, err *Error) DiscountResult {
	return DiscountResult{OfferID: offer.ID, OfferCode: offer.Code, OfferName: offer.Name, OfferType: offer.Type, Err: err}
}

// Calculator 按优惠类型分派折扣计算。
type Calculator struct {
	rules RuleEngine
}

// NewCalculator rules 可以为 nil, 此时忽略优惠上的规则表达式。
func NewCalculator(rules RuleEngine) *Calculator {
	return &Calculator{rules: rules}
}

// Calculate 针对购物车行计算某个优惠的折扣。
func (c *Calculator) Calculate(offer *Offer, items []LineItem, shopper Shopper, now time.Time) DiscountResult {
	if err := offer.validityError(now); err != nil {
		return failed(offer, err)
	}
	if !offer.CanUserUse(shopper) {
		if !shopper.Authenticated {
			return failed(offer, ErrFirstTimeOnlyViolation.WithMessage("User must be logged in"))
		}
		return failed(offer, ErrFirstTimeOnlyViolation)
	}

	var (
		eligible []LineItem
		raw      decimal.Decimal
	)
	switch offer.Type {
	case OfferTypePercentage:
		eligible = offer.EligibleItems(items)
	case OfferTypeFlat:
		eligible = offer.EligibleItems(items)
	case OfferTypeCategory:
		if len(offer.CategoryIDs) == 0 {
			return failed(offer, ErrNoCategoriesConfigured)
		}
		eligible = offer.EligibleItems(items)
	case OfferTypeFirstTime:
		// 首单优惠没有范围限制, 对整个购物车生效
		eligible = items
	default:
		return failed(offer, ErrUnsupportedOfferType.WithMessage("Offer type %q is not supported", offer.Type))
	}

	if len(eligible) == 0 {
		return failed(offer, ErrNoEligibleItems)
	}
	eligibleTotal := subtotal(eligible)
	if eligibleTotal.LessThan(offer.MinOrderValue) {
		return failed(offer, ErrMinOrderNotMet.WithMessage("Minimum order value of Rs.%s required", offer.MinOrderValue.StringFixed(2)))
	}

	switch offer.Type {
	case OfferTypeFlat:
		raw = decimal.Min(offer.FlatDiscount, eligibleTotal)
	default:
		raw = eligibleTotal.Mul(offer.DiscountPercentage).Div(hundred)
		if offer.MaxDiscount.Valid && raw.GreaterThan(offer.MaxDiscount.Decimal) {
			raw = offer.MaxDiscount.Decimal
		}
	}

	if offer.RuleExpression != "" && c.rules != nil {
		ok, err := c.rules.Evaluate(offer.RuleExpression, Fact{
			CartTotal:     subtotal(items).InexactFloat64(),
			EligibleTotal: eligibleTotal.InexactFloat64(),
			ItemCount:     itemCount(items),
			PriorOrders:   shopper.PriorOrders,
			Authenticated: shopper.Authenticated,
			UserID:        shopper.UserID,
		})
		if err != nil {
			return failed(offer, ErrInvalidRule.WithMessage("Offer rule expression is invalid: %v", err))
		}
		if !ok {
			return failed(offer, ErrRuleNotSatisfied)
		}
	}

	amount := decimal.Min(raw.Round(2), eligibleTotal)
	return DiscountResult{
		Success:        true,
		DiscountAmount: amount,
		EligibleTotal:  eligibleTotal,
		OfferID:        offer.ID,
		OfferCode:      offer.Code,
		OfferName:      offer.Name,
		OfferType:      offer.Type,
		BadgeText:      offer.BadgeText(),
		AutoApply:      offer.AutoApply,
		FreeItems:      allocate(eligible, eligibleTotal, amount),
	}
}

func subtotal(items []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Cost())
	}
	return total
}

func itemCount(items []LineItem) int64 {
	var n int64
	for _, item := range items {
		n += int64(item.Quantity)
	}
	return n
}

// allocate 按行金额比例分摊折扣, 最后一行吸收舍入误差。
func allocate(eligible []LineItem, total, amount decimal.Decimal) []FreeItem {
	if total.IsZero() || amount.IsZero() {
		return nil
	}
	shares := make([]FreeItem, 0, len(eligible))
	remaining := amount
	for i, item := range eligible {
		share := remaining
		if i < len(eligible)-1 {
			share = amount.Mul(item.Cost()).Div(total).Round(2)
			remaining = remaining.Sub(share)
		}
		shares = append(shares, FreeItem{ProductID: item.ProductID, DiscountAmount: share})
	}
	return shares
}
