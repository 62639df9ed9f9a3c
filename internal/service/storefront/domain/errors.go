package domain

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorKind 是领域错误的分类, 决定调用方如何处理 (以及 HTTP 层如何映射状态码)。
type ErrorKind int

const (
	KindNotFound ErrorKind = iota + 1
	KindInactive
	KindExpired
	KindIneligibleCart
	KindPolicyViolation
	KindEmptyCart
	KindInvalidConfiguration
	KindInvalidRequest
	KindPaymentFailure
)

// Error 是所有可预期的业务失败。Code 稳定不变, Message 可直接展示给用户。
type Error struct {
	Code    string
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is 按 Code 匹配, 使得带参数的消息 (例如最低消费金额) 依然可以和哨兵值比较。
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithMessage 基于哨兵错误派生一个携带具体说明的新错误。
func (e *Error) WithMessage(format string, args ...any) *Error {
	return &Error{Code: e.Code, Kind: e.Kind, Message: fmt.Sprintf(format, args...)}
}

func newError(code string, kind ErrorKind, msg string) *Error {
	return &Error{Code: code, Kind: kind, Message: msg}
}

// 优惠计算与购物车相关
var (
	ErrNoEligibleItems         = newError("NO_ELIGIBLE_ITEMS", KindIneligibleCart, "No eligible items in cart for this offer")
	ErrMinOrderNotMet          = newError("MIN_ORDER_NOT_MET", KindIneligibleCart, "Minimum order value not met")
	ErrNoCategoriesConfigured  = newError("NO_CATEGORIES_CONFIGURED", KindInvalidConfiguration, "No categories configured for this offer")
	ErrFirstTimeOnlyViolation  = newError("FIRST_TIME_ONLY_VIOLATION", KindPolicyViolation, "This offer is only valid for first-time customers")
	ErrOfferNotFoundOrInactive = newError("OFFER_NOT_FOUND_OR_INACTIVE", KindInactive, "Invalid or inactive offer")
	ErrAlreadyApplied          = newError("ALREADY_APPLIED", KindPolicyViolation, "This offer is already applied to your cart")
	ErrCannotRemoveAutoApply   = newError("CANNOT_REMOVE_AUTO_APPLY", KindPolicyViolation, "Auto-applied offers cannot be removed")
	ErrEmptyCart               = newError("EMPTY_CART", KindEmptyCart, "Cart is empty")
	ErrUnsupportedOfferType    = newError("UNSUPPORTED_OFFER_TYPE", KindInvalidConfiguration, "Offer type is not supported")
	ErrRuleNotSatisfied        = newError("RULE_NOT_SATISFIED", KindIneligibleCart, "Cart does not satisfy the offer conditions")
	ErrInvalidRule             = newError("INVALID_RULE", KindInvalidConfiguration, "Offer rule expression is invalid")
	ErrOfferNotFound           = newError("OFFER_NOT_FOUND", KindNotFound, "Offer not found")
	ErrDuplicateOfferCode      = newError("DUPLICATE_OFFER_CODE", KindInvalidRequest, "Offer code already exists")
	ErrCartNotFound            = newError("CART_NOT_FOUND", KindNotFound, "Cart not found")
	ErrCartItemNotFound        = newError("CART_ITEM_NOT_FOUND", KindNotFound, "Cart item not found")
	ErrProductNotFound         = newError("PRODUCT_NOT_FOUND", KindNotFound, "Product not found")
	ErrProductUnavailable      = newError("PRODUCT_UNAVAILABLE", KindInvalidRequest, "Product is not available")
	ErrInvalidRequest          = newError("INVALID_REQUEST", KindInvalidRequest, "Invalid request")
	ErrAuthenticationRequired  = newError("AUTHENTICATION_REQUIRED", KindInvalidRequest, "User must be logged in")
	ErrCartBusy                = newError("CART_BUSY", KindPolicyViolation, "Cart is being updated by another request, please retry")
)

// 订单相关
var (
	ErrOrderNotFound           = newError("ORDER_NOT_FOUND", KindNotFound, "Order not found")
	ErrOrderNotCancellable     = newError("ORDER_NOT_CANCELLABLE", KindPolicyViolation, "Order cannot be cancelled in its current status")
	ErrInvalidStatusTransition = newError("INVALID_STATUS_TRANSITION", KindPolicyViolation, "Invalid order status transition")
	ErrPaymentFailed           = newError("PAYMENT_FAILED", KindPaymentFailure, "Payment failed")
	ErrPaymentUnavailable      = newError("PAYMENT_UNAVAILABLE", KindPaymentFailure, "Payment method is not available")
)

// AsError 取出错误链上的领域错误。
func AsError(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}
