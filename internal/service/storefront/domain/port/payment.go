package port

import (
	"context"

	"github.com/shopspring/decimal"
)

// PaymentIntentRequest 创建支付意图的参数
type PaymentIntentRequest struct {
	OrderNumber string            `json:"order_number"`
	UserID      int64             `json:"user_id"`
	Amount      decimal.Decimal   `json:"amount"`
	Method      string            `json:"method"`
	Details     map[string]string `json:"details,omitempty"`
}

// PaymentIntent 支付机构返回的意图
type PaymentIntent struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// PaymentAuthority 外部支付机构。调用方负责超时控制。
type PaymentAuthority interface {
	CreateIntent(ctx context.Context, req PaymentIntentRequest) (*PaymentIntent, error)
	Confirm(ctx context.Context, intentID string) error
	Refund(ctx context.Context, intentID string, amount decimal.Decimal) error
}
