package adapter

import (
	"context"
	"fmt"
	"strings"

	"storefront/internal/pkg/httpclient"
	"storefront/internal/service/storefront/domain/port"

	"github.com/shopspring/decimal"
)

// PaymentHTTPAdapter 实现了 port.PaymentAuthority 接口, 调用外部支付网关
type PaymentHTTPAdapter struct {
	client  *httpclient.Client
	baseURL string
}

func NewPaymentHTTPAdapter(client *httpclient.Client, baseURL string) *PaymentHTTPAdapter {
	return &PaymentHTTPAdapter{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

func (a *PaymentHTTPAdapter) CreateIntent(ctx context.Context, req port.PaymentIntentRequest) (*port.PaymentIntent, error) {
	var intent port.PaymentIntent
	if err := a.client.PostJSON(ctx, a.baseURL+"/v1/intents", req, &intent); err != nil {
		return nil, fmt.Errorf("create payment intent for %s: %w", req.OrderNumber, err)
	}
	if intent.ID == "" {
		return nil, fmt.Errorf("payment gateway returned empty intent id for %s", req.OrderNumber)
	}
	return &intent, nil
}

func (a *PaymentHTTPAdapter) Confirm(ctx context.Context, intentID string) error {
	var intent port.PaymentIntent
	if err := a.client.PostJSON(ctx, a.baseURL+"/v1/intents/"+intentID+"/confirm", struct{}{}, &intent); err != nil {
		return fmt.Errorf("confirm payment intent %s: %w", intentID, err)
	}
	if intent.Status != "" && intent.Status != "succeeded" {
		return fmt.Errorf("payment intent %s not succeeded: %s", intentID, intent.Status)
	}
	return nil
}

func (a *PaymentHTTPAdapter) Refund(ctx context.Context, intentID string, amount decimal.Decimal) error {
	body := map[string]any{"amount": amount}
	if err := a.client.PostJSON(ctx, a.baseURL+"/v1/intents/"+intentID+"/refund", body, nil); err != nil {
		return fmt.Errorf("refund payment intent %s: %w", intentID, err)
	}
	return nil
}
