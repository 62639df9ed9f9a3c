//go:generate mockgen -destination=mocks/mock_port.go -package=mocks storefront/internal/service/storefront/domain/port EventPublisher,PaymentAuthority,CartLocker

package port

import (
	"context"
	"storefront/internal/service/storefront/domain"
)

// EventPublisher 领域事件出站端口
type EventPublisher interface {
	Publish(ctx context.Context, event domain.Event) error
}
