package application

import (
	"context"
	"fmt"
	"time"

	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/metrics"
	"storefront/internal/service/storefront/domain"
	"storefront/internal/service/storefront/domain/port"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Clock 让测试可以固定当前时间
type Clock func() time.Time

func systemClock() time.Time { return time.Now().UTC() }

func cartLockKey(userID int64) string {
	return fmt.Sprintf("cart:%d", userID)
}

// withCartLock 在购物车锁内执行 fn。锁保证同一用户的读-改-写不交错,
// 行锁 (GetForUpdate) 再在存储层兜底。
func withCartLock(ctx context.Context, locker port.CartLocker, userID int64, fn func(ctx context.Context) error) error {
	unlock, err := locker.Lock(ctx, cartLockKey(userID))
	if err != nil {
		return fmt.Errorf("lock cart of user %d: %w", userID, err)
	}
	defer unlock()
	return fn(ctx)
}

// purgeLedger 用优惠的实时状态校验账本, 丢弃失效记录
func purgeLedger(ctx context.Context, repos domain.Repositories, cart *domain.Cart, now time.Time) ([]domain.AppliedOffer, error) {
	if cart.Ledger.Len() == 0 {
		return nil, nil
	}
	live, err := repos.Offers().FindByIDsForShare(ctx, cart.Ledger.OfferIDs())
	if err != nil {
		return nil, err
	}
	removed := cart.PurgeInvalidOffers(live, now)
	if len(removed) > 0 {
		metrics.OffersRemoved.WithLabelValues("expired").Add(float64(len(removed)))
	}
	return removed, nil
}

// lockOffer 以共享锁读取优惠, 保证本事务提交前管理端无法修改或摘除它
func lockOffer(ctx context.Context, repos domain.Repositories, id int64) (*domain.Offer, error) {
	live, err := repos.Offers().FindByIDsForShare(ctx, []int64{id})
	if err != nil {
		return nil, err
	}
	offer, ok := live[id]
	if !ok {
		return nil, domain.ErrOfferNotFoundOrInactive
	}
	return offer, nil
}

func shopperOf(ctx context.Context, repos domain.Repositories, userID int64) (domain.Shopper, error) {
	if userID == 0 {
		return domain.Shopper{}, nil
	}
	n, err := repos.Orders().CountByUser(ctx, userID)
	if err != nil {
		return domain.Shopper{}, err
	}
	return domain.Shopper{UserID: userID, Authenticated: true, PriorOrders: n}, nil
}

func removedEvents(userID int64, removed []domain.AppliedOffer, reason string, now time.Time) []domain.Event {
	events := make([]domain.Event, 0, len(removed))
	for _, e := range removed {
		events = append(events, domain.NewEvent(domain.EventOfferRemoved, cartLockKey(userID), now, map[string]any{
			"user_id":  userID,
			"offer_id": e.OfferID,
			"reason":   reason,
		}))
	}
	return events
}

// publishAll 在事务提交之后调用。发布失败只记日志, 不影响已经提交的业务结果
func publishAll(ctx context.Context, events port.EventPublisher, batch []domain.Event) {
	for _, ev := range batch {
		if err := events.Publish(ctx, ev); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("event_type", string(ev.Type)).Str("key", ev.Key).Msg("failed to publish event")
		}
	}
}

// fail 把错误记到 span 上。可预期的业务错误不标记 span 为失败
func fail(span trace.Span, err error) error {
	span.RecordError(err)
	if _, ok := domain.AsError(err); !ok {
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func rejectMetric(err *domain.Error) {
	if err != nil {
		metrics.OfferRejections.WithLabelValues(err.Code).Inc()
	}
}

func offerMode(autoApply bool) string {
	if autoApply {
		return "auto"
	}
	return "manual"
}
