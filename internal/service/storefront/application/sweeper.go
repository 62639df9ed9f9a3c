package application

import (
	"context"
	"time"

	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/metrics"
	"storefront/internal/service/storefront/domain"
	"storefront/internal/service/storefront/domain/port"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

// ExpirySweeper 是过期清理的唯一实现。后台循环, 独立任务和管理端手动触发都调用 RunOnce
type ExpirySweeper struct {
	uow    domain.UnitOfWork
	locker port.CartLocker
	events port.EventPublisher
	tracer trace.Tracer
	now    Clock

	group singleflight.Group
}

func NewExpirySweeper(uow domain.UnitOfWork, locker port.CartLocker, events port.EventPublisher, tracer trace.Tracer, now Clock) *ExpirySweeper {
	if now == nil {
		now = systemClock
	}
	return &ExpirySweeper{uow: uow, locker: locker, events: events, tracer: tracer, now: now}
}

// RunOnce 执行一次清理。并发调用会合并成同一次执行并共享结果
func (s *ExpirySweeper) RunOnce(ctx context.Context) (SweepResult, error) {
	v, err, _ := s.group.Do("sweep", func() (any, error) {
		return s.sweep(ctx)
	})
	if err != nil {
		metrics.SweeperRuns.WithLabelValues("error").Inc()
		return SweepResult{}, err
	}
	metrics.SweeperRuns.WithLabelValues("ok").Inc()
	return v.(SweepResult), nil
}

func (s *ExpirySweeper) sweep(ctx context.Context) (SweepResult, error) {
	ctx, span := s.tracer.Start(ctx, "sweeper.RunOnce")
	defer span.End()

	now := s.now()
	var (
		result  SweepResult
		expired []int64
	)

	// 1. 过期优惠: 先从所有账本摘除, 再物理删除, 同一个事务
	err := s.uow.Do(ctx, func(ctx context.Context, repos domain.Repositories) error {
		offers, err := repos.Offers().ListExpired(ctx, now)
		if err != nil {
			return err
		}
		if len(offers) == 0 {
			return nil
		}
		expired = make([]int64, 0, len(offers))
		for _, o := range offers {
			expired = append(expired, o.ID)
		}
		if result.CartsUpdated, err = repos.Carts().DetachOffers(ctx, expired...); err != nil {
			return err
		}
		result.ExpiredOffersDeleted, err = repos.Offers().Delete(ctx, expired...)
		return err
	})
	if err != nil {
		return SweepResult{}, fail(span, err)
	}

	// 2. 其余账本按优惠实时状态对账 (停用, 未开始), 每个购物车单独加锁
	reconciled, err := s.reconcileLedgers(ctx, now)
	if err != nil {
		return SweepResult{}, fail(span, err)
	}
	result.CartsUpdated += reconciled

	metrics.ExpiredOffersDeleted.Add(float64(result.ExpiredOffersDeleted))
	metrics.CartsReconciled.Add(float64(result.CartsUpdated))
	span.SetAttributes(
		attribute.Int64("sweeper.offers_deleted", result.ExpiredOffersDeleted),
		attribute.Int64("sweeper.carts_updated", result.CartsUpdated),
	)
	if result.ExpiredOffersDeleted > 0 || result.CartsUpdated > 0 {
		logger.Ctx(ctx).Info().Int64("expired_offers_deleted", result.ExpiredOffersDeleted).
			Int64("carts_updated", result.CartsUpdated).Msg("expired offers cleaned up")
	}
	if len(expired) > 0 {
		publishAll(ctx, s.events, []domain.Event{domain.NewEvent(domain.EventOffersExpired, "offers", now, map[string]any{
			"offer_ids":     expired,
			"carts_updated": result.CartsUpdated,
		})})
	}
	return result, nil
}

func (s *ExpirySweeper) reconcileLedgers(ctx context.Context, now time.Time) (int64, error) {
	var carts []*domain.Cart
	err := s.uow.Do(ctx, func(ctx context.Context, repos domain.Repositories) error {
		var err error
		carts, err = repos.Carts().ListWithOffers(ctx)
		return err
	})
	if err != nil {
		return 0, err
	}

	var updated int64
	for _, snapshot := range carts {
		userID := snapshot.UserID
		var removed []domain.AppliedOffer
		err := withCartLock(ctx, s.locker, userID, func(ctx context.Context) error {
			return s.uow.Do(ctx, func(ctx context.Context, repos domain.Repositories) error {
				cart, err := repos.Carts().GetForUpdate(ctx, userID)
				if err != nil {
					return err
				}
				if removed, err = purgeLedger(ctx, repos, cart, now); err != nil {
					return err
				}
				if len(removed) == 0 {
					return nil
				}
				return repos.Carts().Save(ctx, cart)
			})
		})
		if err != nil {
			return updated, err
		}
		if len(removed) > 0 {
			updated++
			publishAll(ctx, s.events, removedEvents(userID, removed, "expired", now))
		}
	}
	return updated, nil
}

// Run 按 interval 循环清理直到 ctx 结束。出错时记录日志并等待 backoff, 不会退出
func (s *ExpirySweeper) Run(ctx context.Context, interval, backoff time.Duration) error {
	logger.Ctx(ctx).Info().Dur("interval", interval).Dur("backoff", backoff).Msg("expiry sweeper started")
	wait := time.Duration(0)
	for {
		select {
		case <-ctx.Done():
			logger.Ctx(ctx).Info().Msg("expiry sweeper stopped")
			return nil
		case <-time.After(wait):
		}

		if _, err := s.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				continue
			}
			logger.Ctx(ctx).Error().Err(err).Dur("retry_in", backoff).Msg("expiry sweep failed")
			wait = backoff
			continue
		}
		wait = interval
	}
}
