package application

import (
	"context"
	"strings"
	"time"

	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/metrics"
	"storefront/internal/service/storefront/domain"
	"storefront/internal/service/storefront/domain/port"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// OfferService 面向顾客的优惠用例: 查看, 应用, 移除, 试算
type OfferService struct {
	uow        domain.UnitOfWork
	locker     port.CartLocker
	events     port.EventPublisher
	calculator *domain.Calculator
	tracer     trace.Tracer
	now        Clock
}

func NewOfferService(uow domain.UnitOfWork, locker port.CartLocker, events port.EventPublisher, calculator *domain.Calculator, tracer trace.Tracer, now Clock) *OfferService {
	if now == nil {
		now = systemClock
	}
	return &OfferService{uow: uow, locker: locker, events: events, calculator: calculator, tracer: tracer, now: now}
}

type sweepResult struct {
	candidates []OfferCandidate
	applied    *domain.AppliedOffer
}

// autoApplySweep 按优先级遍历有效优惠。第一个计算成功的自动优惠被挂载后不再挂载其他自动优惠,
// 其余计算成功的手动优惠作为候选返回。
func (s *OfferService) autoApplySweep(cart *domain.Cart, offers []*domain.Offer, shopper domain.Shopper, now time.Time) sweepResult {
	var out sweepResult
	items := cart.LineItems()
	for _, offer := range offers {
		if cart.Ledger.Contains(offer.ID) {
			continue
		}
		result := s.calculator.Calculate(offer, items, shopper, now)
		if !result.Success {
			continue
		}
		if !offer.AutoApply {
			out.candidates = append(out.candidates, toCandidate(offer, result))
			continue
		}
		if out.applied != nil {
			continue
		}
		if _, err := cart.ApplyOffer(result, now); err != nil {
			continue
		}
		entry, _ := entryOf(cart, offer.ID)
		out.applied = &entry
		metrics.OffersApplied.WithLabelValues(string(offer.Type), "auto").Inc()
	}
	if out.candidates == nil {
		out.candidates = []OfferCandidate{}
	}
	return out
}

func entryOf(cart *domain.Cart, offerID int64) (domain.AppliedOffer, bool) {
	for _, e := range cart.Ledger.Entries() {
		if e.OfferID == offerID {
			return e, true
		}
	}
	return domain.AppliedOffer{}, false
}

// refresh 清理失效记录并执行一次自动应用, 有变化时保存
func (s *OfferService) refresh(ctx context.Context, repos domain.Repositories, cart *domain.Cart, userID int64, now time.Time) ([]domain.AppliedOffer, sweepResult, error) {
	removed, err := purgeLedger(ctx, repos, cart, now)
	if err != nil {
		return nil, sweepResult{}, err
	}
	offers, err := repos.Offers().ListValid(ctx, now)
	if err != nil {
		return nil, sweepResult{}, err
	}
	shopper, err := shopperOf(ctx, repos, userID)
	if err != nil {
		return nil, sweepResult{}, err
	}
	sweep := s.autoApplySweep(cart, offers, shopper, now)
	if sweep.applied != nil {
		// 候选来自非锁定读取, 挂载前按最新提交的状态再确认一次
		id := sweep.applied.OfferID
		live, err := repos.Offers().FindByIDsForShare(ctx, []int64{id})
		if err != nil {
			return nil, sweepResult{}, err
		}
		if locked, ok := live[id]; !ok || !locked.IsValid(now) {
			cart.Ledger.Retain(func(e domain.AppliedOffer) bool { return e.OfferID != id })
			sweep.applied = nil
		}
	}
	if len(removed) > 0 || sweep.applied != nil {
		if err := repos.Carts().Save(ctx, cart); err != nil {
			return nil, sweepResult{}, err
		}
	}
	return removed, sweep, nil
}

func (s *OfferService) sweepEvents(userID int64, removed []domain.AppliedOffer, applied *domain.AppliedOffer, now time.Time) []domain.Event {
	events := removedEvents(userID, removed, "expired", now)
	if applied != nil {
		events = append(events, appliedEvent(userID, *applied, now))
	}
	return events
}

func appliedEvent(userID int64, e domain.AppliedOffer, now time.Time) domain.Event {
	return domain.NewEvent(domain.EventOfferApplied, cartLockKey(userID), now, map[string]any{
		"user_id":         userID,
		"offer_id":        e.OfferID,
		"offer_code":      e.OfferCode,
		"discount_amount": e.DiscountAmount.StringFixed(2),
		"auto_apply":      e.AutoApply,
	})
}

// GetCartOffers 返回购物车上已挂载的优惠与仍可使用的手动优惠。
// 读取时会清理失效记录, 并最多自动挂载一个自动优惠。
func (s *OfferService) GetCartOffers(ctx context.Context, userID int64) (*CartOffersResponse, error) {
	ctx, span := s.tracer.Start(ctx, "service.GetCartOffers")
	defer span.End()
	span.SetAttributes(attribute.Int64("user.id", userID))

	var (
		resp    CartOffersResponse
		removed []domain.AppliedOffer
		sweep   sweepResult
	)
	now := s.now()
	err := withCartLock(ctx, s.locker, userID, func(ctx context.Context) error {
		return s.uow.Do(ctx, func(ctx context.Context, repos domain.Repositories) error {
			cart, err := repos.Carts().GetForUpdate(ctx, userID)
			if err != nil {
				return err
			}
			if cart.IsEmpty() {
				resp = CartOffersResponse{AvailableOffers: []OfferCandidate{}, AppliedOffers: []AppliedOfferDTO{}}
				return nil
			}
			if removed, sweep, err = s.refresh(ctx, repos, cart, userID, now); err != nil {
				return err
			}

			// 已经有手动优惠时不再展示其他手动优惠
			available := sweep.candidates
			if _, ok := cart.Ledger.Manual(); ok {
				available = []OfferCandidate{}
			}
			resp = CartOffersResponse{
				AvailableOffers: available,
				AppliedOffers:   toAppliedOfferDTOs(cart.Ledger.Entries()),
				OffersRemoved:   len(removed) > 0,
				TotalPrice:      cart.TotalPrice(),
				DiscountTotal:   cart.DiscountTotal(),
				FinalTotal:      cart.FinalTotal(),
			}
			if sweep.applied != nil {
				dto := toAppliedOfferDTO(*sweep.applied)
				resp.AutoApplied = &dto
			}
			return nil
		})
	})
	if err != nil {
		return nil, fail(span, err)
	}
	publishAll(ctx, s.events, s.sweepEvents(userID, removed, sweep.applied, now))
	return &resp, nil
}

// ApplicableOffers 对当前购物车评估全部有效优惠, 返回计算成功但尚未挂载的优惠以及本次自动挂载的优惠
func (s *OfferService) ApplicableOffers(ctx context.Context, userID int64) (*ApplicableOffersResponse, error) {
	ctx, span := s.tracer.Start(ctx, "service.ApplicableOffers")
	defer span.End()
	span.SetAttributes(attribute.Int64("user.id", userID))

	var (
		resp    ApplicableOffersResponse
		removed []domain.AppliedOffer
		sweep   sweepResult
	)
	now := s.now()
	err := withCartLock(ctx, s.locker, userID, func(ctx context.Context) error {
		return s.uow.Do(ctx, func(ctx context.Context, repos domain.Repositories) error {
			cart, err := repos.Carts().GetForUpdate(ctx, userID)
			if err != nil {
				return err
			}
			if cart.IsEmpty() {
				resp = ApplicableOffersResponse{Offers: []OfferCandidate{}}
				return nil
			}
			if removed, sweep, err = s.refresh(ctx, repos, cart, userID, now); err != nil {
				return err
			}
			resp = ApplicableOffersResponse{Offers: sweep.candidates, OffersRemoved: len(removed) > 0}
			if sweep.applied != nil {
				dto := toAppliedOfferDTO(*sweep.applied)
				resp.AutoApplied = &dto
			}
			if len(removed) > 0 {
				resp.Message = "Some expired offers were automatically removed"
			}
			return nil
		})
	})
	if err != nil {
		return nil, fail(span, err)
	}
	publishAll(ctx, s.events, s.sweepEvents(userID, removed, sweep.applied, now))
	return &resp, nil
}

// ApplyOffer 手动应用一个优惠。已有的手动优惠会被原位替换, 自动优惠保持不变
func (s *OfferService) ApplyOffer(ctx context.Context, userID int64, req ApplyOfferRequest) (*ApplyOfferResponse, error) {
	ctx, span := s.tracer.Start(ctx, "service.ApplyOffer")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("user.id", userID),
		attribute.Int64("offer.id", req.OfferID),
		attribute.String("offer.code", req.Code),
	)

	if req.OfferID <= 0 && strings.TrimSpace(req.Code) == "" {
		return nil, fail(span, domain.ErrInvalidRequest.WithMessage("Offer ID required"))
	}

	var (
		resp     ApplyOfferResponse
		removed  []domain.AppliedOffer
		replaced *domain.AppliedOffer
		applied  domain.AppliedOffer
	)
	now := s.now()
	err := withCartLock(ctx, s.locker, userID, func(ctx context.Context) error {
		return s.uow.Do(ctx, func(ctx context.Context, repos domain.Repositories) error {
			cart, err := repos.Carts().GetForUpdate(ctx, userID)
			if err != nil {
				return err
			}
			if cart.IsEmpty() {
				return domain.ErrEmptyCart
			}
			if removed, err = purgeLedger(ctx, repos, cart, now); err != nil {
				return err
			}

			offer, err := s.lookup(ctx, repos, req)
			if err != nil {
				return err
			}
			if offer, err = lockOffer(ctx, repos, offer.ID); err != nil {
				return err
			}
			if cart.Ledger.Contains(offer.ID) {
				return domain.ErrAlreadyApplied
			}
			shopper, err := shopperOf(ctx, repos, userID)
			if err != nil {
				return err
			}

			result := s.calculator.Calculate(offer, cart.LineItems(), shopper, now)
			if !result.Success {
				rejectMetric(result.Err)
				return result.Err
			}
			if replaced, err = cart.ApplyOffer(result, now); err != nil {
				return err
			}
			if err := repos.Carts().Save(ctx, cart); err != nil {
				return err
			}

			entry, _ := entryOf(cart, offer.ID)
			applied = entry
			resp = ApplyOfferResponse{
				Success:        true,
				Message:        "Offer applied successfully",
				DiscountAmount: entry.DiscountAmount,
				AppliedOffer:   toAppliedOfferDTO(entry),
				Cart:           toCartDTO(cart, len(removed) > 0),
			}
			if replaced != nil {
				id := replaced.OfferID
				resp.ReplacedOfferID = &id
				resp.Message = "Offer applied successfully, replacing " + replaced.OfferName
			}
			metrics.OffersApplied.WithLabelValues(string(offer.Type), offerMode(entry.AutoApply)).Inc()
			return nil
		})
	})
	if err != nil {
		return nil, fail(span, err)
	}

	logger.Ctx(ctx).Info().Int64("user_id", userID).Int64("offer_id", applied.OfferID).
		Str("discount", applied.DiscountAmount.StringFixed(2)).Msg("offer applied")
	batch := removedEvents(userID, removed, "expired", now)
	if replaced != nil {
		metrics.OffersRemoved.WithLabelValues("replaced").Inc()
		batch = append(batch, removedEvents(userID, []domain.AppliedOffer{*replaced}, "replaced", now)...)
	}
	batch = append(batch, appliedEvent(userID, applied, now))
	publishAll(ctx, s.events, batch)
	return &resp, nil
}

// lookup 找不到与不可用对顾客都是同一个错误
func (s *OfferService) lookup(ctx context.Context, repos domain.Repositories, req ApplyOfferRequest) (*domain.Offer, error) {
	var (
		offer *domain.Offer
		err   error
	)
	if req.OfferID > 0 {
		offer, err = repos.Offers().FindByID(ctx, req.OfferID)
	} else {
		offer, err = repos.Offers().FindByCode(ctx, strings.TrimSpace(req.Code))
	}
	if err != nil {
		if domainErr, ok := domain.AsError(err); ok && domainErr.Kind == domain.KindNotFound {
			return nil, domain.ErrOfferNotFoundOrInactive
		}
		return nil, err
	}
	return offer, nil
}

// RemoveOffer 移除手动优惠。优惠不在账本中时同样返回成功
func (s *OfferService) RemoveOffer(ctx context.Context, userID, offerID int64) (*RemoveOfferResponse, error) {
	ctx, span := s.tracer.Start(ctx, "service.RemoveOffer")
	defer span.End()
	span.SetAttributes(attribute.Int64("user.id", userID), attribute.Int64("offer.id", offerID))

	if offerID <= 0 {
		return nil, fail(span, domain.ErrInvalidRequest.WithMessage("Offer ID required"))
	}

	var (
		resp    RemoveOfferResponse
		removed bool
	)
	now := s.now()
	err := withCartLock(ctx, s.locker, userID, func(ctx context.Context) error {
		return s.uow.Do(ctx, func(ctx context.Context, repos domain.Repositories) error {
			cart, err := repos.Carts().GetForUpdate(ctx, userID)
			if err != nil {
				return err
			}
			if removed, err = cart.RemoveOffer(offerID, now); err != nil {
				return err
			}
			if removed {
				if err := repos.Carts().Save(ctx, cart); err != nil {
					return err
				}
			}
			resp = RemoveOfferResponse{Success: true, Removed: removed, Message: "Offer removed successfully", Cart: toCartDTO(cart, false)}
			if !removed {
				resp.Message = "Offer was not applied to this cart"
			}
			return nil
		})
	})
	if err != nil {
		return nil, fail(span, err)
	}
	if removed {
		metrics.OffersRemoved.WithLabelValues("user").Inc()
		publishAll(ctx, s.events, removedEvents(userID, []domain.AppliedOffer{{OfferID: offerID}}, "user", now))
	}
	return &resp, nil
}

// ListActive 返回当前有效的全部优惠
func (s *OfferService) ListActive(ctx context.Context) ([]OfferDTO, error) {
	ctx, span := s.tracer.Start(ctx, "service.ListActiveOffers")
	defer span.End()

	var out []OfferDTO
	now := s.now()
	err := s.uow.Do(ctx, func(ctx context.Context, repos domain.Repositories) error {
		offers, err := repos.Offers().ListValid(ctx, now)
		if err != nil {
			return err
		}
		out = toOfferDTOs(offers, now)
		return nil
	})
	if err != nil {
		return nil, fail(span, err)
	}
	return out, nil
}

// ValidateCode 试算一个优惠码, 不修改账本。匿名用户或空购物车只校验优惠本身是否可用
func (s *OfferService) ValidateCode(ctx context.Context, userID int64, code string) (*ValidateCodeResponse, error) {
	ctx, span := s.tracer.Start(ctx, "service.ValidateOfferCode")
	defer span.End()
	span.SetAttributes(attribute.Int64("user.id", userID), attribute.String("offer.code", code))

	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, fail(span, domain.ErrInvalidRequest.WithMessage("Offer code required"))
	}

	var resp ValidateCodeResponse
	now := s.now()
	err := s.uow.Do(ctx, func(ctx context.Context, repos domain.Repositories) error {
		offer, err := s.lookup(ctx, repos, ApplyOfferRequest{Code: code})
		if err != nil {
			return err
		}
		dto := toOfferDTO(offer, now)
		resp = ValidateCodeResponse{Code: offer.Code, Offer: &dto}

		var items []domain.LineItem
		shopper := domain.Shopper{}
		if userID != 0 {
			if shopper, err = shopperOf(ctx, repos, userID); err != nil {
				return err
			}
			// 试算不保存购物车
			cart, err := repos.Carts().GetForUpdate(ctx, userID)
			if err != nil {
				return err
			}
			items = cart.LineItems()
		}

		if len(items) == 0 {
			if !offer.IsValid(now) {
				resp.Message = "This offer is not currently valid"
				return nil
			}
			resp.Valid = true
			resp.Message = "Offer code is valid"
			return nil
		}
		result := s.calculator.Calculate(offer, items, shopper, now)
		if !result.Success {
			resp.Message = result.Err.Message
			return nil
		}
		resp.Valid = true
		resp.DiscountAmount = result.DiscountAmount
		resp.Message = "Offer code is valid"
		return nil
	})
	if err != nil {
		return nil, fail(span, err)
	}
	return &resp, nil
}

// ProductOffers 返回对某个商品可见的有效优惠
func (s *OfferService) ProductOffers(ctx context.Context, productID int64) ([]OfferDTO, error) {
	ctx, span := s.tracer.Start(ctx, "service.ProductOffers")
	defer span.End()
	span.SetAttributes(attribute.Int64("product.id", productID))

	var out []OfferDTO
	now := s.now()
	err := s.uow.Do(ctx, func(ctx context.Context, repos domain.Repositories) error {
		product, err := repos.Products().FindByID(ctx, productID)
		if err != nil {
			return err
		}
		offers, err := repos.Offers().ListValid(ctx, now)
		if err != nil {
			return err
		}
		out = make([]OfferDTO, 0, len(offers))
		for _, o := range offers {
			if o.AppliesToProduct(product.ID, product.CategoryID) {
				out = append(out, toOfferDTO(o, now))
			}
		}
		return nil
	})
	if err != nil {
		return nil, fail(span, err)
	}
	return out, nil
}
