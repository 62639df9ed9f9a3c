package application

import (
	"context"
	"math/rand/v2"
	"strings"
	"time"

	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/metrics"
	"storefront/internal/service/storefront/domain"
	"storefront/internal/service/storefront/domain/port"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// AdminService 优惠的管理用例
type AdminService struct {
	uow       domain.UnitOfWork
	events    port.EventPublisher
	validator domain.RuleValidator
	sweeper   *ExpirySweeper
	tracer    trace.Tracer
	now       Clock
}

// NewAdminService validator 为 nil 时拒绝任何规则表达式
func NewAdminService(uow domain.UnitOfWork, events port.EventPublisher, validator domain.RuleValidator, sweeper *ExpirySweeper, tracer trace.Tracer, now Clock) *AdminService {
	if now == nil {
		now = systemClock
	}
	return &AdminService{uow: uow, events: events, validator: validator, sweeper: sweeper, tracer: tracer, now: now}
}

func (s *AdminService) CreateOffer(ctx context.Context, req CreateOfferRequest) (*OfferDTO, error) {
	ctx, span := s.tracer.Start(ctx, "admin.CreateOffer")
	defer span.End()

	now := s.now()
	offer, err := s.buildOffer(req, now)
	if err != nil {
		return nil, fail(span, err)
	}
	span.SetAttributes(attribute.String("offer.code", offer.Code))

	err = s.uow.Do(ctx, func(ctx context.Context, repos domain.Repositories) error {
		if offer.Code == "" {
			code, err := s.uniqueCode(ctx, repos)
			if err != nil {
				return err
			}
			offer.Code = code
		}
		return repos.Offers().Create(ctx, offer)
	})
	if err != nil {
		return nil, fail(span, err)
	}
	logger.Ctx(ctx).Info().Int64("offer_id", offer.ID).Str("code", offer.Code).Str("type", string(offer.Type)).Msg("offer created")
	dto := toOfferDTO(offer, now)
	return &dto, nil
}

func (s *AdminService) buildOffer(req CreateOfferRequest, now time.Time) (*domain.Offer, error) {
	var v validation

	offer := &domain.Offer{
		Code:           strings.ToUpper(strings.TrimSpace(req.Code)),
		Name:           strings.TrimSpace(req.Name),
		Description:    req.Description,
		Type:           req.OfferType,
		MinOrderValue:  decimal.Zero,
		ProductIDs:     req.ProductIDs,
		CategoryIDs:    req.CategoryIDs,
		IsActive:       true,
		AutoApply:      req.AutoApply,
		FirstTimeOnly:  req.FirstTimeOnly,
		Priority:       req.Priority,
		BadgeOverride:  strings.TrimSpace(req.BadgeText),
		RuleExpression: strings.TrimSpace(req.RuleExpression),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if req.DiscountPercentage != nil {
		offer.DiscountPercentage = *req.DiscountPercentage
	}
	if req.FlatDiscount != nil {
		offer.FlatDiscount = *req.FlatDiscount
	}
	if req.MinOrderValue != nil {
		offer.MinOrderValue = *req.MinOrderValue
	}
	if req.MaxDiscount != nil {
		offer.MaxDiscount = decimal.NewNullDecimal(*req.MaxDiscount)
	}
	if req.IsActive != nil {
		offer.IsActive = *req.IsActive
	}
	if offer.Priority == "" {
		offer.Priority = domain.PriorityMedium
	}

	offer.StartDate = now
	if strings.TrimSpace(req.StartDate) != "" {
		if t, err := parseOfferDate(req.StartDate, false); err != nil {
			v.add("start_date must be a date or an RFC3339 timestamp")
		} else {
			offer.StartDate = t
		}
	}
	if strings.TrimSpace(req.EndDate) == "" {
		v.add("end_date is required")
	} else if t, err := parseOfferDate(req.EndDate, true); err != nil {
		v.add("end_date must be a date or an RFC3339 timestamp")
	} else {
		offer.EndDate = t
	}

	s.validateOffer(&v, offer)
	if err := v.err(); err != nil {
		return nil, err
	}
	return offer, nil
}

// validateOffer 校验创建和更新共用的约束
func (s *AdminService) validateOffer(v *validation, offer *domain.Offer) {
	if offer.Name == "" {
		v.add("name is required")
	}
	if offer.Code != "" && (len(offer.Code) > 32 || strings.ContainsAny(offer.Code, " \t\n")) {
		v.add("code must be at most 32 characters without whitespace")
	}
	if !offer.Type.Valid() {
		v.add("offer_type must be one of percentage_discount, flat_discount, category_offer, first_time_only")
	}
	switch offer.Type {
	case domain.OfferTypePercentage, domain.OfferTypeCategory, domain.OfferTypeFirstTime:
		if offer.DiscountPercentage.LessThanOrEqual(decimal.Zero) || offer.DiscountPercentage.GreaterThan(hundredPercent) {
			v.add("discount_percentage must be greater than 0 and at most 100")
		}
	case domain.OfferTypeFlat:
		if !offer.FlatDiscount.IsPositive() {
			v.add("flat_discount must be greater than 0")
		}
	}
	if offer.MinOrderValue.IsNegative() {
		v.add("min_order_value must not be negative")
	}
	if offer.MaxDiscount.Valid && !offer.MaxDiscount.Decimal.IsPositive() {
		v.add("max_discount must be greater than 0")
	}
	if !offer.Priority.Valid() {
		v.add("priority must be one of low, medium, high")
	}
	if !offer.EndDate.IsZero() && !offer.StartDate.Before(offer.EndDate) {
		v.add("end_date must be after start_date")
	}
	if offer.RuleExpression != "" {
		if s.validator == nil {
			v.add("rule_expression is not supported")
		} else if err := s.validator.Validate(offer.RuleExpression); err != nil {
			v.add("rule_expression is invalid: " + err.Error())
		}
	}
}

var hundredPercent = decimal.NewFromInt(100)

func (s *AdminService) uniqueCode(ctx context.Context, repos domain.Repositories) (string, error) {
	for {
		code := randomCode(8)
		_, err := repos.Offers().FindByCode(ctx, code)
		if err != nil {
			if domainErr, ok := domain.AsError(err); ok && domainErr.Kind == domain.KindNotFound {
				return code, nil
			}
			return "", err
		}
	}
}

func randomCode(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = codeAlphabet[rand.IntN(len(codeAlphabet))]
	}
	return string(b)
}

// parseOfferDate 只有日期时, 开始时间取当天 00:00:00, 结束时间取 23:59:59 (UTC)
func parseOfferDate(raw string, endOfDay bool) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse("2006-01-02T15:04:05", raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.Add(23*time.Hour + 59*time.Minute + 59*time.Second)
	}
	return t.UTC(), nil
}

// UpdateOffer 部分更新。更新后优惠会从所有账本摘除, 下次读取购物车时按新参数重新计算
func (s *AdminService) UpdateOffer(ctx context.Context, id int64, req UpdateOfferRequest) (*OfferChangeResponse, error) {
	ctx, span := s.tracer.Start(ctx, "admin.UpdateOffer")
	defer span.End()
	span.SetAttributes(attribute.Int64("offer.id", id))

	var resp OfferChangeResponse
	now := s.now()
	err := s.uow.Do(ctx, func(ctx context.Context, repos domain.Repositories) error {
		offer, err := repos.Offers().FindByID(ctx, id)
		if err != nil {
			return err
		}
		if err := s.patch(offer, req); err != nil {
			return err
		}
		offer.UpdatedAt = now
		if err := repos.Offers().Update(ctx, offer); err != nil {
			return err
		}
		if resp.CartsUpdated, err = repos.Carts().DetachOffers(ctx, offer.ID); err != nil {
			return err
		}
		resp.Offer = toOfferDTO(offer, now)
		return nil
	})
	if err != nil {
		return nil, fail(span, err)
	}
	logger.Ctx(ctx).Info().Int64("offer_id", id).Int64("carts_updated", resp.CartsUpdated).Msg("offer updated")
	return &resp, nil
}

func (s *AdminService) patch(offer *domain.Offer, req UpdateOfferRequest) error {
	var v validation
	if req.Code != nil {
		offer.Code = strings.ToUpper(strings.TrimSpace(*req.Code))
		if offer.Code == "" {
			v.add("code must not be empty")
		}
	}
	if req.Name != nil {
		offer.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		offer.Description = *req.Description
	}
	if req.OfferType != nil {
		offer.Type = *req.OfferType
	}
	if req.DiscountPercentage != nil {
		offer.DiscountPercentage = *req.DiscountPercentage
	}
	if req.FlatDiscount != nil {
		offer.FlatDiscount = *req.FlatDiscount
	}
	if req.MinOrderValue != nil {
		offer.MinOrderValue = *req.MinOrderValue
	}
	if req.MaxDiscount != nil {
		offer.MaxDiscount = decimal.NewNullDecimal(*req.MaxDiscount)
	}
	if req.ClearMaxDiscount {
		offer.MaxDiscount = decimal.NullDecimal{}
	}
	if req.ProductIDs != nil {
		offer.ProductIDs = *req.ProductIDs
	}
	if req.CategoryIDs != nil {
		offer.CategoryIDs = *req.CategoryIDs
	}
	if req.IsActive != nil {
		offer.IsActive = *req.IsActive
	}
	if req.AutoApply != nil {
		offer.AutoApply = *req.AutoApply
	}
	if req.FirstTimeOnly != nil {
		offer.FirstTimeOnly = *req.FirstTimeOnly
	}
	if req.Priority != nil {
		offer.Priority = *req.Priority
	}
	if req.BadgeText != nil {
		offer.BadgeOverride = strings.TrimSpace(*req.BadgeText)
	}
	if req.RuleExpression != nil {
		offer.RuleExpression = strings.TrimSpace(*req.RuleExpression)
	}
	if req.StartDate != nil {
		if t, err := parseOfferDate(*req.StartDate, false); err != nil {
			v.add("start_date must be a date or an RFC3339 timestamp")
		} else {
			offer.StartDate = t
		}
	}
	if req.EndDate != nil {
		if t, err := parseOfferDate(*req.EndDate, true); err != nil {
			v.add("end_date must be a date or an RFC3339 timestamp")
		} else {
			offer.EndDate = t
		}
	}
	s.validateOffer(&v, offer)
	return v.err()
}

// DeleteOffer 物理删除优惠, 引用它的账本记录一并删除
func (s *AdminService) DeleteOffer(ctx context.Context, id int64) (*DeleteOfferResponse, error) {
	ctx, span := s.tracer.Start(ctx, "admin.DeleteOffer")
	defer span.End()
	span.SetAttributes(attribute.Int64("offer.id", id))

	resp := DeleteOfferResponse{OfferID: id}
	err := s.uow.Do(ctx, func(ctx context.Context, repos domain.Repositories) error {
		var err error
		if resp.CartsUpdated, err = repos.Carts().DetachOffers(ctx, id); err != nil {
			return err
		}
		n, err := repos.Offers().Delete(ctx, id)
		if err != nil {
			return err
		}
		if n == 0 {
			return domain.ErrOfferNotFound
		}
		resp.Deleted = true
		return nil
	})
	if err != nil {
		return nil, fail(span, err)
	}
	metrics.OffersRemoved.WithLabelValues("deleted").Add(float64(resp.CartsUpdated))
	logger.Ctx(ctx).Info().Int64("offer_id", id).Int64("carts_updated", resp.CartsUpdated).Msg("offer deleted")
	return &resp, nil
}

func (s *AdminService) GetOffer(ctx context.Context, id int64) (*OfferDTO, error) {
	ctx, span := s.tracer.Start(ctx, "admin.GetOffer")
	defer span.End()
	span.SetAttributes(attribute.Int64("offer.id", id))

	var dto OfferDTO
	now := s.now()
	err := s.uow.Do(ctx, func(ctx context.Context, repos domain.Repositories) error {
		offer, err := repos.Offers().FindByID(ctx, id)
		if err != nil {
			return err
		}
		dto = toOfferDTO(offer, now)
		return nil
	})
	if err != nil {
		return nil, fail(span, err)
	}
	return &dto, nil
}

// ListOffers 返回全部优惠及其派生状态, 最新创建的在前
func (s *AdminService) ListOffers(ctx context.Context) ([]OfferDTO, error) {
	ctx, span := s.tracer.Start(ctx, "admin.ListOffers")
	defer span.End()

	var out []OfferDTO
	now := s.now()
	err := s.uow.Do(ctx, func(ctx context.Context, repos domain.Repositories) error {
		offers, err := repos.Offers().List(ctx)
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

// RevokeOffer 停用优惠并立即从所有购物车摘除
func (s *AdminService) RevokeOffer(ctx context.Context, id int64) (*OfferChangeResponse, error) {
	ctx, span := s.tracer.Start(ctx, "admin.RevokeOffer")
	defer span.End()
	span.SetAttributes(attribute.Int64("offer.id", id))

	var resp OfferChangeResponse
	now := s.now()
	err := s.uow.Do(ctx, func(ctx context.Context, repos domain.Repositories) error {
		offer, err := repos.Offers().FindByID(ctx, id)
		if err != nil {
			return err
		}
		offer.IsActive = false
		offer.UpdatedAt = now
		if err := repos.Offers().Update(ctx, offer); err != nil {
			return err
		}
		if resp.CartsUpdated, err = repos.Carts().DetachOffers(ctx, id); err != nil {
			return err
		}
		resp.Offer = toOfferDTO(offer, now)
		return nil
	})
	if err != nil {
		return nil, fail(span, err)
	}

	metrics.OffersRemoved.WithLabelValues("revoked").Add(float64(resp.CartsUpdated))
	logger.Ctx(ctx).Info().Int64("offer_id", id).Int64("carts_updated", resp.CartsUpdated).Msg("offer revoked")
	publishAll(ctx, s.events, []domain.Event{domain.NewEvent(domain.EventOfferRevoked, "offers", now, map[string]any{
		"offer_id":      id,
		"carts_updated": resp.CartsUpdated,
	})})
	return &resp, nil
}

// ReconcileUsage 用订单快照重新计算 used_count
func (s *AdminService) ReconcileUsage(ctx context.Context, id int64) (*UsageStatsResponse, error) {
	ctx, span := s.tracer.Start(ctx, "admin.ReconcileUsage")
	defer span.End()
	span.SetAttributes(attribute.Int64("offer.id", id))

	var resp UsageStatsResponse
	err := s.uow.Do(ctx, func(ctx context.Context, repos domain.Repositories) error {
		offer, err := repos.Offers().FindByID(ctx, id)
		if err != nil {
			return err
		}
		numbers, err := repos.Orders().FindNumbersByOffer(ctx, id)
		if err != nil {
			return err
		}
		if numbers == nil {
			numbers = []string{}
		}
		count := int64(len(numbers))
		if count != offer.UsedCount {
			if err := repos.Offers().SetUsage(ctx, id, count); err != nil {
				return err
			}
		}
		resp = UsageStatsResponse{OfferID: id, OldCount: offer.UsedCount, UsedCount: count, MatchingOrders: numbers}
		return nil
	})
	if err != nil {
		return nil, fail(span, err)
	}
	if resp.OldCount != resp.UsedCount {
		logger.Ctx(ctx).Warn().Int64("offer_id", id).Int64("old_count", resp.OldCount).Int64("used_count", resp.UsedCount).Msg("offer usage count corrected")
	}
	return &resp, nil
}

// CleanupExpired 手动触发一次过期清理
func (s *AdminService) CleanupExpired(ctx context.Context) (*SweepResult, error) {
	ctx, span := s.tracer.Start(ctx, "admin.CleanupExpired")
	defer span.End()

	result, err := s.sweeper.RunOnce(ctx)
	if err != nil {
		return nil, fail(span, err)
	}
	return &result, nil
}

// validation 收集字段错误, 一次性返回
type validation struct {
	problems []string
}

func (v *validation) add(problem string) {
	v.problems = append(v.problems, problem)
}

func (v *validation) err() error {
	if len(v.problems) == 0 {
		return nil
	}
	return domain.ErrInvalidRequest.WithMessage("Invalid offer: %s", strings.Join(v.problems, "; "))
}
