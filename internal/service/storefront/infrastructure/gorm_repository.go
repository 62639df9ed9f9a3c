package infrastructure

import (
	"context"
	"strings"
	"time"

	"storefront/internal/service/storefront/domain"

	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const mysqlDuplicateEntry = 1062

// GormUnitOfWork 用一个数据库事务包住一次用例的全部读写
type GormUnitOfWork struct {
	db *gorm.DB
}

func NewGormUnitOfWork(db *gorm.DB) *GormUnitOfWork {
	return &GormUnitOfWork{db: db}
}

func (u *GormUnitOfWork) Do(ctx context.Context, fn func(ctx context.Context, repos domain.Repositories) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, &gormRepos{tx: tx})
	})
}

type gormRepos struct {
	tx *gorm.DB
}

func (r *gormRepos) Offers() domain.OfferRepository     { return &GormOfferRepository{db: r.tx} }
func (r *gormRepos) Carts() domain.CartRepository       { return &GormCartRepository{db: r.tx} }
func (r *gormRepos) Products() domain.ProductRepository { return &GormProductRepository{db: r.tx} }
func (r *gormRepos) Orders() domain.OrderRepository     { return &GormOrderRepository{db: r.tx} }

func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}

// GormOfferRepository 是 OfferRepository 的 GORM 实现
type GormOfferRepository struct {
	db *gorm.DB
}

func (r *GormOfferRepository) withScope(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Preload("Products").Preload("Categories")
}

func (r *GormOfferRepository) FindByID(ctx context.Context, id int64) (*domain.Offer, error) {
	var model OfferModel
	err := r.withScope(ctx).First(&model, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrOfferNotFound
		}
		return nil, errors.Wrapf(err, "find offer %d", id)
	}
	return ToDomainOffer(&model), nil
}

func (r *GormOfferRepository) FindByCode(ctx context.Context, code string) (*domain.Offer, error) {
	var model OfferModel
	err := r.withScope(ctx).Where("code = ?", strings.ToUpper(code)).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrOfferNotFound
		}
		return nil, errors.Wrapf(err, "find offer by code %s", code)
	}
	return ToDomainOffer(&model), nil
}

func (r *GormOfferRepository) FindByIDs(ctx context.Context, ids []int64) (map[int64]*domain.Offer, error) {
	return r.findByIDs(r.withScope(ctx), ids)
}

func (r *GormOfferRepository) FindByIDsForShare(ctx context.Context, ids []int64) (map[int64]*domain.Offer, error) {
	return r.findByIDs(r.withScope(ctx).Clauses(clause.Locking{Strength: "SHARE"}), ids)
}

func (r *GormOfferRepository) findByIDs(db *gorm.DB, ids []int64) (map[int64]*domain.Offer, error) {
	out := make(map[int64]*domain.Offer, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var models []OfferModel
	if err := db.Where("id IN ?", ids).Order("id").Find(&models).Error; err != nil {
		return nil, errors.Wrap(err, "find offers by ids")
	}
	for i := range models {
		o := ToDomainOffer(&models[i])
		out[o.ID] = o
	}
	return out, nil
}

func (r *GormOfferRepository) list(q *gorm.DB, what string) ([]*domain.Offer, error) {
	var models []OfferModel
	if err := q.Find(&models).Error; err != nil {
		return nil, errors.Wrap(err, what)
	}
	out := make([]*domain.Offer, 0, len(models))
	for i := range models {
		out = append(out, ToDomainOffer(&models[i]))
	}
	return out, nil
}

func (r *GormOfferRepository) List(ctx context.Context) ([]*domain.Offer, error) {
	return r.list(r.withScope(ctx).Order("created_at DESC, id DESC"), "list offers")
}

func (r *GormOfferRepository) ListValid(ctx context.Context, now time.Time) ([]*domain.Offer, error) {
	q := r.withScope(ctx).
		Where("is_active = ? AND start_date <= ? AND end_date > ?", true, now, now).
		Order("priority_rank DESC, created_at DESC, id DESC")
	return r.list(q, "list valid offers")
}

func (r *GormOfferRepository) ListExpired(ctx context.Context, now time.Time) ([]*domain.Offer, error) {
	return r.list(r.withScope(ctx).Where("end_date <= ?", now).Order("id"), "list expired offers")
}

func (r *GormOfferRepository) Create(ctx context.Context, offer *domain.Offer) error {
	model := FromDomainOffer(offer)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if isDuplicate(err) {
			return domain.ErrDuplicateOfferCode.WithMessage("Offer code %s already exists", offer.Code)
		}
		return errors.Wrap(err, "create offer")
	}
	offer.ID = int64(model.ID)
	return nil
}

// Update 覆盖全部可编辑字段, 商品/品类范围整体替换
func (r *GormOfferRepository) Update(ctx context.Context, offer *domain.Offer) error {
	db := r.db.WithContext(ctx)
	model := FromDomainOffer(offer)
	res := db.Model(&OfferModel{}).Where("id = ?", offer.ID).Updates(map[string]any{
		"code":                model.Code,
		"name":                model.Name,
		"description":         model.Description,
		"type":                model.Type,
		"discount_percentage": model.DiscountPercentage,
		"flat_discount":       model.FlatDiscount,
		"min_order_value":     model.MinOrderValue,
		"max_discount":        model.MaxDiscount,
		"is_active":           model.IsActive,
		"auto_apply":          model.AutoApply,
		"first_time_only":     model.FirstTimeOnly,
		"priority":            model.Priority,
		"priority_rank":       model.PriorityRank,
		"badge_text":          model.BadgeText,
		"rule_expression":     model.RuleExpression,
		"start_date":          model.StartDate,
		"end_date":            model.EndDate,
		"updated_at":          model.UpdatedAt,
	})
	if res.Error != nil {
		if isDuplicate(res.Error) {
			return domain.ErrDuplicateOfferCode.WithMessage("Offer code %s already exists", offer.Code)
		}
		return errors.Wrapf(res.Error, "update offer %d", offer.ID)
	}
	if res.RowsAffected == 0 {
		var n int64
		if err := db.Model(&OfferModel{}).Where("id = ?", offer.ID).Count(&n).Error; err != nil {
			return errors.Wrapf(err, "check offer %d", offer.ID)
		}
		if n == 0 {
			return domain.ErrOfferNotFound
		}
	}

	if err := db.Where("offer_id = ?", offer.ID).Delete(&OfferProductModel{}).Error; err != nil {
		return errors.Wrap(err, "reset offer products")
	}
	if err := db.Where("offer_id = ?", offer.ID).Delete(&OfferCategoryModel{}).Error; err != nil {
		return errors.Wrap(err, "reset offer categories")
	}
	if len(model.Products) > 0 {
		if err := db.Create(&model.Products).Error; err != nil {
			return errors.Wrap(err, "save offer products")
		}
	}
	if len(model.Categories) > 0 {
		if err := db.Create(&model.Categories).Error; err != nil {
			return errors.Wrap(err, "save offer categories")
		}
	}
	return nil
}

// Delete 先显式清理账本, 再删除优惠行 (外键同样会级联, 这里不依赖它)
func (r *GormOfferRepository) Delete(ctx context.Context, ids ...int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	db := r.db.WithContext(ctx)
	if err := db.Where("offer_id IN ?", ids).Delete(&CartOfferModel{}).Error; err != nil {
		return 0, errors.Wrap(err, "detach deleted offers")
	}
	if err := db.Where("offer_id IN ?", ids).Delete(&OfferProductModel{}).Error; err != nil {
		return 0, errors.Wrap(err, "delete offer products")
	}
	if err := db.Where("offer_id IN ?", ids).Delete(&OfferCategoryModel{}).Error; err != nil {
		return 0, errors.Wrap(err, "delete offer categories")
	}
	res := db.Where("id IN ?", ids).Delete(&OfferModel{})
	if res.Error != nil {
		return 0, errors.Wrap(res.Error, "delete offers")
	}
	return res.RowsAffected, nil
}

func (r *GormOfferRepository) IncrementUsage(ctx context.Context, id int64) (bool, error) {
	res := r.db.WithContext(ctx).Model(&OfferModel{}).Where("id = ?", id).
		UpdateColumn("used_count", gorm.Expr("used_count + ?", 1))
	if res.Error != nil {
		return false, errors.Wrapf(res.Error, "increment usage of offer %d", id)
	}
	return res.RowsAffected > 0, nil
}

func (r *GormOfferRepository) SetUsage(ctx context.Context, id int64, count int64) error {
	res := r.db.WithContext(ctx).Model(&OfferModel{}).Where("id = ?", id).UpdateColumn("used_count", count)
	if res.Error != nil {
		return errors.Wrapf(res.Error, "set usage of offer %d", id)
	}
	return nil
}

// GormCartRepository 是 CartRepository 的 GORM 实现
type GormCartRepository struct {
	db *gorm.DB
}

func (r *GormCartRepository) load(ctx context.Context, id uint) (*domain.Cart, error) {
	var model CartModel
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Preload("Items.Product").
		Preload("Offers", func(db *gorm.DB) *gorm.DB { return db.Order("position") }).
		First(&model, id).Error
	if err != nil {
		return nil, errors.Wrapf(err, "load cart %d", id)
	}
	return ToDomainCart(&model), nil
}

// GetForUpdate 用 SELECT ... FOR UPDATE 锁住购物车行, 同一用户的并发请求在事务内串行
func (r *GormCartRepository) GetForUpdate(ctx context.Context, userID int64) (*domain.Cart, error) {
	db := r.db.WithContext(ctx)
	var model CartModel
	err := db.Clauses(clause.Locking{Strength: "UPDATE"}).Where("user_id = ?", userID).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		model = CartModel{UserID: uint(userID)}
		err = db.Create(&model).Error
		if isDuplicate(err) {
			// 另一个请求刚刚创建了购物车, 重新加锁读取
			err = db.Clauses(clause.Locking{Strength: "UPDATE"}).Where("user_id = ?", userID).First(&model).Error
		}
	}
	if err != nil {
		return nil, errors.Wrapf(err, "lock cart of user %d", userID)
	}
	return r.load(ctx, model.ID)
}

// Save 整体替换购物车的商品行与账本
func (r *GormCartRepository) Save(ctx context.Context, cart *domain.Cart) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("cart_id = ?", cart.ID).Delete(&CartItemModel{}).Error; err != nil {
		return errors.Wrap(err, "reset cart items")
	}
	if err := db.Where("cart_id = ?", cart.ID).Delete(&CartOfferModel{}).Error; err != nil {
		return errors.Wrap(err, "reset cart ledger")
	}
	if items := fromDomainCartItems(cart); len(items) > 0 {
		if err := db.Omit(clause.Associations).Create(&items).Error; err != nil {
			return errors.Wrap(err, "save cart items")
		}
		for i := range items {
			cart.Items[i].ID = int64(items[i].ID)
		}
	}
	if entries := fromDomainLedger(cart); len(entries) > 0 {
		if err := db.Create(&entries).Error; err != nil {
			return errors.Wrap(err, "save cart ledger")
		}
	}
	err := db.Model(&CartModel{}).Where("id = ?", cart.ID).Update("updated_at", cart.UpdatedAt).Error
	return errors.Wrap(err, "touch cart")
}

func (r *GormCartRepository) DetachOffers(ctx context.Context, offerIDs ...int64) (int64, error) {
	if len(offerIDs) == 0 {
		return 0, nil
	}
	db := r.db.WithContext(ctx)
	var carts int64
	if err := db.Model(&CartOfferModel{}).Where("offer_id IN ?", offerIDs).Distinct("cart_id").Count(&carts).Error; err != nil {
		return 0, errors.Wrap(err, "count carts holding offers")
	}
	if carts == 0 {
		return 0, nil
	}
	if err := db.Where("offer_id IN ?", offerIDs).Delete(&CartOfferModel{}).Error; err != nil {
		return 0, errors.Wrap(err, "detach offers")
	}
	return carts, nil
}

func (r *GormCartRepository) ListWithOffers(ctx context.Context) ([]*domain.Cart, error) {
	var ids []uint
	if err := r.db.WithContext(ctx).Model(&CartOfferModel{}).Distinct().Order("cart_id").Pluck("cart_id", &ids).Error; err != nil {
		return nil, errors.Wrap(err, "list carts with offers")
	}
	out := make([]*domain.Cart, 0, len(ids))
	for _, id := range ids {
		c, err := r.load(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

type GormProductRepository struct {
	db *gorm.DB
}

func (r *GormProductRepository) FindByID(ctx context.Context, id int64) (*domain.Product, error) {
	var model ProductModel
	err := r.db.WithContext(ctx).First(&model, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrProductNotFound
		}
		return nil, errors.Wrapf(err, "find product %d", id)
	}
	return ToDomainProduct(&model), nil
}

// Save 只回写库存相关字段
func (r *GormProductRepository) Save(ctx context.Context, product *domain.Product) error {
	res := r.db.WithContext(ctx).Model(&ProductModel{}).Where("id = ?", product.ID).
		Updates(map[string]any{"stock": product.Stock, "available": product.Available})
	if res.Error != nil {
		return errors.Wrapf(res.Error, "save product %d", product.ID)
	}
	if res.RowsAffected == 0 {
		return domain.ErrProductNotFound
	}
	return nil
}

type GormOrderRepository struct {
	db *gorm.DB
}

func (r *GormOrderRepository) withLines(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Preload("Offers", func(db *gorm.DB) *gorm.DB { return db.Order("id") })
}

func (r *GormOrderRepository) Create(ctx context.Context, order *domain.Order) error {
	model := FromDomainOrder(order)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return errors.Wrapf(err, "create order %s", order.OrderNumber)
	}
	order.ID = int64(model.ID)
	for i := range model.Items {
		order.Items[i].ID = int64(model.Items[i].ID)
	}
	return nil
}

func (r *GormOrderRepository) FindByNumber(ctx context.Context, number string) (*domain.Order, error) {
	var model OrderModel
	err := r.withLines(ctx).Where("order_number = ?", number).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, errors.Wrapf(err, "find order %s", number)
	}
	return ToDomainOrder(&model), nil
}

func (r *GormOrderRepository) ListByUser(ctx context.Context, userID int64) ([]*domain.Order, error) {
	var models []OrderModel
	if err := r.withLines(ctx).Where("user_id = ?", userID).Order("created_at DESC, id DESC").Find(&models).Error; err != nil {
		return nil, errors.Wrapf(err, "list orders of user %d", userID)
	}
	out := make([]*domain.Order, 0, len(models))
	for i := range models {
		out = append(out, ToDomainOrder(&models[i]))
	}
	return out, nil
}

func (r *GormOrderRepository) CountByUser(ctx context.Context, userID int64) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&OrderModel{}).Where("user_id = ?", userID).Count(&n).Error
	return n, errors.Wrapf(err, "count orders of user %d", userID)
}

// Update 订单创建后只有状态类字段可变
func (r *GormOrderRepository) Update(ctx context.Context, order *domain.Order) error {
	res := r.db.WithContext(ctx).Model(&OrderModel{}).Where("id = ?", order.ID).Updates(map[string]any{
		"status":         string(order.Status),
		"payment_status": string(order.PaymentStatus),
		"refund_amount":  order.RefundAmount,
		"updated_at":     order.UpdatedAt,
	})
	if res.Error != nil {
		return errors.Wrapf(res.Error, "update order %s", order.OrderNumber)
	}
	if res.RowsAffected == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

func (r *GormOrderRepository) FindNumbersByOffer(ctx context.Context, offerID int64) ([]string, error) {
	var numbers []string
	err := r.db.WithContext(ctx).Model(&OrderModel{}).
		Joins("JOIN order_applied_offers ON order_applied_offers.order_id = orders.id").
		Where("order_applied_offers.offer_id = ?", offerID).
		Distinct().
		Order("orders.order_number").
		Pluck("orders.order_number", &numbers).Error
	if err != nil {
		return nil, errors.Wrapf(err, "find orders referencing offer %d", offerID)
	}
	return numbers, nil
}
