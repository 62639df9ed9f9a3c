package infrastructure

import (
	"time"

	"storefront/internal/service/storefront/domain"

	"github.com/shopspring/decimal"
)

// OfferModel 对应数据库中的 offers 表
type OfferModel struct {
	ID                 uint                `gorm:"primaryKey"`
	Code               string              `gorm:"size:32;uniqueIndex"`
	Name               string              `gorm:"size:200"`
	Description        string              `gorm:"type:text"`
	Type               string              `gorm:"size:32;index"`
	DiscountPercentage decimal.Decimal     `gorm:"type:decimal(5,2);not null;default:0"`
	FlatDiscount       decimal.Decimal     `gorm:"type:decimal(10,2);not null;default:0"`
	MinOrderValue      decimal.Decimal     `gorm:"type:decimal(10,2);not null;default:0"`
	MaxDiscount        decimal.NullDecimal `gorm:"type:decimal(10,2)"`
	IsActive           bool                `gorm:"index"`
	AutoApply          bool
	FirstTimeOnly      bool
	Priority           string `gorm:"size:16"`
	// PriorityRank 冗余存储序数, 让数据库可以直接按优先级排序
	PriorityRank   int       `gorm:"index"`
	BadgeText      string    `gorm:"size:100"`
	RuleExpression string    `gorm:"type:text"`
	StartDate      time.Time `gorm:"index"`
	EndDate        time.Time `gorm:"index"`
	UsedCount      int64
	CreatedAt      time.Time
	UpdatedAt      time.Time

	Products   []OfferProductModel  `gorm:"foreignKey:OfferID;constraint:OnDelete:CASCADE"`
	Categories []OfferCategoryModel `gorm:"foreignKey:OfferID;constraint:OnDelete:CASCADE"`
	// 只用于生成外键: 删除优惠时数据库级联删除账本记录
	CartEntries []CartOfferModel `gorm:"foreignKey:OfferID;constraint:OnDelete:CASCADE"`
}

func (OfferModel) TableName() string {
	return "offers"
}

type OfferProductModel struct {
	OfferID   uint `gorm:"primaryKey"`
	ProductID uint `gorm:"primaryKey"`
}

func (OfferProductModel) TableName() string {
	return "offer_products"
}

type OfferCategoryModel struct {
	OfferID    uint `gorm:"primaryKey"`
	CategoryID uint `gorm:"primaryKey"`
}

func (OfferCategoryModel) TableName() string {
	return "offer_categories"
}

// ProductModel 是商品目录表的只读投影, 本服务只改库存字段
type ProductModel struct {
	ID         uint            `gorm:"primaryKey"`
	Name       string          `gorm:"size:200"`
	CategoryID uint            `gorm:"index"`
	Price      decimal.Decimal `gorm:"type:decimal(10,2)"`
	Stock      int
	Available  bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (ProductModel) TableName() string {
	return "products"
}

// CartModel 对应 carts 表, 每个用户一行
type CartModel struct {
	ID        uint `gorm:"primaryKey"`
	UserID    uint `gorm:"uniqueIndex"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Items  []CartItemModel  `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE"`
	Offers []CartOfferModel `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE"`
}

func (CartModel) TableName() string {
	return "carts"
}

type CartItemModel struct {
	ID        uint `gorm:"primaryKey"`
	CartID    uint `gorm:"uniqueIndex:idx_cart_product"`
	ProductID uint `gorm:"uniqueIndex:idx_cart_product"`
	Quantity  int
	AddedAt   time.Time

	Product ProductModel `gorm:"foreignKey:ProductID"`
}

func (CartItemModel) TableName() string {
	return "cart_items"
}

// CartOfferModel 是购物车账本的一条记录, 同一购物车内同一优惠只能出现一次
type CartOfferModel struct {
	ID             uint `gorm:"primaryKey"`
	CartID         uint `gorm:"uniqueIndex:idx_cart_offer"`
	OfferID        uint `gorm:"uniqueIndex:idx_cart_offer;index"`
	Position       int
	OfferCode      string          `gorm:"size:32"`
	OfferName      string          `gorm:"size:200"`
	OfferType      string          `gorm:"size:32"`
	DiscountAmount decimal.Decimal `gorm:"type:decimal(10,2)"`
	BadgeText      string          `gorm:"size:100"`
	AutoApply      bool
	FreeItems      []domain.FreeItem `gorm:"serializer:json;type:json"`
	AppliedAt      time.Time
}

func (CartOfferModel) TableName() string {
	return "cart_applied_offers"
}

// OrderModel 对应 orders 表, 金额字段在下单时冻结
type OrderModel struct {
	ID              uint            `gorm:"primaryKey"`
	OrderNumber     string          `gorm:"size:20;uniqueIndex"`
	UserID          uint            `gorm:"index"`
	TotalAmount     decimal.Decimal `gorm:"type:decimal(10,2)"`
	DiscountAmount  decimal.Decimal `gorm:"type:decimal(10,2)"`
	FinalAmount     decimal.Decimal `gorm:"type:decimal(10,2)"`
	Status          string          `gorm:"size:16;index"`
	ShippingAddress string          `gorm:"type:text"`
	PaymentMethod   string          `gorm:"size:32"`
	PaymentStatus   string          `gorm:"size:16"`
	PaymentRef      string          `gorm:"size:64"`
	RefundAmount    decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0"`
	CreatedAt       time.Time
	UpdatedAt       time.Time

	Items  []OrderItemModel  `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Offers []OrderOfferModel `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
}

func (OrderModel) TableName() string {
	return "orders"
}

type OrderItemModel struct {
	ID             uint `gorm:"primaryKey"`
	OrderID        uint `gorm:"index"`
	ProductID      uint
	ProductName    string `gorm:"size:200"`
	Quantity       int
	UnitPrice      decimal.Decimal `gorm:"type:decimal(10,2)"`
	FreeQuantity   int
	DiscountAmount decimal.Decimal `gorm:"type:decimal(10,2)"`
}

func (OrderItemModel) TableName() string {
	return "order_items"
}

// OrderOfferModel 是下单时账本的快照, 优惠被删除后依然保留, 所以没有指向 offers 的外键
type OrderOfferModel struct {
	ID             uint            `gorm:"primaryKey"`
	OrderID        uint            `gorm:"index"`
	OfferID        uint            `gorm:"index"`
	OfferCode      string          `gorm:"size:32"`
	OfferName      string          `gorm:"size:200"`
	OfferType      string          `gorm:"size:32"`
	DiscountAmount decimal.Decimal `gorm:"type:decimal(10,2)"`
	BadgeText      string          `gorm:"size:100"`
	AutoApply      bool
	FreeItems      []domain.FreeItem `gorm:"serializer:json;type:json"`
	AppliedAt      time.Time
}

func (OrderOfferModel) TableName() string {
	return "order_applied_offers"
}

// AllModels 返回需要自动迁移的全部模型
func AllModels() []any {
	return []any{
		&OfferModel{}, &OfferProductModel{}, &OfferCategoryModel{},
		&ProductModel{},
		&CartModel{}, &CartItemModel{}, &CartOfferModel{},
		&OrderModel{}, &OrderItemModel{}, &OrderOfferModel{},
	}
}
