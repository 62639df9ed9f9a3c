package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CartItem 是购物车中的一行, 每个商品最多一行。
type CartItem struct {
	ID       int64
	Product  Product
	Quantity int
	AddedAt  time.Time
}

func (i CartItem) Cost() decimal.Decimal {
	return i.Product.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Cart 是购物车聚合根, 每个用户一个。
type Cart struct {
	ID        int64
	UserID    int64
	Items     []CartItem
	Ledger    Ledger
	CreatedAt time.Time
	UpdatedAt time.Time
}

func NewCart(userID int64, now time.Time) *Cart {
	return &Cart{UserID: userID, CreatedAt: now, UpdatedAt: now}
}

func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// TotalPrice 是未打折的商品总价。
func (c *Cart) TotalPrice() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.Items {
		total = total.Add(item.Cost())
	}
	return total
}

// DiscountTotal 是账本折扣之和, 不会超过商品总价。
func (c *Cart) DiscountTotal() decimal.Decimal {
	return decimal.Min(c.Ledger.Total(), c.TotalPrice())
}

// FinalTotal 是应付金额, 不小于 0。
func (c *Cart) FinalTotal() decimal.Decimal {
	return decimal.Max(decimal.Zero, c.TotalPrice().Sub(c.DiscountTotal()))
}

func (c *Cart) ItemCount() int {
	n := 0
	for _, item := range c.Items {
		n += item.Quantity
	}
	return n
}

// LineItems 转换成计算器的输入。
func (c *Cart) LineItems() []LineItem {
	items := make([]LineItem, 0, len(c.Items))
	for _, item := range c.Items {
		items = append(items, LineItem{
			ProductID:  item.Product.ID,
			CategoryID: item.Product.CategoryID,
			Quantity:   item.Quantity,
			UnitPrice:  item.Product.Price,
		})
	}
	return items
}

func (c *Cart) findItem(productID int64) (int, bool) {
	for i, item := range c.Items {
		if item.Product.ID == productID {
			return i, true
		}
	}
	return -1, false
}

// AddItem 加购, 已有同一商品时累加数量。任何商品变动都会清空账本。
func (c *Cart) AddItem(product Product, qty int, now time.Time) error {
	if qty <= 0 {
		return ErrInvalidRequest.WithMessage("quantity must be positive")
	}
	if !product.Purchasable() {
		return ErrProductUnavailable.WithMessage("Product %q is not available", product.Name)
	}
	if i, ok := c.findItem(product.ID); ok {
		c.Items[i].Quantity += qty
		c.Items[i].Product = product
	} else {
		c.Items = append(c.Items, CartItem{Product: product, Quantity: qty, AddedAt: now})
	}
	c.touch(now)
	return nil
}

// UpdateItem 修改数量, qty <= 0 等同于删除。
func (c *Cart) UpdateItem(productID int64, qty int, now time.Time) error {
	i, ok := c.findItem(productID)
	if !ok {
		return ErrCartItemNotFound
	}
	if qty <= 0 {
		c.Items = append(c.Items[:i], c.Items[i+1:]...)
	} else {
		c.Items[i].Quantity = qty
	}
	c.touch(now)
	return nil
}

func (c *Cart) RemoveItem(productID int64, now time.Time) error {
	return c.UpdateItem(productID, 0, now)
}

// touch 商品变动后旧的优惠计算结果不再可信, 整个账本作废。
func (c *Cart) touch(now time.Time) {
	c.Ledger.Clear()
	c.UpdatedAt = now
}

// ApplyOffer 把计算成功的结果记入账本, 折扣金额封顶为购物车总价。
func (c *Cart) ApplyOffer(result DiscountResult, now time.Time) (*AppliedOffer, error) {
	if c.IsEmpty() {
		return nil, ErrEmptyCart
	}
	if !result.Success {
		return nil, result.Err
	}
	entry := AppliedOffer{
		OfferID:        result.OfferID,
		OfferCode:      result.OfferCode,
		OfferName:      result.OfferName,
		OfferType:      result.OfferType,
		DiscountAmount: decimal.Min(result.DiscountAmount, c.TotalPrice()),
		BadgeText:      result.BadgeText,
		AutoApply:      result.AutoApply,
		FreeItems:      result.FreeItems,
		AppliedAt:      now,
	}
	replaced, err := c.Ledger.Attach(entry)
	if err != nil {
		return nil, err
	}
	c.UpdatedAt = now
	return replaced, nil
}

// RemoveOffer 移除手动优惠, 不存在时视为成功。
func (c *Cart) RemoveOffer(offerID int64, now time.Time) (bool, error) {
	removed, err := c.Ledger.Detach(offerID)
	if err != nil {
		return false, err
	}
	if removed {
		c.UpdatedAt = now
	}
	return removed, nil
}

// PurgeInvalidOffers 丢弃所引用优惠已经失效的记录。
// live 是按 ID 索引的当前优惠状态, 缺失即视为已删除。
func (c *Cart) PurgeInvalidOffers(live map[int64]*Offer, now time.Time) []AppliedOffer {
	removed := c.Ledger.Retain(func(e AppliedOffer) bool {
		offer, ok := live[e.OfferID]
		return ok && offer.IsValid(now)
	})
	if len(removed) > 0 {
		c.UpdatedAt = now
	}
	return removed
}

// Clear 结算后清空商品与账本。
func (c *Cart) Clear(now time.Time) {
	c.Items = nil
	c.Ledger.Clear()
	c.UpdatedAt = now
}
