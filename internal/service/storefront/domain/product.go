package domain

import "github.com/shopspring/decimal"

// Product 是商品目录在本服务中的投影, 只保留计价和库存需要的字段。
type Product struct {
	ID         int64
	Name       string
	CategoryID int64
	Price      decimal.Decimal
	Stock      int
	Available  bool
}

// Purchasable 商品上架并且有库存。
func (p *Product) Purchasable() bool {
	return p.Available && p.Stock > 0
}

// DecrementStock 扣减库存, 不会小于 0, 扣到 0 时自动下架。
func (p *Product) DecrementStock(qty int) {
	p.Stock = max(0, p.Stock-qty)
	if p.Stock == 0 {
		p.Available = false
	}
}

type Category struct {
	ID   int64
	Name string
}
