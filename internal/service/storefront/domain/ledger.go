package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// FreeItem 是某个优惠在具体商品行上的分摊 (赠品数量与折扣份额)。
type FreeItem struct {
	ProductID      int64           `json:"product_id"`
	FreeQuantity   int             `json:"free_quantity"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
}

// AppliedOffer 是账本中的一条记录, 保存应用时刻的快照。
type AppliedOffer struct {
	OfferID        int64
	OfferCode      string
	OfferName      string
	OfferType      OfferType
	DiscountAmount decimal.Decimal
	BadgeText      string
	AutoApply      bool
	FreeItems      []FreeItem
	AppliedAt      time.Time
}

// Ledger 记录购物车上当前挂载的优惠: 最多一条手动优惠, 若干条自动优惠, 保持挂载顺序。
type Ledger struct {
	entries []AppliedOffer
}

func NewLedger(entries []AppliedOffer) Ledger {
	return Ledger{entries: append([]AppliedOffer(nil), entries...)}
}

// Entries 返回副本。
func (l Ledger) Entries() []AppliedOffer {
	return append([]AppliedOffer(nil), l.entries...)
}

func (l Ledger) Len() int {
	return len(l.entries)
}

func (l Ledger) Contains(offerID int64) bool {
	_, ok := l.indexOf(offerID)
	return ok
}

func (l Ledger) indexOf(offerID int64) (int, bool) {
	for i, e := range l.entries {
		if e.OfferID == offerID {
			return i, true
		}
	}
	return -1, false
}

// Manual 返回当前的手动优惠。
func (l Ledger) Manual() (AppliedOffer, bool) {
	for _, e := range l.entries {
		if !e.AutoApply {
			return e, true
		}
	}
	return AppliedOffer{}, false
}

// Attach 挂载一条记录。手动优惠会原位替换已有的手动优惠并返回被替换的记录, 自动优惠追加在末尾。
func (l *Ledger) Attach(entry AppliedOffer) (*AppliedOffer, error) {
	if l.Contains(entry.OfferID) {
		return nil, ErrAlreadyApplied
	}
	if !entry.AutoApply {
		for i, e := range l.entries {
			if !e.AutoApply {
				replaced := e
				l.entries[i] = entry
				return &replaced, nil
			}
		}
	}
	l.entries = append(l.entries, entry)
	return nil, nil
}

// Detach 按优惠 ID 移除, 不存在时返回 false 且不报错。自动优惠不允许用户移除。
func (l *Ledger) Detach(offerID int64) (bool, error) {
	i, ok := l.indexOf(offerID)
	if !ok {
		return false, nil
	}
	if l.entries[i].AutoApply {
		return false, ErrCannotRemoveAutoApply
	}
	l.entries = append(l.entries[:i], l.entries[i+1:]...)
	return true, nil
}

// Retain 只保留 keep 返回 true 的记录, 返回被移除的记录。
func (l *Ledger) Retain(keep func(AppliedOffer) bool) []AppliedOffer {
	var removed []AppliedOffer
	kept := l.entries[:0]
	for _, e := range l.entries {
		if keep(e) {
			kept = append(kept, e)
		} else {
			removed = append(removed, e)
		}
	}
	// 清掉尾部残留, 避免底层数组继续持有旧记录
	for i := len(kept); i < len(l.entries); i++ {
		l.entries[i] = AppliedOffer{}
	}
	l.entries = kept
	return removed
}

func (l *Ledger) Clear() {
	l.entries = nil
}

// Total 是所有记录折扣之和, 未做封顶。
func (l Ledger) Total() decimal.Decimal {
	total := decimal.Zero
	for _, e := range l.entries {
		total = total.Add(e.DiscountAmount)
	}
	return total
}

func (l Ledger) OfferIDs() []int64 {
	ids := make([]int64, 0, len(l.entries))
	for _, e := range l.entries {
		ids = append(ids, e.OfferID)
	}
	return ids
}
