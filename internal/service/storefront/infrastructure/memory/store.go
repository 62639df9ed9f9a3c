// Package memory 是进程内的存储实现, 用于本地开发和测试。
// 每个事务在状态副本上执行, 成功后整体替换, 失败则丢弃副本。
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"storefront/internal/service/storefront/domain"
)

type state struct {
	seq      int64
	offers   map[int64]*domain.Offer
	products map[int64]*domain.Product
	carts    map[int64]*domain.Cart // key 为 userID
	orders   map[int64]*domain.Order
}

func newState() *state {
	return &state{
		offers:   make(map[int64]*domain.Offer),
		products: make(map[int64]*domain.Product),
		carts:    make(map[int64]*domain.Cart),
		orders:   make(map[int64]*domain.Order),
	}
}

func (s *state) nextID() int64 {
	s.seq++
	return s.seq
}

func (s *state) clone() *state {
	c := newState()
	c.seq = s.seq
	for id, o := range s.offers {
		c.offers[id] = cloneOffer(o)
	}
	for id, p := range s.products {
		cp := *p
		c.products[id] = &cp
	}
	for uid, cart := range s.carts {
		c.carts[uid] = cloneCart(cart)
	}
	for id, o := range s.orders {
		c.orders[id] = cloneOrder(o)
	}
	return c
}

// Store 实现 domain.UnitOfWork。事务之间完全串行。
type Store struct {
	mu sync.Mutex
	st *state
}

func NewStore() *Store {
	return &Store{st: newState()}
}

// Do 不支持嵌套调用。
func (s *Store) Do(ctx context.Context, fn func(ctx context.Context, repos domain.Repositories) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	work := s.st.clone()
	if err := fn(ctx, &repos{st: work}); err != nil {
		return err
	}
	s.st = work
	return nil
}

// PutProduct 写入商品目录 (目录由外部系统维护, 这里只提供初始化入口)。
func (s *Store) PutProduct(p domain.Product) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == 0 {
		p.ID = s.st.nextID()
	} else if p.ID > s.st.seq {
		s.st.seq = p.ID
	}
	s.st.products[p.ID] = &p
	return p.ID
}

// RemoveProduct 模拟目录中商品被下线删除。
func (s *Store) RemoveProduct(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.st.products, id)
}

type repos struct {
	st *state
}

func (r *repos) Offers() domain.OfferRepository     { return offerRepo{r.st} }
func (r *repos) Carts() domain.CartRepository       { return cartRepo{r.st} }
func (r *repos) Products() domain.ProductRepository { return productRepo{r.st} }
func (r *repos) Orders() domain.OrderRepository     { return orderRepo{r.st} }

type offerRepo struct{ st *state }

func (r offerRepo) FindByID(_ context.Context, id int64) (*domain.Offer, error) {
	o, ok := r.st.offers[id]
	if !ok {
		return nil, domain.ErrOfferNotFound
	}
	return cloneOffer(o), nil
}

func (r offerRepo) FindByCode(_ context.Context, code string) (*domain.Offer, error) {
	for _, o := range r.st.offers {
		if strings.EqualFold(o.Code, code) {
			return cloneOffer(o), nil
		}
	}
	return nil, domain.ErrOfferNotFound
}

func (r offerRepo) FindByIDs(_ context.Context, ids []int64) (map[int64]*domain.Offer, error) {
	out := make(map[int64]*domain.Offer, len(ids))
	for _, id := range ids {
		if o, ok := r.st.offers[id]; ok {
			out[id] = cloneOffer(o)
		}
	}
	return out, nil
}

// FindByIDsForShare 事务本身已经串行, 无需额外加锁
func (r offerRepo) FindByIDsForShare(ctx context.Context, ids []int64) (map[int64]*domain.Offer, error) {
	return r.FindByIDs(ctx, ids)
}

func (r offerRepo) List(_ context.Context) ([]*domain.Offer, error) {
	out := r.filter(func(*domain.Offer) bool { return true })
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (r offerRepo) ListValid(_ context.Context, now time.Time) ([]*domain.Offer, error) {
	out := r.filter(func(o *domain.Offer) bool { return o.IsValid(now) })
	// map 遍历无序, 先按 ID 固定顺序再做稳定排序
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	domain.SortForAutoApply(out)
	return out, nil
}

func (r offerRepo) ListExpired(_ context.Context, now time.Time) ([]*domain.Offer, error) {
	out := r.filter(func(o *domain.Offer) bool { return o.IsExpired(now) })
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r offerRepo) filter(keep func(*domain.Offer) bool) []*domain.Offer {
	var out []*domain.Offer
	for _, o := range r.st.offers {
		if keep(o) {
			out = append(out, cloneOffer(o))
		}
	}
	return out
}

func (r offerRepo) codeTaken(code string, exceptID int64) bool {
	for _, o := range r.st.offers {
		if o.ID != exceptID && strings.EqualFold(o.Code, code) {
			return true
		}
	}
	return false
}

func (r offerRepo) Create(_ context.Context, offer *domain.Offer) error {
	if r.codeTaken(offer.Code, 0) {
		return domain.ErrDuplicateOfferCode.WithMessage("Offer code %s already exists", offer.Code)
	}
	offer.ID = r.st.nextID()
	r.st.offers[offer.ID] = cloneOffer(offer)
	return nil
}

func (r offerRepo) Update(_ context.Context, offer *domain.Offer) error {
	if _, ok := r.st.offers[offer.ID]; !ok {
		return domain.ErrOfferNotFound
	}
	if r.codeTaken(offer.Code, offer.ID) {
		return domain.ErrDuplicateOfferCode.WithMessage("Offer code %s already exists", offer.Code)
	}
	r.st.offers[offer.ID] = cloneOffer(offer)
	return nil
}

// Delete 与外键 ON DELETE CASCADE 一致: 账本中引用这些优惠的记录一并删除。
func (r offerRepo) Delete(ctx context.Context, ids ...int64) (int64, error) {
	var n int64
	for _, id := range ids {
		if _, ok := r.st.offers[id]; ok {
			delete(r.st.offers, id)
			n++
		}
	}
	if _, err := cartRepo(r).DetachOffers(ctx, ids...); err != nil {
		return 0, err
	}
	return n, nil
}

func (r offerRepo) IncrementUsage(_ context.Context, id int64) (bool, error) {
	o, ok := r.st.offers[id]
	if !ok {
		return false, nil
	}
	o.UsedCount++
	return true, nil
}

func (r offerRepo) SetUsage(_ context.Context, id int64, count int64) error {
	o, ok := r.st.offers[id]
	if !ok {
		return domain.ErrOfferNotFound
	}
	o.UsedCount = count
	return nil
}

type cartRepo struct{ st *state }

func (r cartRepo) GetForUpdate(_ context.Context, userID int64) (*domain.Cart, error) {
	if c, ok := r.st.carts[userID]; ok {
		return cloneCart(c), nil
	}
	now := time.Now()
	c := domain.NewCart(userID, now)
	c.ID = r.st.nextID()
	r.st.carts[userID] = cloneCart(c)
	return c, nil
}

func (r cartRepo) Save(_ context.Context, cart *domain.Cart) error {
	if _, ok := r.st.carts[cart.UserID]; !ok {
		return domain.ErrCartNotFound
	}
	for i := range cart.Items {
		if cart.Items[i].ID == 0 {
			cart.Items[i].ID = r.st.nextID()
		}
	}
	r.st.carts[cart.UserID] = cloneCart(cart)
	return nil
}

func (r cartRepo) DetachOffers(_ context.Context, offerIDs ...int64) (int64, error) {
	drop := make(map[int64]struct{}, len(offerIDs))
	for _, id := range offerIDs {
		drop[id] = struct{}{}
	}
	var n int64
	for _, c := range r.st.carts {
		removed := c.Ledger.Retain(func(e domain.AppliedOffer) bool {
			_, hit := drop[e.OfferID]
			return !hit
		})
		if len(removed) > 0 {
			n++
		}
	}
	return n, nil
}

func (r cartRepo) ListWithOffers(_ context.Context) ([]*domain.Cart, error) {
	var out []*domain.Cart
	for _, c := range r.st.carts {
		if c.Ledger.Len() > 0 {
			out = append(out, cloneCart(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type productRepo struct{ st *state }

func (r productRepo) FindByID(_ context.Context, id int64) (*domain.Product, error) {
	p, ok := r.st.products[id]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

func (r productRepo) Save(_ context.Context, product *domain.Product) error {
	if _, ok := r.st.products[product.ID]; !ok {
		return domain.ErrProductNotFound
	}
	cp := *product
	r.st.products[product.ID] = &cp
	return nil
}

type orderRepo struct{ st *state }

func (r orderRepo) Create(_ context.Context, order *domain.Order) error {
	order.ID = r.st.nextID()
	for i := range order.Items {
		order.Items[i].ID = r.st.nextID()
	}
	r.st.orders[order.ID] = cloneOrder(order)
	return nil
}

func (r orderRepo) FindByNumber(_ context.Context, number string) (*domain.Order, error) {
	for _, o := range r.st.orders {
		if o.OrderNumber == number {
			return cloneOrder(o), nil
		}
	}
	return nil, domain.ErrOrderNotFound
}

func (r orderRepo) ListByUser(_ context.Context, userID int64) ([]*domain.Order, error) {
	var out []*domain.Order
	for _, o := range r.st.orders {
		if o.UserID == userID {
			out = append(out, cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (r orderRepo) CountByUser(_ context.Context, userID int64) (int64, error) {
	var n int64
	for _, o := range r.st.orders {
		if o.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (r orderRepo) Update(_ context.Context, order *domain.Order) error {
	if _, ok := r.st.orders[order.ID]; !ok {
		return domain.ErrOrderNotFound
	}
	r.st.orders[order.ID] = cloneOrder(order)
	return nil
}

func (r orderRepo) FindNumbersByOffer(_ context.Context, offerID int64) ([]string, error) {
	var out []string
	for _, o := range r.st.orders {
		if o.ReferencesOffer(offerID) {
			out = append(out, o.OrderNumber)
		}
	}
	sort.Strings(out)
	return out, nil
}

func cloneOffer(o *domain.Offer) *domain.Offer {
	c := *o
	c.ProductIDs = append([]int64(nil), o.ProductIDs...)
	c.CategoryIDs = append([]int64(nil), o.CategoryIDs...)
	return &c
}

func cloneEntries(entries []domain.AppliedOffer) []domain.AppliedOffer {
	out := make([]domain.AppliedOffer, len(entries))
	for i, e := range entries {
		e.FreeItems = append([]domain.FreeItem(nil), e.FreeItems...)
		out[i] = e
	}
	return out
}

func cloneCart(c *domain.Cart) *domain.Cart {
	cp := *c
	cp.Items = append([]domain.CartItem(nil), c.Items...)
	cp.Ledger = domain.NewLedger(cloneEntries(c.Ledger.Entries()))
	return &cp
}

func cloneOrder(o *domain.Order) *domain.Order {
	cp := *o
	cp.Items = append([]domain.OrderItem(nil), o.Items...)
	cp.AppliedOffers = cloneEntries(o.AppliedOffers)
	return &cp
}
