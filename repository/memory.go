package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"flowermarket-svc/models"

	"github.com/google/uuid"
)

// MemoryRepository keeps everything in process. WithTx holds the lock for
// the whole callback and works on a copy, so transactions are serialized
// and a failing callback leaves no trace.
type MemoryRepository struct {
	mu    sync.Mutex
	state *memState
}

type memState struct {
	users         map[string]models.User
	stores        map[int]models.Store
	products      map[int]models.Product
	orders        map[int]models.Order
	notifications []models.Notification

	nextStoreID   int
	nextProductID int
	nextOrderID   int
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{state: &memState{
		users:         make(map[string]models.User),
		stores:        make(map[int]models.Store),
		products:      make(map[int]models.Product),
		orders:        make(map[int]models.Order),
		nextStoreID:   1,
		nextProductID: 1,
		nextOrderID:   1,
	}}
}

func (s *memState) clone() *memState {
	c := *s
	c.users = make(map[string]models.User, len(s.users))
	for k, v := range s.users {
		c.users[k] = v
	}
	c.stores = make(map[int]models.Store, len(s.stores))
	for k, v := range s.stores {
		c.stores[k] = v
	}
	c.products = make(map[int]models.Product, len(s.products))
	for k, v := range s.products {
		c.products[k] = v
	}
	c.orders = make(map[int]models.Order, len(s.orders))
	for k, v := range s.orders {
		c.orders[k] = v
	}
	c.notifications = append([]models.Notification(nil), s.notifications...)
	return &c
}

func (r *MemoryRepository) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	work := r.state.clone()
	if err := fn(&memTx{s: work}); err != nil {
		return err
	}
	r.state = work
	return nil
}

func (r *MemoryRepository) GetProduct(ctx context.Context, id int) (*models.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return (&memTx{s: r.state}).GetProduct(ctx, id)
}

func (r *MemoryRepository) ListActiveProducts(_ context.Context) ([]models.ProductView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	views := []models.ProductView{}
	for _, p := range r.state.products {
		if !p.IsActive {
			continue
		}
		v := models.ProductView{Product: p}
		if s, ok := r.state.stores[p.StoreID]; ok {
			v.StoreName = s.Name
		}
		views = append(views, v)
	}
	sort.Slice(views, func(i, j int) bool { return newerProduct(views[i].Product, views[j].Product) })
	return views, nil
}

func (r *MemoryRepository) ListProductsByStore(_ context.Context, storeID int) ([]models.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	products := []models.Product{}
	for _, p := range r.state.products {
		if p.StoreID == storeID {
			products = append(products, p)
		}
	}
	sort.Slice(products, func(i, j int) bool { return newerProduct(products[i], products[j]) })
	return products, nil
}

func newerProduct(a, b models.Product) bool {
	if a.CreatedAt.Equal(b.CreatedAt) {
		return a.ID > b.ID
	}
	return a.CreatedAt.After(b.CreatedAt)
}

func (r *MemoryRepository) GetUser(ctx context.Context, id string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return (&memTx{s: r.state}).GetUser(ctx, id)
}

func (r *MemoryRepository) GetStoreByOwner(ctx context.Context, prestataireID string) (*models.Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return (&memTx{s: r.state}).GetStoreByOwner(ctx, prestataireID)
}

func (r *MemoryRepository) ListOrdersByUser(_ context.Context, userID string) ([]models.OrderView, error) {
	return r.listOrders(func(o models.Order) bool { return o.UserID == userID }), nil
}

func (r *MemoryRepository) ListOrdersByStore(_ context.Context, storeID int) ([]models.OrderView, error) {
	return r.listOrders(func(o models.Order) bool { return o.StoreID == storeID }), nil
}

func (r *MemoryRepository) listOrders(match func(models.Order) bool) []models.OrderView {
	r.mu.Lock()
	defer r.mu.Unlock()

	views := []models.OrderView{}
	for _, o := range r.state.orders {
		if !match(o) {
			continue
		}
		v := models.OrderView{Order: o}
		if p, ok := r.state.products[o.ProductID]; ok {
			v.ProductName = p.Name
		}
		if s, ok := r.state.stores[o.StoreID]; ok {
			v.StoreName = s.Name
		}
		views = append(views, v)
	}
	sort.Slice(views, func(i, j int) bool {
		if views[i].CreatedAt.Equal(views[j].CreatedAt) {
			return views[i].ID > views[j].ID
		}
		return views[i].CreatedAt.After(views[j].CreatedAt)
	})
	return views
}

func (r *MemoryRepository) ListUnreadNotifications(_ context.Context, v models.Viewer) ([]models.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	notes := []models.Notification{}
	// Appended in creation order, so walking backwards yields newest first.
	for i := len(r.state.notifications) - 1; i >= 0; i-- {
		n := r.state.notifications[i]
		if !n.IsRead && n.VisibleTo(v) {
			notes = append(notes, n)
		}
	}
	return notes, nil
}

func (r *MemoryRepository) CountUnreadForUser(_ context.Context, userID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, n := range r.state.notifications {
		if !n.IsRead && n.UserID != nil && *n.UserID == userID {
			count++
		}
	}
	return count, nil
}

func (r *MemoryRepository) CountUnreadBroadcast(_ context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, n := range r.state.notifications {
		if !n.IsRead && n.IsBroadcast() {
			count++
		}
	}
	return count, nil
}

func (r *MemoryRepository) MarkNotificationRead(_ context.Context, id uuid.UUID, v models.Viewer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.state.notifications {
		n := &r.state.notifications[i]
		if n.ID == id && n.VisibleTo(v) {
			n.IsRead = true
			return nil
		}
	}
	return ErrNotFound
}

func (r *MemoryRepository) ListAdminPushTokens(_ context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var tokens []string
	for _, u := range r.state.users {
		if u.Role == models.RoleAdmin && u.ExpoPushToken != "" {
			tokens = append(tokens, u.ExpoPushToken)
		}
	}
	sort.Strings(tokens)
	return tokens, nil
}

type memTx struct {
	s *memState
}

// LockProduct needs no extra locking: the whole transaction already holds
// the repository mutex.
func (t *memTx) LockProduct(ctx context.Context, id int) (*models.Product, error) {
	return t.GetProduct(ctx, id)
}

func (t *memTx) GetProduct(_ context.Context, id int) (*models.Product, error) {
	p, ok := t.s.products[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (t *memTx) AdjustStock(_ context.Context, productID, delta int) (int, error) {
	p, ok := t.s.products[productID]
	if !ok || p.Stock+delta < 0 {
		return 0, ErrInsufficientStock
	}
	p.Stock += delta
	p.UpdatedAt = time.Now().UTC()
	t.s.products[productID] = p
	return p.Stock, nil
}

func (t *memTx) InsertProduct(_ context.Context, p *models.Product) error {
	p.ID = t.s.nextProductID
	t.s.nextProductID++
	t.s.products[p.ID] = *p
	return nil
}

func (t *memTx) UpdateProduct(_ context.Context, p *models.Product) error {
	if _, ok := t.s.products[p.ID]; !ok {
		return ErrNotFound
	}
	t.s.products[p.ID] = *p
	return nil
}

func (t *memTx) DeleteProduct(_ context.Context, id int) error {
	if _, ok := t.s.products[id]; !ok {
		return ErrNotFound
	}
	delete(t.s.products, id)
	return nil
}

func (t *memTx) ProductHasOrders(_ context.Context, id int) (bool, error) {
	for _, o := range t.s.orders {
		if o.ProductID == id {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) InsertOrder(_ context.Context, o *models.Order) error {
	o.ID = t.s.nextOrderID
	t.s.nextOrderID++
	t.s.orders[o.ID] = *o
	return nil
}

func (t *memTx) LockOrder(_ context.Context, id int) (*models.Order, error) {
	o, ok := t.s.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &o, nil
}

func (t *memTx) UpdateOrderStatus(_ context.Context, id int, status models.OrderStatus, at time.Time) error {
	o, ok := t.s.orders[id]
	if !ok {
		return ErrNotFound
	}
	o.Status = status
	o.UpdatedAt = at
	t.s.orders[id] = o
	return nil
}

func (t *memTx) GetStore(_ context.Context, id int) (*models.Store, error) {
	s, ok := t.s.stores[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

func (t *memTx) GetStoreByOwner(_ context.Context, prestataireID string) (*models.Store, error) {
	for _, s := range t.s.stores {
		if s.PrestataireID == prestataireID {
			return &s, nil
		}
	}
	return nil, ErrNotFound
}

func (t *memTx) InsertStore(ctx context.Context, s *models.Store) error {
	if s.PrestataireID != "" {
		if _, err := t.GetStoreByOwner(ctx, s.PrestataireID); err == nil {
			return ErrDuplicate
		}
	}
	s.ID = t.s.nextStoreID
	t.s.nextStoreID++
	t.s.stores[s.ID] = *s
	return nil
}

func (t *memTx) GetUser(_ context.Context, id string) (*models.User, error) {
	u, ok := t.s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (t *memTx) InsertUser(_ context.Context, u *models.User) error {
	if _, ok := t.s.users[u.ID]; ok {
		return ErrDuplicate
	}
	for _, existing := range t.s.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return ErrDuplicate
		}
	}
	t.s.users[u.ID] = *u
	return nil
}

func (t *memTx) SetUserApproved(_ context.Context, id string) error {
	u, ok := t.s.users[id]
	if !ok {
		return ErrNotFound
	}
	u.IsApproved = true
	t.s.users[id] = u
	return nil
}

func (t *memTx) InsertNotification(_ context.Context, n *models.Notification) error {
	t.s.notifications = append(t.s.notifications, *n)
	return nil
}

func (t *memTx) HasNotification(_ context.Context, userID, title string) (bool, error) {
	for _, n := range t.s.notifications {
		if n.UserID != nil && *n.UserID == userID && n.Title == title {
			return true, nil
		}
	}
	return false, nil
}
