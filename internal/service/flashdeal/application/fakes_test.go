package application

import (
	"context"
	"sync"
	"time"

	"github.com/Noman836/flesh-deal-api/internal/service/flashdeal/domain"
	"github.com/Noman836/flesh-deal-api/internal/service/flashdeal/domain/port"
)

// 进程内的端口假实现。计数器和注册表都用互斥锁保证方法级原子性，
// 与真实现的单 key 原子操作等价，可以直接用于并发测试。

type fakeCounter struct {
	mu    sync.Mutex
	stock map[string]int64

	failReserve error
	failRelease error
}

func newFakeCounter() *fakeCounter {
	return &fakeCounter{stock: make(map[string]int64)}
}

func (f *fakeCounter) Initialize(_ context.Context, productID string, totalUnits int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stock[productID] = totalUnits
	return nil
}

func (f *fakeCounter) TryReserve(_ context.Context, productID string, quantity int64) (bool, error) {
	if f.failReserve != nil {
		return false, f.failReserve
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stock[productID] < quantity {
		return false, nil
	}
	f.stock[productID] -= quantity
	return true, nil
}

func (f *fakeCounter) Release(_ context.Context, productID string, quantity int64) error {
	if f.failRelease != nil {
		return f.failRelease
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stock[productID] += quantity
	return nil
}

func (f *fakeCounter) Get(_ context.Context, productID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stock[productID], nil
}

type fakeRegistry struct {
	mu      sync.Mutex
	records map[string]*domain.Reservation

	failCreate     error
	consumeMissing map[string]bool // 这些 ID 的 Consume 直接报"不存在"
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{
		records:        make(map[string]*domain.Reservation),
		consumeMissing: make(map[string]bool),
	}
}

func (f *fakeRegistry) Create(_ context.Context, r *domain.Reservation, _ time.Duration) error {
	if f.failCreate != nil {
		return f.failCreate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *r
	f.records[r.ID] = &copied
	return nil
}

func (f *fakeRegistry) Get(_ context.Context, reservationID string) (*domain.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[reservationID]
	if !ok {
		return nil, domain.ErrReservationNotFound
	}
	copied := *r
	return &copied, nil
}

func (f *fakeRegistry) Consume(_ context.Context, reservationID string) (*domain.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.consumeMissing[reservationID] {
		return nil, domain.ErrReservationNotFound
	}
	r, ok := f.records[reservationID]
	if !ok {
		return nil, domain.ErrReservationNotFound
	}
	delete(f.records, reservationID)
	return r, nil
}

func (f *fakeRegistry) ListByUser(_ context.Context, userID string) ([]*domain.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Reservation
	for _, r := range f.records {
		if r.UserID == userID {
			copied := *r
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakeRegistry) ListByProduct(_ context.Context, productID string) ([]*domain.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Reservation
	for _, r := range f.records {
		if r.ProductID == productID {
			copied := *r
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakeRegistry) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

type fakeCatalog struct {
	mu       sync.Mutex
	products map[string]*domain.Product
}

func newFakeCatalog(products ...*domain.Product) *fakeCatalog {
	f := &fakeCatalog{products: make(map[string]*domain.Product)}
	for _, p := range products {
		copied := *p
		f.products[p.ID] = &copied
	}
	return f
}

func (f *fakeCatalog) GetProduct(_ context.Context, productID string) (*domain.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[productID]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	copied := *p
	return &copied, nil
}

func (f *fakeCatalog) ListActiveProducts(_ context.Context) ([]*domain.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Product
	for _, p := range f.products {
		if p.IsActive {
			copied := *p
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakeCatalog) CreateProduct(_ context.Context, p *domain.Product) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *p
	f.products[p.ID] = &copied
	return nil
}

func (f *fakeCatalog) SaveProduct(_ context.Context, p *domain.Product) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.products[p.ID]; !ok {
		return domain.ErrProductNotFound
	}
	copied := *p
	f.products[p.ID] = &copied
	return nil
}

func (f *fakeCatalog) AdjustStock(_ context.Context, productID string, field port.StockField, delta int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[productID]
	if !ok {
		return domain.ErrProductNotFound
	}
	switch field {
	case port.StockFieldTotal:
		p.TotalStock += delta
	case port.StockFieldReserved:
		p.ReservedStock += delta
	case port.StockFieldSold:
		p.SoldStock += delta
	}
	return nil
}

func (f *fakeCatalog) SetReservedStock(_ context.Context, productID string, value int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[productID]
	if !ok {
		return domain.ErrProductNotFound
	}
	p.ReservedStock = value
	return nil
}

func (f *fakeCatalog) reservedStock(productID string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.products[productID].ReservedStock
}

func (f *fakeCatalog) soldStock(productID string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.products[productID].SoldStock
}

// fakeEligibility 按规则文本放行或拒绝，"deny" 规则拒绝一切。
type fakeEligibility struct{}

func (fakeEligibility) Evaluate(rule string, _ port.EligibilityFact) (bool, error) {
	return rule != "deny", nil
}

type fakeEvents struct {
	mu     sync.Mutex
	events []*domain.StockChangedEvent
}

func (f *fakeEvents) PublishStockChanged(_ context.Context, e *domain.StockChangedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	return nil
}

func (f *fakeEvents) reasons() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e.Reason)
	}
	return out
}
