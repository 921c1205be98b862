package reconcile

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"github.com/Noman836/flesh-deal-api/internal/service/flashdeal/domain"
	"github.com/Noman836/flesh-deal-api/internal/service/flashdeal/domain/port"
)

type memCounter struct {
	mu    sync.Mutex
	stock map[string]int64
}

func (m *memCounter) Initialize(_ context.Context, id string, v int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stock[id] = v
	return nil
}

func (m *memCounter) TryReserve(_ context.Context, id string, q int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stock[id] < q {
		return false, nil
	}
	m.stock[id] -= q
	return true, nil
}

func (m *memCounter) Release(_ context.Context, id string, q int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stock[id] += q
	return nil
}

func (m *memCounter) Get(_ context.Context, id string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stock[id], nil
}

type memRegistry struct {
	mu      sync.Mutex
	records []*domain.Reservation
}

func (m *memRegistry) Create(_ context.Context, r *domain.Reservation, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, r)
	return nil
}

func (m *memRegistry) Get(context.Context, string) (*domain.Reservation, error) {
	return nil, domain.ErrReservationNotFound
}

func (m *memRegistry) Consume(context.Context, string) (*domain.Reservation, error) {
	return nil, domain.ErrReservationNotFound
}

func (m *memRegistry) ListByUser(context.Context, string) ([]*domain.Reservation, error) {
	return nil, nil
}

func (m *memRegistry) ListByProduct(_ context.Context, productID string) ([]*domain.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Reservation
	for _, r := range m.records {
		if r.ProductID == productID {
			out = append(out, r)
		}
	}
	return out, nil
}

type memCatalog struct {
	mu       sync.Mutex
	products map[string]*domain.Product
}

func (m *memCatalog) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	return p, nil
}

func (m *memCatalog) ListActiveProducts(context.Context) ([]*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Product
	for _, p := range m.products {
		if p.IsActive {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memCatalog) CreateProduct(_ context.Context, p *domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[p.ID] = p
	return nil
}

func (m *memCatalog) SaveProduct(_ context.Context, p *domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[p.ID] = p
	return nil
}

func (m *memCatalog) AdjustStock(_ context.Context, id string, field port.StockField, delta int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
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

func (m *memCatalog) SetReservedStock(_ context.Context, id string, v int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[id].ReservedStock = v
	return nil
}

type memLedger struct {
	mu   sync.Mutex
	sold map[string]int64
}

func (m *memLedger) InsertOrder(context.Context, *domain.Order) error {
	return nil
}

func (m *memLedger) GetOrderByReservationRef(context.Context, string) (*domain.Order, error) {
	return nil, domain.ErrReservationNotFound
}

func (m *memLedger) SumSoldQuantity(_ context.Context, productID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sold[productID], nil
}

type memEvents struct {
	mu     sync.Mutex
	events []*domain.StockChangedEvent
}

func (m *memEvents) PublishStockChanged(_ context.Context, e *domain.StockChangedEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

func newReconcilerFixture(products ...*domain.Product) (*Reconciler, *memCounter, *memRegistry, *memCatalog, *memLedger, *memEvents) {
	counter := &memCounter{stock: make(map[string]int64)}
	registry := &memRegistry{}
	catalog := &memCatalog{products: make(map[string]*domain.Product)}
	ledger := &memLedger{sold: make(map[string]int64)}
	events := &memEvents{}
	for _, p := range products {
		catalog.products[p.ID] = p
		// 没有特殊设定时，台账已售与目录镜像一致
		ledger.sold[p.ID] = p.SoldStock
	}
	r := NewReconciler(catalog, counter, registry, ledger, events, otel.Tracer("test"), time.Minute)
	return r, counter, registry, catalog, ledger, events
}

func activeProduct(id string, total, sold, reservedMirror int64) *domain.Product {
	return &domain.Product{ID: id, TotalStock: total, SoldStock: sold, ReservedStock: reservedMirror, IsActive: true}
}

func TestSweepOnce_RepairsExpiredReservationDrift(t *testing.T) {
	ctx := context.Background()
	p := activeProduct("p1", 100, 20, 30)
	r, counter, registry, catalog, _, events := newReconcilerFixture(p)

	// 计数器还记着 30 个单位被预约占用，但注册表里只剩 10 个：
	// 其余 20 个的记录已经 TTL 过期，份额应当归还
	require.NoError(t, counter.Initialize(ctx, "p1", 50))
	res, err := domain.NewReservation("res-1", "user-1", "p1", 10, time.Now(), 10*time.Minute)
	require.NoError(t, err)
	require.NoError(t, registry.Create(ctx, res, 10*time.Minute))

	require.NoError(t, r.SweepOnce(ctx))

	// expected = 100 - 20 - 10 = 70
	got, _ := counter.Get(ctx, "p1")
	require.Equal(t, int64(70), got)
	require.Equal(t, int64(10), catalog.products["p1"].ReservedStock)

	require.Len(t, events.events, 1)
	require.Equal(t, domain.StockChangeReasonReconciled, events.events[0].Reason)
	require.Equal(t, int64(20), events.events[0].Delta)
}

func TestSweepOnce_RepairsSoldStockFromLedger(t *testing.T) {
	ctx := context.Background()
	// 结算在"订单已写、持久增量没做"的窗口里崩溃过：
	// 台账记着 15 件已售，目录镜像只有 10 件
	p := activeProduct("p1", 100, 10, 0)
	r, counter, _, catalog, ledger, _ := newReconcilerFixture(p)
	ledger.sold["p1"] = 15

	// 计数器还停在按过期镜像算出来的值上
	require.NoError(t, counter.Initialize(ctx, "p1", 90))
	require.NoError(t, r.SweepOnce(ctx))

	// expected = 100 - 15 - 0 = 85，以台账为准而不是镜像
	got, _ := counter.Get(ctx, "p1")
	require.Equal(t, int64(85), got)
	require.Equal(t, int64(15), catalog.products["p1"].SoldStock)
}

func TestSweepOnce_NoDriftNoWrites(t *testing.T) {
	ctx := context.Background()
	p := activeProduct("p1", 100, 0, 0)
	r, counter, _, _, _, events := newReconcilerFixture(p)

	require.NoError(t, counter.Initialize(ctx, "p1", 100))
	require.NoError(t, r.SweepOnce(ctx))

	got, _ := counter.Get(ctx, "p1")
	require.Equal(t, int64(100), got)
	require.Empty(t, events.events)
}

func TestSweepOnce_ClampsNegativeExpectation(t *testing.T) {
	ctx := context.Background()
	// 已售超过总量的异常数据：期望值钳到 0 而不是负数
	p := activeProduct("p1", 10, 20, 0)
	r, counter, _, _, _, _ := newReconcilerFixture(p)

	require.NoError(t, counter.Initialize(ctx, "p1", 5))
	require.NoError(t, r.SweepOnce(ctx))

	got, _ := counter.Get(ctx, "p1")
	require.Equal(t, int64(0), got)
}

func TestSweepOnce_SkipsInactiveProducts(t *testing.T) {
	ctx := context.Background()
	p := activeProduct("p1", 100, 0, 0)
	p.IsActive = false
	r, counter, _, _, _, _ := newReconcilerFixture(p)

	require.NoError(t, counter.Initialize(ctx, "p1", 3))
	require.NoError(t, r.SweepOnce(ctx))

	// 下架商品不参与对账，计数器保持清零前的值
	got, _ := counter.Get(ctx, "p1")
	require.Equal(t, int64(3), got)
}
