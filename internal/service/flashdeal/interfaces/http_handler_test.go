package interfaces

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"github.com/Noman836/flesh-deal-api/internal/service/flashdeal/application"
	"github.com/Noman836/flesh-deal-api/internal/service/flashdeal/domain"
	"github.com/Noman836/flesh-deal-api/internal/service/flashdeal/domain/port"
)

// 进程内端口假实现，只覆盖接口层测试用到的路径。

type stubCounter struct {
	mu    sync.Mutex
	stock map[string]int64
}

func (s *stubCounter) Initialize(_ context.Context, id string, v int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stock[id] = v
	return nil
}

func (s *stubCounter) TryReserve(_ context.Context, id string, q int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stock[id] < q {
		return false, nil
	}
	s.stock[id] -= q
	return true, nil
}

func (s *stubCounter) Release(_ context.Context, id string, q int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stock[id] += q
	return nil
}

func (s *stubCounter) Get(_ context.Context, id string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stock[id], nil
}

type stubRegistry struct {
	mu      sync.Mutex
	records map[string]*domain.Reservation
}

func (s *stubRegistry) Create(_ context.Context, r *domain.Reservation, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[r.ID] = r
	return nil
}

func (s *stubRegistry) Get(_ context.Context, id string) (*domain.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.records[id]; ok {
		return r, nil
	}
	return nil, domain.ErrReservationNotFound
}

func (s *stubRegistry) Consume(_ context.Context, id string) (*domain.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return nil, domain.ErrReservationNotFound
	}
	delete(s.records, id)
	return r, nil
}

func (s *stubRegistry) ListByUser(_ context.Context, userID string) ([]*domain.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Reservation
	for _, r := range s.records {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *stubRegistry) ListByProduct(_ context.Context, productID string) ([]*domain.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Reservation
	for _, r := range s.records {
		if r.ProductID == productID {
			out = append(out, r)
		}
	}
	return out, nil
}

type stubCatalog struct {
	mu       sync.Mutex
	products map[string]*domain.Product
}

func (s *stubCatalog) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.products[id]; ok {
		return p, nil
	}
	return nil, domain.ErrProductNotFound
}

func (s *stubCatalog) ListActiveProducts(context.Context) ([]*domain.Product, error) {
	return nil, nil
}

func (s *stubCatalog) CreateProduct(_ context.Context, p *domain.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p
	return nil
}

func (s *stubCatalog) SaveProduct(_ context.Context, p *domain.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p
	return nil
}

func (s *stubCatalog) AdjustStock(context.Context, string, port.StockField, int64) error {
	return nil
}

func (s *stubCatalog) SetReservedStock(context.Context, string, int64) error { return nil }

type allowAll struct{}

func (allowAll) Evaluate(string, port.EligibilityFact) (bool, error) { return true, nil }

type stubLedger struct {
	mu     sync.Mutex
	orders map[string]*domain.Order
}

func (s *stubLedger) InsertOrder(_ context.Context, o *domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[o.ReservationRef]; ok {
		return domain.ErrDuplicateOrder
	}
	s.orders[o.ReservationRef] = o
	return nil
}

func (s *stubLedger) GetOrderByReservationRef(_ context.Context, ref string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o, ok := s.orders[ref]; ok {
		return o, nil
	}
	return nil, domain.ErrReservationNotFound
}

func (s *stubLedger) SumSoldQuantity(context.Context, string) (int64, error) { return 0, nil }

func newTestServer(t *testing.T, products ...*domain.Product) *httptest.Server {
	t.Helper()

	counter := &stubCounter{stock: make(map[string]int64)}
	registry := &stubRegistry{records: make(map[string]*domain.Reservation)}
	catalog := &stubCatalog{products: make(map[string]*domain.Product)}
	ledger := &stubLedger{orders: make(map[string]*domain.Order)}
	for _, p := range products {
		catalog.products[p.ID] = p
		require.NoError(t, counter.Initialize(context.Background(), p.ID, p.TotalStock))
	}

	tracer := otel.Tracer("test")
	coordinator := application.NewReservationCoordinator(counter, registry, catalog, allowAll{}, nil, tracer, 10*time.Minute, 10)
	finalizer := application.NewFinalizationService(registry, catalog, ledger, tracer)
	catalogSync := application.NewCatalogSyncService(catalog, counter, registry, nil, tracer)
	stockStatus := application.NewStockStatusService(catalog, counter, registry, tracer, 0.1)

	mux := http.NewServeMux()
	NewFlashDealHandler(coordinator, finalizer, catalogSync, stockStatus).RegisterRoutes(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func activeProduct(id string, stock int64) *domain.Product {
	now := time.Now()
	return &domain.Product{
		ID:            id,
		SKU:           "SKU-" + id,
		Name:          "Product " + id,
		Price:         5,
		TotalStock:    stock,
		IsActive:      true,
		DealStartTime: now.Add(-time.Hour),
		DealEndTime:   now.Add(time.Hour),
	}
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	return resp
}

func TestHandleReserve(t *testing.T) {
	srv := newTestServer(t, activeProduct("p1", 10))

	resp := postJSON(t, srv.URL+"/reserve", `{"userId":"u1","productId":"p1","quantity":2}`)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out application.ReservationResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.NotEmpty(t, out.ReservationID)
	require.Equal(t, int64(2), out.Quantity)
}

func TestHandleReserve_ErrorMapping(t *testing.T) {
	inactive := activeProduct("inactive", 10)
	inactive.IsActive = false
	srv := newTestServer(t, activeProduct("p1", 1), inactive)

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"insufficient stock", `{"userId":"u1","productId":"p1","quantity":5}`, http.StatusConflict},
		{"unknown product", `{"userId":"u1","productId":"ghost","quantity":1}`, http.StatusNotFound},
		{"inactive product", `{"userId":"u1","productId":"inactive","quantity":1}`, http.StatusForbidden},
		{"zero quantity", `{"userId":"u1","productId":"p1","quantity":0}`, http.StatusBadRequest},
		{"missing user", `{"productId":"p1","quantity":1}`, http.StatusBadRequest},
		{"malformed json", `{"userId":`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, srv.URL+"/reserve", tt.body)
			defer resp.Body.Close()
			require.Equal(t, tt.wantStatus, resp.StatusCode)
		})
	}
}

func TestReserveThenFinalizeFlow(t *testing.T) {
	srv := newTestServer(t, activeProduct("p1", 10))

	resp := postJSON(t, srv.URL+"/reserve", `{"userId":"u1","productId":"p1","quantity":1}`)
	var res application.ReservationResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	resp.Body.Close()

	resp = postJSON(t, srv.URL+"/finalize", `{"reservationId":"`+res.ReservationID+`"}`)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var order application.OrderResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&order))
	require.Equal(t, res.ReservationID, order.ReservationRef)

	// 再次结算同一个预约 -> 404
	resp = postJSON(t, srv.URL+"/finalize", `{"reservationId":"`+res.ReservationID+`"}`)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandleStockStatus(t *testing.T) {
	srv := newTestServer(t, activeProduct("p1", 10))

	resp, err := http.Get(srv.URL + "/stock_status?product_id=p1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var status application.StockStatusResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	require.Equal(t, domain.StockStatusAvailable, status.Status)

	resp, err = http.Get(srv.URL + "/stock_status?product_id=ghost")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandleRelease_NoopForUnknown(t *testing.T) {
	srv := newTestServer(t, activeProduct("p1", 10))

	resp := postJSON(t, srv.URL+"/release", `{"reservationId":"ghost"}`)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out application.ReleaseResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.False(t, out.Released)
}
