package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"github.com/Noman836/flesh-deal-api/internal/service/flashdeal/domain"
)

func TestStockStatus_AggregatesLiveView(t *testing.T) {
	ctx := context.Background()
	counter := newFakeCounter()
	registry := newFakeRegistry()

	p := testProduct("p1", 100)
	p.SoldStock = 20
	catalog := newFakeCatalog(p)

	require.NoError(t, counter.Initialize(ctx, "p1", 50))
	for i, qty := range []int64{10, 20} {
		r, err := domain.NewReservation(string(rune('a'+i)), "user-1", "p1", qty, testNow, 10*time.Minute)
		require.NoError(t, err)
		require.NoError(t, registry.Create(ctx, r, 10*time.Minute))
	}

	svc := NewStockStatusService(catalog, counter, registry, otel.Tracer("test"), 0.1)
	status, err := svc.StockStatus(ctx, "p1")
	require.NoError(t, err)

	require.Equal(t, int64(100), status.TotalStock)
	require.Equal(t, int64(20), status.SoldStock)
	// reservedStock 来自注册表实时求和，不是持久字段
	require.Equal(t, int64(30), status.ReservedStock)
	require.Equal(t, int64(50), status.AvailableStock)
	require.Equal(t, domain.StockStatusAvailable, status.Status)
	require.InDelta(t, 30.0, status.ReservationPercentage, 0.001)
	require.Len(t, status.Reservations, 2)
}

func TestStockStatus_Thresholds(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		available int64
		want      domain.StockStatus
	}{
		{"sold out", 0, domain.StockStatusOutOfStock},
		{"below ten percent", 9, domain.StockStatusLow},
		{"healthy", 60, domain.StockStatusAvailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			counter := newFakeCounter()
			catalog := newFakeCatalog(testProduct("p1", 100))
			require.NoError(t, counter.Initialize(ctx, "p1", tt.available))

			svc := NewStockStatusService(catalog, counter, newFakeRegistry(), otel.Tracer("test"), 0.1)
			status, err := svc.StockStatus(ctx, "p1")
			require.NoError(t, err)
			require.Equal(t, tt.want, status.Status)
		})
	}
}

func TestStockStatus_UnknownProduct(t *testing.T) {
	svc := NewStockStatusService(newFakeCatalog(), newFakeCounter(), newFakeRegistry(), otel.Tracer("test"), 0.1)
	_, err := svc.StockStatus(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrProductNotFound)
}
