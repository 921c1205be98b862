package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewReservation(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	t.Run("valid reservation", func(t *testing.T) {
		r, err := NewReservation("res-1", "user-1", "product-1", 2, now, 10*time.Minute)
		require.NoError(t, err)
		require.Equal(t, "res-1", r.ID)
		require.Equal(t, now, r.CreatedAt)
		require.Equal(t, now.Add(10*time.Minute), r.ExpiresAt)
		require.Empty(t, r.BatchID)
	})

	t.Run("missing required fields", func(t *testing.T) {
		_, err := NewReservation("", "user-1", "product-1", 1, now, time.Minute)
		require.Error(t, err)
	})

	t.Run("non-positive quantity", func(t *testing.T) {
		_, err := NewReservation("res-1", "user-1", "product-1", 0, now, time.Minute)
		require.ErrorIs(t, err, ErrInvalidQuantity)
	})
}

func TestReservation_AttachToBatch(t *testing.T) {
	now := time.Now()
	r, err := NewReservation("batch-1_product-1", "user-1", "product-1", 1, now, time.Minute)
	require.NoError(t, err)

	r.AttachToBatch("batch-1", 3)
	require.Equal(t, "batch-1", r.BatchID)
	require.Equal(t, 3, r.BatchSize)
}

func TestReservation_Expiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	r, err := NewReservation("res-1", "user-1", "product-1", 1, now, 5*time.Minute)
	require.NoError(t, err)

	require.False(t, r.Expired(now))
	require.False(t, r.Expired(now.Add(5*time.Minute)))
	require.True(t, r.Expired(now.Add(5*time.Minute+time.Second)))

	require.Equal(t, 2*time.Minute, r.Remaining(now.Add(3*time.Minute)))
	require.Equal(t, time.Duration(0), r.Remaining(now.Add(time.Hour)))
}
