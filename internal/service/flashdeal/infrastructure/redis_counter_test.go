package infrastructure

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"testing"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/require"

	redisclient "github.com/Noman836/flesh-deal-api/internal/pkg/redis"
)

func scriptSha(script string) string {
	sum := sha1.Sum([]byte(script))
	return hex.EncodeToString(sum[:])
}

func newCounterForTest(t *testing.T) (*CounterRedisAdapter, redismock.ClientMock) {
	t.Helper()
	db, mock := redismock.NewClientMock()
	adapter, err := NewCounterRedisAdapter(redisclient.NewClientFromRedis(db))
	require.NoError(t, err)
	return adapter, mock
}

func TestCounterTryReserve_Success(t *testing.T) {
	adapter, mock := newCounterForTest(t)

	mock.ExpectEvalSha(scriptSha(TryReserveScript), []string{"stock:p1"}, int64(3)).SetVal(int64(7))

	ok, err := adapter.TryReserve(context.Background(), "p1", 3)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCounterTryReserve_Insufficient(t *testing.T) {
	adapter, mock := newCounterForTest(t)

	mock.ExpectEvalSha(scriptSha(TryReserveScript), []string{"stock:p1"}, int64(5)).SetVal(int64(-1))

	ok, err := adapter.TryReserve(context.Background(), "p1", 5)
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCounterTryReserve_Uninitialized(t *testing.T) {
	adapter, mock := newCounterForTest(t)

	mock.ExpectEvalSha(scriptSha(TryReserveScript), []string{"stock:p1"}, int64(1)).SetVal(int64(-2))

	_, err := adapter.TryReserve(context.Background(), "p1", 1)
	require.Error(t, err)
	require.Contains(t, err.Error(), "not initialized")
}

func TestCounterInitializeAndRelease(t *testing.T) {
	adapter, mock := newCounterForTest(t)
	ctx := context.Background()

	mock.ExpectSet("stock:p1", int64(100), 0).SetVal("OK")
	require.NoError(t, adapter.Initialize(ctx, "p1", 100))

	mock.ExpectIncrBy("stock:p1", 4).SetVal(104)
	require.NoError(t, adapter.Release(ctx, "p1", 4))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCounterGet_MissingKeyIsZero(t *testing.T) {
	adapter, mock := newCounterForTest(t)

	mock.ExpectGet("stock:gone").RedisNil()

	val, err := adapter.Get(context.Background(), "gone")
	require.NoError(t, err)
	require.Equal(t, int64(0), val)
}

func TestCounterGet(t *testing.T) {
	adapter, mock := newCounterForTest(t)

	mock.ExpectGet("stock:p1").SetVal("42")

	val, err := adapter.Get(context.Background(), "p1")
	require.NoError(t, err)
	require.Equal(t, int64(42), val)
}
