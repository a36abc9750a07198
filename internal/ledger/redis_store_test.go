package ledger

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	store, err := NewRedisStore(context.Background(), RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func TestRedisStoreLedger(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t)

	l, err := Open(ctx, store, "lena", Options{})
	require.NoError(t, err)
	require.NoError(t, l.Credit(ctx, 4))
	ok, err := l.Debit(ctx, 1.5)
	require.NoError(t, err)
	assert.True(t, ok)

	raw, err := mr.Get("fms:credits:lena")
	require.NoError(t, err)
	assert.JSONEq(t, `{"user":"lena","credits":2.5}`, raw)

	require.NoError(t, l.RecordUsage(ctx, UsageRecord{Binary: "/bin/x", Cost: 3.5}))
	records, total, err := l.Usage(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.InDelta(t, 3.5, total, 1e-9)
	assert.True(t, mr.Exists("fms:usage:lena"))

	_, err = l.ClearUsage(ctx)
	require.NoError(t, err)
	assert.False(t, mr.Exists("fms:usage:lena"))

	reopened, err := Open(ctx, store, "lena", Options{})
	require.NoError(t, err)
	assert.InDelta(t, 2.5, reopened.Balance(), 1e-9)
}

func TestRedisStoreMissingKeys(t *testing.T) {
	ctx := context.Background()
	store, _ := newRedisStore(t)

	acct, found, err := store.LoadAccount(ctx, "nobody")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, "nobody", acct.User)

	records, err := store.LoadUsage(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, records)
	require.NoError(t, store.DeleteUsage(ctx, "nobody"))
}

func TestRedisStoreCustomPrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := NewRedisStoreWithClient(client, "billing")

	require.NoError(t, store.SaveAccount(context.Background(), Account{User: "mo", Credits: 1}))
	assert.True(t, mr.Exists("billing:credits:mo"))
}

func TestRedisStoreUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	_, err := NewRedisStore(context.Background(), RedisConfig{Addr: addr, MaxRetries: -1})
	assert.Error(t, err)
}
