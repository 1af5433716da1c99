package staging

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisStore(rdb, nil), mr
}

func TestPutGetRoundtrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, SubjectKey("r1"), "Session report 2026-08-24", time.Hour))

	val, found, err := store.Get(ctx, SubjectKey("r1"))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "Session report 2026-08-24", val)
}

func TestAbsentIsNotEmpty(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	// Never written: absent.
	_, found, err := store.Get(ctx, MessageKey("nope"))
	require.NoError(t, err)
	assert.False(t, found)

	// Written empty: present with empty value.
	require.NoError(t, store.Put(ctx, MessageKey("r2"), "", time.Hour))
	val, found, err := store.Get(ctx, MessageKey("r2"))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "", val)
}

func TestTTLExpiry(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, MessageKey("r3"), "note body", 2*time.Hour))

	mr.FastForward(time.Hour)
	_, found, err := store.Get(ctx, MessageKey("r3"))
	require.NoError(t, err)
	assert.True(t, found)

	mr.FastForward(time.Hour + time.Second)
	_, found, err = store.Get(ctx, MessageKey("r3"))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestPutRenewsTTL(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, SubjectKey("r4"), "first", time.Hour))
	mr.FastForward(50 * time.Minute)
	require.NoError(t, store.Put(ctx, SubjectKey("r4"), "second", time.Hour))
	mr.FastForward(50 * time.Minute)

	val, found, err := store.Get(ctx, SubjectKey("r4"))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "second", val)
}

func TestFieldsExpireIndependently(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, SubjectKey("r5"), "subject", time.Hour))
	require.NoError(t, store.Put(ctx, MessageKey("r5"), "body", 3*time.Hour))

	mr.FastForward(2 * time.Hour)

	_, found, err := store.Get(ctx, SubjectKey("r5"))
	require.NoError(t, err)
	assert.False(t, found)

	_, found, err = store.Get(ctx, MessageKey("r5"))
	require.NoError(t, err)
	assert.True(t, found)
}

func TestDeleteIdempotent(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, SubjectKey("r6"), "s", time.Hour))
	require.NoError(t, store.Delete(ctx, SubjectKey("r6"), MessageKey("r6")))
	// Second delete of already-absent keys is a no-op.
	require.NoError(t, store.Delete(ctx, SubjectKey("r6"), MessageKey("r6")))
	require.NoError(t, store.Delete(ctx))

	_, found, err := store.Get(ctx, SubjectKey("r6"))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestUnicodeValues(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	text := "Тема: sesión de terapia 🧠"
	require.NoError(t, store.Put(ctx, SubjectKey("r7"), text, time.Hour))

	val, found, err := store.Get(ctx, SubjectKey("r7"))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, text, val)
}
