package credentials_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hugh/go-identity/internal/credentials"
	"github.com/hugh/go-identity/internal/database/models"
	"github.com/hugh/go-identity/internal/testutil"
	"github.com/hugh/go-identity/pkg/crypto"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGormStore_PutGetOverwrite(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := testutil.TestContext(t)
	store := credentials.NewGormStore(db)
	user := testutil.CreateTestUser(t, db, "", models.RoleUser)

	_, err := store.Get(ctx, user.ID)
	assert.ErrorIs(t, err, credentials.ErrNotFound)

	exp := time.Now().Add(time.Hour)
	require.NoError(t, store.Put(ctx, user.ID, "first", exp))
	require.NoError(t, store.Put(ctx, user.ID, "second", exp))

	got, err := store.Get(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "second", got)

	var count int64
	require.NoError(t, db.Model(&models.Token{}).Where("id = ?", user.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestGormStore_Delete(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := testutil.TestContext(t)
	store := credentials.NewGormStore(db)
	user := testutil.CreateTestUser(t, db, "", models.RoleUser)

	require.NoError(t, store.Put(ctx, user.ID, "tok", time.Now().Add(time.Hour)))
	require.NoError(t, store.Delete(ctx, user.ID))

	_, err := store.Get(ctx, user.ID)
	assert.ErrorIs(t, err, credentials.ErrNotFound)

	// Deleting again is fine.
	assert.NoError(t, store.Delete(ctx, user.ID))
}

func TestGormStore_Sweep(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := testutil.TestContext(t)
	store := credentials.NewGormStore(db)
	expired := testutil.CreateTestUser(t, db, "", models.RoleUser)
	live := testutil.CreateTestUser(t, db, "", models.RoleUser)

	now := time.Now()
	require.NoError(t, store.Put(ctx, expired.ID, "old", now.Add(-time.Minute)))
	require.NoError(t, store.Put(ctx, live.ID, "new", now.Add(time.Hour)))

	n, err := store.Sweep(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = store.Get(ctx, expired.ID)
	assert.ErrorIs(t, err, credentials.ErrNotFound)
	got, err := store.Get(ctx, live.ID)
	require.NoError(t, err)
	assert.Equal(t, "new", got)
}

func TestGormStore_Sealed(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := testutil.TestContext(t)
	sealer, err := crypto.NewSealer("")
	require.NoError(t, err)
	store := credentials.NewGormStore(db, credentials.WithSealer(sealer))
	user := testutil.CreateTestUser(t, db, "", models.RoleUser)

	require.NoError(t, store.Put(ctx, user.ID, "plain-token", time.Now().Add(time.Hour)))

	var row models.Token
	require.NoError(t, db.Where("id = ?", user.ID).First(&row).Error)
	assert.NotContains(t, row.Token, "plain-token")

	got, err := store.Get(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "plain-token", got)

	// A store with another key cannot read it.
	other, err := crypto.NewSealer("")
	require.NoError(t, err)
	_, err = credentials.NewGormStore(db, credentials.WithSealer(other)).Get(ctx, user.ID)
	assert.Error(t, err)
}

func TestDeleteRows(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := testutil.TestContext(t)
	store := credentials.NewGormStore(db)
	a := testutil.CreateTestUser(t, db, "", models.RoleUser)
	b := testutil.CreateTestUser(t, db, "", models.RoleUser)

	exp := time.Now().Add(time.Hour)
	require.NoError(t, store.Put(ctx, a.ID, "a", exp))
	require.NoError(t, store.Put(ctx, b.ID, "b", exp))

	require.NoError(t, credentials.DeleteRows(db, a.ID, b.ID))
	assert.NoError(t, credentials.DeleteRows(db))

	var count int64
	require.NoError(t, db.Model(&models.Token{}).Count(&count).Error)
	assert.Zero(t, count)
}

func unreachableRedis(t *testing.T) *redis.Client {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { rdb.Close() })
	return rdb
}

func TestRedisCache_ReadFallsBackWhenRedisIsDown(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := testutil.TestContext(t)
	backing := credentials.NewGormStore(db)
	cache := credentials.NewRedisCache(backing, unreachableRedis(t), testutil.DiscardLogger())
	user := testutil.CreateTestUser(t, db, "", models.RoleUser)

	require.NoError(t, backing.Put(ctx, user.ID, "from-db", time.Now().Add(time.Hour)))

	got, err := cache.Get(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "from-db", got)

	_, err = cache.Get(ctx, "missing")
	assert.ErrorIs(t, err, credentials.ErrNotFound)
}

func TestRedisCache_WritesRollBackWhenRedisIsDown(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := testutil.TestContext(t)
	backing := credentials.NewGormStore(db)
	cache := credentials.NewRedisCache(backing, unreachableRedis(t), testutil.DiscardLogger())
	user := testutil.CreateTestUser(t, db, "", models.RoleUser)

	assert.Error(t, cache.Put(ctx, user.ID, "tok", time.Now().Add(time.Hour)))
	_, err := backing.Get(ctx, user.ID)
	assert.ErrorIs(t, err, credentials.ErrNotFound)

	require.NoError(t, backing.Put(ctx, user.ID, "kept", time.Now().Add(time.Hour)))
	assert.Error(t, cache.Delete(ctx, user.ID))
	got, err := backing.Get(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "kept", got)

	assert.Error(t, cache.Evict(ctx, user.ID))
	assert.NoError(t, cache.Evict(ctx))
}

// failingCommands makes the named Redis commands fail while enabled.
type failingCommands struct {
	names   map[string]bool
	enabled atomic.Bool
}

func (f *failingCommands) DialHook(next redis.DialHook) redis.DialHook { return next }

func (f *failingCommands) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		if f.enabled.Load() && f.names[cmd.Name()] {
			err := errors.New("redis: connection reset by peer")
			cmd.SetErr(err)
			return err
		}
		return next(ctx, cmd)
	}
}

func (f *failingCommands) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func newCache(t *testing.T, failing ...string) (*credentials.RedisCache, *credentials.GormStore, *miniredis.Miniredis, *failingCommands) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	hook := &failingCommands{names: make(map[string]bool)}
	for _, name := range failing {
		hook.names[name] = true
	}
	rdb.AddHook(hook)

	backing := credentials.NewGormStore(testutil.SetupTestDB(t))
	return credentials.NewRedisCache(backing, rdb, testutil.DiscardLogger()), backing, mr, hook
}

func TestRedisCache_PutAndDelete(t *testing.T) {
	cache, backing, mr, _ := newCache(t)
	ctx := testutil.TestContext(t)

	require.NoError(t, cache.Put(ctx, "u1", "first", time.Now().Add(time.Hour)))
	cached, err := mr.Get("identity:token:u1")
	require.NoError(t, err)
	assert.Equal(t, "first", cached)
	assert.True(t, mr.TTL("identity:token:u1") > 0)

	got, err := cache.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "first", got)

	require.NoError(t, cache.Delete(ctx, "u1"))
	assert.False(t, mr.Exists("identity:token:u1"))
	_, err = backing.Get(ctx, "u1")
	assert.ErrorIs(t, err, credentials.ErrNotFound)
	_, err = cache.Get(ctx, "u1")
	assert.ErrorIs(t, err, credentials.ErrNotFound)
}

func TestRedisCache_ExpiredPutIsNotCached(t *testing.T) {
	cache, _, mr, _ := newCache(t)
	ctx := testutil.TestContext(t)

	require.NoError(t, cache.Put(ctx, "u1", "live", time.Now().Add(time.Hour)))
	require.NoError(t, cache.Put(ctx, "u1", "stale", time.Now().Add(-time.Minute)))
	assert.False(t, mr.Exists("identity:token:u1"))
}

func TestRedisCache_FailedEvictionKeepsRowAndCacheInStep(t *testing.T) {
	cache, backing, _, hook := newCache(t, "del")
	ctx := testutil.TestContext(t)

	require.NoError(t, cache.Put(ctx, "u1", "current", time.Now().Add(time.Hour)))

	hook.enabled.Store(true)
	require.Error(t, cache.Delete(ctx, "u1"))

	fromDB, err := backing.Get(ctx, "u1")
	require.NoError(t, err)
	fromCache, err := cache.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, fromDB, fromCache)

	hook.enabled.Store(false)
	require.NoError(t, cache.Delete(ctx, "u1"))
	_, err = cache.Get(ctx, "u1")
	assert.ErrorIs(t, err, credentials.ErrNotFound)
}

func TestRedisCache_FailedSetRollsBackRow(t *testing.T) {
	cache, backing, _, hook := newCache(t, "set")
	ctx := testutil.TestContext(t)

	require.NoError(t, cache.Put(ctx, "u1", "old", time.Now().Add(time.Hour)))

	hook.enabled.Store(true)
	require.Error(t, cache.Put(ctx, "u1", "new", time.Now().Add(time.Hour)))

	got, err := backing.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "old", got)
	got, err = cache.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "old", got)
}

func TestRedisCache_ConcurrentPutsAgree(t *testing.T) {
	cache, backing, mr, _ := newCache(t)
	ctx := testutil.TestContext(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, cache.Put(ctx, "u1", fmt.Sprintf("token-%d", i), time.Now().Add(time.Hour)))
		}(i)
	}
	wg.Wait()

	fromDB, err := backing.Get(ctx, "u1")
	require.NoError(t, err)
	cached, err := mr.Get("identity:token:u1")
	require.NoError(t, err)
	assert.Equal(t, fromDB, cached)
}
