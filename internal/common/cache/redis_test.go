package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// newTestRedisCache starts an in-process fake Redis server and returns a
// RedisCache backed by it, so these tests exercise the real go-redis wire
// protocol without a real Redis deployment.
func newTestRedisCache(t *testing.T) *RedisCache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c, err := NewRedisCacheWithClient(client)
	if err != nil {
		t.Fatalf("NewRedisCacheWithClient: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestRedisCacheBasicOpsRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := newTestRedisCache(t)

	if err := c.Set(ctx, "k", "v", 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := c.Get(ctx, "k")
	if err != nil || got != "v" {
		t.Fatalf("Get = %q, %v, want %q, nil", got, err, "v")
	}

	n, err := c.Exists(ctx, "k", "missing")
	if err != nil || n != 1 {
		t.Fatalf("Exists = %d, %v, want 1, nil", n, err)
	}

	if err := c.Del(ctx, "k"); err != nil {
		t.Fatalf("Del: %v", err)
	}
	got, err = c.Get(ctx, "k")
	if err != nil || got != "" {
		t.Fatalf("Get after Del = %q, %v, want empty, nil", got, err)
	}
}

func TestRedisCacheSetNXOnlySetsOnce(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := newTestRedisCache(t)

	ok, err := c.SetNX(ctx, "lock", "a", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first SetNX = %v, %v, want true, nil", ok, err)
	}
	ok, err = c.SetNX(ctx, "lock", "b", time.Minute)
	if err != nil || ok {
		t.Fatalf("second SetNX = %v, %v, want false, nil", ok, err)
	}
	v, err := c.Get(ctx, "lock")
	if err != nil || v != "a" {
		t.Fatalf("Get = %q, %v, want %q (second SetNX must not overwrite)", v, err, "a")
	}
}

func TestRedisCacheIncrDecr(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := newTestRedisCache(t)

	for i := 0; i < 3; i++ {
		if _, err := c.Incr(ctx, "n"); err != nil {
			t.Fatalf("Incr: %v", err)
		}
	}
	v, err := c.IncrBy(ctx, "n", 10)
	if err != nil || v != 13 {
		t.Fatalf("IncrBy = %d, %v, want 13, nil", v, err)
	}
	v, err = c.DecrBy(ctx, "n", 3)
	if err != nil || v != 10 {
		t.Fatalf("DecrBy = %d, %v, want 10, nil", v, err)
	}
}

func TestRedisCacheHashOps(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := newTestRedisCache(t)

	if err := c.HMSet(ctx, "h", map[string]interface{}{"a": "1", "b": "2"}); err != nil {
		t.Fatalf("HMSet: %v", err)
	}
	all, err := c.HGetAll(ctx, "h")
	if err != nil || all["a"] != "1" || all["b"] != "2" {
		t.Fatalf("HGetAll = %v, %v", all, err)
	}
	if err := c.HDel(ctx, "h", "a"); err != nil {
		t.Fatalf("HDel: %v", err)
	}
	exists, err := c.HExists(ctx, "h", "a")
	if err != nil || exists {
		t.Fatalf("HExists after HDel = %v, %v, want false, nil", exists, err)
	}
}

func TestRedisCacheZSetOpsOrdering(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := newTestRedisCache(t)

	if err := c.ZAdd(ctx, "lb", ZMember{Score: 10, Member: "alice"}, ZMember{Score: 20, Member: "bob"}); err != nil {
		t.Fatalf("ZAdd: %v", err)
	}
	top, err := c.ZRevRange(ctx, "lb", 0, 0)
	if err != nil || len(top) != 1 || top[0] != "bob" {
		t.Fatalf("ZRevRange = %v, %v, want [bob]", top, err)
	}
	rank, err := c.ZRank(ctx, "lb", "alice")
	if err != nil || rank != 0 {
		t.Fatalf("ZRank(alice) = %d, %v, want 0", rank, err)
	}
}

func TestRedisCacheTryLockUnlock(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := newTestRedisCache(t)

	ok, err := c.TryLock(ctx, "mutex", time.Minute)
	if err != nil || !ok {
		t.Fatalf("TryLock = %v, %v, want true, nil", ok, err)
	}
	ok, err = c.TryLock(ctx, "mutex", time.Minute)
	if err != nil || ok {
		t.Fatalf("TryLock while held = %v, %v, want false, nil", ok, err)
	}
	if err := c.Unlock(ctx, "mutex"); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	ok, err = c.TryLock(ctx, "mutex", time.Minute)
	if err != nil || !ok {
		t.Fatalf("TryLock after Unlock = %v, %v, want true, nil", ok, err)
	}
}

func TestGetWithCachedCachesEmptyResultAgainstPenetration(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := newTestRedisCache(t)

	fetches := 0
	fetch := func(ctx context.Context) (*string, error) {
		fetches++
		return nil, nil
	}
	isEmpty := func(s *string) bool { return s == nil }
	marshal := func(s *string) string { return *s }
	unmarshal := func(s string) (*string, error) { return &s, nil }

	for i := 0; i < 2; i++ {
		v, err := GetWithCached(ctx, c, "miss", time.Minute, time.Minute, isEmpty, marshal, unmarshal, fetch)
		if err != nil || v != nil {
			t.Fatalf("GetWithCached iteration %d = %v, %v, want nil, nil", i, v, err)
		}
	}
	if fetches != 1 {
		t.Fatalf("fn was called %d times, want 1 (second call must hit the cached null sentinel)", fetches)
	}
}
