package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

type view struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestNewClient(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := NewClient(Config{Addr: mr.Addr()})
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()
	if err := client.Set(context.Background(), "k", "v", 0).Err(); err != nil {
		t.Fatal(err)
	}

	mr.Close()
	if _, err := NewClient(Config{Addr: mr.Addr()}); err == nil {
		t.Fatal("expected error when redis is unreachable")
	}
}

func newTestCache(t *testing.T, prefix string, ttl time.Duration) (*miniredis.Miniredis, *ViewCache[view]) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := NewClient(Config{Addr: mr.Addr()})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { client.Close() })
	return mr, NewViewCache[view](client, prefix, ttl)
}

func TestViewCache(t *testing.T) {
	mr, cache := newTestCache(t, "view:", 0)
	ctx := context.Background()

	_, version, ok := cache.Get(ctx, "a")
	if ok || version != 0 {
		t.Fatalf("Get on empty cache = %v, %v", version, ok)
	}
	if !cache.SetIfVersion(ctx, "a", &view{Name: "a", Count: 1}, version) {
		t.Fatal("expected fill to succeed")
	}
	got, _, ok := cache.Get(ctx, "a")
	if !ok || got.Count != 1 {
		t.Fatalf("Get = %+v, %v", got, ok)
	}
	if ttl := mr.TTL("view:a"); ttl != 0 {
		t.Fatalf("zero ttl must not expire, got %v", ttl)
	}

	mr.Set("view:broken", "{not json")
	if _, _, ok := cache.Get(ctx, "broken"); ok {
		t.Fatal("expected miss on undecodable value")
	}

	cache.Invalidate(ctx)
	cache.Invalidate(ctx, "a", "missing")
	_, version, ok = cache.Get(ctx, "a")
	if ok {
		t.Fatal("expected miss after invalidate")
	}
	if version != 1 {
		t.Fatalf("version after invalidate = %d", version)
	}
	if ttl := mr.TTL("view:version:a"); ttl != versionTTL {
		t.Fatalf("version ttl = %v", ttl)
	}
}

func TestViewCache_FillAfterInvalidateIsDropped(t *testing.T) {
	mr, cache := newTestCache(t, "view:", time.Minute)
	ctx := context.Background()

	// 讀者拿到版本後，寫入方提交並失效，讀者手上的舊值不能寫回
	_, version, _ := cache.Get(ctx, "a")
	cache.Invalidate(ctx, "a")
	if cache.SetIfVersion(ctx, "a", &view{Name: "stale"}, version) {
		t.Fatal("stale fill must be rejected")
	}
	if mr.Exists("view:a") {
		t.Fatal("stale value was cached")
	}

	_, version, _ = cache.Get(ctx, "a")
	if !cache.SetIfVersion(ctx, "a", &view{Name: "fresh"}, version) {
		t.Fatal("expected fill with current version to succeed")
	}
	if ttl := mr.TTL("view:a"); ttl != time.Minute {
		t.Fatalf("ttl = %v", ttl)
	}
	if cache.SetIfVersion(ctx, "a", &view{}, -1) {
		t.Fatal("unknown version must never fill")
	}
}

func TestViewCache_Expiry(t *testing.T) {
	mr, cache := newTestCache(t, "ttl:", 30*time.Second)
	ctx := context.Background()

	cache.SetIfVersion(ctx, "x", &view{}, 0)
	mr.FastForward(31 * time.Second)
	if _, _, ok := cache.Get(ctx, "x"); ok {
		t.Fatal("expected entry to expire")
	}
}
