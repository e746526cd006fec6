package kv

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/redis/go-redis/v9"
)

type brokenStore struct{}

var errBroken = errors.New("broken")

func (brokenStore) Load(context.Context, string) ([]byte, bool, error) { return nil, false, errBroken }
func (brokenStore) Save(context.Context, string, []byte) error       { return errBroken }
func (brokenStore) Delete(context.Context, string) error             { return errBroken }

func exercise(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	if _, ok, err := s.Load(ctx, "missing"); ok || err != nil {
		t.Fatalf("missing key: ok=%v err=%v", ok, err)
	}
	if err := s.Save(ctx, "route_completed_v1", []byte(`["a"]`)); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(ctx, "route_completed_v1", []byte(`["a","b"]`)); err != nil {
		t.Fatal(err)
	}
	b, ok, err := s.Load(ctx, "route_completed_v1")
	if err != nil || !ok || string(b) != `["a","b"]` {
		t.Fatalf("load: %q %v %v", b, ok, err)
	}
	if l, ok := s.(Lister); ok {
		ks, err := l.Keys(ctx)
		if err != nil || len(ks) != 1 || ks[0] != "route_completed_v1" {
			t.Fatalf("keys: %v %v", ks, err)
		}
	}
	if err := s.Delete(ctx, "route_completed_v1"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := s.Load(ctx, "route_completed_v1"); ok {
		t.Fatal("deleted key still present")
	}
	if err := s.Delete(ctx, "route_completed_v1"); err != nil {
		t.Fatalf("deleting twice should be a no-op: %v", err)
	}
}

func TestMemory(t *testing.T) { exercise(t, NewMemory()) }

func TestMemoryCopiesValues(t *testing.T) {
	s := NewMemory()
	b := []byte("abc")
	_ = s.Save(context.Background(), "k", b)
	b[0] = 'x'
	got, _, _ := s.Load(context.Background(), "k")
	if string(got) != "abc" {
		t.Fatalf("stored value aliased caller slice: %q", got)
	}
}

func TestFile(t *testing.T) {
	s, err := NewFile(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	exercise(t, s)
}

func TestFileEscapesKeys(t *testing.T) {
	s, err := NewFile(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := s.Save(ctx, "a/b c", []byte("1")); err != nil {
		t.Fatal(err)
	}
	ks, _ := s.Keys(ctx)
	if len(ks) != 1 || ks[0] != "a/b c" {
		t.Fatalf("unexpected keys %v", ks)
	}
}

func TestFileCanceledContext(t *testing.T) {
	s, _ := NewFile(t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Save(ctx, "k", nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled, got %v", err)
	}
}

func TestChain(t *testing.T) { exercise(t, NewChain(NewMemory(), nil, NewMemory())) }

func TestChainBackfillsUpperTier(t *testing.T) {
	ctx := context.Background()
	hot, cold := NewMemory(), NewMemory()
	_ = cold.Save(ctx, "k", []byte("v"))
	c := NewChain(hot, cold)
	if b, ok, err := c.Load(ctx, "k"); err != nil || !ok || string(b) != "v" {
		t.Fatalf("chain load: %q %v %v", b, ok, err)
	}
	if b, ok, _ := hot.Load(ctx, "k"); !ok || string(b) != "v" {
		t.Fatal("upper tier not backfilled")
	}
}

func TestChainToleratesBrokenTier(t *testing.T) {
	ctx := context.Background()
	good := NewMemory()
	c := NewChain(brokenStore{}, good)
	err := c.Save(ctx, "k", []byte("v"))
	if !errors.Is(err, errBroken) {
		t.Fatalf("expected joined error, got %v", err)
	}
	if _, ok, _ := good.Load(ctx, "k"); !ok {
		t.Fatal("healthy tier should still be written")
	}
	b, ok, err := c.Load(ctx, "k")
	if !ok || string(b) != "v" || err != nil {
		t.Fatalf("load past broken tier: %q %v %v", b, ok, err)
	}
	if _, ok, err := c.Load(ctx, "missing"); ok || !errors.Is(err, errBroken) {
		t.Fatalf("miss should carry tier error: %v %v", ok, err)
	}
}

// 需要真实 Redis：设置 KV_TEST_REDIS_ADDR 后运行
func TestRedis(t *testing.T) {
	addr := os.Getenv("KV_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("KV_TEST_REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()
	exercise(t, NewRedis(rdb, "routeplan-test:"))
}
