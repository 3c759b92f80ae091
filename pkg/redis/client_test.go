package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dealerhub/showroom/pkg/config"
	"github.com/redis/go-redis/v9"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	raw := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = raw.Close() })
	return FromRaw(raw), mr
}

func TestFixedWindowAllow(t *testing.T) {
	ctx := context.Background()
	client, mr := newTestClient(t)

	for i := 1; i <= 2; i++ {
		allowed, count, err := client.FixedWindowAllow(ctx, "login:ip:1.2.3.4", 2, time.Minute)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !allowed || count != int64(i) {
			t.Fatalf("call %d: allowed=%v count=%d", i, allowed, count)
		}
	}
	if ttl := mr.TTL("sr:rate_limit:login:ip:1.2.3.4"); ttl != time.Minute {
		t.Fatalf("expected window ttl, got %v", ttl)
	}

	allowed, _, err := client.FixedWindowAllow(ctx, "login:ip:1.2.3.4", 2, time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if allowed {
		t.Fatalf("expected limit reached")
	}

	mr.FastForward(time.Minute + time.Second)
	allowed, count, err := client.FixedWindowAllow(ctx, "login:ip:1.2.3.4", 2, time.Minute)
	if err != nil || !allowed || count != 1 {
		t.Fatalf("expected fresh window, allowed=%v count=%d err=%v", allowed, count, err)
	}
}

func TestSetNXAndGet(t *testing.T) {
	ctx := context.Background()
	client, _ := newTestClient(t)

	ok, err := client.SetNX(ctx, "k", "v1", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first SetNX: ok=%v err=%v", ok, err)
	}
	ok, err = client.SetNX(ctx, "k", "v2", time.Minute)
	if err != nil || ok {
		t.Fatalf("second SetNX should not win: ok=%v err=%v", ok, err)
	}
	got, err := client.Get(ctx, "k")
	if err != nil || got != "v1" {
		t.Fatalf("Get = %q, %v", got, err)
	}
	if err := client.Del(ctx, "k"); err != nil {
		t.Fatalf("Del: %v", err)
	}
	if _, err := client.Get(ctx, "k"); !errors.Is(err, Nil) {
		t.Fatalf("expected Nil after delete, got %v", err)
	}
}

func TestUninitializedClient(t *testing.T) {
	client := &Client{}
	if err := client.Ping(context.Background()); err == nil {
		t.Fatal("expected error from empty client")
	}
	if err := client.Close(); err != nil {
		t.Fatalf("close on empty client: %v", err)
	}
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	if got := client.IdempotencyKey("requests", "abc"); got != "sr:idempotency:requests:abc" {
		t.Fatalf("unexpected idempotency key %s", got)
	}
	if got := client.RateLimitKey("scope"); got != "sr:rate_limit:scope" {
		t.Fatalf("unexpected rate limit key %s", got)
	}
	if got := client.AccessSessionKey("jti"); got != "sr:session:access:jti" {
		t.Fatalf("unexpected session key %s", got)
	}
	if got := client.LocalStoreKey("", "cart"); got != "sr:local:cart" {
		t.Fatalf("empty parts should be skipped, got %s", got)
	}
}

func TestOptionsFromConfigRequiresURL(t *testing.T) {
	if _, err := optionsFromConfig(config.RedisConfig{}); err == nil {
		t.Fatal("expected missing url error")
	}
	opts, err := optionsFromConfig(config.RedisConfig{URL: "redis://localhost:6379/2", PoolSize: 7})
	if err != nil {
		t.Fatalf("optionsFromConfig: %v", err)
	}
	if opts.DB != 2 || opts.PoolSize != 7 {
		t.Fatalf("unexpected options db=%d pool=%d", opts.DB, opts.PoolSize)
	}
}
