package session

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dealerhub/showroom/pkg/config"
	redisclient "github.com/dealerhub/showroom/pkg/redis"
	"github.com/google/uuid"
	redislib "github.com/redis/go-redis/v9"
)

func newTestManager(t *testing.T) (*Manager, *miniredis.Miniredis, *redisclient.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	raw := redislib.NewClient(&redislib.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = raw.Close() })
	client := redisclient.FromRaw(raw)

	manager, err := NewManager(client, config.JWTConfig{ExpirationMinutes: 15, RefreshTokenTTLMinutes: 60})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return manager, mr, client
}

func TestNewManagerValidatesTTL(t *testing.T) {
	client := redisclient.FromRaw(redislib.NewClient(&redislib.Options{Addr: "127.0.0.1:0"}))
	if _, err := NewManager(nil, config.JWTConfig{}); err == nil {
		t.Fatal("expected nil client to fail")
	}
	if _, err := NewManager(client, config.JWTConfig{ExpirationMinutes: 60, RefreshTokenTTLMinutes: 30}); err == nil {
		t.Fatal("expected refresh ttl shorter than access ttl to fail")
	}
}

func TestManagerGenerateAndRotate(t *testing.T) {
	manager, mr, client := newTestManager(t)
	ctx := context.Background()
	userID := uuid.New()
	accessID := "access-123"

	token, err := manager.Generate(ctx, userID, accessID)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	stored, err := mr.Get(client.AccessSessionKey(accessID))
	if err != nil {
		t.Fatalf("expected stored session: %v", err)
	}
	if stored == "" || strings.Contains(stored, token) {
		t.Fatalf("raw refresh token must not be persisted: %s", stored)
	}
	if ttl := mr.TTL(client.AccessSessionKey(accessID)); ttl != time.Hour {
		t.Fatalf("unexpected ttl %v", ttl)
	}

	if _, _, err := manager.Rotate(ctx, userID, accessID, "wrong"); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected invalid refresh token error, got %v", err)
	}
	if _, _, err := manager.Rotate(ctx, uuid.New(), accessID, token); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected owner mismatch to be rejected, got %v", err)
	}

	newAccessID, newToken, err := manager.Rotate(ctx, userID, accessID, token)
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if mr.Exists(client.AccessSessionKey(accessID)) {
		t.Fatalf("old access key left behind")
	}
	if newToken == token {
		t.Fatal("expected a fresh refresh token")
	}
	ok, err := manager.HasSession(ctx, newAccessID)
	if err != nil || !ok {
		t.Fatalf("expected new session, ok=%v err=%v", ok, err)
	}
}

func TestManagerRevoke(t *testing.T) {
	manager, _, _ := newTestManager(t)
	ctx := context.Background()

	if _, err := manager.Generate(ctx, uuid.New(), "access-1"); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if err := manager.Revoke(ctx, "access-1"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	ok, err := manager.HasSession(ctx, "access-1")
	if err != nil || ok {
		t.Fatalf("expected revoked session, ok=%v err=%v", ok, err)
	}
	if err := manager.Revoke(ctx, " "); err == nil {
		t.Fatal("expected blank access id to fail")
	}
}

func TestManagerRotationCountsGenerations(t *testing.T) {
	manager, mr, client := newTestManager(t)
	ctx := context.Background()
	userID := uuid.New()

	accessID := "access-gen"
	token, err := manager.Generate(ctx, userID, accessID)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	for i := 1; i <= 2; i++ {
		accessID, token, err = manager.Rotate(ctx, userID, accessID, token)
		if err != nil {
			t.Fatalf("rotate %d: %v", i, err)
		}
	}
	raw, err := mr.Get(client.AccessSessionKey(accessID))
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	if !strings.Contains(raw, `"generation":2`) {
		t.Fatalf("expected second generation, got %s", raw)
	}
}

func TestManagerDropsCorruptSession(t *testing.T) {
	manager, mr, client := newTestManager(t)
	key := client.AccessSessionKey("access-bad")
	if err := mr.Set(key, "{not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	ok, err := manager.HasSession(context.Background(), "access-bad")
	if err != nil || ok {
		t.Fatalf("corrupt session must read as absent, ok=%v err=%v", ok, err)
	}
	if mr.Exists(key) {
		t.Fatal("corrupt session should be deleted")
	}
}
