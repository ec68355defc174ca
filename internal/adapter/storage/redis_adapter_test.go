package storage

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/easy-inventory/internal/core/domain"
)

func getRedisClient(t *testing.T) *redis.Client {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	return client
}

func TestSetIdempotency_Success(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client)

	// Setup
	client.Del(ctx, "test-idem-key")

	// First call should succeed
	ok, err := adapter.SetIdempotency(ctx, "test-idem-key")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Error("expected first call to succeed")
	}

	// Second call should fail (key exists)
	ok, err = adapter.SetIdempotency(ctx, "test-idem-key")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected second call to fail")
	}
}

func TestReserveUsername_Concurrent(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client)

	// Setup
	client.Del(ctx, usernameKeyPrefix+"concurrent-user")

	var successCount atomic.Int32
	var holder atomic.Value
	var wg sync.WaitGroup
	concurrency := 100

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, ok, err := adapter.ReserveUsername(ctx, "concurrent-user")
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if ok {
				successCount.Add(1)
				holder.Store(token)
			}
		}()
	}

	wg.Wait()

	// Only one should hold the name
	if successCount.Load() != 1 {
		t.Fatalf("expected exactly 1 reservation, got %d", successCount.Load())
	}

	// Released names can be reserved again
	if err := adapter.ReleaseUsername(ctx, "concurrent-user", holder.Load().(string)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	token, ok, err := adapter.ReserveUsername(ctx, "concurrent-user")
	if err != nil || !ok {
		t.Errorf("expected reservation after release, got %v %v", ok, err)
	}
	adapter.ReleaseUsername(ctx, "concurrent-user", token)
}

func TestReleaseUsername_StaleTokenKeepsNewHolder(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client)
	key := usernameKeyPrefix + "expiring-user"
	client.Del(ctx, key)

	stale, ok, err := adapter.ReserveUsername(ctx, "expiring-user")
	if err != nil || !ok {
		t.Fatalf("expected first reservation, got %v %v", ok, err)
	}

	// Simulate TTL expiry followed by a second registration.
	client.Del(ctx, key)
	fresh, ok, err := adapter.ReserveUsername(ctx, "expiring-user")
	if err != nil || !ok {
		t.Fatalf("expected second reservation, got %v %v", ok, err)
	}

	if err := adapter.ReleaseUsername(ctx, "expiring-user", stale); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := client.Get(ctx, key).Val(); got != fresh {
		t.Errorf("expected reservation %q to survive stale release, got %q", fresh, got)
	}

	if err := adapter.ReleaseUsername(ctx, "expiring-user", fresh); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := client.Exists(ctx, key).Val(); n != 0 {
		t.Errorf("expected reservation released, exists=%d", n)
	}
}

func TestReleaseIdempotency(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client)
	key := "inventory:create:owner:retry-key"
	client.Del(ctx, key)

	ok, err := adapter.SetIdempotency(ctx, key)
	if err != nil || !ok {
		t.Fatalf("expected first set, got %v %v", ok, err)
	}
	if err := adapter.ReleaseIdempotency(ctx, key); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ok, err = adapter.SetIdempotency(ctx, key)
	if err != nil || !ok {
		t.Errorf("expected key reusable after release, got %v %v", ok, err)
	}
	client.Del(ctx, key)
}

func TestRevokeSession(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client)

	// Setup
	client.Del(ctx, revokedKeyPrefix+"token-1")

	revoked, err := adapter.IsSessionRevoked(ctx, "token-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if revoked {
		t.Error("expected fresh token to be valid")
	}

	if err := adapter.RevokeSession(ctx, "token-1", time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	revoked, err = adapter.IsSessionRevoked(ctx, "token-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !revoked {
		t.Error("expected token to be revoked")
	}

	// Revocation expires with the token
	ttl, _ := client.TTL(ctx, revokedKeyPrefix+"token-1").Result()
	if ttl <= 0 || ttl > time.Minute {
		t.Errorf("expected ttl within a minute, got %v", ttl)
	}
}

func TestConsumeResetToken_Concurrent(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client)

	// Setup
	if err := adapter.StoreResetToken(ctx, "reset-1", "account-1", time.Minute); err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	var successCount atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			accountID, ok, err := adapter.ConsumeResetToken(ctx, "reset-1")
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if ok {
				if accountID != "account-1" {
					t.Errorf("expected account-1, got %s", accountID)
				}
				successCount.Add(1)
			}
		}()
	}

	wg.Wait()

	// A reset token is single use
	if successCount.Load() != 1 {
		t.Errorf("expected exactly 1 consume, got %d", successCount.Load())
	}
}

func TestChangeFeed(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	adapter := NewRedisAdapter(client)

	events, closeFeed, err := adapter.SubscribeChanges(ctx, "feed-owner")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer closeFeed()

	// Other owners' events are not delivered
	adapter.PublishChange(ctx, domain.InventoryEvent{Type: domain.EventCreated, RecordID: "x", OwnerID: "someone-else"})
	if err := adapter.PublishChange(ctx, domain.InventoryEvent{Type: domain.EventDeleted, RecordID: "rec-1", OwnerID: "feed-owner"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case event := <-events:
		if event.Type != domain.EventDeleted || event.RecordID != "rec-1" {
			t.Errorf("unexpected event %+v", event)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for event")
	}
}
