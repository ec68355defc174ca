package storage

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/rl1809/easy-inventory/internal/core/domain"
)

const (
	idempotencyKeyTTL    = 24 * time.Hour
	usernameKeyPrefix    = "username:"
	usernameReserveTTL   = 30 * time.Second
	revokedKeyPrefix     = "session:revoked:"
	resetKeyPrefix       = "reset:"
	changesChannelPrefix = "inventory:changes:"
)

// consumeScript reads and deletes a key in one step; GETDEL needs Redis 6.2.
var consumeScript = redis.NewScript(`
local value = redis.call('GET', KEYS[1])
if not value then
	return false
end
redis.call('DEL', KEYS[1])
return value
`)

// releaseScript deletes a key only while it still holds the caller's token.
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

type RedisAdapter struct {
	client *redis.Client
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

func (r *RedisAdapter) SetIdempotency(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, key, 1, idempotencyKeyTTL).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}

func (r *RedisAdapter) ReleaseIdempotency(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

func (r *RedisAdapter) ReserveUsername(ctx context.Context, username string) (string, bool, error) {
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, usernameKeyPrefix+username, token, usernameReserveTTL).Result()
	if err != nil || !ok {
		return "", false, err
	}
	return token, true, nil
}

// ReleaseUsername leaves the key alone if the reservation expired and another
// registration took it over.
func (r *RedisAdapter) ReleaseUsername(ctx context.Context, username, token string) error {
	return releaseScript.Run(ctx, r.client, []string{usernameKeyPrefix + username}, token).Err()
}

func (r *RedisAdapter) RevokeSession(ctx context.Context, tokenID string, ttl time.Duration) error {
	return r.client.Set(ctx, revokedKeyPrefix+tokenID, 1, ttl).Err()
}

func (r *RedisAdapter) IsSessionRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := r.client.Exists(ctx, revokedKeyPrefix+tokenID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *RedisAdapter) StoreResetToken(ctx context.Context, token, accountID string, ttl time.Duration) error {
	return r.client.Set(ctx, resetKeyPrefix+token, accountID, ttl).Err()
}

func (r *RedisAdapter) ConsumeResetToken(ctx context.Context, token string) (string, bool, error) {
	accountID, err := consumeScript.Run(ctx, r.client, []string{resetKeyPrefix + token}).Text()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return accountID, true, nil
}

func (r *RedisAdapter) PublishChange(ctx context.Context, event domain.InventoryEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, changesChannelPrefix+event.OwnerID, payload).Err()
}

func (r *RedisAdapter) SubscribeChanges(ctx context.Context, ownerID string) (<-chan domain.InventoryEvent, func() error, error) {
	sub := r.client.Subscribe(ctx, changesChannelPrefix+ownerID)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, nil, err
	}

	out := make(chan domain.InventoryEvent)
	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			var event domain.InventoryEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Printf("redis: bad change event on %s: %v", msg.Channel, err)
				continue
			}
			select {
			case out <- event:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, sub.Close, nil
}
