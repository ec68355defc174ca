package port

import (
	"context"
	"time"

	"github.com/rl1809/easy-inventory/internal/core/domain"
)

type CacheRepository interface {
	// SetIdempotency sets a key for idempotency check, returns false if already exists
	SetIdempotency(ctx context.Context, key string) (bool, error)

	// ReleaseIdempotency frees a key whose request failed so it can be retried
	ReleaseIdempotency(ctx context.Context, key string) error

	// ReserveUsername holds a username while a registration is in flight and
	// returns the holder's token, or false if someone else holds it
	ReserveUsername(ctx context.Context, username string) (string, bool, error)

	// ReleaseUsername drops the reservation only if token still holds it
	ReleaseUsername(ctx context.Context, username, token string) error
}

type SessionStore interface {
	// RevokeSession blacklists a token id until ttl elapses
	RevokeSession(ctx context.Context, tokenID string, ttl time.Duration) error

	IsSessionRevoked(ctx context.Context, tokenID string) (bool, error)

	StoreResetToken(ctx context.Context, token, accountID string, ttl time.Duration) error

	// ConsumeResetToken atomically reads and deletes a reset token, returns false if unknown
	ConsumeResetToken(ctx context.Context, token string) (string, bool, error)
}

type ChangeFeed interface {
	PublishChange(ctx context.Context, event domain.InventoryEvent) error

	// SubscribeChanges streams the owner's events until ctx is done or the returned close func is called
	SubscribeChanges(ctx context.Context, ownerID string) (<-chan domain.InventoryEvent, func() error, error)
}
