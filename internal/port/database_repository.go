package port

import (
	"context"
	"errors"

	"github.com/rl1809/easy-inventory/internal/core/domain"
)

var (
	// ErrNotFound is returned when a row does not exist
	ErrNotFound = errors.New("not found")

	// ErrDuplicate is returned when a unique constraint rejects a write
	ErrDuplicate = errors.New("duplicate key")

	// ErrOptimisticLock is returned when a record changed since it was read
	ErrOptimisticLock = errors.New("optimistic lock conflict")
)

type AccountRepository interface {
	// CreateAccount inserts an account, ErrDuplicate when username or email is taken
	CreateAccount(ctx context.Context, account domain.Account) error

	GetAccount(ctx context.Context, id string) (domain.Account, error)
	GetAccountByUsername(ctx context.Context, username string) (domain.Account, error)
	GetAccountByEmail(ctx context.Context, email string) (domain.Account, error)

	UsernameExists(ctx context.Context, username string) (bool, error)
	EmailExists(ctx context.Context, email string) (bool, error)

	UpdatePassword(ctx context.Context, id, passwordHash string) error
}

type InventoryRepository interface {
	CreateRecord(ctx context.Context, record domain.InventoryRecord) error

	// GetRecord returns ErrNotFound when the record does not exist
	GetRecord(ctx context.Context, id string) (domain.InventoryRecord, error)

	ListRecordsByOwner(ctx context.Context, ownerID string) ([]domain.InventoryRecord, error)

	// ReplaceRecord overwrites the record if its version still matches record.Version.
	// A non-empty staleBlob is tombstoned in the same transaction.
	ReplaceRecord(ctx context.Context, record domain.InventoryRecord, staleBlob string) (domain.InventoryRecord, error)

	// DeleteRecord removes the record if its version still matches record.Version
	// and tombstones its photo in the same transaction
	DeleteRecord(ctx context.Context, record domain.InventoryRecord) error
}

type TombstoneRepository interface {
	ListTombstones(ctx context.Context, limit int) ([]domain.BlobTombstone, error)
	DeleteTombstone(ctx context.Context, id string) error
	DeleteTombstonesByRef(ctx context.Context, ref string) error
	MarkTombstoneAttempt(ctx context.Context, id string) error
}
