package storage

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/easy-inventory/internal/core/domain"
	"github.com/rl1809/easy-inventory/internal/port"
)

// runRepositorySuite exercises the SQL adapter against any migrated database.
func runRepositorySuite(t *testing.T, adapter *SQLAdapter) {
	t.Run("accounts", func(t *testing.T) { testAccounts(t, adapter) })
	t.Run("records", func(t *testing.T) { testRecords(t, adapter) })
	t.Run("replace", func(t *testing.T) { testReplaceRecord(t, adapter) })
	t.Run("delete", func(t *testing.T) { testDeleteRecord(t, adapter) })
	t.Run("stale delete", func(t *testing.T) { testStaleDeleteRecord(t, adapter) })
	t.Run("bounds", func(t *testing.T) { testRecordBounds(t, adapter) })
	t.Run("tombstones", func(t *testing.T) { testTombstones(t, adapter) })
}

func newAccount() domain.Account {
	suffix := uuid.NewString()[:8]
	now := time.Now().UTC().Truncate(time.Millisecond)
	return domain.Account{
		ID:           uuid.NewString(),
		Username:     "user-" + suffix,
		Email:        "user-" + suffix + "@example.com",
		PasswordHash: "hash",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func newRecord(ownerID, name string) domain.InventoryRecord {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return domain.InventoryRecord{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Name:      name,
		Quantity:  4,
		Price:     decimal.RequireFromString("12.34"),
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func testAccounts(t *testing.T, adapter *SQLAdapter) {
	ctx := context.Background()
	a := newAccount()
	require.NoError(t, adapter.CreateAccount(ctx, a))

	got, err := adapter.GetAccountByUsername(ctx, a.Username)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
	assert.Equal(t, a.Email, got.Email)

	got, err = adapter.GetAccountByEmail(ctx, a.Email)
	require.NoError(t, err)
	assert.Equal(t, a.Username, got.Username)

	exists, err := adapter.UsernameExists(ctx, a.Username)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = adapter.EmailExists(ctx, "nobody-"+uuid.NewString()+"@example.com")
	require.NoError(t, err)
	assert.False(t, exists)

	dup := newAccount()
	dup.Username = a.Username
	assert.ErrorIs(t, adapter.CreateAccount(ctx, dup), port.ErrDuplicate)

	require.NoError(t, adapter.UpdatePassword(ctx, a.ID, "new-hash"))
	got, err = adapter.GetAccount(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "new-hash", got.PasswordHash)

	assert.ErrorIs(t, adapter.UpdatePassword(ctx, uuid.NewString(), "x"), port.ErrNotFound)
	_, err = adapter.GetAccount(ctx, uuid.NewString())
	assert.ErrorIs(t, err, port.ErrNotFound)
}

func testRecords(t *testing.T, adapter *SQLAdapter) {
	ctx := context.Background()
	owner := uuid.NewString()
	other := uuid.NewString()

	first := newRecord(owner, "first")
	second := newRecord(owner, "second")
	second.CreatedAt = first.CreatedAt.Add(time.Second)
	require.NoError(t, adapter.CreateRecord(ctx, first))
	require.NoError(t, adapter.CreateRecord(ctx, second))
	require.NoError(t, adapter.CreateRecord(ctx, newRecord(other, "theirs")))

	got, err := adapter.GetRecord(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "first", got.Name)
	assert.Equal(t, 4, got.Quantity)
	assert.True(t, got.Price.Equal(first.Price), "price %s", got.Price)
	assert.True(t, got.CreatedAt.Equal(first.CreatedAt), "created_at %s", got.CreatedAt)

	list, err := adapter.ListRecordsByOwner(ctx, owner)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)
	assert.Equal(t, second.ID, list[1].ID)

	_, err = adapter.GetRecord(ctx, uuid.NewString())
	assert.ErrorIs(t, err, port.ErrNotFound)
}

func testReplaceRecord(t *testing.T, adapter *SQLAdapter) {
	ctx := context.Background()
	r := newRecord(uuid.NewString(), "before")
	r.Photo = "http://localhost/photos/images/old.png"
	require.NoError(t, adapter.CreateRecord(ctx, r))

	edited := r
	edited.Name = "after"
	edited.Photo = "http://localhost/photos/images/new.png"
	saved, err := adapter.ReplaceRecord(ctx, edited, r.Photo)
	require.NoError(t, err)
	assert.Equal(t, 2, saved.Version)

	got, err := adapter.GetRecord(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "after", got.Name)
	assert.Equal(t, 2, got.Version)
	assert.Equal(t, edited.Photo, got.Photo)
	assert.True(t, hasTombstone(t, adapter, r.Photo))

	// Stale version.
	_, err = adapter.ReplaceRecord(ctx, edited, "")
	assert.ErrorIs(t, err, port.ErrOptimisticLock)

	// Wrong owner looks like a missing row.
	stranger := saved
	stranger.OwnerID = uuid.NewString()
	_, err = adapter.ReplaceRecord(ctx, stranger, "")
	assert.ErrorIs(t, err, port.ErrOptimisticLock)

	missing := newRecord(r.OwnerID, "ghost")
	_, err = adapter.ReplaceRecord(ctx, missing, "")
	assert.ErrorIs(t, err, port.ErrNotFound)
}

func testDeleteRecord(t *testing.T, adapter *SQLAdapter) {
	ctx := context.Background()
	r := newRecord(uuid.NewString(), "doomed")
	r.Photo = "http://localhost/photos/images/" + uuid.NewString() + ".png"
	require.NoError(t, adapter.CreateRecord(ctx, r))

	wrongOwner := r
	wrongOwner.OwnerID = uuid.NewString()
	assert.ErrorIs(t, adapter.DeleteRecord(ctx, wrongOwner), port.ErrNotFound)
	assert.False(t, hasTombstone(t, adapter, r.Photo))

	require.NoError(t, adapter.DeleteRecord(ctx, r))
	_, err := adapter.GetRecord(ctx, r.ID)
	assert.ErrorIs(t, err, port.ErrNotFound)
	assert.True(t, hasTombstone(t, adapter, r.Photo))

	assert.ErrorIs(t, adapter.DeleteRecord(ctx, r), port.ErrNotFound)
}

func testStaleDeleteRecord(t *testing.T, adapter *SQLAdapter) {
	ctx := context.Background()
	r := newRecord(uuid.NewString(), "swapped")
	r.Photo = "http://localhost/photos/images/old-" + uuid.NewString() + ".png"
	require.NoError(t, adapter.CreateRecord(ctx, r))

	edited := r
	edited.Photo = "http://localhost/photos/images/new-" + uuid.NewString() + ".png"
	edited, err := adapter.ReplaceRecord(ctx, edited, r.Photo)
	require.NoError(t, err)

	// r still carries version 1 and the old photo.
	assert.ErrorIs(t, adapter.DeleteRecord(ctx, r), port.ErrOptimisticLock)
	got, err := adapter.GetRecord(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, edited.Photo, got.Photo)
	assert.False(t, hasTombstone(t, adapter, edited.Photo))

	require.NoError(t, adapter.DeleteRecord(ctx, got))
	assert.True(t, hasTombstone(t, adapter, edited.Photo))
}

func testRecordBounds(t *testing.T, adapter *SQLAdapter) {
	ctx := context.Background()
	r := newRecord(uuid.NewString(), "largest")
	r.Quantity = domain.MaxQuantity
	r.Price = domain.MaxPrice
	require.NoError(t, adapter.CreateRecord(ctx, r))

	got, err := adapter.GetRecord(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MaxQuantity, got.Quantity)
	assert.True(t, domain.MaxPrice.Equal(got.Price), "got %s", got.Price)
}

func testTombstones(t *testing.T, adapter *SQLAdapter) {
	ctx := context.Background()
	r := newRecord(uuid.NewString(), "with photo")
	r.Photo = "http://localhost/photos/images/" + uuid.NewString() + ".png"
	require.NoError(t, adapter.CreateRecord(ctx, r))
	require.NoError(t, adapter.DeleteRecord(ctx, r))

	ts := findTombstone(t, adapter, r.Photo)
	require.NotNil(t, ts)

	require.NoError(t, adapter.MarkTombstoneAttempt(ctx, ts.ID))
	ts = findTombstone(t, adapter, r.Photo)
	require.NotNil(t, ts)
	assert.Equal(t, 1, ts.Attempts)

	require.NoError(t, adapter.DeleteTombstone(ctx, ts.ID))
	assert.False(t, hasTombstone(t, adapter, r.Photo))

	r2 := newRecord(uuid.NewString(), "again")
	r2.Photo = "http://localhost/photos/images/" + uuid.NewString() + ".png"
	require.NoError(t, adapter.CreateRecord(ctx, r2))
	require.NoError(t, adapter.DeleteRecord(ctx, r2))
	require.NoError(t, adapter.DeleteTombstonesByRef(ctx, r2.Photo))
	assert.False(t, hasTombstone(t, adapter, r2.Photo))
}

func findTombstone(t *testing.T, adapter *SQLAdapter, ref string) *domain.BlobTombstone {
	t.Helper()
	all, err := adapter.ListTombstones(context.Background(), 10000)
	require.NoError(t, err)
	for i := range all {
		if all[i].Ref == ref {
			return &all[i]
		}
	}
	return nil
}

func hasTombstone(t *testing.T, adapter *SQLAdapter, ref string) bool {
	t.Helper()
	return findTombstone(t, adapter, ref) != nil
}
