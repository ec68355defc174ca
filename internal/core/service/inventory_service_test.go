package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/easy-inventory/internal/core/domain"
	"github.com/rl1809/easy-inventory/internal/port"
	"github.com/rl1809/easy-inventory/internal/port/porttest"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

type inventoryFixture struct {
	db    *porttest.Database
	blobs *porttest.Blobs
	cache *porttest.Cache
	svc   *InventoryService
}

func newInventoryFixture(t *testing.T) *inventoryFixture {
	t.Helper()
	f := &inventoryFixture{
		db:    porttest.NewDatabase(),
		blobs: porttest.NewBlobs(),
		cache: porttest.NewCache(),
	}
	f.svc = NewInventoryService(f.db, f.blobs, f.cache, f.cache, 1<<20, 10)
	return f
}

func validForm() domain.RecordForm {
	return domain.RecordForm{Name: "Widget", Quantity: "3", Price: "2.50"}
}

func photo() *domain.PhotoUpload {
	return &domain.PhotoUpload{Filename: "widget.png", Data: pngHeader}
}

func drain(queue <-chan string) []string {
	var refs []string
	for {
		select {
		case ref := <-queue:
			refs = append(refs, ref)
		default:
			return refs
		}
	}
}

func TestCreate_EmptyQuantityMakesNoCalls(t *testing.T) {
	f := newInventoryFixture(t)

	_, err := f.svc.Create(context.Background(), "owner-1",
		domain.RecordForm{Name: "Widget", Quantity: "", Price: "1"}, photo(), "")

	require.ErrorIs(t, err, domain.ErrMissingFields)
	assert.Equal(t, "please fill all required fields", err.Error())
	assert.Zero(t, f.db.CallCount())
	assert.Zero(t, f.blobs.CallCount())
}

func TestCreate_InvalidNumbers(t *testing.T) {
	f := newInventoryFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, "owner-1", domain.RecordForm{Name: "a", Quantity: "x", Price: "1"}, nil, "")
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)

	_, err = f.svc.Create(ctx, "owner-1", domain.RecordForm{Name: "a", Quantity: "1", Price: "abc"}, nil, "")
	assert.ErrorIs(t, err, domain.ErrInvalidPrice)

	assert.Zero(t, f.db.CallCount())
}

func TestCreate_WithPhoto(t *testing.T) {
	f := newInventoryFixture(t)

	record, err := f.svc.Create(context.Background(), "owner-1", validForm(), photo(), "")
	require.NoError(t, err)

	assert.NotEmpty(t, record.ID)
	assert.Equal(t, 1, record.Version)
	assert.Equal(t, "7.50", record.LineTotal().StringFixed(2))
	assert.Contains(t, record.Photo, "images/")
	assert.True(t, f.blobs.Has(record.Photo))
	require.Len(t, f.cache.Events(), 1)
	assert.Equal(t, domain.EventCreated, f.cache.Events()[0].Type)
}

func TestCreate_RejectsNonImage(t *testing.T) {
	f := newInventoryFixture(t)

	_, err := f.svc.Create(context.Background(), "owner-1", validForm(),
		&domain.PhotoUpload{Filename: "notes.txt", Data: []byte("hello")}, "")
	assert.ErrorIs(t, err, ErrInvalidPhoto)
	assert.Zero(t, f.blobs.CallCount())
}

func TestCreate_DiscardsUploadWhenInsertFails(t *testing.T) {
	f := newInventoryFixture(t)
	f.db.FailCreateRecord = errors.New("disk full")

	_, err := f.svc.Create(context.Background(), "owner-1", validForm(), photo(), "")
	require.Error(t, err)

	assert.Equal(t, 1, f.blobs.Puts)
	assert.Zero(t, f.blobs.Count())
	assert.Empty(t, f.cache.Events())
}

func TestCreate_DuplicateIdempotencyKey(t *testing.T) {
	f := newInventoryFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, "owner-1", validForm(), nil, "key-1")
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, "owner-1", validForm(), nil, "key-1")
	assert.ErrorIs(t, err, ErrDuplicateRequest)

	// Same key, different owner.
	_, err = f.svc.Create(ctx, "owner-2", validForm(), nil, "key-1")
	assert.NoError(t, err)

	assert.Equal(t, 2, f.db.RecordCount())
}

func TestCreate_FailedInsertFreesIdempotencyKey(t *testing.T) {
	f := newInventoryFixture(t)
	ctx := context.Background()

	f.db.FailCreateRecord = errors.New("connection reset")
	_, err := f.svc.Create(ctx, "owner-1", validForm(), nil, "retry-key")
	require.Error(t, err)
	assert.False(t, f.cache.HasIdempotencyKey("inventory:create:owner-1:retry-key"))

	f.db.FailCreateRecord = nil
	record, err := f.svc.Create(ctx, "owner-1", validForm(), nil, "retry-key")
	require.NoError(t, err)
	assert.NotEmpty(t, record.ID)
	assert.True(t, f.cache.HasIdempotencyKey("inventory:create:owner-1:retry-key"))

	_, err = f.svc.Create(ctx, "owner-1", validForm(), nil, "retry-key")
	assert.ErrorIs(t, err, ErrDuplicateRequest)
	assert.Equal(t, 1, f.db.RecordCount())
}

func TestCreate_FailedUploadFreesIdempotencyKey(t *testing.T) {
	f := newInventoryFixture(t)
	ctx := context.Background()

	f.blobs.FailPut = errors.New("bucket unavailable")
	_, err := f.svc.Create(ctx, "owner-1", validForm(), photo(), "upload-key")
	require.Error(t, err)

	f.blobs.FailPut = nil
	_, err = f.svc.Create(ctx, "owner-1", validForm(), photo(), "upload-key")
	assert.NoError(t, err)
}

func TestOwnerIsolation(t *testing.T) {
	f := newInventoryFixture(t)
	ctx := context.Background()

	record, err := f.svc.Create(ctx, "owner-1", validForm(), nil, "")
	require.NoError(t, err)

	_, err = f.svc.Get(ctx, "owner-2", record.ID)
	assert.ErrorIs(t, err, ErrRecordNotFound)

	_, err = f.svc.Update(ctx, "owner-2", record.ID, validForm(), nil, 0)
	assert.ErrorIs(t, err, ErrRecordNotFound)

	err = f.svc.Delete(ctx, "owner-2", record.ID)
	assert.ErrorIs(t, err, ErrRecordNotFound)

	list, err := f.svc.List(ctx, "owner-2", domain.ListQuery{})
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = f.svc.Get(ctx, "", record.ID)
	assert.ErrorIs(t, err, ErrRecordNotFound)

	assert.Equal(t, 1, f.db.RecordCount())
}

func TestList_FiltersAndSorts(t *testing.T) {
	f := newInventoryFixture(t)
	ctx := context.Background()

	for _, form := range []domain.RecordForm{
		{Name: "Blue Pen", Quantity: "10", Price: "1.00"},
		{Name: "red pen", Quantity: "2", Price: "1.50"},
		{Name: "Stapler", Quantity: "1", Price: "9.99"},
	} {
		_, err := f.svc.Create(ctx, "owner-1", form, nil, "")
		require.NoError(t, err)
	}

	list, err := f.svc.List(ctx, "owner-1", domain.ListQuery{Search: "PEN", SortBy: domain.SortByQuantity, Order: domain.Descending})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Blue Pen", list[0].Name)
	assert.Equal(t, "red pen", list[1].Name)
}

func TestUpdate_ReplacesPhotoAndTombstonesOld(t *testing.T) {
	f := newInventoryFixture(t)
	ctx := context.Background()

	record, err := f.svc.Create(ctx, "owner-1", validForm(), photo(), "")
	require.NoError(t, err)
	oldPhoto := record.Photo

	updated, err := f.svc.Update(ctx, "owner-1", record.ID,
		domain.RecordForm{Name: "Gadget", Quantity: "4", Price: "3"}, photo(), record.Version)
	require.NoError(t, err)

	assert.Equal(t, "Gadget", updated.Name)
	assert.Equal(t, 2, updated.Version)
	assert.NotEqual(t, oldPhoto, updated.Photo)

	tombstones := f.db.Tombstones()
	require.Len(t, tombstones, 1)
	assert.Equal(t, oldPhoto, tombstones[0].Ref)
	assert.Equal(t, []string{oldPhoto}, drain(f.svc.GetCleanupQueue()))
}

func TestUpdate_KeepsPhotoWhenNoneUploaded(t *testing.T) {
	f := newInventoryFixture(t)
	ctx := context.Background()

	record, err := f.svc.Create(ctx, "owner-1", validForm(), photo(), "")
	require.NoError(t, err)

	updated, err := f.svc.Update(ctx, "owner-1", record.ID, validForm(), nil, 0)
	require.NoError(t, err)
	assert.Equal(t, record.Photo, updated.Photo)
	assert.Empty(t, f.db.Tombstones())
}

func TestUpdate_StaleVersion(t *testing.T) {
	f := newInventoryFixture(t)
	ctx := context.Background()

	record, err := f.svc.Create(ctx, "owner-1", validForm(), nil, "")
	require.NoError(t, err)
	_, err = f.svc.Update(ctx, "owner-1", record.ID, validForm(), nil, record.Version)
	require.NoError(t, err)

	_, err = f.svc.Update(ctx, "owner-1", record.ID, validForm(), photo(), record.Version)
	assert.ErrorIs(t, err, ErrConflict)
	assert.Zero(t, f.blobs.Puts)
}

func TestUpdate_ConcurrentWriteDiscardsUpload(t *testing.T) {
	f := newInventoryFixture(t)
	ctx := context.Background()

	record, err := f.svc.Create(ctx, "owner-1", validForm(), nil, "")
	require.NoError(t, err)

	f.db.FailReplaceRecord = port.ErrOptimisticLock
	_, err = f.svc.Update(ctx, "owner-1", record.ID, validForm(), photo(), 0)
	assert.ErrorIs(t, err, ErrConflict)
	assert.Zero(t, f.blobs.Count())
}

func TestDelete_TombstonesPhotoAndEnqueues(t *testing.T) {
	f := newInventoryFixture(t)
	ctx := context.Background()

	record, err := f.svc.Create(ctx, "owner-1", validForm(), photo(), "")
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, "owner-1", record.ID))

	assert.Zero(t, f.db.RecordCount())
	// The blob itself is still there until a worker runs.
	assert.True(t, f.blobs.Has(record.Photo))
	require.Len(t, f.db.Tombstones(), 1)
	assert.Equal(t, []string{record.Photo}, drain(f.svc.GetCleanupQueue()))

	events := f.cache.Events()
	assert.Equal(t, domain.EventDeleted, events[len(events)-1].Type)

	err = f.svc.Delete(ctx, "owner-1", record.ID)
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestDelete_FailureKeepsBlob(t *testing.T) {
	f := newInventoryFixture(t)
	ctx := context.Background()

	record, err := f.svc.Create(ctx, "owner-1", validForm(), photo(), "")
	require.NoError(t, err)

	f.db.FailDeleteRecord = errors.New("connection reset")
	require.Error(t, f.svc.Delete(ctx, "owner-1", record.ID))

	assert.True(t, f.blobs.Has(record.Photo))
	assert.Empty(t, f.db.Tombstones())
	assert.Empty(t, drain(f.svc.GetCleanupQueue()))
}

func TestDelete_ConcurrentPhotoReplaceConflicts(t *testing.T) {
	f := newInventoryFixture(t)
	ctx := context.Background()

	record, err := f.svc.Create(ctx, "owner-1", validForm(), photo(), "")
	require.NoError(t, err)

	var replaced domain.InventoryRecord
	f.db.BeforeDeleteRecord = func() {
		// An edit swaps the photo after Delete has read the record.
		replaced, err = f.svc.Update(ctx, "owner-1", record.ID, validForm(), photo(), record.Version)
		require.NoError(t, err)
	}

	err = f.svc.Delete(ctx, "owner-1", record.ID)
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, 1, f.db.RecordCount())

	// Only the photo the edit replaced is tombstoned; the new one stays referenced.
	tombstones := f.db.Tombstones()
	require.Len(t, tombstones, 1)
	assert.Equal(t, record.Photo, tombstones[0].Ref)

	got, err := f.svc.Get(ctx, "owner-1", record.ID)
	require.NoError(t, err)
	assert.Equal(t, replaced.Photo, got.Photo)
	assert.True(t, f.blobs.Has(got.Photo))

	// A retry with the fresh version tombstones the new photo.
	require.NoError(t, f.svc.Delete(ctx, "owner-1", record.ID))
	refs := []string{}
	for _, ts := range f.db.Tombstones() {
		refs = append(refs, ts.Ref)
	}
	assert.ElementsMatch(t, []string{record.Photo, replaced.Photo}, refs)
}

func TestDelete_AfterCloseLeavesTombstone(t *testing.T) {
	f := newInventoryFixture(t)
	ctx := context.Background()

	record, err := f.svc.Create(ctx, "owner-1", validForm(), photo(), "")
	require.NoError(t, err)

	f.svc.Close()
	f.svc.Close()

	assert.NotPanics(t, func() {
		require.NoError(t, f.svc.Delete(ctx, "owner-1", record.ID))
	})
	require.Len(t, f.db.Tombstones(), 1)
	assert.Equal(t, record.Photo, f.db.Tombstones()[0].Ref)
}

func TestDelete_FullQueueLeavesTombstone(t *testing.T) {
	db := porttest.NewDatabase()
	blobs := porttest.NewBlobs()
	cache := porttest.NewCache()
	svc := NewInventoryService(db, blobs, cache, cache, 1<<20, 0)
	ctx := context.Background()

	record, err := svc.Create(ctx, "owner-1", validForm(), photo(), "")
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, "owner-1", record.ID))

	require.Len(t, db.Tombstones(), 1)
}

func TestSubscribe_ReceivesOwnEvents(t *testing.T) {
	f := newInventoryFixture(t)
	ctx := context.Background()

	events, closeFeed, err := f.svc.Subscribe(ctx, "owner-1")
	require.NoError(t, err)
	defer closeFeed()

	_, err = f.svc.Create(ctx, "owner-2", validForm(), nil, "")
	require.NoError(t, err)
	record, err := f.svc.Create(ctx, "owner-1", validForm(), nil, "")
	require.NoError(t, err)

	event := <-events
	assert.Equal(t, domain.EventCreated, event.Type)
	assert.Equal(t, record.ID, event.RecordID)
}
