package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/easy-inventory/internal/core/domain"
	"github.com/rl1809/easy-inventory/internal/port"
)

var (
	ErrRecordNotFound   = errors.New("item not found or you don't have access to this item")
	ErrConflict         = errors.New("item was changed by another request, reload and try again")
	ErrDuplicateRequest = errors.New("duplicate request")
	ErrInvalidPhoto     = errors.New("photo must be an image")
	ErrPhotoTooLarge    = errors.New("photo is too large")
)

const photoKeyPrefix = "images/"

type InventoryService struct {
	db            port.InventoryRepository
	blobs         port.BlobStore
	cache         port.CacheRepository
	feed          port.ChangeFeed
	maxPhotoBytes int64
	cleanupQueue  chan string
	queueMu       sync.RWMutex
	queueClosed   bool
	now           func() time.Time
}

func NewInventoryService(
	db port.InventoryRepository,
	blobs port.BlobStore,
	cache port.CacheRepository,
	feed port.ChangeFeed,
	maxPhotoBytes int64,
	queueSize int,
) *InventoryService {
	return &InventoryService{
		db:            db,
		blobs:         blobs,
		cache:         cache,
		feed:          feed,
		maxPhotoBytes: maxPhotoBytes,
		cleanupQueue:  make(chan string, queueSize),
		now:           time.Now,
	}
}

func (s *InventoryService) Create(ctx context.Context, ownerID string, form domain.RecordForm, photo *domain.PhotoUpload, idempotencyKey string) (record domain.InventoryRecord, err error) {
	in, err := form.Validate()
	if err != nil {
		return domain.InventoryRecord{}, err
	}
	if err := s.checkPhoto(photo); err != nil {
		return domain.InventoryRecord{}, err
	}

	if idempotencyKey != "" {
		key := fmt.Sprintf("inventory:create:%s:%s", ownerID, idempotencyKey)
		ok, setErr := s.cache.SetIdempotency(ctx, key)
		if setErr != nil {
			return domain.InventoryRecord{}, fmt.Errorf("idempotency check failed: %w", setErr)
		}
		if !ok {
			return domain.InventoryRecord{}, ErrDuplicateRequest
		}
		// A failed create must stay retryable under the same key.
		defer func() {
			if err == nil {
				return
			}
			if relErr := s.cache.ReleaseIdempotency(context.WithoutCancel(ctx), key); relErr != nil {
				log.Printf("inventory: release idempotency key %s: %v", key, relErr)
			}
		}()
	}

	now := s.now().UTC()
	record = domain.InventoryRecord{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Name:      in.Name,
		Quantity:  in.Quantity,
		Price:     in.Price,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if photo != nil {
		record.Photo, err = s.uploadPhoto(ctx, photo)
		if err != nil {
			return domain.InventoryRecord{}, err
		}
	}

	if err := s.db.CreateRecord(ctx, record); err != nil {
		s.discardUpload(ctx, record.Photo)
		return domain.InventoryRecord{}, fmt.Errorf("create record: %w", err)
	}

	s.publish(ctx, domain.EventCreated, record)
	return record, nil
}

// List returns the owner's records filtered and sorted by q.
func (s *InventoryService) List(ctx context.Context, ownerID string, q domain.ListQuery) ([]domain.InventoryRecord, error) {
	records, err := s.db.ListRecordsByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return domain.ApplyListQuery(records, q), nil
}

func (s *InventoryService) Get(ctx context.Context, ownerID, id string) (domain.InventoryRecord, error) {
	return s.owned(ctx, ownerID, id)
}

// Update overwrites the whole record. A zero expectedVersion skips the
// version check against the caller's copy.
func (s *InventoryService) Update(ctx context.Context, ownerID, id string, form domain.RecordForm, photo *domain.PhotoUpload, expectedVersion int) (domain.InventoryRecord, error) {
	in, err := form.Validate()
	if err != nil {
		return domain.InventoryRecord{}, err
	}
	if err := s.checkPhoto(photo); err != nil {
		return domain.InventoryRecord{}, err
	}

	current, err := s.owned(ctx, ownerID, id)
	if err != nil {
		return domain.InventoryRecord{}, err
	}
	if expectedVersion != 0 && expectedVersion != current.Version {
		return domain.InventoryRecord{}, ErrConflict
	}

	updated := current
	updated.Name = in.Name
	updated.Quantity = in.Quantity
	updated.Price = in.Price
	updated.UpdatedAt = s.now().UTC()

	var staleBlob string
	if photo != nil {
		updated.Photo, err = s.uploadPhoto(ctx, photo)
		if err != nil {
			return domain.InventoryRecord{}, err
		}
		staleBlob = current.Photo
	}

	saved, err := s.db.ReplaceRecord(ctx, updated, staleBlob)
	if err != nil {
		if photo != nil {
			s.discardUpload(ctx, updated.Photo)
		}
		if errors.Is(err, port.ErrOptimisticLock) {
			return domain.InventoryRecord{}, ErrConflict
		}
		if errors.Is(err, port.ErrNotFound) {
			return domain.InventoryRecord{}, ErrRecordNotFound
		}
		return domain.InventoryRecord{}, fmt.Errorf("replace record: %w", err)
	}

	if staleBlob != "" {
		s.enqueueCleanup(staleBlob)
	}
	s.publish(ctx, domain.EventUpdated, saved)
	return saved, nil
}

// Delete removes the record. Its photo is tombstoned in the same transaction
// and deleted from blob storage afterwards by the cleanup workers.
func (s *InventoryService) Delete(ctx context.Context, ownerID, id string) error {
	record, err := s.owned(ctx, ownerID, id)
	if err != nil {
		return err
	}

	if err := s.db.DeleteRecord(ctx, record); err != nil {
		if errors.Is(err, port.ErrNotFound) {
			return ErrRecordNotFound
		}
		if errors.Is(err, port.ErrOptimisticLock) {
			return ErrConflict
		}
		return fmt.Errorf("delete record: %w", err)
	}

	if record.HasPhoto() {
		s.enqueueCleanup(record.Photo)
	}
	s.publish(ctx, domain.EventDeleted, record)
	log.Printf("inventory: deleted record %s", record.ID)
	return nil
}

func (s *InventoryService) Subscribe(ctx context.Context, ownerID string) (<-chan domain.InventoryEvent, func() error, error) {
	return s.feed.SubscribeChanges(ctx, ownerID)
}

func (s *InventoryService) GetCleanupQueue() <-chan string {
	return s.cleanupQueue
}

// Close stops the cleanup queue. Photos released afterwards keep their
// tombstones and are left to the sweeper.
func (s *InventoryService) Close() {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	if s.queueClosed {
		return
	}
	s.queueClosed = true
	close(s.cleanupQueue)
}

// owned is the single owner check for reads, updates and deletes.
func (s *InventoryService) owned(ctx context.Context, ownerID, id string) (domain.InventoryRecord, error) {
	if ownerID == "" || id == "" {
		return domain.InventoryRecord{}, ErrRecordNotFound
	}
	record, err := s.db.GetRecord(ctx, id)
	if errors.Is(err, port.ErrNotFound) {
		return domain.InventoryRecord{}, ErrRecordNotFound
	}
	if err != nil {
		return domain.InventoryRecord{}, fmt.Errorf("get record: %w", err)
	}
	if !record.OwnedBy(ownerID) {
		return domain.InventoryRecord{}, ErrRecordNotFound
	}
	return record, nil
}

func (s *InventoryService) checkPhoto(photo *domain.PhotoUpload) error {
	if photo == nil {
		return nil
	}
	if len(photo.Data) == 0 {
		return ErrInvalidPhoto
	}
	if s.maxPhotoBytes > 0 && int64(len(photo.Data)) > s.maxPhotoBytes {
		return ErrPhotoTooLarge
	}
	if !strings.HasPrefix(photoContentType(photo), "image/") {
		return ErrInvalidPhoto
	}
	return nil
}

func (s *InventoryService) uploadPhoto(ctx context.Context, photo *domain.PhotoUpload) (string, error) {
	contentType := photoContentType(photo)
	key := photoKeyPrefix + uuid.NewString() + photoExtension(photo.Filename, contentType)
	ref, err := s.blobs.PutBlob(ctx, key, contentType, photo.Data)
	if err != nil {
		return "", fmt.Errorf("upload photo: %w", err)
	}
	return ref, nil
}

// discardUpload removes a blob uploaded for a write that did not commit.
func (s *InventoryService) discardUpload(ctx context.Context, ref string) {
	if ref == "" {
		return
	}
	if err := s.blobs.DeleteBlob(context.WithoutCancel(ctx), ref); err != nil {
		log.Printf("inventory: discard upload %s: %v", ref, err)
	}
}

// enqueueCleanup nudges the workers. A full queue is fine: the tombstone stays
// in the database and the sweeper picks it up.
func (s *InventoryService) enqueueCleanup(ref string) {
	s.queueMu.RLock()
	defer s.queueMu.RUnlock()
	if s.queueClosed {
		log.Printf("inventory: cleanup queue closed, leaving %s to the sweeper", ref)
		return
	}
	select {
	case s.cleanupQueue <- ref:
	default:
		log.Printf("inventory: cleanup queue full, leaving %s to the sweeper", ref)
	}
}

func (s *InventoryService) publish(ctx context.Context, typ domain.EventType, record domain.InventoryRecord) {
	event := domain.InventoryEvent{
		Type:     typ,
		RecordID: record.ID,
		OwnerID:  record.OwnerID,
		At:       s.now().UTC(),
	}
	if err := s.feed.PublishChange(ctx, event); err != nil {
		log.Printf("inventory: publish %s %s: %v", typ, record.ID, err)
	}
}

func photoContentType(photo *domain.PhotoUpload) string {
	ct := http.DetectContentType(photo.Data)
	if ct == "application/octet-stream" && photo.ContentType != "" {
		return photo.ContentType
	}
	return ct
}

func photoExtension(filename, contentType string) string {
	if ext := strings.ToLower(path.Ext(filename)); ext != "" && len(ext) <= 5 {
		return ext
	}
	switch contentType {
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}
