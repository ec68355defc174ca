package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type InventoryRecord struct {
	ID        string
	OwnerID   string
	Name      string
	Quantity  int
	Price     decimal.Decimal
	Photo     string // blob URL, empty when the record has no photo
	Version   int    // optimistic locking
	CreatedAt time.Time
	UpdatedAt time.Time
}

// OwnedBy reports whether accountID owns the record.
func (r InventoryRecord) OwnedBy(accountID string) bool {
	return accountID != "" && r.OwnerID == accountID
}

func (r InventoryRecord) HasPhoto() bool {
	return r.Photo != ""
}

// LineTotal is price times quantity.
func (r InventoryRecord) LineTotal() decimal.Decimal {
	return r.Price.Mul(decimal.NewFromInt(int64(r.Quantity)))
}

type EventType string

const (
	EventCreated EventType = "created"
	EventUpdated EventType = "updated"
	EventDeleted EventType = "deleted"
)

// InventoryEvent is published on the owner's change feed after every write.
type InventoryEvent struct {
	Type     EventType `json:"type"`
	RecordID string    `json:"record_id"`
	OwnerID  string    `json:"owner_id"`
	At       time.Time `json:"at"`
}

// BlobTombstone marks a photo that must be removed from blob storage.
type BlobTombstone struct {
	ID        string
	Ref       string
	Attempts  int
	CreatedAt time.Time
}

// PhotoUpload is a photo attached to a create or update form.
type PhotoUpload struct {
	Filename    string
	ContentType string
	Data        []byte
}
