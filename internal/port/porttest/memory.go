// Package porttest provides in-memory implementations of the port interfaces
// for service and handler tests.
package porttest

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/easy-inventory/internal/core/domain"
	"github.com/rl1809/easy-inventory/internal/port"
)

// Database implements AccountRepository, InventoryRepository and
// TombstoneRepository. Set the Fail* fields to inject errors.
type Database struct {
	mu         sync.Mutex
	accounts   map[string]domain.Account
	records    map[string]domain.InventoryRecord
	tombstones map[string]domain.BlobTombstone

	FailCreateRecord  error
	FailReplaceRecord error
	FailDeleteRecord  error

	// BeforeCreateAccount runs once, ahead of the next CreateAccount, to
	// model a competing writer landing between the checks and the insert.
	BeforeCreateAccount func()
	// BeforeDeleteRecord runs once, ahead of the next DeleteRecord.
	BeforeDeleteRecord func()

	Calls int
}

func NewDatabase() *Database {
	return &Database{
		accounts:   make(map[string]domain.Account),
		records:    make(map[string]domain.InventoryRecord),
		tombstones: make(map[string]domain.BlobTombstone),
	}
}

func (d *Database) CreateAccount(ctx context.Context, a domain.Account) error {
	d.mu.Lock()
	hook := d.BeforeCreateAccount
	d.BeforeCreateAccount = nil
	d.mu.Unlock()
	if hook != nil {
		hook()
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.Calls++
	for _, existing := range d.accounts {
		if existing.Username == a.Username || existing.Email == a.Email {
			return port.ErrDuplicate
		}
	}
	d.accounts[a.ID] = a
	return nil
}

func (d *Database) GetAccount(ctx context.Context, id string) (domain.Account, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Calls++
	a, ok := d.accounts[id]
	if !ok {
		return domain.Account{}, port.ErrNotFound
	}
	return a, nil
}

func (d *Database) GetAccountByUsername(ctx context.Context, username string) (domain.Account, error) {
	return d.findAccount(func(a domain.Account) bool { return a.Username == username })
}

func (d *Database) GetAccountByEmail(ctx context.Context, email string) (domain.Account, error) {
	return d.findAccount(func(a domain.Account) bool { return a.Email == email })
}

func (d *Database) findAccount(match func(domain.Account) bool) (domain.Account, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Calls++
	for _, a := range d.accounts {
		if match(a) {
			return a, nil
		}
	}
	return domain.Account{}, port.ErrNotFound
}

func (d *Database) UsernameExists(ctx context.Context, username string) (bool, error) {
	_, err := d.GetAccountByUsername(ctx, username)
	return err == nil, nil
}

func (d *Database) EmailExists(ctx context.Context, email string) (bool, error) {
	_, err := d.GetAccountByEmail(ctx, email)
	return err == nil, nil
}

func (d *Database) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Calls++
	a, ok := d.accounts[id]
	if !ok {
		return port.ErrNotFound
	}
	a.PasswordHash = passwordHash
	d.accounts[id] = a
	return nil
}

func (d *Database) CreateRecord(ctx context.Context, r domain.InventoryRecord) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Calls++
	if d.FailCreateRecord != nil {
		return d.FailCreateRecord
	}
	if _, ok := d.records[r.ID]; ok {
		return port.ErrDuplicate
	}
	d.records[r.ID] = r
	return nil
}

func (d *Database) GetRecord(ctx context.Context, id string) (domain.InventoryRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Calls++
	r, ok := d.records[id]
	if !ok {
		return domain.InventoryRecord{}, port.ErrNotFound
	}
	return r, nil
}

func (d *Database) ListRecordsByOwner(ctx context.Context, ownerID string) ([]domain.InventoryRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Calls++
	var out []domain.InventoryRecord
	for _, r := range d.records {
		if r.OwnerID == ownerID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (d *Database) ReplaceRecord(ctx context.Context, r domain.InventoryRecord, staleBlob string) (domain.InventoryRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Calls++
	if d.FailReplaceRecord != nil {
		return domain.InventoryRecord{}, d.FailReplaceRecord
	}
	current, ok := d.records[r.ID]
	if !ok || current.OwnerID != r.OwnerID {
		return domain.InventoryRecord{}, port.ErrNotFound
	}
	if current.Version != r.Version {
		return domain.InventoryRecord{}, port.ErrOptimisticLock
	}
	r.Version++
	d.records[r.ID] = r
	if staleBlob != "" {
		d.addTombstone(staleBlob)
	}
	return r, nil
}

func (d *Database) DeleteRecord(ctx context.Context, r domain.InventoryRecord) error {
	d.mu.Lock()
	hook := d.BeforeDeleteRecord
	d.BeforeDeleteRecord = nil
	d.mu.Unlock()
	if hook != nil {
		hook()
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.Calls++
	if d.FailDeleteRecord != nil {
		return d.FailDeleteRecord
	}
	current, ok := d.records[r.ID]
	if !ok || current.OwnerID != r.OwnerID {
		return port.ErrNotFound
	}
	if current.Version != r.Version {
		return port.ErrOptimisticLock
	}
	delete(d.records, r.ID)
	if r.HasPhoto() {
		d.addTombstone(r.Photo)
	}
	return nil
}

func (d *Database) addTombstone(ref string) {
	id := uuid.NewString()
	d.tombstones[id] = domain.BlobTombstone{ID: id, Ref: ref, CreatedAt: time.Now()}
}

// AddTombstone inserts a tombstone directly, as a crashed cleanup would leave it.
func (d *Database) AddTombstone(ref string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.addTombstone(ref)
}

// Tombstones returns the pending tombstones ordered by ref.
func (d *Database) Tombstones() []domain.BlobTombstone {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]domain.BlobTombstone, 0, len(d.tombstones))
	for _, t := range d.tombstones {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ref < out[j].Ref })
	return out
}

// RecordCount is the number of stored records across all owners.
func (d *Database) RecordCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.records)
}

// CallCount is the number of repository calls made so far.
func (d *Database) CallCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Calls
}

func (d *Database) ListTombstones(ctx context.Context, limit int) ([]domain.BlobTombstone, error) {
	all := d.Tombstones()
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (d *Database) DeleteTombstone(ctx context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.tombstones, id)
	return nil
}

func (d *Database) DeleteTombstonesByRef(ctx context.Context, ref string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, t := range d.tombstones {
		if t.Ref == ref {
			delete(d.tombstones, id)
		}
	}
	return nil
}

func (d *Database) MarkTombstoneAttempt(ctx context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.tombstones[id]; ok {
		t.Attempts++
		d.tombstones[id] = t
	}
	return nil
}

// Cache implements CacheRepository, SessionStore and ChangeFeed.
type Cache struct {
	mu          sync.Mutex
	keys        map[string]bool
	reserved    map[string]string
	revoked     map[string]bool
	resetTokens map[string]string
	subscribers map[string][]chan domain.InventoryEvent

	Published []domain.InventoryEvent
}

func NewCache() *Cache {
	return &Cache{
		keys:        make(map[string]bool),
		reserved:    make(map[string]string),
		revoked:     make(map[string]bool),
		resetTokens: make(map[string]string),
		subscribers: make(map[string][]chan domain.InventoryEvent),
	}
}

func (c *Cache) SetIdempotency(ctx context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.keys[key] {
		return false, nil
	}
	c.keys[key] = true
	return true, nil
}

func (c *Cache) ReleaseIdempotency(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.keys, key)
	return nil
}

func (c *Cache) ReserveUsername(ctx context.Context, username string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, held := c.reserved[username]; held {
		return "", false, nil
	}
	token := uuid.NewString()
	c.reserved[username] = token
	return token, true, nil
}

// ReleaseUsername drops the reservation only while token still holds it.
func (c *Cache) ReleaseUsername(ctx context.Context, username, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reserved[username] == token {
		delete(c.reserved, username)
	}
	return nil
}

// ExpireReservation drops a reservation as its TTL would.
func (c *Cache) ExpireReservation(username string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.reserved, username)
}

// Reserved reports whether username is currently reserved.
func (c *Cache) Reserved(username string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, held := c.reserved[username]
	return held
}

// HasIdempotencyKey reports whether key is set.
func (c *Cache) HasIdempotencyKey(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.keys[key]
}

func (c *Cache) RevokeSession(ctx context.Context, tokenID string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.revoked[tokenID] = true
	return nil
}

func (c *Cache) IsSessionRevoked(ctx context.Context, tokenID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.revoked[tokenID], nil
}

func (c *Cache) StoreResetToken(ctx context.Context, token, accountID string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetTokens[token] = accountID
	return nil
}

func (c *Cache) ConsumeResetToken(ctx context.Context, token string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.resetTokens[token]
	delete(c.resetTokens, token)
	return id, ok, nil
}

func (c *Cache) PublishChange(ctx context.Context, event domain.InventoryEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Published = append(c.Published, event)
	for _, ch := range c.subscribers[event.OwnerID] {
		select {
		case ch <- event:
		default:
		}
	}
	return nil
}

func (c *Cache) SubscribeChanges(ctx context.Context, ownerID string) (<-chan domain.InventoryEvent, func() error, error) {
	ch := make(chan domain.InventoryEvent, 16)
	c.mu.Lock()
	c.subscribers[ownerID] = append(c.subscribers[ownerID], ch)
	c.mu.Unlock()

	var once sync.Once
	closeFn := func() error {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			subs := c.subscribers[ownerID]
			for i, s := range subs {
				if s == ch {
					c.subscribers[ownerID] = append(subs[:i], subs[i+1:]...)
					break
				}
			}
			close(ch)
		})
		return nil
	}
	return ch, closeFn, nil
}

// Events returns a copy of the published events.
func (c *Cache) Events() []domain.InventoryEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.InventoryEvent(nil), c.Published...)
}

// Blobs implements BlobStore. References are "mem://" + key.
type Blobs struct {
	mu    sync.Mutex
	data  map[string][]byte
	types map[string]string

	FailPut    error
	FailDelete error
	Puts       int
	Deletes    int
}

const blobScheme = "mem://"

func NewBlobs() *Blobs {
	return &Blobs{data: make(map[string][]byte), types: make(map[string]string)}
}

func (b *Blobs) PutBlob(ctx context.Context, key, contentType string, data []byte) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Puts++
	if b.FailPut != nil {
		return "", b.FailPut
	}
	b.data[key] = append([]byte(nil), data...)
	b.types[key] = contentType
	return blobScheme + key, nil
}

func (b *Blobs) DeleteBlob(ctx context.Context, ref string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Deletes++
	if b.FailDelete != nil {
		return b.FailDelete
	}
	delete(b.data, strings.TrimPrefix(ref, blobScheme))
	return nil
}

func (b *Blobs) OpenBlob(ctx context.Context, key string) (io.ReadCloser, string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.data[key]
	if !ok {
		return nil, "", port.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), b.types[key], nil
}

// Has reports whether the blob behind ref is stored.
func (b *Blobs) Has(ref string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.data[strings.TrimPrefix(ref, blobScheme)]
	return ok
}

// Count is the number of stored blobs.
func (b *Blobs) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// CallCount is the number of put and delete calls.
func (b *Blobs) CallCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Puts + b.Deletes
}

// Mailer records reset tokens instead of sending them.
type Mailer struct {
	mu     sync.Mutex
	tokens map[string]string
	Fail   error
}

func NewMailer() *Mailer {
	return &Mailer{tokens: make(map[string]string)}
}

func (m *Mailer) SendPasswordReset(ctx context.Context, account domain.Account, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return m.Fail
	}
	m.tokens[account.Email] = token
	return nil
}

// TokenFor returns the last reset token sent to email.
func (m *Mailer) TokenFor(email string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokens[email]
}

// Renderer writes a short text form of the report.
type Renderer struct {
	mu       sync.Mutex
	Rendered []domain.Report
}

func (r *Renderer) Render(w io.Writer, report domain.Report) error {
	r.mu.Lock()
	r.Rendered = append(r.Rendered, report)
	r.mu.Unlock()
	_, err := io.WriteString(w, "%PDF-fake "+report.GeneratedBy)
	return err
}
