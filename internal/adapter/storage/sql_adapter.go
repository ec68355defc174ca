package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/easy-inventory/internal/core/domain"
	"github.com/rl1809/easy-inventory/internal/port"
)

// SQLAdapter stores accounts, inventory records and blob tombstones in MySQL,
// SQLite or Postgres.
type SQLAdapter struct {
	db      *sql.DB
	dialect Dialect
}

func NewSQLAdapter(db *sql.DB, dialect Dialect) *SQLAdapter {
	return &SQLAdapter{db: db, dialect: dialect}
}

func (m *SQLAdapter) q(query string) string {
	return m.dialect.rebind(query)
}

const accountColumns = `id, username, email, password_hash, created_at, updated_at`

func (m *SQLAdapter) CreateAccount(ctx context.Context, a domain.Account) error {
	_, err := m.db.ExecContext(ctx, m.q(`
		INSERT INTO accounts (`+accountColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)`),
		a.ID, a.Username, a.Email, a.PasswordHash, a.CreatedAt.UTC(), a.UpdatedAt.UTC(),
	)
	if err != nil {
		if m.dialect.isDuplicate(err) {
			return port.ErrDuplicate
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (m *SQLAdapter) GetAccount(ctx context.Context, id string) (domain.Account, error) {
	return m.getAccount(ctx, "id", id)
}

func (m *SQLAdapter) GetAccountByUsername(ctx context.Context, username string) (domain.Account, error) {
	return m.getAccount(ctx, "username", username)
}

func (m *SQLAdapter) GetAccountByEmail(ctx context.Context, email string) (domain.Account, error) {
	return m.getAccount(ctx, "email", email)
}

func (m *SQLAdapter) getAccount(ctx context.Context, column, value string) (domain.Account, error) {
	var a domain.Account
	err := m.db.QueryRowContext(ctx, m.q(`
		SELECT `+accountColumns+`
		FROM accounts WHERE `+column+` = ?`), value,
	).Scan(&a.ID, &a.Username, &a.Email, &a.PasswordHash, &a.CreatedAt, &a.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return domain.Account{}, port.ErrNotFound
	}
	if err != nil {
		return domain.Account{}, fmt.Errorf("query account: %w", err)
	}
	return a, nil
}

func (m *SQLAdapter) UsernameExists(ctx context.Context, username string) (bool, error) {
	return m.exists(ctx, `SELECT COUNT(*) FROM accounts WHERE username = ?`, username)
}

func (m *SQLAdapter) EmailExists(ctx context.Context, email string) (bool, error) {
	return m.exists(ctx, `SELECT COUNT(*) FROM accounts WHERE email = ?`, email)
}

func (m *SQLAdapter) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var count int
	if err := m.db.QueryRowContext(ctx, m.q(query), args...).Scan(&count); err != nil {
		return false, fmt.Errorf("count: %w", err)
	}
	return count > 0, nil
}

func (m *SQLAdapter) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	result, err := m.db.ExecContext(ctx, m.q(`
		UPDATE accounts SET password_hash = ?, updated_at = ? WHERE id = ?`),
		passwordHash, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return port.ErrNotFound
	}
	return nil
}

const recordColumns = `id, owner_id, name, quantity, price, photo, version, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (domain.InventoryRecord, error) {
	var r domain.InventoryRecord
	err := row.Scan(&r.ID, &r.OwnerID, &r.Name, &r.Quantity, &r.Price, &r.Photo, &r.Version, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}

func (m *SQLAdapter) CreateRecord(ctx context.Context, r domain.InventoryRecord) error {
	_, err := m.db.ExecContext(ctx, m.q(`
		INSERT INTO inventory_records (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		r.ID, r.OwnerID, r.Name, r.Quantity, r.Price.StringFixed(2), r.Photo, r.Version,
		r.CreatedAt.UTC(), r.UpdatedAt.UTC(),
	)
	if err != nil {
		if m.dialect.isDuplicate(err) {
			return port.ErrDuplicate
		}
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

func (m *SQLAdapter) GetRecord(ctx context.Context, id string) (domain.InventoryRecord, error) {
	r, err := scanRecord(m.db.QueryRowContext(ctx, m.q(`
		SELECT `+recordColumns+` FROM inventory_records WHERE id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.InventoryRecord{}, port.ErrNotFound
	}
	if err != nil {
		return domain.InventoryRecord{}, fmt.Errorf("query record: %w", err)
	}
	return r, nil
}

func (m *SQLAdapter) ListRecordsByOwner(ctx context.Context, ownerID string) ([]domain.InventoryRecord, error) {
	rows, err := m.db.QueryContext(ctx, m.q(`
		SELECT `+recordColumns+` FROM inventory_records
		WHERE owner_id = ? ORDER BY created_at, id`), ownerID)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var records []domain.InventoryRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

func (m *SQLAdapter) ReplaceRecord(ctx context.Context, r domain.InventoryRecord, staleBlob string) (domain.InventoryRecord, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.InventoryRecord{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, m.q(`
		UPDATE inventory_records
		SET name = ?, quantity = ?, price = ?, photo = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND owner_id = ? AND version = ?`),
		r.Name, r.Quantity, r.Price.StringFixed(2), r.Photo, r.UpdatedAt.UTC(),
		r.ID, r.OwnerID, r.Version,
	)
	if err != nil {
		return domain.InventoryRecord{}, fmt.Errorf("update record: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		exists, err := m.recordExists(ctx, tx, r.ID)
		if err != nil {
			return domain.InventoryRecord{}, err
		}
		if !exists {
			return domain.InventoryRecord{}, port.ErrNotFound
		}
		return domain.InventoryRecord{}, port.ErrOptimisticLock
	}

	if staleBlob != "" {
		if err := m.insertTombstone(ctx, tx, staleBlob); err != nil {
			return domain.InventoryRecord{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.InventoryRecord{}, fmt.Errorf("commit: %w", err)
	}

	r.Version++
	return r, nil
}

func (m *SQLAdapter) DeleteRecord(ctx context.Context, r domain.InventoryRecord) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// The version pins the photo read by the caller: a concurrent update with
	// a new photo makes this delete fail instead of orphaning the new blob.
	result, err := tx.ExecContext(ctx, m.q(`
		DELETE FROM inventory_records WHERE id = ? AND owner_id = ? AND version = ?`),
		r.ID, r.OwnerID, r.Version,
	)
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		exists, err := m.recordExists(ctx, tx, r.ID)
		if err != nil {
			return err
		}
		if !exists {
			return port.ErrNotFound
		}
		return port.ErrOptimisticLock
	}

	if r.HasPhoto() {
		if err := m.insertTombstone(ctx, tx, r.Photo); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (m *SQLAdapter) recordExists(ctx context.Context, tx *sql.Tx, id string) (bool, error) {
	var count int
	err := tx.QueryRowContext(ctx, m.q(`SELECT COUNT(*) FROM inventory_records WHERE id = ?`), id).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("count record: %w", err)
	}
	return count > 0, nil
}

func (m *SQLAdapter) insertTombstone(ctx context.Context, tx *sql.Tx, ref string) error {
	_, err := tx.ExecContext(ctx, m.q(`
		INSERT INTO blob_tombstones (id, ref, attempts, created_at) VALUES (?, ?, 0, ?)`),
		uuid.NewString(), ref, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert tombstone: %w", err)
	}
	return nil
}

func (m *SQLAdapter) ListTombstones(ctx context.Context, limit int) ([]domain.BlobTombstone, error) {
	rows, err := m.db.QueryContext(ctx, m.q(`
		SELECT id, ref, attempts, created_at FROM blob_tombstones
		ORDER BY created_at LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("query tombstones: %w", err)
	}
	defer rows.Close()

	var out []domain.BlobTombstone
	for rows.Next() {
		var t domain.BlobTombstone
		if err := rows.Scan(&t.ID, &t.Ref, &t.Attempts, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan tombstone: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (m *SQLAdapter) DeleteTombstone(ctx context.Context, id string) error {
	if _, err := m.db.ExecContext(ctx, m.q(`DELETE FROM blob_tombstones WHERE id = ?`), id); err != nil {
		return fmt.Errorf("delete tombstone: %w", err)
	}
	return nil
}

func (m *SQLAdapter) DeleteTombstonesByRef(ctx context.Context, ref string) error {
	if _, err := m.db.ExecContext(ctx, m.q(`DELETE FROM blob_tombstones WHERE ref = ?`), ref); err != nil {
		return fmt.Errorf("delete tombstones: %w", err)
	}
	return nil
}

func (m *SQLAdapter) MarkTombstoneAttempt(ctx context.Context, id string) error {
	if _, err := m.db.ExecContext(ctx, m.q(`UPDATE blob_tombstones SET attempts = attempts + 1 WHERE id = ?`), id); err != nil {
		return fmt.Errorf("mark tombstone: %w", err)
	}
	return nil
}
