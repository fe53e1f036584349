package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/DevRickLin/feishu-market-bot/internal/biz/domain"
	"github.com/DevRickLin/feishu-market-bot/internal/biz/repo"
)

// listingRepo implements the Listing repository
type listingRepo struct {
	db *sql.DB
}

// NewListingRepo creates a new Listing repository
func NewListingRepo(db *sql.DB) (repo.ListingRepo, error) {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS listings (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			owner_name TEXT NOT NULL DEFAULT '',
			owner_phone TEXT NOT NULL DEFAULT '',
			owner_address TEXT NOT NULL DEFAULT '',
			name TEXT NOT NULL,
			description TEXT NOT NULL,
			price_cents INTEGER NOT NULL,
			category TEXT NOT NULL DEFAULT '',
			subcategory TEXT NOT NULL DEFAULT '',
			image_ref TEXT NOT NULL,
			posted INTEGER NOT NULL DEFAULT 0,
			scheduled_at INTEGER,
			published_message_ref TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			posted_at INTEGER,
			publishing_until INTEGER
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create listings table: %w", err)
	}

	// Databases created before the publishing lease existed
	if err := addColumnIfMissing(db, "listings", "publishing_until", "INTEGER"); err != nil {
		return nil, err
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_listings_owner ON listings(owner_id, created_at)`)
	if err != nil {
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	return &listingRepo{db: db}, nil
}

const listingColumns = `id, owner_id, owner_name, owner_phone, owner_address, name, description,
	price_cents, category, subcategory, image_ref, posted, scheduled_at,
	published_message_ref, created_at, posted_at`

// Create inserts a new listing
func (r *listingRepo) Create(ctx context.Context, l *domain.Listing) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO listings (`+listingColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		l.ID, l.OwnerID, l.OwnerName, l.OwnerPhone, l.OwnerAddress, l.Name, l.Description,
		int64(l.Price), l.Category, l.Subcategory, l.ImageRef, l.Posted, nullableMillis(l.ScheduledAt),
		l.PublishedMessageRef, l.CreatedAt.UnixMilli(), nullableMillis(l.PostedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create listing: %w", err)
	}
	return nil
}

// Get gets a listing by id
func (r *listingRepo) Get(ctx context.Context, id string) (*domain.Listing, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+listingColumns+` FROM listings WHERE id = ?`, id)
	l, err := scanListing(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrListingNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query listing: %w", err)
	}
	return l, nil
}

// Update replaces the stored record. A posted listing keeps its posted flag and message ref.
func (r *listingRepo) Update(ctx context.Context, l *domain.Listing) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE listings SET
			owner_name = ?, owner_phone = ?, owner_address = ?,
			name = ?, description = ?, price_cents = ?,
			category = ?, subcategory = ?, image_ref = ?,
			scheduled_at = ?,
			published_message_ref = CASE WHEN posted = 1 THEN published_message_ref ELSE ? END,
			posted_at = CASE WHEN posted = 1 THEN posted_at ELSE ? END,
			posted = MAX(posted, ?)
		WHERE id = ?
	`,
		l.OwnerName, l.OwnerPhone, l.OwnerAddress,
		l.Name, l.Description, int64(l.Price),
		l.Category, l.Subcategory, l.ImageRef,
		nullableMillis(l.ScheduledAt),
		l.PublishedMessageRef,
		nullableMillis(l.PostedAt),
		l.Posted,
		l.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update listing: %w", err)
	}
	return requireAffected(res, l.ID)
}

// Delete deletes a listing
func (r *listingRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM listings WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete listing: %w", err)
	}
	return requireAffected(res, id)
}

// ListByOwner lists a user's listings, newest first
func (r *listingRepo) ListByOwner(ctx context.Context, ownerID string) ([]*domain.Listing, error) {
	return r.query(ctx, `SELECT `+listingColumns+` FROM listings WHERE owner_id = ? ORDER BY created_at DESC, rowid DESC`, ownerID)
}

// ListAll lists every listing, newest first
func (r *listingRepo) ListAll(ctx context.Context) ([]*domain.Listing, error) {
	return r.query(ctx, `SELECT `+listingColumns+` FROM listings ORDER BY created_at DESC, rowid DESC`)
}

// ListAutoPostCandidates lists unposted, unscheduled listings, oldest first
func (r *listingRepo) ListAutoPostCandidates(ctx context.Context) ([]*domain.Listing, error) {
	return r.query(ctx, `
		SELECT `+listingColumns+` FROM listings
		WHERE posted = 0 AND scheduled_at IS NULL
		ORDER BY created_at ASC, rowid ASC
	`)
}

// ListPendingScheduled lists unposted listings that carry a scheduled time
func (r *listingRepo) ListPendingScheduled(ctx context.Context) ([]*domain.Listing, error) {
	return r.query(ctx, `
		SELECT `+listingColumns+` FROM listings
		WHERE posted = 0 AND scheduled_at IS NOT NULL
		ORDER BY scheduled_at ASC
	`)
}

// ClaimPublish sets the lease only on an unposted listing whose lease is absent or expired
func (r *listingRepo) ClaimPublish(ctx context.Context, id string, now, until time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE listings SET publishing_until = ?
		WHERE id = ? AND posted = 0 AND (publishing_until IS NULL OR publishing_until <= ?)
	`, until.UnixMilli(), id, now.UnixMilli())
	if err != nil {
		return false, fmt.Errorf("failed to claim listing: %w", err)
	}
	return affectedOne(res)
}

// ReleasePublish clears the lease of an unposted listing
func (r *listingRepo) ReleasePublish(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE listings SET publishing_until = NULL WHERE id = ? AND posted = 0`, id)
	if err != nil {
		return fmt.Errorf("failed to release listing: %w", err)
	}
	return nil
}

// MarkPosted sets posted only if it is still false
func (r *listingRepo) MarkPosted(ctx context.Context, id, messageRef string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE listings SET posted = 1, published_message_ref = ?, posted_at = ?, publishing_until = NULL
		WHERE id = ? AND posted = 0
	`, messageRef, at.UnixMilli(), id)
	if err != nil {
		return false, fmt.Errorf("failed to mark listing posted: %w", err)
	}
	return affectedOne(res)
}

func affectedOne(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n == 1, nil
}

func addColumnIfMissing(db *sql.DB, table, column, decl string) error {
	rows, err := db.Query(`SELECT name FROM pragma_table_info(?)`, table)
	if err != nil {
		return fmt.Errorf("failed to inspect %s: %w", table, err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return fmt.Errorf("failed to inspect %s: %w", table, err)
		}
		if name == column {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to inspect %s: %w", table, err)
	}
	rows.Close()

	if _, err := db.Exec(fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s %s`, table, column, decl)); err != nil {
		return fmt.Errorf("failed to add %s.%s: %w", table, column, err)
	}
	return nil
}

func (r *listingRepo) query(ctx context.Context, query string, args ...interface{}) ([]*domain.Listing, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query listings: %w", err)
	}
	defer rows.Close()

	var listings []*domain.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan listing: %w", err)
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanListing(s scanner) (*domain.Listing, error) {
	var l domain.Listing
	var price, createdAt int64
	var scheduledAt, postedAt sql.NullInt64
	err := s.Scan(
		&l.ID, &l.OwnerID, &l.OwnerName, &l.OwnerPhone, &l.OwnerAddress, &l.Name, &l.Description,
		&price, &l.Category, &l.Subcategory, &l.ImageRef, &l.Posted, &scheduledAt,
		&l.PublishedMessageRef, &createdAt, &postedAt,
	)
	if err != nil {
		return nil, err
	}
	l.Price = domain.Price(price)
	l.CreatedAt = time.UnixMilli(createdAt)
	l.ScheduledAt = millisPtr(scheduledAt)
	l.PostedAt = millisPtr(postedAt)
	return &l, nil
}

func requireAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrListingNotFound, id)
	}
	return nil
}

func nullableMillis(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

func millisPtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64)
	return &t
}
