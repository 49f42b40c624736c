package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Review statuses. Items start pending; a reviewer later accepts (the mask
// was warranted) or rejects (false positive) each one.
const (
	ReviewPending  = "pending"
	ReviewAccepted = "accepted"
	ReviewRejected = "rejected"
)

// ReviewItem is one questionable entity awaiting human review. It stores the
// mask token and entity metadata, never the detected value itself.
type ReviewItem struct {
	ID         string
	ScanID     string
	File       string
	Unit       string
	EntityType string
	MaskToken  string
	Confidence float64
	Method     string
	Status     string
	CreatedAt  time.Time
	ReviewedAt sql.NullTime
}

// EnqueueItem holds the fields for a new review queue entry.
type EnqueueItem struct {
	ScanID     string
	File       string
	Unit       string
	EntityType string
	MaskToken  string
	Confidence float64
	Method     string
}

// EnqueueBatch inserts a batch of questionable entities as pending review
// items in a single transaction.
func (s *Store) EnqueueBatch(ctx context.Context, items []EnqueueItem) error {
	if len(items) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("EnqueueBatch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO review_items (scan_id, file, unit, entity_type, mask_token, confidence, method, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending')`)
	if err != nil {
		return fmt.Errorf("EnqueueBatch: %w", err)
	}
	defer stmt.Close()

	for _, it := range items {
		if _, err := stmt.ExecContext(ctx,
			it.ScanID, it.File, it.Unit, it.EntityType, it.MaskToken, it.Confidence, it.Method,
		); err != nil {
			return fmt.Errorf("EnqueueBatch: insert %s/%s: %w", it.File, it.MaskToken, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("EnqueueBatch: %w", err)
	}
	return nil
}

// ListPending returns pending review items, oldest first, up to limit.
func (s *Store) ListPending(ctx context.Context, limit int) ([]ReviewItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, scan_id, file, unit, entity_type, mask_token, confidence, method, status, created_at, reviewed_at
		FROM review_items WHERE status = 'pending'
		ORDER BY created_at ASC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("ListPending: %w", err)
	}
	defer rows.Close()

	var items []ReviewItem
	for rows.Next() {
		var it ReviewItem
		if err := rows.Scan(&it.ID, &it.ScanID, &it.File, &it.Unit, &it.EntityType, &it.MaskToken,
			&it.Confidence, &it.Method, &it.Status, &it.CreatedAt, &it.ReviewedAt); err != nil {
			return nil, fmt.Errorf("ListPending: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListPending: %w", err)
	}
	return items, nil
}

// SetStatus records a review decision. Only accepted and rejected are valid
// decisions; the returned item is nil if no pending item matched.
func (s *Store) SetStatus(ctx context.Context, id, status string) (*ReviewItem, error) {
	if status != ReviewAccepted && status != ReviewRejected {
		return nil, fmt.Errorf("SetStatus: invalid status %q", status)
	}

	var it ReviewItem
	err := s.db.QueryRowContext(ctx, `
		UPDATE review_items SET status = $2, reviewed_at = now()
		WHERE id = $1 AND status = 'pending'
		RETURNING id, scan_id, file, unit, entity_type, mask_token, confidence, method, status, created_at, reviewed_at`,
		id, status,
	).Scan(&it.ID, &it.ScanID, &it.File, &it.Unit, &it.EntityType, &it.MaskToken,
		&it.Confidence, &it.Method, &it.Status, &it.CreatedAt, &it.ReviewedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("SetStatus: %w", err)
	}
	return &it, nil
}
