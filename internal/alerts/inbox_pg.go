package alerts

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sudo-init-do/agriloop/internal/marketplace"
)

// PGInbox is the Inbox over the notifications table.
type PGInbox struct {
	pool *pgxpool.Pool
}

func NewPGInbox(pool *pgxpool.Pool) *PGInbox {
	return &PGInbox{pool: pool}
}

func (p *PGInbox) Add(ctx context.Context, n marketplace.Notification) error {
	it := newItem(n)
	meta, err := json.Marshal(it.Metadata)
	if err != nil {
		return fmt.Errorf("encode notification metadata: %w", err)
	}
	_, err = p.pool.Exec(ctx,
		`INSERT INTO notifications (id, user_id, type, title, body, reference, metadata, created_at)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		it.ID, it.UserID, it.Type, it.Title, it.Body, nullable(it.Reference), meta, it.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (p *PGInbox) List(ctx context.Context, userID string, unreadOnly bool, limit int) ([]Item, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `SELECT id, user_id, type, title, body, COALESCE(reference, ''), metadata, created_at, read_at
          FROM notifications WHERE user_id = $1`
	if unreadOnly {
		q += ` AND read_at IS NULL`
	}
	q += ` ORDER BY created_at DESC LIMIT $2`

	rows, err := p.pool.Query(ctx, q, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load notifications: %w", err)
	}
	defer rows.Close()

	items := []Item{}
	for rows.Next() {
		var (
			it   Item
			meta []byte
		)
		if err := rows.Scan(&it.ID, &it.UserID, &it.Type, &it.Title, &it.Body, &it.Reference, &meta, &it.CreatedAt, &it.ReadAt); err != nil {
			return nil, fmt.Errorf("failed to parse notification: %w", err)
		}
		if len(meta) > 0 {
			var n marketplace.Notification
			if err := json.Unmarshal(meta, &n); err == nil {
				it.Metadata = &n
			}
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (p *PGInbox) MarkRead(ctx context.Context, userID, id string) error {
	res, err := p.pool.Exec(ctx,
		`UPDATE notifications SET read_at = NOW() WHERE id = $1 AND user_id = $2 AND read_at IS NULL`, id, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to update notification: %w", err)
	}
	if res.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
