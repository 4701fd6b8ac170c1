package alerts

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sudo-init-do/agriloop/internal/marketplace"
)

// ErrNotFound is returned by MarkRead when the item is missing, belongs to
// someone else or was already read.
var ErrNotFound = errors.New("alerts: notification not found or already read")

// Inbox stores in-app notifications.
type Inbox interface {
	Add(ctx context.Context, n marketplace.Notification) error
	List(ctx context.Context, userID string, unreadOnly bool, limit int) ([]Item, error)
	MarkRead(ctx context.Context, userID, id string) error
}

// InboxNotifier writes every notification to an Inbox.
type InboxNotifier struct {
	Inbox Inbox
}

func (n InboxNotifier) Notify(ctx context.Context, note marketplace.Notification) error {
	return n.Inbox.Add(ctx, note)
}

func newItem(n marketplace.Notification) Item {
	created := n.OccurredAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	meta := n
	return Item{
		ID:        uuid.New().String(),
		UserID:    n.UserID,
		Type:      n.Kind,
		Title:     n.Subject,
		Body:      n.Message,
		Reference: reference(n),
		Metadata:  &meta,
		CreatedAt: created,
	}
}

// MemoryInbox keeps notifications in process memory.
type MemoryInbox struct {
	mu    sync.Mutex
	items []Item
}

func NewMemoryInbox() *MemoryInbox {
	return &MemoryInbox{}
}

func (m *MemoryInbox) Add(_ context.Context, n marketplace.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, newItem(n))
	return nil
}

func (m *MemoryInbox) List(_ context.Context, userID string, unreadOnly bool, limit int) ([]Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Item{}
	for _, it := range m.items {
		if it.UserID != userID || (unreadOnly && it.ReadAt != nil) {
			continue
		}
		out = append(out, it)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryInbox) MarkRead(_ context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.items {
		it := &m.items[i]
		if it.ID == id && it.UserID == userID && it.ReadAt == nil {
			now := time.Now().UTC()
			it.ReadAt = &now
			return nil
		}
	}
	return ErrNotFound
}
