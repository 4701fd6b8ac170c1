package alerts

import (
	"time"

	"github.com/sudo-init-do/agriloop/internal/marketplace"
)

// Task types and queues. QueueAlerts carries dispute and payment outcomes
// and is weighted above QueueEmails.
const (
	TaskNotifyUser = "notify:user"

	QueueEmails = "emails"
	QueueAlerts = "alerts"
)

// EmailEnvelope is the rendered message. To is filled in by the worker
// once the recipient's address is resolved.
type EmailEnvelope struct {
	To      string `json:"to,omitempty"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NotifyUserPayload is the body of a TaskNotifyUser task.
type NotifyUserPayload struct {
	Notification marketplace.Notification `json:"notification"`
	Envelope     EmailEnvelope            `json:"envelope"`
	QueuedAt     time.Time                `json:"queued_at"`
}

// Item is one row of a user's in-app inbox.
type Item struct {
	ID        string                    `json:"id"`
	UserID    string                    `json:"user_id"`
	Type      string                    `json:"type"`
	Title     string                    `json:"title"`
	Body      string                    `json:"body"`
	Reference string                    `json:"reference,omitempty"`
	Metadata  *marketplace.Notification `json:"metadata,omitempty"`
	CreatedAt time.Time                 `json:"created_at"`
	ReadAt    *time.Time                `json:"read_at"`
}

// reference picks the most specific entity a notification points at.
func reference(n marketplace.Notification) string {
	switch {
	case n.OrderID != "":
		return n.OrderID
	case n.BidID != "":
		return n.BidID
	}
	return n.ListingID
}
