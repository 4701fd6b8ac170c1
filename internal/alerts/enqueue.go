package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/sudo-init-do/agriloop/internal/marketplace"
)

// enqueuer is the part of *asynq.Client the notifier uses.
type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// TaskNotifier hands notifications to the worker as asynq tasks so email
// delivery never runs on the request path.
type TaskNotifier struct {
	client   enqueuer
	queue    string
	maxRetry int
}

func NewTaskNotifier(client *asynq.Client) *TaskNotifier {
	return newTaskNotifier(client)
}

func newTaskNotifier(client enqueuer) *TaskNotifier {
	return &TaskNotifier{client: client, queue: QueueEmails, maxRetry: 5}
}

func (t *TaskNotifier) Notify(ctx context.Context, n marketplace.Notification) error {
	payload := NotifyUserPayload{
		Notification: n,
		Envelope:     EmailEnvelope{Subject: n.Subject, Body: renderBody(n)},
		QueuedAt:     time.Now(),
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	task := asynq.NewTask(TaskNotifyUser, b)
	if _, err := t.client.EnqueueContext(ctx, task, asynq.Queue(t.queueFor(n.Kind)), asynq.MaxRetry(t.maxRetry)); err != nil {
		return fmt.Errorf("enqueue %s for %s: %w", n.Kind, n.UserID, err)
	}
	return nil
}

// queueFor sends money and dispute outcomes ahead of routine trade mail.
func (t *TaskNotifier) queueFor(kind string) string {
	switch kind {
	case marketplace.NotifyDisputeOpened, marketplace.NotifyDisputeResolved,
		marketplace.NotifyEscrowReleased, marketplace.NotifyOrderRefunded:
		return QueueAlerts
	}
	return t.queue
}

func renderBody(n marketplace.Notification) string {
	body := n.Message
	if n.OrderID != "" {
		body += fmt.Sprintf("\n\nOrder reference: %s", n.OrderID)
	}
	body += "\n\n- AgriLoop Team"
	return body
}
