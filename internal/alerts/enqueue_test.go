package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudo-init-do/agriloop/internal/marketplace"
)

type fakeEnqueuer struct {
	tasks []*asynq.Task
	opts  [][]asynq.Option
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	f.opts = append(f.opts, opts)
	return &asynq.TaskInfo{ID: "task-1", Queue: QueueEmails}, nil
}

func TestTaskNotifierEnqueues(t *testing.T) {
	q := &fakeEnqueuer{}
	n := newTaskNotifier(q)

	err := n.Notify(context.Background(), marketplace.Notification{
		Kind:    marketplace.NotifyOrderPlaced,
		UserID:  "seller-1",
		Subject: "New Order #ORD-1-0001 - Get Ready!",
		Message: "Order ORD-1-0001 is waiting.",
		OrderID: "order-1",
	})
	require.NoError(t, err)
	require.Len(t, q.tasks, 1)
	assert.Equal(t, TaskNotifyUser, q.tasks[0].Type())

	var payload NotifyUserPayload
	require.NoError(t, json.Unmarshal(q.tasks[0].Payload(), &payload))
	assert.Equal(t, "seller-1", payload.Notification.UserID)
	assert.Empty(t, payload.Envelope.To)
	assert.Equal(t, "New Order #ORD-1-0001 - Get Ready!", payload.Envelope.Subject)
	assert.Contains(t, payload.Envelope.Body, "Order ORD-1-0001 is waiting.")
	assert.Contains(t, payload.Envelope.Body, "Order reference: order-1")
	assert.False(t, payload.QueuedAt.IsZero())

	values := map[asynq.OptionType]any{}
	for _, o := range q.opts[0] {
		values[o.Type()] = o.Value()
	}
	assert.Equal(t, QueueEmails, values[asynq.QueueOpt])
	assert.Equal(t, 5, values[asynq.MaxRetryOpt])
}

func TestTaskNotifierRoutesOutcomesToAlertsQueue(t *testing.T) {
	tests := []struct {
		kind  string
		queue string
	}{
		{marketplace.NotifyBidReceived, QueueEmails},
		{marketplace.NotifyOrderStatus, QueueEmails},
		{marketplace.NotifyDisputeOpened, QueueAlerts},
		{marketplace.NotifyDisputeResolved, QueueAlerts},
		{marketplace.NotifyEscrowReleased, QueueAlerts},
		{marketplace.NotifyOrderRefunded, QueueAlerts},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			q := &fakeEnqueuer{}
			require.NoError(t, newTaskNotifier(q).Notify(context.Background(), marketplace.Notification{Kind: tt.kind, UserID: "u1"}))
			require.Len(t, q.opts, 1)
			for _, o := range q.opts[0] {
				if o.Type() == asynq.QueueOpt {
					assert.Equal(t, tt.queue, o.Value())
				}
			}
		})
	}
}

func TestTaskNotifierReportsEnqueueFailure(t *testing.T) {
	q := &fakeEnqueuer{err: errors.New("redis: connection refused")}
	err := newTaskNotifier(q).Notify(context.Background(), marketplace.Notification{Kind: marketplace.NotifyBidReceived, UserID: "u1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, q.err)
}
