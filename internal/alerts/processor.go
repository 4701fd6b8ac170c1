package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNoAddress means the user has no deliverable email address.
var ErrNoAddress = errors.New("alerts: no email address")

// Directory resolves a user id to an email address.
type Directory interface {
	Email(ctx context.Context, userID string) (string, error)
}

// PGDirectory reads addresses from the users table the identity service
// shares with this database.
type PGDirectory struct {
	pool *pgxpool.Pool
}

func NewPGDirectory(pool *pgxpool.Pool) *PGDirectory {
	return &PGDirectory{pool: pool}
}

func (d *PGDirectory) Email(ctx context.Context, userID string) (string, error) {
	var email string
	err := d.pool.QueryRow(ctx, `SELECT email FROM users WHERE id::text = $1`, userID).Scan(&email)
	if errors.Is(err, pgx.ErrNoRows) || (err == nil && email == "") {
		return "", ErrNoAddress
	}
	if err != nil {
		return "", fmt.Errorf("lookup email for %s: %w", userID, err)
	}
	return email, nil
}

// Processor handles notification tasks on the worker.
type Processor struct {
	dir    Directory
	sender Sender
	log    *slog.Logger
}

func NewProcessor(dir Directory, sender Sender, log *slog.Logger) *Processor {
	if log == nil {
		log = slog.Default()
	}
	return &Processor{dir: dir, sender: sender, log: log}
}

// Mux routes task types to the processor.
func (p *Processor) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskNotifyUser, p.HandleNotifyUser)
	return mux
}

// HandleNotifyUser emails the recipient. Bad payloads and users without an
// address are dropped; send failures are retried by asynq.
func (p *Processor) HandleNotifyUser(ctx context.Context, t *asynq.Task) error {
	var payload NotifyUserPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("decode %s: %v: %w", TaskNotifyUser, err, asynq.SkipRetry)
	}
	n := payload.Notification
	to := payload.Envelope.To
	if to == "" {
		email, err := p.dir.Email(ctx, n.UserID)
		if errors.Is(err, ErrNoAddress) {
			p.log.Info("notification skipped, no email", "kind", n.Kind, "user_id", n.UserID)
			return nil
		}
		if err != nil {
			return err
		}
		to = email
	}
	if err := p.sender.Send(ctx, to, payload.Envelope.Subject, payload.Envelope.Body); err != nil {
		p.log.Error("notification send failed", "kind", n.Kind, "user_id", n.UserID, "error", err)
		return err
	}
	p.log.Info("notification sent", "kind", n.Kind, "user_id", n.UserID, "order_id", n.OrderID)
	return nil
}

// NewServer builds the asynq worker with the queue weights the enqueuers use.
func NewServer(opt asynq.RedisClientOpt, concurrency int) *asynq.Server {
	if concurrency <= 0 {
		concurrency = 5
	}
	return asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			QueueAlerts: 6,
			QueueEmails: 3,
		},
	})
}
