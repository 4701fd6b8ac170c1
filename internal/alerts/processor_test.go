package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudo-init-do/agriloop/internal/marketplace"
)

type fakeDirectory map[string]string

func (d fakeDirectory) Email(_ context.Context, userID string) (string, error) {
	if email, ok := d[userID]; ok {
		return email, nil
	}
	return "", ErrNoAddress
}

type sent struct{ to, subject, body string }

type fakeSender struct {
	out []sent
	err error
}

func (s *fakeSender) Send(_ context.Context, to, subject, body string) error {
	if s.err != nil {
		return s.err
	}
	s.out = append(s.out, sent{to, subject, body})
	return nil
}

func task(t *testing.T, userID string) *asynq.Task {
	t.Helper()
	b, err := json.Marshal(NotifyUserPayload{
		Notification: marketplace.Notification{Kind: marketplace.NotifyOrderStatus, UserID: userID, OrderID: "o1"},
		Envelope:     EmailEnvelope{Subject: "Order #1 is now accepted", Body: "Order 1 status changed to accepted."},
	})
	require.NoError(t, err)
	return asynq.NewTask(TaskNotifyUser, b)
}

func newTestProcessor(dir Directory, s Sender) *Processor {
	return NewProcessor(dir, s, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestHandleNotifyUser(t *testing.T) {
	ctx := context.Background()
	s := &fakeSender{}
	p := newTestProcessor(fakeDirectory{"u1": "u1@example.com"}, s)

	require.NoError(t, p.HandleNotifyUser(ctx, task(t, "u1")))
	require.Len(t, s.out, 1)
	assert.Equal(t, sent{"u1@example.com", "Order #1 is now accepted", "Order 1 status changed to accepted."}, s.out[0])

	require.NoError(t, p.HandleNotifyUser(ctx, task(t, "ghost")), "users without an address are dropped")
	assert.Len(t, s.out, 1)

	err := p.HandleNotifyUser(ctx, asynq.NewTask(TaskNotifyUser, []byte("{")))
	require.Error(t, err)
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestHandleNotifyUserRetriesSendFailures(t *testing.T) {
	s := &fakeSender{err: errors.New("421 try again later")}
	p := newTestProcessor(fakeDirectory{"u1": "u1@example.com"}, s)
	err := p.HandleNotifyUser(context.Background(), task(t, "u1"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
}

func TestNewSender(t *testing.T) {
	_, err := NewSender(MailConfig{})
	assert.Error(t, err)
	_, err = NewSender(MailConfig{Provider: "pigeon"})
	assert.Error(t, err)
	_, err = NewSender(MailConfig{Provider: "plunk"})
	assert.Error(t, err)

	s, err := NewSender(MailConfig{Plunk: PlunkConfig{APIKey: "pk"}})
	require.NoError(t, err)
	require.IsType(t, &plunkSender{}, s)
	assert.Equal(t, "https://api.useplunk.com/v1/send", s.(*plunkSender).cfg.APIURL)

	s, err = NewSender(MailConfig{SMTP: SMTPConfig{Host: "smtp.example.com", Port: "465", Username: "u", Password: "p", From: "noreply@example.com"}, ReplyTo: "support@example.com"})
	require.NoError(t, err)
	msg := s.(*smtpSender).message("a@example.com", "Hello", "<html><body>hi</body></html>")
	assert.Contains(t, msg, "To: a@example.com\r\n")
	assert.Contains(t, msg, "Reply-To: support@example.com\r\n")
	assert.Contains(t, msg, `Content-Type: text/html; charset="utf-8"`)
}

func TestPlunkSender(t *testing.T) {
	var got plunkSendBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer pk_test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		if got.To == "bounce@example.com" {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"error":"invalid recipient"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s, err := NewSender(MailConfig{Provider: "plunk", Plunk: PlunkConfig{APIKey: "pk_test", From: "noreply@example.com", APIURL: srv.URL}})
	require.NoError(t, err)

	require.NoError(t, s.Send(context.Background(), "a@example.com", "Subject", "Body"))
	assert.Equal(t, plunkSendBody{To: "a@example.com", Subject: "Subject", Body: "Body", From: "noreply@example.com"}, got)

	err = s.Send(context.Background(), "bounce@example.com", "Subject", "Body")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status=422")
	assert.Contains(t, err.Error(), "invalid recipient")
}
