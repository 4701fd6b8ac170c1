package alerts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudo-init-do/agriloop/internal/marketplace"
)

func TestMemoryInbox(t *testing.T) {
	ctx := context.Background()
	inbox := NewMemoryInbox()
	sink := InboxNotifier{Inbox: inbox}
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, sink.Notify(ctx, marketplace.Notification{Kind: marketplace.NotifyBidReceived, UserID: "u1", Subject: "first", ListingID: "l1", BidID: "b1", OccurredAt: base}))
	require.NoError(t, sink.Notify(ctx, marketplace.Notification{Kind: marketplace.NotifyOrderPlaced, UserID: "u1", Subject: "second", ListingID: "l1", OrderID: "o1", OccurredAt: base.Add(time.Minute)}))
	require.NoError(t, sink.Notify(ctx, marketplace.Notification{Kind: marketplace.NotifyOrderStatus, UserID: "u2", Subject: "other", OccurredAt: base}))

	items, err := inbox.List(ctx, "u1", false, 0)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "second", items[0].Title)
	assert.Equal(t, "o1", items[0].Reference)
	assert.Equal(t, "b1", items[1].Reference)
	require.NotNil(t, items[0].Metadata)
	assert.Equal(t, marketplace.NotifyOrderPlaced, items[0].Metadata.Kind)

	limited, err := inbox.List(ctx, "u1", false, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	assert.ErrorIs(t, inbox.MarkRead(ctx, "u2", items[0].ID), ErrNotFound)
	require.NoError(t, inbox.MarkRead(ctx, "u1", items[0].ID))
	assert.ErrorIs(t, inbox.MarkRead(ctx, "u1", items[0].ID), ErrNotFound)

	unread, err := inbox.List(ctx, "u1", true, 0)
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, "first", unread[0].Title)

	none, err := inbox.List(ctx, "nobody", false, 0)
	require.NoError(t, err)
	assert.NotNil(t, none)
}

func TestNotificationRoutes(t *testing.T) {
	ctx := context.Background()
	inbox := NewMemoryInbox()
	require.NoError(t, inbox.Add(ctx, marketplace.Notification{Kind: marketplace.NotifyBidAccepted, UserID: "u1", Subject: "Your bid was accepted"}))
	items, err := inbox.List(ctx, "u1", false, 0)
	require.NoError(t, err)
	id := items[0].ID

	e := echo.New()
	g := e.Group("")
	g.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if uid := c.Request().Header.Get("X-User"); uid != "" {
				c.Set("user_id", uid)
			}
			return next(c)
		}
	})
	NewHandler(inbox).Register(g)

	call := func(method, path, user string) (int, map[string]any) {
		req := httptest.NewRequest(method, path, nil)
		if user != "" {
			req.Header.Set("X-User", user)
		}
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		return rec.Code, body
	}

	code, _ := call(http.MethodGet, "/notifications", "")
	assert.Equal(t, http.StatusUnauthorized, code)

	code, body := call(http.MethodGet, "/notifications?unread=true", "u1")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["notifications"], 1)

	code, _ = call(http.MethodPost, "/notifications/"+id+"/read", "u2")
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = call(http.MethodPost, "/notifications/"+id+"/read", "u1")
	assert.Equal(t, http.StatusOK, code)

	code, body = call(http.MethodGet, "/notifications?unread=true", "u1")
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, body["notifications"])
}
