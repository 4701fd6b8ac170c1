package live

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudo-init-do/agriloop/internal/marketplace"
)

var (
	seller = marketplace.Actor{UserID: "seller-1", Role: marketplace.RoleSeller}
	buyer  = marketplace.Actor{UserID: "buyer-1", Role: marketplace.RoleBuyer}
)

type env struct {
	hub   *Hub
	svc   *marketplace.Service
	order *marketplace.Order
	url   string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := NewHub(quiet)
	svc := marketplace.NewService(marketplace.NewMemoryStore(), hub, marketplace.WithLogger(quiet))

	ctx := context.Background()
	l, err := svc.CreateListing(ctx, seller, marketplace.CreateListingInput{
		Title:    "Cardboard bales",
		Category: "paper",
		Quantity: marketplace.Quantity{Amount: 10, Unit: marketplace.UnitTons},
		Price:    marketplace.Price{PerUnit: 40, PriceType: marketplace.PriceFixed},
	})
	require.NoError(t, err)
	o, err := svc.CreateOrder(ctx, buyer, marketplace.CreateOrderInput{
		ListingID:     l.ID,
		Quantity:      marketplace.Quantity{Amount: 2, Unit: marketplace.UnitTons},
		Delivery:      marketplace.Delivery{Method: marketplace.DeliveryPickup},
		PaymentMethod: marketplace.MethodBankTransfer,
	})
	require.NoError(t, err)

	e := echo.New()
	g := e.Group("")
	g.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if uid := c.Request().Header.Get("X-User"); uid != "" {
				c.Set("user_id", uid)
				c.Set("role", c.Request().Header.Get("X-Role"))
			}
			return next(c)
		}
	})
	NewHandler(hub, svc).Register(g)
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)

	return &env{hub: hub, svc: svc, order: o, url: srv.URL}
}

func (e *env) dial(t *testing.T, a marketplace.Actor) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	h := http.Header{}
	h.Set("X-User", a.UserID)
	h.Set("X-Role", string(a.Role))
	url := "ws" + strings.TrimPrefix(e.url, "http") + "/orders/" + e.order.ID + "/live"
	ws, resp, err := websocket.DefaultDialer.Dial(url, h)
	if ws != nil {
		t.Cleanup(func() { _ = ws.Close() })
	}
	return ws, resp, err
}

func readEvent(t *testing.T, ws *websocket.Conn) Event {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	var evt Event
	require.NoError(t, json.Unmarshal(data, &evt))
	return evt
}

func TestOrderFeedDeliversNotifications(t *testing.T) {
	fx := newEnv(t)
	ws, _, err := fx.dial(t, seller)
	require.NoError(t, err)

	join := readEvent(t, ws)
	assert.Equal(t, EventPresenceJoin, join.Type)
	assert.Equal(t, 1, fx.hub.Watchers(fx.order.ID))

	_, err = fx.svc.OpenDispute(context.Background(), buyer, fx.order.ID, "bales were soaked through")
	require.NoError(t, err)

	evt := readEvent(t, ws)
	assert.Equal(t, marketplace.NotifyDisputeOpened, evt.Type)
	data := evt.Data.(map[string]any)
	assert.Equal(t, fx.order.ID, data["order_id"])
	assert.Equal(t, seller.UserID, data["user_id"])
}

func TestOrderFeedRefusesOutsiders(t *testing.T) {
	fx := newEnv(t)

	_, resp, err := fx.dial(t, marketplace.Actor{UserID: "someone-else", Role: marketplace.RoleBuyer})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	_, resp, err = fx.dial(t, marketplace.Actor{})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Zero(t, fx.hub.Watchers(fx.order.ID))
}

func TestHubNotifySkipsUnrelated(t *testing.T) {
	hub := NewHub(nil)
	assert.NoError(t, hub.Notify(context.Background(), marketplace.Notification{Kind: marketplace.NotifyBidReceived, UserID: "u1"}))
	assert.NoError(t, hub.Notify(context.Background(), marketplace.Notification{Kind: marketplace.NotifyOrderStatus, UserID: "u1", OrderID: "nobody-watching"}))
}
