package live

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/agriloop/internal/marketplace"
)

const (
	EventPresenceJoin  = "presence_join"
	EventPresenceLeave = "presence_leave"
)

// OrderReader resolves an order the caller may see.
type OrderReader interface {
	GetOrder(ctx context.Context, actor marketplace.Actor, orderID string) (*marketplace.Order, error)
}

type Handler struct {
	hub      *Hub
	orders   OrderReader
	upgrader websocket.Upgrader
}

func NewHandler(hub *Hub, orders OrderReader) *Handler {
	return &Handler{
		hub:    hub,
		orders: orders,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (h *Handler) Register(api *echo.Group) {
	api.GET("/orders/:id/live", h.OrderFeed)
}

// OrderFeed upgrades to a websocket for an order's buyer, seller or an
// admin. The feed is server push; client frames are read and discarded.
func (h *Handler) OrderFeed(c echo.Context) error {
	a, ok := marketplace.ActorFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	orderID := c.Param("id")
	if _, err := h.orders.GetOrder(c.Request().Context(), a, orderID); err != nil {
		return marketplace.RespondError(c, err)
	}

	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	cl := &conn{ws: ws, userID: a.UserID}
	h.hub.join(orderID, cl)
	h.hub.broadcast(orderID, "", Event{Type: EventPresenceJoin, Data: echo.Map{"user_id": a.UserID}})

	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			break
		}
	}
	h.hub.leave(orderID, cl)
	_ = ws.Close()
	h.hub.broadcast(orderID, "", Event{Type: EventPresenceLeave, Data: echo.Map{"user_id": a.UserID}})
	return nil
}
