package marketplace

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
)

// Handler exposes the Service over HTTP. Routes expect the JWT middleware
// to have set user_id and role.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Register mounts the authenticated trade routes on g. admin must already
// be guarded for admins.
func (h *Handler) Register(g *echo.Group, admin *echo.Group) {
	g.POST("/listings", h.CreateListing)
	g.POST("/bids", h.PlaceBid)
	g.GET("/bids/listing/:id", h.ListBids)
	g.POST("/bids/:bidId/accept", h.AcceptBid)
	g.POST("/bids/:bidId/reject", h.RejectBid)
	g.POST("/bids/:bidId/withdraw", h.WithdrawBid)

	g.POST("/orders", h.CreateOrder)
	g.GET("/orders/my/buyer", h.ListBuyerOrders)
	g.GET("/orders/my/seller", h.ListSellerOrders)
	g.GET("/orders/:id", h.GetOrder)
	g.PUT("/orders/:id/status", h.UpdateStatus)
	g.POST("/orders/:id/review", h.AddReview)
	g.POST("/orders/:id/negotiate", h.Negotiate)
	g.POST("/orders/:id/dispute", h.OpenDispute)
	g.POST("/orders/:id/release-escrow", h.ReleaseEscrow)

	admin.GET("/stats", h.Stats)
	admin.GET("/disputes", h.ListDisputes)
	admin.POST("/disputes/:orderId/resolve", h.ResolveDispute)
	admin.PUT("/listings/:id/status", h.OverrideListingStatus)
}

// RegisterPublic mounts the unauthenticated browse routes.
func (h *Handler) RegisterPublic(e *echo.Echo) {
	e.GET("/listings", h.ListListings)
	e.GET("/listings/:id", h.GetListing)
}

func actor(c echo.Context) (Actor, error) {
	a, ok := ActorFrom(c)
	if !ok {
		return Actor{}, echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	return a, nil
}

type createListingRequest struct {
	Title       string   `json:"title" validate:"required,max=200"`
	Description string   `json:"description" validate:"max=2000"`
	Category    string   `json:"category" validate:"required"`
	Condition   string   `json:"condition"`
	Quantity    Quantity `json:"quantity" validate:"required"`
	Price       struct {
		PerUnit      float64   `json:"per_unit" validate:"gte=0"`
		Currency     string    `json:"currency" validate:"omitempty,oneof=USD EUR GBP INR"`
		Negotiable   bool      `json:"negotiable"`
		PriceType    PriceType `json:"price_type" validate:"required,oneof=fixed bids negotiable"`
		MinBid       *float64  `json:"min_bid" validate:"omitempty,gte=0"`
		ReservePrice *float64  `json:"reserve_price" validate:"omitempty,gte=0"`
	} `json:"price"`
}

func (h *Handler) CreateListing(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	var req createListingRequest
	if err := bind(c, &req); err != nil {
		return RespondError(c, err)
	}
	l, err := h.svc.CreateListing(c.Request().Context(), a, CreateListingInput{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Condition:   req.Condition,
		Quantity:    req.Quantity,
		Price: Price{
			PerUnit:      req.Price.PerUnit,
			Currency:     req.Price.Currency,
			Negotiable:   req.Price.Negotiable,
			PriceType:    req.Price.PriceType,
			MinBid:       req.Price.MinBid,
			ReservePrice: req.Price.ReservePrice,
		},
	})
	if err != nil {
		return RespondError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"listing": l})
}

func (h *Handler) GetListing(c echo.Context) error {
	l, err := h.svc.GetListing(c.Request().Context(), c.Param("id"))
	if err != nil {
		return RespondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"listing": l})
}

func (h *Handler) ListListings(c echo.Context) error {
	items, page, err := h.svc.ListListings(c.Request().Context(), ListingQuery{
		Category:  c.QueryParam("category"),
		PriceType: PriceType(c.QueryParam("price_type")),
		Page:      queryInt(c, "page"),
		Limit:     queryInt(c, "limit"),
	})
	if err != nil {
		return RespondError(c, err)
	}
	if items == nil {
		items = []Listing{}
	}
	return c.JSON(http.StatusOK, echo.Map{"listings": items, "pagination": page})
}

type listingStatusRequest struct {
	Status ListingStatus `json:"status" validate:"required,oneof=active pending sold expired cancelled"`
}

func (h *Handler) OverrideListingStatus(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	var req listingStatusRequest
	if err := bind(c, &req); err != nil {
		return RespondError(c, err)
	}
	l, err := h.svc.OverrideListingStatus(c.Request().Context(), a, c.Param("id"), req.Status)
	if err != nil {
		return RespondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"listing": l})
}

type placeBidRequest struct {
	ListingID string     `json:"listing_id" validate:"required"`
	Amount    float64    `json:"amount" validate:"gt=0"`
	Quantity  Quantity   `json:"quantity" validate:"required"`
	Message   string     `json:"message" validate:"max=500"`
	ExpiresAt *time.Time `json:"expires_at"`
}

func (h *Handler) PlaceBid(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	var req placeBidRequest
	if err := bind(c, &req); err != nil {
		return RespondError(c, err)
	}
	b, err := h.svc.PlaceBid(c.Request().Context(), a, PlaceBidInput{
		ListingID: req.ListingID,
		Amount:    req.Amount,
		Quantity:  req.Quantity,
		Message:   req.Message,
		ExpiresAt: req.ExpiresAt,
	})
	if err != nil {
		return RespondError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"bid": b})
}

func (h *Handler) ListBids(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	bids, err := h.svc.ListBids(c.Request().Context(), a, c.Param("id"))
	if err != nil {
		return RespondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"bids": bids})
}

func (h *Handler) AcceptBid(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	b, o, err := h.svc.AcceptBid(c.Request().Context(), a, c.Param("bidId"))
	if err != nil {
		return RespondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"bid": b, "order": o})
}

func (h *Handler) RejectBid(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	b, err := h.svc.RejectBid(c.Request().Context(), a, c.Param("bidId"))
	if err != nil {
		return RespondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"bid": b})
}

func (h *Handler) WithdrawBid(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	b, err := h.svc.WithdrawBid(c.Request().Context(), a, c.Param("bidId"))
	if err != nil {
		return RespondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"bid": b})
}

type createOrderRequest struct {
	ListingID string   `json:"listing_id" validate:"required"`
	Quantity  Quantity `json:"quantity" validate:"required"`
	Delivery  struct {
		Method        DeliveryMethod `json:"method" validate:"required,oneof=pickup delivery"`
		Address       *Address       `json:"address"`
		ScheduledDate *time.Time     `json:"scheduled_date"`
		Notes         string         `json:"notes" validate:"max=500"`
	} `json:"delivery"`
	PaymentMethod PaymentMethod `json:"payment_method" validate:"required,oneof=stripe paypal bank_transfer cash_on_delivery razorpay"`
	Notes         string        `json:"notes" validate:"max=500"`
}

func (h *Handler) CreateOrder(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	var req createOrderRequest
	if err := bind(c, &req); err != nil {
		return RespondError(c, err)
	}
	o, err := h.svc.CreateOrder(c.Request().Context(), a, CreateOrderInput{
		ListingID: req.ListingID,
		Quantity:  req.Quantity,
		Delivery: Delivery{
			Method:        req.Delivery.Method,
			Address:       req.Delivery.Address,
			ScheduledDate: req.Delivery.ScheduledDate,
			Notes:         req.Delivery.Notes,
		},
		PaymentMethod: req.PaymentMethod,
		Notes:         req.Notes,
	})
	if err != nil {
		return RespondError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"order": o})
}

func (h *Handler) GetOrder(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	o, err := h.svc.GetOrder(c.Request().Context(), a, c.Param("id"))
	if err != nil {
		return RespondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"order": o})
}

func (h *Handler) ListBuyerOrders(c echo.Context) error  { return h.listOrders(c, RoleBuyer) }
func (h *Handler) ListSellerOrders(c echo.Context) error { return h.listOrders(c, RoleSeller) }

func (h *Handler) listOrders(c echo.Context, side Role) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	items, page, err := h.svc.ListOrders(c.Request().Context(), a, side, OrderQuery{
		Status: OrderStatus(c.QueryParam("status")),
		Page:   queryInt(c, "page"),
		Limit:  queryInt(c, "limit"),
	})
	if err != nil {
		return RespondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"orders": items, "pagination": page})
}

type updateStatusRequest struct {
	Status OrderStatus `json:"status" validate:"required"`
	Note   string      `json:"note" validate:"max=500"`
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	var req updateStatusRequest
	if err := bind(c, &req); err != nil {
		return RespondError(c, err)
	}
	o, err := h.svc.UpdateStatus(c.Request().Context(), a, c.Param("id"), req.Status, req.Note)
	if err != nil {
		return RespondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"order": o})
}

type reviewRequest struct {
	Rating  int    `json:"rating" validate:"min=1,max=5"`
	Comment string `json:"comment" validate:"max=500"`
}

func (h *Handler) AddReview(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	var req reviewRequest
	if err := bind(c, &req); err != nil {
		return RespondError(c, err)
	}
	o, err := h.svc.AddReview(c.Request().Context(), a, c.Param("id"), req.Rating, req.Comment)
	if err != nil {
		return RespondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"order": o})
}

type negotiateRequest struct {
	ProposedPrice float64 `json:"proposed_price" validate:"gte=0"`
	Message       string  `json:"message" validate:"min=10,max=500"`
}

func (h *Handler) Negotiate(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	var req negotiateRequest
	if err := bind(c, &req); err != nil {
		return RespondError(c, err)
	}
	o, err := h.svc.NegotiatePrice(c.Request().Context(), a, c.Param("id"), req.ProposedPrice, req.Message)
	if err != nil {
		return RespondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"order": o})
}

type disputeRequest struct {
	Reason string `json:"reason" validate:"min=10,max=500"`
}

func (h *Handler) OpenDispute(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	var req disputeRequest
	if err := bind(c, &req); err != nil {
		return RespondError(c, err)
	}
	o, err := h.svc.OpenDispute(c.Request().Context(), a, c.Param("id"), req.Reason)
	if err != nil {
		return RespondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"order": o})
}

type resolveRequest struct {
	Resolution string        `json:"resolution" validate:"min=10,max=1000"`
	Action     DisputeAction `json:"action" validate:"required,oneof=refund_buyer release_seller partial_refund no_action"`
}

func (h *Handler) ResolveDispute(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	var req resolveRequest
	if err := bind(c, &req); err != nil {
		return RespondError(c, err)
	}
	o, err := h.svc.ResolveDispute(c.Request().Context(), a, c.Param("orderId"), req.Resolution, req.Action)
	if err != nil {
		return RespondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"order": o})
}

func (h *Handler) ReleaseEscrow(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	o, err := h.svc.ReleaseEscrow(c.Request().Context(), a, c.Param("id"))
	if err != nil {
		return RespondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"order": o})
}

func (h *Handler) ListDisputes(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	var open *bool
	if v := c.QueryParam("open"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return RespondError(c, NewError(KindValidation, "open must be true or false"))
		}
		open = &b
	}
	items, page, err := h.svc.ListDisputes(c.Request().Context(), a, open, queryInt(c, "page"), queryInt(c, "limit"))
	if err != nil {
		return RespondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"disputes": items, "pagination": page})
}

func (h *Handler) Stats(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	st, err := h.svc.Stats(c.Request().Context(), a)
	if err != nil {
		return RespondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"stats": st})
}

func queryInt(c echo.Context, name string) int {
	n, _ := strconv.Atoi(c.QueryParam(name))
	return n
}
