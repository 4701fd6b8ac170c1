package payments

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/agriloop/internal/marketplace"
)

const maxWebhookBody = 64 << 10

type Config struct {
	StripeWebhookSecret string
	StripeTolerance     time.Duration
	RazorpayKeySecret   string
}

// Handler serves the provider callbacks.
type Handler struct {
	svc    *marketplace.Service
	dedupe Deduper
	cfg    Config
	log    *slog.Logger
	now    func() time.Time
}

func NewHandler(svc *marketplace.Service, dedupe Deduper, cfg Config, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, dedupe: dedupe, cfg: cfg, log: log, now: time.Now}
}

// Register mounts the signed webhook and the method list on e, and the
// buyer verification and seller refund on the authenticated group.
func (h *Handler) Register(e *echo.Echo, authed *echo.Group) {
	e.GET("/payments/methods", h.Methods)
	e.POST("/payments/stripe/webhook", h.StripeWebhook)
	authed.POST("/payments/razorpay/verify", h.RazorpayVerify)
	authed.POST("/payments/refund", h.Refund)
}

func (h *Handler) Methods(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{
		"methods": marketplace.PaymentMethods(h.cfg.StripeWebhookSecret != "", h.cfg.RazorpayKeySecret != ""),
	})
}

// StripeWebhook verifies the raw body before decoding it. Events that cannot
// be applied for business reasons are acknowledged so the provider stops
// retrying; storage failures return 500 and release the event id.
func (h *Handler) StripeWebhook(c echo.Context) error {
	payload, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "failed to read body"})
	}
	sig := c.Request().Header.Get(StripeSignatureHeader)
	if err := VerifyStripeSignature(payload, sig, h.cfg.StripeWebhookSecret, h.cfg.StripeTolerance, h.now()); err != nil {
		h.log.Warn("stripe webhook rejected", "error", err)
		return marketplace.RespondError(c, err)
	}
	ev, err := ParseStripeEvent(payload)
	if err != nil {
		return marketplace.RespondError(c, err)
	}

	ctx := c.Request().Context()
	claimed := false
	if h.dedupe != nil {
		fresh, err := h.dedupe.Claim(ctx, ev.ID)
		switch {
		case err != nil:
			h.log.Warn("payment event dedupe unavailable", "event_id", ev.ID, "error", err)
		case !fresh:
			h.log.Info("duplicate payment event", "event_id", ev.ID, "type", ev.Type)
			return c.JSON(http.StatusOK, echo.Map{"received": true, "duplicate": true})
		default:
			claimed = true
		}
	}

	pe, ok := ev.PaymentEvent()
	if !ok {
		return c.JSON(http.StatusOK, echo.Map{"received": true})
	}
	if _, _, err := h.svc.ApplyPaymentEvent(ctx, pe); err != nil {
		if marketplace.KindOf(err) != "" {
			h.log.Warn("payment event not applied", "event_id", ev.ID, "order_id", pe.OrderID, "error", err)
			return c.JSON(http.StatusOK, echo.Map{"received": true})
		}
		if claimed {
			if rerr := h.dedupe.Release(ctx, ev.ID); rerr != nil {
				h.log.Warn("release payment event", "event_id", ev.ID, "error", rerr)
			}
		}
		h.log.Error("stripe webhook processing error", "event_id", ev.ID, "error", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "webhook processing error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"received": true})
}

type razorpayVerifyRequest struct {
	OrderID           string `json:"order_id" validate:"required"`
	RazorpayOrderID   string `json:"razorpay_order_id" validate:"required"`
	RazorpayPaymentID string `json:"razorpay_payment_id" validate:"required"`
	RazorpaySignature string `json:"razorpay_signature" validate:"required"`
}

func (h *Handler) RazorpayVerify(c echo.Context) error {
	actor, ok := marketplace.ActorFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req razorpayVerifyRequest
	if err := c.Bind(&req); err != nil {
		return marketplace.RespondError(c, marketplace.NewError(marketplace.KindValidation, "invalid request body"))
	}
	if err := c.Validate(&req); err != nil {
		return marketplace.RespondError(c, err)
	}
	if err := VerifyRazorpaySignature(req.RazorpayOrderID, req.RazorpayPaymentID, req.RazorpaySignature, h.cfg.RazorpayKeySecret); err != nil {
		h.log.Warn("razorpay verification rejected", "order_id", req.OrderID, "user_id", actor.UserID, "error", err)
		return marketplace.RespondError(c, err)
	}
	o, _, err := h.svc.ApplyPaymentEvent(c.Request().Context(), marketplace.PaymentEvent{
		OrderID:   req.OrderID,
		Provider:  marketplace.MethodRazorpay,
		PaymentID: req.RazorpayPaymentID,
		Succeeded: true,
		ActorID:   actor.UserID,
		Note:      "Razorpay payment verified",
	})
	if err != nil {
		return marketplace.RespondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "Payment verified", "order": o})
}

type refundRequest struct {
	OrderID string `json:"order_id" validate:"required"`
	Reason  string `json:"reason" validate:"required,max=500"`
}

func (h *Handler) Refund(c echo.Context) error {
	actor, ok := marketplace.ActorFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req refundRequest
	if err := c.Bind(&req); err != nil {
		return marketplace.RespondError(c, marketplace.NewError(marketplace.KindValidation, "invalid request body"))
	}
	if err := c.Validate(&req); err != nil {
		return marketplace.RespondError(c, err)
	}
	o, err := h.svc.RefundOrder(c.Request().Context(), actor, req.OrderID, req.Reason)
	if err != nil {
		return marketplace.RespondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "Refund processed successfully", "order": o})
}
