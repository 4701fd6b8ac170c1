package marketplace

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

// RequestValidator plugs go-playground/validator into echo's c.Validate.
type RequestValidator struct {
	v *validator.Validate
}

func NewRequestValidator() *RequestValidator {
	return &RequestValidator{v: validator.New(validator.WithRequiredStructEnabled())}
}

func (rv *RequestValidator) Validate(i interface{}) error {
	err := rv.v.Struct(i)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	details := make([]any, 0, len(verrs)*2)
	for _, fe := range verrs {
		details = append(details, fieldName(fe), fe.Tag())
	}
	return NewError(KindValidation, "request validation failed", details...)
}

// fieldName drops the request struct's own name from the namespace.
func fieldName(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		ns = ns[i+1:]
	}
	return strings.ToLower(ns)
}

// StatusFor maps an error kind onto its HTTP status.
func StatusFor(kind Kind) int {
	switch kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindInvalidOperation, KindValidation, KindUnauthorized:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// RespondError writes err as JSON. Business errors keep their kind and
// details; anything else is logged and reported as an internal error.
func RespondError(c echo.Context, err error) error {
	var e *Error
	if errors.As(err, &e) {
		body := echo.Map{"error": e.Message, "kind": e.Kind}
		if len(e.Details) > 0 {
			body["details"] = e.Details
		}
		return c.JSON(StatusFor(e.Kind), body)
	}
	slog.Error("request failed", "method", c.Request().Method, "path", c.Path(), "error", err)
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
}

// ErrorHandler is an echo.HTTPErrorHandler that understands business errors
// and falls back to echo's default for everything else.
func ErrorHandler(e *echo.Echo) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		if KindOf(err) != "" {
			_ = RespondError(c, err)
			return
		}
		e.DefaultHTTPErrorHandler(err, c)
	}
}

// ActorFrom reads the identity the JWT middleware put on the context.
func ActorFrom(c echo.Context) (Actor, bool) {
	userID, _ := c.Get("user_id").(string)
	role, _ := c.Get("role").(string)
	if userID == "" {
		return Actor{}, false
	}
	return Actor{UserID: userID, Role: Role(role)}, true
}

// bind decodes and validates a request body.
func bind(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return NewError(KindValidation, "invalid request body")
	}
	return c.Validate(req)
}
