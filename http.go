package cloak

import (
	"net/http"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// LoginRejectedMessage is the only detail a rejected login link reveals.
const LoginRejectedMessage = "Can't log you in"

const (
	RouteNameLogin = "cloak.login"
	RouteNameBegin = "cloak.begin"
	RouteNameEnd   = "cloak.end"
)

// HTTPController exposes the login link and cloak operations as router
// handlers. Handlers expect Sessions.Middleware to have loaded the
// request session.
type HTTPController struct {
	service      *Service
	logger       Logger
	ErrorHandler func(ctx router.Context, err error) error
}

// NewHTTPController returns a controller for svc.
func NewHTTPController(svc *Service) *HTTPController {
	h := &HTTPController{
		service: svc,
		logger:  defLogger{},
	}
	h.ErrorHandler = h.defaultErrHandler
	return h
}

func (h *HTTPController) WithLogger(logger Logger) *HTTPController {
	h.logger = normalizeLogger(logger)
	return h
}

// RegisterRoutes mounts the cloak routes of h on app.
func RegisterRoutes[T any](app router.Router[T], h *HTTPController) {
	app.Get("/login/:signature", h.Login).SetName(RouteNameLogin)
	app.Post("/cloak/:pk?", h.Cloak, h.ProtectedRoute(h.ErrorHandler)).SetName(RouteNameBegin)
	app.Post("/uncloak", h.Uncloak).SetName(RouteNameEnd)
}

// Mount installs the authentication and overlay middleware on r and
// registers the routes under the configured prefix. Call it before the
// host registers its own routes so they see the effective principal.
// The fiber app behind r must run Sessions.Middleware.
func Mount[T any](r router.Router[T], svc *Service) *HTTPController {
	h := NewHTTPController(svc).WithLogger(svc.logger)

	r.Use(h.Authenticate())
	r.Use(svc.Overlay().Middleware())

	prefix := normalizePrefix(svc.cfg.GetRoutePrefix())
	if prefix == "" {
		RegisterRoutes(r, h)
	} else {
		RegisterRoutes(r.Group(prefix), h)
	}

	return h
}

// Authenticate resolves the principal recorded in the session and places
// it in the request context and locals. Requests without one pass
// through.
func (h *HTTPController) Authenticate() router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			sess, ok := SessionFromRouterContext(ctx)
			if !ok {
				return next(ctx)
			}

			principal, err := AuthenticatedPrincipal(ctx.Context(), h.service.Directory(), sess)
			if err != nil {
				if !IsError(err, ErrUnauthenticated) {
					h.logger.Error("authenticate failed to resolve principal", "error", err)
				}
				return next(ctx)
			}

			ctx.SetContext(WithPrincipal(ctx.Context(), principal))
			ctx.Locals(LocalsPrincipalKey, principal)

			return next(ctx)
		}
	}
}

// ProtectedRoute rejects requests without an authenticated principal
// through errorHandler.
func (h *HTTPController) ProtectedRoute(errorHandler func(router.Context, error) error) router.MiddlewareFunc {
	if errorHandler == nil {
		errorHandler = h.defaultErrHandler
	}
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			if _, ok := PrincipalFromRouterContext(ctx); !ok {
				return errorHandler(ctx, ErrUnauthenticated)
			}
			return next(ctx)
		}
	}
}

// Login redeems a login link.
func (h *HTTPController) Login(ctx router.Context) error {
	sess, ok := SessionFromRouterContext(ctx)
	if !ok {
		return h.ErrorHandler(ctx, ErrNoSession)
	}

	principal, redirect, err := h.service.RedeemLoginLink(ctx.Context(), sess, ctx.Param("signature"))
	if err != nil {
		if IsLoginRejected(err) {
			return ctx.Status(http.StatusForbidden).SendString(LoginRejectedMessage)
		}
		return h.ErrorHandler(ctx, err)
	}

	if err := sess.Regenerate(); err != nil {
		return h.ErrorHandler(ctx, err)
	}

	if err := sess.Save(); err != nil {
		return h.ErrorHandler(ctx, err)
	}

	h.logger.Info("login link redeemed", "user", principal.PrincipalID())

	return ctx.Redirect(redirect, http.StatusFound)
}

// CloakRequest is the payload of a cloak request.
type CloakRequest struct {
	PK   string `form:"pk" json:"pk"`
	Next string `form:"next" json:"next"`
}

// Validate will run validation rules
func (r CloakRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.PK, validation.Required),
	)
}

// Cloak starts cloaking the authenticated principal as the requested
// user. A pk in the body takes precedence over the one in the path.
func (h *HTTPController) Cloak(ctx router.Context) error {
	actor, ok := PrincipalFromRouterContext(ctx)
	if !ok {
		return h.ErrorHandler(ctx, ErrUnauthenticated)
	}

	payload := h.bindCloakRequest(ctx)
	if payload.PK == "" {
		payload.PK = strings.TrimSpace(ctx.Param("pk"))
	}

	if err := payload.Validate(); err != nil {
		return h.ErrorHandler(ctx, ErrMissingTarget)
	}

	sess, ok := SessionFromRouterContext(ctx)
	if !ok {
		return h.ErrorHandler(ctx, ErrNoSession)
	}

	state, redirect, err := h.service.BeginCloak(ctx.Context(), LoadState(sess), actor, payload.PK, h.navigation(ctx, payload.Next))
	if err != nil {
		return h.ErrorHandler(ctx, err)
	}

	state.Persist(sess)
	if err := sess.Save(); err != nil {
		return h.ErrorHandler(ctx, err)
	}

	return ctx.Redirect(redirect, http.StatusFound)
}

// Uncloak ends the current cloak, if any.
func (h *HTTPController) Uncloak(ctx router.Context) error {
	sess, ok := SessionFromRouterContext(ctx)
	if !ok {
		return h.ErrorHandler(ctx, ErrNoSession)
	}

	actor, _ := PrincipalFromRouterContext(ctx)
	payload := h.bindCloakRequest(ctx)

	state, redirect := h.service.EndCloak(ctx.Context(), LoadState(sess), actor, h.navigation(ctx, payload.Next))

	state.Persist(sess)
	if err := sess.Save(); err != nil {
		return h.ErrorHandler(ctx, err)
	}

	return ctx.Redirect(redirect, http.StatusFound)
}

// bindCloakRequest reads the optional body. The next parameter falls
// back to the query string.
func (h *HTTPController) bindCloakRequest(ctx router.Context) CloakRequest {
	payload := CloakRequest{}
	if err := ctx.Bind(&payload); err != nil {
		h.logger.Debug("cloak request without a parsable body", "error", err)
		payload = CloakRequest{}
	}

	payload.PK = strings.TrimSpace(payload.PK)
	if payload.Next == "" {
		payload.Next = ctx.Query("next")
	}
	return payload
}

func (h *HTTPController) navigation(ctx router.Context, next string) Navigation {
	return Navigation{
		Next:    next,
		Referer: strings.Clone(ctx.Referer()),
		Host:    strings.Clone(ctx.Header(fiber.HeaderHost)),
	}
}

func (h *HTTPController) defaultErrHandler(ctx router.Context, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryInternal, "An unexpected server error occurred").
			WithCode(errors.CodeInternal)
	}

	h.logger.Info(
		"cloak request error",
		"error", richErr.Message,
		"category", richErr.Category,
		"path", ctx.OriginalURL(),
		"details", print.MaybePrettyJSON(richErr.Metadata),
	)

	code := richErr.Code
	if code == 0 {
		code = http.StatusInternalServerError
	}

	message := richErr.Message
	if code >= http.StatusInternalServerError {
		message = http.StatusText(code)
	}

	return ctx.Status(code).SendString(message)
}
