package router // package router registers the HTTP routes of the API

import (
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/iliyamo/circle-registration/internal/handler"
	"github.com/iliyamo/circle-registration/internal/middleware"
)

// New returns an Echo instance with the validator, panic recovery and
// request logging installed.
func New(log *zap.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = middleware.NewValidator()
	e.Use(echomw.Recover())
	e.Use(middleware.RequestLog(log))
	return e
}

// RegisterRoutes registers routes that need no authentication: the
// health probe.
func RegisterRoutes(e *echo.Echo, db handler.Pinger) {
	e.GET("/healthz", handler.Health(db))
}

// RegisterRegistration registers the registration endpoints.  Every
// route requires a valid access token; limiter runs after JWTAuth so
// buckets can be keyed by user.
func RegisterRegistration(e *echo.Echo, h *handler.RegistrationHandler, jwtSecret string, limiter echo.MiddlewareFunc) {
	g := e.Group("/v1", middleware.JWTAuth(jwtSecret), limiter)

	// Circles and attendees register for themselves.
	self := g.Group("", middleware.RequireRole(middleware.RoleCustomer, middleware.RoleAdmin))
	self.POST("/applications", h.CreateApplication)
	self.POST("/tickets", h.CreateTicket)
	self.POST("/registrations/:publicId/checkout", h.ReopenCheckout)

	// Operators issue tickets for their organization's stores.
	admin := g.Group("/admin", middleware.RequireRole(middleware.RoleAdmin))
	admin.POST("/stores/:storeId/tickets", h.AdminCreateTicket)
}

// RegisterWebhooks registers the payment gateway callback.  It is
// authenticated by signature, not by token, and never rate limited.
func RegisterWebhooks(e *echo.Echo, h *handler.StripeWebhookHandler) {
	e.POST("/v1/webhooks/stripe", h.Receive)
}
