package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/circle-registration/internal/apperr"
	"github.com/iliyamo/circle-registration/internal/middleware"
	"github.com/iliyamo/circle-registration/internal/model"
	"github.com/iliyamo/circle-registration/internal/registration"
)

// RegistrationHandler exposes the registration orchestrator.  All
// routes assume JWTAuth and RequireRole already ran.
type RegistrationHandler struct {
	Svc *registration.Service
	Log *zap.Logger
}

// NewRegistrationHandler panics on a nil service, like every handler
// constructor here.
func NewRegistrationHandler(svc *registration.Service, log *zap.Logger) *RegistrationHandler {
	if svc == nil {
		panic("nil service passed to NewRegistrationHandler")
	}
	return &RegistrationHandler{Svc: svc, Log: log}
}

type applicationRequest struct {
	EventID       uint64  `json:"event_id" validate:"required"`
	SpaceTypeID   uint64  `json:"space_type_id" validate:"required"`
	CircleName    string  `json:"circle_name" validate:"required,max=128"`
	IsAdult       bool    `json:"is_adult"`
	PaymentMethod string  `json:"payment_method" validate:"required,oneof=online bankTransfer voucher"`
	VoucherID     *uint64 `json:"voucher_id" validate:"omitempty,min=1"`
	UnionCircleID *string `json:"union_circle_id" validate:"omitempty,max=64"`
}

// CreateApplication handles POST /v1/applications.  It answers 201 with
// the public identifier, the bank transfer code and, for online
// payments, the checkout URL.
func (h *RegistrationHandler) CreateApplication(c echo.Context) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return unauthorized(c)
	}
	var req applicationRequest
	if err := bindValid(c, &req); err != nil {
		return writeError(c, h.Log, err)
	}
	method, _ := model.ParsePaymentMethod(req.PaymentMethod)
	res, err := h.Svc.CreateApplication(c.Request().Context(), userID, registration.ApplicationInput{
		EventID:       req.EventID,
		SpaceTypeID:   req.SpaceTypeID,
		CircleName:    req.CircleName,
		IsAdult:       req.IsAdult,
		PaymentMethod: method,
		VoucherID:     req.VoucherID,
		UnionCircleID: req.UnionCircleID,
	})
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, res)
}

type ticketRequest struct {
	StoreID       uint64  `json:"store_id" validate:"required"`
	TypeID        uint64  `json:"type_id" validate:"required"`
	PaymentMethod string  `json:"payment_method" validate:"required,oneof=online bankTransfer voucher"`
	VoucherID     *uint64 `json:"voucher_id" validate:"omitempty,min=1"`
}

// CreateTicket handles POST /v1/tickets.
func (h *RegistrationHandler) CreateTicket(c echo.Context) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return unauthorized(c)
	}
	var req ticketRequest
	if err := bindValid(c, &req); err != nil {
		return writeError(c, h.Log, err)
	}
	method, _ := model.ParsePaymentMethod(req.PaymentMethod)
	res, err := h.Svc.CreateTicket(c.Request().Context(), userID, registration.TicketInput{
		StoreID:       req.StoreID,
		TypeID:        req.TypeID,
		PaymentMethod: method,
		VoucherID:     req.VoucherID,
	})
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, res)
}

// ReopenCheckout handles POST /v1/registrations/:publicId/checkout for
// applications and tickets alike; the public identifier names the
// collection.
func (h *RegistrationHandler) ReopenCheckout(c echo.Context) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return unauthorized(c)
	}
	res, err := h.Svc.ReopenCheckout(c.Request().Context(), userID, c.Param("publicId"))
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, res)
}

type adminTicketRequest struct {
	Email  string `json:"email" validate:"required,email,max=255"`
	TypeID uint64 `json:"type_id" validate:"required"`
}

// AdminCreateTicket handles POST /v1/admin/stores/:storeId/tickets.  The
// operator's organization comes from the token's org claim.
func (h *RegistrationHandler) AdminCreateTicket(c echo.Context) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return unauthorized(c)
	}
	org, ok := middleware.OrganizationID(c)
	if !ok {
		return writeError(c, h.Log, apperr.Denied("organization_mismatch", "token carries no organization"))
	}
	storeID, err := strconv.ParseUint(c.Param("storeId"), 10, 64)
	if err != nil || storeID == 0 {
		return writeError(c, h.Log, apperr.Invalid("invalid_store_id", "invalid store id"))
	}
	var req adminTicketRequest
	if err := bindValid(c, &req); err != nil {
		return writeError(c, h.Log, err)
	}
	echoed, err := h.Svc.CreateTicketForAdmin(c.Request().Context(),
		registration.Admin{UserID: userID, OrganizationID: org}, storeID, req.Email, req.TypeID)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, echoed)
}
