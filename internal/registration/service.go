// Package registration issues applications and tickets.  A registration
// is validated completely before anything is written; once writing
// starts, later failures leave the earlier records in place rather than
// unwinding them across tables.
package registration

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/circle-registration/internal/checkout"
	"github.com/iliyamo/circle-registration/internal/model"
	"github.com/iliyamo/circle-registration/internal/publicid"
	"github.com/iliyamo/circle-registration/internal/queue"
	"github.com/iliyamo/circle-registration/internal/repository"
)

// Checkout opens gateway sessions for priced items.
type Checkout interface {
	Open(ctx context.Context, req checkout.OpenRequest) (checkout.Session, error)
	Reopen(ctx context.Context, paymentID uint64, email string) (checkout.Session, error)
}

// Notifier receives the created event of each primary registration.
type Notifier interface {
	RegistrationCreated(ctx context.Context, ev queue.RegistrationCreatedEvent)
}

// Deps groups the collaborators of a Service.
type Deps struct {
	Events       *repository.EventRepo
	Stores       *repository.StoreRepo
	Applications *repository.ApplicationRepo
	Tickets      *repository.TicketRepo
	PublicIDs    *repository.PublicIDRepo
	Payments     *repository.PaymentRepo
	Vouchers     *repository.VoucherRepo
	Users        *repository.UserRepo
	Checkout     Checkout
	Notifier     Notifier
	IDs          *publicid.Generator
}

// Service is the registration orchestrator.
type Service struct {
	log     *zap.Logger
	deps    Deps
	loc     *time.Location
	retries int
	Now     func() time.Time
}

// New returns a Service.  loc is the zone bank transfer codes are
// rendered in; retries bounds public identifier collisions.
func New(log *zap.Logger, deps Deps, loc *time.Location, retries int) *Service {
	if loc == nil {
		loc = time.UTC
	}
	if retries < 1 {
		retries = 1
	}
	return &Service{log: log, deps: deps, loc: loc, retries: retries, Now: time.Now}
}

// ApplicationInput is a circle's application for a space.
type ApplicationInput struct {
	EventID       uint64
	SpaceTypeID   uint64
	CircleName    string
	IsAdult       bool
	PaymentMethod model.PaymentMethod
	VoucherID     *uint64
	UnionCircleID *string
}

// TicketInput is a ticket purchase.
type TicketInput struct {
	StoreID       uint64
	TypeID        uint64
	PaymentMethod model.PaymentMethod
	VoucherID     *uint64
}

// Result is what the caller of a registration learns.  CheckoutURL is set
// when an online payment is due; RetryCheckout reports that the payment
// exists but its session could not be opened.
type Result struct {
	PublicID         string  `json:"public_id"`
	BankTransferCode string  `json:"bank_transfer_code"`
	CheckoutURL      *string `json:"checkout_url"`
	RetryCheckout    bool    `json:"retry_checkout,omitempty"`
}

// BankTransferCode renders the short human reference shown for bank
// transfers: day, hour and minute of t in loc.  It is not unique and is
// never used as a lookup key.
func BankTransferCode(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("021504")
}
