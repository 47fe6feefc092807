// Package checkout opens Stripe Checkout sessions for registration fees
// and links them to internal payment records.
package checkout

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/stripe/stripe-go/v81"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/iliyamo/circle-registration/internal/config"
	"github.com/iliyamo/circle-registration/internal/model"
	"github.com/iliyamo/circle-registration/internal/repository"
)

// Error is the error class for checkout failures.
var Error = errs.Class("checkout")

// ErrNotReopenable is returned when a checkout is requested again for a
// payment that is no longer awaiting an online payment.
var ErrNotReopenable = Error.New("payment is not awaiting online payment")

// MetadataPaymentID is the session metadata key carrying the internal
// payment id.
const MetadataPaymentID = "payment_id"

// SessionClient is the part of the Stripe Checkout Sessions API the
// gateway uses.  *session.Client satisfies it.
type SessionClient interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// PaymentStore is the part of the payment record store the gateway uses.
type PaymentStore interface {
	Create(ctx context.Context, p repository.NewPayment) (uint64, error)
	GetByID(ctx context.Context, id uint64) (*model.Payment, error)
	AttachSession(ctx context.Context, id uint64, sessionID string, at time.Time) error
}

// OpenRequest describes one priced item to collect online.
type OpenRequest struct {
	Amount           int64
	ProductRef       string
	UserID           *uint64
	Email            string
	Target           model.PaymentTarget
	BankTransferCode string
	Metadata         map[string]string
}

// Session is the outcome of Open.  Both fields are nil for free items.
type Session struct {
	RedirectURL *string
	PaymentID   *uint64
}

// Gateway creates payment records and the Checkout sessions that settle
// them.
type Gateway struct {
	log      *zap.Logger
	cfg      config.StripeConfig
	sessions SessionClient
	payments PaymentStore
	Now      func() time.Time
}

// NewGateway returns a Gateway.
func NewGateway(log *zap.Logger, cfg config.StripeConfig, sessions SessionClient, payments PaymentStore) *Gateway {
	return &Gateway{log: log, cfg: cfg, sessions: sessions, payments: payments, Now: time.Now}
}

// Open records a Pending online payment and opens a Checkout session
// for it.  The record is written first so the reconciler has a target
// even when the gateway call fails; such a record stays Pending and can
// be retried with Reopen.  Free items (amount 0) create nothing.
func (g *Gateway) Open(ctx context.Context, req OpenRequest) (Session, error) {
	if req.Amount <= 0 {
		return Session{}, nil
	}
	now := g.Now().UTC()
	id, err := g.payments.Create(ctx, repository.NewPayment{
		UserID:           req.UserID,
		ProductRef:       req.ProductRef,
		Method:           model.MethodOnline,
		BankTransferCode: req.BankTransferCode,
		Amount:           req.Amount,
		Target:           req.Target,
		CreatedAt:        now,
	})
	if err != nil {
		return Session{}, Error.Wrap(err)
	}

	url, err := g.openSession(ctx, id, 0, req.Amount, req.ProductRef, req.Email, req.Metadata)
	if err != nil {
		g.log.Warn("checkout session failed, payment left pending",
			zap.Uint64("payment_id", id), zap.Error(err))
		return Session{PaymentID: &id}, err
	}
	return Session{RedirectURL: &url, PaymentID: &id}, nil
}

// Reopen opens a fresh session against an existing Pending online
// payment.  It never creates a second payment record.
func (g *Gateway) Reopen(ctx context.Context, paymentID uint64, email string) (Session, error) {
	p, err := g.payments.GetByID(ctx, paymentID)
	if err != nil {
		return Session{}, Error.Wrap(err)
	}
	if p.Status != model.PaymentPending || p.Method != model.MethodOnline {
		return Session{}, ErrNotReopenable
	}
	attempt := g.Now().UnixMilli()
	url, err := g.openSession(ctx, p.ID, attempt, p.Amount, p.ProductRef, email, nil)
	if err != nil {
		return Session{PaymentID: &p.ID}, err
	}
	return Session{RedirectURL: &url, PaymentID: &p.ID}, nil
}

func (g *Gateway) openSession(ctx context.Context, paymentID uint64, attempt int64, amount int64, productRef, email string, meta map[string]string) (string, error) {
	if g.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()
	}
	ref := strconv.FormatUint(paymentID, 10)

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(g.cfg.SuccessURL),
		CancelURL:         stripe.String(g.cfg.CancelURL),
		ClientReferenceID: stripe.String(ref),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(g.cfg.Currency),
				Product:    stripe.String(productRef),
				UnitAmount: stripe.Int64(amount),
			},
			Quantity: stripe.Int64(1),
		}},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: map[string]string{MetadataPaymentID: ref},
		},
	}
	if email != "" {
		params.CustomerEmail = stripe.String(email)
	}
	params.Context = ctx
	params.SetIdempotencyKey(fmt.Sprintf("checkout-%d-%d", paymentID, attempt))
	for k, v := range meta {
		params.AddMetadata(k, v)
	}
	params.AddMetadata(MetadataPaymentID, ref)

	s, err := g.sessions.New(params)
	if err != nil {
		return "", Error.Wrap(err)
	}
	if err := g.payments.AttachSession(ctx, paymentID, s.ID, g.Now().UTC()); err != nil {
		g.log.Warn("attach checkout session failed", zap.Uint64("payment_id", paymentID), zap.Error(err))
	}
	return s.URL, nil
}
