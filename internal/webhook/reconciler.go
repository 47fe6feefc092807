// Package webhook reconciles Stripe events into payment records and the
// status of the registrations they pay for.
//
// Events may arrive more than once and in any order.  Every change is a
// compare-and-swap from an expected state, so replaying an event, or
// receiving a stale one, leaves the records as they were.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/stripe/stripe-go/v81"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/iliyamo/circle-registration/internal/catalog"
	"github.com/iliyamo/circle-registration/internal/checkout"
	"github.com/iliyamo/circle-registration/internal/model"
	"github.com/iliyamo/circle-registration/internal/queue"
	"github.com/iliyamo/circle-registration/internal/repository"
)

// Error is the error class for reconciliation failures.  Only
// infrastructure failures are returned; the gateway should retry those.
var Error = errs.Class("webhook")

// Diagnostics receives events that were acknowledged without effect.
type Diagnostics interface {
	PaymentDiagnostic(ctx context.Context, ev queue.PaymentDiagnosticEvent)
}

// Deps groups the collaborators of a Reconciler.
type Deps struct {
	Payments     *repository.PaymentRepo
	Users        *repository.UserRepo
	Tickets      *repository.TicketRepo
	Applications *repository.ApplicationRepo
	Catalog      *catalog.Catalog
	LineItems    LineItems
	Events       *EventLog
	Diagnostics  Diagnostics
}

// Reconciler applies gateway events.
type Reconciler struct {
	log  *zap.Logger
	env  string
	deps Deps
	Now  func() time.Time
}

// NewReconciler returns a Reconciler.  env tags every diagnostic.
func NewReconciler(log *zap.Logger, env string, deps Deps) *Reconciler {
	return &Reconciler{log: log, env: env, deps: deps, Now: time.Now}
}

// diagnostic is the context of one acknowledged but unapplied event.
type diagnostic struct {
	event     *stripe.Event
	intentID  string
	sessionID string
	paymentID *uint64
}

// Handle applies ev.  A nil error means the event may be acknowledged.
func (r *Reconciler) Handle(ctx context.Context, ev stripe.Event) error {
	log := r.log.With(zap.String("event_id", ev.ID), zap.String("event_type", string(ev.Type)))
	if r.deps.Events.Seen(ctx, ev.ID) {
		log.Debug("event already processed")
		return nil
	}

	kind := ParseKind(ev.Type)
	var err error
	switch {
	case kind.isSession():
		err = r.session(ctx, &ev, kind)
	case kind == KindChargeUpdated:
		err = r.charge(ctx, &ev)
	default:
		log.Debug("event type ignored")
		return nil
	}
	if err != nil {
		log.Error("reconcile failed", zap.Error(err))
		return err
	}
	r.deps.Events.Mark(ctx, ev.ID)
	return nil
}

func (r *Reconciler) session(ctx context.Context, ev *stripe.Event, kind EventKind) error {
	d := diagnostic{event: ev}
	var sess stripe.CheckoutSession
	if err := decode(ev, &sess); err != nil {
		r.diagnose(ctx, d, "malformed_payload")
		return nil
	}
	d.sessionID = sess.ID
	if sess.PaymentIntent != nil {
		d.intentID = sess.PaymentIntent.ID
	}

	email := sessionEmail(&sess)
	if email == "" {
		r.diagnose(ctx, d, "missing_email")
		return nil
	}

	refs, err := r.productRefs(ctx, &sess)
	if err != nil {
		return Error.Wrap(err)
	}
	refs, err = r.deps.Catalog.Filter(ctx, refs)
	if err != nil {
		return Error.Wrap(err)
	}
	if len(refs) == 0 {
		// Not ours: the account also sells outside this service.
		return nil
	}

	user, err := r.deps.Users.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrUserNotFound) {
		r.diagnose(ctx, d, "user_not_found")
		return nil
	}
	if err != nil {
		return Error.Wrap(err)
	}

	p, err := r.findPayment(ctx, &sess, user.ID, refs)
	if errors.Is(err, repository.ErrPaymentNotFound) {
		r.diagnose(ctx, d, "payment_not_found")
		return nil
	}
	if err != nil {
		return Error.Wrap(err)
	}
	d.paymentID = &p.ID

	var to model.PaymentStatus
	switch kind {
	case KindSessionCompleted:
		if sess.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
			r.log.Info("checkout completed, payment still processing",
				zap.String("event_id", ev.ID), zap.Uint64("payment_id", p.ID))
			return nil
		}
		to = model.PaymentPaid
	case KindAsyncSucceeded:
		to = model.PaymentPaid
	case KindAsyncFailed:
		to = model.PaymentFailure
	}

	now := r.Now().UTC()
	upd := repository.PaymentUpdate{At: now}
	if to == model.PaymentPaid {
		upd.SessionID = &d.sessionID
		if d.intentID != "" {
			upd.IntentID = &d.intentID
		}
	}
	applied, err := r.deps.Payments.ApplyTransition(ctx, p.ID, model.PaymentPending, to, upd)
	if err != nil {
		return Error.Wrap(err)
	}
	if !applied {
		// A previous delivery may have moved the payment and failed before
		// projecting it; projecting again is harmless.
		cur, err := r.deps.Payments.GetByID(ctx, p.ID)
		if err != nil {
			return Error.Wrap(err)
		}
		if cur.Status != to {
			r.log.Info("payment already settled", zap.Uint64("payment_id", p.ID),
				zap.Stringer("status", cur.Status), zap.String("event_id", ev.ID))
			return nil
		}
	}
	return r.project(ctx, p, to, now)
}

// findPayment prefers the payment named in the session metadata and
// falls back to the oldest Pending online payment of the user for one of
// refs.
func (r *Reconciler) findPayment(ctx context.Context, sess *stripe.CheckoutSession, userID uint64, refs []string) (*model.Payment, error) {
	if id, err := strconv.ParseUint(sess.Metadata[checkout.MetadataPaymentID], 10, 64); err == nil {
		p, err := r.deps.Payments.GetByID(ctx, id)
		switch {
		case err == nil:
			if p.UserID != nil && *p.UserID == userID && p.Method == model.MethodOnline {
				return p, nil
			}
		case !errors.Is(err, repository.ErrPaymentNotFound):
			return nil, err
		}
	}
	return r.deps.Payments.FindOne(ctx, userID, model.PaymentPending, model.MethodOnline, refs)
}

// project carries a payment's new status over to what it pays for.
func (r *Reconciler) project(ctx context.Context, p *model.Payment, to model.PaymentStatus, now time.Time) error {
	switch p.Target.Kind {
	case model.TargetTicket:
		if to != model.PaymentPaid {
			return nil
		}
		ok, err := r.deps.Tickets.TransitionWithLinked(ctx, p.Target.ID, model.StatusProvisional, model.StatusConfirmed, now)
		if err != nil {
			return Error.Wrap(err)
		}
		if !ok {
			r.log.Info("ticket not provisional, left as is", zap.Uint64("ticket_id", p.Target.ID))
		}
	case model.TargetApplication:
		if err := r.deps.Applications.Touch(ctx, p.Target.ID, now); err != nil {
			return Error.Wrap(err)
		}
	}
	return nil
}

func (r *Reconciler) charge(ctx context.Context, ev *stripe.Event) error {
	d := diagnostic{event: ev}
	var ch stripe.Charge
	if err := decode(ev, &ch); err != nil {
		r.diagnose(ctx, d, "malformed_payload")
		return nil
	}
	if ch.PaymentIntent != nil {
		d.intentID = ch.PaymentIntent.ID
	}
	if d.intentID == "" {
		r.diagnose(ctx, d, "charge_payment_not_found")
		return nil
	}

	p, err := r.deps.Payments.FindByGatewayIntentID(ctx, d.intentID)
	if errors.Is(err, repository.ErrPaymentNotFound) {
		r.diagnose(ctx, d, "charge_payment_not_found")
		return nil
	}
	if err != nil {
		return Error.Wrap(err)
	}

	var res model.PaymentResult
	if pm := ch.PaymentMethodDetails; pm != nil && pm.Card != nil && pm.Card.Brand != "" {
		brand := string(pm.Card.Brand)
		res.CardBrand = &brand
	}
	if ch.ReceiptURL != "" {
		receipt := ch.ReceiptURL
		res.ReceiptURL = &receipt
	}
	if res.CardBrand == nil && res.ReceiptURL == nil {
		return nil
	}
	return Error.Wrap(r.deps.Payments.MergeResult(ctx, p.ID, res, r.Now().UTC()))
}

// diagnose logs and publishes an event acknowledged without effect.
func (r *Reconciler) diagnose(ctx context.Context, d diagnostic, reason string) {
	fields := []zap.Field{
		zap.String("env", r.env),
		zap.String("reason", reason),
		zap.String("event_id", d.event.ID),
		zap.String("event_type", string(d.event.Type)),
		zap.String("payment_intent_id", d.intentID),
		zap.String("session_id", d.sessionID),
	}
	if d.paymentID != nil {
		fields = append(fields, zap.Uint64("payment_id", *d.paymentID))
	}
	r.log.Warn("payment event not applied", fields...)

	if r.deps.Diagnostics == nil {
		return
	}
	r.deps.Diagnostics.PaymentDiagnostic(ctx, queue.PaymentDiagnosticEvent{
		Env:       r.env,
		EventID:   d.event.ID,
		EventType: string(d.event.Type),
		IntentID:  d.intentID,
		SessionID: d.sessionID,
		PaymentID: d.paymentID,
		Reason:    reason,
		At:        r.Now().UTC().Format(time.RFC3339Nano),
	})
}

func (r *Reconciler) productRefs(ctx context.Context, sess *stripe.CheckoutSession) ([]string, error) {
	if sess.LineItems != nil && len(sess.LineItems.Data) > 0 {
		var refs []string
		for _, li := range sess.LineItems.Data {
			refs = appendRef(refs, li)
		}
		return refs, nil
	}
	if r.deps.LineItems == nil || sess.ID == "" {
		return nil, nil
	}
	return r.deps.LineItems.ProductRefs(ctx, sess.ID)
}

func sessionEmail(sess *stripe.CheckoutSession) string {
	if sess.CustomerDetails != nil && sess.CustomerDetails.Email != "" {
		return sess.CustomerDetails.Email
	}
	return sess.CustomerEmail
}

func decode(ev *stripe.Event, v any) error {
	if ev.Data == nil {
		return errs.New("event has no data")
	}
	return json.Unmarshal(ev.Data.Raw, v)
}
