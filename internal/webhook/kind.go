package webhook

import "github.com/stripe/stripe-go/v81"

// EventKind is the closed set of gateway events the reconciler acts on.
type EventKind int

const (
	KindUnknown EventKind = iota
	KindSessionCompleted
	KindAsyncSucceeded
	KindAsyncFailed
	KindChargeUpdated
)

// ParseKind maps a Stripe event type to its kind.  Anything else is
// KindUnknown and acknowledged without effect.
func ParseKind(t stripe.EventType) EventKind {
	switch t {
	case stripe.EventTypeCheckoutSessionCompleted:
		return KindSessionCompleted
	case stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		return KindAsyncSucceeded
	case stripe.EventTypeCheckoutSessionAsyncPaymentFailed:
		return KindAsyncFailed
	case stripe.EventTypeChargeUpdated:
		return KindChargeUpdated
	}
	return KindUnknown
}

func (k EventKind) String() string {
	switch k {
	case KindSessionCompleted:
		return "session_completed"
	case KindAsyncSucceeded:
		return "async_payment_succeeded"
	case KindAsyncFailed:
		return "async_payment_failed"
	case KindChargeUpdated:
		return "charge_updated"
	}
	return "unknown"
}

func (k EventKind) isSession() bool {
	return k == KindSessionCompleted || k == KindAsyncSucceeded || k == KindAsyncFailed
}
