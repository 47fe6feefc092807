package webhook

import (
	"context"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/checkout/session"
)

// LineItems returns the product references bought in a checkout
// session.
type LineItems interface {
	ProductRefs(ctx context.Context, sessionID string) ([]string, error)
}

// StripeLineItems reads line items from the Checkout Sessions API.
type StripeLineItems struct {
	Sessions *session.Client
}

func (s StripeLineItems) ProductRefs(ctx context.Context, sessionID string) ([]string, error) {
	params := &stripe.CheckoutSessionListLineItemsParams{Session: stripe.String(sessionID)}
	params.Context = ctx
	it := s.Sessions.ListLineItems(params)
	var refs []string
	for it.Next() {
		refs = appendRef(refs, it.LineItem())
	}
	if err := it.Err(); err != nil {
		return nil, Error.Wrap(err)
	}
	return refs, nil
}

func appendRef(refs []string, li *stripe.LineItem) []string {
	if li == nil || li.Price == nil || li.Price.Product == nil || li.Price.Product.ID == "" {
		return refs
	}
	return append(refs, li.Price.Product.ID)
}
