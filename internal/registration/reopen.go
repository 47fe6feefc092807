package registration

import (
	"context"
	"errors"

	"github.com/iliyamo/circle-registration/internal/apperr"
	"github.com/iliyamo/circle-registration/internal/checkout"
	"github.com/iliyamo/circle-registration/internal/model"
	"github.com/iliyamo/circle-registration/internal/repository"
)

// ReopenCheckout opens a new checkout session for the still Pending
// online payment of userID's registration.  The existing payment record
// is reused.
func (s *Service) ReopenCheckout(ctx context.Context, userID uint64, publicID string) (Result, error) {
	idx, err := s.deps.PublicIDs.Get(ctx, publicID)
	if errors.Is(err, repository.ErrPublicIDNotFound) {
		return Result{}, errRegistrationNotFound
	}
	if err != nil {
		return Result{}, apperr.Wrap(err)
	}
	if err := s.owns(ctx, userID, idx); err != nil {
		return Result{}, err
	}
	if idx.PaymentID == nil {
		return Result{}, apperr.Invalid("no_payment", "registration has nothing to pay")
	}
	payment, err := s.deps.Payments.GetByID(ctx, *idx.PaymentID)
	if err != nil {
		return Result{}, apperr.Wrap(err)
	}
	user, err := s.user(ctx, userID)
	if err != nil {
		return Result{}, err
	}

	sess, err := s.deps.Checkout.Reopen(ctx, payment.ID, user.Email)
	if errors.Is(err, checkout.ErrNotReopenable) {
		return Result{}, apperr.Invalid("payment_not_pending", "payment is not awaiting online payment")
	}
	if err != nil {
		return Result{}, apperr.Wrap(err)
	}
	return Result{
		PublicID:         publicID,
		BankTransferCode: payment.BankTransferCode,
		CheckoutURL:      sess.RedirectURL,
	}, nil
}

var errRegistrationNotFound = apperr.Missing("registration_not_found", "registration does not exist")

// owns hides registrations of other users behind not found.
func (s *Service) owns(ctx context.Context, userID uint64, idx *model.PublicIdentifier) error {
	switch idx.Collection {
	case model.CollectionApplications:
		a, err := s.deps.Applications.GetByID(ctx, idx.RecordID)
		if err != nil {
			return apperr.Wrap(err)
		}
		if a.UserID == userID {
			return nil
		}
	case model.CollectionTickets:
		t, err := s.deps.Tickets.GetByID(ctx, idx.RecordID)
		if err != nil {
			return apperr.Wrap(err)
		}
		if t.UserID != nil && *t.UserID == userID {
			return nil
		}
	}
	return errRegistrationNotFound
}
