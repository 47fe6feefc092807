package registration

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/circle-registration/internal/apperr"
	"github.com/iliyamo/circle-registration/internal/checkout"
	"github.com/iliyamo/circle-registration/internal/model"
	"github.com/iliyamo/circle-registration/internal/repository"
)

// paymentPlan is the payment side of a registration being written.
type paymentPlan struct {
	userID     *uint64
	email      string
	method     model.PaymentMethod
	amount     int64
	productRef *string
	bankCode   string
	target     model.PaymentTarget
	collection model.Collection
	now        time.Time
}

// settle creates the payment record, if any, and opens a checkout for
// online payments.  A failed gateway call is logged and reported through
// Result.RetryCheckout; the record stays Pending.
func (s *Service) settle(ctx context.Context, p paymentPlan, res *Result) (*uint64, error) {
	if p.amount <= 0 {
		return nil, nil
	}
	ref := ""
	if p.productRef != nil {
		ref = *p.productRef
	}
	switch p.method {
	case model.MethodOnline:
		sess, err := s.deps.Checkout.Open(ctx, checkout.OpenRequest{
			Amount:           p.amount,
			ProductRef:       ref,
			UserID:           p.userID,
			Email:            p.email,
			Target:           p.target,
			BankTransferCode: p.bankCode,
			Metadata:         map[string]string{"collection": string(p.collection)},
		})
		if err != nil {
			if sess.PaymentID == nil {
				return nil, apperr.Wrap(err)
			}
			s.log.Warn("checkout not opened, payment left pending",
				zap.Uint64("payment_id", *sess.PaymentID), zap.Error(err))
			res.RetryCheckout = true
		}
		res.CheckoutURL = sess.RedirectURL
		return sess.PaymentID, nil
	case model.MethodBankTransfer:
		id, err := s.deps.Payments.Create(ctx, repository.NewPayment{
			UserID:           p.userID,
			ProductRef:       ref,
			Method:           model.MethodBankTransfer,
			BankTransferCode: p.bankCode,
			Amount:           p.amount,
			Target:           p.target,
			CreatedAt:        p.now,
		})
		if err != nil {
			return nil, apperr.Wrap(err)
		}
		return &id, nil
	}
	return nil, apperr.Invalid("payment_method_not_allowed", "payment method cannot settle a payable amount")
}

// assign derives and stores the public identifier of a record, retrying
// with a fresh timestamp when the identifier is already taken.
func (s *Service) assign(ctx context.Context, c model.Collection, recordID, refID uint64, paymentID *uint64) (string, error) {
	var err error
	for attempt := 0; attempt < s.retries; attempt++ {
		pid := s.deps.IDs.Generate(string(c), recordID, refID)
		err = s.deps.PublicIDs.Assign(ctx, model.PublicIdentifier{
			PublicID:   pid,
			Collection: c,
			RecordID:   recordID,
			PaymentID:  paymentID,
			CreatedAt:  s.Now().UTC(),
		})
		if err == nil {
			return pid, nil
		}
		if !errors.Is(err, repository.ErrDuplicate) {
			return "", apperr.Wrap(err)
		}
		s.log.Warn("public id collision", zap.String("collection", string(c)),
			zap.Uint64("record_id", recordID), zap.Int("attempt", attempt+1))
		time.Sleep(time.Millisecond)
	}
	return "", apperr.Wrap(err)
}
