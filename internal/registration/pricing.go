package registration

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/iliyamo/circle-registration/internal/apperr"
	"github.com/iliyamo/circle-registration/internal/model"
	"github.com/iliyamo/circle-registration/internal/repository"
)

// quote is a checked price awaiting voucher redemption.
type quote struct {
	amount    int64
	voucherID *uint64
	target    model.VoucherTarget
}

// price validates the voucher (if any) against target and the chosen
// method and returns what remains payable.  Nothing is consumed yet.
func (s *Service) price(ctx context.Context, base int64, method model.PaymentMethod, voucherID *uint64, target model.VoucherTarget) (quote, error) {
	q := quote{amount: base, voucherID: voucherID, target: target}
	if voucherID != nil {
		v, err := s.deps.Vouchers.Get(ctx, *voucherID)
		if errors.Is(err, repository.ErrVoucherNotFound) {
			return q, apperr.Missing("voucher_not_found", "voucher does not exist")
		}
		if err != nil {
			return q, apperr.Wrap(err)
		}
		if !v.Matches(target) || v.Exhausted() {
			return q, errVoucherUnavailable
		}
		q.amount = base - v.Discount
		if q.amount < 0 {
			q.amount = 0
		}
	}
	if method == model.MethodVoucher && q.amount > 0 {
		return q, apperr.Invalid("voucher_insufficient", "voucher does not cover the full price")
	}
	return q, nil
}

var errVoucherUnavailable = apperr.Invalid("voucher_unavailable", "voucher cannot be used for this item")

// redeem consumes the quoted voucher.  It runs before any registration
// record is written so a lost race leaves nothing behind.
func (s *Service) redeem(ctx context.Context, q quote) error {
	if q.voucherID == nil {
		return nil
	}
	ok, err := s.deps.Vouchers.Redeem(ctx, q.target, *q.voucherID)
	if errors.Is(err, repository.ErrVoucherNotFound) {
		return apperr.Missing("voucher_not_found", "voucher does not exist")
	}
	if err != nil {
		return apperr.Wrap(err)
	}
	if !ok {
		return errVoucherUnavailable
	}
	return nil
}

// release returns the use taken by redeem after the record insert failed.
func (s *Service) release(ctx context.Context, q quote) {
	if q.voucherID == nil {
		return
	}
	if err := s.deps.Vouchers.Release(ctx, *q.voucherID); err != nil {
		s.log.Error("voucher release failed", zap.Uint64("voucher_id", *q.voucherID), zap.Error(err))
	}
}

// payable checks the gateway can be asked for amount.
func payable(amount int64, method model.PaymentMethod, productRef *string) error {
	if amount > 0 && method == model.MethodOnline && (productRef == nil || *productRef == "") {
		return apperr.New(apperr.Internal, "product_not_configured", "item has no gateway product")
	}
	return nil
}
