package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/circle-registration/internal/database"
	"github.com/iliyamo/circle-registration/internal/model"
)

// VoucherRepo is the voucher ledger.
type VoucherRepo struct {
	db *sql.DB
}

// NewVoucherRepo returns a new VoucherRepo bound to the given database.
func NewVoucherRepo(db *sql.DB) *VoucherRepo { return &VoucherRepo{db: db} }

// Get returns a voucher or ErrVoucherNotFound.
func (r *VoucherRepo) Get(ctx context.Context, id uint64) (*model.Voucher, error) {
	var v model.Voucher
	var typeID, limit sql.NullInt64
	err := r.db.QueryRowContext(ctx, `SELECT id, code, target_kind, target_id, target_type_id, discount,
		used_count, used_count_limit, created_at, updated_at FROM vouchers WHERE id = ?`, id).Scan(
		&v.ID, &v.Code, &v.Target.Kind, &v.Target.ID, &typeID, &v.Discount,
		&v.UsedCount, &limit, &v.CreatedAt, &v.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrVoucherNotFound
	}
	if err != nil {
		return nil, err
	}
	v.Target.TypeID = u64Ptr(typeID)
	if limit.Valid {
		l := uint32(limit.Int64)
		v.UsedCountLimit = &l
	}
	return &v, nil
}

// Redeem consumes one use of voucherID for target.  The scope check,
// the limit check and the increment are one conditional statement, so
// concurrent callers racing for the last use cannot both win.  It
// returns false, changing nothing, when the voucher is out of scope or
// exhausted, and ErrVoucherNotFound when it does not exist.
func (r *VoucherRepo) Redeem(ctx context.Context, target model.VoucherTarget, voucherID uint64) (bool, error) {
	var typeID any
	if target.TypeID != nil {
		typeID = *target.TypeID
	}
	var ok bool
	err := database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE vouchers SET used_count = used_count + 1, updated_at = ?
			WHERE id = ? AND target_kind = ? AND target_id = ?
			  AND (target_type_id IS NULL OR target_type_id = ?)
			  AND (used_count_limit IS NULL OR used_count < used_count_limit)`,
			time.Now().UTC(), voucherID, target.Kind, target.ID, typeID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 1 {
			ok = true
			return nil
		}
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM vouchers WHERE id = ?`, voucherID).Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			return ErrVoucherNotFound
		}
		return nil
	})
	return ok, err
}

// Release gives back one use consumed by Redeem when the registration it
// paid for could not be written.  The count never drops below zero.
func (r *VoucherRepo) Release(ctx context.Context, voucherID uint64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE vouchers SET used_count = used_count - 1, updated_at = ?
		WHERE id = ? AND used_count > 0`, time.Now().UTC(), voucherID)
	return err
}
