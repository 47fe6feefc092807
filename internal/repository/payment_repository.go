package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/circle-registration/internal/database"
	"github.com/iliyamo/circle-registration/internal/model"
)

// PaymentRepo is the payment record store.  Status only ever changes
// through ApplyTransition.
type PaymentRepo struct {
	db *sql.DB
}

// NewPaymentRepo returns a new PaymentRepo bound to the given database.
func NewPaymentRepo(db *sql.DB) *PaymentRepo { return &PaymentRepo{db: db} }

// NewPayment carries the fields known when a payment is first recorded.
type NewPayment struct {
	UserID           *uint64
	ProductRef       string
	Method           model.PaymentMethod
	BankTransferCode string
	Amount           int64
	Target           model.PaymentTarget
	CreatedAt        time.Time
}

// PaymentUpdate holds the gateway identifiers recorded alongside a
// status transition.  Nil fields keep their stored value.
type PaymentUpdate struct {
	IntentID  *string
	SessionID *string
	At        time.Time
}

const paymentCols = `id, user_id, product_ref, method, bank_transfer_code, amount, status, target_kind, target_id,
	gateway_intent_id, gateway_session_id, card_brand, receipt_url, created_at, updated_at`

// Create inserts a Pending payment with no gateway state and returns its id.
func (r *PaymentRepo) Create(ctx context.Context, p NewPayment) (uint64, error) {
	res, err := r.db.ExecContext(ctx, `INSERT INTO payments
		(user_id, product_ref, method, bank_transfer_code, amount, status, target_kind, target_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		nullU64(p.UserID), p.ProductRef, p.Method, p.BankTransferCode, p.Amount, model.PaymentPending,
		p.Target.Kind, p.Target.ID, p.CreatedAt, p.CreatedAt)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByID returns a payment or ErrPaymentNotFound.
func (r *PaymentRepo) GetByID(ctx context.Context, id uint64) (*model.Payment, error) {
	return scanPayment(r.db.QueryRowContext(ctx, `SELECT `+paymentCols+` FROM payments WHERE id = ?`, id))
}

// FindByGatewayIntentID returns the payment settled by the given
// gateway payment intent.
func (r *PaymentRepo) FindByGatewayIntentID(ctx context.Context, intentID string) (*model.Payment, error) {
	return scanPayment(r.db.QueryRowContext(ctx,
		`SELECT `+paymentCols+` FROM payments WHERE gateway_intent_id = ? ORDER BY created_at, id LIMIT 1`, intentID))
}

// FindOne maps an inbound gateway event back to a single payment.  When
// several records match, the earliest one wins (created_at, then id).
func (r *PaymentRepo) FindOne(ctx context.Context, userID uint64, status model.PaymentStatus, method model.PaymentMethod, productRefs []string) (*model.Payment, error) {
	if len(productRefs) == 0 {
		return nil, ErrPaymentNotFound
	}
	args := make([]any, 0, 3+len(productRefs))
	args = append(args, userID, status, method)
	for _, ref := range productRefs {
		args = append(args, ref)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(productRefs)), ",")
	q := `SELECT ` + paymentCols + ` FROM payments
		WHERE user_id = ? AND status = ? AND method = ? AND product_ref IN (` + placeholders + `)
		ORDER BY created_at, id LIMIT 1`
	return scanPayment(r.db.QueryRowContext(ctx, q, args...))
}

// ApplyTransition moves payment id from one status to another with a
// single compare-and-swap.  It reports false, leaving the row untouched,
// when the record is no longer in from; that is what makes redelivered
// gateway events harmless.
func (r *PaymentRepo) ApplyTransition(ctx context.Context, id uint64, from, to model.PaymentStatus, upd PaymentUpdate) (bool, error) {
	if !from.CanTransitionTo(to) {
		return false, ErrInvalidTransition
	}
	if upd.At.IsZero() {
		upd.At = time.Now().UTC()
	}
	var applied bool
	err := database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE payments SET status = ?, updated_at = ?,
			gateway_intent_id = COALESCE(?, gateway_intent_id),
			gateway_session_id = COALESCE(?, gateway_session_id)
			WHERE id = ? AND status = ?`,
			to, upd.At, nullStr(upd.IntentID), nullStr(upd.SessionID), id, from)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 1 {
			applied = true
			return nil
		}
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM payments WHERE id = ?`, id).Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			return ErrPaymentNotFound
		}
		return nil
	})
	return applied, err
}

// MergeResult stores gateway result metadata.  Fields that are nil keep
// their stored value; status is never touched.
func (r *PaymentRepo) MergeResult(ctx context.Context, id uint64, res model.PaymentResult, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE payments SET
		card_brand = COALESCE(?, card_brand), receipt_url = COALESCE(?, receipt_url), updated_at = ?
		WHERE id = ?`, nullStr(res.CardBrand), nullStr(res.ReceiptURL), at, id)
	return err
}

// AttachSession records the latest checkout session opened for a payment.
func (r *PaymentRepo) AttachSession(ctx context.Context, id uint64, sessionID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE payments SET gateway_session_id = ?, updated_at = ? WHERE id = ?`, sessionID, at, id)
	return err
}

func scanPayment(row *sql.Row) (*model.Payment, error) {
	var p model.Payment
	var userID sql.NullInt64
	var intent, session, brand, receipt sql.NullString
	err := row.Scan(
		&p.ID, &userID, &p.ProductRef, &p.Method, &p.BankTransferCode, &p.Amount, &p.Status,
		&p.Target.Kind, &p.Target.ID, &intent, &session, &brand, &receipt, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	p.UserID = u64Ptr(userID)
	p.GatewayIntentID = strPtr(intent)
	p.GatewaySessionID = strPtr(session)
	p.Result = model.PaymentResult{CardBrand: strPtr(brand), ReceiptURL: strPtr(receipt)}
	p.CreatedAt, p.UpdatedAt = utc(p.CreatedAt), utc(p.UpdatedAt)
	return &p, nil
}
