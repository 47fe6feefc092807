package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/circle-registration/internal/database"
	"github.com/iliyamo/circle-registration/internal/model"
)

// TicketRepo persists tickets and their status meta.
type TicketRepo struct {
	db *sql.DB
}

// NewTicketRepo returns a new TicketRepo bound to the given database.
func NewTicketRepo(db *sql.DB) *TicketRepo { return &TicketRepo{db: db} }

const ticketCols = `id, user_id, email, store_id, type_id, payment_method, public_id, parent_ticket_id, created_at, updated_at`

// ExistsForUser reports whether userID already holds a ticket from storeID.
func (r *TicketRepo) ExistsForUser(ctx context.Context, userID, storeID uint64) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tickets WHERE user_id = ? AND store_id = ?`, userID, storeID).Scan(&n)
	return n > 0, err
}

// Create inserts the ticket and its status meta in one transaction and
// fills in t.ID.
func (r *TicketRepo) Create(ctx context.Context, t *model.Ticket, status model.ApplicationStatus) error {
	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `INSERT INTO tickets
			(user_id, email, store_id, type_id, payment_method, public_id, parent_ticket_id, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			nullU64(t.UserID), nullStr(t.Email), t.StoreID, t.TypeID, t.PaymentMethod,
			nullStr(t.PublicID), nullU64(t.ParentTicketID), t.CreatedAt, t.UpdatedAt)
		if database.IsDuplicate(err) {
			return ErrDuplicate
		}
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		t.ID = uint64(id)
		return insertMetaTx(ctx, tx, ticketMeta, t.ID, status, t.CreatedAt)
	})
}

// GetByID returns a ticket by its internal id.
func (r *TicketRepo) GetByID(ctx context.Context, id uint64) (*model.Ticket, error) {
	return r.getOne(ctx, `SELECT `+ticketCols+` FROM tickets WHERE id = ?`, id)
}

// GetByPublicID returns the ticket carrying publicID.
func (r *TicketRepo) GetByPublicID(ctx context.Context, publicID string) (*model.Ticket, error) {
	return r.getOne(ctx, `SELECT `+ticketCols+` FROM tickets WHERE public_id = ?`, publicID)
}

func (r *TicketRepo) getOne(ctx context.Context, q string, arg any) (*model.Ticket, error) {
	var t model.Ticket
	var userID, parentID sql.NullInt64
	var email, pub sql.NullString
	err := r.db.QueryRowContext(ctx, q, arg).Scan(
		&t.ID, &userID, &email, &t.StoreID, &t.TypeID, &t.PaymentMethod, &pub, &parentID, &t.CreatedAt, &t.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTicketNotFound
	}
	if err != nil {
		return nil, err
	}
	t.UserID = u64Ptr(userID)
	t.Email = strPtr(email)
	t.PublicID = strPtr(pub)
	t.ParentTicketID = u64Ptr(parentID)
	t.CreatedAt, t.UpdatedAt = utc(t.CreatedAt), utc(t.UpdatedAt)
	return &t, nil
}

// Status returns the private status meta of a ticket.
func (r *TicketRepo) Status(ctx context.Context, id uint64) (model.StatusMeta, error) {
	return getMeta(ctx, r.db, ticketMeta, id, ErrTicketNotFound)
}

// TransitionStatus moves a ticket's status from one value to another.
// It reports false, changing nothing, when the ticket is not in from.
func (r *TicketRepo) TransitionStatus(ctx context.Context, id uint64, from, to model.ApplicationStatus, now time.Time) (bool, error) {
	var ok bool
	err := database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		var err error
		ok, err = casMeta(ctx, tx, ticketMeta, id, from, to, now)
		return err
	})
	return ok, err
}

// TransitionWithLinked moves a ticket and every linked ticket issued
// with it from one status to another in one transaction.  Linked tickets
// that already left from are skipped.  It reports false, changing
// nothing, when the primary is not in from.
func (r *TicketRepo) TransitionWithLinked(ctx context.Context, id uint64, from, to model.ApplicationStatus, now time.Time) (bool, error) {
	var ok bool
	err := database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		var err error
		ok, err = casMeta(ctx, tx, ticketMeta, id, from, to, now)
		if err != nil || !ok {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE `+ticketMeta+` SET status = ?, updated_at = ?
			 WHERE status = ? AND record_id IN (SELECT id FROM tickets WHERE parent_ticket_id = ?)`,
			to, now, from, id)
		return err
	})
	return ok, err
}
