package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/circle-registration/internal/database"
	"github.com/iliyamo/circle-registration/internal/model"
)

// ApplicationRepo persists circle applications and their status meta.
type ApplicationRepo struct {
	db *sql.DB
}

// NewApplicationRepo returns a new ApplicationRepo bound to the given database.
func NewApplicationRepo(db *sql.DB) *ApplicationRepo { return &ApplicationRepo{db: db} }

const applicationCols = `id, user_id, event_id, space_type_id, circle_name, is_adult, payment_method,
	public_id, union_circle_id, created_at, updated_at`

// ExistsForUser reports whether userID already applied to eventID.
func (r *ApplicationRepo) ExistsForUser(ctx context.Context, userID, eventID uint64) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM applications WHERE user_id = ? AND event_id = ?`, userID, eventID).Scan(&n)
	return n > 0, err
}

// Create inserts the application and its status meta in one
// transaction and fills in a.ID.  A concurrent duplicate for the same
// user and event surfaces as ErrDuplicate.
func (r *ApplicationRepo) Create(ctx context.Context, a *model.Application, status model.ApplicationStatus) error {
	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `INSERT INTO applications
			(user_id, event_id, space_type_id, circle_name, is_adult, payment_method, public_id, union_circle_id, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			a.UserID, a.EventID, a.SpaceTypeID, a.CircleName, a.IsAdult, a.PaymentMethod,
			nullStr(a.PublicID), nullStr(a.UnionCircleID), a.CreatedAt, a.UpdatedAt)
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
		a.ID = uint64(id)
		return insertMetaTx(ctx, tx, applicationMeta, a.ID, status, a.CreatedAt)
	})
}

// GetByID returns an application by its internal id.
func (r *ApplicationRepo) GetByID(ctx context.Context, id uint64) (*model.Application, error) {
	return r.getOne(ctx, `SELECT `+applicationCols+` FROM applications WHERE id = ?`, id)
}

// GetByPublicID returns the application carrying publicID.
func (r *ApplicationRepo) GetByPublicID(ctx context.Context, publicID string) (*model.Application, error) {
	return r.getOne(ctx, `SELECT `+applicationCols+` FROM applications WHERE public_id = ?`, publicID)
}

func (r *ApplicationRepo) getOne(ctx context.Context, q string, arg any) (*model.Application, error) {
	var a model.Application
	var pub, union sql.NullString
	err := r.db.QueryRowContext(ctx, q, arg).Scan(
		&a.ID, &a.UserID, &a.EventID, &a.SpaceTypeID, &a.CircleName, &a.IsAdult, &a.PaymentMethod,
		&pub, &union, &a.CreatedAt, &a.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrApplicationNotFound
	}
	if err != nil {
		return nil, err
	}
	a.PublicID = strPtr(pub)
	a.UnionCircleID = strPtr(union)
	a.CreatedAt, a.UpdatedAt = utc(a.CreatedAt), utc(a.UpdatedAt)
	return &a, nil
}

// BackfillUnion points the partner application at unionPublicID.  It
// only writes while the partner is still unlinked and reports whether
// it did.
func (r *ApplicationRepo) BackfillUnion(ctx context.Context, partnerID uint64, unionPublicID string, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE applications SET union_circle_id = ?, updated_at = ? WHERE id = ? AND union_circle_id IS NULL`,
		unionPublicID, now, partnerID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// ClearUnion drops the union pointer of an application whose partner
// was claimed by someone else first.
func (r *ApplicationRepo) ClearUnion(ctx context.Context, id uint64, now time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE applications SET union_circle_id = NULL, updated_at = ? WHERE id = ?`, now, id)
	return err
}

// Touch bumps updated_at so readers notice a payment change.
func (r *ApplicationRepo) Touch(ctx context.Context, id uint64, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE applications SET updated_at = ? WHERE id = ?`, now, id)
	return err
}

// Status returns the private status meta of an application.
func (r *ApplicationRepo) Status(ctx context.Context, id uint64) (model.StatusMeta, error) {
	return getMeta(ctx, r.db, applicationMeta, id, ErrApplicationNotFound)
}
