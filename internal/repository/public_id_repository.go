package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iliyamo/circle-registration/internal/database"
	"github.com/iliyamo/circle-registration/internal/model"
)

// PublicIDRepo maintains the index from public identifiers to internal
// records.  An index row is written at most once per record.
type PublicIDRepo struct {
	db *sql.DB
}

// NewPublicIDRepo returns a new PublicIDRepo bound to the given database.
func NewPublicIDRepo(db *sql.DB) *PublicIDRepo { return &PublicIDRepo{db: db} }

func recordTable(c model.Collection) (string, error) {
	switch c {
	case model.CollectionApplications:
		return "applications", nil
	case model.CollectionTickets:
		return "tickets", nil
	}
	return "", fmt.Errorf("unknown collection %q", c)
}

// Assign inserts the index row and stamps the public id onto the record
// in one transaction.  A taken identifier, or a record that already has
// one, yields ErrDuplicate and leaves nothing behind.
func (r *PublicIDRepo) Assign(ctx context.Context, p model.PublicIdentifier) error {
	table, err := recordTable(p.Collection)
	if err != nil {
		return err
	}
	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO public_ids
			(public_id, collection, record_id, payment_id, space_id, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			p.PublicID, p.Collection, p.RecordID, nullU64(p.PaymentID), nullU64(p.SpaceID), p.CreatedAt)
		if database.IsDuplicate(err) {
			return ErrDuplicate
		}
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE `+table+` SET public_id = ? WHERE id = ? AND public_id IS NULL`, p.PublicID, p.RecordID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n != 1 {
			return ErrDuplicate
		}
		return nil
	})
}

// Get resolves a public identifier.
func (r *PublicIDRepo) Get(ctx context.Context, publicID string) (*model.PublicIdentifier, error) {
	var p model.PublicIdentifier
	var paymentID, spaceID sql.NullInt64
	err := r.db.QueryRowContext(ctx,
		`SELECT public_id, collection, record_id, payment_id, space_id, created_at FROM public_ids WHERE public_id = ?`,
		publicID).Scan(&p.PublicID, &p.Collection, &p.RecordID, &paymentID, &spaceID, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPublicIDNotFound
	}
	if err != nil {
		return nil, err
	}
	p.PaymentID = u64Ptr(paymentID)
	p.SpaceID = u64Ptr(spaceID)
	p.CreatedAt = utc(p.CreatedAt)
	return &p, nil
}
