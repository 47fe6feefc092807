package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/circle-registration/internal/model"
)

// EventRepo reads events and their space types.  Events are maintained
// by organizer tooling outside this service.
type EventRepo struct {
	db *sql.DB
}

// NewEventRepo returns a new EventRepo bound to the given database.
func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

// Get returns the event with the given id or ErrEventNotFound.
func (r *EventRepo) Get(ctx context.Context, id uint64) (*model.Event, error) {
	const q = `SELECT id, organization_id, name, application_start_at, application_end_at,
	                  allow_adult, payment_methods, created_at, updated_at
	           FROM events WHERE id = ?`
	var e model.Event
	var methods string
	err := r.db.QueryRowContext(ctx, q, id).Scan(
		&e.ID, &e.OrganizationID, &e.Name, &e.ApplicationStartAt, &e.ApplicationEndAt,
		&e.AllowAdult, &methods, &e.CreatedAt, &e.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, err
	}
	e.ApplicationStartAt = utc(e.ApplicationStartAt)
	e.ApplicationEndAt = utc(e.ApplicationEndAt)
	e.PaymentMethods = model.ParsePaymentMethods(methods)
	return &e, nil
}

// SpaceType returns a space type offered at eventID.  A space type that
// exists but belongs to another event is reported as not found.
func (r *EventRepo) SpaceType(ctx context.Context, eventID, spaceTypeID uint64) (*model.SpaceType, error) {
	const q = `SELECT id, event_id, name, price, product_ref FROM space_types WHERE id = ? AND event_id = ?`
	var s model.SpaceType
	var ref sql.NullString
	err := r.db.QueryRowContext(ctx, q, spaceTypeID, eventID).Scan(&s.ID, &s.EventID, &s.Name, &s.Price, &ref)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSpaceTypeNotFound
	}
	if err != nil {
		return nil, err
	}
	s.ProductRef = strPtr(ref)
	return &s, nil
}

// ProductRefs lists every gateway product reference attached to a
// space type.
func (r *EventRepo) ProductRefs(ctx context.Context) ([]string, error) {
	return listRefs(ctx, r.db, `SELECT DISTINCT product_ref FROM space_types WHERE product_ref IS NOT NULL`)
}

func listRefs(ctx context.Context, db *sql.DB, q string) ([]string, error) {
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var refs []string
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}
