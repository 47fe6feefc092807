package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/circle-registration/internal/model"
)

// StoreRepo reads ticket stores and their ticket types.
type StoreRepo struct {
	db *sql.DB
}

// NewStoreRepo returns a new StoreRepo bound to the given database.
func NewStoreRepo(db *sql.DB) *StoreRepo { return &StoreRepo{db: db} }

// Get returns the store with the given id or ErrStoreNotFound.
func (r *StoreRepo) Get(ctx context.Context, id uint64) (*model.Store, error) {
	const q = `SELECT id, organization_id, name, sale_start_at, sale_end_at, payment_methods, created_at, updated_at
	           FROM stores WHERE id = ?`
	var s model.Store
	var methods string
	err := r.db.QueryRowContext(ctx, q, id).Scan(
		&s.ID, &s.OrganizationID, &s.Name, &s.SaleStartAt, &s.SaleEndAt, &methods, &s.CreatedAt, &s.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrStoreNotFound
	}
	if err != nil {
		return nil, err
	}
	s.SaleStartAt = utc(s.SaleStartAt)
	s.SaleEndAt = utc(s.SaleEndAt)
	s.PaymentMethods = model.ParsePaymentMethods(methods)
	return &s, nil
}

// TicketType returns a ticket type sold in storeID.
func (r *StoreRepo) TicketType(ctx context.Context, storeID, typeID uint64) (*model.TicketType, error) {
	const q = `SELECT id, store_id, name, price, product_ref, another_store_id, another_type_id
	           FROM ticket_types WHERE id = ? AND store_id = ?`
	var tt model.TicketType
	var ref sql.NullString
	var anotherStore, anotherType sql.NullInt64
	err := r.db.QueryRowContext(ctx, q, typeID, storeID).Scan(
		&tt.ID, &tt.StoreID, &tt.Name, &tt.Price, &ref, &anotherStore, &anotherType,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTicketTypeNotFound
	}
	if err != nil {
		return nil, err
	}
	tt.ProductRef = strPtr(ref)
	tt.AnotherStoreID = u64Ptr(anotherStore)
	tt.AnotherTypeID = u64Ptr(anotherType)
	return &tt, nil
}

// ProductRefs lists every gateway product reference attached to a
// ticket type.
func (r *StoreRepo) ProductRefs(ctx context.Context) ([]string, error) {
	return listRefs(ctx, r.db, `SELECT DISTINCT product_ref FROM ticket_types WHERE product_ref IS NOT NULL`)
}
