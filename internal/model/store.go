package model

import "time"

// Store sells tickets for a convention during its sale window.
//
// Fields:
//  ID             – primary key identifier.
//  OrganizationID – organization that owns the store; admin ticket
//                   issuance is scoped to it.
//  Name           – display name used in notifications.
//  SaleStartAt    – first instant tickets can be bought.
//  SaleEndAt      – last instant tickets can be bought.
//  PaymentMethods – payment methods buyers may choose.
type Store struct {
	ID             uint64          // stores.id
	OrganizationID uint64          // stores.organization_id
	Name           string          // stores.name
	SaleStartAt    time.Time       // stores.sale_start_at
	SaleEndAt      time.Time       // stores.sale_end_at
	PaymentMethods []PaymentMethod // stores.payment_methods (comma separated)
	CreatedAt      time.Time       // stores.created_at
	UpdatedAt      time.Time       // stores.updated_at
}

// TicketType is one purchasable ticket of a store.  When AnotherStoreID
// and AnotherTypeID are both set, buying this type also issues a free
// linked ticket of that type in the other store.
type TicketType struct {
	ID             uint64  // ticket_types.id
	StoreID        uint64  // ticket_types.store_id
	Name           string  // ticket_types.name
	Price          int64   // ticket_types.price
	ProductRef     *string // ticket_types.product_ref (nullable for free tickets)
	AnotherStoreID *uint64 // ticket_types.another_store_id (nullable)
	AnotherTypeID  *uint64 // ticket_types.another_type_id (nullable)
}

// HasLinkedTicket reports whether purchases of this type cascade into a
// second ticket.
func (t TicketType) HasLinkedTicket() bool {
	return t.AnotherStoreID != nil && t.AnotherTypeID != nil
}

// InWindow reports whether t lies inside the sale window, inclusive.
func (s Store) InWindow(t time.Time) bool {
	return !t.Before(s.SaleStartAt) && !t.After(s.SaleEndAt)
}

// Accepts reports whether m is one of the store's payment methods.
func (s Store) Accepts(m PaymentMethod) bool {
	return containsMethod(s.PaymentMethods, m)
}
