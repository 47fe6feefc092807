package model

import "time"

// Ticket is an attendee's ticket of a store.  UserID is nil for
// standalone tickets issued by an operator to an email address that has
// no account.  ParentTicketID is set on the free linked ticket created
// alongside a purchase.
type Ticket struct {
	ID             uint64        // tickets.id
	UserID         *uint64       // tickets.user_id (nullable)
	Email          *string       // tickets.email (nullable)
	StoreID        uint64        // tickets.store_id
	TypeID         uint64        // tickets.type_id
	PaymentMethod  PaymentMethod // tickets.payment_method
	PublicID       *string       // tickets.public_id (nullable)
	ParentTicketID *uint64       // tickets.parent_ticket_id (nullable)
	CreatedAt      time.Time     // tickets.created_at
	UpdatedAt      time.Time     // tickets.updated_at
}
