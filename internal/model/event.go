package model

import "time"

// Event is a convention that accepts circle applications.  Applications
// are only accepted inside the [ApplicationStartAt, ApplicationEndAt]
// window and only with one of the event's PaymentMethods.
//
// Fields:
//  ID                 – primary key identifier.
//  OrganizationID     – organization that runs the event.
//  Name               – display name used in notifications.
//  ApplicationStartAt – first instant applications are accepted.
//  ApplicationEndAt   – last instant applications are accepted.
//  AllowAdult         – whether adult content circles may apply.
//  PaymentMethods     – payment methods applicants may choose.
type Event struct {
	ID                 uint64          // events.id
	OrganizationID     uint64          // events.organization_id
	Name               string          // events.name
	ApplicationStartAt time.Time       // events.application_start_at
	ApplicationEndAt   time.Time       // events.application_end_at
	AllowAdult         bool            // events.allow_adult
	PaymentMethods     []PaymentMethod // events.payment_methods (comma separated)
	CreatedAt          time.Time       // events.created_at
	UpdatedAt          time.Time       // events.updated_at
}

// SpaceType is a purchasable booth option of an event.
type SpaceType struct {
	ID         uint64  // space_types.id
	EventID    uint64  // space_types.event_id
	Name       string  // space_types.name
	Price      int64   // space_types.price
	ProductRef *string // space_types.product_ref (nullable for free spaces)
}

// InWindow reports whether t lies inside the application window.  Both
// ends are inclusive.
func (e Event) InWindow(t time.Time) bool {
	return !t.Before(e.ApplicationStartAt) && !t.After(e.ApplicationEndAt)
}

// Accepts reports whether m is one of the event's payment methods.
func (e Event) Accepts(m PaymentMethod) bool {
	return containsMethod(e.PaymentMethods, m)
}
