package model

import "time"

// Collection names the table a public identifier points into.
type Collection string

const (
	CollectionApplications Collection = "applications"
	CollectionTickets      Collection = "tickets"
)

// PublicIdentifier maps an externally addressable identifier to the
// internal record.  It is the only handle that leaves the service.
type PublicIdentifier struct {
	PublicID   string     // public_ids.public_id
	Collection Collection // public_ids.collection
	RecordID   uint64     // public_ids.record_id
	PaymentID  *uint64    // public_ids.payment_id (nullable)
	SpaceID    *uint64    // public_ids.space_id (nullable, assigned by allocation)
	CreatedAt  time.Time  // public_ids.created_at
}
