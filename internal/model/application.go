package model

import "time"

// ApplicationStatus is the private review state of an application or a
// ticket.  It lives in a separate meta row so the primary record can be
// read without exposing it.
type ApplicationStatus uint8

const (
	StatusProvisional ApplicationStatus = 0
	StatusCanceled    ApplicationStatus = 1
	StatusConfirmed   ApplicationStatus = 2
)

func (s ApplicationStatus) String() string {
	switch s {
	case StatusProvisional:
		return "provisional"
	case StatusCanceled:
		return "canceled"
	case StatusConfirmed:
		return "confirmed"
	}
	return "unknown"
}

// Application is a circle's request for a space at an event.
//
// Fields:
//  ID            – primary key identifier.
//  UserID        – user who applied.
//  EventID       – event applied to.
//  SpaceTypeID   – space option chosen.
//  CircleName    – name of the applying circle.
//  IsAdult       – whether the circle sells adult content.
//  PaymentMethod – method chosen for the space fee.
//  PublicID      – externally visible identifier (nil until assigned).
//  UnionCircleID – public identifier of the merged partner application.
type Application struct {
	ID            uint64        // applications.id
	UserID        uint64        // applications.user_id
	EventID       uint64        // applications.event_id
	SpaceTypeID   uint64        // applications.space_type_id
	CircleName    string        // applications.circle_name
	IsAdult       bool          // applications.is_adult
	PaymentMethod PaymentMethod // applications.payment_method
	PublicID      *string       // applications.public_id (nullable)
	UnionCircleID *string       // applications.union_circle_id (nullable)
	CreatedAt     time.Time     // applications.created_at
	UpdatedAt     time.Time     // applications.updated_at
}

// StatusMeta is the private status sub-record shared by applications
// (application_meta) and tickets (ticket_meta).
type StatusMeta struct {
	RecordID  uint64            // *_meta.record_id
	Status    ApplicationStatus // *_meta.status
	UpdatedAt time.Time         // *_meta.updated_at
}
