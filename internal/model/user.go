package model

import "time"

// User is the slice of the identity provider's `users` table this
// service reads.  Accounts are created and authenticated elsewhere;
// registration only resolves a paying customer by email.
//
// Fields:
//  ID          – primary key identifier of the user.
//  Email       – unique email address.
//  DisplayName – name shown to organizers.
//  CreatedAt   – timestamp of creation.
type User struct {
	ID          uint64    // users.id
	Email       string    // users.email
	DisplayName string    // users.display_name
	CreatedAt   time.Time // users.created_at
}
