package domain

import "time"

// UserProfile is the profile record owned by the profile store.
//
// SubjectID is the join key to the identity credential. It is set once, at
// creation, and never reassigned.
type UserProfile struct {
	SubjectID SubjectID

	Identifier Identifier
	GivenName  string
	FamilyName string
	// BirthDate is a calendar date stored at midnight UTC.
	BirthDate time.Time

	// CreatedAt is assigned by the profile store when the record is first written.
	CreatedAt time.Time
}
