package models

// Group is a named set of parties that settle up together.
// Obligations recorded with a GroupID add their parties to Members.
type Group struct {
	// ID is the unique identifier for the group (UUID format).
	ID string

	// Name is the display name of the group (e.g., "Roommates", "Trip 2024").
	Name string

	// Members are the party identifiers in this group, sorted.
	Members []string

	// CreatedAt is the Unix timestamp when the group was created.
	CreatedAt int64
}
