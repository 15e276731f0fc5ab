package ids

import "github.com/google/uuid"

// New returns a random (v4) identifier in canonical string form.
func New() string {
	return uuid.NewString()
}

// Valid reports whether s parses as a UUID.
func Valid(s string) bool {
	return uuid.Validate(s) == nil
}
