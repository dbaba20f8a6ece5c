// Package ids generates and validates the opaque identifiers used for every
// persisted entity. Identifiers are 24 character lowercase hex strings in the
// BSON ObjectID format, so they sort roughly by creation time.
package ids

import (
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// New returns a fresh identifier.
func New() string {
	return primitive.NewObjectID().Hex()
}

// Valid reports whether s is a well-formed identifier.
func Valid(s string) bool {
	if len(s) != 24 {
		return false
	}
	return primitive.IsValidObjectID(s)
}

// Normalize lowercases a well-formed identifier. It returns false when s is
// not an identifier at all.
func Normalize(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if !Valid(s) {
		return "", false
	}
	return strings.ToLower(s), true
}
