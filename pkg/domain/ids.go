// Package domain holds typed identifiers shared across modules.
//
// IDs are distinct types over uuid.UUID so a CredentialID can never be passed
// where a UserID is expected. Construct via the Parse functions at trust
// boundaries; direct conversion bypasses validation and belongs in tests only.
package domain

import (
	"github.com/google/uuid"

	dErrors "authrelay/pkg/domain-errors"
)

// UserID identifies a user record in the external user store.
type UserID uuid.UUID

// CredentialID identifies a service credential.
type CredentialID uuid.UUID

// ParseUserID validates and returns a UserID.
// IDs must be valid, non-empty, non-nil UUIDs.
func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s, "user id")
	return UserID(u), err
}

// ParseCredentialID validates and returns a CredentialID.
func ParseCredentialID(s string) (CredentialID, error) {
	u, err := parseUUID(s, "credential id")
	return CredentialID(u), err
}

func parseUUID(s, what string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s cannot be empty", what)
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s is not a valid UUID", what)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s cannot be the nil UUID", what)
	}
	return u, nil
}

func (id UserID) String() string { return uuid.UUID(id).String() }

// IsNil reports whether the ID is the zero value.
func (id UserID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

func (id CredentialID) String() string { return uuid.UUID(id).String() }

// IsNil reports whether the ID is the zero value.
func (id CredentialID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
