package models

import (
	"time"

	id "authrelay/pkg/domain"
	dErrors "authrelay/pkg/domain-errors"
	"authrelay/pkg/email"
	pstrings "authrelay/pkg/platform/strings"
)

// MaxAllowedDomains bounds the delegation allow-list per credential.
const MaxAllowedDomains = 10

// Credential is a service credential with an intrinsic permission set and an
// optional delegation allow-list. Read-only at request time; the admin
// surface owns writes.
type Credential struct {
	ID          id.CredentialID
	Name        string
	Permissions []Permission

	// DelegationEnabled allows the credential to act on behalf of a user
	// named by the identity hint. Invariant: when true, AllowedDomains is
	// non-empty.
	DelegationEnabled bool

	// AllowedDomains are "@host.tld" entries, stored lower-cased.
	AllowedDomains []string

	// SecretHash is the bcrypt hash of the API key secret. Never exposed.
	SecretHash string
}

// NewCredential validates and constructs a credential. The write-side
// invariant lives here: delegation cannot be enabled without at least one
// allowed domain.
func NewCredential(credID id.CredentialID, name string, perms []Permission, delegationEnabled bool, allowedDomains []string) (*Credential, error) {
	if credID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "credential id is required")
	}
	for _, p := range perms {
		if !p.IsValid() {
			return nil, dErrors.Newf(dErrors.CodeInvariantViolation, "unknown permission: %s", p)
		}
	}

	domains := pstrings.DedupeAndTrimLower(allowedDomains)
	if delegationEnabled && len(domains) == 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "delegation requires at least one allowed domain")
	}
	if len(domains) > MaxAllowedDomains {
		return nil, dErrors.Newf(dErrors.CodeInvariantViolation, "at most %d allowed domains", MaxAllowedDomains)
	}
	for _, d := range domains {
		if !email.IsValidDomainEntry(d) {
			return nil, dErrors.Newf(dErrors.CodeInvariantViolation, "invalid allowed domain entry: %s", d)
		}
	}

	return &Credential{
		ID:                credID,
		Name:              name,
		Permissions:       perms,
		DelegationEnabled: delegationEnabled,
		AllowedDomains:    domains,
	}, nil
}

// AllowsEmailDomain checks the parsed address against the allow-list.
// Returns false when delegation is disabled or no domains are listed; the
// caller handles malformed input before parsing, so this stays a pure
// membership test.
func (c *Credential) AllowsEmailDomain(addr email.Address) bool {
	if !c.DelegationEnabled || len(c.AllowedDomains) == 0 {
		return false
	}
	for _, listed := range c.AllowedDomains {
		if email.DomainMatches(listed, addr.Domain) {
			return true
		}
	}
	return false
}

// Identity is a read-only view of a user record from the external store.
type Identity struct {
	ID     id.UserID
	Email  string
	Roles  []Role
	Active bool
}

// Grant is the outcome of a successful authorization: the effective
// permission set plus the resolved identity when delegation occurred.
// Transient: computed per request, never persisted.
type Grant struct {
	Permissions []Permission
	Delegated   bool
	Identity    *Identity // nil on the credential-only fallback path
}

// FailureRecord captures one delegation failure for the sliding-window
// tracker.
type FailureRecord struct {
	CredentialID id.CredentialID
	Timestamp    time.Time
	Email        string
	Reason       string
}

// Alert is the threshold-breach signal raised to the alerting sink, at most
// once per breach window.
type Alert struct {
	CredentialID         id.CredentialID
	FailureCountInWindow int
	WindowStart          time.Time
}
