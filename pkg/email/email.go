// Package email provides address parsing and domain matching for the
// delegation allow-list checks.
//
// Matching is deliberately strict: a listed "@corp.example.com" matches that
// exact domain or a dot-bounded subdomain ("@east.corp.example.com"), never a
// plain substring, so "@notcorp.example.com" cannot slip past the allow-list.
package email

import (
	"strings"

	dErrors "authrelay/pkg/domain-errors"
)

// Address is a syntactically validated email address. Domain is lower-cased
// at parse time; Local preserves the caller's casing.
type Address struct {
	Local  string
	Domain string // includes the leading "@"
}

// Parse validates the minimal address syntax this module relies on: a
// non-empty local part, an "@", and a domain containing at least one dot.
// Splitting happens at the last "@" so quoted locals with embedded "@" do not
// confuse the domain check.
func Parse(raw string) (Address, error) {
	s := strings.TrimSpace(raw)
	if strings.ContainsAny(s, " \t\r\n") {
		return Address{}, dErrors.New(dErrors.CodeInvalidEmailFormat, "email must not contain whitespace")
	}
	at := strings.LastIndexByte(s, '@')
	if at <= 0 || at == len(s)-1 {
		return Address{}, dErrors.New(dErrors.CodeInvalidEmailFormat, "email must have the form local@domain")
	}

	local := s[:at]
	domain := strings.ToLower(s[at:]) // keep the "@"

	host := domain[1:]
	if !strings.Contains(host, ".") || strings.HasPrefix(host, ".") || strings.HasSuffix(host, ".") {
		return Address{}, dErrors.New(dErrors.CodeInvalidEmailFormat, "email domain must contain a dot")
	}

	return Address{Local: local, Domain: domain}, nil
}

// Normalize lower-cases the whole address for case-insensitive lookups.
func Normalize(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// String reassembles the address.
func (a Address) String() string {
	return a.Local + a.Domain
}

// DomainMatches reports whether the address domain matches a listed
// allow-list entry. Both sides carry the leading "@". The entry matches on
// exact equality or when the address domain is a dot-bounded subdomain of the
// listed one.
func DomainMatches(listed, domain string) bool {
	listed = strings.ToLower(listed)
	domain = strings.ToLower(domain)
	if len(listed) < 2 || len(domain) < 2 || listed[0] != '@' || domain[0] != '@' {
		return false
	}
	if domain == listed {
		return true
	}
	// "@east.corp.example.com" vs listed "@corp.example.com": suffix match
	// only across a dot boundary.
	return strings.HasSuffix(domain[1:], "."+listed[1:])
}

// IsValidDomainEntry reports whether s is a well-formed allow-list entry:
// "@host.tld" with at least one dot after the "@".
func IsValidDomainEntry(s string) bool {
	if len(s) < 4 || s[0] != '@' {
		return false
	}
	host := s[1:]
	return strings.Contains(host, ".") &&
		!strings.HasPrefix(host, ".") &&
		!strings.HasSuffix(host, ".") &&
		!strings.ContainsAny(host, " \t@")
}
