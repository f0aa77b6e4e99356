package domain

import (
	"testing"

	"github.com/google/uuid"
)

// FuzzParseCredentialID tests that parsing never panics on arbitrary input
// and that every accepted value round-trips through String.
func FuzzParseCredentialID(f *testing.F) {
	f.Add("")
	f.Add("not-a-uuid")
	f.Add(uuid.Nil.String())
	f.Add(uuid.New().String())
	f.Add("550e8400-e29b-41d4-a716-446655440000")

	f.Fuzz(func(t *testing.T, input string) {
		id, err := ParseCredentialID(input)
		if err != nil {
			return
		}
		roundTrip, err2 := ParseCredentialID(id.String())
		if err2 != nil {
			t.Fatalf("accepted value %q did not round-trip: %v", input, err2)
		}
		if roundTrip != id {
			t.Fatalf("round-trip mismatch: %v != %v", roundTrip, id)
		}
	})
}
