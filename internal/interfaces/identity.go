package interfaces

import "github.com/confetex/tracker/internal/domain"

// Identity is the current actor as supplied by the fronting auth layer.
// The core only reads it.
type Identity struct {
	Name       string
	Department domain.Department
}

// IdentityProvider yields the current identity, or false when the session
// is gone (the client core must then tear down instead of reconnecting).
type IdentityProvider interface {
	Identity() (Identity, bool)
}

// StaticIdentity is a fixed identity, used by the dashboard binary and in
// tests.
type StaticIdentity Identity

func (s StaticIdentity) Identity() (Identity, bool) {
	return Identity(s), true
}
