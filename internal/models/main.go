// Package models defines the core data structures for identities and certified documents.
package models

import "time"

// Role is the privilege level of an identity.
type Role string

const (
	// RoleUser is a regular account that may only act on documents it owns.
	RoleUser Role = "user"
	// RoleAdmin may list, transfer and burn any document.
	RoleAdmin Role = "admin"
)

// IsValid reports whether r is a known role.
func (r Role) IsValid() bool {
	return r == RoleUser || r == RoleAdmin
}

// User represents an application user with credentials.
type User struct {
	// ID is the unique identifier for the user.
	ID string `json:"id"`
	// Username is the login name chosen by the user.
	Username string `json:"username"`
	// PasswordHash is the bcrypt hash of the user's password.
	PasswordHash []byte `json:"password_hash"`
	// Role is resolved on every request, never taken from the credential.
	Role Role `json:"role"`
	// CreatedAt is the registration time.
	CreatedAt time.Time `json:"created_at"`
}

// Identity is the resolved acting party of a request.
type Identity struct {
	ID       string
	Username string
	IsAdmin  bool
}

// Document is a minted record tying a content reference to its owner.
type Document struct {
	// TokenID is allocated at mint time and never reused.
	TokenID int64 `json:"tokenId"`
	// ContentID references the stored content; cleared on burn.
	ContentID string `json:"contentId"`
	// ContentHash is the 0x-prefixed SHA-256 digest of the document; cleared on burn.
	ContentHash string `json:"contentHash"`
	// Name is an optional display name for the document.
	Name string `json:"name,omitempty"`
	// Owner is the user ID of the controlling party.
	Owner string `json:"owner"`
	// Retired marks a burned record. Retired records keep their row for audit.
	Retired bool `json:"retired"`
	// MintedAt is the creation time.
	MintedAt time.Time `json:"mintedAt"`
	// UpdatedAt is the time of the last transfer or burn.
	UpdatedAt time.Time `json:"updatedAt"`
}

// Live reports whether the document has not been burned.
func (d Document) Live() bool {
	return !d.Retired
}
