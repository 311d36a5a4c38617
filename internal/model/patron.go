package model

import "time"

// Account roles stored in patrons.role. STAFF operates the admin
// console; PATRON uses the self-service endpoints.
const (
	RolePatron = "PATRON"
	RoleStaff  = "STAFF"
)

// Patron represents a row in the `patrons` table. Accounts exist only
// so the HTTP layer can authenticate callers; the registration core
// treats patron IDs as opaque external keys.
//
// Fields:
//  ID        – primary key; doubles as the patron_id the core sees.
//  Barcode   – unique library card barcode used to log in.
//  PINHash   – bcrypt hash of the patron's PIN.
//  Role      – PATRON or STAFF.
//  IsActive  – whether the account may log in.
//  CreatedAt – timestamp of creation.
//  UpdatedAt – timestamp of last update.
type Patron struct {
	ID        uint64    // patrons.id
	Barcode   string    // patrons.barcode
	PINHash   string    // patrons.pin_hash
	Role      string    // patrons.role
	IsActive  bool      // patrons.is_active
	CreatedAt time.Time // patrons.created_at
	UpdatedAt time.Time // patrons.updated_at
}

// RefreshToken models an entry in the `refresh_tokens` table. Only the
// SHA-256 hash of the issued token is stored.
//
// Fields:
//  ID        – primary key identifier.
//  PatronID  – owner of the token.
//  TokenHash – SHA-256 hex digest of the token value.
//  ExpiresAt – expiration timestamp.
//  RevokedAt – when the token was revoked (null if still active).
//  CreatedAt – timestamp of creation.
type RefreshToken struct {
	ID        uint64     // refresh_tokens.id
	PatronID  uint64     // refresh_tokens.patron_id
	TokenHash string     // refresh_tokens.token_hash
	ExpiresAt time.Time  // refresh_tokens.expires_at
	RevokedAt *time.Time // refresh_tokens.revoked_at (nullable)
	CreatedAt time.Time  // refresh_tokens.created_at
}
