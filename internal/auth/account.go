// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package auth

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// MaxFailedAttempts is the ceiling of the failure counter.
const MaxFailedAttempts = 255

// Role is the authorization role stored on an account and copied into tokens.
type Role string

// Account roles.
const (
	RoleAdmin Role = "ADMIN"
	RoleUser  Role = "USER"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleUser
}

// ParseRole parses a role name (case-insensitive).
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", oops.Code("ACCOUNT_INVALID_ROLE").With("role", s).Errorf("unknown role %q", s)
	}
	return r, nil
}

// Status is the activation state of an account.
type Status string

// Account statuses.
const (
	StatusActive   Status = "ACTIVE"
	StatusInactive Status = "INACTIVE"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusActive || s == StatusInactive
}

// ParseStatus parses a status name (case-insensitive).
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", oops.Code("ACCOUNT_INVALID_STATUS").With("status", s).Errorf("unknown status %q", s)
	}
	return st, nil
}

// Account is a stored credential record.
type Account struct {
	ID             ulid.ULID
	Name           *string
	Email          string
	PasswordHash   string
	Role           Role
	Status         Status
	FailedAttempts uint8
	LockedUntil    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// PublicAccount is the outward projection of an Account. It never carries
// credential material.
type PublicAccount struct {
	ID    string  `json:"id"`
	Name  *string `json:"name,omitempty"`
	Email string  `json:"email"`
	Role  Role    `json:"role"`
}

// Public returns the outward projection of the account.
func (a *Account) Public() PublicAccount {
	return PublicAccount{
		ID:    a.ID.String(),
		Name:  a.Name,
		Email: a.Email,
		Role:  a.Role,
	}
}

// IsActive reports whether the account may authenticate at all.
func (a *Account) IsActive() bool {
	return a.Status == StatusActive
}

// hasLockoutState reports whether the row carries anything a successful
// login needs to clear.
func (a *Account) hasLockoutState() bool {
	return a.FailedAttempts > 0 || a.LockedUntil != nil
}

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NewAccount creates a validated ACTIVE account with a fresh ID.
func NewAccount(email string, name *string, passwordHash string, role Role) (*Account, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, oops.Code("ACCOUNT_INVALID_EMAIL").Errorf("email cannot be empty")
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return nil, oops.Code("ACCOUNT_INVALID_EMAIL").With("email", email).Errorf("invalid email address")
	}
	if passwordHash == "" {
		return nil, oops.Code("ACCOUNT_INVALID_PASSWORD").Errorf("password hash cannot be empty")
	}
	if !role.Valid() {
		return nil, oops.Code("ACCOUNT_INVALID_ROLE").With("role", string(role)).Errorf("unknown role %q", role)
	}
	if name != nil {
		trimmed := strings.TrimSpace(*name)
		if trimmed == "" {
			name = nil
		} else {
			name = &trimmed
		}
	}

	now := time.Now().UTC()
	return &Account{
		ID:           ulid.Make(),
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
		Role:         role,
		Status:       StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// CredentialStore is the persistence surface the login path depends on.
//
// ApplyFailureUpdate must be conditional on the stored failure counter still
// equalling expectedPrior. It returns applied=false, without error, when the
// row changed underneath the caller.
type CredentialStore interface {
	// FindByEmail returns the account with the given normalized email.
	// Returns ErrNotFound if no account has the email.
	FindByEmail(ctx context.Context, email string) (*Account, error)

	// ApplyFailureUpdate writes a new failure counter and lock expiry.
	ApplyFailureUpdate(ctx context.Context, id ulid.ULID, expectedPrior, failedAttempts uint8, lockedUntil *time.Time) (bool, error)

	// ApplySuccessReset clears the failure counter and lock expiry.
	ApplySuccessReset(ctx context.Context, id ulid.ULID) error
}

// AccountRepository is the administrative superset of CredentialStore used
// by the command line tooling.
type AccountRepository interface {
	CredentialStore

	// Create stores a new account. Returns an ACCOUNT_EMAIL_TAKEN error if
	// the email is already registered.
	Create(ctx context.Context, account *Account) error

	// GetByID retrieves an account by ID.
	GetByID(ctx context.Context, id ulid.ULID) (*Account, error)

	// SetStatus changes the activation state of an account.
	SetStatus(ctx context.Context, id ulid.ULID, status Status) error
}
