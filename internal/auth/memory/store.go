// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

// Package memory provides an in-process account store. It is meant for tests
// and single-instance development runs; the conditional update contract is
// the same as the PostgreSQL adapter's.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/authgate/authgate/internal/auth"
)

// AccountStore implements auth.AccountRepository in memory.
type AccountStore struct {
	mu      sync.RWMutex
	byID    map[ulid.ULID]*auth.Account
	byEmail map[string]ulid.ULID
	now     func() time.Time
}

// NewAccountStore creates an empty AccountStore.
func NewAccountStore() *AccountStore {
	return &AccountStore{
		byID:    make(map[ulid.ULID]*auth.Account),
		byEmail: make(map[string]ulid.ULID),
		now:     time.Now,
	}
}

// Create stores a copy of account.
func (s *AccountStore) Create(_ context.Context, account *auth.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byEmail[account.Email]; taken {
		return oops.Code("ACCOUNT_EMAIL_TAKEN").
			With("email", account.Email).
			Errorf("email already registered")
	}
	if _, exists := s.byID[account.ID]; exists {
		return oops.Code("ACCOUNT_CREATE_FAILED").
			With("id", account.ID.String()).
			Errorf("account id already exists")
	}

	stored := copyAccount(account)
	s.byID[stored.ID] = stored
	s.byEmail[stored.Email] = stored.ID
	return nil
}

// GetByID retrieves an account by ID.
func (s *AccountStore) GetByID(_ context.Context, id ulid.ULID) (*auth.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, ok := s.byID[id]
	if !ok {
		return nil, notFound("id", id.String())
	}
	return copyAccount(account), nil
}

// FindByEmail retrieves an account by normalized email.
func (s *AccountStore) FindByEmail(_ context.Context, email string) (*auth.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[email]
	if !ok {
		return nil, notFound("email", email)
	}
	return copyAccount(s.byID[id]), nil
}

// ApplyFailureUpdate writes the counters only if the stored failure count
// still equals expectedPrior.
func (s *AccountStore) ApplyFailureUpdate(_ context.Context, id ulid.ULID, expectedPrior, failedAttempts uint8, lockedUntil *time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.byID[id]
	if !ok || account.FailedAttempts != expectedPrior {
		return false, nil
	}
	account.FailedAttempts = failedAttempts
	account.LockedUntil = copyTime(lockedUntil)
	account.UpdatedAt = s.now().UTC()
	return true, nil
}

// ApplySuccessReset clears the failure counter and lock expiry.
func (s *AccountStore) ApplySuccessReset(_ context.Context, id ulid.ULID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.byID[id]
	if !ok {
		return notFound("id", id.String())
	}
	account.FailedAttempts = 0
	account.LockedUntil = nil
	account.UpdatedAt = s.now().UTC()
	return nil
}

// SetStatus changes the activation state of an account.
func (s *AccountStore) SetStatus(_ context.Context, id ulid.ULID, status auth.Status) error {
	if !status.Valid() {
		return oops.Code("ACCOUNT_INVALID_STATUS").With("status", string(status)).Errorf("unknown status %q", status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.byID[id]
	if !ok {
		return notFound("id", id.String())
	}
	account.Status = status
	account.UpdatedAt = s.now().UTC()
	return nil
}

func notFound(key, value string) error {
	return oops.Code("ACCOUNT_NOT_FOUND").With(key, value).Wrap(auth.ErrNotFound)
}

func copyAccount(a *auth.Account) *auth.Account {
	c := *a
	c.LockedUntil = copyTime(a.LockedUntil)
	if a.Name != nil {
		name := *a.Name
		c.Name = &name
	}
	return &c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// Compile-time interface check.
var _ auth.AccountRepository = (*AccountStore)(nil)
