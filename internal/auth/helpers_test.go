// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package auth_test

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/authgate/authgate/internal/auth"
	"github.com/authgate/authgate/internal/auth/memory"
)

// fakeClock is a settable time source shared by the service and token issuer.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// plainVerifier matches hashes of the form "plain:<password>" and counts calls.
type plainVerifier struct {
	calls atomic.Int64
}

func plainHash(password string) string {
	return "plain:" + password
}

func (v *plainVerifier) Verify(password, hash string) (bool, error) {
	v.calls.Add(1)
	if hash == "corrupt" {
		return false, assertErr("unreadable hash")
	}
	stored, ok := strings.CutPrefix(hash, "plain:")
	return ok && stored == password, nil
}

type assertErr string

func (e assertErr) Error() string { return string(e) }

// countingStore wraps the memory store and counts writes.
type countingStore struct {
	*memory.AccountStore
	failureWrites atomic.Int64
	resetWrites   atomic.Int64
}

func (s *countingStore) ApplyFailureUpdate(ctx context.Context, id ulid.ULID, expectedPrior, failedAttempts uint8, lockedUntil *time.Time) (bool, error) {
	s.failureWrites.Add(1)
	return s.AccountStore.ApplyFailureUpdate(ctx, id, expectedPrior, failedAttempts, lockedUntil)
}

func (s *countingStore) ApplySuccessReset(ctx context.Context, id ulid.ULID) error {
	s.resetWrites.Add(1)
	return s.AccountStore.ApplySuccessReset(ctx, id)
}

func (s *countingStore) writes() int64 {
	return s.failureWrites.Load() + s.resetWrites.Load()
}

// mockStore is a testify mock of auth.CredentialStore.
type mockStore struct {
	mock.Mock
}

func (m *mockStore) FindByEmail(ctx context.Context, email string) (*auth.Account, error) {
	args := m.Called(ctx, email)
	account, _ := args.Get(0).(*auth.Account)
	return account, args.Error(1)
}

func (m *mockStore) ApplyFailureUpdate(ctx context.Context, id ulid.ULID, expectedPrior, failedAttempts uint8, lockedUntil *time.Time) (bool, error) {
	args := m.Called(ctx, id, expectedPrior, failedAttempts, lockedUntil)
	return args.Bool(0), args.Error(1)
}

func (m *mockStore) ApplySuccessReset(ctx context.Context, id ulid.ULID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// recordingRecorder captures LoginRecorder calls.
type recordingRecorder struct {
	mu        sync.Mutex
	outcomes  []auth.Outcome
	triggered int
	conflicts int
}

func (r *recordingRecorder) RecordLogin(outcome auth.Outcome, lockTriggered bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
	if lockTriggered {
		r.triggered++
	}
}

func (r *recordingRecorder) RecordUpdateConflict() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conflicts++
}

// fixture bundles a service over a counting memory store.
type fixture struct {
	svc      *auth.Service
	store    *countingStore
	verifier *plainVerifier
	clock    *fakeClock
	tokens   *auth.TokenIssuer
}

func newFixture(t *testing.T, opts ...auth.ServiceOption) *fixture {
	t.Helper()

	clock := newFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	store := &countingStore{AccountStore: memory.NewAccountStore()}
	verifier := &plainVerifier{}

	tokens, err := auth.NewTokenIssuer(testSecret, time.Hour, auth.WithTokenClock(clock.Now))
	require.NoError(t, err)

	policy := auth.LockoutPolicy{Threshold: 3, Duration: 5 * time.Minute}
	opts = append([]auth.ServiceOption{auth.WithClock(clock.Now)}, opts...)
	svc, err := auth.NewService(store, verifier, tokens, policy, opts...)
	require.NoError(t, err)

	return &fixture{svc: svc, store: store, verifier: verifier, clock: clock, tokens: tokens}
}

func (f *fixture) addAccount(t *testing.T, email, password string, role auth.Role) *auth.Account {
	t.Helper()
	account, err := auth.NewAccount(email, nil, plainHash(password), role)
	require.NoError(t, err)
	require.NoError(t, f.store.Create(context.Background(), account))
	return account
}

func (f *fixture) reload(t *testing.T, id ulid.ULID) *auth.Account {
	t.Helper()
	account, err := f.store.GetByID(context.Background(), id)
	require.NoError(t, err)
	return account
}
