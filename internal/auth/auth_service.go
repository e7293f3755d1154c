// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("github.com/authgate/authgate/internal/auth")

// Failure-update retry defaults.
const (
	DefaultMaxUpdateRetries = 5
	DefaultRetryBackoff     = 10 * time.Millisecond
	DefaultWriteTimeout     = 5 * time.Second
)

// Outcome is the credential decision of a login attempt.
type Outcome string

// Login outcomes.
const (
	OutcomeSuccess            Outcome = "success"
	OutcomeInvalidCredentials Outcome = "invalid_credentials"
	OutcomeAccountInactive    Outcome = "account_inactive"
	OutcomeAccountLocked      Outcome = "account_locked"
)

// LoginResult is the resolved decision of Service.Login.
type LoginResult struct {
	Outcome Outcome

	// LockTriggered is set with OutcomeAccountLocked when this very attempt
	// engaged the lock.
	LockTriggered bool

	// Token, ExpiresAt and Account are set only for OutcomeSuccess.
	Token     string
	ExpiresAt time.Time
	Account   *PublicAccount
}

// LoginRecorder receives login metrics.
type LoginRecorder interface {
	RecordLogin(outcome Outcome, lockTriggered bool)
	RecordUpdateConflict()
}

type noopRecorder struct{}

func (noopRecorder) RecordLogin(Outcome, bool) {}
func (noopRecorder) RecordUpdateConflict()     {}

// dummyPasswordHash is verified when the email is unknown so that the
// response time does not reveal whether the account exists.
//
//nolint:gosec // G101: intentionally fake hash, never matches any password.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// Service decides login attempts.
type Service struct {
	store        CredentialStore
	verifier     PasswordVerifier
	tokens       *TokenIssuer
	policy       LockoutPolicy
	logger       *slog.Logger
	recorder     LoginRecorder
	now          func() time.Time
	maxRetries   uint64
	retryBackoff time.Duration
	writeTimeout time.Duration
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the time source used for lock decisions.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(recorder LoginRecorder) ServiceOption {
	return func(s *Service) {
		if recorder != nil {
			s.recorder = recorder
		}
	}
}

// WithUpdateRetry bounds the retries of a conflicting failure update.
func WithUpdateRetry(maxRetries uint64, backoff time.Duration) ServiceOption {
	return func(s *Service) {
		s.maxRetries = maxRetries
		if backoff > 0 {
			s.retryBackoff = backoff
		}
	}
}

// NewService creates a login Service.
// Returns an error if any dependency is nil or the policy is out of bounds.
func NewService(store CredentialStore, verifier PasswordVerifier, tokens *TokenIssuer, policy LockoutPolicy, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, oops.Errorf("credential store is required")
	}
	if verifier == nil {
		return nil, oops.Errorf("password verifier is required")
	}
	if tokens == nil {
		return nil, oops.Errorf("token issuer is required")
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	s := &Service{
		store:        store,
		verifier:     verifier,
		tokens:       tokens,
		policy:       policy,
		logger:       slog.New(slog.DiscardHandler),
		recorder:     noopRecorder{},
		now:          time.Now,
		maxRetries:   DefaultMaxUpdateRetries,
		retryBackoff: DefaultRetryBackoff,
		writeTimeout: DefaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Login authenticates email/password. Credential and lockout decisions are
// reported in the LoginResult; the error is reserved for store and signing
// faults. The email must already be normalized.
func (s *Service) Login(ctx context.Context, email, password string) (LoginResult, error) {
	ctx, span := tracer.Start(ctx, "auth.Login")
	defer span.End()

	result, err := s.login(ctx, email, password)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "login failed")
		return result, err
	}
	span.SetAttributes(
		attribute.String("auth.outcome", string(result.Outcome)),
		attribute.Bool("auth.lock_triggered", result.LockTriggered),
	)
	return result, nil
}

func (s *Service) login(ctx context.Context, email, password string) (LoginResult, error) {
	account, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			_, _ = s.verifier.Verify(password, dummyPasswordHash) //nolint:errcheck // timing only
			return s.decide(LoginResult{Outcome: OutcomeInvalidCredentials}), nil
		}
		return LoginResult{}, storeUnavailable("find account by email", err)
	}

	if !account.IsActive() {
		return s.decide(LoginResult{Outcome: OutcomeAccountInactive}), nil
	}

	now := s.now()
	if s.policy.IsLocked(now, account.LockedUntil) {
		return s.decide(LoginResult{Outcome: OutcomeAccountLocked}), nil
	}

	valid, verifyErr := s.verifier.Verify(password, account.PasswordHash)
	if verifyErr != nil {
		s.logger.ErrorContext(ctx, "stored password hash is unreadable, treating as mismatch",
			"account_id", account.ID.String(),
			"error", verifyErr,
		)
		valid = false
	}

	if !valid {
		result, err := s.recordFailure(ctx, account, now)
		if err != nil {
			return LoginResult{}, err
		}
		return s.decide(result), nil
	}

	if h, ok := s.verifier.(PasswordHasher); ok && h.NeedsUpgrade(account.PasswordHash) {
		s.logger.InfoContext(ctx, "password hash uses a legacy scheme",
			"account_id", account.ID.String(),
		)
	}

	if account.hasLockoutState() {
		if err := s.resetCounters(ctx, account); err != nil {
			return LoginResult{}, err
		}
	}

	issued, err := s.tokens.Issue(account.ID.String(), account.Role)
	if err != nil {
		return LoginResult{}, err
	}

	public := account.Public()
	return s.decide(LoginResult{
		Outcome:   OutcomeSuccess,
		Token:     issued.Token,
		ExpiresAt: issued.ExpiresAt,
		Account:   &public,
	}), nil
}

// recordFailure persists a wrong-password attempt. The conditional update is
// retried against a fresh read when a concurrent attempt moved the counter.
// Once retries are exhausted the attempt is still rejected.
func (s *Service) recordFailure(ctx context.Context, account *Account, now time.Time) (LoginResult, error) {
	writeCtx, cancel := s.writeContext(ctx)
	defer cancel()

	current := account
	var result LoginResult

	backoff := retry.NewConstant(s.retryBackoff)
	if jitter := s.retryBackoff / 2; jitter > 0 {
		backoff = retry.WithJitter(jitter, backoff)
	}
	backoff = retry.WithMaxRetries(s.maxRetries, backoff)

	err := retry.Do(writeCtx, backoff, func(ctx context.Context) error {
		if current == nil {
			fresh, err := s.store.FindByEmail(ctx, account.Email)
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					result = LoginResult{Outcome: OutcomeInvalidCredentials}
					return nil
				}
				return storeUnavailable("reload account after conflict", err)
			}
			current = fresh
		}

		update := s.policy.OnFailure(current.FailedAttempts, now)

		// A concurrent attempt already engaged the lock: count this failure
		// but keep the existing expiry.
		alreadyLocked := s.policy.IsLocked(now, current.LockedUntil)
		if alreadyLocked {
			update.LockedUntil = current.LockedUntil
			update.Locked = false
		}

		applied, err := s.store.ApplyFailureUpdate(ctx, current.ID, current.FailedAttempts, update.FailedAttempts, update.LockedUntil)
		if err != nil {
			return storeUnavailable("apply failure update", err)
		}
		if !applied {
			s.recorder.RecordUpdateConflict()
			s.logger.DebugContext(ctx, "failure counter changed concurrently, retrying",
				"account_id", current.ID.String(),
				"expected_prior", current.FailedAttempts,
			)
			current = nil
			return retry.RetryableError(errFailureUpdateConflict)
		}

		switch {
		case alreadyLocked:
			result = LoginResult{Outcome: OutcomeAccountLocked}
		case update.Locked:
			result = LoginResult{Outcome: OutcomeAccountLocked, LockTriggered: true}
			s.logger.InfoContext(ctx, "account locked after repeated failures",
				"account_id", current.ID.String(),
				"failed_attempts", update.FailedAttempts,
			)
		default:
			result = LoginResult{Outcome: OutcomeInvalidCredentials}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, errFailureUpdateConflict) {
			s.logger.WarnContext(ctx, "failure update retries exhausted, rejecting attempt",
				"account_id", account.ID.String(),
				"max_retries", s.maxRetries,
			)
			return LoginResult{Outcome: OutcomeInvalidCredentials}, nil
		}
		if _, ok := oops.AsOops(err); ok {
			return LoginResult{}, err
		}
		return LoginResult{}, storeUnavailable("apply failure update", err)
	}
	return result, nil
}

func (s *Service) resetCounters(ctx context.Context, account *Account) error {
	writeCtx, cancel := s.writeContext(ctx)
	defer cancel()

	if err := s.store.ApplySuccessReset(writeCtx, account.ID); err != nil {
		return storeUnavailable("apply success reset", err)
	}
	return nil
}

// writeContext detaches counter writes from caller cancellation so that an
// abandoned request still completes its update.
func (s *Service) writeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.writeTimeout)
}

func (s *Service) decide(result LoginResult) LoginResult {
	s.recorder.RecordLogin(result.Outcome, result.LockTriggered)
	return result
}
