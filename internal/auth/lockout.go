// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package auth

import (
	"time"

	"github.com/samber/oops"
)

// Lockout defaults.
const (
	// DefaultLockoutThreshold is the number of consecutive failures that locks an account.
	DefaultLockoutThreshold = 3

	// DefaultLockoutDuration is how long a lock lasts.
	DefaultLockoutDuration = 5 * time.Minute
)

// LockoutPolicy decides when an account is locked. It performs no I/O.
type LockoutPolicy struct {
	// Threshold is the failure count at which the lock engages (1..255).
	Threshold int

	// Duration is how long the lock lasts once engaged.
	Duration time.Duration
}

// DefaultLockoutPolicy returns the policy used when nothing is configured.
func DefaultLockoutPolicy() LockoutPolicy {
	return LockoutPolicy{
		Threshold: DefaultLockoutThreshold,
		Duration:  DefaultLockoutDuration,
	}
}

// Validate checks the policy bounds.
func (p LockoutPolicy) Validate() error {
	if p.Threshold < 1 || p.Threshold > MaxFailedAttempts {
		return oops.Code("LOCKOUT_INVALID_THRESHOLD").
			With("threshold", p.Threshold).
			Errorf("lockout threshold must be between 1 and %d", MaxFailedAttempts)
	}
	if p.Duration <= 0 {
		return oops.Code("LOCKOUT_INVALID_DURATION").
			With("duration", p.Duration.String()).
			Errorf("lockout duration must be positive")
	}
	return nil
}

// FailureUpdate is the counter state to persist after a wrong password.
type FailureUpdate struct {
	FailedAttempts uint8
	LockedUntil    *time.Time

	// Locked is true when this failure reached the threshold.
	Locked bool
}

// SuccessUpdate is the counter state to persist after a successful login.
type SuccessUpdate struct {
	FailedAttempts uint8
	LockedUntil    *time.Time
}

// IsLocked reports whether lockedUntil is set and strictly after now.
// A lock expiring exactly at now is already over.
func IsLocked(now time.Time, lockedUntil *time.Time) bool {
	return lockedUntil != nil && lockedUntil.After(now)
}

// IsLocked reports whether an account with the given lock expiry is locked at now.
func (p LockoutPolicy) IsLocked(now time.Time, lockedUntil *time.Time) bool {
	return IsLocked(now, lockedUntil)
}

// OnFailure increments the failure counter, saturating at MaxFailedAttempts,
// and engages the lock once the new count reaches the threshold.
func (p LockoutPolicy) OnFailure(current uint8, now time.Time) FailureUpdate {
	next := current
	if next < MaxFailedAttempts {
		next++
	}

	update := FailureUpdate{FailedAttempts: next}
	if int(next) >= p.Threshold {
		until := now.Add(p.Duration)
		update.LockedUntil = &until
		update.Locked = true
	}
	return update
}

// OnSuccess returns the reset state. It is unconditional.
func (p LockoutPolicy) OnSuccess() SuccessUpdate {
	return SuccessUpdate{FailedAttempts: 0, LockedUntil: nil}
}
