// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

// Package auth decides login attempts for authgate.
//
// # Domain Types
//
// Account is the stored credential record. New accounts should be created
// with NewAccount, which normalizes the email and validates role and hash.
//
// # Lockout
//
// LockoutPolicy is pure: it says whether an account is locked at a given
// instant and what counter state to persist after a failure or a success.
// The lock engages when the failure count reaches the threshold, never
// earlier, and an expiry equal to the current instant is already unlocked.
//
// # Services
//
// Service.Login coordinates a CredentialStore, a PasswordVerifier, the
// LockoutPolicy and a TokenIssuer. Credential decisions come back as a
// LoginResult; only store and signing faults are returned as errors.
//
// Failure counters are persisted with a conditional update keyed on the
// previously read count. A lost race is retried against a fresh read, so
// concurrent wrong passwords are all counted even across service instances.
package auth
