// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package auth

import (
	"errors"

	"github.com/samber/oops"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// errFailureUpdateConflict marks a conditional failure update that lost a race.
var errFailureUpdateConflict = errors.New("failure counter changed concurrently")

// storeUnavailable wraps a persistence fault. The wrapped text is for
// operators only and must not reach clients.
func storeUnavailable(operation string, err error) error {
	return oops.Code("AUTH_STORE_UNAVAILABLE").
		With("operation", operation).
		Wrap(err)
}
