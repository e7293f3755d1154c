// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package auth

import "net/http"

// Client-facing login messages.
const (
	MessageInvalidCredentials = "Credenciais inválidas."
	MessageInactive           = "Usuário inativo."
	MessageLocked             = "Conta temporariamente bloqueada. Tente novamente mais tarde."
	MessageLockTriggered      = "Muitas tentativas inválidas. Conta temporariamente bloqueada."
)

// HTTPStatus maps the outcome to its response status. An unknown outcome
// maps to 500.
func (r LoginResult) HTTPStatus() int {
	switch r.Outcome {
	case OutcomeSuccess:
		return http.StatusOK
	case OutcomeInvalidCredentials:
		return http.StatusUnauthorized
	case OutcomeAccountInactive:
		return http.StatusForbidden
	case OutcomeAccountLocked:
		return http.StatusLocked
	default:
		return http.StatusInternalServerError
	}
}

// Message is the fixed client message for a rejected attempt. It is empty
// for success and for unknown outcomes. It never includes the remaining lock
// time.
func (r LoginResult) Message() string {
	switch r.Outcome {
	case OutcomeInvalidCredentials:
		return MessageInvalidCredentials
	case OutcomeAccountInactive:
		return MessageInactive
	case OutcomeAccountLocked:
		if r.LockTriggered {
			return MessageLockTriggered
		}
		return MessageLocked
	default:
		return ""
	}
}
