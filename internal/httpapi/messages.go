// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package httpapi

// Client-facing messages outside the login outcomes, which come from
// auth.LoginResult.Message.
const (
	msgInvalidInput    = "Dados inválidos."
	msgTooManyRequests = "Muitas requisições. Tente novamente mais tarde."
	msgInternal        = "Erro interno do servidor."
	msgInvalidToken    = "Token inválido ou expirado."
)

type messageResponse struct {
	Message string `json:"message"`
}
