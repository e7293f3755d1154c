// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

// Package httpapi exposes the login service over HTTP with gin.
//
// POST /auth/login answers 200 with a token, or a fixed message per outcome:
// 400 for malformed input, 401 for bad credentials, 403 for inactive
// accounts, 423 for locked accounts, 429 when the client is rate limited and
// 500 for internal faults. 401 bodies are identical for unknown emails and
// wrong passwords. GET /auth/me echoes the claims of a bearer token.
package httpapi
