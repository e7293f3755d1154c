// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package httpapi

import (
	"log/slog"

	"github.com/gin-gonic/gin"
)

// RouterConfig wires the router's collaborators.
type RouterConfig struct {
	Handler  *Handler
	Tokens   TokenVerifier
	Limiter  *ClientLimiter
	Recorder RequestRecorder
	Logger   *slog.Logger
	// TrustedProxies lists proxies whose forwarding headers are honored for
	// client IPs. Nil trusts none.
	TrustedProxies []string
}

// NewRouter builds the gin engine serving the auth API.
func NewRouter(cfg RouterConfig) (*gin.Engine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	r := gin.New()
	if err := r.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, err //nolint:wrapcheck // gin reports the offending entry
	}
	r.Use(requestID(), accessLog(logger, cfg.Recorder), recovery(logger))

	r.GET("/healthz", cfg.Handler.Health)

	group := r.Group("/auth")
	if cfg.Limiter != nil {
		group.POST("/login", rateLimit(cfg.Limiter), cfg.Handler.Login)
	} else {
		group.POST("/login", cfg.Handler.Login)
	}
	group.GET("/me", RequireBearer(cfg.Tokens), cfg.Handler.Me)

	return r, nil
}
