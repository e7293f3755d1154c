// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/authgate/authgate/internal/auth"
	"github.com/authgate/authgate/pkg/errutil"
)

// Authenticator decides login attempts.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (auth.LoginResult, error)
}

// TokenVerifier validates bearer tokens.
type TokenVerifier interface {
	Verify(raw string) auth.Verification
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required,max=1024"`
}

type loginResponse struct {
	Token string              `json:"token"`
	User  *auth.PublicAccount `json:"user"`
}

type meResponse struct {
	UserID string    `json:"userId"`
	Role   auth.Role `json:"role"`
}

// Handler serves the auth routes.
type Handler struct {
	auth     Authenticator
	validate *validator.Validate
	logger   *slog.Logger
}

// NewHandler creates a Handler. A nil logger discards.
func NewHandler(authenticator Authenticator, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{
		auth:     authenticator,
		validate: validator.New(),
		logger:   logger,
	}
}

// Login handles POST /auth/login.
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, messageResponse{msgInvalidInput})
		return
	}

	email := auth.NormalizeEmail(req.Email)
	if err := h.validate.Var(email, "required,email,max=254"); err != nil {
		c.JSON(http.StatusBadRequest, messageResponse{msgInvalidInput})
		return
	}

	result, err := h.auth.Login(c.Request.Context(), email, req.Password)
	if err != nil {
		errutil.LogError(c.Request.Context(), h.logger, "login failed", err)
		c.JSON(http.StatusInternalServerError, messageResponse{msgInternal})
		return
	}

	switch status := result.HTTPStatus(); status {
	case http.StatusOK:
		c.JSON(status, loginResponse{Token: result.Token, User: result.Account})
	case http.StatusInternalServerError:
		h.logger.ErrorContext(c.Request.Context(), "unknown login outcome", "outcome", string(result.Outcome))
		c.JSON(status, messageResponse{msgInternal})
	default:
		c.JSON(status, messageResponse{result.Message()})
	}
}

// Me handles GET /auth/me behind RequireBearer.
func (h *Handler) Me(c *gin.Context) {
	c.JSON(http.StatusOK, meResponse{
		UserID: c.GetString(ctxSubject),
		Role:   auth.Role(c.GetString(ctxRole)),
	})
}

// Health handles GET /healthz.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
