// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package httpapi

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"

	"github.com/authgate/authgate/internal/logging"
)

// Gin context keys set by RequireBearer.
const (
	ctxSubject = "auth.subject"
	ctxRole    = "auth.role"
)

const requestIDHeader = "X-Request-ID"

// RequestRecorder counts API responses.
type RequestRecorder interface {
	RecordHTTPRequest(route string, status int)
}

// requestID propagates or assigns a request ID and attaches it to the
// request context for logging.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" || len(id) > 64 {
			id = ulid.Make().String()
		}
		c.Header(requestIDHeader, id)
		c.Request = c.Request.WithContext(logging.WithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

// accessLog logs one line per request and feeds the request counter.
func accessLog(logger *slog.Logger, recorder RequestRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		if recorder != nil {
			recorder.RecordHTTPRequest(route, status)
		}

		level := slog.LevelInfo
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		logger.Log(c.Request.Context(), level, "http request",
			"method", c.Request.Method,
			"route", route,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		)
	}
}

// recovery turns a handler panic into the generic 500 body.
func recovery(logger *slog.Logger) gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(nil, func(c *gin.Context, recovered any) {
		logger.ErrorContext(c.Request.Context(), "handler panic", "panic", recovered)
		c.AbortWithStatusJSON(http.StatusInternalServerError, messageResponse{msgInternal})
	})
}

// rateLimit rejects clients that exceed their token bucket.
func rateLimit(limiter *ClientLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, messageResponse{msgTooManyRequests})
			return
		}
		c.Next()
	}
}

// RequireBearer admits requests carrying a valid bearer token and exposes
// its subject and role to later handlers.
func RequireBearer(tokens TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, messageResponse{msgInvalidToken})
			return
		}

		v := tokens.Verify(raw)
		if !v.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, messageResponse{msgInvalidToken})
			return
		}

		c.Set(ctxSubject, v.Subject)
		c.Set(ctxRole, string(v.Role))
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
