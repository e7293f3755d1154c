// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"github.com/authgate/authgate/pkg/errutil"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), "not JSON: %s", buf.String())
	return entry
}

func TestSetup_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("authgate", "1.2.0", "json", slog.LevelInfo, &buf)

	logger.Info("listening", "addr", ":3000")

	entry := decode(t, &buf)
	assert.Equal(t, "listening", entry["msg"])
	assert.Equal(t, "authgate", entry["service"])
	assert.Equal(t, "1.2.0", entry["version"])
	assert.Equal(t, ":3000", entry["addr"])
}

func TestSetup_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("authgate", "dev", "text", slog.LevelInfo, &buf)

	logger.Info("listening")

	assert.Contains(t, buf.String(), "msg=listening")
	assert.Contains(t, buf.String(), "service=authgate")
}

func TestSetup_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("authgate", "dev", "json", slog.LevelWarn, &buf)

	logger.Info("dropped")
	assert.Zero(t, buf.Len())

	logger.Warn("kept")
	assert.Equal(t, "kept", decode(t, &buf)["msg"])
}

func TestHandler_RequestAndTraceContext(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("authgate", "dev", "json", slog.LevelDebug, &buf)

	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  spanID,
	}))
	ctx = WithRequestID(ctx, "01JREQ")

	logger.With("component", "http").InfoContext(ctx, "request")

	entry := decode(t, &buf)
	assert.Equal(t, "01JREQ", entry["request_id"])
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", entry["trace_id"])
	assert.Equal(t, "00f067aa0ba902b7", entry["span_id"])
	assert.Equal(t, "http", entry["component"])
}

func TestHandler_WithoutContextValues(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("authgate", "dev", "json", slog.LevelInfo, &buf)

	logger.WithGroup("req").Info("plain", "path", "/auth/login")

	entry := decode(t, &buf)
	assert.NotContains(t, entry, "request_id")
	assert.NotContains(t, entry, "trace_id")
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"":        slog.LevelInfo,
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		" error ": slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("verbose")
	errutil.AssertErrorCode(t, err, "LOG_LEVEL_INVALID")
}
