package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"userbus/pkg/logging"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"info":    zapcore.InfoLevel,
		"warn":    zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"unknown": zapcore.InfoLevel,
	}
	for input, want := range tests {
		t.Run(input, func(t *testing.T) {
			assert.Equal(t, want, ParseLevel(input))
		})
	}
}

func TestSugaredLogger_ContextFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := NewFromZap(zap.New(core), "publisher-service")

	ctx := logging.WithInvocationID(context.Background(), "inv-1")
	log.WarnwCtx(ctx, "attempt failed", "delivery_count", "1/2")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)

	fields := entries[0].ContextMap()
	assert.Equal(t, "inv-1", fields[logging.InvocationIDKey])
	assert.Equal(t, "publisher-service", fields[logging.ServiceNameKey])
	assert.Equal(t, "1/2", fields["delivery_count"])
}

func TestSugaredLogger_LogwCtxLevel(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	log := NewFromZap(zap.New(core), "")

	log.LogwCtx(context.Background(), zapcore.DebugLevel, "hidden")
	log.LogwCtx(context.Background(), zapcore.ErrorLevel, "shown")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "shown", logs.All()[0].Message)
}

func TestNopLogger(t *testing.T) {
	assert.NotPanics(t, func() {
		NopLogger().InfowCtx(context.Background(), "nothing")
	})
}
