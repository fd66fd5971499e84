package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestFromContext_NotFound(t *testing.T) {
	assert.NotNil(t, FromContext(context.Background()))
}

func TestWithConnector(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)

	ctx, l := WithConnector(context.Background(), zap.New(core), "coupa")
	l.Info("hello")

	assert.Equal(t, "coupa", GetConnector(ctx))
	require.Len(t, recorded.All(), 1)
	assert.Equal(t, "coupa", recorded.All()[0].ContextMap()["connector"])
}

func TestContextLogger_EmailOnlyAtDebug(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)
	ctx := WithContext(context.Background(), zap.New(core))
	ctx = WithUserEmail(ctx, "admin@acme.com")

	L(ctx).Info("info entry")
	L(ctx).Debug("debug entry")

	logs := recorded.All()
	require.Len(t, logs, 2)
	_, hasEmail := logs[0].ContextMap()["user_email"]
	assert.False(t, hasEmail)
	assert.Equal(t, "admin@acme.com", logs[1].ContextMap()["user_email"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, ParseLevel("warning"))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel("bogus"))
}

func TestNew_TeesExtraCores(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)
	l, err := New(&Config{Level: "error", Format: "json", Output: "stderr"}, core)
	require.NoError(t, err)

	l.Info("to extra core only")
	assert.Len(t, recorded.All(), 1)
}
