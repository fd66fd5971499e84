package telemetry_test

import (
	"context"
	"runtime/pprof"
	"strings"
	"testing"

	"github.com/cardhub/connectors/internal/infrastructure/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestNewProfiler_Disabled(t *testing.T) {
	p, err := telemetry.NewProfiler(telemetry.ProfilerConfig{Enabled: false}, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.False(t, p.IsEnabled())
	assert.NoError(t, p.Stop())
	assert.NoError(t, p.Stop())
}

func TestNewProfiler_RequiresServerAndName(t *testing.T) {
	_, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:         true,
		ApplicationName: "hub-connectors",
	}, zaptest.NewLogger(t))
	assert.ErrorContains(t, err, "server address")

	_, err = telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:       true,
		ServerAddress: "http://localhost:4040",
	}, zaptest.NewLogger(t))
	assert.ErrorContains(t, err, "application name")
}

func TestWithProfilingLabels_AppliesConnectorLabels(t *testing.T) {
	var connector, operation string
	var okConnector bool

	telemetry.WithProfilingLabels(context.Background(),
		telemetry.ConnectorLabels("concur", "report"),
		func(ctx context.Context) {
			connector, okConnector = pprof.Label(ctx, telemetry.ProfilingLabelConnector)
			operation, _ = pprof.Label(ctx, telemetry.ProfilingLabelOperation)
		})

	assert.True(t, okConnector)
	assert.Equal(t, "concur", connector)
	assert.Equal(t, "report", operation)
}

func TestWithProfilingLabels_FiltersAndTruncates(t *testing.T) {
	labels := map[string]string{
		"user_email": "a@b.c",
		"Route-Name": strings.Repeat("x", telemetry.MaxLabelValueLength+10),
		"empty":      "",
	}

	telemetry.WithProfilingLabels(context.Background(), labels, func(ctx context.Context) {
		_, ok := pprof.Label(ctx, "user_email")
		assert.False(t, ok)
		_, ok = pprof.Label(ctx, "empty")
		assert.False(t, ok)

		route, ok := pprof.Label(ctx, "route_name")
		assert.True(t, ok)
		assert.Len(t, route, telemetry.MaxLabelValueLength)
	})
}

func TestWithProfilingLabels_NoLabelsStillRuns(t *testing.T) {
	called := false
	telemetry.WithProfilingLabels(context.Background(), nil, func(context.Context) { called = true })
	assert.True(t, called)
}
