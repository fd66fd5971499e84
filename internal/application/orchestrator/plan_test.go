package orchestrator_test

import (
	"context"
	"errors"
	"testing"

	"github.com/cardhub/connectors/internal/application/orchestrator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noop(context.Context) error { return nil }

func TestNewPlan_Levels(t *testing.T) {
	plan, err := orchestrator.NewPlan(
		orchestrator.Step{Name: "token", Run: noop},
		orchestrator.Step{Name: "user", After: []string{"token"}, Run: noop},
		orchestrator.Step{Name: "digests", After: []string{"user"}, Run: noop},
		orchestrator.Step{Name: "report", After: []string{"token", "digests"}, Run: noop},
		orchestrator.Step{Name: "locale", Run: noop},
	)
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"locale", "token"},
		{"user"},
		{"digests"},
		{"report"},
	}, plan.Levels())
}

func TestNewPlan_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		steps []orchestrator.Step
		want  string
	}{
		{
			name:  "unknown dependency",
			steps: []orchestrator.Step{{Name: "a", After: []string{"b"}, Run: noop}},
			want:  "unknown step",
		},
		{
			name: "cycle",
			steps: []orchestrator.Step{
				{Name: "a", After: []string{"b"}, Run: noop},
				{Name: "b", After: []string{"a"}, Run: noop},
			},
			want: "cycle",
		},
		{
			name:  "duplicate",
			steps: []orchestrator.Step{{Name: "a", Run: noop}, {Name: "a", Run: noop}},
			want:  "twice",
		},
		{
			name:  "missing run",
			steps: []orchestrator.Step{{Name: "a"}},
			want:  "no Run",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := orchestrator.NewPlan(tt.steps...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestPlan_RunPassesValuesDownstream(t *testing.T) {
	var loginID, report string
	plan, err := orchestrator.NewPlan(
		orchestrator.Step{Name: "user", Run: func(context.Context) error {
			loginID = "jdoe"
			return nil
		}},
		orchestrator.Step{Name: "report", After: []string{"user"}, Run: func(context.Context) error {
			report = "report-for-" + loginID
			return nil
		}},
	)
	require.NoError(t, err)
	require.NoError(t, plan.Run(context.Background()))
	assert.Equal(t, "report-for-jdoe", report)
}

func TestPlan_RunStopsOnError(t *testing.T) {
	boom := errors.New("backend down")
	ran := false
	plan, err := orchestrator.NewPlan(
		orchestrator.Step{Name: "first", Run: func(context.Context) error { return boom }},
		orchestrator.Step{Name: "second", After: []string{"first"}, Run: func(context.Context) error {
			ran = true
			return nil
		}},
	)
	require.NoError(t, err)
	assert.ErrorIs(t, plan.Run(context.Background()), boom)
	assert.False(t, ran)
}
