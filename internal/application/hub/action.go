package hub

import (
	"context"
	"time"

	"github.com/cardhub/connectors/internal/domain/shared"
	"github.com/cardhub/connectors/internal/infrastructure/logger"
	"github.com/cardhub/connectors/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// DefaultReplayTTL is used when ServiceOptions leaves ReplayTTL unset.
const DefaultReplayTTL = 10 * time.Minute

// ServiceOptions carries the collaborators every connector service shares.
type ServiceOptions struct {
	FanOutLimit int
	// Guard is optional; nil disables replay protection.
	Guard     shared.ReplayGuard
	ReplayTTL time.Duration
	Metrics   *telemetry.ConnectorMetrics
}

// ActionGuard applies approval-style mutations at most once per replay
// window for a given user, action and object.
type ActionGuard struct {
	connector string
	guard     shared.ReplayGuard
	ttl       time.Duration
	metrics   *telemetry.ConnectorMetrics
}

func NewActionGuard(connector string, opts ServiceOptions) *ActionGuard {
	ttl := opts.ReplayTTL
	if ttl <= 0 {
		ttl = DefaultReplayTTL
	}
	return &ActionGuard{connector: connector, guard: opts.Guard, ttl: ttl, metrics: opts.Metrics}
}

// Do runs apply unless the same action on objectID by email was already
// claimed within the window, and reports whether apply ran. A failed apply
// releases the claim so the user can retry.
func (g *ActionGuard) Do(ctx context.Context, action, objectID, email string, apply func(ctx context.Context) error) (bool, error) {
	if g.guard == nil {
		if err := apply(ctx); err != nil {
			return false, err
		}
		g.metrics.ActionApplied(ctx, g.connector, action)
		return true, nil
	}

	key := shared.ReplayKey(g.connector, action, objectID, email)
	claimed, err := g.guard.Claim(ctx, key, g.ttl)
	if err != nil {
		return false, err
	}
	if !claimed {
		g.metrics.ActionReplayed(ctx, g.connector, action)
		logger.L(ctx).Info("Duplicate action skipped",
			zap.String("connector", g.connector),
			zap.String("action", action),
			zap.String("object_id", objectID),
		)
		return false, nil
	}

	if err := apply(ctx); err != nil {
		if relErr := g.guard.Release(ctx, key); relErr != nil {
			logger.L(ctx).Warn("Failed to release replay key", zap.String("key", key), zap.Error(relErr))
		}
		return false, err
	}
	g.metrics.ActionApplied(ctx, g.connector, action)
	return true, nil
}

// Decision is the outcome of an approve or reject action. Replayed is set
// when the same action was already applied within the replay window and the
// backend was not called again.
type Decision struct {
	Body     []byte
	Replayed bool
}
