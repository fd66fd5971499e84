package cache

import (
	"fmt"

	"github.com/cardhub/connectors/internal/domain/shared"
	"github.com/cardhub/connectors/internal/infrastructure/config"
	"go.uber.org/zap"
)

// ReplayGuardFactory builds the replay guard selected by configuration.
type ReplayGuardFactory struct {
	cfg                   config.ReplayConfig
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// ReplayGuardFactoryOption is a functional option for configuring the factory
type ReplayGuardFactoryOption func(*ReplayGuardFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) ReplayGuardFactoryOption {
	return func(f *ReplayGuardFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether an unreachable Redis degrades to the
// in-memory guard. Default is true.
func WithInMemoryFallback(allow bool) ReplayGuardFactoryOption {
	return func(f *ReplayGuardFactory) {
		f.allowInMemoryFallback = allow
	}
}

// NewReplayGuardFactory creates a new factory
func NewReplayGuardFactory(cfg config.ReplayConfig, opts ...ReplayGuardFactoryOption) *ReplayGuardFactory {
	f := &ReplayGuardFactory{
		cfg:                   cfg,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Create returns the configured guard: a no-op guard when disabled, the
// in-memory guard for store "memory", Redis otherwise.
func (f *ReplayGuardFactory) Create() (shared.ReplayGuard, error) {
	if !f.cfg.Enabled {
		f.logger.Info("action replay guard disabled")
		return NoopReplayGuard{}, nil
	}
	if f.cfg.Store != "redis" {
		f.logger.Info("using in-memory replay guard")
		return NewInMemoryReplayGuard(), nil
	}

	guard, err := NewRedisReplayGuard(RedisConfig{
		Host:     f.cfg.Redis.Host,
		Port:     f.cfg.Redis.Port,
		Password: f.cfg.Redis.Password,
		DB:       f.cfg.Redis.DB,
	}, f.cfg.KeyPrefix)
	if err == nil {
		f.logger.Info("using Redis replay guard")
		return guard, nil
	}

	if !f.allowInMemoryFallback {
		return nil, fmt.Errorf("redis required for replay guard but unavailable: %w", err)
	}

	f.logger.Warn("Redis unavailable, falling back to in-memory replay guard. "+
		"Duplicate hub retries may reach the backend when several instances run.",
		zap.Error(err),
	)
	return NewInMemoryReplayGuard(), nil
}
