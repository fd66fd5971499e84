package telemetry

import (
	"context"
	"fmt"
	"slices"
	"time"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/log/global"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DefaultRedactedLogKeys are the zap field keys kept out of exported logs.
// Connector debug logs name the caller by email; the collector never sees it.
var DefaultRedactedLogKeys = []string{"user_email"}

// LogsConfig configures OTLP log export.
type LogsConfig struct {
	Enabled           bool
	CollectorEndpoint string
	ServiceName       string
	ServiceVersion    string
	Insecure          bool
	// RedactKeys overrides DefaultRedactedLogKeys when non-nil.
	RedactKeys []string
}

// LogPipeline ships zap entries to the collector over OTLP. A disabled
// pipeline exports nothing and hands out a no-op core.
type LogPipeline struct {
	provider *sdklog.LoggerProvider
	logger   *zap.Logger
	config   LogsConfig
}

// NewLogPipeline starts the OTLP log exporter when cfg.Enabled is set.
func NewLogPipeline(ctx context.Context, cfg LogsConfig, logger *zap.Logger) (*LogPipeline, error) {
	if cfg.RedactKeys == nil {
		cfg.RedactKeys = DefaultRedactedLogKeys
	}
	p := &LogPipeline{logger: logger, config: cfg}
	if !cfg.Enabled {
		logger.Info("Log export disabled")
		return p, nil
	}

	opts := []otlploggrpc.Option{otlploggrpc.WithEndpoint(cfg.CollectorEndpoint)}
	if cfg.Insecure {
		opts = append(opts, otlploggrpc.WithInsecure())
	}
	exporter, err := otlploggrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP logs exporter: %w", err)
	}

	res, err := newResource(cfg.ServiceName, cfg.ServiceVersion)
	if err != nil {
		return nil, err
	}
	p.provider = sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter)),
	)
	global.SetLoggerProvider(p.provider)

	logger.Info("Log export started",
		zap.String("collector_endpoint", cfg.CollectorEndpoint),
		zap.Strings("redacted_keys", cfg.RedactKeys),
	)
	return p, nil
}

// IsEnabled reports whether entries are being exported.
func (p *LogPipeline) IsEnabled() bool {
	return p != nil && p.provider != nil
}

// Core returns the zap core feeding the pipeline at level and above, for
// teeing next to the stdout core. Redacted fields are dropped from every
// exported entry, including fields attached with With.
func (p *LogPipeline) Core(level zapcore.Level) zapcore.Core {
	if !p.IsEnabled() {
		return zapcore.NewNopCore()
	}
	return &exportCore{
		Core:   otelzap.NewCore(p.config.ServiceName, otelzap.WithLoggerProvider(p.provider)),
		level:  level,
		redact: p.config.RedactKeys,
	}
}

// ForceFlush exports pending entries.
func (p *LogPipeline) ForceFlush(ctx context.Context) error {
	if !p.IsEnabled() {
		return nil
	}
	return p.provider.ForceFlush(ctx)
}

// Shutdown flushes and stops the exporter, waiting at most ten seconds.
func (p *LogPipeline) Shutdown(ctx context.Context) error {
	if !p.IsEnabled() {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := p.provider.Shutdown(ctx); err != nil {
		p.logger.Error("Log export shutdown failed", zap.Error(err))
		return fmt.Errorf("failed to shutdown logger provider: %w", err)
	}
	p.logger.Info("Log export stopped")
	return nil
}

// exportCore gates the otelzap core by level and strips redacted fields.
type exportCore struct {
	zapcore.Core
	level  zapcore.Level
	redact []string
}

func (c *exportCore) Enabled(lvl zapcore.Level) bool {
	return lvl >= c.level && c.Core.Enabled(lvl)
}

func (c *exportCore) With(fields []zapcore.Field) zapcore.Core {
	return &exportCore{Core: c.Core.With(c.strip(fields)), level: c.level, redact: c.redact}
}

func (c *exportCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *exportCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	return c.Core.Write(ent, c.strip(fields))
}

func (c *exportCore) strip(fields []zapcore.Field) []zapcore.Field {
	if !slices.ContainsFunc(fields, c.redacted) {
		return fields
	}
	out := make([]zapcore.Field, 0, len(fields))
	for _, f := range fields {
		if !c.redacted(f) {
			out = append(out, f)
		}
	}
	return out
}

func (c *exportCore) redacted(f zapcore.Field) bool {
	return slices.Contains(c.redact, f.Key)
}
