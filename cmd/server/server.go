package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/cardhub/connectors/internal/application/concur"
	"github.com/cardhub/connectors/internal/application/coupa"
	"github.com/cardhub/connectors/internal/application/hub"
	"github.com/cardhub/connectors/internal/application/salesforce"
	"github.com/cardhub/connectors/internal/application/servicenow"
	"github.com/cardhub/connectors/internal/domain/shared"
	"github.com/cardhub/connectors/internal/infrastructure/auth"
	"github.com/cardhub/connectors/internal/infrastructure/backend"
	"github.com/cardhub/connectors/internal/infrastructure/cache"
	"github.com/cardhub/connectors/internal/infrastructure/config"
	"github.com/cardhub/connectors/internal/infrastructure/i18n"
	"github.com/cardhub/connectors/internal/infrastructure/logger"
	"github.com/cardhub/connectors/internal/infrastructure/telemetry"
	"github.com/cardhub/connectors/internal/interfaces/http/handler"
	"github.com/cardhub/connectors/internal/interfaces/http/middleware"
	"github.com/cardhub/connectors/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// version is overridden at build time with -ldflags "-X main.version=...".
// When empty the configured app.version is used.
var version = ""

// app holds everything serve has to shut down.
type app struct {
	cfg    *config.Config
	log    *zap.Logger
	engine *gin.Engine
	router *router.Router

	tracer   *telemetry.TracerProvider
	meter    *telemetry.MeterProvider
	logs     *telemetry.LogPipeline
	profiler *telemetry.Profiler
	guard    shared.ReplayGuard
	limiter  *middleware.RateLimiter
}

func newLogger(cfg *config.Config, extra ...zapcore.Core) (*zap.Logger, error) {
	return logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	}, extra...)
}

func build(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	if version != "" {
		cfg.App.Version = version
	}

	log, err := newLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}
	a := &app{cfg: cfg, log: log}
	tel := cfg.Telemetry

	a.logs, err = telemetry.NewLogPipeline(ctx, telemetry.LogsConfig{
		Enabled:           tel.LogsEnabled,
		CollectorEndpoint: tel.CollectorEndpoint,
		ServiceName:       tel.ServiceName,
		ServiceVersion:    cfg.App.Version,
		Insecure:          tel.Insecure,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("initialize log export: %w", err)
	}
	if a.logs.IsEnabled() {
		// Rebuild the logger so every entry is tee'd to the collector.
		log, err = newLogger(cfg, a.logs.Core(logger.ParseLevel(cfg.Log.Level)))
		if err != nil {
			return nil, fmt.Errorf("initialize logger: %w", err)
		}
		a.log = log
	}

	a.tracer, err = telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           tel.TracingEnabled,
		CollectorEndpoint: tel.CollectorEndpoint,
		SamplingRatio:     tel.SamplingRatio,
		ServiceName:       tel.ServiceName,
		ServiceVersion:    cfg.App.Version,
		Insecure:          tel.Insecure,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("initialize tracing: %w", err)
	}

	a.meter, err = telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           tel.MetricsEnabled,
		Exporter:          tel.MetricsExporter,
		CollectorEndpoint: tel.CollectorEndpoint,
		ExportInterval:    tel.ExportInterval,
		ServiceName:       tel.ServiceName,
		ServiceVersion:    cfg.App.Version,
		Insecure:          tel.Insecure,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("initialize metrics: %w", err)
	}

	a.profiler, err = telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:           tel.ProfilingEnabled,
		ServerAddress:     tel.ProfilingServer,
		ApplicationName:   tel.ServiceName,
		ProfileGoroutines: true,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("initialize profiler: %w", err)
	}
	if a.profiler.IsEnabled() && a.tracer.IsEnabled() {
		if err := a.tracer.EnableSpanProfiles(); err != nil {
			log.Warn("Span profiles unavailable", zap.Error(err))
		}
	}

	if err := a.wire(); err != nil {
		return nil, err
	}
	return a, nil
}

// wire builds the connector services and mounts them.
func (a *app) wire() error {
	cfg, log := a.cfg, a.log
	meter := a.meter.Meter(telemetry.TracerName)

	backendMetrics, err := telemetry.NewBackendMetrics(meter)
	if err != nil {
		return fmt.Errorf("create backend metrics: %w", err)
	}
	connectorMetrics, err := telemetry.NewConnectorMetrics(meter)
	if err != nil {
		return fmt.Errorf("create connector metrics: %w", err)
	}

	tokens, err := auth.NewTokenParser(cfg.Auth)
	if err != nil {
		return fmt.Errorf("load identity token settings: %w", err)
	}
	if !tokens.Verifies() {
		log.Warn("Identity tokens are read without signature verification")
	}
	catalog, err := i18n.Load()
	if err != nil {
		return fmt.Errorf("load message bundles: %w", err)
	}

	a.guard, err = cache.NewReplayGuardFactory(cfg.Replay, cache.WithLogger(log)).Create()
	if err != nil {
		return fmt.Errorf("create replay guard: %w", err)
	}
	opts := hub.ServiceOptions{
		FanOutLimit: cfg.Backend.FanOutLimit,
		Guard:       a.guard,
		ReplayTTL:   cfg.Replay.TTL,
		Metrics:     connectorMetrics,
	}

	backendOpts := backend.OptionsFromConfig(cfg.Backend)
	backendOpts.Metrics = backendMetrics
	client := backend.NewClient(backendOpts, log)

	snow, err := servicenow.NewService(servicenow.NewClient(client), cfg.ServiceNow, connectorMetrics)
	if err != nil {
		return fmt.Errorf("create servicenow service: %w", err)
	}
	coupaSvc := coupa.NewService(coupa.NewClient(client), cfg.Coupa, opts)
	concurSvc := concur.NewService(concur.NewClient(client, cfg.Concur.TokenPath), cfg.Concur, opts)
	sf, err := salesforce.NewService(salesforce.NewClient(client, cfg.Salesforce.SOQLQueryPath, cfg.Salesforce.WorkflowPath), opts)
	if err != nil {
		return fmt.Errorf("create salesforce service: %w", err)
	}

	gin.SetMode(gin.ReleaseMode)
	if cfg.App.Env == "development" {
		gin.SetMode(gin.DebugMode)
	}
	middleware.SetupValidator()

	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
		return fmt.Errorf("set trusted proxies: %w", err)
	}

	cors := middleware.DefaultCORSConfig()
	if len(cfg.HTTP.CORSOrigins) > 0 {
		cors.AllowOrigins = cfg.HTTP.CORSOrigins
	}
	engine.Use(
		logger.Recovery(log),
		middleware.RequestID(),
		logger.GinMiddleware(log),
		middleware.TracingWithConfig(middleware.TracingConfig{
			ServiceName: cfg.Telemetry.ServiceName,
			Enabled:     a.tracer.IsEnabled(),
		}),
		middleware.SpanAttributes(),
		middleware.SpanErrorMarker(),
		middleware.HTTPMetrics(middleware.HTTPMetricsConfig{
			MeterProvider: a.meter,
			Enabled:       true,
		}),
		middleware.CORSWithConfig(cors),
		middleware.Secure(),
		middleware.BodyLimit(cfg.HTTP.MaxBodySize),
		middleware.Timeout(cfg.HTTP.RequestTimeout),
	)
	if h := a.meter.Handler(); h != nil {
		engine.GET(cfg.Telemetry.MetricsPath, gin.WrapH(h))
	}

	groupMiddleware := []gin.HandlerFunc{
		middleware.ProfilingWithConfig(middleware.ProfilingConfig{Enabled: a.profiler.IsEnabled()}),
	}
	if cfg.HTTP.RateLimit > 0 {
		a.limiter = middleware.NewRateLimiter(cfg.HTTP.RateLimit, cfg.HTTP.RateBurst, 10*time.Minute)
		groupMiddleware = append(groupMiddleware, middleware.RateLimit(a.limiter))
	}

	base := handler.NewBaseHandler(hub.NewResolver(tokens, catalog))
	r := router.NewRouter(engine, handler.NewSystemHandler(cfg.App.Version), router.WithGroupMiddleware(groupMiddleware...))

	connectors := []struct {
		name      string
		metadata  func() (hub.Metadata, error)
		registrar router.RouteRegistrar
	}{
		{servicenow.ConnectorName, servicenow.Metadata, handler.NewServiceNowHandler(base, snow)},
		{coupa.ConnectorName, coupa.Metadata, handler.NewCoupaHandler(base, coupaSvc)},
		{concur.ConnectorName, concur.Metadata, handler.NewConcurHandler(base, concurSvc)},
		{salesforce.ConnectorName, salesforce.Metadata, handler.NewSalesforceHandler(base, sf)},
	}
	for _, c := range connectors {
		meta, err := c.metadata()
		if err != nil {
			return fmt.Errorf("load %s metadata: %w", c.name, err)
		}
		r.Register(c.name, meta, c.registrar)
	}
	r.Setup()

	a.engine = engine
	a.router = r
	return nil
}

// close releases resources in reverse order of creation.
func (a *app) close(ctx context.Context) {
	if a.limiter != nil {
		a.limiter.Close()
	}
	if a.guard != nil {
		if err := a.guard.Close(); err != nil {
			a.log.Error("Error closing replay guard", zap.Error(err))
		}
	}
	if a.profiler != nil {
		if err := a.profiler.Stop(); err != nil {
			a.log.Error("Error stopping profiler", zap.Error(err))
		}
	}
	if a.meter != nil {
		if err := a.meter.Shutdown(ctx); err != nil {
			a.log.Error("Error shutting down meter provider", zap.Error(err))
		}
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			a.log.Error("Error shutting down tracer provider", zap.Error(err))
		}
	}
	if a.logs != nil {
		if err := a.logs.Shutdown(ctx); err != nil {
			a.log.Error("Error shutting down logger provider", zap.Error(err))
		}
	}
	_ = a.log.Sync()
}

func serve(ctx context.Context, configPath string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := build(ctx, configPath)
	if err != nil {
		return err
	}
	cfg, log := a.cfg, a.log

	log.Info("Starting hub connectors",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", cfg.App.Version),
	)

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        a.engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			log.Error("Server failed", zap.Error(err))
			a.close(context.Background())
			return err
		}
	case <-ctx.Done():
	}

	log.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	a.close(shutdownCtx)
	log.Info("Server exited")
	return nil
}

func printRoutes(ctx context.Context, configPath string, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := build(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, route := range a.router.Routes() {
		fmt.Fprintf(w, "%s\t%s\n", route.Method, route.Path)
	}
	return w.Flush()
}
