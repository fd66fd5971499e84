package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App        AppConfig
	HTTP       HTTPConfig
	Log        LogConfig
	Auth       AuthConfig
	Backend    BackendConfig
	ServiceNow ServiceNowConfig
	Coupa      CoupaConfig
	Concur     ConcurConfig
	Salesforce SalesforceConfig
	Replay     ReplayConfig
	Telemetry  TelemetryConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name    string
	Env     string
	Port    string
	Version string
}

// HTTPConfig holds inbound server settings
type HTTPConfig struct {
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	MaxHeaderBytes  int
	MaxBodySize     int64
	TrustedProxies  []string
	CORSOrigins     []string
	RateLimit       float64 // requests per second per client, 0 disables
	RateBurst       int
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AuthConfig controls how the hub identity token is read. Without a public
// key the token is decoded without signature verification.
type AuthConfig struct {
	PublicKeyFile string
	Issuer        string
	EmailClaims   []string
}

// BackendConfig tunes the shared outbound client
type BackendConfig struct {
	Timeout             time.Duration
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration
	MaxResponseSize     int64
	RateLimit           float64 // requests per second, 0 disables
	RateBurst           int
	FanOutLimit         int
}

type ServiceNowConfig struct {
	DefaultTicketTable string
	TaskPageLimit      int
	CatalogPageLimit   int
}

type CoupaConfig struct {
	APIKey string
}

type ConcurConfig struct {
	ServiceCredential string
	TokenPath         string
}

type SalesforceConfig struct {
	SOQLQueryPath string
	WorkflowPath  string
}

// ReplayConfig configures the approval replay guard
type ReplayConfig struct {
	Enabled   bool
	TTL       time.Duration
	Store     string // memory or redis
	KeyPrefix string
	Redis     RedisConfig
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// TelemetryConfig holds tracing, metrics, log export and profiling settings
type TelemetryConfig struct {
	ServiceName       string
	CollectorEndpoint string
	Insecure          bool

	TracingEnabled bool
	SamplingRatio  float64

	MetricsEnabled  bool
	MetricsExporter string // prometheus or otlp
	MetricsPath     string
	ExportInterval  time.Duration

	LogsEnabled bool

	ProfilingEnabled bool
	ProfilingServer  string
}

// Load reads configuration.
//
// Priority (highest to lowest):
// 1. Environment variables with HUB_ prefix (e.g., HUB_COUPA_API_KEY)
// 2. .env file in the working directory
// 3. config.toml (or the file given by path)
// 4. Built-in defaults
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("error reading .env file: %w", err)
	}

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/app")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("HUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name:    v.GetString("app.name"),
			Env:     v.GetString("app.env"),
			Port:    v.GetString("app.port"),
			Version: v.GetString("app.version"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:     v.GetDuration("http.read_timeout"),
			WriteTimeout:    v.GetDuration("http.write_timeout"),
			IdleTimeout:     v.GetDuration("http.idle_timeout"),
			RequestTimeout:  v.GetDuration("http.request_timeout"),
			ShutdownTimeout: v.GetDuration("http.shutdown_timeout"),
			MaxHeaderBytes:  v.GetInt("http.max_header_bytes"),
			MaxBodySize:     v.GetInt64("http.max_body_size"),
			TrustedProxies:  v.GetStringSlice("http.trusted_proxies"),
			CORSOrigins:     v.GetStringSlice("http.cors_origins"),
			RateLimit:       v.GetFloat64("http.rate_limit"),
			RateBurst:       v.GetInt("http.rate_burst"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Auth: AuthConfig{
			PublicKeyFile: v.GetString("auth.public_key_file"),
			Issuer:        v.GetString("auth.issuer"),
			EmailClaims:   v.GetStringSlice("auth.email_claims"),
		},
		Backend: BackendConfig{
			Timeout:             v.GetDuration("backend.timeout"),
			MaxIdleConns:        v.GetInt("backend.max_idle_conns"),
			MaxIdleConnsPerHost: v.GetInt("backend.max_idle_conns_per_host"),
			IdleConnTimeout:     v.GetDuration("backend.idle_conn_timeout"),
			MaxResponseSize:     v.GetInt64("backend.max_response_size"),
			RateLimit:           v.GetFloat64("backend.rate_limit"),
			RateBurst:           v.GetInt("backend.rate_burst"),
			FanOutLimit:         v.GetInt("backend.fan_out_limit"),
		},
		ServiceNow: ServiceNowConfig{
			DefaultTicketTable: v.GetString("servicenow.default_ticket_table"),
			TaskPageLimit:      v.GetInt("servicenow.task_page_limit"),
			CatalogPageLimit:   v.GetInt("servicenow.catalog_page_limit"),
		},
		Coupa: CoupaConfig{
			APIKey: v.GetString("coupa.api_key"),
		},
		Concur: ConcurConfig{
			ServiceCredential: v.GetString("concur.service_credential"),
			TokenPath:         v.GetString("concur.token_path"),
		},
		Salesforce: SalesforceConfig{
			SOQLQueryPath: v.GetString("salesforce.soql_query_path"),
			WorkflowPath:  v.GetString("salesforce.workflow_path"),
		},
		Replay: ReplayConfig{
			Enabled:   v.GetBool("replay.enabled"),
			TTL:       v.GetDuration("replay.ttl"),
			Store:     v.GetString("replay.store"),
			KeyPrefix: v.GetString("replay.key_prefix"),
			Redis: RedisConfig{
				Host:     v.GetString("replay.redis.host"),
				Port:     v.GetInt("replay.redis.port"),
				Password: v.GetString("replay.redis.password"),
				DB:       v.GetInt("replay.redis.db"),
			},
		},
		Telemetry: TelemetryConfig{
			ServiceName:       v.GetString("telemetry.service_name"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			Insecure:          v.GetBool("telemetry.insecure"),
			TracingEnabled:    v.GetBool("telemetry.tracing_enabled"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			MetricsEnabled:    v.GetBool("telemetry.metrics_enabled"),
			MetricsExporter:   v.GetString("telemetry.metrics_exporter"),
			MetricsPath:       v.GetString("telemetry.metrics_path"),
			ExportInterval:    v.GetDuration("telemetry.export_interval"),
			LogsEnabled:       v.GetBool("telemetry.logs_enabled"),
			ProfilingEnabled:  v.GetBool("telemetry.profiling_enabled"),
			ProfilingServer:   v.GetString("telemetry.profiling_server"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "hub-connectors"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.App.Version == "" {
		cfg.App.Version = "dev"
	}

	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 60 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.RequestTimeout == 0 {
		cfg.HTTP.RequestTimeout = 45 * time.Second
	}
	if cfg.HTTP.ShutdownTimeout == 0 {
		cfg.HTTP.ShutdownTimeout = 30 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 1 << 20
	}
	if cfg.HTTP.RateLimit > 0 && cfg.HTTP.RateBurst == 0 {
		cfg.HTTP.RateBurst = int(cfg.HTTP.RateLimit) + 1
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
		if cfg.App.Env == "development" {
			cfg.Log.Format = "console"
		}
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}

	if len(cfg.Auth.EmailClaims) == 0 {
		cfg.Auth.EmailClaims = []string{"eml", "email"}
	}

	if cfg.Backend.Timeout == 0 {
		cfg.Backend.Timeout = 30 * time.Second
	}
	if cfg.Backend.MaxIdleConns == 0 {
		cfg.Backend.MaxIdleConns = 100
	}
	if cfg.Backend.MaxIdleConnsPerHost == 0 {
		cfg.Backend.MaxIdleConnsPerHost = 20
	}
	if cfg.Backend.IdleConnTimeout == 0 {
		cfg.Backend.IdleConnTimeout = 90 * time.Second
	}
	if cfg.Backend.MaxResponseSize == 0 {
		cfg.Backend.MaxResponseSize = 10 << 20
	}
	if cfg.Backend.RateBurst == 0 {
		cfg.Backend.RateBurst = 10
	}
	if cfg.Backend.FanOutLimit == 0 {
		cfg.Backend.FanOutLimit = 4
	}

	if cfg.ServiceNow.DefaultTicketTable == "" {
		cfg.ServiceNow.DefaultTicketTable = "task"
	}
	if cfg.ServiceNow.TaskPageLimit == 0 {
		cfg.ServiceNow.TaskPageLimit = 5
	}
	if cfg.ServiceNow.CatalogPageLimit == 0 {
		cfg.ServiceNow.CatalogPageLimit = 10
	}

	if cfg.Concur.TokenPath == "" {
		cfg.Concur.TokenPath = "/oauth2/v0/token"
	}

	if cfg.Salesforce.SOQLQueryPath == "" {
		cfg.Salesforce.SOQLQueryPath = "/services/data/v44.0/query"
	}
	if cfg.Salesforce.WorkflowPath == "" {
		cfg.Salesforce.WorkflowPath = "/services/data/v44.0/process/approvals"
	}

	if cfg.Replay.TTL == 0 {
		cfg.Replay.TTL = 10 * time.Minute
	}
	if cfg.Replay.Store == "" {
		cfg.Replay.Store = "memory"
	}
	if cfg.Replay.KeyPrefix == "" {
		cfg.Replay.KeyPrefix = "hub:replay:"
	}
	if cfg.Replay.Redis.Host == "" {
		cfg.Replay.Redis.Host = "localhost"
	}
	if cfg.Replay.Redis.Port == 0 {
		cfg.Replay.Redis.Port = 6379
	}

	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = cfg.App.Name
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.MetricsExporter == "" {
		cfg.Telemetry.MetricsExporter = "prometheus"
	}
	if cfg.Telemetry.MetricsPath == "" {
		cfg.Telemetry.MetricsPath = "/metrics"
	}
	if cfg.Telemetry.ExportInterval == 0 {
		cfg.Telemetry.ExportInterval = 60 * time.Second
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c.Backend.FanOutLimit < 1 {
		return fmt.Errorf("backend.fan_out_limit must be positive")
	}
	if c.HTTP.RateLimit < 0 {
		return fmt.Errorf("http.rate_limit cannot be negative")
	}
	if c.Backend.RateLimit < 0 {
		return fmt.Errorf("backend.rate_limit cannot be negative")
	}
	if c.ServiceNow.TaskPageLimit < 1 {
		return fmt.Errorf("servicenow.task_page_limit must be positive")
	}
	if c.Concur.ServiceCredential != "" && len(strings.Split(c.Concur.ServiceCredential, ":")) != 4 {
		return fmt.Errorf("concur.service_credential must have the form username:password:client-id:client-secret")
	}

	switch c.Replay.Store {
	case "memory", "redis":
	default:
		return fmt.Errorf("replay.store must be memory or redis, got %q", c.Replay.Store)
	}

	switch c.Telemetry.MetricsExporter {
	case "prometheus", "otlp":
	default:
		return fmt.Errorf("telemetry.metrics_exporter must be prometheus or otlp, got %q", c.Telemetry.MetricsExporter)
	}
	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}
	if c.Telemetry.ProfilingEnabled && c.Telemetry.ProfilingServer == "" {
		return fmt.Errorf("telemetry.profiling_server is required when profiling is enabled")
	}

	if c.App.Env == "production" && c.Auth.PublicKeyFile == "" {
		return fmt.Errorf("auth.public_key_file is required in production")
	}
	return nil
}

// Addr returns host:port for the replay redis
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}
