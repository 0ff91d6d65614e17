package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config is the process-wide configuration for the router worker, CLI and HTTP API.
type Config struct {
	Temporal TemporalConfig `mapstructure:"temporal"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	Workflow WorkflowConfig `mapstructure:"workflow"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Tools    ToolsConfig    `mapstructure:"tools"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Prompts  PromptsConfig  `mapstructure:"prompts"`
}

type TemporalConfig struct {
	Host      string `mapstructure:"host"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

type WorkerConfig struct {
	Activities int `mapstructure:"activities"`
	Workflows  int `mapstructure:"workflows"`
}

// WorkflowConfig holds the per-run knobs passed into every workflow execution.
type WorkflowConfig struct {
	ClassifyTimeout  time.Duration `mapstructure:"classify_timeout"`
	StepTimeout      time.Duration `mapstructure:"step_timeout"`
	MaxAttempts      int           `mapstructure:"max_attempts"`
	ExecutionTimeout time.Duration `mapstructure:"execution_timeout"`
}

type LLMConfig struct {
	Provider      string        `mapstructure:"provider"`
	Model         string        `mapstructure:"model"`
	APIKey        string        `mapstructure:"api_key"`
	BaseURL       string        `mapstructure:"base_url"`
	Timeout       time.Duration `mapstructure:"timeout"`
	MaxTokens     int           `mapstructure:"max_tokens"`
	MaxToolRounds int           `mapstructure:"max_tool_rounds"`
	Bedrock       BedrockConfig `mapstructure:"bedrock"`
}

type BedrockConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Region  string `mapstructure:"region"`
	Profile string `mapstructure:"profile"`
}

type ToolsConfig struct {
	Endpoint    string            `mapstructure:"endpoint"`
	SessionName string            `mapstructure:"session_name"`
	Headers     map[string]string `mapstructure:"headers"`
	Timeout     time.Duration     `mapstructure:"timeout"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`
	Schema   string `mapstructure:"schema"`
}

// ConnectionString renders a lib/pq key=value DSN.
func (p PostgresConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type HTTPConfig struct {
	Port         int           `mapstructure:"port"`
	RateLimitRPS float64       `mapstructure:"rate_limit_rps"`
	Burst        int           `mapstructure:"burst"`
	RunTimeout   time.Duration `mapstructure:"run_timeout"`
	IdemTTL      time.Duration `mapstructure:"idempotency_ttl"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

type TracingConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	ServiceName  string `mapstructure:"service_name"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type PromptsConfig struct {
	Path string `mapstructure:"path"`
}

var validProviders = map[string]bool{"openai": true, "anthropic": true}

// envBindings maps config keys to the bare environment names used by deployments.
// ROUTER_<KEY> (dots replaced by underscores) is always accepted as well.
var envBindings = map[string][]string{
	"temporal.host":         {"TEMPORAL_HOST"},
	"temporal.namespace":    {"TEMPORAL_NAMESPACE"},
	"temporal.task_queue":   {"TEMPORAL_TASK_QUEUE"},
	"llm.provider":          {"LLM_PROVIDER"},
	"llm.model":             {"LLM_MODEL"},
	"llm.api_key":           {"OPENAI_API_KEY", "ANTHROPIC_API_KEY"},
	"llm.base_url":          {"LLM_BASE_URL"},
	"tools.endpoint":        {"MCP_SERVER_URL"},
	"postgres.host":         {"POSTGRES_HOST"},
	"postgres.port":         {"POSTGRES_PORT"},
	"postgres.user":         {"POSTGRES_USER"},
	"postgres.password":     {"POSTGRES_PASSWORD"},
	"postgres.database":     {"POSTGRES_DB"},
	"postgres.sslmode":      {"POSTGRES_SSLMODE"},
	"redis.addr":            {"REDIS_ADDR"},
	"redis.password":        {"REDIS_PASSWORD"},
	"http.port":             {"HTTP_PORT"},
	"metrics.port":          {"METRICS_PORT"},
	"tracing.enabled":       {"ENABLE_TRACING"},
	"tracing.otlp_endpoint": {"OTEL_EXPORTER_OTLP_ENDPOINT"},
	"logging.level":         {"LOG_LEVEL"},
	"prompts.path":          {"PROMPTS_PATH"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("temporal.host", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "query-router")
	v.SetDefault("worker.activities", 10)
	v.SetDefault("worker.workflows", 10)
	v.SetDefault("workflow.classify_timeout", 60*time.Second)
	v.SetDefault("workflow.step_timeout", 2*time.Minute)
	v.SetDefault("workflow.max_attempts", 1)
	v.SetDefault("workflow.execution_timeout", 15*time.Minute)
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.timeout", 90*time.Second)
	v.SetDefault("llm.max_tokens", 4096)
	v.SetDefault("llm.max_tool_rounds", 8)
	v.SetDefault("tools.endpoint", "http://0.0.0.0:8100/sse")
	v.SetDefault("tools.session_name", "local")
	v.SetDefault("tools.timeout", 30*time.Second)
	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "postgres")
	v.SetDefault("postgres.database", "postgres")
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.schema", "public")
	v.SetDefault("http.port", 8081)
	v.SetDefault("http.rate_limit_rps", 5.0)
	v.SetDefault("http.burst", 10)
	v.SetDefault("http.run_timeout", 10*time.Minute)
	v.SetDefault("http.idempotency_ttl", 24*time.Hour)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 2112)
	v.SetDefault("tracing.service_name", "query-router")
	v.SetDefault("tracing.otlp_endpoint", "localhost:4317")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Load reads .env (if present), the YAML config file from CONFIG_PATH (or ./config/router.yaml)
// and environment overrides. A missing config file is not an error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("ROUTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range envBindings {
		args := append([]string{key}, names...)
		if err := v.BindEnv(args...); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "./config/router.yaml"
	}
	if _, err := os.Stat(cfgPath); err == nil {
		v.SetConfigFile(cfgPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", cfgPath, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("stat config %s: %w", cfgPath, err)
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate rejects settings the worker cannot start with.
func (c *Config) Validate() error {
	if !validProviders[strings.ToLower(c.LLM.Provider)] {
		return fmt.Errorf("llm.provider %q is not supported", c.LLM.Provider)
	}
	if c.HTTP.Port <= 0 || c.Metrics.Port <= 0 {
		return fmt.Errorf("http.port and metrics.port must be positive")
	}
	if c.Workflow.ClassifyTimeout <= 0 || c.Workflow.StepTimeout <= 0 {
		return fmt.Errorf("workflow timeouts must be positive")
	}
	if c.Workflow.MaxAttempts < 1 {
		return fmt.Errorf("workflow.max_attempts must be at least 1")
	}
	if c.Temporal.TaskQueue == "" {
		return fmt.Errorf("temporal.task_queue is required")
	}
	return nil
}

// NewLogger builds the process zap logger from the logging section.
func NewLogger(lc LoggingConfig) (*zap.Logger, error) {
	var zc zap.Config
	if strings.EqualFold(lc.Format, "console") {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	if lc.Level != "" {
		lvl, err := zapcore.ParseLevel(lc.Level)
		if err != nil {
			return nil, fmt.Errorf("parse log level: %w", err)
		}
		zc.Level = zap.NewAtomicLevelAt(lvl)
	}
	return zc.Build()
}
