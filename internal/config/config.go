package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	StoreDriver       string `mapstructure:"STORE_DRIVER"`
	DBPath            string `mapstructure:"SCRAPER_DB_PATH"`
	PostgresURL       string `mapstructure:"POSTGRES_URL"`
	ServicePort       string `mapstructure:"SERVICE_PORT"`
	PromptsFile       string `mapstructure:"PROMPTS_FILE"`
	OutputFile        string `mapstructure:"OUTPUT_FILE"`
	GenerateHTML      bool   `mapstructure:"GENERATE_HTML"`
	BatchConcurrency  int    `mapstructure:"BATCH_CONCURRENCY"`
	CronSchedule      string `mapstructure:"CRON_SCHEDULE"`
	DisableScheduler  bool   `mapstructure:"DISABLE_SCHEDULER"`
	BatchBackend      string `mapstructure:"BATCH_BACKEND"`
	TemporalAddress   string `mapstructure:"TEMPORAL_ADDRESS"`
	TemporalTaskQueue string `mapstructure:"TEMPORAL_TASK_QUEUE"`
	LLMProvider       string `mapstructure:"LLM_PROVIDER"`
	LLMModel          string `mapstructure:"LLM_MODEL"`
	LLMBaseURL        string `mapstructure:"LLM_BASE_URL"`
	OpenAIAPIKey      string `mapstructure:"OPENAI_API_KEY"`
	OpenRouterAPIKey  string `mapstructure:"OPENROUTER_API_KEY"`
	AgentMaxTurns     int    `mapstructure:"AGENT_MAX_TURNS"`
	BrowserHeadless   bool   `mapstructure:"BROWSER_HEADLESS"`
	LogLevel          string `mapstructure:"LOG_LEVEL"`
	LogFormat         string `mapstructure:"LOG_FORMAT"`
}

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"

	BackendLocal    = "local"
	BackendTemporal = "temporal"
)

// envFile is read when present; the environment always wins over it.
var envFile = ".env"

var defaults = map[string]any{
	"STORE_DRIVER":        DriverSQLite,
	"SCRAPER_DB_PATH":     "scraper_memory.db",
	"POSTGRES_URL":        "",
	"POSTGRES_USER":       "scraper",
	"POSTGRES_PASSWORD":   "scraper",
	"POSTGRES_HOST":       "localhost",
	"POSTGRES_PORT":       "5432",
	"POSTGRES_DB":         "scraper",
	"SERVICE_PORT":        "8000",
	"PROMPTS_FILE":        "prompts.txt",
	"OUTPUT_FILE":         "results/output.md",
	"GENERATE_HTML":       true,
	"BATCH_CONCURRENCY":   1,
	"CRON_SCHEDULE":       "0 2 * * *",
	"DISABLE_SCHEDULER":   false,
	"BATCH_BACKEND":       BackendLocal,
	"TEMPORAL_ADDRESS":    "localhost:7233",
	"TEMPORAL_TASK_QUEUE": "scraper-batches",
	"LLM_PROVIDER":        "openai",
	"LLM_MODEL":           "gpt-4o-mini",
	"LLM_BASE_URL":        "",
	"OPENAI_API_KEY":      "",
	"OPENROUTER_API_KEY":  "",
	"AGENT_MAX_TURNS":     12,
	"BROWSER_HEADLESS":    true,
	"LOG_LEVEL":           "info",
	"LOG_FORMAT":          "json",
}

func Load() (Config, error) {
	v := viper.New()
	v.SetConfigFile(envFile)
	v.SetConfigType("env")
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	if err := v.BindEnv("SERVICE_PORT", "SERVICE_PORT", "PORT"); err != nil {
		return Config{}, err
	}
	if err := v.ReadInConfig(); err != nil && !isMissingFile(err) {
		return Config{}, fmt.Errorf("read %s: %w", envFile, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	if cfg.PostgresURL == "" {
		cfg.PostgresURL = buildPostgresURL(v)
	}
	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))
	cfg.BatchBackend = strings.ToLower(strings.TrimSpace(cfg.BatchBackend))
	if cfg.BatchConcurrency < 1 {
		cfg.BatchConcurrency = 1
	}
	if cfg.AgentMaxTurns < 1 {
		cfg.AgentMaxTurns = 1
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	switch c.StoreDriver {
	case DriverSQLite, DriverPostgres, DriverMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	switch c.BatchBackend {
	case BackendLocal, BackendTemporal:
	default:
		return fmt.Errorf("unknown BATCH_BACKEND %q", c.BatchBackend)
	}
	return nil
}

// HTMLOutputFile is the HTML report path written beside the markdown report.
func (c Config) HTMLOutputFile() string {
	return HTMLPath(c.OutputFile)
}

func HTMLPath(markdownPath string) string {
	if strings.HasSuffix(markdownPath, ".md") {
		return strings.TrimSuffix(markdownPath, ".md") + ".html"
	}
	return markdownPath + ".html"
}

func isMissingFile(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) {
		return true
	}
	return errors.Is(err, fs.ErrNotExist)
}

func buildPostgresURL(v *viper.Viper) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		v.GetString("POSTGRES_USER"),
		v.GetString("POSTGRES_PASSWORD"),
		v.GetString("POSTGRES_HOST"),
		v.GetString("POSTGRES_PORT"),
		v.GetString("POSTGRES_DB"),
	)
}
