package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	yaml "gopkg.in/yaml.v3"
)

const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"

	EgressHTTP   = "http"
	EgressDryRun = "dryrun"

	minRedisTTLSec = 24 * 3600
)

type AppConfig struct {
	HTTPAddr      string `yaml:"http_addr"`
	PublicBaseURL string `yaml:"public_base_url"`

	KenarBaseURL     string `yaml:"kenar_base_url"`
	KenarAPIKey      string `yaml:"kenar_api_key"`
	KenarAPIKeyParam string `yaml:"kenar_api_key_param"`
	EgressMode       string `yaml:"egress_mode"`

	StoreBackend    string `yaml:"store_backend"`
	RedisURL        string `yaml:"redis_url"`
	RedisTTLSec     int    `yaml:"redis_ttl_sec"`
	DatabaseURL     string `yaml:"database_url"`
	SQLitePath      string `yaml:"sqlite_path"`
	StoreMaxRetries int    `yaml:"store_max_retries"`

	AssistantBaseURL     string `yaml:"assistant_base_url"`
	AssistantAPIKey      string `yaml:"assistant_api_key"`
	AssistantAPIKeyParam string `yaml:"assistant_api_key_param"`
	AssistantModel       string `yaml:"assistant_model"`
	AssistantDailyLimit  int    `yaml:"assistant_daily_limit"`

	RestartCommand string `yaml:"restart_command"`
	AskCommand     string `yaml:"ask_command"`
	MessagesDir    string `yaml:"messages_dir"`
	DedupeTTLSec   int    `yaml:"dedupe_ttl_sec"`
}

func defaults() *AppConfig {
	return &AppConfig{
		HTTPAddr:            ":8080",
		KenarBaseURL:        "https://api.divar.ir",
		EgressMode:          EgressHTTP,
		StoreBackend:        StoreMemory,
		SQLitePath:          "xo.db",
		StoreMaxRetries:     5,
		RedisTTLSec:         30 * 24 * 3600,
		AssistantModel:      "gpt-4o-mini",
		AssistantDailyLimit: 10,
		RestartCommand:      "/restart",
		AskCommand:          "/ask",
		DedupeTTLSec:        600,
	}
}

// Load applies defaults, then CONFIG_FILE (YAML) when set, then the environment.
func Load() (*AppConfig, error) {
	cfg := defaults()
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	setString(&cfg.HTTPAddr, "HTTP_ADDR")
	setString(&cfg.PublicBaseURL, "PUBLIC_BASE_URL")
	setString(&cfg.KenarBaseURL, "KENAR_BASE_URL")
	setString(&cfg.KenarAPIKey, "KENAR_API_KEY")
	setString(&cfg.KenarAPIKeyParam, "KENAR_API_KEY_PARAM")
	setString(&cfg.EgressMode, "EGRESS_MODE")
	setString(&cfg.StoreBackend, "STORE_BACKEND")
	setString(&cfg.RedisURL, "REDIS_URL")
	setPositiveInt(&cfg.RedisTTLSec, "REDIS_TTL_SEC")
	setString(&cfg.DatabaseURL, "DATABASE_URL")
	setString(&cfg.SQLitePath, "SQLITE_PATH")
	setPositiveInt(&cfg.StoreMaxRetries, "STORE_MAX_RETRIES")
	setString(&cfg.AssistantBaseURL, "ASSISTANT_BASE_URL")
	setString(&cfg.AssistantAPIKey, "ASSISTANT_API_KEY")
	setString(&cfg.AssistantAPIKeyParam, "ASSISTANT_API_KEY_PARAM")
	setString(&cfg.AssistantModel, "ASSISTANT_MODEL")
	setPositiveInt(&cfg.AssistantDailyLimit, "ASSISTANT_DAILY_LIMIT")
	setString(&cfg.RestartCommand, "RESTART_COMMAND")
	setString(&cfg.AskCommand, "ASK_COMMAND")
	setString(&cfg.MessagesDir, "MESSAGES_DIR")
	setPositiveInt(&cfg.DedupeTTLSec, "DEDUPE_TTL_SEC")

	cfg.EgressMode = strings.ToLower(strings.TrimSpace(cfg.EgressMode))
	cfg.StoreBackend = strings.ToLower(strings.TrimSpace(cfg.StoreBackend))
	cfg.RestartCommand = strings.ToLower(strings.TrimSpace(cfg.RestartCommand))
	cfg.AskCommand = strings.ToLower(strings.TrimSpace(cfg.AskCommand))
	cfg.KenarBaseURL = strings.TrimRight(strings.TrimSpace(cfg.KenarBaseURL), "/")

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) validate() error {
	switch c.EgressMode {
	case EgressHTTP:
		if c.KenarAPIKey == "" && c.KenarAPIKeyParam == "" {
			return errors.New("KENAR_API_KEY or KENAR_API_KEY_PARAM is required")
		}
	case EgressDryRun:
	default:
		return fmt.Errorf("EGRESS_MODE must be http or dryrun, got %q", c.EgressMode)
	}

	switch c.StoreBackend {
	case StoreMemory:
	case StoreRedis:
		if c.RedisURL == "" {
			return errors.New("REDIS_URL is required for the redis store")
		}
		// a quota record must outlive its 24h window
		if c.RedisTTLSec <= minRedisTTLSec {
			return fmt.Errorf("REDIS_TTL_SEC must be greater than %d", minRedisTTLSec)
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for the postgres store")
		}
	case StoreSQLite:
		if c.SQLitePath == "" {
			return errors.New("SQLITE_PATH is required for the sqlite store")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}

	if c.RestartCommand == "" || c.AskCommand == "" {
		return errors.New("RESTART_COMMAND and ASK_COMMAND must not be empty")
	}
	if c.RestartCommand == c.AskCommand {
		return errors.New("RESTART_COMMAND and ASK_COMMAND must differ")
	}
	return nil
}

// AssistantEnabled reports whether an assistant endpoint is configured.
func (c *AppConfig) AssistantEnabled() bool { return c.AssistantBaseURL != "" }

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setPositiveInt(dst *int, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			*dst = n
		}
	}
}
