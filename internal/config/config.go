// Package config handles application configuration and environment loading.
package config

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// AgentConfig holds the OpenAI-compatible endpoint settings used by the
// autofix agent and the natural-language query translator.
type AgentConfig struct {
	BaseURL   string // endpoint base URL; empty means the default OpenAI endpoint
	APIKey    string // bearer token for the endpoint
	ChatModel string // completion model name (default "gpt-4o-mini")
	MaxSteps  int    // persisted-step cap per fix session (default 20)
}

// Enabled returns true when an AI endpoint is configured. Without one,
// the analyzer still runs; fix sessions and NL queries are unavailable.
func (a *AgentConfig) Enabled() bool {
	return a.APIKey != "" || a.BaseURL != ""
}

// Config holds the configuration for the analyzer server.
type Config struct {
	MetaDBPath string // path to the SQLite state file (default "modelsentry.sqlite")
	ListenAddr string // HTTP listen address (default ":8080")
	LogLevel   string // log level: debug, info, warn, error (default "info")
	Env        string // environment: "development" (default) or "production"

	// Rules catalog
	RulesURL      string        // remote rule catalog URL; empty means built-in rules only
	RulesCacheTTL time.Duration // catalog cache duration (default 15m)

	// Tabular engine
	TabularServer   string // default server address for registered models (default "localhost:9000")
	TabularDatabase string // database targeted by ad-hoc query execution

	// Job timeouts; zero disables the soft timeout for that job type.
	AnalysisTimeout time.Duration // per analysis run (default 5m)
	FixTimeout      time.Duration // per fix session (default 10m)
	QueryTimeout    time.Duration // per query execution (default 2m)

	// AnalysisSchedule is a cron expression for periodic re-analysis of
	// all registered models. Empty disables the scheduler.
	AnalysisSchedule string

	// Bounded polling for the wait-for-result endpoint.
	QueryPollAttempts int           // default 10
	QueryPollInterval time.Duration // default 200ms

	// Rate limiting
	RateLimitRPS   float64 // sustained requests per second (default 100)
	RateLimitBurst int     // burst capacity (default 200)

	// CORS
	CORSAllowedOrigins []string // allowed origins for CORS (default: ["*"])

	// Agent holds AI endpoint configuration.
	Agent AgentConfig

	// Warnings collects non-fatal warnings generated during config loading.
	// These are logged by the caller after the logger is initialised.
	Warnings []string
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// IsProduction returns true when the server is running in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// LoadFromEnv loads configuration from environment variables. The AI
// endpoint variables are optional; the server starts without them.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		MetaDBPath:       os.Getenv("META_DB_PATH"),
		ListenAddr:       os.Getenv("LISTEN_ADDR"),
		LogLevel:         os.Getenv("LOG_LEVEL"),
		Env:              os.Getenv("ENV"),
		RulesURL:         os.Getenv("RULES_URL"),
		TabularServer:    os.Getenv("TABULAR_SERVER"),
		TabularDatabase:  os.Getenv("TABULAR_DATABASE"),
		AnalysisSchedule: os.Getenv("ANALYSIS_SCHEDULE"),
	}

	cfg.RulesCacheTTL = parseDurationEnv("RULES_CACHE_TTL", cfg)
	cfg.AnalysisTimeout = parseDurationEnv("ANALYSIS_TIMEOUT", cfg)
	cfg.FixTimeout = parseDurationEnv("FIX_TIMEOUT", cfg)
	cfg.QueryTimeout = parseDurationEnv("QUERY_TIMEOUT", cfg)
	cfg.QueryPollInterval = parseDurationEnv("QUERY_POLL_INTERVAL", cfg)

	if v := os.Getenv("QUERY_POLL_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.QueryPollAttempts = n
		} else {
			cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("invalid QUERY_POLL_ATTEMPTS %q, using default", v))
		}
	}

	// Rate limiting
	if v := os.Getenv("RATE_LIMIT_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.RateLimitRPS = f
		}
	}
	if v := os.Getenv("RATE_LIMIT_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimitBurst = n
		}
	}

	// CORS
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		origins := strings.Split(v, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		cfg.CORSAllowedOrigins = origins
	}

	// AI endpoint
	cfg.Agent = AgentConfig{
		BaseURL:   os.Getenv("OPENAI_BASE_URL"),
		APIKey:    os.Getenv("OPENAI_API_KEY"),
		ChatModel: os.Getenv("OPENAI_CHAT_MODEL"),
	}
	if v := os.Getenv("FIX_MAX_STEPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Agent.MaxSteps = n
		} else {
			cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("invalid FIX_MAX_STEPS %q, using default", v))
		}
	}

	// Defaults
	if cfg.MetaDBPath == "" {
		cfg.MetaDBPath = "modelsentry.sqlite"
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.TabularServer == "" {
		cfg.TabularServer = "localhost:9000"
	}
	if cfg.RulesCacheTTL == 0 {
		cfg.RulesCacheTTL = 15 * time.Minute
	}
	if cfg.AnalysisTimeout == 0 {
		cfg.AnalysisTimeout = 5 * time.Minute
	}
	if cfg.FixTimeout == 0 {
		cfg.FixTimeout = 10 * time.Minute
	}
	if cfg.QueryTimeout == 0 {
		cfg.QueryTimeout = 2 * time.Minute
	}
	if cfg.QueryPollAttempts == 0 {
		cfg.QueryPollAttempts = 10
	}
	if cfg.QueryPollInterval == 0 {
		cfg.QueryPollInterval = 200 * time.Millisecond
	}
	if cfg.RateLimitRPS == 0 {
		cfg.RateLimitRPS = 100
	}
	if cfg.RateLimitBurst == 0 {
		cfg.RateLimitBurst = 200
	}
	if len(cfg.CORSAllowedOrigins) == 0 {
		cfg.CORSAllowedOrigins = []string{"*"}
	}
	if cfg.Agent.ChatModel == "" {
		cfg.Agent.ChatModel = "gpt-4o-mini"
	}
	if cfg.Agent.MaxSteps == 0 {
		cfg.Agent.MaxSteps = 20
	}

	if cfg.TabularDatabase == "" {
		cfg.Warnings = append(cfg.Warnings, "TABULAR_DATABASE not set, ad-hoc queries target the server default database")
	}
	if cfg.RulesURL == "" {
		cfg.Warnings = append(cfg.Warnings, "RULES_URL not set, serving built-in rules only")
	}
	if !cfg.Agent.Enabled() {
		cfg.Warnings = append(cfg.Warnings, "OPENAI_API_KEY not set, fix sessions and natural-language queries are disabled")
	}

	// Production mode: insecure defaults are fatal errors.
	if cfg.IsProduction() {
		if len(cfg.CORSAllowedOrigins) == 1 && cfg.CORSAllowedOrigins[0] == "*" {
			return nil, fmt.Errorf("CORS wildcard (*) is not allowed in production (ENV=production)")
		}
	}

	return cfg, nil
}

func parseDurationEnv(key string, cfg *Config) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("invalid %s %q, using default", key, v))
		return 0
	}
	return d
}

// LoadDotEnv loads environment variables from a .env file if it exists.
// Variables already present in the environment are not overridden.
// Returns silently if the file does not exist.
func LoadDotEnv(path string) error {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		value = strings.Trim(value, `"'`)
		if key == "" {
			continue
		}
		if _, exists := os.LookupEnv(key); !exists {
			os.Setenv(key, value)
		}
	}
	return scanner.Err()
}
