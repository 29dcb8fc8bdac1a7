package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	minResultsPerQuery = 10
	maxResultsPerQuery = 100
)

type Config struct {
	SearchAPIToken    string        `yaml:"search_api_token"`
	SearchEndpoint    string        `yaml:"search_endpoint"`
	BotToken          string        `yaml:"bot_token"`
	ChatDestinationID string        `yaml:"chat_destination_id"`
	TrackedAccounts   []string      `yaml:"tracked_accounts"`
	PollInterval      time.Duration `yaml:"-"`
	PollIntervalSecs  int           `yaml:"poll_interval_seconds"`
	FollowerFloor     int           `yaml:"follower_count_floor"`
	MaxResults        int           `yaml:"max_results_per_query"`
	LookbackHours     int           `yaml:"lookback_hours"`
	HTTPTimeout       time.Duration `yaml:"http_timeout"`
	SendRatePerSec    int           `yaml:"send_rate_per_sec"`
	EndTimeLag        time.Duration `yaml:"end_time_lag"`
	ServerPort        string        `yaml:"server_port"`
	LogLevel          string        `yaml:"log_level"`
	LogFormat         string        `yaml:"log_format"`
}

// ConfigurationError reports a missing or invalid setting. It is fatal at startup.
type ConfigurationError struct {
	Key    string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Key, e.Reason)
}

// IsConfigurationError checks if an error is a ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// Lookback is the initial look-back of every account's search window.
func (c *Config) Lookback() time.Duration {
	return time.Duration(c.LookbackHours) * time.Hour
}

// Load starts from the defaults, overlays the optional YAML file named by
// CONFIG_FILE, then lets environment variables override every setting. A key
// present in the file replaces its default even when the value is zero.
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := applyEnvironment(cfg); err != nil {
		return nil, err
	}

	cfg.PollInterval = time.Duration(cfg.PollIntervalSecs) * time.Second

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return &ConfigurationError{Key: "CONFIG_FILE", Reason: fmt.Sprintf("read %s: %v", path, err)}
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return &ConfigurationError{Key: "CONFIG_FILE", Reason: fmt.Sprintf("parse %s: %v", path, err)}
	}
	return nil
}

func defaults() *Config {
	return &Config{
		SearchEndpoint:   "https://api.twitter.com/2/tweets/search/recent",
		PollIntervalSecs: 10,
		FollowerFloor:    1000,
		MaxResults:       25,
		LookbackHours:    9,
		HTTPTimeout:      15 * time.Second,
		SendRatePerSec:   1,
		EndTimeLag:       10 * time.Second,
		LogLevel:         "info",
		LogFormat:        "console",
	}
}

func applyEnvironment(cfg *Config) error {
	cfg.SearchAPIToken = getEnv("SEARCH_API_TOKEN", cfg.SearchAPIToken)
	cfg.SearchEndpoint = getEnv("SEARCH_ENDPOINT", cfg.SearchEndpoint)
	cfg.BotToken = getEnv("BOT_TOKEN", cfg.BotToken)
	cfg.ChatDestinationID = getEnv("CHAT_DESTINATION_ID", cfg.ChatDestinationID)
	cfg.ServerPort = getEnv("SERVER_PORT", cfg.ServerPort)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnv("LOG_FORMAT", cfg.LogFormat)

	if accounts := os.Getenv("TRACKED_ACCOUNTS"); accounts != "" {
		cfg.TrackedAccounts = splitList(accounts)
	}

	var err error
	if cfg.PollIntervalSecs, err = getEnvAsInt("POLL_INTERVAL_SECONDS", cfg.PollIntervalSecs); err != nil {
		return err
	}
	if cfg.FollowerFloor, err = getEnvAsInt("FOLLOWER_COUNT_FLOOR", cfg.FollowerFloor); err != nil {
		return err
	}
	if cfg.MaxResults, err = getEnvAsInt("MAX_RESULTS_PER_QUERY", cfg.MaxResults); err != nil {
		return err
	}
	if cfg.LookbackHours, err = getEnvAsInt("LOOKBACK_HOURS", cfg.LookbackHours); err != nil {
		return err
	}
	if cfg.SendRatePerSec, err = getEnvAsInt("SEND_RATE_PER_SEC", cfg.SendRatePerSec); err != nil {
		return err
	}
	if cfg.HTTPTimeout, err = getEnvAsDuration("HTTP_TIMEOUT", cfg.HTTPTimeout); err != nil {
		return err
	}
	if cfg.EndTimeLag, err = getEnvAsDuration("END_TIME_LAG", cfg.EndTimeLag); err != nil {
		return err
	}
	return nil
}

// Validate checks required credentials and value ranges.
func (c *Config) Validate() error {
	required := []struct{ key, value string }{
		{"SEARCH_API_TOKEN", c.SearchAPIToken},
		{"BOT_TOKEN", c.BotToken},
		{"CHAT_DESTINATION_ID", c.ChatDestinationID},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return &ConfigurationError{Key: r.key, Reason: "is required"}
		}
	}

	if len(c.TrackedAccounts) == 0 {
		return &ConfigurationError{Key: "TRACKED_ACCOUNTS", Reason: "at least one account is required"}
	}
	if c.PollIntervalSecs <= 0 {
		return &ConfigurationError{Key: "POLL_INTERVAL_SECONDS", Reason: "must be positive"}
	}
	if c.FollowerFloor < 0 {
		return &ConfigurationError{Key: "FOLLOWER_COUNT_FLOOR", Reason: "must not be negative"}
	}
	if c.MaxResults < minResultsPerQuery || c.MaxResults > maxResultsPerQuery {
		return &ConfigurationError{
			Key:    "MAX_RESULTS_PER_QUERY",
			Reason: fmt.Sprintf("must be between %d and %d", minResultsPerQuery, maxResultsPerQuery),
		}
	}
	if c.LookbackHours <= 0 {
		return &ConfigurationError{Key: "LOOKBACK_HOURS", Reason: "must be positive"}
	}
	if c.SendRatePerSec <= 0 {
		return &ConfigurationError{Key: "SEND_RATE_PER_SEC", Reason: "must be positive"}
	}
	if c.EndTimeLag < 0 {
		return &ConfigurationError{Key: "END_TIME_LAG", Reason: "must not be negative"}
	}
	if c.LogFormat != "console" && c.LogFormat != "json" {
		return &ConfigurationError{Key: "LOG_FORMAT", Reason: fmt.Sprintf("unknown format %q", c.LogFormat)}
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	intValue, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, &ConfigurationError{Key: key, Reason: fmt.Sprintf("invalid integer %q", value)}
	}
	return intValue, nil
}

func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	duration, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return 0, &ConfigurationError{Key: key, Reason: fmt.Sprintf("invalid duration %q", value)}
	}
	return duration, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
