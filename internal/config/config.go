package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ConfigPathEnv names an optional YAML file read before environment variables.
const ConfigPathEnv = "PLAYBACK_HUB_CONFIG"

// Config holds the base server configuration.
type Config struct {
	Host                    string
	Port                    string
	SQLiteDBPath            string
	NodeEnv                 string
	AllowTestMode           bool
	JWTSecret               string
	JWTIssuer               string
	JWTAudience             string
	JWTAccessTokenExpirySec int
	LogLevel                string
	LogFormat               string
	AllowedOrigins          []string

	// FreshnessWindowSec is how long after StartPlayback a session still counts as playing.
	FreshnessWindowSec int

	// Hub transport settings
	HubSendBuffer            int
	HubCallsPerSecond        float64
	HubCallBurst             int
	HubMaxConnectionsPerUser int

	// Audit log settings
	AuditRetentionDays int
	AuditPruneSchedule string // 5-field cron expression
}

// FreshnessWindow returns the freshness window as a duration.
func (c Config) FreshnessWindow() time.Duration {
	return time.Duration(c.FreshnessWindowSec) * time.Second
}

// Load reads configuration from defaults, an optional YAML file, and environment variables.
func Load() (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if path := os.Getenv(ConfigPathEnv); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	cfg := Config{
		Host:                     v.GetString("HOST"),
		Port:                     v.GetString("PORT"),
		SQLiteDBPath:             v.GetString("SQLITE_DB_PATH"),
		NodeEnv:                  v.GetString("NODE_ENV"),
		AllowTestMode:            v.GetBool("ALLOW_TEST_MODE"),
		JWTSecret:                v.GetString("JWT_SECRET"),
		JWTIssuer:                v.GetString("JWT_ISSUER"),
		JWTAudience:              v.GetString("JWT_AUDIENCE"),
		JWTAccessTokenExpirySec:  v.GetInt("JWT_ACCESS_TOKEN_EXPIRY"),
		LogLevel:                 v.GetString("LOG_LEVEL"),
		LogFormat:                v.GetString("LOG_FORMAT"),
		AllowedOrigins:           splitCSV(v.GetString("ALLOWED_ORIGINS")),
		FreshnessWindowSec:       v.GetInt("PLAYBACK_FRESHNESS_WINDOW_SEC"),
		HubSendBuffer:            v.GetInt("HUB_SEND_BUFFER"),
		HubCallsPerSecond:        v.GetFloat64("HUB_CALLS_PER_SECOND"),
		HubCallBurst:             v.GetInt("HUB_CALL_BURST"),
		HubMaxConnectionsPerUser: v.GetInt("HUB_MAX_CONNECTIONS_PER_USER"),
		AuditRetentionDays:       v.GetInt("AUDIT_RETENTION_DAYS"),
		AuditPruneSchedule:       v.GetString("AUDIT_PRUNE_SCHEDULE"),
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("HOST", "0.0.0.0")
	v.SetDefault("PORT", "9000")
	v.SetDefault("SQLITE_DB_PATH", "./data/playback-hub.db")
	v.SetDefault("NODE_ENV", "development")
	v.SetDefault("ALLOW_TEST_MODE", false)
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_ISSUER", "playback-hub")
	v.SetDefault("JWT_AUDIENCE", "playback-hub-client")
	v.SetDefault("JWT_ACCESS_TOKEN_EXPIRY", 3600)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "console")
	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("PLAYBACK_FRESHNESS_WINDOW_SEC", 300)
	v.SetDefault("HUB_SEND_BUFFER", 32)
	v.SetDefault("HUB_CALLS_PER_SECOND", 20.0)
	v.SetDefault("HUB_CALL_BURST", 40)
	v.SetDefault("HUB_MAX_CONNECTIONS_PER_USER", 10)
	v.SetDefault("AUDIT_RETENTION_DAYS", 30)
	v.SetDefault("AUDIT_PRUNE_SCHEDULE", "0 3 * * *")
}

func (c Config) validate() error {
	if len(strings.TrimSpace(c.JWTSecret)) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters")
	}
	if c.FreshnessWindowSec <= 0 {
		return fmt.Errorf("PLAYBACK_FRESHNESS_WINDOW_SEC must be positive")
	}
	if c.HubSendBuffer <= 0 {
		return fmt.Errorf("HUB_SEND_BUFFER must be positive")
	}
	if c.HubCallsPerSecond <= 0 || c.HubCallBurst <= 0 {
		return fmt.Errorf("HUB_CALLS_PER_SECOND and HUB_CALL_BURST must be positive")
	}
	if c.AuditRetentionDays <= 0 {
		return fmt.Errorf("AUDIT_RETENTION_DAYS must be positive")
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be console or json, got %q", c.LogFormat)
	}
	return nil
}

func splitCSV(val string) []string {
	if val == "" {
		return []string{}
	}
	parts := strings.Split(val, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		result = append(result, trimmed)
	}
	return result
}
