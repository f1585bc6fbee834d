package config

import (
	"fmt"
	"strings"

	"github.com/MarcoPoloResearchLab/askroom/backend/internal/access"
	"github.com/MarcoPoloResearchLab/askroom/backend/internal/database"
	"github.com/MarcoPoloResearchLab/askroom/backend/internal/logging"
	"github.com/spf13/viper"
)

const (
	envPrefix                 = "ASKROOM"
	defaultHTTPAddress        = "0.0.0.0:8080"
	defaultDatabaseDriver     = database.DriverSQLite
	defaultDatabasePath       = "askroom.db"
	defaultLogLevel           = "info"
	defaultAccessPolicy       = access.PolicyPublic
	defaultMetricsEnabled     = true
	defaultRealtimeBufferSize = 16
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress        string
	DatabaseDriver     string
	DatabasePath       string
	DatabaseDSN        string
	LogLevel           string
	AccessPolicy       string
	AllowedOrigins     []string
	MetricsEnabled     bool
	RealtimeBufferSize int
}

// DatabaseOptions returns the store selection for database.Open.
func (c AppConfig) DatabaseOptions() database.Options {
	return database.Options{
		Driver: c.DatabaseDriver,
		Path:   c.DatabasePath,
		DSN:    c.DatabaseDSN,
	}
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.driver", defaultDatabaseDriver)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("database.dsn", "")
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("access.policy", defaultAccessPolicy)
	configViper.SetDefault("cors.allowed_origins", []string{"*"})
	configViper.SetDefault("metrics.enabled", defaultMetricsEnabled)
	configViper.SetDefault("realtime.buffer_size", defaultRealtimeBufferSize)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:        configViper.GetString("http.address"),
		DatabaseDriver:     strings.ToLower(strings.TrimSpace(configViper.GetString("database.driver"))),
		DatabasePath:       configViper.GetString("database.path"),
		DatabaseDSN:        configViper.GetString("database.dsn"),
		LogLevel:           configViper.GetString("log.level"),
		AccessPolicy:       strings.ToLower(strings.TrimSpace(configViper.GetString("access.policy"))),
		AllowedOrigins:     normalizeOrigins(configViper.GetStringSlice("cors.allowed_origins")),
		MetricsEnabled:     configViper.GetBool("metrics.enabled"),
		RealtimeBufferSize: configViper.GetInt("realtime.buffer_size"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.HTTPAddress) == "" {
		return fmt.Errorf("http.address is required")
	}
	switch c.DatabaseDriver {
	case database.DriverSQLite:
		if strings.TrimSpace(c.DatabasePath) == "" {
			return fmt.Errorf("database.path is required for the sqlite driver")
		}
	case database.DriverPostgres:
		if strings.TrimSpace(c.DatabaseDSN) == "" {
			return fmt.Errorf("database.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("database.driver must be %q or %q, got %q", database.DriverSQLite, database.DriverPostgres, c.DatabaseDriver)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if _, err := access.Lookup(c.AccessPolicy); err != nil {
		return fmt.Errorf("access.policy: %w", err)
	}
	if len(c.AllowedOrigins) == 0 {
		return fmt.Errorf("cors.allowed_origins must list at least one origin")
	}
	if c.RealtimeBufferSize <= 0 {
		return fmt.Errorf("realtime.buffer_size must be positive")
	}
	return nil
}

// normalizeOrigins accepts both list values and comma separated env values.
func normalizeOrigins(values []string) []string {
	origins := make([]string, 0, len(values))
	for _, value := range values {
		for _, origin := range strings.Split(value, ",") {
			trimmed := strings.TrimSpace(origin)
			if trimmed != "" {
				origins = append(origins, trimmed)
			}
		}
	}
	return origins
}
