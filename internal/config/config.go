package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/neogan74/tracelog/internal/event"
	"github.com/neogan74/tracelog/internal/severity"
)

// Config represents the application configuration
type Config struct {
	Server ServerConfig
	Log    LogConfig
	File   FileConfig
	Remote RemoteConfig
	HTTP   HTTPConfig
	Auth   AuthConfig

	// SensitiveFields extends the built-in redaction list.
	SensitiveFields []string
	// OverlayFile is an optional YAML file with level and redaction
	// overrides. Level changes are picked up while running.
	OverlayFile string

	// env is the configuration before the overlay was applied.
	env *Config
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host string
	Port int
}

// LogConfig contains logging configuration
type LogConfig struct {
	Debug  bool
	Level  string
	Format string
}

// FileConfig contains the rotating file sink configuration
type FileConfig struct {
	Enabled        bool
	Dir            string
	SystemFile     string
	MaxBytes       int64
	BackupCount    int
	AppMaxBytes    int64
	AppBackupCount int
	Sync           bool
}

// RemoteConfig contains the remote table store and queue configuration
type RemoteConfig struct {
	Enabled             bool
	Type                string // "memory", "postgres", "rest", "badger"
	DSN                 string
	RESTURL             string
	RESTKey             string
	BadgerDir           string
	AutoMigrate         bool
	BatchSize           int
	BatchInterval       time.Duration
	QueueSize           int
	InsertTimeout       time.Duration
	ShutdownGrace       time.Duration
	MinLevel            string
	SystemMinLevel      string
	PoolMonitorInterval time.Duration
}

// HTTPConfig contains request-level logging configuration
type HTTPConfig struct {
	SlowRequest       time.Duration
	FrontendRateLimit int // requests per minute per IP, 0 disables
}

// AuthConfig contains the JWT settings used to derive user ids
type AuthConfig struct {
	JWTSecret string
	Issuer    string
}

// Load loads configuration from environment variables with defaults
func Load() (*Config, error) {
	debug := getEnvBool("DEBUG", false)
	defaults := severity.Defaults(debug)
	defaultLevel := "INFO"
	if debug {
		defaultLevel = "DEBUG"
	}

	config := &Config{
		Server: ServerConfig{
			Host: getEnvString("TRACELOG_HOST", ""),
			Port: getEnvInt("TRACELOG_PORT", 8080),
		},
		Log: LogConfig{
			Debug:  debug,
			Level:  getEnvString("LOG_LEVEL", defaultLevel),
			Format: getEnvString("LOG_FORMAT", "json"),
		},
		File: FileConfig{
			Enabled:        getEnvBool("LOG_ENABLE_FILE", true),
			Dir:            getEnvString("LOG_DIR", "logs"),
			SystemFile:     getEnvString("LOG_FILE", ""),
			MaxBytes:       getEnvInt64("LOG_FILE_MAX_BYTES", 10<<20),
			BackupCount:    getEnvInt("LOG_FILE_BACKUP_COUNT", 5),
			AppMaxBytes:    getEnvInt64("LOG_APP_FILE_MAX_BYTES", 50<<20),
			AppBackupCount: getEnvInt("LOG_APP_FILE_BACKUP_COUNT", 10),
			Sync:           getEnvBool("LOG_FILE_SYNC", false),
		},
		Remote: RemoteConfig{
			Enabled:             getEnvBool("LOG_DB_ENABLED", true),
			Type:                getEnvString("LOG_DB_TYPE", "memory"),
			DSN:                 getEnvString("LOG_DB_DSN", ""),
			RESTURL:             getEnvString("LOG_DB_REST_URL", ""),
			RESTKey:             getEnvString("LOG_DB_REST_KEY", ""),
			BadgerDir:           getEnvString("LOG_DB_BADGER_DIR", "./data/logs"),
			AutoMigrate:         getEnvBool("LOG_DB_AUTO_MIGRATE", true),
			BatchSize:           getEnvInt("LOG_DB_BATCH_SIZE", 50),
			BatchInterval:       getEnvSeconds("LOG_DB_BATCH_INTERVAL", 5*time.Second),
			QueueSize:           getEnvInt("LOG_DB_QUEUE_SIZE", 10000),
			InsertTimeout:       getEnvSeconds("LOG_DB_INSERT_TIMEOUT", 10*time.Second),
			ShutdownGrace:       getEnvSeconds("LOG_DB_SHUTDOWN_GRACE", 10*time.Second),
			MinLevel:            getEnvString("LOG_DB_MIN_LEVEL", defaults.App.String()),
			SystemMinLevel:      getEnvString("LOG_DB_SYSTEM_MIN_LEVEL", defaults.System.String()),
			PoolMonitorInterval: getEnvSeconds("LOG_DB_POOL_MONITOR_INTERVAL", 30*time.Second),
		},
		HTTP: HTTPConfig{
			SlowRequest:       time.Duration(getEnvInt("LOG_SLOW_REQUEST_MS", 1000)) * time.Millisecond,
			FrontendRateLimit: getEnvInt("LOG_FRONTEND_RATE_LIMIT", 0),
		},
		Auth: AuthConfig{
			JWTSecret: getEnvString("LOG_JWT_SECRET", ""),
			Issuer:    getEnvString("LOG_JWT_ISSUER", ""),
		},
		SensitiveFields: getEnvStringSlice("LOG_SENSITIVE_FIELDS", nil),
		OverlayFile:     getEnvString("LOG_CONFIG_FILE", ""),
	}

	if config.OverlayFile != "" {
		env := *config
		config.env = &env
		overlay, err := ReadOverlay(config.OverlayFile)
		if err != nil {
			return nil, err
		}
		overlay.Apply(config)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d (must be 1-65535)", c.Server.Port)
	}

	for name, value := range map[string]string{
		"LOG_LEVEL":               c.Log.Level,
		"LOG_DB_MIN_LEVEL":        c.Remote.MinLevel,
		"LOG_DB_SYSTEM_MIN_LEVEL": c.Remote.SystemMinLevel,
	} {
		if _, err := event.ParseLevel(value); err != nil {
			return fmt.Errorf("invalid %s: %q (must be DEBUG, INFO, WARNING, ERROR or CRITICAL)", name, value)
		}
	}

	validLogFormats := map[string]bool{
		"text": true,
		"json": true,
	}
	if !validLogFormats[c.Log.Format] {
		return fmt.Errorf("invalid log format: %s (must be text or json)", c.Log.Format)
	}

	if c.File.Enabled {
		if c.File.Dir == "" {
			return fmt.Errorf("log directory must be specified when file logging is enabled")
		}
		if c.File.MaxBytes <= 0 || c.File.AppMaxBytes <= 0 {
			return fmt.Errorf("log file max bytes must be positive")
		}
		if c.File.BackupCount < 0 || c.File.AppBackupCount < 0 {
			return fmt.Errorf("log file backup count must not be negative")
		}
	}

	if c.Remote.Enabled {
		switch c.Remote.Type {
		case "memory":
		case "postgres":
			if c.Remote.DSN == "" {
				return fmt.Errorf("LOG_DB_DSN must be specified for the postgres store")
			}
		case "rest":
			if c.Remote.RESTURL == "" {
				return fmt.Errorf("LOG_DB_REST_URL must be specified for the rest store")
			}
		case "badger":
			if c.Remote.BadgerDir == "" {
				return fmt.Errorf("LOG_DB_BADGER_DIR must be specified for the badger store")
			}
		default:
			return fmt.Errorf("invalid store type: %s (must be memory, postgres, rest or badger)", c.Remote.Type)
		}

		if c.Remote.BatchSize <= 0 {
			return fmt.Errorf("invalid batch size: %d (must be positive)", c.Remote.BatchSize)
		}
		if c.Remote.BatchInterval <= 0 {
			return fmt.Errorf("invalid batch interval: %v (must be positive)", c.Remote.BatchInterval)
		}
		if c.Remote.QueueSize <= 0 {
			return fmt.Errorf("invalid queue size: %d (must be positive)", c.Remote.QueueSize)
		}
		if c.Remote.InsertTimeout <= 0 {
			return fmt.Errorf("invalid insert timeout: %v (must be positive)", c.Remote.InsertTimeout)
		}
		if c.Remote.ShutdownGrace <= 0 {
			return fmt.Errorf("invalid shutdown grace: %v (must be positive)", c.Remote.ShutdownGrace)
		}
	}

	if c.HTTP.FrontendRateLimit < 0 {
		return fmt.Errorf("invalid frontend rate limit: %d (must not be negative)", c.HTTP.FrontendRateLimit)
	}

	return nil
}

// Address returns the server address
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// AppLevel is the minimum level application and performance events need to
// be recorded at all.
func (c *Config) AppLevel() event.Level {
	l, err := event.ParseLevel(c.Log.Level)
	if err != nil {
		return event.LevelInfo
	}
	return l
}

// RemoteLevels returns the per-stream minimum levels for remote delivery.
// The error stream always accepts every level.
func (c *Config) RemoteLevels() severity.Levels {
	levels := severity.Defaults(c.Log.Debug)
	if l, err := event.ParseLevel(c.Remote.MinLevel); err == nil {
		levels.App = l
	}
	if l, err := event.ParseLevel(c.Remote.SystemMinLevel); err == nil {
		levels.System = l
	}
	levels.Error = event.LevelDebug
	return levels
}

// getEnvString gets a string environment variable with a default value
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvSeconds accepts either a float number of seconds ("5.0") or a Go
// duration ("1500ms").
func getEnvSeconds(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvStringSlice gets a comma-separated string environment variable as a slice with a default value
func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		result := []string{}
		for _, v := range strings.Split(value, ",") {
			if v = strings.TrimSpace(v); v != "" {
				result = append(result, v)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}
