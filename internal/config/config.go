// Package config loads application configuration from command-line flags,
// environment variables, and a .env file.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds the application configuration.
type Config struct {
	App       AppConfig
	Logger    LoggerConfig
	Metadata  MetadataConfig
	Database  DatabaseConfig
	Server    ServerConfig
	Auth      AuthConfig
	Borrowing BorrowingConfig
	Reminder  ReminderConfig
	Mail      MailConfig
	Notify    NotifyConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string
}

// MetadataConfig points at the data directory (SQLite file, search index, journal, keys).
type MetadataConfig struct {
	BasePath string
}

// DatabaseConfig selects the ledger backend.
type DatabaseConfig struct {
	Driver      string // "sqlite" or "postgres"
	PostgresURL string
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	AllowedOrigins []string
}

// AuthConfig holds access token configuration.
type AuthConfig struct {
	// PASETO v4 symmetric key, set by auth.LoadOrGenerateKey at startup.
	AccessTokenKey      []byte
	AccessTokenDuration time.Duration
}

// BorrowingConfig holds the borrowing rules.
type BorrowingConfig struct {
	MaxActiveLoans int
	MaxLoanDays    int
	PenaltyPerDay  decimal.Decimal
	// Location used to interpret calendar-date due dates and reminder day counts.
	Location *time.Location
}

// ReminderConfig controls the periodic due-date reminder sweep.
type ReminderConfig struct {
	Enabled    bool
	WindowDays int
	Interval   time.Duration
}

// MailConfig selects how notifications leave the process.
type MailConfig struct {
	Backend  string // "console" or "smtp"
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// NotifyConfig sizes the notification dispatcher.
type NotifyConfig struct {
	Workers    int
	QueueSize  int
	JournalTTL time.Duration
}

// LoadConfig loads configuration with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Default values (lowest priority).
func LoadConfig() (*Config, error) {
	env := flag.String("env", "", "Environment (development, staging, production)")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	dataPath := flag.String("data-path", "", "Base path for the data directory")

	dbDriver := flag.String("db-driver", "", "Ledger database driver (sqlite, postgres)")
	postgresURL := flag.String("postgres-url", "", "PostgreSQL connection string")

	serverPort := flag.String("port", "", "Server port (default: 8000)")
	readTimeout := flag.String("read-timeout", "", "HTTP read timeout (default: 15s)")
	writeTimeout := flag.String("write-timeout", "", "HTTP write timeout (default: 15s)")
	idleTimeout := flag.String("idle-timeout", "", "HTTP idle timeout (default: 60s)")
	allowedOrigins := flag.String("allowed-origins", "", "Comma separated CORS origins")

	accessTokenDuration := flag.String("access-token-duration", "", "Access token lifetime (e.g., 24h)")

	maxActiveLoans := flag.String("max-active-loans", "", "Maximum simultaneous loans per user (default: 3)")
	maxLoanDays := flag.String("max-loan-days", "", "Maximum loan length in days (default: 30)")
	penaltyPerDay := flag.String("penalty-per-day", "", "Late penalty per day (default: 0.50)")
	timeZone := flag.String("timezone", "", "Time zone for due dates (default: UTC)")

	reminderEnabled := flag.String("reminders", "", "Run the reminder sweep (default: true)")
	reminderWindow := flag.String("reminder-window-days", "", "Reminder look-ahead in days (default: 3)")
	reminderInterval := flag.String("reminder-interval", "", "Reminder sweep interval (default: 24h)")

	mailBackend := flag.String("mail-backend", "", "Mail backend (console, smtp)")

	envFile := flag.String("env-file", ".env", "Path to .env file")

	flag.Parse()

	_ = loadEnvFile(*envFile)

	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(*env, "ENV", "development"),
		},
		Logger: LoggerConfig{
			Level: getConfigValue(*logLevel, "LOG_LEVEL", "info"),
		},
		Metadata: MetadataConfig{
			BasePath: getConfigValue(*dataPath, "DATA_PATH", ""),
		},
		Database: DatabaseConfig{
			Driver:      strings.ToLower(getConfigValue(*dbDriver, "DB_DRIVER", "sqlite")),
			PostgresURL: getConfigValue(*postgresURL, "DATABASE_URL", ""),
		},
		Server: ServerConfig{
			Port:           getConfigValue(*serverPort, "SERVER_PORT", "8000"),
			AllowedOrigins: splitList(getConfigValue(*allowedOrigins, "ALLOWED_ORIGINS", "*")),
		},
		Borrowing: BorrowingConfig{
			MaxActiveLoans: getIntConfigValue(*maxActiveLoans, "MAX_ACTIVE_LOANS", 3),
			MaxLoanDays:    getIntConfigValue(*maxLoanDays, "MAX_LOAN_DAYS", 30),
		},
		Reminder: ReminderConfig{
			Enabled:    getBoolConfigValue(*reminderEnabled, "REMINDERS_ENABLED", true),
			WindowDays: getIntConfigValue(*reminderWindow, "REMINDER_WINDOW_DAYS", 3),
		},
		Mail: MailConfig{
			Backend:  strings.ToLower(getConfigValue(*mailBackend, "MAIL_BACKEND", "console")),
			Host:     getConfigValue("", "SMTP_HOST", "localhost"),
			Port:     getIntConfigValue("", "SMTP_PORT", 587),
			Username: getConfigValue("", "SMTP_USERNAME", ""),
			Password: getConfigValue("", "SMTP_PASSWORD", ""),
			From:     getConfigValue("", "MAIL_FROM", "library@example.com"),
		},
		Notify: NotifyConfig{
			Workers:   getIntConfigValue("", "NOTIFY_WORKERS", 2),
			QueueSize: getIntConfigValue("", "NOTIFY_QUEUE_SIZE", 256),
		},
	}

	var err error
	durations := []struct {
		dst        *time.Duration
		flagValue  string
		envKey     string
		defaultVal string
	}{
		{&cfg.Server.ReadTimeout, *readTimeout, "SERVER_READ_TIMEOUT", "15s"},
		{&cfg.Server.WriteTimeout, *writeTimeout, "SERVER_WRITE_TIMEOUT", "15s"},
		{&cfg.Server.IdleTimeout, *idleTimeout, "SERVER_IDLE_TIMEOUT", "60s"},
		{&cfg.Auth.AccessTokenDuration, *accessTokenDuration, "ACCESS_TOKEN_DURATION", "24h"},
		{&cfg.Reminder.Interval, *reminderInterval, "REMINDER_INTERVAL", "24h"},
		{&cfg.Notify.JournalTTL, "", "NOTIFY_JOURNAL_TTL", "720h"},
	}
	for _, d := range durations {
		raw := getConfigValue(d.flagValue, d.envKey, d.defaultVal)
		if *d.dst, err = time.ParseDuration(raw); err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", strings.ToLower(d.envKey), raw, err)
		}
	}

	penaltyStr := getConfigValue(*penaltyPerDay, "PENALTY_PER_DAY", "0.50")
	cfg.Borrowing.PenaltyPerDay, err = decimal.NewFromString(penaltyStr)
	if err != nil {
		return nil, fmt.Errorf("invalid penalty per day %q: %w", penaltyStr, err)
	}

	tzName := getConfigValue(*timeZone, "TIME_ZONE", "UTC")
	cfg.Borrowing.Location, err = time.LoadLocation(tzName)
	if err != nil {
		return nil, fmt.Errorf("invalid time zone %q: %w", tzName, err)
	}

	if err := cfg.expandDataPath(); err != nil {
		return nil, fmt.Errorf("invalid data path: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all config values are present and consistent.
func (c *Config) Validate() error {
	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
	}
	if !validEnvs[c.App.Environment] {
		return fmt.Errorf("invalid environment: %q (must be development, staging, or production)", c.App.Environment)
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[strings.ToLower(c.Logger.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	if c.Metadata.BasePath == "" {
		return errors.New("data path cannot be empty after expansion")
	}

	switch c.Database.Driver {
	case "sqlite":
	case "postgres":
		if c.Database.PostgresURL == "" {
			return errors.New("DATABASE_URL is required when DB_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("invalid database driver: %s (must be sqlite or postgres)", c.Database.Driver)
	}

	if c.Borrowing.MaxActiveLoans < 1 {
		return errors.New("max active loans must be at least 1")
	}
	if c.Borrowing.MaxLoanDays < 1 {
		return errors.New("max loan days must be at least 1")
	}
	if c.Borrowing.PenaltyPerDay.IsNegative() {
		return errors.New("penalty per day cannot be negative")
	}
	if c.Reminder.WindowDays < 0 {
		return errors.New("reminder window cannot be negative")
	}
	if c.Reminder.Enabled && c.Reminder.Interval <= 0 {
		return errors.New("reminder interval must be positive")
	}

	switch c.Mail.Backend {
	case "console":
	case "smtp":
		if c.Mail.Host == "" || c.Mail.From == "" {
			return errors.New("SMTP_HOST and MAIL_FROM are required for the smtp mail backend")
		}
	default:
		return fmt.Errorf("invalid mail backend: %s (must be console or smtp)", c.Mail.Backend)
	}

	if c.Notify.Workers < 1 || c.Notify.QueueSize < 1 {
		return errors.New("notify workers and queue size must be positive")
	}

	return nil
}

// expandPath expands ~ and makes the path absolute.
// If path is empty, defaultPath is returned unchanged.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

func (c *Config) expandDataPath() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}
	defaultPath := filepath.Join(homeDir, "LibraryManagement", "data")

	expanded, err := expandPath(c.Metadata.BasePath, defaultPath)
	if err != nil {
		return err
	}
	c.Metadata.BasePath = expanded
	return nil
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envKey != "" {
		if envValue := os.Getenv(envKey); envValue != "" {
			return envValue
		}
	}
	return defaultValue
}

// getBoolConfigValue accepts "true", "1", "yes" (case-insensitive) as true.
func getBoolConfigValue(flagValue, envKey string, defaultValue bool) bool {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	strValue = strings.ToLower(strValue)
	return strValue == "true" || strValue == "1" || strValue == "yes"
}

// getIntConfigValue returns an int from flag, env var, or default.
func getIntConfigValue(flagValue, envKey string, defaultValue int) int {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	var result int
	if _, err := fmt.Sscanf(strValue, "%d", &result); err != nil {
		return defaultValue
	}
	return result
}

func splitList(raw string) []string {
	var out []string
	for part := range strings.SplitSeq(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// loadEnvFile loads variables from a .env file without overriding ones that
// are already set to a non-empty value.
func loadEnvFile(path string) error {
	vars, err := godotenv.Read(path)
	if err != nil {
		return fmt.Errorf("read env file %s: %w", path, err)
	}

	for key, value := range vars {
		if os.Getenv(key) != "" {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return fmt.Errorf("failed to set env var %s: %w", key, err)
		}
	}
	return nil
}
