package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	envBackupDir          = "SW_BACKUP_DIR"
	envRetentionDays      = "SW_RETENTION_DAYS"
	envHealthURL          = "SW_HEALTH_URL"
	envHealthTimeout      = "SW_HEALTH_TIMEOUT"
	envHealthPollInterval = "SW_HEALTH_POLL_INTERVAL"
	envMinSnapshotBytes   = "SW_MIN_SNAPSHOT_BYTES"
	envMaxSnapshotAge     = "SW_MAX_SNAPSHOT_AGE"
	envMinFreeDiskBytes   = "SW_MIN_FREE_DISK_BYTES"
	envRollbackOnFailure  = "SW_ROLLBACK_ON_FAILURE"
	envBackupBeforeDeploy = "SW_BACKUP_BEFORE_DEPLOY"
	envRequireBackup      = "SW_REQUIRE_BACKUP"
	envSlackWebhookURL    = "SW_SLACK_WEBHOOK_URL"
	envAlertWebhookURL    = "SW_ALERT_WEBHOOK_URL"
	envAPIKey             = "SW_OPENAI_API_KEY"
	envAPIKeyFallback     = "OPENAI_API_KEY"
	envComposeFile        = "SW_COMPOSE_FILE"
	envProjectName        = "SW_PROJECT_NAME"
	envDockerHost         = "SW_DOCKER_HOST"
	envLockFile           = "SW_LOCK_FILE"
	envStateFile          = "SW_STATE_FILE"
	envComponentsFile     = "SW_COMPONENTS_FILE"
	envLogLevel           = "SW_LOG_LEVEL"
	envMonitorInterval    = "SW_MONITOR_INTERVAL"
	envHealthPort         = "SW_HEALTH_PORT"
	envMetricsPort        = "SW_METRICS_PORT"
)

const (
	defaultBackupDir          = "backups"
	defaultRetentionDays      = 30
	defaultHealthURL          = "http://localhost:8000/health"
	defaultHealthTimeout      = 300 * time.Second
	defaultHealthPollInterval = 10 * time.Second
	defaultMinSnapshotBytes   = int64(1 << 20)  // 1 MiB
	defaultMinFreeDiskBytes   = uint64(1 << 30) // 1 GiB
	defaultMaxSnapshotAge     = 24 * time.Hour
	defaultComposeFile        = "docker-compose.yml"
	defaultProjectName        = "memory-stack"
	defaultLockFile           = ".stack-warden.lock"
	defaultStateFile          = ".stack-warden-state.json"
	defaultMonitorInterval    = time.Hour
)

// apiKeyPlaceholders are credential values the upstream stack ships as
// defaults; prechecks treat them as "not configured".
var apiKeyPlaceholders = []string{"your_openai_api_key", "sk-proj-"}

// Config describes runtime configuration loaded from the environment.
type Config struct {
	BackupDir          string
	RetentionDays      int
	HealthURL          string
	HealthTimeout      time.Duration
	HealthPollInterval time.Duration
	MinSnapshotBytes   int64
	MaxSnapshotAge     time.Duration
	MinFreeDiskBytes   uint64
	RollbackOnFailure  bool
	BackupBeforeDeploy bool
	RequireBackup      bool
	SlackWebhookURL    string
	AlertWebhookURL    string
	APIKey             string
	ComposeFile        string
	ProjectName        string
	DockerHost         string
	LockFile           string
	StateFile          string
	ComponentsFile     string
	LogLevel           string
	MonitorInterval    time.Duration
	HealthPort         int
	MetricsPort        int
}

// Load reads configuration from environment variables and a local .env file if present.
// Existing environment variables take precedence over values in .env.
func Load() (Config, error) {
	if err := loadDotEnvIfPresent(".env"); err != nil {
		return Config{}, err
	}

	cfg := Config{
		BackupDir:          defaultBackupDir,
		RetentionDays:      defaultRetentionDays,
		HealthURL:          defaultHealthURL,
		HealthTimeout:      defaultHealthTimeout,
		HealthPollInterval: defaultHealthPollInterval,
		MinSnapshotBytes:   defaultMinSnapshotBytes,
		MaxSnapshotAge:     defaultMaxSnapshotAge,
		MinFreeDiskBytes:   defaultMinFreeDiskBytes,
		RollbackOnFailure:  true,
		BackupBeforeDeploy: true,
		ComposeFile:        defaultComposeFile,
		ProjectName:        defaultProjectName,
		LockFile:           defaultLockFile,
		StateFile:          defaultStateFile,
		MonitorInterval:    defaultMonitorInterval,
	}

	if value, ok := lookupTrimmed(envBackupDir); ok {
		cfg.BackupDir = value
	}
	if value, ok := lookupTrimmed(envComposeFile); ok {
		cfg.ComposeFile = value
	}
	if value, ok := lookupTrimmed(envProjectName); ok {
		cfg.ProjectName = value
	}
	if value, ok := lookupTrimmed(envDockerHost); ok {
		cfg.DockerHost = value
	}
	if value, ok := lookupTrimmed(envLockFile); ok {
		cfg.LockFile = value
	}
	if value, ok := lookupTrimmed(envStateFile); ok {
		cfg.StateFile = value
	}
	if value, ok := lookupTrimmed(envComponentsFile); ok {
		cfg.ComponentsFile = value
	}
	if value, ok := lookupTrimmed(envLogLevel); ok {
		cfg.LogLevel = value
	}
	if value, ok := lookupTrimmed(envSlackWebhookURL); ok {
		cfg.SlackWebhookURL = value
	}
	if value, ok := lookupTrimmed(envAlertWebhookURL); ok {
		cfg.AlertWebhookURL = value
	}
	if value, ok := lookupTrimmed(envAPIKey); ok {
		cfg.APIKey = value
	} else if value, ok := lookupTrimmed(envAPIKeyFallback); ok {
		cfg.APIKey = value
	}

	var err error
	if cfg.RetentionDays, err = intFromEnv(envRetentionDays, cfg.RetentionDays, 1); err != nil {
		return Config{}, err
	}
	if cfg.HealthTimeout, err = durationFromEnv(envHealthTimeout, cfg.HealthTimeout); err != nil {
		return Config{}, err
	}
	if cfg.HealthPollInterval, err = durationFromEnv(envHealthPollInterval, cfg.HealthPollInterval); err != nil {
		return Config{}, err
	}
	if cfg.MonitorInterval, err = durationFromEnv(envMonitorInterval, cfg.MonitorInterval); err != nil {
		return Config{}, err
	}
	if cfg.MaxSnapshotAge, err = durationFromEnv(envMaxSnapshotAge, cfg.MaxSnapshotAge); err != nil {
		return Config{}, err
	}

	if value, ok := lookupTrimmed(envMinSnapshotBytes); ok {
		parsed, err := strconv.ParseInt(value, 10, 64)
		if err != nil || parsed < 0 {
			return Config{}, fmt.Errorf("invalid %s: must be a non-negative integer", envMinSnapshotBytes)
		}
		cfg.MinSnapshotBytes = parsed
	}
	if value, ok := lookupTrimmed(envMinFreeDiskBytes); ok {
		parsed, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: must be a non-negative integer", envMinFreeDiskBytes)
		}
		cfg.MinFreeDiskBytes = parsed
	}

	if cfg.RollbackOnFailure, err = boolFromEnv(envRollbackOnFailure, cfg.RollbackOnFailure); err != nil {
		return Config{}, err
	}
	if cfg.BackupBeforeDeploy, err = boolFromEnv(envBackupBeforeDeploy, cfg.BackupBeforeDeploy); err != nil {
		return Config{}, err
	}
	if cfg.RequireBackup, err = boolFromEnv(envRequireBackup, cfg.RequireBackup); err != nil {
		return Config{}, err
	}
	if cfg.HealthPort, err = intFromEnv(envHealthPort, cfg.HealthPort, 0); err != nil {
		return Config{}, err
	}
	if cfg.MetricsPort, err = intFromEnv(envMetricsPort, cfg.MetricsPort, 0); err != nil {
		return Config{}, err
	}

	if value, ok := lookupTrimmed(envHealthURL); ok {
		cfg.HealthURL = value
	}
	if err := validateURL(cfg.HealthURL, envHealthURL); err != nil {
		return Config{}, err
	}
	if cfg.SlackWebhookURL != "" {
		if err := validateURL(cfg.SlackWebhookURL, envSlackWebhookURL); err != nil {
			return Config{}, err
		}
	}
	if cfg.AlertWebhookURL != "" {
		if err := validateURL(cfg.AlertWebhookURL, envAlertWebhookURL); err != nil {
			return Config{}, err
		}
	}
	if cfg.BackupDir == "" {
		return Config{}, errors.New("SW_BACKUP_DIR must not be empty")
	}

	return cfg, nil
}

// APIKeyConfigured reports whether the API credential is set to a real value
// rather than left empty or on a shipped placeholder.
func (c Config) APIKeyConfigured() bool {
	if c.APIKey == "" {
		return false
	}
	for _, placeholder := range apiKeyPlaceholders {
		if c.APIKey == placeholder {
			return false
		}
	}
	return true
}

// ComponentDataDir returns the conventional live data directory for archive
// components when no components file overrides it.
func (c Config) ComponentDataDir(name string) string {
	return filepath.Join("data", name)
}

func lookupTrimmed(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(value), true
}

func intFromEnv(key string, fallback, min int) (int, error) {
	value, ok := lookupTrimmed(key)
	if !ok {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if parsed < min {
		return 0, fmt.Errorf("%s must be at least %d", key, min)
	}
	return parsed, nil
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	value, ok := lookupTrimmed(key)
	if !ok {
		return fallback, nil
	}
	// Bare integers are seconds, for parity with the shell-era variables.
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds <= 0 {
			return 0, fmt.Errorf("%s must be greater than zero", key)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("%s must be greater than zero", key)
	}
	return parsed, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	value, ok := lookupTrimmed(key)
	if !ok {
		return fallback, nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}

func loadDotEnvIfPresent(path string) error {
	err := godotenv.Load(path)
	if err == nil {
		return nil
	}

	var pathErr *os.PathError
	if errors.As(err, &pathErr) && errors.Is(pathErr.Err, os.ErrNotExist) {
		return nil
	}

	return err
}

func validateURL(value, name string) error {
	parsed, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("invalid %s: must include scheme and host", name)
	}
	return nil
}
