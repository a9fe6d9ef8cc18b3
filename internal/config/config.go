// Package config loads daemon configuration from an optional TOML file
// with environment-variable overrides. Environment wins, so container
// deployments can run without a file at all.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Default values.
const (
	DefaultListenAddr    = ":8080"
	DefaultStateDSN      = "sqlite:data/state.db"
	DefaultQueuePath     = "data/intents.db"
	DefaultKeyPrefix     = "drive"
	DefaultCheckInterval = 2 * time.Minute
	DefaultWorkers       = 4
	DefaultMaxAttempts   = 5
	DefaultLogLevel      = "info"
)

// Config holds the full daemon configuration.
type Config struct {
	// Drive holds provider settings.
	Drive DriveConfig `toml:"drive"`

	// Storage holds destination bucket settings.
	Storage StorageConfig `toml:"storage"`

	// Webhook holds push-notification ingress settings.
	Webhook WebhookConfig `toml:"webhook"`

	// Sync holds pipeline tuning.
	Sync SyncConfig `toml:"sync"`

	// LogLevel is debug, info, warn or error.
	LogLevel string `toml:"log_level"`
}

// DriveConfig holds Google Drive settings.
type DriveConfig struct {
	// FolderID is the monitored folder.
	FolderID string `toml:"folder_id"`

	// CredentialsFile is the service-account JSON key path.
	CredentialsFile string `toml:"credentials_file"`

	// AccessToken, when set, authenticates with a raw OAuth access
	// token instead of the key file. Tokens expire within the hour;
	// meant for smoke tests, not for the daemon.
	AccessToken string `toml:"access_token"`
}

// StorageConfig holds destination settings.
type StorageConfig struct {
	Endpoint  string `toml:"endpoint"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	Bucket    string `toml:"bucket"`
	UseSSL    bool   `toml:"use_ssl"`

	// KeyPrefix prefixes every destination object key.
	KeyPrefix string `toml:"key_prefix"`
}

// WebhookConfig holds ingress settings.
type WebhookConfig struct {
	// ListenAddr is the bind address of the HTTP server.
	ListenAddr string `toml:"listen_addr"`

	// PublicURL is the externally reachable callback address handed to
	// the provider when opening channels.
	PublicURL string `toml:"public_url"`

	// VerificationToken authenticates inbound notifications.
	VerificationToken string `toml:"verification_token"`
}

// SyncConfig holds pipeline tuning.
type SyncConfig struct {
	// StateDSN selects the state backend (sqlite:, bolt:, memory:).
	StateDSN string `toml:"state_dsn"`

	// QueuePath is the durable intent queue file.
	QueuePath string `toml:"queue_path"`

	// CheckInterval is the reconciliation interval.
	CheckInterval time.Duration `toml:"check_interval"`

	// Workers is the upload pool size.
	Workers int `toml:"workers"`

	// MaxAttempts bounds per-intent retries.
	MaxAttempts int `toml:"max_attempts"`
}

// Load reads the TOML file at path (skipped when path is empty or the
// file does not exist), applies environment overrides and defaults,
// and validates the result.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Config entirely from environment.
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := toml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.Drive.FolderID, "GDRIVE_FOLDER_ID")
	setString(&c.Drive.CredentialsFile, "GDRIVE_CREDENTIALS_FILE")
	setString(&c.Drive.AccessToken, "GDRIVE_ACCESS_TOKEN")

	setString(&c.Storage.Endpoint, "S3_ENDPOINT")
	setString(&c.Storage.AccessKey, "S3_ACCESS_KEY")
	setString(&c.Storage.SecretKey, "S3_SECRET_KEY")
	setString(&c.Storage.Bucket, "SYNC_BUCKET")
	setString(&c.Storage.KeyPrefix, "SYNC_KEY_PREFIX")
	setBool(&c.Storage.UseSSL, "S3_USE_SSL")

	setString(&c.Webhook.ListenAddr, "WEBHOOK_LISTEN_ADDR")
	setString(&c.Webhook.PublicURL, "WEBHOOK_PUBLIC_URL")
	setString(&c.Webhook.VerificationToken, "WEBHOOK_VERIFICATION_TOKEN")

	setString(&c.Sync.StateDSN, "STATE_DSN")
	setString(&c.Sync.QueuePath, "QUEUE_PATH")
	setDuration(&c.Sync.CheckInterval, "SYNC_CHECK_INTERVAL")
	setInt(&c.Sync.Workers, "MAX_WORKERS")
	setInt(&c.Sync.MaxAttempts, "MAX_ATTEMPTS")

	setString(&c.LogLevel, "LOG_LEVEL")
}

func (c *Config) applyDefaults() {
	if c.Webhook.ListenAddr == "" {
		c.Webhook.ListenAddr = DefaultListenAddr
	}
	if c.Sync.StateDSN == "" {
		c.Sync.StateDSN = DefaultStateDSN
	}
	if c.Sync.QueuePath == "" {
		c.Sync.QueuePath = DefaultQueuePath
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = DefaultKeyPrefix
	}
	if c.Sync.CheckInterval <= 0 {
		c.Sync.CheckInterval = DefaultCheckInterval
	}
	if c.Sync.Workers <= 0 {
		c.Sync.Workers = DefaultWorkers
	}
	if c.Sync.MaxAttempts <= 0 {
		c.Sync.MaxAttempts = DefaultMaxAttempts
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
}

// Validate checks that everything the daemon cannot run without is set.
func (c *Config) Validate() error {
	var missing []string
	if c.Drive.FolderID == "" {
		missing = append(missing, "drive.folder_id (GDRIVE_FOLDER_ID)")
	}
	if c.Storage.Endpoint == "" {
		missing = append(missing, "storage.endpoint (S3_ENDPOINT)")
	}
	if c.Storage.Bucket == "" {
		missing = append(missing, "storage.bucket (SYNC_BUCKET)")
	}
	if c.Webhook.VerificationToken == "" {
		missing = append(missing, "webhook.verification_token (WEBHOOK_VERIFICATION_TOKEN)")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %v", missing)
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
