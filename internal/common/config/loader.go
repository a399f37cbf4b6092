package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

func Load() (*Config, error) {
	loadEnvFile()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("../../configs")
	viper.AddConfigPath(".")

	// Enable ENV override like MAILBOX_PASSWORD
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	// Environment overlay, e.g. config.production.yaml
	viper.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = viper.MergeInConfig() // ignore error if not found

	expandEnvVars(viper.GetViper())

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// Find project root by looking for go.mod
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// expandEnvVars resolves ${VAR} placeholders inside string config values.
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		val := v.Get(key)
		if strVal, ok := val.(string); ok {
			if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
				expanded := os.ExpandEnv(strVal)
				if expanded != strVal && expanded != "" {
					v.Set(key, expanded)
				}
			}
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Mailbox.Folder == "" {
		cfg.Mailbox.Folder = "INBOX"
	}
	if cfg.Mailbox.Port == 0 {
		if cfg.Mailbox.TLS {
			cfg.Mailbox.Port = 993
		} else {
			cfg.Mailbox.Port = 143
		}
	}
	if cfg.Mailbox.Timeout == 0 {
		cfg.Mailbox.Timeout = 30000
	}
	if cfg.Scanner.LookbackDays == 0 {
		cfg.Scanner.LookbackDays = 1
	}
	if cfg.Scanner.BatchSize == 0 {
		cfg.Scanner.BatchSize = 10
	}
	if cfg.Scanner.PollSeconds == 0 {
		cfg.Scanner.PollSeconds = 60
	}
	if cfg.Scanner.MaxMatchesPerCycle == 0 {
		cfg.Scanner.MaxMatchesPerCycle = 1
	}
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 20
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}
	if cfg.Storage.LocalDir == "" {
		cfg.Storage.LocalDir = filepath.Join("storage", "uploads")
	}
	if cfg.Queue.ParseQueue == "" {
		cfg.Queue.ParseQueue = "parse-proposals"
	}
	if cfg.Queue.EmailQueue == "" {
		cfg.Queue.EmailQueue = "send-rfp-emails"
	}
	if cfg.Queue.MaxAttempts == 0 {
		cfg.Queue.MaxAttempts = 3
	}
	if cfg.Queue.BackoffBaseMS == 0 {
		cfg.Queue.BackoffBaseMS = 1000
	}
	if cfg.Queue.Consumers == 0 {
		cfg.Queue.Consumers = 4
	}
	if cfg.Collaborators.Model == "" {
		cfg.Collaborators.Model = "gpt-4o-mini"
	}
	if cfg.Collaborators.Timeout == 0 {
		cfg.Collaborators.Timeout = 30000
	}
	if cfg.Collaborators.MaxTokens == 0 {
		cfg.Collaborators.MaxTokens = 1000
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}
}

// overrideEmptyConfig fills credentials from well-known env vars when the
// YAML left them blank.
func overrideEmptyConfig(cfg *Config) {
	if cfg.Mailbox.Host == "" {
		if val := os.Getenv("IMAP_HOST"); val != "" {
			cfg.Mailbox.Host = val
		}
	}
	if cfg.Mailbox.User == "" {
		if val := os.Getenv("IMAP_USER"); val != "" {
			cfg.Mailbox.User = val
		}
	}
	if cfg.Mailbox.Password == "" {
		if val := os.Getenv("IMAP_PASS"); val != "" {
			cfg.Mailbox.Password = val
		}
	}
	if cfg.Collaborators.APIKey == "" {
		if val := os.Getenv("OPENAI_API_KEY"); val != "" {
			cfg.Collaborators.APIKey = val
		}
	}
	if cfg.Storage.S3.Bucket == "" {
		if val := os.Getenv("AWS_S3_BUCKET"); val != "" {
			cfg.Storage.S3.Bucket = val
			cfg.Storage.S3.Enabled = true
		}
	}
	if cfg.Storage.S3.Region == "" {
		if val := os.Getenv("AWS_REGION"); val != "" {
			cfg.Storage.S3.Region = val
		}
	}
	if cfg.Database.Postgres.User == "" {
		if val := os.Getenv("DB_USER"); val != "" {
			cfg.Database.Postgres.User = val
		}
	}
	if cfg.Database.Postgres.Password == "" {
		if val := os.Getenv("DB_PASSWORD"); val != "" {
			cfg.Database.Postgres.Password = val
		}
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Database.Postgres.Host == "" {
		return fmt.Errorf("database.postgres.host is required")
	}
	if cfg.Database.Redis.Address == "" {
		return fmt.Errorf("database.redis.address is required")
	}
	if cfg.Storage.S3.Enabled && cfg.Storage.S3.Bucket == "" {
		return fmt.Errorf("storage.s3.bucket is required when s3 is enabled")
	}
	return nil
}
