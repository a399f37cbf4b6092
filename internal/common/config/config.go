package config

import "fmt"

type Config struct {
	App           AppConfig               `mapstructure:"app"`
	Mailbox       MailboxConfig           `mapstructure:"mailbox"`
	Scanner       ScannerConfig           `mapstructure:"scanner"`
	Database      DatabaseConfig          `mapstructure:"database"`
	Storage       StorageConfig           `mapstructure:"storage"`
	Queue         QueueConfig             `mapstructure:"queue"`
	Collaborators CollaboratorsConfig     `mapstructure:"collaborators"`
	Workers       map[string]WorkerConfig `mapstructure:"workers"`
	Logging       LoggingConfig           `mapstructure:"logging"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type MailboxConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	TLS      bool   `mapstructure:"tls"`
	Folder   string `mapstructure:"folder"`
	Timeout  int    `mapstructure:"timeout"` // milliseconds, per IMAP operation
}

func (m MailboxConfig) Address() string {
	return fmt.Sprintf("%s:%d", m.Host, m.Port)
}

type ScannerConfig struct {
	LookbackDays       int `mapstructure:"lookback_days"`
	BatchSize          int `mapstructure:"batch_size"`
	PollSeconds        int `mapstructure:"poll_seconds"`
	MaxMatchesPerCycle int `mapstructure:"max_matches_per_cycle"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type StorageConfig struct {
	S3       S3Config `mapstructure:"s3"`
	LocalDir string   `mapstructure:"local_dir"`
}

type S3Config struct {
	Enabled bool   `mapstructure:"enabled"`
	Region  string `mapstructure:"region"`
	Bucket  string `mapstructure:"bucket"`
}

type QueueConfig struct {
	ParseQueue    string `mapstructure:"parse_queue"`
	EmailQueue    string `mapstructure:"email_queue"`
	MaxAttempts   int    `mapstructure:"max_attempts"`
	BackoffBaseMS int    `mapstructure:"backoff_base_ms"`
	Consumers     int    `mapstructure:"consumers"`
}

type CollaboratorsConfig struct {
	BaseURL     string  `mapstructure:"base_url"`
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	Timeout     int     `mapstructure:"timeout"` // milliseconds
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
}

type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"` // milliseconds
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}
