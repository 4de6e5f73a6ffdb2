package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Config is everything stratflowd needs at startup.
type Config struct {
	Server   ServerConfig   `json:"server"`
	Storage  StorageConfig  `json:"storage"`
	Queue    QueueConfig    `json:"queue"`
	Web3     Web3Config     `json:"web3"`
	Executor ExecutorConfig `json:"executor"`
	Alerting AlertingConfig `json:"alerting"`
	Logging  LoggingConfig  `json:"logging"`
	Runtime  RuntimeConfig  `json:"runtime"`
}

// ServerConfig controls the HTTP API listener.
type ServerConfig struct {
	Address   string `json:"address"`
	AuthToken string `json:"auth_token"`
}

// StorageConfig describes the persistence backends.
type StorageConfig struct {
	Strategies StoreConfig `json:"strategies"`
	Runs       StoreConfig `json:"runs"`
}

// StoreConfig selects a store driver. "memory" needs no DSN; "mysql" does.
// The strategy store additionally accepts "file" with a directory path.
type StoreConfig struct {
	Driver string `json:"driver"`
	DSN    string `json:"dsn"`
	Path   string `json:"path"`
}

// QueueConfig selects the execution run queue backend.
type QueueConfig struct {
	Driver   string         `json:"driver"`
	Redis    RedisConfig    `json:"redis"`
	RabbitMQ RabbitMQConfig `json:"rabbitmq"`
}

// RedisConfig holds connection details for the Redis-backed queue.
type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	Key      string `json:"key"`
}

// RabbitMQConfig holds connection details for the RabbitMQ-backed queue.
type RabbitMQConfig struct {
	URL   string `json:"url"`
	Queue string `json:"queue"`
}

// Web3Config names the chain and token definition files plus the wallet
// endpoint that signs and submits on the user's behalf.
type Web3Config struct {
	ChainConfig      string `json:"chain_config"`
	TokenConfig      string `json:"token_config"`
	DefaultChain     string `json:"default_chain"`
	NameServiceChain string `json:"name_service_chain"`
	WalletRPCURL     string `json:"wallet_rpc_url"`
	Account          string `json:"account"`
}

// ExecutorConfig tunes batch settlement polling and the run worker pool.
type ExecutorConfig struct {
	PollIntervalSeconds int  `json:"poll_interval_seconds"`
	MaxPolls            int  `json:"max_polls"`
	Workers             int  `json:"workers"`
	MaxAttempts         int  `json:"max_attempts"`
	RequireAtomic       bool `json:"require_atomic"`
}

// AlertingConfig selects the channels failed and timed-out runs are
// reported on. "log" needs no further settings and is the default.
type AlertingConfig struct {
	Channels []string         `json:"channels"`
	Email    EmailAlertConfig `json:"email"`
	Slack    SlackAlertConfig `json:"slack"`
}

// EmailAlertConfig holds SMTP delivery settings for the email channel.
type EmailAlertConfig struct {
	SMTPAddr      string   `json:"smtp_addr"`
	From          string   `json:"from"`
	Username      string   `json:"username"`
	Password      string   `json:"password"`
	To            []string `json:"to"`
	SubjectPrefix string   `json:"subject_prefix"`
}

// SlackAlertConfig holds webhook delivery settings for the Slack channel.
type SlackAlertConfig struct {
	WebhookURL string `json:"webhook_url"`
	Channel    string `json:"channel"`
}

// LoggingConfig feeds pkg/logger.Init.
type LoggingConfig struct {
	Level       string   `json:"level"`
	Format      string   `json:"format"`
	OutputPaths []string `json:"output_paths"`
	ExecLogPath string   `json:"exec_log_path"`
}

// RuntimeConfig holds general runtime parameters.
type RuntimeConfig struct {
	DataDir string `json:"data_dir"`
}

// Load parses the JSON configuration at path and applies defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("configuration path is empty")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open configuration: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read configuration: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("parse configuration: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))

	return &cfg, nil
}

// applyDefaults fills unset fields with values that work out of the box.
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}

	if c.Storage.Strategies.Driver == "" {
		c.Storage.Strategies.Driver = "memory"
	}
	if c.Storage.Runs.Driver == "" {
		c.Storage.Runs.Driver = "memory"
	}
	c.Storage.Strategies.Path = resolvePath(baseDir, c.Storage.Strategies.Path)

	if c.Queue.Driver == "" {
		c.Queue.Driver = "memory"
	}
	if c.Queue.Redis.Key == "" {
		c.Queue.Redis.Key = "stratflow:runs"
	}
	if c.Queue.RabbitMQ.Queue == "" {
		c.Queue.RabbitMQ.Queue = "stratflow.runs"
	}

	c.Web3.ChainConfig = resolvePath(baseDir, c.Web3.ChainConfig)
	c.Web3.TokenConfig = resolvePath(baseDir, c.Web3.TokenConfig)

	if c.Executor.PollIntervalSeconds <= 0 {
		c.Executor.PollIntervalSeconds = 3
	}
	if c.Executor.MaxPolls <= 0 {
		c.Executor.MaxPolls = 20
	}
	if c.Executor.Workers <= 0 {
		c.Executor.Workers = 1
	}
	if c.Executor.MaxAttempts <= 0 {
		c.Executor.MaxAttempts = 1
	}

	if len(c.Alerting.Channels) == 0 {
		c.Alerting.Channels = []string{"log"}
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	c.Logging.ExecLogPath = resolvePath(baseDir, c.Logging.ExecLogPath)

	if c.Runtime.DataDir == "" {
		c.Runtime.DataDir = filepath.Join(baseDir, "data")
	} else {
		c.Runtime.DataDir = resolvePath(baseDir, c.Runtime.DataDir)
	}
}

func resolvePath(baseDir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}
