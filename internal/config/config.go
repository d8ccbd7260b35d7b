package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Reviewer  ReviewerConfig  `mapstructure:"reviewer"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Retention RetentionConfig `mapstructure:"retention"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

type ServerConfig struct {
	Port       int        `mapstructure:"port"`
	Mode       string     `mapstructure:"mode"`
	WorkerPort int        `mapstructure:"worker_port"`
	CORS       CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

type StorageConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
}

type QueueConfig struct {
	Endpoint          string `mapstructure:"endpoint"`
	Region            string `mapstructure:"region"`
	QueueURL          string `mapstructure:"queue_url"`
	AccessKey         string `mapstructure:"access_key"`
	SecretKey         string `mapstructure:"secret_key"`
	WaitSeconds       int32  `mapstructure:"wait_seconds"`
	VisibilityTimeout int32  `mapstructure:"visibility_timeout"`
}

type ReviewerConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	GuardrailID string        `mapstructure:"guardrail_id"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Temperature float64       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type WorkerConfig struct {
	MaxConcurrentRequests int           `mapstructure:"max_concurrent_requests"`
	BatchSize             int32         `mapstructure:"batch_size"`
	BackoffMin            time.Duration `mapstructure:"backoff_min"`
	BackoffMax            time.Duration `mapstructure:"backoff_max"`
	MaxConsecutiveFatal   int           `mapstructure:"max_consecutive_fatal"`
}

type RetentionConfig struct {
	MaxJobs int `mapstructure:"max_jobs"`
}

type LoggingConfig struct {
	Level       string `mapstructure:"level"`
	Format      string `mapstructure:"format"`
	File        string `mapstructure:"file"`
	FileOnly    bool   `mapstructure:"file_only"`
	MaxSizeMB   int    `mapstructure:"max_size_mb"`
	MaxBackups  int    `mapstructure:"max_backups"`
	MaxAgeDays  int    `mapstructure:"max_age_days"`
	Compress    bool   `mapstructure:"compress"`
	ServiceName string `mapstructure:"service_name"`
}

func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	// Set config file path
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Enable environment variable override
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set defaults
	v.SetDefault("server.port", 8085)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.worker_port", 8086)
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.region", "eu-west-2")
	v.SetDefault("storage.use_ssl", true)
	v.SetDefault("storage.bucket", "content-reviews")
	v.SetDefault("queue.endpoint", "")
	v.SetDefault("queue.region", "eu-west-2")
	v.SetDefault("queue.wait_seconds", 10)
	v.SetDefault("queue.visibility_timeout", 300)
	v.SetDefault("reviewer.base_url", "http://localhost:8080")
	v.SetDefault("reviewer.model", "anthropic.claude-3-5-sonnet-20240620-v1:0")
	v.SetDefault("reviewer.max_tokens", 1024)
	v.SetDefault("reviewer.temperature", 0.0)
	v.SetDefault("reviewer.timeout", 60*time.Second)
	v.SetDefault("worker.max_concurrent_requests", 4)
	v.SetDefault("worker.batch_size", 10)
	v.SetDefault("worker.backoff_min", 5*time.Second)
	v.SetDefault("worker.backoff_max", 30*time.Second)
	v.SetDefault("worker.max_consecutive_fatal", 3)
	v.SetDefault("retention.max_jobs", 200)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_backups", 7)
	v.SetDefault("logging.max_age_days", 30)
	v.SetDefault("logging.service_name", "content-reviewer")

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables explicitly for sensitive data
	v.BindEnv("storage.endpoint", "S3_ENDPOINT")
	v.BindEnv("storage.region", "AWS_REGION")
	v.BindEnv("storage.access_key", "AWS_ACCESS_KEY_ID")
	v.BindEnv("storage.secret_key", "AWS_SECRET_ACCESS_KEY")
	v.BindEnv("storage.bucket", "S3_BUCKET")
	v.BindEnv("queue.endpoint", "SQS_ENDPOINT")
	v.BindEnv("queue.queue_url", "SQS_QUEUE_URL")
	v.BindEnv("queue.region", "AWS_REGION")
	v.BindEnv("queue.access_key", "AWS_ACCESS_KEY_ID")
	v.BindEnv("queue.secret_key", "AWS_SECRET_ACCESS_KEY")
	v.BindEnv("reviewer.base_url", "REVIEWER_BASE_URL")
	v.BindEnv("reviewer.api_key", "REVIEWER_API_KEY")
	v.BindEnv("reviewer.model", "REVIEWER_MODEL")
	v.BindEnv("reviewer.guardrail_id", "REVIEWER_GUARDRAIL_ID")
	v.BindEnv("worker.max_concurrent_requests", "MAX_CONCURRENT_REQUESTS")
	v.BindEnv("retention.max_jobs", "RETENTION_MAX_JOBS")
	v.BindEnv("logging.level", "LOG_LEVEL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Worker.MaxConcurrentRequests < 0 {
		return fmt.Errorf("worker.max_concurrent_requests must not be negative")
	}
	if c.Retention.MaxJobs < 0 {
		return fmt.Errorf("retention.max_jobs must not be negative")
	}
	return nil
}
