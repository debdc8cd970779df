package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		MaxUploadBytes  int64         `yaml:"max_upload_bytes"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		Output string `yaml:"output"`
		// Aggregated error logs are published to this topic when set.
		Topic         string        `yaml:"topic"`
		FlushInterval time.Duration `yaml:"flush_interval"`
		FlushCount    int           `yaml:"flush_count"`
	} `yaml:"log"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	Backend struct {
		Type         string        `yaml:"type"`
		BatchSize    int           `yaml:"batch_size"`
		BatchTimeout time.Duration `yaml:"batch_timeout"`
	} `yaml:"backend"`
	Kafka struct {
		Brokers      []string `yaml:"brokers"`
		Topic        string   `yaml:"topic"`
		ReportsTopic string   `yaml:"reports_topic"`
		RequiredAcks int      `yaml:"required_acks"`
		Compression  string   `yaml:"compression"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			Linger       time.Duration `yaml:"linger"`
			BatchBytes   int           `yaml:"batch_bytes"`
			BatchSize    int           `yaml:"batch_size"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
			ReadTimeout  time.Duration `yaml:"read_timeout"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			Enabled    bool          `yaml:"enabled"`
			GroupID    string        `yaml:"group_id"`
			Workers    int           `yaml:"workers"`
			BufferSize int           `yaml:"buffer_size"`
			RetryMax   int           `yaml:"retry_max"`
			BackoffMin time.Duration `yaml:"backoff_min"`
			BackoffMax time.Duration `yaml:"backoff_max"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes"`
			MaxBytes   int           `yaml:"max_bytes"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port"`
		Database         string        `yaml:"database"`
		User             string        `yaml:"user"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		WriteTimeout     time.Duration `yaml:"write_timeout"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	} `yaml:"clickhouse"`
	Redis struct {
		Host       string        `yaml:"host"`
		Port       int           `yaml:"port"`
		Password   string        `yaml:"password"`
		DB         int           `yaml:"db"`
		Prefix     string        `yaml:"prefix"`
		DatasetTTL time.Duration `yaml:"dataset_ttl"`
	} `yaml:"redis"`
	Queue struct {
		Workers    int           `yaml:"workers"`
		RetryLimit int           `yaml:"retry_limit"`
		RetryDelay time.Duration `yaml:"retry_delay"`
		JobTTL     time.Duration `yaml:"job_ttl"`
	} `yaml:"queue"`
	LLM struct {
		Provider    string        `yaml:"provider"` // openai, azure, anthropic
		APIKey      string        `yaml:"api_key"`
		Model       string        `yaml:"model"`
		Endpoint    string        `yaml:"endpoint"`
		APIVersion  string        `yaml:"api_version"`
		MaxTokens   int           `yaml:"max_tokens"`
		Temperature float64       `yaml:"temperature"`
		Timeout     time.Duration `yaml:"timeout"`
		CacheTTL    time.Duration `yaml:"cache_ttl"`
	} `yaml:"llm"`
	Market struct {
		ESOURL         string        `yaml:"eso_url"`
		ResourceID     string        `yaml:"resource_id"`
		Limit          int           `yaml:"limit"`
		PollInterval   time.Duration `yaml:"poll_interval"`
		FeedURL        string        `yaml:"feed_url"`
		FeedAPIKey     string        `yaml:"feed_api_key"`
		Regions        []string      `yaml:"regions"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay"`
		PingInterval   time.Duration `yaml:"ping_interval"`
		MaxRPS         int           `yaml:"max_rps"`
		BufferSize     int           `yaml:"buffer_size"`
	} `yaml:"market"`
	Analysis struct {
		DeviationThresholdPct float64       `yaml:"deviation_threshold_pct"`
		SettlementHours       float64       `yaml:"settlement_hours"`
		ImbalancePrice        float64       `yaml:"imbalance_price"`
		SpikeZScore           float64       `yaml:"spike_z_score"`
		ForecastDays          int           `yaml:"forecast_days"`
		ForecastMinPrice      float64       `yaml:"forecast_min_price"`
		ForecastMaxPrice      float64       `yaml:"forecast_max_price"`
		Timeout               time.Duration `yaml:"timeout"`
		ContractCheckSchedule string        `yaml:"contract_check_schedule"`
		LLMExtraction         bool          `yaml:"llm_extraction"`
		RateLimit             struct {
			Capacity     float64 `yaml:"capacity"`
			RefillPerSec float64 `yaml:"refill_per_sec"`
		} `yaml:"rate_limit"`
	} `yaml:"analysis"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	c.applyDefaults()

	// Validate required fields
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads a .env file if present, then config from YAML, and
// overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	c.applyEnv()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("LLM_PROVIDER"); v != "" {
		c.LLM.Provider = v
	}
	// provider specific keys win over the generic one
	switch c.LLM.Provider {
	case "azure":
		if v := os.Getenv("AZURE_OPENAI_API_KEY"); v != "" {
			c.LLM.APIKey = v
		}
		if v := os.Getenv("AZURE_OPENAI_ENDPOINT"); v != "" {
			c.LLM.Endpoint = v
		}
		if v := os.Getenv("AZURE_OPENAI_DEPLOYMENT_NAME"); v != "" {
			c.LLM.Model = v
		}
	case "anthropic":
		if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
			c.LLM.APIKey = v
		}
	default:
		if v := os.Getenv("OPENAI_API_KEY"); v != "" {
			c.LLM.APIKey = v
		}
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("BACKEND"); v != "" {
		c.Backend.Type = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		c.Kafka.Topic = v
	}
	if v := os.Getenv("REDIS_HOST"); v != "" {
		c.Redis.Host = v
	}
	if v := os.Getenv("REDIS_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Redis.Port = p
		}
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("MARKET_REGIONS"); v != "" {
		c.Market.Regions = strings.Split(v, ",")
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.MaxUploadBytes == 0 {
		c.Server.MaxUploadBytes = 10 << 20
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if c.Log.Output == "" {
		c.Log.Output = "stdout"
	}
	if c.Log.FlushInterval == 0 {
		c.Log.FlushInterval = 30 * time.Second
	}
	if c.Log.FlushCount == 0 {
		c.Log.FlushCount = 100
	}
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = "powerdesk"
	}
	if c.Redis.DatasetTTL == 0 {
		c.Redis.DatasetTTL = 24 * time.Hour
	}
	if c.Queue.Workers == 0 {
		c.Queue.Workers = 2
	}
	if c.Queue.RetryDelay == 0 {
		c.Queue.RetryDelay = 10 * time.Second
	}
	if c.Queue.JobTTL == 0 {
		c.Queue.JobTTL = 24 * time.Hour
	}
	if c.LLM.Provider == "" {
		c.LLM.Provider = "openai"
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "gpt-4o-mini"
	}
	if c.LLM.APIVersion == "" {
		c.LLM.APIVersion = "2024-12-01-preview"
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = 500
	}
	if c.LLM.Temperature == 0 {
		c.LLM.Temperature = 0.4
	}
	if c.LLM.Timeout == 0 {
		c.LLM.Timeout = 60 * time.Second
	}
	if c.LLM.CacheTTL == 0 {
		c.LLM.CacheTTL = time.Hour
	}
	if c.Market.ESOURL == "" {
		c.Market.ESOURL = "https://data.nationalgrideso.com/api/3/action/datastore_search"
	}
	if c.Market.ResourceID == "" {
		c.Market.ResourceID = "4f6ec4a3-dc81-4c25-b01c-cd15ea52b421"
	}
	if c.Market.Limit == 0 {
		c.Market.Limit = 10
	}
	if c.Market.PollInterval == 0 {
		c.Market.PollInterval = 5 * time.Minute
	}
	if c.Market.ReconnectDelay == 0 {
		c.Market.ReconnectDelay = 5 * time.Second
	}
	if c.Market.PingInterval == 0 {
		c.Market.PingInterval = 30 * time.Second
	}
	if c.Market.MaxRPS == 0 {
		c.Market.MaxRPS = 10
	}
	if c.Market.BufferSize == 0 {
		c.Market.BufferSize = 1000
	}
	if c.Backend.BatchSize == 0 {
		c.Backend.BatchSize = 100
	}
	if c.Backend.BatchTimeout == 0 {
		c.Backend.BatchTimeout = time.Second
	}
	if c.Analysis.DeviationThresholdPct == 0 {
		c.Analysis.DeviationThresholdPct = 10
	}
	if c.Analysis.SettlementHours == 0 {
		c.Analysis.SettlementHours = 0.5
	}
	if c.Analysis.SpikeZScore == 0 {
		c.Analysis.SpikeZScore = 2.5
	}
	if c.Analysis.ForecastDays == 0 {
		c.Analysis.ForecastDays = 30
	}
	if c.Analysis.ForecastMinPrice == 0 {
		c.Analysis.ForecastMinPrice = 0.11
	}
	if c.Analysis.ForecastMaxPrice == 0 {
		c.Analysis.ForecastMaxPrice = 0.18
	}
	if c.Analysis.Timeout == 0 {
		c.Analysis.Timeout = 90 * time.Second
	}
	if c.Analysis.ContractCheckSchedule == "" {
		c.Analysis.ContractCheckSchedule = "@every 1h"
	}
	if c.Analysis.RateLimit.Capacity == 0 {
		c.Analysis.RateLimit.Capacity = 5
	}
	if c.Analysis.RateLimit.RefillPerSec == 0 {
		c.Analysis.RateLimit.RefillPerSec = 0.5
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Backend.Type == "" {
		return fmt.Errorf("backend.type is required")
	}
	if c.Backend.Type != "kafka" && c.Backend.Type != "clickhouse" {
		return fmt.Errorf("backend.type must be 'kafka' or 'clickhouse', got '%s'", c.Backend.Type)
	}
	switch c.LLM.Provider {
	case "openai", "anthropic":
	case "azure":
		if c.LLM.Endpoint == "" {
			return fmt.Errorf("llm.endpoint is required for azure")
		}
	default:
		return fmt.Errorf("llm.provider must be 'openai', 'azure' or 'anthropic', got '%s'", c.LLM.Provider)
	}
	if c.Analysis.ForecastMinPrice > c.Analysis.ForecastMaxPrice {
		return fmt.Errorf("analysis.forecast_min_price must be <= forecast_max_price")
	}
	return nil
}
