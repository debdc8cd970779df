package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
environment: test
backend:
  type: kafka
kafka:
  brokers: ["localhost:9092"]
  topic: market-prices
`)
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if c.Server.Port != 8080 {
		t.Errorf("server.port = %d, want 8080", c.Server.Port)
	}
	if c.LLM.Provider != "openai" || c.LLM.MaxTokens != 500 || c.LLM.Temperature != 0.4 {
		t.Errorf("llm defaults = %+v", c.LLM)
	}
	if c.Market.Limit != 10 || c.Market.ResourceID == "" {
		t.Errorf("market defaults = %+v", c.Market)
	}
	if c.Analysis.DeviationThresholdPct != 10 || c.Analysis.SettlementHours != 0.5 {
		t.Errorf("analysis defaults = %+v", c.Analysis)
	}
	if c.Analysis.ForecastDays != 30 || c.Analysis.ForecastMinPrice != 0.11 || c.Analysis.ForecastMaxPrice != 0.18 {
		t.Errorf("forecast defaults = %+v", c.Analysis)
	}
	if c.Redis.DatasetTTL != 24*time.Hour {
		t.Errorf("redis.dataset_ttl = %v", c.Redis.DatasetTTL)
	}
}

func TestLoadKeepsExplicitValues(t *testing.T) {
	path := writeConfig(t, `
environment: prod
backend:
  type: clickhouse
llm:
  provider: anthropic
  max_tokens: 800
analysis:
  deviation_threshold_pct: 5
  timeout: 30s
`)
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if c.LLM.Provider != "anthropic" || c.LLM.MaxTokens != 800 {
		t.Errorf("llm = %+v", c.LLM)
	}
	if c.Analysis.DeviationThresholdPct != 5 || c.Analysis.Timeout != 30*time.Second {
		t.Errorf("analysis = %+v", c.Analysis)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing environment", "backend:\n  type: kafka\n"},
		{"bad backend", "environment: x\nbackend:\n  type: postgres\n"},
		{"bad provider", "environment: x\nbackend:\n  type: kafka\nllm:\n  provider: mistral\n"},
		{"azure without endpoint", "environment: x\nbackend:\n  type: kafka\nllm:\n  provider: azure\n"},
		{"inverted forecast band", "environment: x\nbackend:\n  type: kafka\nanalysis:\n  forecast_min_price: 0.3\n  forecast_max_price: 0.2\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.body)); err == nil {
				t.Fatalf("Load() expected error")
			}
		})
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	path := writeConfig(t, "environment: dev\nbackend:\n  type: kafka\n")
	t.Setenv("LLM_PROVIDER", "azure")
	t.Setenv("AZURE_OPENAI_API_KEY", "az-key")
	t.Setenv("AZURE_OPENAI_ENDPOINT", "https://example.openai.azure.com")
	t.Setenv("AZURE_OPENAI_DEPLOYMENT_NAME", "gpt4o-prod")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("MARKET_REGIONS", "North,South")

	c, err := LoadWithEnv(path)
	if err != nil {
		t.Fatalf("LoadWithEnv() error = %v", err)
	}
	if c.LLM.Provider != "azure" || c.LLM.APIKey != "az-key" || c.LLM.Model != "gpt4o-prod" {
		t.Errorf("llm = %+v", c.LLM)
	}
	if len(c.Kafka.Brokers) != 2 || c.Kafka.Brokers[1] != "k2:9092" {
		t.Errorf("kafka.brokers = %v", c.Kafka.Brokers)
	}
	if c.Redis.Port != 6380 {
		t.Errorf("redis.port = %d", c.Redis.Port)
	}
	if len(c.Market.Regions) != 2 {
		t.Errorf("market.regions = %v", c.Market.Regions)
	}
}
