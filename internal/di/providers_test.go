package di

import (
	"context"
	"errors"
	"testing"

	"PowerDesk/internal/services/analysis"
	"PowerDesk/pkg/cache"
	"PowerDesk/pkg/config"
	"PowerDesk/pkg/llm"
	"PowerDesk/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	cfg := &config.Config{Environment: "test"}
	cfg.Analysis.DeviationThresholdPct = 7
	cfg.Analysis.ForecastDays = 14
	cfg.Analysis.ForecastMinPrice = 0.1
	cfg.Analysis.ForecastMaxPrice = 0.2
	cfg.LLM.Provider = "openai"
	return cfg
}

func TestProvideAnalysisConfig(t *testing.T) {
	acfg := ProvideAnalysisConfig(testConfig())
	assert.Equal(t, 7.0, acfg.DeviationThresholdPct)
	assert.Equal(t, 14, acfg.ForecastDays)
	assert.Equal(t, 0.2, acfg.ForecastMaxPrice)
}

func TestProvideCompleterWithoutKey(t *testing.T) {
	mem := cache.NewMemoryCache()
	defer mem.Close()

	c, err := ProvideCompleter(testConfig(), mem, nil, logger.NewNop())
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), llm.Request{Prompt: "hi"})
	assert.True(t, errors.Is(err, ErrLLMNotConfigured))
}

func TestProvideExtractor(t *testing.T) {
	cfg := testConfig()
	assert.IsType(t, analysis.RuleExtractor{}, ProvideExtractor(cfg, nil, logger.NewNop()))

	cfg.Analysis.LLMExtraction = true
	assert.IsType(t, &analysis.LLMExtractor{}, ProvideExtractor(cfg, nil, logger.NewNop()))
}

func TestProvideReportPublisherNeedsTopic(t *testing.T) {
	assert.Nil(t, ProvideReportPublisher(nil, testConfig()))
}
