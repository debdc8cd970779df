package analysis

import (
	"testing"
	"time"

	"PowerDesk/internal/domain/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func series(region string, prices ...float64) []*models.MarketPrice {
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	out := make([]*models.MarketPrice, len(prices))
	for i, p := range prices {
		out[i] = &models.MarketPrice{Region: region, Timestamp: start.Add(time.Duration(i) * time.Hour), Price: decimal.NewFromFloat(p)}
	}
	return out
}

func TestDetectRisksFromSeries(t *testing.T) {
	var prices []*models.MarketPrice
	prices = append(prices, series("East", 0.12, 0.12, 0.12, 0.12)...)
	prices = append(prices, series("North", 0.1, 0.1, 0.1, 0.1, 0.1, 0.1, 0.1, 0.1, 0.1, 0.2)...)
	prices = append(prices, series("South", 0.2, 0.2, 0.2, 0.2, 0.2, 0.2, 0.2, 0.2, 0.2, 0.1)...)
	prices = append(prices, series("West", 0.1, -0.05)...)
	prices = append(prices, series("Central", 0.10, 0.101, 0.100, 0.101, 0.100, 0.101, 0.100, 0.12, 0.10, 0.12)...)

	got := DetectRisks(prices, Config{})
	require.Len(t, got, 5)

	assert.Equal(t, "West", got[0].Region)
	assert.Equal(t, "Negative price", got[0].Signal)

	assert.Equal(t, "North", got[1].Region)
	assert.Equal(t, models.WarningHigh, got[1].Level)
	assert.Equal(t, "Price spike", got[1].Signal)

	assert.Equal(t, "South", got[2].Region)
	assert.Equal(t, "Price drop", got[2].Signal)

	assert.Equal(t, "Central", got[3].Region)
	assert.Equal(t, models.WarningMedium, got[3].Level)
	assert.Equal(t, "Volatility spike", got[3].Signal)

	assert.Equal(t, models.RiskSignal{Region: "East", Level: models.WarningLow, Signal: "Stable"}, got[4])
}

func TestDetectRisksFromSnapshot(t *testing.T) {
	prices, _, err := ExtractMarketPrices(FallbackMarketTable(), models.SourceFallback, time.Now())
	require.NoError(t, err)

	got := DetectRisks(prices, Config{})
	require.Len(t, got, 4)
	assert.Equal(t, "South", got[0].Region)
	assert.Equal(t, models.WarningMedium, got[0].Level)
	assert.Equal(t, "Price spike", got[0].Signal)
	for _, s := range got[1:] {
		assert.Equal(t, models.WarningLow, s.Level, s.Region)
	}

	assert.Nil(t, DetectRisks(nil, Config{}))
}

func TestFallbackRiskSignals(t *testing.T) {
	got := FallbackRiskSignals()
	require.Len(t, got, 4)
	assert.Equal(t, "North", got[0].Region)
	assert.Equal(t, models.WarningHigh, got[0].Level)
	assert.Equal(t, "Capacity risk", got[0].Signal)
	assert.Equal(t, models.WarningLow, got[3].Level)

	tbl := RiskTable(got)
	assert.Equal(t, []string{"Region", "Warning Level", "Signal"}, tbl.Headers)
	assert.Equal(t, []string{"North", "High", "Capacity risk"}, tbl.Rows[0])
}
