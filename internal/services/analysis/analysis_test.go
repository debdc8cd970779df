package analysis

import (
	"errors"
	"testing"
	"time"

	"PowerDesk/internal/domain/models"
	"PowerDesk/pkg/tabular"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func table(t *testing.T, csv string) *tabular.Table {
	t.Helper()
	tbl, err := tabular.ParseCSV([]byte(csv))
	require.NoError(t, err)
	return tbl
}

func TestExtractMarketPricesFromFallback(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	prices, skipped, err := ExtractMarketPrices(FallbackMarketTable(), models.SourceFallback, now)
	require.NoError(t, err)
	assert.Zero(t, skipped)
	require.Len(t, prices, 4)
	assert.Equal(t, "North", prices[0].Region)
	assert.Equal(t, "0.12", prices[0].Price.String())
	assert.Equal(t, 500.0, prices[0].Volume)
	assert.Equal(t, now, prices[0].Timestamp)
}

func TestExtractMarketPricesSkipsBadRows(t *testing.T) {
	tbl := table(t, "Zone,MCP,Volume\nNorth,0.12,10\nSouth,n/a,5\n,0.2,1\n")
	prices, skipped, err := ExtractMarketPrices(tbl, models.SourceUpload, time.Now())
	require.NoError(t, err)
	assert.Len(t, prices, 1)
	assert.Equal(t, 2, skipped)

	_, _, err = ExtractMarketPrices(table(t, "a,b\n1,2\n"), models.SourceUpload, time.Now())
	assert.True(t, errors.Is(err, ErrMissingColumns))
}

func TestNonFiniteNumbersAreSkipped(t *testing.T) {
	prices, skipped, err := ExtractMarketPrices(table(t, "Region,Price,Volume\nNorth,NaN,500\nSouth,inf,10\nEast,0.1,-Infinity\n"), models.SourceUpload, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, skipped)
	require.Len(t, prices, 1)
	assert.Equal(t, "East", prices[0].Region)
	assert.Zero(t, prices[0].Volume)

	trades, skipped, err := ParseTrades(table(t, "Region,Side,Price\nNorth,Buy,inf\nNorth,Sell,NaN\nNorth,Buy,0.1\n"))
	require.NoError(t, err)
	assert.Equal(t, 2, skipped)
	require.Len(t, trades, 1)

	forecast := table(t, "Date,Region,Forecast\n2024-06-01,North,100\n2024-06-01,South,NaN\n")
	actual := table(t, "Date,Region,Actual\n2024-06-01,North,NaN\n2024-06-01,South,80\n")
	rep, err := ComputeDeviations(forecast, actual, Config{ImbalancePrice: 100})
	require.NoError(t, err)
	require.Len(t, rep.Rows, 2)
	assert.Nil(t, rep.Rows[0].ActualMW)
	assert.Nil(t, rep.Rows[1].ForecastMW)
	assert.True(t, rep.TotalImbalanceCost.IsZero())
}

func TestSummarizeMarket(t *testing.T) {
	prices, _, err := ExtractMarketPrices(FallbackMarketTable(), models.SourceFallback, time.Now())
	require.NoError(t, err)

	s := SummarizeMarket(prices)
	require.Len(t, s.Regions, 4)
	assert.Equal(t, "East", s.Regions[0].Region, "regions are sorted")
	assert.Equal(t, 0.135, s.AvgPrice)
	assert.Equal(t, 0.03, s.Spread)
	assert.Equal(t, 2250.0, s.TotalVolume)

	// mean volume is 562.5: South (700) is +24.4%, West (450) is -20%
	for _, r := range s.Regions {
		assert.False(t, r.ShiftFlagged, r.Region)
	}
	assert.Equal(t, 24.4, s.Regions[2].VolumeShift)
}

func TestComputeDeviationsJoined(t *testing.T) {
	forecast := table(t, "Date,Region,Forecast (MW)\n2024-06-01,North,100\n2024-06-01,South,200\n")
	actual := table(t, "date,region,Actual (MW)\n2024-06-01,South,190\n2024-06-01,North,120\n2024-06-01,East,50\n")

	rep, err := ComputeDeviations(forecast, actual, Config{ImbalancePrice: 120})
	require.NoError(t, err)
	assert.True(t, rep.Joined)
	require.Len(t, rep.Rows, 3)

	north := rep.Rows[0]
	assert.Equal(t, 20.0, *north.DeviationMW)
	assert.Equal(t, 20.0, *north.DeviationPct)
	assert.True(t, north.Notable)
	assert.Equal(t, "1200", north.ImbalanceCost.String())

	south := rep.Rows[1]
	assert.Equal(t, -5.0, *south.DeviationPct)
	assert.False(t, south.Notable)

	east := rep.Rows[2]
	assert.Nil(t, east.ForecastMW)
	assert.Nil(t, east.DeviationMW)

	assert.Equal(t, 1, rep.Notable)
	assert.Equal(t, 12.5, rep.MeanAbsPct)
	assert.Equal(t, "1800", rep.TotalImbalanceCost.String())
	assert.Equal(t, []string{"2024-06-01", "East", "NaN", "50.0", "NaN", "NaN"}, rep.Table.Rows[2])
}

func TestComputeDeviationsPositional(t *testing.T) {
	forecast := table(t, "Day,Zone,MW\nMon,North,100\nTue,North,0\nWed,North,80\n")
	actual := table(t, "Day,MW\nMon,90\nTue,10\n")

	rep, err := ComputeDeviations(forecast, actual, Config{})
	require.NoError(t, err)
	assert.False(t, rep.Joined)
	require.Len(t, rep.Rows, 3)
	assert.Equal(t, -10.0, *rep.Rows[0].DeviationPct)
	assert.Equal(t, 0.0, *rep.Rows[1].DeviationPct, "zero forecast gives zero percent")
	assert.Nil(t, rep.Rows[2].ActualMW)
	assert.Equal(t, DefaultImbalancePrice, rep.ImbalancePrice)

	_, err = ComputeDeviations(table(t, "a,b\n1,2\n"), actual, Config{})
	assert.True(t, errors.Is(err, ErrMissingColumns))
}

const tradeLog = `Date,Region,Side,Price,Quantity (MWh),Counterparty
2024-06-01,North,Buy,0.12,100,Alpha
2024-06-01,North,Sell,0.14,80,Beta
2024-06-02,North,Buy,0.16,50,Gamma
2024-06-02,North,Sell,0.11,60,Delta
2024-06-02,South,Bid,0.15,70,Alpha
2024-06-03,South,hold,0.15,70,Alpha
`

func TestParseTradesAndStatistics(t *testing.T) {
	trades, skipped, err := ParseTrades(table(t, tradeLog))
	require.NoError(t, err)
	assert.Equal(t, 1, skipped, "unknown side")
	require.Len(t, trades, 5)
	assert.Equal(t, models.SideBuy, trades[4].Side)
	assert.Equal(t, "Alpha", trades[0].Counterparty)

	stats := TradeStatistics(trades)
	require.Len(t, stats.BySide, 3)
	nb := stats.BySide[0]
	assert.Equal(t, "North", nb.Region)
	assert.Equal(t, models.SideBuy, nb.Side)
	assert.Equal(t, "0.14", nb.AvgPrice.String())
	assert.Equal(t, 150.0, nb.TotalVolume)

	// North sells average 0.125 and buys 0.14
	require.Len(t, stats.Missed, 2)
	assert.Equal(t, "0.035", stats.Missed[0].Gap.String())
	assert.Equal(t, models.SideBuy, stats.Missed[0].Trade.Side)
	assert.Equal(t, "0.03", stats.Missed[1].Gap.String())
}

func TestParseTradesRequiresColumns(t *testing.T) {
	_, _, err := ParseTrades(table(t, "Region,Price\nNorth,1\n"))
	assert.True(t, errors.Is(err, ErrMissingColumns))
}

func TestTradePricesDefaultsTime(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := TradePrices([]models.Trade{{Region: "North", Side: models.SideBuy}}, now)
	require.Len(t, out, 1)
	assert.Equal(t, now, out[0].Timestamp)
	assert.Equal(t, models.SourceTradeLog, out[0].Source)
}

func TestDigestRegulation(t *testing.T) {
	tbl := table(t, "Date,Bulletin\n1,A\n2,\n3,B\n4,C\n5,D\n6,E\n7,F\n")
	d := DigestRegulation(tbl)
	assert.Equal(t, []string{"A", "B", "C", "D", "E"}, d.Bulletins)
	assert.Equal(t, "A\nB\nC\nD\nE", d.Text)

	plain := DigestRegulation(table(t, "Rule,Limit\nR1,5\n"))
	assert.Empty(t, plain.Bulletins)
	assert.Contains(t, plain.Text, "| Rule | Limit |")
}
