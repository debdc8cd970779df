package analysis

import (
	"math"
	"sort"
	"strings"

	"PowerDesk/internal/domain/models"
	"PowerDesk/internal/services/features"
	"PowerDesk/pkg/tabular"
)

// snapshotSpikePct flags a region priced this far above the cross-region
// mean when only one observation per region is available.
const snapshotSpikePct = 10.0

// DetectRisks derives warning signals per region from price observations.
// Results are ordered by severity, highest first.
func DetectRisks(prices []*models.MarketPrice, cfg Config) []models.RiskSignal {
	cfg = cfg.withDefaults()
	series := make(map[string][]float64)
	var regions []string
	for _, p := range prices {
		if _, ok := series[p.Region]; !ok {
			regions = append(regions, p.Region)
		}
		series[p.Region] = append(series[p.Region], p.PriceFloat())
	}
	if len(regions) == 0 {
		return nil
	}

	snapshot := true
	for _, s := range series {
		if len(s) > 1 {
			snapshot = false
			break
		}
	}

	out := make([]models.RiskSignal, 0, len(regions))
	if snapshot {
		var sum float64
		for _, r := range regions {
			sum += series[r][0]
		}
		mean := sum / float64(len(regions))
		for _, r := range regions {
			out = append(out, snapshotSignal(r, series[r][0], mean))
		}
	} else {
		for _, r := range regions {
			out = append(out, seriesSignal(r, series[r], cfg.SpikeZScore))
		}
	}
	sortSignals(out)
	return out
}

func snapshotSignal(region string, price, mean float64) models.RiskSignal {
	switch {
	case price < 0:
		return models.RiskSignal{Region: region, Level: models.WarningHigh, Signal: "Negative price", Severity: 3}
	case mean > 0 && (price-mean)/mean*100 >= snapshotSpikePct:
		return models.RiskSignal{Region: region, Level: models.WarningMedium, Signal: "Price spike", Severity: round((price-mean)/mean*100, 1)}
	default:
		return models.RiskSignal{Region: region, Level: models.WarningLow, Signal: "Stable"}
	}
}

func seriesSignal(region string, prices []float64, threshold float64) models.RiskSignal {
	last := prices[len(prices)-1]
	if last < 0 {
		return models.RiskSignal{Region: region, Level: models.WarningHigh, Signal: "Negative price", Severity: threshold + 1}
	}
	returns := features.ComputeLogReturns(prices)
	z := features.ZScores(returns)
	if len(z) > 0 {
		lz := z[len(z)-1]
		if math.Abs(lz) >= threshold {
			sig := "Price spike"
			if lz < 0 {
				sig = "Price drop"
			}
			return models.RiskSignal{Region: region, Level: models.WarningHigh, Signal: sig, Severity: round(math.Abs(lz), 2)}
		}
	}
	// recent volatility against the whole series
	if len(returns) >= 4 {
		_, all := features.MeanStd(returns)
		_, recent := features.MeanStd(returns[len(returns)-3:])
		if all > 0 && recent >= 1.5*all {
			return models.RiskSignal{Region: region, Level: models.WarningMedium, Signal: "Volatility spike", Severity: round(recent/all, 2)}
		}
	}
	return models.RiskSignal{Region: region, Level: models.WarningLow, Signal: "Stable"}
}

var levelRank = map[models.WarningLevel]int{
	models.WarningHigh:   0,
	models.WarningMedium: 1,
	models.WarningLow:    2,
}

func sortSignals(s []models.RiskSignal) {
	sort.SliceStable(s, func(i, j int) bool {
		if levelRank[s[i].Level] != levelRank[s[j].Level] {
			return levelRank[s[i].Level] < levelRank[s[j].Level]
		}
		if s[i].Severity != s[j].Severity {
			return s[i].Severity > s[j].Severity
		}
		return s[i].Region < s[j].Region
	})
}

// FallbackRiskSignals is FallbackRiskTable as signals.
func FallbackRiskSignals() []models.RiskSignal {
	return RiskSignalsFromTable(FallbackRiskTable())
}

// RiskSignalsFromTable reads a Region / Warning Level / Signal table.
func RiskSignalsFromTable(t *tabular.Table) []models.RiskSignal {
	region := t.FindColumn("Region")
	level := t.FindColumn("Warning Level", "Level")
	signal := t.FindColumn("Signal")
	out := make([]models.RiskSignal, 0, t.Len())
	for _, row := range t.Rows {
		lvl := parseLevel(cell(row, level))
		out = append(out, models.RiskSignal{Region: cell(row, region), Level: lvl, Signal: cell(row, signal)})
	}
	sortSignals(out)
	return out
}

func parseLevel(s string) models.WarningLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high", "red", "critical":
		return models.WarningHigh
	case "medium", "amber", "moderate":
		return models.WarningMedium
	default:
		return models.WarningLow
	}
}

// RiskTable renders signals with the columns shown to users.
func RiskTable(signals []models.RiskSignal) *tabular.Table {
	rows := make([][]string, 0, len(signals))
	for _, s := range signals {
		rows = append(rows, []string{s.Region, string(s.Level), s.Signal})
	}
	return tabular.New([]string{"Region", "Warning Level", "Signal"}, rows)
}
