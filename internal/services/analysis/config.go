// Package analysis holds the deterministic analyzers behind each assistant
// view and the prompts that turn their figures into model requests.
package analysis

import (
	"errors"
	"strings"

	"PowerDesk/pkg/tabular"
	"PowerDesk/pkg/util"
)

var ErrMissingColumns = errors.New("analysis: required columns not found")

type Config struct {
	DeviationThresholdPct float64
	SettlementHours       float64
	// ImbalancePrice in GBP/MWh; zero derives it from the market average.
	ImbalancePrice   float64
	SpikeZScore      float64
	ForecastDays     int
	ForecastMinPrice float64
	ForecastMaxPrice float64
}

func DefaultConfig() Config {
	return Config{
		DeviationThresholdPct: 10,
		SettlementHours:       0.5,
		SpikeZScore:           2.5,
		ForecastDays:          30,
		ForecastMinPrice:      0.11,
		ForecastMaxPrice:      0.18,
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.DeviationThresholdPct <= 0 {
		c.DeviationThresholdPct = d.DeviationThresholdPct
	}
	if c.SettlementHours <= 0 {
		c.SettlementHours = d.SettlementHours
	}
	if c.SpikeZScore <= 0 {
		c.SpikeZScore = d.SpikeZScore
	}
	if c.ForecastDays <= 0 {
		c.ForecastDays = d.ForecastDays
	}
	if c.ForecastMinPrice <= 0 && c.ForecastMaxPrice <= 0 {
		c.ForecastMinPrice, c.ForecastMaxPrice = d.ForecastMinPrice, d.ForecastMaxPrice
	}
	return c
}

// findColumn returns the first header equal to one of exact, else the first
// header containing one of the fragments, after normalisation.
func findColumn(t *tabular.Table, exact []string, fragments ...string) int {
	if i := t.FindColumn(exact...); i >= 0 {
		return i
	}
	for _, f := range fragments {
		f = util.Normalize(f)
		for i, h := range t.Headers {
			if strings.Contains(util.Normalize(h), f) {
				return i
			}
		}
	}
	return -1
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

func number(row []string, idx int) (float64, bool) {
	return util.ParseNumber(cell(row, idx))
}
