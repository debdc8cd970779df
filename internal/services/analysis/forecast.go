package analysis

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"PowerDesk/internal/domain/models"
	domsvc "PowerDesk/internal/domain/service"
	"PowerDesk/internal/services/features"
	"PowerDesk/pkg/tabular"

	"github.com/shopspring/decimal"
)

// baseWindow is how many recent prices anchor a derived forecast.
const baseWindow = 7

// Forecaster projects daily prices. Without history it draws uniformly from
// the configured band; with history it walks from the recent mean along the
// mean log return, kept within two sigma of the base.
type Forecaster struct {
	mu       sync.Mutex
	rnd      *rand.Rand
	min, max float64
}

func NewForecaster(cfg Config, src rand.Source) *Forecaster {
	cfg = cfg.withDefaults()
	if src == nil {
		src = rand.NewSource(time.Now().UnixNano())
	}
	return &Forecaster{rnd: rand.New(src), min: cfg.ForecastMinPrice, max: cfg.ForecastMaxPrice}
}

func (f *Forecaster) Forecast(ctx context.Context, history []float64, start time.Time, days int) ([]models.PriceForecastPoint, error) {
	if days <= 0 {
		return nil, fmt.Errorf("forecast: days must be positive, got %d", days)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	start = start.UTC().Truncate(24 * time.Hour)
	out := make([]models.PriceForecastPoint, days)

	base, drift, sigma := f.fit(history)
	for i := 0; i < days; i++ {
		var p float64
		if base <= 0 {
			p = f.min + f.rnd.Float64()*(f.max-f.min)
		} else {
			step := float64(i + 1)
			noise := f.rnd.NormFloat64() * sigma * math.Sqrt(step)
			bound := 2 * sigma * math.Sqrt(step)
			move := math.Max(-bound, math.Min(bound, drift*step+noise))
			p = base * math.Exp(move)
		}
		out[i] = models.PriceForecastPoint{
			Date:  start.AddDate(0, 0, i).Format("2006-01-02"),
			Price: decimal.NewFromFloat(p).Round(3),
		}
	}
	return out, nil
}

// fit returns base <= 0 when history is too short to derive from.
func (f *Forecaster) fit(history []float64) (base, drift, sigma float64) {
	if len(history) < 2 {
		return 0, 0, 0
	}
	tail := history
	if len(tail) > baseWindow {
		tail = tail[len(tail)-baseWindow:]
	}
	base, _ = features.MeanStd(tail)
	if base <= 0 {
		return 0, 0, 0
	}
	returns := features.ComputeLogReturns(history)
	drift, sigma = features.MeanStd(returns)
	// a flat history still gets a little movement
	if sigma == 0 {
		sigma = 0.01
	}
	drift = math.Max(-sigma, math.Min(sigma, drift))
	return base, drift, sigma
}

var _ domsvc.PriceForecaster = (*Forecaster)(nil)

// ForecastTable renders forecast points with the columns shown to users.
// Prices keep the unit of the history they were derived from.
func ForecastTable(points []models.PriceForecastPoint) *tabular.Table {
	rows := make([][]string, 0, len(points))
	for _, p := range points {
		rows = append(rows, []string{p.Date, p.Price.StringFixed(3)})
	}
	return tabular.New([]string{"Date", "Predicted Price"}, rows)
}
