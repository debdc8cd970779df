package analysis

import (
	"fmt"
	"math"
	"strconv"

	"PowerDesk/internal/domain/models"
	"PowerDesk/pkg/tabular"

	"github.com/shopspring/decimal"
)

// DefaultImbalancePrice in GBP/MWh, used when neither config nor market
// data provide one.
const DefaultImbalancePrice = 120.0

type DeviationReport struct {
	// Joined is true when rows were matched on Date and Region, false for
	// the positional fallback.
	Joined             bool               `json:"joined"`
	Rows               []models.Deviation `json:"rows"`
	ThresholdPct       float64            `json:"threshold_pct"`
	SettlementHours    float64            `json:"settlement_hours"`
	ImbalancePrice     float64            `json:"imbalance_price"`
	Notable            int                `json:"notable"`
	MeanAbsPct         float64            `json:"mean_abs_deviation_pct"`
	TotalImbalanceCost decimal.Decimal    `json:"total_imbalance_cost"`
	// Table is the combined view used for previews and prompts.
	Table *tabular.Table `json:"-"`
}

// ComputeDeviations compares forecast and actual generation. With Date and
// Region columns on both sides it outer-joins on them; otherwise it falls
// back to the first three forecast columns beside actual column 2 (or 1 when
// the actual table has only two columns).
func ComputeDeviations(forecast, actual *tabular.Table, cfg Config) (*DeviationReport, error) {
	cfg = cfg.withDefaults()
	price := cfg.ImbalancePrice
	if price <= 0 {
		price = DefaultImbalancePrice
	}

	var (
		points []models.GenerationPoint
		joined bool
		err    error
	)
	if forecast.HasColumns("Date", "Region") && actual.HasColumns("Date", "Region") {
		points, err = outerJoin(forecast, actual)
		joined = true
	} else {
		points, err = positional(forecast, actual)
	}
	if err != nil {
		return nil, err
	}

	rep := &DeviationReport{
		Joined:          joined,
		Rows:            make([]models.Deviation, 0, len(points)),
		ThresholdPct:    cfg.DeviationThresholdPct,
		SettlementHours: cfg.SettlementHours,
		ImbalancePrice:  price,
	}
	hours := decimal.NewFromFloat(cfg.SettlementHours)
	unit := decimal.NewFromFloat(price)
	total := decimal.Zero
	var absPctSum float64
	var compared int
	for _, p := range points {
		d := models.Deviation{GenerationPoint: p}
		if p.ForecastMW != nil && p.ActualMW != nil {
			dev := *p.ActualMW - *p.ForecastMW
			pct := 0.0
			if *p.ForecastMW != 0 {
				pct = dev / *p.ForecastMW * 100
			}
			pct = round(pct, 2)
			cost := decimal.NewFromFloat(math.Abs(dev)).Mul(hours).Mul(unit).Round(2)
			d.DeviationMW = &dev
			d.DeviationPct = &pct
			d.Notable = math.Abs(pct) >= cfg.DeviationThresholdPct
			d.ImbalanceCost = &cost
			total = total.Add(cost)
			absPctSum += math.Abs(pct)
			compared++
			if d.Notable {
				rep.Notable++
			}
		}
		rep.Rows = append(rep.Rows, d)
	}
	if compared > 0 {
		rep.MeanAbsPct = round(absPctSum/float64(compared), 2)
	}
	rep.TotalImbalanceCost = total
	rep.Table = deviationTable(rep.Rows)
	return rep, nil
}

// valueColumn picks the figure column: one whose name contains hint, else
// the first column that is not a key.
func valueColumn(t *tabular.Table, hint string, keys ...int) int {
	if i := findColumn(t, nil, hint); i >= 0 {
		return i
	}
	for i := range t.Headers {
		isKey := false
		for _, k := range keys {
			if i == k {
				isKey = true
			}
		}
		if !isKey {
			return i
		}
	}
	return -1
}

func outerJoin(forecast, actual *tabular.Table) ([]models.GenerationPoint, error) {
	fd, fr := forecast.ColumnIndex("Date"), forecast.ColumnIndex("Region")
	ad, ar := actual.ColumnIndex("Date"), actual.ColumnIndex("Region")
	fv := valueColumn(forecast, "forecast", fd, fr)
	av := valueColumn(actual, "actual", ad, ar)
	if fv < 0 || av < 0 {
		return nil, fmt.Errorf("%w: forecast or actual value column", ErrMissingColumns)
	}

	key := func(date, region string) string { return date + "\x00" + region }
	points := make([]models.GenerationPoint, 0, forecast.Len()+actual.Len())
	index := make(map[string]int, forecast.Len())
	for _, row := range forecast.Rows {
		p := models.GenerationPoint{Date: cell(row, fd), Region: cell(row, fr)}
		if v, ok := number(row, fv); ok {
			p.ForecastMW = &v
		}
		k := key(p.Date, p.Region)
		if _, dup := index[k]; !dup {
			index[k] = len(points)
		}
		points = append(points, p)
	}
	for _, row := range actual.Rows {
		date, region := cell(row, ad), cell(row, ar)
		var val *float64
		if v, ok := number(row, av); ok {
			val = &v
		}
		if i, ok := index[key(date, region)]; ok && points[i].ActualMW == nil {
			points[i].ActualMW = val
			continue
		}
		points = append(points, models.GenerationPoint{Date: date, Region: region, ActualMW: val})
	}
	return points, nil
}

func positional(forecast, actual *tabular.Table) ([]models.GenerationPoint, error) {
	if len(forecast.Headers) < 3 {
		return nil, fmt.Errorf("%w: forecast needs at least 3 columns, got %d", ErrMissingColumns, len(forecast.Headers))
	}
	if len(actual.Headers) < 2 {
		return nil, fmt.Errorf("%w: actual needs at least 2 columns, got %d", ErrMissingColumns, len(actual.Headers))
	}
	ac := 1
	if len(actual.Headers) > 2 {
		ac = 2
	}
	points := make([]models.GenerationPoint, 0, forecast.Len())
	for i, row := range forecast.Rows {
		p := models.GenerationPoint{Date: cell(row, 0), Region: cell(row, 1)}
		if v, ok := number(row, 2); ok {
			p.ForecastMW = &v
		}
		if i < actual.Len() {
			if v, ok := number(actual.Rows[i], ac); ok {
				p.ActualMW = &v
			}
		}
		points = append(points, p)
	}
	return points, nil
}

func deviationTable(rows []models.Deviation) *tabular.Table {
	out := make([][]string, 0, len(rows))
	for _, d := range rows {
		out = append(out, []string{
			d.Date,
			d.Region,
			fmtOpt(d.ForecastMW, 1),
			fmtOpt(d.ActualMW, 1),
			fmtOpt(d.DeviationMW, 1),
			fmtOpt(d.DeviationPct, 2),
		})
	}
	return tabular.New([]string{"Date", "Region", "Forecast (MW)", "Actual (MW)", "Deviation (MW)", "Deviation (%)"}, out)
}

func fmtOpt(v *float64, prec int) string {
	if v == nil {
		return "NaN"
	}
	return strconv.FormatFloat(*v, 'f', prec, 64)
}
