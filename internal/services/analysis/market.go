package analysis

import (
	"math"
	"sort"
	"time"

	"PowerDesk/internal/domain/models"
	"PowerDesk/pkg/tabular"
	"PowerDesk/pkg/util"

	"github.com/shopspring/decimal"
)

// VolumeShiftPct is the distance from the mean regional volume that counts
// as a volume shift.
const VolumeShiftPct = 25.0

// FallbackMarketTable is shown when the live market feed is unavailable.
func FallbackMarketTable() *tabular.Table {
	return tabular.New(
		[]string{"Region", "Price (£/kWh)", "Volume (MWh)"},
		[][]string{
			{"North", "0.12", "500"},
			{"South", "0.15", "700"},
			{"East", "0.14", "600"},
			{"West", "0.13", "450"},
		},
	)
}

// FallbackRiskTable is shown when live risk data is unavailable.
func FallbackRiskTable() *tabular.Table {
	return tabular.New(
		[]string{"Region", "Warning Level", "Signal"},
		[][]string{
			{"North", "High", "Capacity risk"},
			{"South", "Medium", "Price spike"},
			{"East", "Low", "Stable"},
			{"West", "Medium", "Congestion"},
		},
	)
}

type marketColumns struct {
	region, price, volume, time int
}

func detectMarketColumns(t *tabular.Table) marketColumns {
	return marketColumns{
		region: findColumn(t, []string{"region", "zone", "area", "bidding_zone", "gsp_group"}, "region", "zone"),
		price:  findColumn(t, []string{"price", "mcp", "clearing_price"}, "price", "mcp"),
		volume: findColumn(t, []string{"volume", "quantity", "mwh"}, "volume", "quantity", "demand"),
		time:   findColumn(t, []string{"timestamp", "datetime", "date", "time", "settlement_date"}, "date", "time"),
	}
}

// ExtractMarketPrices turns market rows into price records. Rows without a
// parseable price are skipped; a table without region or price columns
// yields ErrMissingColumns.
func ExtractMarketPrices(t *tabular.Table, source string, now time.Time) ([]*models.MarketPrice, int, error) {
	cols := detectMarketColumns(t)
	if cols.region < 0 || cols.price < 0 {
		return nil, t.Len(), ErrMissingColumns
	}
	out := make([]*models.MarketPrice, 0, t.Len())
	skipped := 0
	for _, row := range t.Rows {
		region := cell(row, cols.region)
		price, ok := number(row, cols.price)
		if region == "" || !ok {
			skipped++
			continue
		}
		vol, _ := number(row, cols.volume)
		ts := util.ParseTimeDefault(cell(row, cols.time), now)
		out = append(out, &models.MarketPrice{
			Region:    region,
			Timestamp: ts,
			Price:     decimal.NewFromFloat(price),
			Volume:    vol,
			Source:    source,
		})
	}
	return out, skipped, nil
}

type RegionSummary struct {
	Region       string  `json:"region"`
	Observations int     `json:"observations"`
	AvgPrice     float64 `json:"avg_price"`
	MinPrice     float64 `json:"min_price"`
	MaxPrice     float64 `json:"max_price"`
	Spread       float64 `json:"spread"`
	TotalVolume  float64 `json:"total_volume_mwh"`
	VolumeShift  float64 `json:"volume_shift_pct"`
	ShiftFlagged bool    `json:"volume_shift"`
}

type MarketSummary struct {
	Regions     []RegionSummary `json:"regions"`
	AvgPrice    float64         `json:"avg_price"`
	Spread      float64         `json:"spread"`
	TotalVolume float64         `json:"total_volume_mwh"`
	Source      string          `json:"source"`
}

// SummarizeMarket aggregates prices per region. Regions are sorted by name.
func SummarizeMarket(prices []*models.MarketPrice) MarketSummary {
	byRegion := make(map[string]*RegionSummary)
	var sum float64
	minAll, maxAll := math.Inf(1), math.Inf(-1)
	for _, p := range prices {
		v := p.PriceFloat()
		rs, ok := byRegion[p.Region]
		if !ok {
			rs = &RegionSummary{Region: p.Region, MinPrice: v, MaxPrice: v}
			byRegion[p.Region] = rs
		}
		rs.Observations++
		rs.AvgPrice += v
		rs.MinPrice = math.Min(rs.MinPrice, v)
		rs.MaxPrice = math.Max(rs.MaxPrice, v)
		rs.TotalVolume += p.Volume
		sum += v
		minAll = math.Min(minAll, v)
		maxAll = math.Max(maxAll, v)
	}

	out := MarketSummary{Regions: make([]RegionSummary, 0, len(byRegion))}
	if len(prices) == 0 {
		return out
	}
	if src := prices[0].Source; src != "" {
		out.Source = src
	}
	for _, rs := range byRegion {
		rs.AvgPrice = round(rs.AvgPrice/float64(rs.Observations), 4)
		rs.Spread = round(rs.MaxPrice-rs.MinPrice, 4)
		out.TotalVolume += rs.TotalVolume
		out.Regions = append(out.Regions, *rs)
	}
	sort.Slice(out.Regions, func(i, j int) bool { return out.Regions[i].Region < out.Regions[j].Region })

	meanVol := out.TotalVolume / float64(len(out.Regions))
	if meanVol > 0 {
		for i := range out.Regions {
			r := &out.Regions[i]
			r.VolumeShift = round((r.TotalVolume-meanVol)/meanVol*100, 1)
			r.ShiftFlagged = math.Abs(r.VolumeShift) >= VolumeShiftPct
		}
	}
	out.AvgPrice = round(sum/float64(len(prices)), 4)
	out.Spread = round(maxAll-minAll, 4)
	return out
}

func round(v float64, places int32) float64 {
	f, _ := decimal.NewFromFloat(v).Round(places).Float64()
	return f
}
