package analysis

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"PowerDesk/internal/domain/models"
	"PowerDesk/pkg/tabular"
	"PowerDesk/pkg/util"

	"github.com/shopspring/decimal"
)

// ParseTrades reads trade log rows. Rows without a region, side or price
// are counted in skipped.
func ParseTrades(t *tabular.Table) ([]models.Trade, int, error) {
	region := findColumn(t, []string{"region", "zone", "area"}, "region", "zone")
	side := findColumn(t, []string{"side", "type", "direction", "action", "buy_sell", "trade_type"}, "side", "buy")
	price := findColumn(t, []string{"price", "rate"}, "price")
	qty := findColumn(t, []string{"quantity", "volume", "qty", "mwh", "quantity_mwh"}, "quantity", "volume", "qty")
	when := findColumn(t, []string{"timestamp", "datetime", "date", "time", "trade_time"}, "date", "time")
	cpty := findColumn(t, []string{"counterparty", "party", "client"}, "counterparty")
	if region < 0 || side < 0 || price < 0 {
		return nil, t.Len(), fmt.Errorf("%w: trade log needs region, side and price", ErrMissingColumns)
	}

	trades := make([]models.Trade, 0, t.Len())
	skipped := 0
	for _, row := range t.Rows {
		s, ok := parseSide(cell(row, side))
		p, okp := number(row, price)
		r := cell(row, region)
		if !ok || !okp || r == "" {
			skipped++
			continue
		}
		q, _ := number(row, qty)
		ts, _ := util.ParseTime(cell(row, when))
		trades = append(trades, models.Trade{
			Time:         ts,
			Region:       r,
			Side:         s,
			Price:        decimal.NewFromFloat(p),
			QuantityMWh:  q,
			Counterparty: cell(row, cpty),
		})
	}
	return trades, skipped, nil
}

func parseSide(s string) (models.TradeSide, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy", "b", "bid", "purchase", "long":
		return models.SideBuy, true
	case "sell", "s", "offer", "ask", "sale", "short":
		return models.SideSell, true
	}
	return "", false
}

// TradeStatistics summarises trades per region and side and flags missed
// opportunities: buys above the region's average sell price and sells below
// its average buy price.
func TradeStatistics(trades []models.Trade) models.TradeStats {
	type key struct {
		region string
		side   models.TradeSide
	}
	groups := make(map[key]*models.SideStats)
	sums := make(map[key]decimal.Decimal)
	for _, tr := range trades {
		k := key{tr.Region, tr.Side}
		g, ok := groups[k]
		if !ok {
			g = &models.SideStats{Region: tr.Region, Side: tr.Side, MinPrice: tr.Price, MaxPrice: tr.Price}
			groups[k] = g
		}
		g.Count++
		g.MinPrice = decimal.Min(g.MinPrice, tr.Price)
		g.MaxPrice = decimal.Max(g.MaxPrice, tr.Price)
		g.TotalVolume += tr.QuantityMWh
		sums[k] = sums[k].Add(tr.Price)
	}

	stats := models.TradeStats{Trades: len(trades), BySide: make([]models.SideStats, 0, len(groups))}
	avg := make(map[key]decimal.Decimal, len(groups))
	for k, g := range groups {
		g.AvgPrice = sums[k].Div(decimal.NewFromInt(int64(g.Count))).Round(4)
		avg[k] = g.AvgPrice
		stats.BySide = append(stats.BySide, *g)
	}
	sort.Slice(stats.BySide, func(i, j int) bool {
		if stats.BySide[i].Region != stats.BySide[j].Region {
			return stats.BySide[i].Region < stats.BySide[j].Region
		}
		return stats.BySide[i].Side < stats.BySide[j].Side
	})

	for _, tr := range trades {
		switch tr.Side {
		case models.SideBuy:
			ref, ok := avg[key{tr.Region, models.SideSell}]
			if ok && tr.Price.GreaterThan(ref) {
				stats.Missed = append(stats.Missed, models.MissedOpportunity{
					Trade: tr, Reference: ref, Gap: tr.Price.Sub(ref),
					Reason: "bought above the average sell price in " + tr.Region,
				})
			}
		case models.SideSell:
			ref, ok := avg[key{tr.Region, models.SideBuy}]
			if ok && tr.Price.LessThan(ref) {
				stats.Missed = append(stats.Missed, models.MissedOpportunity{
					Trade: tr, Reference: ref, Gap: ref.Sub(tr.Price),
					Reason: "sold below the average buy price in " + tr.Region,
				})
			}
		}
	}
	sort.SliceStable(stats.Missed, func(i, j int) bool { return stats.Missed[i].Gap.GreaterThan(stats.Missed[j].Gap) })
	return stats
}

// TradePrices converts trades into price records for the tick pipeline.
func TradePrices(trades []models.Trade, now time.Time) []*models.MarketPrice {
	out := make([]*models.MarketPrice, 0, len(trades))
	for _, tr := range trades {
		ts := tr.Time
		if ts.IsZero() {
			ts = now
		}
		out = append(out, &models.MarketPrice{
			Region:    tr.Region,
			Timestamp: ts,
			Price:     tr.Price,
			Volume:    tr.QuantityMWh,
			Source:    models.SourceTradeLog,
		})
	}
	return out
}
