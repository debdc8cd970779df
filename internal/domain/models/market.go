package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// MarketPrice is one observed price for a region, from a feed or an upload.
type MarketPrice struct {
	Region    string          `json:"region"`
	Timestamp time.Time       `json:"timestamp"`
	Price     decimal.Decimal `json:"price"`  // GBP/kWh unless Unit says otherwise
	Volume    float64         `json:"volume"` // MWh
	Unit      string          `json:"unit,omitempty"`
	Source    string          `json:"source"`
}

// PriceFloat is Price as float64 for statistics and metrics.
func (p *MarketPrice) PriceFloat() float64 {
	f, _ := p.Price.Float64()
	return f
}

// Sources of MarketPrice records.
const (
	SourceESO      = "eso"
	SourceFeed     = "feed"
	SourceUpload   = "upload"
	SourceTradeLog = "trade_log"
	SourceFallback = "fallback"
)

// GenerationPoint pairs forecast and actual output for one date and region.
// Either side may be missing after an outer join.
type GenerationPoint struct {
	Date       string   `json:"date"`
	Region     string   `json:"region"`
	ForecastMW *float64 `json:"forecast_mw,omitempty"`
	ActualMW   *float64 `json:"actual_mw,omitempty"`
}

type Deviation struct {
	GenerationPoint
	DeviationMW   *float64         `json:"deviation_mw,omitempty"`
	DeviationPct  *float64         `json:"deviation_pct,omitempty"`
	Notable       bool             `json:"notable"`
	ImbalanceCost *decimal.Decimal `json:"imbalance_cost,omitempty"`
}

type TradeSide string

const (
	SideBuy  TradeSide = "buy"
	SideSell TradeSide = "sell"
)

// Trade is one row of an uploaded trade log.
type Trade struct {
	Time         time.Time       `json:"time"`
	Region       string          `json:"region"`
	Side         TradeSide       `json:"side"`
	Price        decimal.Decimal `json:"price"`
	QuantityMWh  float64         `json:"quantity_mwh"`
	Counterparty string          `json:"counterparty,omitempty"`
}

// SideStats summarises one side of one region's trades.
type SideStats struct {
	Region      string          `json:"region"`
	Side        TradeSide       `json:"side"`
	Count       int             `json:"count"`
	MinPrice    decimal.Decimal `json:"min_price"`
	MaxPrice    decimal.Decimal `json:"max_price"`
	AvgPrice    decimal.Decimal `json:"avg_price"`
	TotalVolume float64         `json:"total_volume_mwh"`
}

// MissedOpportunity is a buy above the region's average sell price or a
// sell below its average buy price.
type MissedOpportunity struct {
	Trade     Trade           `json:"trade"`
	Reference decimal.Decimal `json:"reference_price"`
	Gap       decimal.Decimal `json:"gap"`
	Reason    string          `json:"reason"`
}

type TradeStats struct {
	Trades  int                 `json:"trades"`
	Skipped int                 `json:"skipped"`
	BySide  []SideStats         `json:"by_side"`
	Missed  []MissedOpportunity `json:"missed_opportunities"`
}

type PriceForecastPoint struct {
	Date  string          `json:"date"`
	Price decimal.Decimal `json:"predicted_price"`
}

type WarningLevel string

const (
	WarningHigh   WarningLevel = "High"
	WarningMedium WarningLevel = "Medium"
	WarningLow    WarningLevel = "Low"
)

type RiskSignal struct {
	Region   string       `json:"region"`
	Level    WarningLevel `json:"warning_level"`
	Signal   string       `json:"signal"`
	Severity float64      `json:"severity"`
}
