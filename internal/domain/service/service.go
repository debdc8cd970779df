package service

import (
	"context"
	"time"

	"PowerDesk/internal/domain/models"
	"PowerDesk/pkg/tabular"
)

// MarketSource returns live market rows, falling back to a simulated table
// when the upstream is unavailable. live is false for the fallback.
type MarketSource interface {
	FetchTable(ctx context.Context) (table *tabular.Table, live bool, err error)
}

// PriceForecaster forecasts daily prices from a history of daily prices.
type PriceForecaster interface {
	Forecast(ctx context.Context, history []float64, start time.Time, days int) ([]models.PriceForecastPoint, error)
}

// ContractExtractor pulls PPA terms from contract text.
type ContractExtractor interface {
	Extract(ctx context.Context, text string) (models.ContractTerms, error)
}
