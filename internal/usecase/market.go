package usecase

import (
	"context"
	"fmt"
	"time"

	"PowerDesk/internal/domain/models"
	domrepo "PowerDesk/internal/domain/repository"
	domsvc "PowerDesk/internal/domain/service"
	"PowerDesk/pkg/tabular"
)

// MarketUseCase serves live rows and stored price history.
type MarketUseCase struct {
	source  domsvc.MarketSource
	storage domrepo.Storage
	history domrepo.PriceHistory
}

func NewMarketUseCase(source domsvc.MarketSource, storage domrepo.Storage, history domrepo.PriceHistory) *MarketUseCase {
	return &MarketUseCase{source: source, storage: storage, history: history}
}

type LiveMarket struct {
	Live  bool           `json:"live"`
	Table *tabular.Table `json:"table"`
}

func (uc *MarketUseCase) Live(ctx context.Context) (*LiveMarket, error) {
	t, live, err := uc.source.FetchTable(ctx)
	if err != nil {
		return nil, err
	}
	return &LiveMarket{Live: live, Table: t}, nil
}

type GetPricesParams struct {
	Region     string
	From       time.Time
	To         time.Time
	Resolution domrepo.Resolution
	Limit      int
}

type GetPricesResult struct {
	Region     string                `json:"region"`
	Resolution string                `json:"resolution"`
	From       time.Time             `json:"from"`
	To         time.Time             `json:"to"`
	Count      int                   `json:"count"`
	Ticks      []*models.MarketPrice `json:"ticks,omitempty"`
	Buckets    []domrepo.PricePoint  `json:"buckets,omitempty"`
}

func (uc *MarketUseCase) GetPrices(ctx context.Context, p GetPricesParams) (*GetPricesResult, error) {
	if p.Region == "" {
		return nil, fmt.Errorf("%w: region required", ErrInvalidQuery)
	}
	if p.From.After(p.To) {
		return nil, fmt.Errorf("%w: from must be <= to", ErrInvalidQuery)
	}
	if p.Limit <= 0 {
		p.Limit = 500
	}
	if p.Limit > 10000 {
		p.Limit = 10000
	}
	if p.Resolution == "" {
		p.Resolution = domrepo.ResRaw
	}

	res := &GetPricesResult{Region: p.Region, Resolution: string(p.Resolution), From: p.From, To: p.To}
	if p.Resolution == domrepo.ResRaw {
		if uc.storage == nil {
			return nil, fmt.Errorf("price storage not configured")
		}
		ticks, err := uc.storage.Query(ctx, p.Region, p.From, p.To, p.Limit)
		if err != nil {
			return nil, fmt.Errorf("query prices: %w", err)
		}
		res.Ticks, res.Count = ticks, len(ticks)
		return res, nil
	}

	if uc.history == nil {
		return nil, fmt.Errorf("price history not configured")
	}
	pts, err := uc.history.GetPrices(ctx, p.Region, p.From, p.To, p.Resolution)
	if err != nil {
		return nil, fmt.Errorf("get prices: %w", err)
	}
	if len(pts) > p.Limit {
		pts = pts[:p.Limit]
	}
	res.Buckets, res.Count = pts, len(pts)
	return res, nil
}
