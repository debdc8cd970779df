package feed

import (
	"context"
	"sync/atomic"
	"time"

	"PowerDesk/internal/domain/models"
	drepo "PowerDesk/internal/domain/repository"
	"PowerDesk/pkg/logger"
)

// PriceFetcher returns the current prices; eso.Client satisfies it.
type PriceFetcher interface {
	FetchPrices(ctx context.Context) ([]*models.MarketPrice, error)
}

// PollingStream turns a PriceFetcher into a MarketStream by polling on an
// interval. Fetch errors are logged and the next tick retried.
type PollingStream struct {
	log       *logger.Logger
	fetcher   PriceFetcher
	interval  time.Duration
	connected atomic.Bool
}

func NewPollingStream(log *logger.Logger, fetcher PriceFetcher, interval time.Duration) *PollingStream {
	if interval <= 0 {
		interval = time.Minute
	}
	return &PollingStream{log: log, fetcher: fetcher, interval: interval}
}

func (p *PollingStream) Connect(context.Context) error {
	p.connected.Store(true)
	return nil
}

func (p *PollingStream) Subscribe(context.Context) error { return nil }

func (p *PollingStream) Read(ctx context.Context) (<-chan *models.MarketPrice, <-chan error) {
	prices := make(chan *models.MarketPrice, 256)
	errs := make(chan error, 1)

	go func() {
		defer close(prices)
		defer close(errs)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			p.poll(ctx, prices)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return prices, errs
}

func (p *PollingStream) poll(ctx context.Context, out chan<- *models.MarketPrice) {
	batch, err := p.fetcher.FetchPrices(ctx)
	if err != nil {
		if ctx.Err() == nil {
			p.log.Warn("market poll failed", logger.Error(err))
		}
		return
	}
	for _, price := range batch {
		select {
		case out <- price:
		case <-ctx.Done():
			return
		}
	}
}

func (p *PollingStream) Reconnect(ctx context.Context) error { return p.Connect(ctx) }

func (p *PollingStream) Close() error {
	p.connected.Store(false)
	return nil
}

func (p *PollingStream) IsConnected() bool { return p.connected.Load() }

var _ drepo.MarketStream = (*PollingStream)(nil)
