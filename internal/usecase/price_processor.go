package usecase

import (
	"context"
	"fmt"
	"time"

	"PowerDesk/internal/domain/models"
	drepo "PowerDesk/internal/domain/repository"
)

const (
	BackendKafka      = "kafka"
	BackendClickHouse = "clickhouse"
)

// PriceProcessor routes market prices to the configured backend.
type PriceProcessor struct {
	pub     drepo.Publisher
	store   drepo.Storage
	metrics drepo.Metrics
	backend string
	batchSz int
}

func NewPriceProcessor(
	pub drepo.Publisher,
	store drepo.Storage,
	metrics drepo.Metrics,
	backend string,
	batchSz int,
) *PriceProcessor {
	if batchSz <= 0 {
		batchSz = 100
	}
	return &PriceProcessor{
		pub:     pub,
		store:   store,
		metrics: metrics,
		backend: backend,
		batchSz: batchSz,
	}
}

// Process sends a single price to the configured backend.
func (p *PriceProcessor) Process(ctx context.Context, price *models.MarketPrice) error {
	if price == nil {
		return fmt.Errorf("price is nil")
	}

	start := time.Now()
	var err error

	switch p.backend {
	case BackendKafka:
		err = p.pub.Publish(ctx, price)
	case BackendClickHouse:
		err = p.store.Store(ctx, price)
	default:
		err = fmt.Errorf("unknown backend: %s", p.backend)
	}

	if err != nil {
		p.metrics.RecordError("process")
		return fmt.Errorf("process price: %w", err)
	}

	p.metrics.RecordMessageSent(p.backend, price.Region)
	p.metrics.RecordLatency("process", time.Since(start).Seconds())

	return nil
}

// ProcessBatch sends prices in chunks of the configured batch size.
func (p *PriceProcessor) ProcessBatch(ctx context.Context, prices []*models.MarketPrice) error {
	for i := 0; i < len(prices); i += p.batchSz {
		end := i + p.batchSz
		if end > len(prices) {
			end = len(prices)
		}
		if err := p.processChunk(ctx, prices[i:end]); err != nil {
			return err
		}
	}
	return nil
}

func (p *PriceProcessor) processChunk(ctx context.Context, prices []*models.MarketPrice) error {
	start := time.Now()
	var err error

	switch p.backend {
	case BackendKafka:
		err = p.pub.PublishBatch(ctx, prices)
	case BackendClickHouse:
		err = p.store.StoreBatch(ctx, prices)
	default:
		err = fmt.Errorf("unknown backend: %s", p.backend)
	}

	if err != nil {
		p.metrics.RecordError("process_batch")
		return fmt.Errorf("process batch: %w", err)
	}

	for _, t := range prices {
		p.metrics.RecordMessageSent(p.backend, t.Region)
	}
	p.metrics.RecordLatency("process_batch", time.Since(start).Seconds())

	return nil
}

// Close closes underlying resources if available.
func (p *PriceProcessor) Close() {
	if p.pub != nil {
		_ = p.pub.Close()
	}
	if p.store != nil {
		_ = p.store.Close()
	}
}
