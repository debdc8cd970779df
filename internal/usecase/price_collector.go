package usecase

import (
	"context"

	"PowerDesk/internal/domain/models"
	drepo "PowerDesk/internal/domain/repository"
	mid "PowerDesk/internal/middleware"
	"PowerDesk/pkg/logger"
)

// PriceCollector reads a market stream and feeds the pipeline.
type PriceCollector struct {
	stream  drepo.MarketStream
	proc    *PriceProcessor
	metrics drepo.Metrics
	pipe    *mid.RealtimePipeline
	log     *logger.Logger
}

func NewPriceCollector(stream drepo.MarketStream, proc *PriceProcessor, metrics drepo.Metrics, pipe *mid.RealtimePipeline, log *logger.Logger) *PriceCollector {
	return &PriceCollector{stream: stream, proc: proc, metrics: metrics, pipe: pipe, log: log}
}

func (c *PriceCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

func (c *PriceCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		return err
	}
	if c.pipe != nil {
		c.pipe.Start(ctx)
	}
	prCh, errCh := c.stream.Read(ctx)
	go c.consume(ctx, prCh, errCh)
	return nil
}

func (c *PriceCollector) consume(ctx context.Context, prCh <-chan *models.MarketPrice, errCh <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err == nil {
				continue
			}
			c.metrics.RecordError("stream")
			c.log.Warn("market stream error, reconnecting", logger.Error(err))
			if rerr := c.stream.Reconnect(ctx); rerr != nil {
				c.log.Error("market stream reconnect failed", logger.Error(rerr))
				continue
			}
			if serr := c.stream.Subscribe(ctx); serr != nil {
				c.log.Error("market stream resubscribe failed", logger.Error(serr))
				continue
			}
			prCh, errCh = c.stream.Read(ctx)
		case p, ok := <-prCh:
			if !ok {
				prCh = nil
				if errCh == nil {
					return
				}
				continue
			}
			if p == nil {
				continue
			}
			var err error
			if c.pipe != nil {
				err = c.pipe.Process(ctx, p)
			} else {
				err = c.proc.Process(ctx, p)
			}
			if err != nil {
				c.log.Debug("price dropped", logger.String("region", p.Region), logger.Error(err))
				continue
			}
			c.metrics.RecordLastPrice(p.Region, p.PriceFloat())
		}
	}
}

// Processor returns the underlying PriceProcessor for lifecycle management.
func (c *PriceCollector) Processor() *PriceProcessor { return c.proc }

// Shutdown stops the pipeline and closes the stream.
func (c *PriceCollector) Shutdown(ctx context.Context) error {
	if c.pipe != nil {
		c.pipe.Stop()
	}
	return c.stream.Close()
}
