package middleware

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"PowerDesk/internal/domain/models"
	domrepo "PowerDesk/internal/domain/repository"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidPrice = errors.New("invalid market price")
	ErrStopped      = errors.New("pipeline stopped")
)

// Proc is the minimal processor interface the pipeline needs.
type Proc interface {
	Process(ctx context.Context, p *models.MarketPrice) error
}

// RealtimePipeline sits between a market stream and the record processor.
// It validates, throttles per region, optionally transforms, and buffers
// ticks while the downstream is failing.
type RealtimePipeline struct {
	proc     Proc
	metrics  domrepo.Metrics
	maxRPS   int
	bufSize  int
	bufCh    chan *models.MarketPrice
	stopCh   chan struct{}
	done     chan struct{}
	started  bool
	mu       sync.Mutex
	lastSeen map[string]time.Time // per-region last accepted time
	now      func() time.Time

	transform func(*models.MarketPrice) *models.MarketPrice
}

type PipelineOption func(*RealtimePipeline)

// WithMaxRPS sets the max ticks per second per region.
func WithMaxRPS(n int) PipelineOption {
	return func(p *RealtimePipeline) {
		if n > 0 {
			p.maxRPS = n
		}
	}
}

// WithBufferSize sets the buffer used while downstream is unavailable.
func WithBufferSize(n int) PipelineOption {
	return func(p *RealtimePipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// WithTransform sets a hook applied to every valid tick.
func WithTransform(fn func(*models.MarketPrice) *models.MarketPrice) PipelineOption {
	return func(p *RealtimePipeline) { p.transform = fn }
}

func withClock(now func() time.Time) PipelineOption {
	return func(p *RealtimePipeline) { p.now = now }
}

func NewRealtimePipeline(proc Proc, metrics domrepo.Metrics, opts ...PipelineOption) *RealtimePipeline {
	p := &RealtimePipeline{
		proc:     proc,
		metrics:  metrics,
		maxRPS:   20,
		bufSize:  1000,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
		lastSeen: make(map[string]time.Time),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan *models.MarketPrice, p.bufSize)
	return p
}

// Start launches background flushing of buffered ticks.
func (p *RealtimePipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go func() {
		defer close(p.done)
		backoff := 50 * time.Millisecond
		for {
			select {
			case <-p.stopCh:
				return
			case <-ctx.Done():
				return
			case t := <-p.bufCh:
				if err := p.proc.Process(ctx, t); err != nil {
					if backoff < 2*time.Second {
						backoff *= 2
					}
					p.metrics.RecordError("pipeline_flush")
					select {
					case <-time.After(backoff):
					case <-p.stopCh:
						return
					case <-ctx.Done():
						return
					}
					select {
					case p.bufCh <- t:
					default:
						p.metrics.RecordError("pipeline_buffer_drop")
					}
					continue
				}
				backoff = 50 * time.Millisecond
			}
		}
	}()
}

// Stop ends the flusher and waits for it. Ticks still buffered are dropped.
func (p *RealtimePipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()
	close(p.stopCh)
	<-p.done
}

// Buffered is the number of ticks waiting for the downstream.
func (p *RealtimePipeline) Buffered() int { return len(p.bufCh) }

// Process validates, throttles and forwards a tick, buffering it when the
// downstream fails. Throttled ticks are dropped without error.
func (p *RealtimePipeline) Process(ctx context.Context, t *models.MarketPrice) error {
	start := p.now()
	if err := ValidatePrice(t); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	if p.transform != nil {
		t = p.transform(t)
		if err := ValidatePrice(t); err != nil {
			p.metrics.RecordError("pipeline_transform_invalid")
			return err
		}
	}
	if !p.allow(t.Region, start) {
		p.metrics.RecordError("pipeline_throttle")
		return nil
	}

	if err := p.proc.Process(ctx, t); err != nil {
		p.metrics.RecordError("pipeline_process")
		select {
		case p.bufCh <- t:
			p.metrics.RecordLatency("pipeline_buffer_depth", float64(len(p.bufCh)))
		default:
			p.metrics.RecordError("pipeline_buffer_full")
		}
		return fmt.Errorf("pipeline downstream: %w", err)
	}
	p.metrics.RecordLatency("pipeline_process", p.now().Sub(start).Seconds())
	return nil
}

// ValidatePrice rejects ticks without a region or timestamp and negative
// volumes. Negative prices are legal in power markets.
func ValidatePrice(t *models.MarketPrice) error {
	switch {
	case t == nil:
		return fmt.Errorf("%w: nil", ErrInvalidPrice)
	case strings.TrimSpace(t.Region) == "":
		return fmt.Errorf("%w: region empty", ErrInvalidPrice)
	case t.Timestamp.IsZero():
		return fmt.Errorf("%w: timestamp missing", ErrInvalidPrice)
	case t.Volume < 0:
		return fmt.Errorf("%w: negative volume", ErrInvalidPrice)
	}
	return nil
}

var thousand = decimal.NewFromInt(1000)

// NormalizePrice trims the region and converts per-MWh prices to per-kWh.
func NormalizePrice(t *models.MarketPrice) *models.MarketPrice {
	out := *t
	out.Region = strings.TrimSpace(out.Region)
	if strings.HasSuffix(strings.ToLower(out.Unit), "/mwh") {
		out.Price = out.Price.Div(thousand)
		out.Unit = out.Unit[:len(out.Unit)-4] + "/kWh"
	}
	return &out
}

func (p *RealtimePipeline) allow(region string, now time.Time) bool {
	if p.maxRPS <= 0 {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	last, ok := p.lastSeen[region]
	if ok && now.Sub(last) < time.Second/time.Duration(p.maxRPS) {
		return false
	}
	p.lastSeen[region] = now
	return true
}
