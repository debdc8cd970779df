package middleware

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"PowerDesk/internal/domain/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingProc struct {
	mu    sync.Mutex
	fail  int
	seen  []*models.MarketPrice
	calls int
}

func (r *recordingProc) Process(_ context.Context, p *models.MarketPrice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.calls <= r.fail {
		return errors.New("backend down")
	}
	r.seen = append(r.seen, p)
	return nil
}

func (r *recordingProc) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seen)
}

type nopMetrics struct {
	mu     sync.Mutex
	errors map[string]int
}

func (m *nopMetrics) RecordMessageSent(string, string) {}
func (m *nopMetrics) RecordLastPrice(string, float64)  {}
func (m *nopMetrics) RecordLatency(string, float64)    {}
func (m *nopMetrics) RecordError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.errors == nil {
		m.errors = map[string]int{}
	}
	m.errors[kind]++
}

func tick(region string, ts time.Time) *models.MarketPrice {
	return &models.MarketPrice{Region: region, Timestamp: ts, Price: decimal.NewFromFloat(0.12), Volume: 10}
}

func TestPipelineThrottlesPerRegion(t *testing.T) {
	now := time.Unix(1000, 0)
	proc := &recordingProc{}
	m := &nopMetrics{}
	p := NewRealtimePipeline(proc, m, WithMaxRPS(2), withClock(func() time.Time { return now }))
	ctx := context.Background()

	require.NoError(t, p.Process(ctx, tick("North", now)))
	require.NoError(t, p.Process(ctx, tick("North", now)), "throttled ticks are dropped quietly")
	require.NoError(t, p.Process(ctx, tick("South", now)))

	now = now.Add(600 * time.Millisecond)
	require.NoError(t, p.Process(ctx, tick("North", now)))

	assert.Equal(t, 3, proc.count())
	assert.Equal(t, 1, m.errors["pipeline_throttle"])
}

func TestPipelineValidates(t *testing.T) {
	p := NewRealtimePipeline(&recordingProc{}, &nopMetrics{})
	ctx := context.Background()
	ts := time.Now()

	negative := tick("North", ts)
	negative.Price = decimal.NewFromFloat(-0.02)
	assert.NoError(t, p.Process(ctx, negative), "negative prices are allowed")

	for name, bad := range map[string]*models.MarketPrice{
		"nil":        nil,
		"no region":  tick(" ", ts),
		"no time":    tick("North", time.Time{}),
		"neg volume": {Region: "North", Timestamp: ts, Volume: -1},
	} {
		assert.True(t, errors.Is(p.Process(ctx, bad), ErrInvalidPrice), name)
	}
}

func TestPipelineBuffersAndFlushes(t *testing.T) {
	proc := &recordingProc{fail: 1}
	p := NewRealtimePipeline(proc, &nopMetrics{}, WithMaxRPS(0), WithBufferSize(4))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := p.Process(ctx, tick("North", time.Now()))
	require.Error(t, err)
	assert.Equal(t, 1, p.Buffered())

	p.Start(ctx)
	defer p.Stop()
	assert.Eventually(t, func() bool { return proc.count() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestNormalizePrice(t *testing.T) {
	in := &models.MarketPrice{Region: " North ", Price: decimal.NewFromInt(120), Unit: "GBP/MWh"}
	out := NormalizePrice(in)
	assert.Equal(t, "North", out.Region)
	assert.Equal(t, "0.12", out.Price.String())
	assert.Equal(t, "GBP/kWh", out.Unit)
	assert.Equal(t, " North ", in.Region, "input is not modified")
}
