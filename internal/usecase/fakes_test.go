package usecase

import (
	"context"
	"sync"

	"PowerDesk/internal/domain/models"
	"PowerDesk/pkg/llm"
	"PowerDesk/pkg/tabular"

	"github.com/shopspring/decimal"
)

type nopMetrics struct {
	mu       sync.Mutex
	analyses map[string][]bool
	errors   []string
	tokens   int64
}

func newNopMetrics() *nopMetrics { return &nopMetrics{analyses: map[string][]bool{}} }

func (m *nopMetrics) RecordMessageSent(string, string) {}
func (m *nopMetrics) RecordError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, kind)
}
func (m *nopMetrics) RecordLastPrice(string, float64) {}
func (m *nopMetrics) RecordLatency(string, float64)   {}
func (m *nopMetrics) RecordAnalysis(kind string, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.analyses[kind] = append(m.analyses[kind], ok)
}
func (m *nopMetrics) RecordTokens(_, _ string, prompt, completion int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens += prompt + completion
}

// recordingCompleter answers every prompt and keeps the requests it saw.
type recordingCompleter struct {
	mu   sync.Mutex
	reqs []llm.Request
	err  error
}

func (c *recordingCompleter) Complete(_ context.Context, req llm.Request) (llm.Completion, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reqs = append(c.reqs, req)
	if c.err != nil {
		return llm.Completion{}, c.err
	}
	return llm.Completion{Text: "advice", Provider: "fake", Model: "m", PromptTokens: 10, CompletionTokens: 5}, nil
}

func (c *recordingCompleter) last() llm.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reqs[len(c.reqs)-1]
}

type staticMarket struct {
	table *tabular.Table
	live  bool
	err   error
}

func (s staticMarket) FetchTable(context.Context) (*tabular.Table, bool, error) {
	return s.table, s.live, s.err
}

type capturePublisher struct {
	mu      sync.Mutex
	reports []*models.Analysis
}

func (p *capturePublisher) PublishReport(_ context.Context, a *models.Analysis) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reports = append(p.reports, a)
	return nil
}

type captureSink struct {
	mu     sync.Mutex
	prices []*models.MarketPrice
	err    error
}

func (s *captureSink) ProcessBatch(_ context.Context, prices []*models.MarketPrice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.prices = append(s.prices, prices...)
	return nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }
