package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"PowerDesk/internal/domain/models"
	domrepo "PowerDesk/internal/domain/repository"
	domsvc "PowerDesk/internal/domain/service"
	"PowerDesk/internal/services/analysis"
	"PowerDesk/pkg/llm"
	"PowerDesk/pkg/logger"
	"PowerDesk/pkg/tabular"
	"PowerDesk/pkg/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	historyDays     = 60
	riskHistoryBars = 48
)

type AssistantConfig struct {
	Analysis     analysis.Config
	Timeout      time.Duration
	ForecastDays int
}

// AssistantUseCase runs the per-kind analyses of a session.
type AssistantUseCase struct {
	datasets   domrepo.DatasetStore
	market     domsvc.MarketSource
	history    domrepo.PriceHistory
	forecaster domsvc.PriceForecaster
	extractor  domsvc.ContractExtractor
	completer  llm.Completer
	publisher  domrepo.ReportPublisher
	reports    domrepo.ReportStore
	metrics    domrepo.AnalysisMetrics
	log        *logger.Logger
	cfg        AssistantConfig
	now        func() time.Time
}

// AssistantDeps groups collaborators. History, Publisher and Reports may be
// nil; reports go to Publisher when set and straight to Reports otherwise.
type AssistantDeps struct {
	Datasets   domrepo.DatasetStore
	Market     domsvc.MarketSource
	History    domrepo.PriceHistory
	Forecaster domsvc.PriceForecaster
	Extractor  domsvc.ContractExtractor
	Completer  llm.Completer
	Publisher  domrepo.ReportPublisher
	Reports    domrepo.ReportStore
	Metrics    domrepo.AnalysisMetrics
	Log        *logger.Logger
}

func NewAssistantUseCase(d AssistantDeps, cfg AssistantConfig) *AssistantUseCase {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.ForecastDays <= 0 {
		cfg.ForecastDays = analysis.DefaultConfig().ForecastDays
	}
	if d.Extractor == nil {
		d.Extractor = analysis.RuleExtractor{}
	}
	return &AssistantUseCase{
		datasets:   d.Datasets,
		market:     d.Market,
		history:    d.History,
		forecaster: d.Forecaster,
		extractor:  d.Extractor,
		completer:  d.Completer,
		publisher:  d.Publisher,
		reports:    d.Reports,
		metrics:    d.Metrics,
		log:        d.Log,
		cfg:        cfg,
		now:        time.Now,
	}
}

// prepared is what an analysis sends to the model and reports beside it.
type prepared struct {
	req     llm.Request
	figures interface{}
	sources []string
}

// Analyze runs one analysis for a session.
func (uc *AssistantUseCase) Analyze(ctx context.Context, session string, kind models.AnalysisKind) (*models.Analysis, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: analysis %q", ErrInvalidKind, kind)
	}
	ctx, cancel := context.WithTimeout(ctx, uc.cfg.Timeout)
	defer cancel()

	start := time.Now()
	a, err := uc.analyze(ctx, session, kind)
	uc.metrics.RecordLatency("analysis_"+string(kind), time.Since(start).Seconds())
	uc.metrics.RecordAnalysis(string(kind), err == nil)
	if err != nil {
		if !errors.Is(err, ErrMissingInput) {
			uc.log.Error("analysis failed",
				logger.String("session", session),
				logger.String("kind", string(kind)),
				logger.Error(err))
		}
		return nil, err
	}
	return a, nil
}

func (uc *AssistantUseCase) analyze(ctx context.Context, session string, kind models.AnalysisKind) (*models.Analysis, error) {
	p, err := uc.prepare(ctx, session, kind)
	if err != nil {
		return nil, err
	}

	out, err := uc.completer.Complete(ctx, p.req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	if !out.Cached {
		uc.metrics.RecordTokens(out.Provider, out.Model, out.PromptTokens, out.CompletionTokens)
	}

	a := &models.Analysis{
		ID:        uuid.NewString(),
		Kind:      kind,
		SessionID: session,
		Prompt:    p.req.Prompt,
		Summary:   out.Text,
		Provider:  out.Provider,
		Model:     out.Model,
		Figures:   p.figures,
		Sources:   p.sources,
		Cached:    out.Cached,
		CreatedAt: uc.now().UTC(),
	}
	uc.persist(ctx, a)
	return a, nil
}

// persist is best effort: a report that cannot be shipped is still returned.
func (uc *AssistantUseCase) persist(ctx context.Context, a *models.Analysis) {
	var err error
	switch {
	case uc.publisher != nil:
		err = uc.publisher.PublishReport(ctx, a)
	case uc.reports != nil:
		err = uc.reports.Save(ctx, a)
	default:
		return
	}
	if err != nil {
		uc.metrics.RecordError("report_persist")
		uc.log.Warn("persist analysis",
			logger.String("id", a.ID),
			logger.String("kind", string(a.Kind)),
			logger.Error(err))
	}
}

// Prompt builds the request an analysis would send, without calling the model.
func (uc *AssistantUseCase) Prompt(ctx context.Context, session string, kind models.AnalysisKind) (llm.Request, error) {
	if !kind.Valid() {
		return llm.Request{}, fmt.Errorf("%w: analysis %q", ErrInvalidKind, kind)
	}
	p, err := uc.prepare(ctx, session, kind)
	if err != nil {
		return llm.Request{}, err
	}
	return p.req, nil
}

func (uc *AssistantUseCase) prepare(ctx context.Context, session string, kind models.AnalysisKind) (*prepared, error) {
	switch kind {
	case models.AnalysisMarket:
		return uc.prepareMarket(ctx, session)
	case models.AnalysisDeviation:
		return uc.prepareDeviation(ctx, session)
	case models.AnalysisRegulation:
		return uc.prepareRegulation(ctx, session)
	case models.AnalysisTrades:
		return uc.prepareTrades(ctx, session)
	case models.AnalysisContract:
		return uc.prepareContract(ctx, session)
	case models.AnalysisForecast:
		return uc.prepareForecast(ctx, session)
	case models.AnalysisRisks:
		return uc.prepareRisks(ctx, session)
	case models.AnalysisStrategy:
		return uc.prepareStrategy(ctx, session)
	}
	return nil, fmt.Errorf("%w: analysis %q", ErrInvalidKind, kind)
}

// load returns the session datasets of the given kinds present, by kind.
func (uc *AssistantUseCase) load(ctx context.Context, session string, kinds ...models.DatasetKind) (map[models.DatasetKind]*models.Dataset, error) {
	out := make(map[models.DatasetKind]*models.Dataset, len(kinds))
	for _, k := range kinds {
		d, err := uc.datasets.Get(ctx, session, k)
		if errors.Is(err, domrepo.ErrDatasetNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load %s dataset: %w", k, err)
		}
		out[k] = d
	}
	return out, nil
}

// marketData is the table a market analysis reads. ref names the dataset id
// or the feed it came from.
type marketData struct {
	table  *tabular.Table
	source string
	ref    string
	live   bool
}

// marketTable returns the uploaded market table, else live rows, else the
// simulated fallback.
func (uc *AssistantUseCase) marketTable(ctx context.Context, session string) (*marketData, error) {
	ds, err := uc.load(ctx, session, models.KindMarket)
	if err != nil {
		return nil, err
	}
	if d := ds[models.KindMarket]; d != nil && d.Table != nil {
		return &marketData{table: d.Table, source: models.SourceUpload, ref: d.ID, live: true}, nil
	}
	if uc.market != nil {
		t, live, err := uc.market.FetchTable(ctx)
		if err != nil {
			return nil, err
		}
		if live {
			return &marketData{table: t, source: models.SourceESO, ref: models.SourceESO, live: true}, nil
		}
		return &marketData{table: t, source: models.SourceFallback, ref: models.SourceFallback}, nil
	}
	return &marketData{table: analysis.FallbackMarketTable(), source: models.SourceFallback, ref: models.SourceFallback}, nil
}

func (uc *AssistantUseCase) prepareMarket(ctx context.Context, session string) (*prepared, error) {
	md, err := uc.marketTable(ctx, session)
	if err != nil {
		return nil, err
	}
	var summary analysis.MarketSummary
	if prices, _, err := analysis.ExtractMarketPrices(md.table, md.source, uc.now()); err == nil {
		summary = analysis.SummarizeMarket(prices)
	}
	summary.Source = md.source
	return &prepared{
		req:     analysis.MarketPrompt(md.table, summary, md.live),
		figures: summary,
		sources: []string{md.ref},
	}, nil
}

// imbalancePrice returns the configured price, else the uploaded market
// average converted to GBP/MWh, else zero for the analyzer default.
func (uc *AssistantUseCase) imbalancePrice(market *models.Dataset) float64 {
	if p := uc.cfg.Analysis.ImbalancePrice; p > 0 {
		return p
	}
	if market == nil || market.Table == nil {
		return 0
	}
	prices, _, err := analysis.ExtractMarketPrices(market.Table, models.SourceUpload, uc.now())
	if err != nil || len(prices) == 0 {
		return 0
	}
	return analysis.SummarizeMarket(prices).AvgPrice * 1000
}

func (uc *AssistantUseCase) prepareDeviation(ctx context.Context, session string) (*prepared, error) {
	ds, err := uc.load(ctx, session, models.KindForecast, models.KindActual, models.KindMarket)
	if err != nil {
		return nil, err
	}
	f, a := ds[models.KindForecast], ds[models.KindActual]
	if f == nil || a == nil {
		return nil, missing(models.AnalysisDeviation, models.KindForecast, models.KindActual)
	}

	cfg := uc.cfg.Analysis
	cfg.ImbalancePrice = uc.imbalancePrice(ds[models.KindMarket])
	rep, err := analysis.ComputeDeviations(f.Table, a.Table, cfg)
	if err != nil {
		return nil, err
	}
	return &prepared{
		req:     analysis.DeviationPrompt(rep),
		figures: rep,
		sources: []string{f.ID, a.ID},
	}, nil
}

func (uc *AssistantUseCase) prepareRegulation(ctx context.Context, session string) (*prepared, error) {
	ds, err := uc.load(ctx, session, models.KindRegulation)
	if err != nil {
		return nil, err
	}
	d := ds[models.KindRegulation]
	if d == nil {
		return nil, missing(models.AnalysisRegulation, models.KindRegulation)
	}
	digest := analysis.DigestRegulation(d.Table)
	return &prepared{
		req:     analysis.RegulationPrompt(digest),
		figures: digest,
		sources: []string{d.ID},
	}, nil
}

func (uc *AssistantUseCase) prepareTrades(ctx context.Context, session string) (*prepared, error) {
	ds, err := uc.load(ctx, session, models.KindTrades)
	if err != nil {
		return nil, err
	}
	d := ds[models.KindTrades]
	if d == nil {
		return nil, missing(models.AnalysisTrades, models.KindTrades)
	}
	// a log without side or price columns is still shown to the model
	var stats models.TradeStats
	if trades, skipped, err := analysis.ParseTrades(d.Table); err == nil {
		stats = analysis.TradeStatistics(trades)
		stats.Skipped = skipped
	}
	return &prepared{
		req:     analysis.TradesPrompt(d.Table, stats),
		figures: stats,
		sources: []string{d.ID},
	}, nil
}

func (uc *AssistantUseCase) prepareContract(ctx context.Context, session string) (*prepared, error) {
	ds, err := uc.load(ctx, session, models.KindContract)
	if err != nil {
		return nil, err
	}
	d := ds[models.KindContract]
	if d == nil {
		return nil, missing(models.AnalysisContract, models.KindContract)
	}
	terms, err := uc.extractor.Extract(ctx, d.Text)
	if err != nil {
		return nil, fmt.Errorf("extract contract terms: %w", err)
	}
	return &prepared{
		req:     analysis.ContractPrompt(d.Text),
		figures: terms,
		sources: []string{d.ID},
	}, nil
}

// priceHistory returns daily prices, oldest first, from stored history or
// the uploaded market dataset. An empty result means no usable history.
func (uc *AssistantUseCase) priceHistory(ctx context.Context, session string) ([]float64, string) {
	if uc.history != nil {
		if h := uc.storedHistory(ctx); len(h) >= 2 {
			return h, "history"
		}
	}
	ds, err := uc.load(ctx, session, models.KindMarket)
	if err != nil {
		return nil, ""
	}
	d := ds[models.KindMarket]
	if d == nil || d.Table == nil {
		return nil, ""
	}
	prices, _, err := analysis.ExtractMarketPrices(d.Table, models.SourceUpload, uc.now())
	if err != nil || len(prices) < 2 {
		return nil, ""
	}
	return dailyMeans(prices), d.ID
}

// storedHistory averages the daily buckets of every recent region.
func (uc *AssistantUseCase) storedHistory(ctx context.Context) []float64 {
	since := uc.now().AddDate(0, 0, -historyDays)
	regions, err := uc.history.Regions(ctx, since)
	if err != nil {
		uc.log.Warn("price history regions", logger.Error(err))
		return nil
	}
	sums := make(map[time.Time]float64)
	counts := make(map[time.Time]int)
	for _, r := range regions {
		pts, err := uc.history.GetLatestN(ctx, r, historyDays, domrepo.ResDay)
		if err != nil {
			uc.log.Warn("price history", logger.String("region", r), logger.Error(err))
			continue
		}
		for _, p := range pts {
			sums[p.Bucket] += p.Price
			counts[p.Bucket]++
		}
	}
	return orderedMeans(sums, counts)
}

// dailyMeans averages prices per UTC day. Rows sharing one timestamp day
// collapse to a single point, so a snapshot table yields one value.
func dailyMeans(prices []*models.MarketPrice) []float64 {
	sums := make(map[time.Time]float64)
	counts := make(map[time.Time]int)
	for _, p := range prices {
		day := util.DayStart(p.Timestamp)
		sums[day] += p.PriceFloat()
		counts[day]++
	}
	return orderedMeans(sums, counts)
}

func orderedMeans(sums map[time.Time]float64, counts map[time.Time]int) []float64 {
	days := make([]time.Time, 0, len(sums))
	for d := range sums {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	out := make([]float64, len(days))
	for i, d := range days {
		out[i] = sums[d] / float64(counts[d])
	}
	return out
}

// ForecastFigures is the payload of a forecast analysis.
type ForecastFigures struct {
	Points  []models.PriceForecastPoint `json:"points"`
	Derived bool                        `json:"derived"`
	History int                         `json:"history_days"`
}

func (uc *AssistantUseCase) forecast(ctx context.Context, session string) (*ForecastFigures, string, error) {
	hist, source := uc.priceHistory(ctx, session)
	start := util.DayStart(uc.now()).AddDate(0, 0, 1)
	pts, err := uc.forecaster.Forecast(ctx, hist, start, uc.cfg.ForecastDays)
	if err != nil {
		return nil, "", err
	}
	return &ForecastFigures{Points: pts, Derived: len(hist) >= 2, History: len(hist)}, source, nil
}

func (uc *AssistantUseCase) prepareForecast(ctx context.Context, session string) (*prepared, error) {
	figs, source, err := uc.forecast(ctx, session)
	if err != nil {
		return nil, err
	}
	p := &prepared{
		req:     analysis.ForecastPrompt(analysis.ForecastTable(figs.Points)),
		figures: figs,
	}
	if source != "" {
		p.sources = []string{source}
	}
	return p, nil
}

// RiskFigures is the payload of a risks analysis.
type RiskFigures struct {
	Signals []models.RiskSignal `json:"signals"`
	Live    bool                `json:"live"`
	Source  string              `json:"source"`
}

// risks prefers live ESO prices, then an uploaded market dataset, then
// stored history. The simulated risk table is the last resort.
func (uc *AssistantUseCase) risks(ctx context.Context, session string) (*RiskFigures, error) {
	cfg := uc.cfg.Analysis
	if uc.market != nil {
		t, live, err := uc.market.FetchTable(ctx)
		if err != nil {
			uc.log.Warn("market feed unavailable for risk signals", logger.Error(err))
		} else if live {
			if prices, _, err := analysis.ExtractMarketPrices(t, models.SourceESO, uc.now()); err == nil && len(prices) > 0 {
				return &RiskFigures{Signals: analysis.DetectRisks(prices, cfg), Live: true, Source: models.SourceESO}, nil
			}
		}
	}
	ds, err := uc.load(ctx, session, models.KindMarket)
	if err != nil {
		return nil, err
	}
	if d := ds[models.KindMarket]; d != nil && d.Table != nil {
		if prices, _, err := analysis.ExtractMarketPrices(d.Table, models.SourceUpload, uc.now()); err == nil && len(prices) > 0 {
			return &RiskFigures{Signals: analysis.DetectRisks(prices, cfg), Live: true, Source: d.ID}, nil
		}
	}
	if uc.history != nil {
		if prices := uc.recentPrices(ctx); len(prices) > 0 {
			return &RiskFigures{Signals: analysis.DetectRisks(prices, cfg), Live: true, Source: "history"}, nil
		}
	}
	return &RiskFigures{Signals: analysis.FallbackRiskSignals(), Source: models.SourceFallback}, nil
}

// recentPrices reads the last settlement periods of every recent region.
func (uc *AssistantUseCase) recentPrices(ctx context.Context) []*models.MarketPrice {
	since := uc.now().Add(-24 * time.Hour)
	regions, err := uc.history.Regions(ctx, since)
	if err != nil {
		return nil
	}
	var out []*models.MarketPrice
	for _, r := range regions {
		pts, err := uc.history.GetLatestN(ctx, r, riskHistoryBars, domrepo.ResSettlement)
		if err != nil {
			continue
		}
		for _, p := range pts {
			out = append(out, &models.MarketPrice{Region: r, Timestamp: p.Bucket, Price: decimal.NewFromFloat(p.Price), Volume: p.Volume})
		}
	}
	return out
}

func (uc *AssistantUseCase) prepareRisks(ctx context.Context, session string) (*prepared, error) {
	figs, err := uc.risks(ctx, session)
	if err != nil {
		return nil, err
	}
	return &prepared{
		req:     analysis.RisksPrompt(analysis.RiskTable(figs.Signals), figs.Live),
		figures: figs,
		sources: []string{figs.Source},
	}, nil
}

// StrategyFigures lists the sections the strategy prompt was built from.
type StrategyFigures struct {
	Sections []string `json:"sections"`
}

// prepareStrategy needs a forecast plus either market data or the actual,
// trades and contract datasets together.
func (uc *AssistantUseCase) prepareStrategy(ctx context.Context, session string) (*prepared, error) {
	ds, err := uc.load(ctx, session, models.KindForecast, models.KindActual, models.KindTrades, models.KindMarket, models.KindContract)
	if err != nil {
		return nil, err
	}
	f := ds[models.KindForecast]
	m := ds[models.KindMarket]
	a, tr, c := ds[models.KindActual], ds[models.KindTrades], ds[models.KindContract]
	full := a != nil && tr != nil && c != nil
	if f == nil || (m == nil && !full) {
		var req []models.DatasetKind
		if f == nil {
			req = append(req, models.KindForecast)
		}
		if m == nil && !full {
			req = append(req, models.KindMarket)
		}
		return nil, missing(models.AnalysisStrategy, req...)
	}

	in := analysis.StrategyInput{Forecast: f.Table}
	sources := []string{f.ID}
	if a != nil {
		in.Actual = a.Table
		sources = append(sources, a.ID)
	}
	if tr != nil {
		in.Trades = tr.Table
		sources = append(sources, tr.ID)
	}
	if m != nil {
		in.Market = m.Table
		sources = append(sources, m.ID)
	}
	if c != nil {
		in.Contract = c.Text
		sources = append(sources, c.ID)
	}
	return &prepared{
		req:     analysis.StrategyPrompt(in),
		figures: StrategyFigures{Sections: in.Sections()},
		sources: sources,
	}, nil
}

// Available lists the analyses whose inputs are present for the session.
func (uc *AssistantUseCase) Available(ctx context.Context, session string) ([]models.AnalysisKind, error) {
	ds, err := uc.load(ctx, session, models.DatasetKinds...)
	if err != nil {
		return nil, err
	}
	has := func(k models.DatasetKind) bool { return ds[k] != nil }
	var out []models.AnalysisKind
	for _, k := range models.AnalysisKinds {
		switch k {
		case models.AnalysisDeviation:
			if !has(models.KindForecast) || !has(models.KindActual) {
				continue
			}
		case models.AnalysisRegulation:
			if !has(models.KindRegulation) {
				continue
			}
		case models.AnalysisTrades:
			if !has(models.KindTrades) {
				continue
			}
		case models.AnalysisContract:
			if !has(models.KindContract) {
				continue
			}
		case models.AnalysisStrategy:
			full := has(models.KindActual) && has(models.KindTrades) && has(models.KindContract)
			if !has(models.KindForecast) || (!has(models.KindMarket) && !full) {
				continue
			}
		}
		out = append(out, k)
	}
	return out, nil
}

// Reports lists persisted analyses of a session, newest first.
func (uc *AssistantUseCase) Reports(ctx context.Context, session string, kind models.AnalysisKind, limit int) ([]*models.Analysis, error) {
	if uc.reports == nil {
		return nil, nil
	}
	return uc.reports.List(ctx, session, kind, limit)
}
