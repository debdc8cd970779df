package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	models "PowerDesk/internal/domain/models"
	"PowerDesk/internal/repository"
	"PowerDesk/internal/service/ratelimit"
	"PowerDesk/internal/services/analysis"
	"PowerDesk/internal/usecase"
	"PowerDesk/pkg/cache"
	"PowerDesk/pkg/llm"
	xlogger "PowerDesk/pkg/logger"
	"PowerDesk/pkg/tabular"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const marketCSV = "Region,Price (£/kWh),Volume (MWh)\nNorth,0.12,500\nSouth,0.15,700\n"

type nopMetrics struct{}

func (nopMetrics) RecordMessageSent(string, string)          {}
func (nopMetrics) RecordError(string)                        {}
func (nopMetrics) RecordLastPrice(string, float64)           {}
func (nopMetrics) RecordLatency(string, float64)             {}
func (nopMetrics) RecordAnalysis(string, bool)               {}
func (nopMetrics) RecordTokens(string, string, int64, int64) {}

type fallbackMarket struct{}

func (fallbackMarket) FetchTable(context.Context) (*tabular.Table, bool, error) {
	return analysis.FallbackMarketTable(), false, nil
}

type nopQueue struct{}

func (nopQueue) Enqueue(context.Context, string, interface{}) (string, error) { return "msg", nil }

type testServer struct {
	e         *echo.Echo
	llmErr    error
}

func newTestServer(t *testing.T, limiter *ratelimit.Limiter, maxUpload int64) *testServer {
	t.Helper()
	log := xlogger.NewNop()
	store := repository.NewMemoryDatasetStore(time.Hour)
	mem := cache.NewMemoryCache()
	t.Cleanup(func() { _ = mem.Close() })

	ts := &testServer{e: echo.New()}
	completer := llm.CompleterFunc(func(_ context.Context, req llm.Request) (llm.Completion, error) {
		if ts.llmErr != nil {
			return llm.Completion{}, ts.llmErr
		}
		return llm.Completion{Text: "Buy North.", Provider: "fake", Model: "m"}, nil
	})
	assistant := usecase.NewAssistantUseCase(usecase.AssistantDeps{
		Datasets:   store,
		Market:     fallbackMarket{},
		Forecaster: analysis.NewForecaster(analysis.DefaultConfig(), rand.NewSource(1)),
		Completer:  completer,
		Metrics:    nopMetrics{},
		Log:        log,
	}, usecase.AssistantConfig{Analysis: analysis.DefaultConfig(), Timeout: 5 * time.Second})

	h := NewAssistantHandler(Deps{
		Logger:    log,
		Ingestion: usecase.NewIngestionUseCase(store, nil, nil, log),
		Assistant: assistant,
		Briefing:  usecase.NewBriefingUseCase(assistant, 5*time.Second),
		Jobs:      usecase.NewJobsUseCase(nopQueue{}, repository.NewCacheJobStore(mem, time.Hour), log),
		Market:    usecase.NewMarketUseCase(fallbackMarket{}, nil, nil),
		Limiter:   limiter,
		MaxUpload: maxUpload,
	})
	h.RegisterRoutes(ts.e)
	return ts
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	ts.e.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) upload(t *testing.T, path string, files map[string][2]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for field, f := range files {
		part, err := w.CreateFormFile(field, f[0])
		require.NoError(t, err)
		_, err = part.Write([]byte(f[1]))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	return ts.do(req)
}

type envelope struct {
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, data interface{}) {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	assert.Equal(t, rec.Code, env.Status)
	if data != nil {
		require.NoError(t, json.Unmarshal(env.Data, data))
	}
}

type apiError struct {
	Code   string                 `json:"code"`
	Params map[string]interface{} `json:"params"`
}

func TestOverview(t *testing.T) {
	ts := newTestServer(t, nil, 0)
	rec := ts.do(httptest.NewRequest(http.MethodGet, "/api/overview", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var out overviewResponse
	decode(t, rec, &out)
	assert.Contains(t, out.Text, "Energy Trader Assistant")
	assert.NotEmpty(t, out.Areas)
}

func TestDatasetLifecycle(t *testing.T) {
	ts := newTestServer(t, nil, 0)

	rec := ts.upload(t, "/api/sessions/s1/datasets/market", map[string][2]string{"file": {"prices.csv", marketCSV}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var sum models.DatasetSummary
	decode(t, rec, &sum)
	assert.Equal(t, models.KindMarket, sum.Kind)
	assert.Equal(t, 2, sum.Rows)

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/api/sessions/s1/datasets", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Rows  []models.DatasetSummary `json:"rows"`
		Total int64                   `json:"total"`
	}
	decode(t, rec, &list)
	assert.EqualValues(t, 1, list.Total)

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/api/sessions/s1/datasets/market", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(httptest.NewRequest(http.MethodDelete, "/api/sessions/s1/datasets/market", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/api/sessions/s1/datasets/market", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUploadErrors(t *testing.T) {
	ts := newTestServer(t, nil, 64)

	rec := ts.upload(t, "/api/sessions/s1/datasets/market", map[string][2]string{"file": {"prices.json", "{}"}})
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)

	rec = ts.upload(t, "/api/sessions/s1/datasets/contract", map[string][2]string{"file": {"terms.csv", "a,b\n1,2\n"}})
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code, "contracts must be text or pdf")

	rec = ts.upload(t, "/api/sessions/s1/datasets/weather", map[string][2]string{"file": {"w.csv", "a\n1\n"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.upload(t, "/api/sessions/s1/datasets/market", map[string][2]string{"file": {"big.csv", strings.Repeat("x", 100)}})
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	rec = ts.upload(t, "/api/sessions/s1/datasets/market", map[string][2]string{"other": {"prices.csv", marketCSV}})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "file field required")
}

func TestUploadMany(t *testing.T) {
	ts := newTestServer(t, nil, 0)
	rec := ts.upload(t, "/api/sessions/s1/datasets", map[string][2]string{
		"market":   {"m.csv", marketCSV},
		"forecast": {"f.csv", "Date,Region,Forecast (MW)\n2025-03-01,North,100\n"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var sums []models.DatasetSummary
	decode(t, rec, &sums)
	assert.Len(t, sums, 2)
}

func TestAnalyzeMissingInput(t *testing.T) {
	ts := newTestServer(t, nil, 0)
	rec := ts.do(httptest.NewRequest(http.MethodPost, "/api/sessions/s1/analyses/deviation", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var errs []apiError
	decode(t, rec, &errs)
	require.Len(t, errs, 1)
	assert.Equal(t, "ERR_MISSING_INPUT", errs[0].Code)
	assert.ElementsMatch(t, []interface{}{"forecast", "actual"}, errs[0].Params["required"])
}

func TestAnalyzePrompt(t *testing.T) {
	ts := newTestServer(t, nil, 0)

	rec := ts.do(httptest.NewRequest(http.MethodPost, "/api/sessions/s1/analyses/market", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var a models.Analysis
	decode(t, rec, &a)
	assert.Equal(t, "Buy North.", a.Summary)
	assert.Empty(t, a.Prompt)

	rec = ts.do(httptest.NewRequest(http.MethodPost, "/api/sessions/s1/analyses/market?include_prompt=true", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &a)
	assert.NotEmpty(t, a.Prompt)
}

func TestAnalyzeUpstreamFailure(t *testing.T) {
	ts := newTestServer(t, nil, 0)
	ts.llmErr = errors.New("openai API error: 503")

	rec := ts.do(httptest.NewRequest(http.MethodPost, "/api/sessions/s1/analyses/market", nil))
	require.Equal(t, http.StatusBadGateway, rec.Code)
	var errs []apiError
	decode(t, rec, &errs)
	assert.Equal(t, "ERR_UPSTREAM", errs[0].Code)
}

func TestAnalyzeUnknownKind(t *testing.T) {
	ts := newTestServer(t, nil, 0)
	rec := ts.do(httptest.NewRequest(http.MethodPost, "/api/sessions/s1/analyses/astrology", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRateLimit(t *testing.T) {
	ts := newTestServer(t, ratelimit.New(1, 0.01), 0)

	req := func(client string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodPost, "/api/sessions/s1/analyses/market", nil)
		r.Header.Set(clientIDHeader, client)
		return ts.do(r)
	}
	assert.Equal(t, http.StatusOK, req("a").Code)

	rec := req("a")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, req("b").Code, "buckets are per client")
}

func TestBriefing(t *testing.T) {
	ts := newTestServer(t, nil, 0)
	rec := ts.do(httptest.NewRequest(http.MethodGet, "/api/sessions/s1/briefing", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var b models.Briefing
	decode(t, rec, &b)
	require.Contains(t, b.Analyses, models.AnalysisMarket)
	assert.Empty(t, b.Analyses[models.AnalysisMarket].Prompt)
}

func TestJobs(t *testing.T) {
	ts := newTestServer(t, nil, 0)

	req := httptest.NewRequest(http.MethodPost, "/api/sessions/s1/jobs", strings.NewReader(`{"kind":"market"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := ts.do(req)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var job models.Job
	decode(t, rec, &job)
	assert.Equal(t, models.JobPending, job.Status)

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/api/jobs/"+job.ID, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/api/jobs/6f1c2a4e-9d8b-4e57-a1f0-3c2b1a0d9e8f", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/api/jobs/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMarketEndpoints(t *testing.T) {
	ts := newTestServer(t, nil, 0)

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/api/market/live", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var live usecase.LiveMarket
	decode(t, rec, &live)
	assert.False(t, live.Live)

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/api/market/prices", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code, "region is required")

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/api/alerts/contracts", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestToAppError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{usecase.ErrInvalidQuery, http.StatusBadRequest},
		{tabular.ErrUnsupportedFormat, http.StatusUnsupportedMediaType},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, toAppError(tt.err).Status, tt.err.Error())
	}
}
