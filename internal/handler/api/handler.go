package api

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	domrepo "PowerDesk/internal/domain/repository"
	"PowerDesk/internal/service/metrics"
	"PowerDesk/internal/service/ratelimit"
	"PowerDesk/internal/services/analysis"
	"PowerDesk/internal/usecase"
	xhttp "PowerDesk/pkg/http"
	xlogger "PowerDesk/pkg/logger"
	"PowerDesk/pkg/tabular"

	"github.com/labstack/echo/v4"
)

const clientIDHeader = "X-Client-ID"

// AssistantHandler serves the assistant API on echo.
type AssistantHandler struct {
	logger    *xlogger.Logger
	ingest    *usecase.IngestionUseCase
	assistant *usecase.AssistantUseCase
	briefing  *usecase.BriefingUseCase
	jobs      *usecase.JobsUseCase
	market    *usecase.MarketUseCase
	watch     *usecase.ContractWatch
	limiter   *ratelimit.Limiter
	endpoints *metrics.Endpoints
	maxUpload int64
}

// Deps groups the handler collaborators. Limiter, Endpoints and Watch may be nil.
type Deps struct {
	Logger    *xlogger.Logger
	Ingestion *usecase.IngestionUseCase
	Assistant *usecase.AssistantUseCase
	Briefing  *usecase.BriefingUseCase
	Jobs      *usecase.JobsUseCase
	Market    *usecase.MarketUseCase
	Watch     *usecase.ContractWatch
	Limiter   *ratelimit.Limiter
	Endpoints *metrics.Endpoints
	MaxUpload int64
}

func NewAssistantHandler(d Deps) *AssistantHandler {
	if d.MaxUpload <= 0 {
		d.MaxUpload = 10 << 20
	}
	return &AssistantHandler{
		logger:    d.Logger,
		ingest:    d.Ingestion,
		assistant: d.Assistant,
		briefing:  d.Briefing,
		jobs:      d.Jobs,
		market:    d.Market,
		watch:     d.Watch,
		limiter:   d.Limiter,
		endpoints: d.Endpoints,
		maxUpload: d.MaxUpload,
	}
}

func (h *AssistantHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/overview", h.observe("overview", h.Overview))

	s := g.Group("/sessions/:session")
	s.POST("/datasets", h.observe("upload_many", h.UploadMany))
	s.GET("/datasets", h.observe("list_datasets", h.ListDatasets))
	s.POST("/datasets/:kind", h.observe("upload", h.Upload))
	s.GET("/datasets/:kind", h.observe("get_dataset", h.GetDataset))
	s.DELETE("/datasets/:kind", h.observe("delete_dataset", h.DeleteDataset))

	s.POST("/analyses/:kind", h.observe("analysis", h.rateLimit(h.Analyze)))
	s.GET("/briefing", h.observe("briefing", h.rateLimit(h.Briefing)))
	s.POST("/jobs", h.observe("submit_job", h.rateLimit(h.SubmitJob)))
	g.GET("/jobs/:id", h.observe("job", h.GetJob))

	g.GET("/market/live", h.observe("market_live", h.MarketLive))
	g.GET("/market/prices", h.observe("market_prices", h.MarketPrices))
	g.GET("/reports", h.observe("reports", h.Reports))
	g.GET("/alerts/contracts", h.observe("contract_alerts", h.ContractAlerts))
}

// observe records latency and error status per endpoint.
func (h *AssistantHandler) observe(endpoint string, next echo.HandlerFunc) echo.HandlerFunc {
	if h.endpoints == nil {
		return next
	}
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		status := c.Response().Status
		if err != nil {
			var he *echo.HTTPError
			if errors.As(err, &he) {
				status = he.Code
			} else {
				status = http.StatusInternalServerError
			}
		}
		h.endpoints.Observe(endpoint, status, time.Since(start))
		return err
	}
}

// rateLimit applies the per-client token bucket to model-backed endpoints.
func (h *AssistantHandler) rateLimit(next echo.HandlerFunc) echo.HandlerFunc {
	if h.limiter == nil {
		return next
	}
	return func(c echo.Context) error {
		key := xhttp.ClientKey(c.Request().Header.Get(clientIDHeader), c.RealIP())
		if !h.limiter.Allow(key) {
			wait := int(math.Ceil(h.limiter.RetryAfter(key).Seconds()))
			c.Response().Header().Set("Retry-After", strconv.Itoa(wait))
			h.logger.Warn("rate limited", xlogger.String("client", key), xlogger.String("path", c.Path()))
			return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("rate limit exceeded, retry later"))
		}
		return next(c)
	}
}

// fail maps a usecase error to the API error envelope.
func (h *AssistantHandler) fail(c echo.Context, op string, err error) error {
	appErr := toAppError(err)
	if appErr.Status >= http.StatusInternalServerError {
		h.logger.Error(op+" failed", xlogger.Error(err))
	}
	return xhttp.AppErrorResponse(c, appErr)
}

func toAppError(err error) *xhttp.AppError {
	var (
		appErr  *xhttp.AppError
		missing *usecase.MissingInputError
	)
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.As(err, &missing):
		return xhttp.MissingInputError(missing.Error(), missing.RequiredKinds())
	case errors.Is(err, usecase.ErrUpstream):
		return xhttp.UpstreamError("the language model is unavailable, try again later").WithError(err)
	case errors.Is(err, tabular.ErrUnsupportedFormat), errors.Is(err, usecase.ErrKindMismatch):
		return xhttp.UnsupportedMediaError(err.Error()).WithError(err)
	case errors.Is(err, usecase.ErrInvalidKind),
		errors.Is(err, usecase.ErrInvalidUpload),
		errors.Is(err, usecase.ErrInvalidQuery),
		errors.Is(err, analysis.ErrMissingColumns):
		return xhttp.BadRequestError(err.Error()).WithError(err)
	case errors.Is(err, domrepo.ErrDatasetNotFound), errors.Is(err, domrepo.ErrJobNotFound):
		return xhttp.NotFoundError(err.Error()).WithError(err)
	case errors.Is(err, context.DeadlineExceeded):
		return xhttp.NewAppError("ERR_TIMEOUT", "", "the request timed out", http.StatusGatewayTimeout).WithError(err)
	}
	return xhttp.InternalError("Something went wrong").WithError(err)
}
