package api

import (
	"time"

	models "PowerDesk/internal/domain/models"
	domrepo "PowerDesk/internal/domain/repository"
	"PowerDesk/internal/usecase"
	xhttp "PowerDesk/pkg/http"

	"github.com/labstack/echo/v4"
)

func (h *AssistantHandler) MarketLive(c echo.Context) error {
	res, err := h.market.Live(c.Request().Context())
	if err != nil {
		return h.fail(c, "market_live", err)
	}
	c.Response().Header().Set("Cache-Control", "private, max-age=15")
	return xhttp.SuccessResponse(c, res)
}

// MarketPrices defaults to the last 24 hours.
func (h *AssistantHandler) MarketPrices(c echo.Context) error {
	req := &models.PricesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	now := time.Now().UTC()
	to := xhttp.ParseTimeDefault(req.To, now)
	from := xhttp.ParseTimeDefault(req.From, to.Add(-24*time.Hour))

	res, err := h.market.GetPrices(c.Request().Context(), usecase.GetPricesParams{
		Region:     req.Region,
		From:       from,
		To:         to,
		Resolution: domrepo.NormalizeResolution(req.Resolution),
		Limit:      req.Limit,
	})
	if err != nil {
		return h.fail(c, "market_prices", err)
	}
	return xhttp.SuccessResponse(c, res)
}
