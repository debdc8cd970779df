package api

import (
	models "PowerDesk/internal/domain/models"
	"PowerDesk/internal/services/analysis"
	xhttp "PowerDesk/pkg/http"

	"github.com/labstack/echo/v4"
)

type overviewResponse struct {
	Text  string          `json:"text"`
	Areas []analysis.Area `json:"areas"`
}

func (h *AssistantHandler) Overview(c echo.Context) error {
	return xhttp.SuccessResponse(c, overviewResponse{Text: analysis.OverviewText, Areas: analysis.Areas})
}

// Analyze runs one analysis synchronously.
func (h *AssistantHandler) Analyze(c echo.Context) error {
	req := &models.AnalysisRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.assistant.Analyze(c.Request().Context(), req.SessionID, models.AnalysisKind(req.Kind))
	if err != nil {
		return h.fail(c, "analysis", err)
	}
	out := *res
	if !req.IncludePrompt {
		out.Prompt = ""
	}
	return xhttp.SuccessResponse(c, &out)
}

func (h *AssistantHandler) Briefing(c echo.Context) error {
	req := &models.SessionRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.briefing.Brief(c.Request().Context(), req.SessionID)
	if err != nil {
		return h.fail(c, "briefing", err)
	}
	for k, a := range res.Analyses {
		cp := *a
		cp.Prompt = ""
		res.Analyses[k] = &cp
	}
	return xhttp.SuccessResponse(c, res)
}

// SubmitJob queues an analysis and answers 202 with the pending job.
func (h *AssistantHandler) SubmitJob(c echo.Context) error {
	req := &models.JobRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	job, err := h.jobs.Submit(c.Request().Context(), req.SessionID, models.AnalysisKind(req.Kind))
	if err != nil {
		return h.fail(c, "submit_job", err)
	}
	return xhttp.AcceptedResponse(c, job)
}

func (h *AssistantHandler) GetJob(c echo.Context) error {
	req := &models.JobStatusRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	job, err := h.jobs.Get(c.Request().Context(), req.ID)
	if err != nil {
		return h.fail(c, "job", err)
	}
	return xhttp.SuccessResponse(c, job)
}

func (h *AssistantHandler) Reports(c echo.Context) error {
	req := &models.ReportsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.assistant.Reports(c.Request().Context(), req.SessionID, models.AnalysisKind(req.Kind), req.Limit)
	if err != nil {
		return h.fail(c, "reports", err)
	}
	return xhttp.ListResponse(c, res, int64(len(res)))
}

func (h *AssistantHandler) ContractAlerts(c echo.Context) error {
	if h.watch == nil {
		return xhttp.ListResponse(c, []models.ContractAlert{}, 0)
	}
	alerts := h.watch.Alerts()
	return xhttp.ListResponse(c, alerts, int64(len(alerts)))
}
