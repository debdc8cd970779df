package api

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sort"

	models "PowerDesk/internal/domain/models"
	"PowerDesk/internal/usecase"
	xhttp "PowerDesk/pkg/http"

	"github.com/labstack/echo/v4"
)

const uploadField = "file"

func (h *AssistantHandler) readFile(fh *multipart.FileHeader) ([]byte, error) {
	if fh.Size > h.maxUpload {
		return nil, tooLarge(fh.Filename, h.maxUpload)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, xhttp.BadRequestErrorf("cannot open %s", fh.Filename).WithError(err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, h.maxUpload+1))
	if err != nil {
		return nil, xhttp.BadRequestErrorf("cannot read %s", fh.Filename).WithError(err)
	}
	if int64(len(data)) > h.maxUpload {
		return nil, tooLarge(fh.Filename, h.maxUpload)
	}
	return data, nil
}

func tooLarge(name string, limit int64) *xhttp.AppError {
	return xhttp.NewAppError("ERR_TOO_LARGE", "file", fmt.Sprintf("%s exceeds %d bytes", name, limit), http.StatusRequestEntityTooLarge).
		WithParam("max", limit)
}

// Upload stores one file as the session's dataset of the path kind.
func (h *AssistantHandler) Upload(c echo.Context) error {
	req := &models.DatasetRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	fh, err := c.FormFile(uploadField)
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.NewAppError("ERR_REQUIRED", uploadField, "file is required", http.StatusBadRequest))
	}
	data, err := h.readFile(fh)
	if err != nil {
		return h.fail(c, "upload", err)
	}

	res, err := h.ingest.Upload(c.Request().Context(), req.SessionID, usecase.Upload{
		Kind:     models.DatasetKind(req.Kind),
		Filename: fh.Filename,
		Data:     data,
	})
	if err != nil {
		return h.fail(c, "upload", err)
	}
	return xhttp.CreatedResponse(c, res)
}

// UploadMany takes one file per form field named after its dataset kind.
func (h *AssistantHandler) UploadMany(c echo.Context) error {
	req := &models.SessionRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	form, err := c.MultipartForm()
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("multipart form expected").WithError(err))
	}

	fields := make([]string, 0, len(form.File))
	for k := range form.File {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	if len(fields) == 0 {
		return xhttp.AppErrorResponse(c, xhttp.NewAppError("ERR_REQUIRED", "file", "at least one file is required", http.StatusBadRequest))
	}

	ups := make([]usecase.Upload, 0, len(fields))
	for _, kind := range fields {
		fhs := form.File[kind]
		if len(fhs) != 1 {
			return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("expected one file for %s, got %d", kind, len(fhs)))
		}
		data, err := h.readFile(fhs[0])
		if err != nil {
			return h.fail(c, "upload_many", err)
		}
		ups = append(ups, usecase.Upload{Kind: models.DatasetKind(kind), Filename: fhs[0].Filename, Data: data})
	}

	res, err := h.ingest.UploadMany(c.Request().Context(), req.SessionID, ups)
	if err != nil {
		return h.fail(c, "upload_many", err)
	}
	return xhttp.CreatedResponse(c, res)
}

func (h *AssistantHandler) ListDatasets(c echo.Context) error {
	req := &models.SessionRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.ingest.List(c.Request().Context(), req.SessionID)
	if err != nil {
		return h.fail(c, "list_datasets", err)
	}
	return xhttp.ListResponse(c, res, int64(len(res)))
}

func (h *AssistantHandler) GetDataset(c echo.Context) error {
	req := &models.DatasetRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.ingest.Get(c.Request().Context(), req.SessionID, models.DatasetKind(req.Kind))
	if err != nil {
		return h.fail(c, "get_dataset", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *AssistantHandler) DeleteDataset(c echo.Context) error {
	req := &models.DatasetRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if err := h.ingest.Delete(c.Request().Context(), req.SessionID, models.DatasetKind(req.Kind)); err != nil {
		return h.fail(c, "delete_dataset", err)
	}
	return xhttp.NoContentResponse(c)
}
