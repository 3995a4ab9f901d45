package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/user/enrich-service/internal/adapter/sheets"
	"github.com/user/enrich-service/internal/delivery/http/request"
	"github.com/user/enrich-service/internal/delivery/http/response"
	"github.com/user/enrich-service/internal/entity"
	"github.com/user/enrich-service/internal/repository"
	"github.com/user/enrich-service/internal/table"
	"github.com/user/enrich-service/internal/template"
	"github.com/user/enrich-service/internal/usecase"
)

const maxUploadBytes = 32 << 20

type DatasetService interface {
	Upload(ctx context.Context, name string, r io.Reader) (*entity.Dataset, error)
	ImportSheet(ctx context.Context, sheetURL string) (*entity.Dataset, error)
	Get(ctx context.Context, id string) (*entity.Dataset, error)
	Delete(ctx context.Context, id string) error
	Filter(ctx context.Context, id string, cond table.Condition) (*entity.Dataset, error)
	Histogram(ctx context.Context, id, column string, bins int) (*table.Histogram, error)
	Unique(ctx context.Context, id, column string) ([]string, error)
	PreviewQueries(ctx context.Context, id, raw string) ([]string, error)
}

type RunService interface {
	Start(ctx context.Context, req usecase.StartRequest) (*entity.Run, error)
	Get(ctx context.Context, id string) (*entity.Run, error)
	Cancel(ctx context.Context, id string) error
	Rows(ctx context.Context, id string) ([]entity.OutputRow, error)
	Export(ctx context.Context, id string, w io.Writer, withStatus bool) error
	WriteSheet(ctx context.Context, id, sheetURL string, withStatus bool) (int, error)
}

// Pinger is a dependency reported by the health check.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	datasets DatasetService
	runs     RunService
	health   map[string]Pinger
	logger   *zap.Logger
}

// NewHandler creates the API handler. health lists the optional backing
// services by name; an empty map reports the process alone.
func NewHandler(datasets DatasetService, runs RunService, health map[string]Pinger, logger *zap.Logger) *Handler {
	return &Handler{datasets: datasets, runs: runs, health: health, logger: logger}
}

func (h *Handler) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := map[string]string{"status": "ok"}
	healthy := true
	for name, p := range h.health {
		if err := p.Ping(ctx); err != nil {
			status[name] = "unhealthy"
			healthy = false
			h.logger.Error("health check failed", zap.String("dependency", name), zap.Error(err))
			continue
		}
		status[name] = "healthy"
	}
	if !healthy {
		status["status"] = "degraded"
		h.writeJSON(w, http.StatusServiceUnavailable, status)
		return
	}
	h.writeJSON(w, http.StatusOK, status)
}

// HandleUploadDataset accepts a multipart form with a "file" part, or a raw
// CSV body.
func (h *Handler) HandleUploadDataset(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	var (
		body io.Reader = r.Body
		name           = r.URL.Query().Get("name")
	)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		file, header, err := r.FormFile("file")
		if err != nil {
			h.writeJSONError(w, "multipart form needs a file part", http.StatusBadRequest)
			return
		}
		defer file.Close()
		body = file
		if name == "" {
			name = header.Filename
		}
	}
	if name == "" {
		name = "upload.csv"
	}

	ds, err := h.datasets.Upload(r.Context(), name, body)
	if err != nil {
		h.writeJSONError(w, fmt.Sprintf("Invalid CSV: %v", err), http.StatusBadRequest)
		return
	}
	h.writeJSON(w, http.StatusCreated, response.NewDatasetResponse(ds, 0))
}

func (h *Handler) HandleImportSheet(w http.ResponseWriter, r *http.Request) {
	var req request.ImportSheetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		h.writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	ds, err := h.datasets.ImportSheet(r.Context(), req.URL)
	if err != nil {
		h.writeServiceError(w, err, "import sheet")
		return
	}
	h.writeJSON(w, http.StatusCreated, response.NewDatasetResponse(ds, 0))
}

func (h *Handler) HandleGetDataset(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	ds, err := h.datasets.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err, "get dataset")
		return
	}
	h.writeJSON(w, http.StatusOK, response.NewDatasetResponse(ds, limit))
}

func (h *Handler) HandleDeleteDataset(w http.ResponseWriter, r *http.Request) {
	if err := h.datasets.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeServiceError(w, err, "delete dataset")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleHistogram(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	column := q.Get("column")
	if column == "" {
		h.writeJSONError(w, "column query parameter is required", http.StatusBadRequest)
		return
	}
	bins, _ := strconv.Atoi(q.Get("bins"))
	hist, err := h.datasets.Histogram(r.Context(), chi.URLParam(r, "id"), column, bins)
	if err != nil {
		h.writeServiceError(w, err, "histogram")
		return
	}
	h.writeJSON(w, http.StatusOK, hist)
}

func (h *Handler) HandleUnique(w http.ResponseWriter, r *http.Request) {
	column := r.URL.Query().Get("column")
	if column == "" {
		h.writeJSONError(w, "column query parameter is required", http.StatusBadRequest)
		return
	}
	values, err := h.datasets.Unique(r.Context(), chi.URLParam(r, "id"), column)
	if err != nil {
		h.writeServiceError(w, err, "unique values")
		return
	}
	h.writeJSON(w, http.StatusOK, response.UniqueResponse{Column: column, Values: values})
}

func (h *Handler) HandleFilter(w http.ResponseWriter, r *http.Request) {
	var req request.FilterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	ds, err := h.datasets.Filter(r.Context(), chi.URLParam(r, "id"), table.Condition{
		Column: req.Column, Op: req.Op, Value: req.Value, Values: req.Values,
	})
	if err != nil {
		h.writeServiceError(w, err, "filter dataset")
		return
	}
	h.writeJSON(w, http.StatusCreated, response.NewDatasetResponse(ds, 0))
}

func (h *Handler) HandlePreviewQueries(w http.ResponseWriter, r *http.Request) {
	var req request.PreviewQueriesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	queries, err := h.datasets.PreviewQueries(r.Context(), chi.URLParam(r, "id"), req.Template)
	if err != nil {
		h.writeServiceError(w, err, "preview queries")
		return
	}
	h.writeJSON(w, http.StatusOK, response.QueriesResponse{Queries: queries})
}

func (h *Handler) HandleStartRun(w http.ResponseWriter, r *http.Request) {
	var req request.StartRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	run, err := h.runs.Start(r.Context(), usecase.StartRequest{
		DatasetID: req.DatasetID,
		Template:  req.Template,
		Fields:    req.Fields,
	})
	if err != nil {
		h.writeServiceError(w, err, "start run")
		return
	}
	h.writeJSON(w, http.StatusAccepted, run)
}

func (h *Handler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.runs.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err, "get run")
		return
	}
	h.writeJSON(w, http.StatusOK, run)
}

func (h *Handler) HandleCancelRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.runs.Cancel(r.Context(), id); err != nil {
		h.writeServiceError(w, err, "cancel run")
		return
	}
	h.writeJSON(w, http.StatusAccepted, map[string]string{"id": id, "status": "canceling"})
}

func (h *Handler) HandleRunRows(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	run, err := h.runs.Get(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err, "get run")
		return
	}
	rows, err := h.runs.Rows(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err, "run rows")
		return
	}
	if rows == nil {
		rows = []entity.OutputRow{}
	}
	h.writeJSON(w, http.StatusOK, response.RowsResponse{RunID: id, Columns: run.Columns, Rows: rows})
}

// HandleExportRun streams the run output as CSV. status=true adds the
// per-row outcome columns.
func (h *Handler) HandleExportRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.runs.Get(r.Context(), id); err != nil {
		h.writeServiceError(w, err, "get run")
		return
	}
	withStatus, _ := strconv.ParseBool(r.URL.Query().Get("status"))

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="run-%s.csv"`, id))
	if err := h.runs.Export(r.Context(), id, w, withStatus); err != nil {
		h.logger.Error("Failed to export run", zap.String("run_id", id), zap.Error(err))
	}
}

// HandleWriteSheet overwrites a Google Sheet with the output of a finished
// run.
func (h *Handler) HandleWriteSheet(w http.ResponseWriter, r *http.Request) {
	var req request.WriteSheetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		h.writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	id := chi.URLParam(r, "id")
	n, err := h.runs.WriteSheet(r.Context(), id, req.URL, req.Status)
	if err != nil {
		h.writeServiceError(w, err, "write sheet")
		return
	}
	h.writeJSON(w, http.StatusOK, response.SheetResponse{RunID: id, URL: req.URL, Rows: n})
}

// writeServiceError maps use case errors onto status codes. Unknown errors
// are logged and reported as 500.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error, op string) {
	var te *template.TemplateError
	switch {
	case errors.Is(err, repository.ErrNotFound):
		h.writeJSONError(w, "Not found", http.StatusNotFound)
	case errors.As(err, &te),
		errors.Is(err, usecase.ErrInvalidSpec),
		errors.Is(err, table.ErrUnknownColumn),
		errors.Is(err, table.ErrInvalidCondition),
		errors.Is(err, table.ErrInvalidBins),
		errors.Is(err, sheets.ErrInvalidURL):
		h.writeJSONError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, sheets.ErrNotShared),
		errors.Is(err, sheets.ErrNoWriteAccess):
		h.writeJSONError(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, usecase.ErrSheetsUnavailable):
		h.writeJSONError(w, err.Error(), http.StatusNotImplemented)
	case errors.Is(err, usecase.ErrRunFinished),
		errors.Is(err, usecase.ErrRunInProgress):
		h.writeJSONError(w, err.Error(), http.StatusConflict)
	default:
		h.logger.Error("Request failed", zap.String("op", op), zap.Error(err))
		h.writeJSONError(w, "Internal server error", http.StatusInternalServerError)
	}
}

// writeJSON encodes data before the status line is sent, so a value that
// cannot be encoded becomes a 500 instead of an empty success.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	body, err := json.Marshal(data)
	if err != nil {
		h.logger.Error("Failed to encode JSON response", zap.Error(err))
		status = http.StatusInternalServerError
		body, _ = json.Marshal(response.ErrorResponse{Error: "Internal server error"})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(append(body, '\n')); err != nil {
		h.logger.Error("Failed to write JSON response", zap.Error(err))
	}
}

func (h *Handler) writeJSONError(w http.ResponseWriter, message string, status int) {
	h.writeJSON(w, status, response.ErrorResponse{Error: message})
}
