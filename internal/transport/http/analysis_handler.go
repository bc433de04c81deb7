package http

import (
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apierrors "ethvaluation/internal/errors"
	"ethvaluation/internal/middleware"
	"ethvaluation/internal/services"
)

// startRunRequest is the body of POST /analysis/runs. Paths are relative to
// the data directory.
type startRunRequest struct {
	MonthlyPath string   `json:"monthly_path,omitempty" validate:"omitempty,datafile"`
	DailyPath   string   `json:"daily_path,omitempty" validate:"omitempty,datafile"`
	WindowSize  int      `json:"window_size,omitempty" validate:"omitempty,min=6,max=600"`
	Formats     []string `json:"formats,omitempty" validate:"omitempty,dive,oneof=json csv xlsx"`
}

// AnalysisHandler serves the analysis run resources.
type AnalysisHandler struct {
	service      *services.AnalysisService
	validator    *middleware.Validator
	errorHandler *apierrors.ErrorHandler
	logger       *slog.Logger
	startLimit   func(http.Handler) http.Handler
}

// NewAnalysisHandler creates the handler. startLimit wraps run creation
// only and may be nil.
func NewAnalysisHandler(service *services.AnalysisService, validator *middleware.Validator, errorHandler *apierrors.ErrorHandler, startLimit func(http.Handler) http.Handler, logger *slog.Logger) *AnalysisHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AnalysisHandler{
		service:      service,
		validator:    validator,
		errorHandler: errorHandler,
		logger:       logger.With(slog.String("handler", "analysis")),
		startLimit:   startLimit,
	}
}

// Routes returns the run routes.
func (h *AnalysisHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		if h.startLimit != nil {
			r.Use(h.startLimit)
		}
		r.Post("/", h.StartRun)
	})
	r.Get("/", h.ListRuns)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.GetRun)
		r.Delete("/", h.CancelRun)
		r.Get("/results", h.Results)
		r.Get("/summary", h.Summary)
		r.Get("/files/{name}", h.DownloadFile)
	})
	return r
}

// StartRun handles POST /api/analysis/runs
func (h *AnalysisHandler) StartRun(w http.ResponseWriter, r *http.Request) {
	var req startRunRequest
	if !h.validator.Decode(w, r, &req) {
		return
	}

	info, err := h.service.StartRun(r.Context(), services.RunRequest{
		MonthlyPath: req.MonthlyPath,
		DailyPath:   req.DailyPath,
		WindowSize:  req.WindowSize,
		Formats:     req.Formats,
	})
	if err != nil {
		h.errorHandler.HandleError(w, r, serviceError(err))
		return
	}

	w.Header().Set("Location", "/api/analysis/runs/"+info.ID)
	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, info)
}

// ListRuns handles GET /api/analysis/runs
func (h *AnalysisHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs := h.service.ListRuns(r.Context())
	render.JSON(w, r, map[string]any{"runs": runs, "count": len(runs)})
}

// GetRun handles GET /api/analysis/runs/{id}
func (h *AnalysisHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	info, err := h.service.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.errorHandler.HandleError(w, r, serviceError(err))
		return
	}
	render.JSON(w, r, info)
}

// Results handles GET /api/analysis/runs/{id}/results
func (h *AnalysisHandler) Results(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.Results(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.errorHandler.HandleError(w, r, serviceError(err))
		return
	}
	render.JSON(w, r, res)
}

// Summary handles GET /api/analysis/runs/{id}/summary
func (h *AnalysisHandler) Summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.Summary(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.errorHandler.HandleError(w, r, serviceError(err))
		return
	}
	render.JSON(w, r, summary)
}

// CancelRun handles DELETE /api/analysis/runs/{id}
func (h *AnalysisHandler) CancelRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.service.CancelRun(r.Context(), id); err != nil {
		h.errorHandler.HandleError(w, r, serviceError(err))
		return
	}
	info, err := h.service.GetRun(r.Context(), id)
	if err != nil {
		h.errorHandler.HandleError(w, r, serviceError(err))
		return
	}
	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, info)
}

// DownloadFile handles GET /api/analysis/runs/{id}/files/{name}
func (h *AnalysisHandler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	id, name := chi.URLParam(r, "id"), chi.URLParam(r, "name")
	if name != filepath.Base(name) || name == "." || name == ".." {
		h.errorHandler.HandleError(w, r, apierrors.NewWithDetails(http.StatusBadRequest, "INVALID_FILENAME", "invalid file name", name))
		return
	}
	path, err := h.service.OutputFile(r.Context(), id, name)
	if err != nil {
		h.errorHandler.HandleError(w, r, serviceError(err))
		return
	}

	h.logger.InfoContext(r.Context(), "downloading run output",
		slog.String("run_id", id),
		slog.String("file", name),
		slog.String("request_id", middleware.GetRequestID(r.Context())))
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	http.ServeFile(w, r, path)
}
