package http

import (
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/go-chi/render"

	apierrors "ethvaluation/internal/errors"
	"ethvaluation/internal/files"
)

// InputsHandler lists the CSV files a run can use as input.
type InputsHandler struct {
	loader       *files.Loader
	errorHandler *apierrors.ErrorHandler
	logger       *slog.Logger
}

// NewInputsHandler creates an inputs handler
func NewInputsHandler(loader *files.Loader, errorHandler *apierrors.ErrorHandler, logger *slog.Logger) *InputsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &InputsHandler{
		loader:       loader,
		errorHandler: errorHandler,
		logger:       logger.With(slog.String("handler", "inputs")),
	}
}

type inputFile struct {
	files.FileInfo
	Monthly bool `json:"monthly"`
}

// ListInputs handles GET /api/inputs
func (h *InputsHandler) ListInputs(w http.ResponseWriter, r *http.Request) {
	found, err := h.loader.Discovery().FindCSVFiles("")
	if err != nil {
		h.errorHandler.HandleError(w, r, apierrors.NewStorageError("list input files", err))
		return
	}

	out := make([]inputFile, len(found))
	for i, f := range found {
		monthly, _ := filepath.Match(files.MonthlyPattern, f.Name)
		out[i] = inputFile{FileInfo: f, Monthly: monthly}
	}
	render.JSON(w, r, map[string]any{"files": out, "count": len(out)})
}
