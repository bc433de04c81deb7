package errors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
)

// Problem type URIs.
const (
	TypeValidation       = "/errors/validation"
	TypeNotFound         = "/errors/not-found"
	TypeRateLimit        = "/errors/rate-limit"
	TypeInternal         = "/errors/internal"
	TypeTimeout          = "/errors/timeout"
	TypeConflict         = "/errors/conflict"
	TypeDataInsufficient = "/errors/analysis/insufficient-data"
	TypeNumerical        = "/errors/analysis/numerical"
	TypeConfig           = "/errors/config"
	TypeStorage          = "/errors/storage"
)

// ErrorHandler renders every API failure as an RFC 7807 problem carrying the
// request ID as trace_id.
type ErrorHandler struct {
	logger       *slog.Logger
	includeStack bool
}

// NewErrorHandler returns a handler logging through logger. With includeStack
// set, problems also carry the goroutine stack or the panic value.
func NewErrorHandler(logger *slog.Logger, includeStack bool) *ErrorHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ErrorHandler{
		logger:       logger.With(slog.String("component", "error_handler")),
		includeStack: includeStack,
	}
}

// HandleError logs err and writes the matching problem.
func (h *ErrorHandler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		return
	}
	p := h.ErrorToProblem(err, r)
	level := slog.LevelWarn
	if p.Status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.Log(r.Context(), level, "request failed",
		slog.String("error", err.Error()),
		slog.Int("status", p.Status),
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
	)
	if h.includeStack {
		p.WithExtension("stack", string(debug.Stack()))
	}
	h.respond(w, r, p)
}

// ErrorToProblem maps err onto a problem. Context cancellation becomes a
// timeout, APIError keeps its status and AppError is mapped by type.
func (h *ErrorHandler) ErrorToProblem(err error, r *http.Request) *ProblemDetails {
	var (
		apiErr *APIError
		appErr *AppError
	)
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return NewProblemDetails(http.StatusGatewayTimeout, TypeTimeout, "Request Timeout",
			"The request was cancelled before it completed", r.URL.Path)
	case errors.As(err, &apiErr):
		p := NewProblemDetails(apiErr.StatusCode, apiProblemType(apiErr.StatusCode),
			http.StatusText(apiErr.StatusCode), apiErr.Message, r.URL.Path).
			WithExtension("error_code", apiErr.ErrorCode)
		if apiErr.Details != nil {
			p.WithExtension("details", apiErr.Details)
		}
		return p
	case errors.As(err, &appErr):
		status, problemType := appErrorStatus(appErr.Type)
		p := NewProblemDetails(status, problemType, http.StatusText(status), appErr.Error(), r.URL.Path).
			WithExtension("error_type", string(appErr.Type))
		if len(appErr.Context) > 0 {
			p.WithExtension("context", appErr.Context)
		}
		return p
	default:
		return NewProblemDetails(http.StatusInternalServerError, TypeInternal, "Internal Server Error",
			"An unexpected error occurred while processing the request", r.URL.Path)
	}
}

func apiProblemType(status int) string {
	switch status {
	case http.StatusBadRequest:
		return TypeValidation
	case http.StatusNotFound:
		return TypeNotFound
	case http.StatusConflict:
		return TypeConflict
	case http.StatusTooManyRequests:
		return TypeRateLimit
	default:
		return TypeInternal
	}
}

func appErrorStatus(t ErrorType) (int, string) {
	switch t {
	case ErrTypeValidation:
		return http.StatusBadRequest, TypeValidation
	case ErrTypeNotFound:
		return http.StatusNotFound, TypeNotFound
	case ErrTypeDataInsufficient:
		return http.StatusUnprocessableEntity, TypeDataInsufficient
	case ErrTypeNumerical, ErrTypeExtraction, ErrTypeIteration:
		return http.StatusUnprocessableEntity, TypeNumerical
	case ErrTypeConfig:
		return http.StatusInternalServerError, TypeConfig
	case ErrTypeStorage:
		return http.StatusInternalServerError, TypeStorage
	default:
		return http.StatusInternalServerError, TypeInternal
	}
}

// HandlePanic answers a recovered panic with a 500 problem.
func (h *ErrorHandler) HandlePanic(w http.ResponseWriter, r *http.Request, recovered any) {
	h.logger.ErrorContext(r.Context(), "panic recovered",
		slog.Any("panic", recovered),
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.String("path", r.URL.Path),
		slog.String("stack", string(debug.Stack())),
	)
	p := NewProblemDetails(http.StatusInternalServerError, TypeInternal, "Internal Server Error",
		"An unexpected error occurred", r.URL.Path)
	if h.includeStack {
		p.WithExtension("panic", fmt.Sprint(recovered))
	}
	h.respond(w, r, p)
}

// NotFound answers unknown routes.
func (h *ErrorHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, NewProblemDetails(http.StatusNotFound, TypeNotFound, "Not Found",
		"The requested resource was not found", r.URL.Path))
}

// MethodNotAllowed answers known routes hit with the wrong method.
func (h *ErrorHandler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, NewProblemDetails(http.StatusMethodNotAllowed, TypeInternal, "Method Not Allowed",
		fmt.Sprintf("Method %s is not allowed for this endpoint", r.Method), r.URL.Path))
}

func (h *ErrorHandler) respond(w http.ResponseWriter, r *http.Request, p *ProblemDetails) {
	p.WithExtension("trace_id", middleware.GetReqID(r.Context()))
	if err := render.Render(w, r, p); err != nil {
		h.logger.ErrorContext(r.Context(), "render problem failed", slog.String("error", err.Error()))
	}
}
