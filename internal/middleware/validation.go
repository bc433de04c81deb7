package middleware

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	apierrors "ethvaluation/internal/errors"
)

// DefaultMaxBodySize bounds JSON request bodies.
const DefaultMaxBodySize = 1 << 20

// Validator decodes JSON request bodies and validates them with struct tags.
// Field names in errors are the JSON names.
type Validator struct {
	validate     *validator.Validate
	errorHandler *apierrors.ErrorHandler
	logger       *slog.Logger
	maxBodySize  int64
}

// NewValidator creates a validator with the custom "datafile" rule
// registered: a relative CSV path that cannot leave the data directory.
func NewValidator(errorHandler *apierrors.ErrorHandler, logger *slog.Logger) *Validator {
	v := validator.New()
	_ = v.RegisterValidation("datafile", isDataFile)
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{
		validate:     v,
		errorHandler: errorHandler,
		logger:       logger.With(slog.String("component", "validator")),
		maxBodySize:  DefaultMaxBodySize,
	}
}

// Decode reads the JSON body of r into dst and validates it. An empty body
// leaves dst at its zero value. On failure the problem response is written
// and false is returned.
func (v *Validator) Decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.ContentLength > v.maxBodySize {
		v.errorHandler.HandleError(w, r, apierrors.NewWithDetails(
			http.StatusRequestEntityTooLarge,
			"PAYLOAD_TOO_LARGE",
			"Request body exceeds maximum allowed size",
			map[string]any{"max_size": v.maxBodySize, "size": r.ContentLength},
		))
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, v.maxBodySize)

	if err := render.DecodeJSON(r.Body, dst); err != nil && !errors.Is(err, io.EOF) {
		v.logger.DebugContext(r.Context(), "invalid request body", slog.String("error", err.Error()))
		v.errorHandler.HandleError(w, r, apierrors.InvalidRequestWithError(err))
		return false
	}
	if err := v.Struct(dst); err != nil {
		v.errorHandler.HandleError(w, r, err)
		return false
	}
	return true
}

// Struct validates s and converts failures into a VALIDATION_FAILED error.
func (v *Validator) Struct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apierrors.InvalidRequestWithError(err)
	}
	out := make([]apierrors.ValidationError, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, apierrors.ValidationError{Field: fe.Field(), Message: formatValidationError(fe)})
	}
	return apierrors.NewValidationErrors(out)
}

// ContentTypeValidator rejects bodies that are not of one of the given types.
func ContentTypeValidator(errorHandler *apierrors.ErrorHandler, contentTypes ...string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength == 0 || r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodDelete {
				next.ServeHTTP(w, r)
				return
			}
			contentType := r.Header.Get("Content-Type")
			for _, allowed := range contentTypes {
				if strings.HasPrefix(contentType, allowed) {
					next.ServeHTTP(w, r)
					return
				}
			}
			errorHandler.HandleError(w, r, apierrors.NewWithDetails(
				http.StatusUnsupportedMediaType,
				"UNSUPPORTED_MEDIA_TYPE",
				"Unsupported content type",
				map[string]any{"content_type": contentType, "allowed": contentTypes},
			))
		})
	}
}

func formatValidationError(err validator.FieldError) string {
	field := err.Field()
	param := err.Param()
	switch err.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, param)
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, param)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(param, " ", ", "))
	case "datafile":
		return fmt.Sprintf("%s must be a relative .csv path inside the data directory", field)
	default:
		return fmt.Sprintf("%s failed %s validation", field, err.Tag())
	}
}

func isDataFile(fl validator.FieldLevel) bool {
	p := fl.Field().String()
	if p == "" || filepath.IsAbs(p) || strings.HasPrefix(p, "/") || strings.HasPrefix(p, `\`) {
		return false
	}
	clean := filepath.ToSlash(filepath.Clean(p))
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return false
	}
	return strings.EqualFold(filepath.Ext(clean), ".csv")
}
