// Package httputil writes the JSON envelope every endpoint answers with:
// {"data": ...} on success and {"error": {...}} on failure.
package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	apperrors "github.com/Mukulsharnagat01/Collegedunia/pkg/errors"
	"github.com/Mukulsharnagat01/Collegedunia/pkg/logger"
	"github.com/Mukulsharnagat01/Collegedunia/pkg/validator"
)

type Response struct {
	Data  any            `json:"data,omitempty"`
	Error *ErrorResponse `json:"error,omitempty"`
}

type ErrorResponse struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

const genericMessage = "an internal error occurred"

// WriteJSON encodes v with the given status. Encoding errors are dropped: the
// status line is already on the wire.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func WriteData(w http.ResponseWriter, status int, v any) {
	WriteJSON(w, status, Response{Data: v})
}

// WriteError maps err through the error taxonomy and writes the error
// envelope. 5xx causes are logged with the request-scoped logger (or fallback)
// and replaced by a generic message.
func WriteError(w http.ResponseWriter, r *http.Request, err error, fallback *slog.Logger) {
	status, body := describe(err)
	body.RequestID = logger.CorrelationIDFromContext(r.Context())

	if status >= http.StatusInternalServerError {
		l := logger.FromContext(r.Context())
		if l == slog.Default() && fallback != nil {
			l = fallback
		}
		l.ErrorContext(r.Context(), "request failed",
			slog.Int("status", status),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}

	WriteJSON(w, status, Response{Error: body})
}

func describe(err error) (int, *ErrorResponse) {
	var fieldErr *validator.ValidationError
	if errors.As(err, &fieldErr) {
		return http.StatusBadRequest, &ErrorResponse{
			Code:    apperrors.CodeValidation,
			Message: "request validation failed",
			Fields:  fieldErr.Fields(),
		}
	}

	status := apperrors.HTTPStatus(err)
	body := &ErrorResponse{Code: apperrors.Code(err), Message: genericMessage}

	var appErr *apperrors.AppError
	switch {
	case errors.As(err, &appErr):
		body.Message = appErr.Message
	case status < http.StatusInternalServerError:
		body.Message = err.Error()
	}
	return status, body
}

// PathUUID reads the named chi URL parameter as a UUID. On failure it writes a
// 400 and returns false; the caller just returns.
func PathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	raw := chi.URLParam(r, name)
	id, err := uuid.Parse(raw)
	if err != nil {
		WriteJSON(w, http.StatusBadRequest, Response{Error: &ErrorResponse{
			Code:      apperrors.CodeValidation,
			Message:   "invalid " + name + ": " + raw,
			Fields:    map[string]string{name: "must be a valid UUID"},
			RequestID: logger.CorrelationIDFromContext(r.Context()),
		}})
		return uuid.Nil, false
	}
	return id, true
}
