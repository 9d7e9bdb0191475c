package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/render"

	"github.com/davidfague/bmtool/internal/connectivity"
	"github.com/davidfague/bmtool/internal/network"
	"github.com/davidfague/bmtool/internal/service"
)

// APIError is the JSON body of every error response.
type APIError struct {
	StatusCode int         `json:"status_code"`
	ErrorCode  string      `json:"error_code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return e.Message
}

// Render implements render.Renderer.
func (e *APIError) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.StatusCode)
	return nil
}

func newAPIError(status int, code, message string, details interface{}) *APIError {
	return &APIError{StatusCode: status, ErrorCode: code, Message: message, Details: details}
}

func invalidParameter(field, message string) *APIError {
	return newAPIError(http.StatusBadRequest, "INVALID_PARAMETER", message, map[string]string{"field": field})
}

func notFound(resource string) *APIError {
	return newAPIError(http.StatusNotFound, "NOT_FOUND", resource+" not found", nil)
}

// fromError maps service errors to responses: bad parameters are 400,
// unknown networks and tables 404, unusable data 422.
func fromError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	var cfgErr *service.ConfigurationError
	if errors.As(err, &cfgErr) {
		return newAPIError(http.StatusBadRequest, "INVALID_PARAMETER", cfgErr.Reason, map[string]string{"field": cfgErr.Field})
	}
	switch {
	case service.IsNotFound(err):
		return newAPIError(http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	case errors.Is(err, network.ErrMissingColumn),
		errors.Is(err, connectivity.ErrUnsupportedFormat),
		errors.Is(err, connectivity.ErrShapeMismatch):
		return newAPIError(http.StatusUnprocessableEntity, "UNPROCESSABLE_ENTITY", err.Error(), nil)
	}
	return newAPIError(http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", err.Error(), nil)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	render.Render(w, r, fromError(err))
}
