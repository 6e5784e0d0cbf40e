package response

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/conduit-lang/querykit/internal/orm/query"
)

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// IssuesResponse lists every problem found in a query
type IssuesResponse struct {
	Error   string       `json:"error"`
	Message string       `json:"message"`
	Code    string       `json:"code"`
	Issues  query.Issues `json:"issues"`
}

// RenderError renders a standard error response. An empty code is derived from the status.
func RenderError(w http.ResponseWriter, statusCode int, code, message string) {
	if code == "" {
		code = errorCodeFromStatus(statusCode)
	}
	RenderJSON(w, statusCode, &ErrorResponse{
		Error:   "error",
		Message: message,
		Code:    code,
	})
}

// RenderIssues renders a 422 carrying all issues
func RenderIssues(w http.ResponseWriter, issues query.Issues) {
	RenderJSON(w, http.StatusUnprocessableEntity, &IssuesResponse{
		Error:   "invalid_query",
		Message: fmt.Sprintf("The query has %d issue(s)", len(issues)),
		Code:    "invalid_query",
		Issues:  issues,
	})
}

// RenderBadRequest renders a 400 Bad Request error
func RenderBadRequest(w http.ResponseWriter, message string) {
	RenderError(w, http.StatusBadRequest, "", message)
}

// RenderNotFound renders a 404 Not Found error
func RenderNotFound(w http.ResponseWriter, message string) {
	if message == "" {
		message = "Resource not found"
	}
	RenderError(w, http.StatusNotFound, "", message)
}

// RenderInternalError renders a 500; details stay in the logs
func RenderInternalError(w http.ResponseWriter) {
	RenderError(w, http.StatusInternalServerError, "", "Internal server error")
}

// RenderJSON marshals v and writes it with status. Nothing is written if marshaling fails.
func RenderJSON(w http.ResponseWriter, status int, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("Internal Server Error"))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// errorCodeFromStatus maps HTTP status codes to error codes
func errorCodeFromStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	case http.StatusRequestEntityTooLarge:
		return "request_too_large"
	case http.StatusUnsupportedMediaType:
		return "unsupported_media_type"
	case http.StatusUnprocessableEntity:
		return "unprocessable_entity"
	case http.StatusTooManyRequests:
		return "rate_limited"
	case http.StatusInternalServerError:
		return "internal_error"
	case http.StatusServiceUnavailable:
		return "service_unavailable"
	default:
		return "error"
	}
}
