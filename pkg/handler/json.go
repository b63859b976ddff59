package handler

import (
	"encoding/json"
	"errors"
	"net/http"
)

// ErrorBody is the error envelope written for failed requests.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string              `json:"code"`
	Message string              `json:"message"`
	Details map[string][]string `json:"details,omitempty"`
}

type jsonResponse struct {
	status int
	body   any
}

func (j jsonResponse) Render(w http.ResponseWriter, _ *http.Request) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(j.status)
	return json.NewEncoder(w).Encode(j.body)
}

type JSONOption func(*jsonResponse)

func WithStatus(status int) JSONOption {
	return func(r *jsonResponse) { r.status = status }
}

// JSON writes v as the response body with status 200.
func JSON(v any, opts ...JSONOption) Response {
	r := &jsonResponse{status: http.StatusOK, body: v}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Message writes {"message": msg}.
func Message(msg string, opts ...JSONOption) Response {
	return JSON(map[string]string{"message": msg}, opts...)
}

// JSONError renders err in the ErrorBody envelope. Errors that are not an
// HTTPError become a 500 without leaking their text.
func JSONError(err error) Response {
	var httpErr HTTPError
	if !errors.As(err, &httpErr) {
		httpErr = HTTPError{Code: http.StatusInternalServerError, Key: "internal_error"}
	}
	return JSON(ErrorBody{Error: ErrorDetail{
		Code:    httpErr.Key,
		Message: httpErr.message(),
		Details: httpErr.Details,
	}}, WithStatus(httpErr.Code))
}
