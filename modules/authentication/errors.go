package authentication

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/authkit/pkg/auth"
	"github.com/dmitrymomot/authkit/pkg/binder"
	"github.com/dmitrymomot/authkit/pkg/handler"
	"github.com/dmitrymomot/authkit/pkg/logger"
	"github.com/dmitrymomot/authkit/pkg/validator"
)

// Every 401 carries the same body so responses do not reveal which check failed.
var unauthorizedError = handler.NewHTTPError(http.StatusUnauthorized, "unauthorized", "unauthorized")

var bindErrors = []error{
	binder.ErrMissingContentType,
	binder.ErrUnsupportedMediaType,
	binder.ErrFailedToParseJSON,
	binder.ErrFailedToParseQuery,
	binder.ErrFailedToParsePath,
	binder.ErrFailedToParseHeader,
}

// toHTTPError is the single translation from domain errors to responses.
func toHTTPError(err error) handler.HTTPError {
	var httpErr handler.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr
	}
	for _, be := range bindErrors {
		if errors.Is(err, be) {
			return handler.HTTPError{Code: http.StatusBadRequest, Key: "bad_request", Message: "malformed request", Err: err}
		}
	}

	switch auth.KindOf(err) {
	case auth.KindUserInput:
		e := handler.HTTPError{Code: http.StatusBadRequest, Key: "invalid_input", Message: "invalid input", Err: err}
		if ve := validator.ExtractValidationErrors(err); len(ve) > 0 {
			e.Details = ve.Fields()
		} else {
			e.Message = err.Error()
		}
		return e
	case auth.KindUnauthorized:
		e := unauthorizedError
		e.Err = err
		return e
	case auth.KindForbidden:
		return handler.HTTPError{Code: http.StatusForbidden, Key: "forbidden", Message: err.Error(), Err: err}
	case auth.KindNotFound:
		return handler.HTTPError{Code: http.StatusNotFound, Key: "not_found", Message: err.Error(), Err: err}
	case auth.KindBadGateway:
		return handler.HTTPError{Code: http.StatusBadGateway, Key: "bad_gateway", Message: "identity provider unavailable", Err: err}
	default:
		return handler.HTTPError{Code: http.StatusInternalServerError, Key: "internal_error", Err: err}
	}
}

func (m *Module) handleError(ctx handler.Context, err error) {
	httpErr := toHTTPError(err)

	level := slog.LevelDebug
	switch {
	case httpErr.Code >= http.StatusInternalServerError:
		level = slog.LevelError
	case httpErr.Code == http.StatusForbidden || httpErr.Code == http.StatusUnauthorized:
		level = slog.LevelInfo
	}
	m.logger.Log(ctx, level, "request failed",
		logger.Error(err),
		logger.Status(httpErr.Code),
		logger.Component("authentication"),
	)

	_ = handler.JSONError(httpErr).Render(ctx.ResponseWriter(), ctx.Request())
}
