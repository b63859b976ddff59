package handler_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/authkit/pkg/binder"
	"github.com/dmitrymomot/authkit/pkg/handler"
)

type greetRequest struct {
	Name string `json:"name"`
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) handler.ErrorDetail {
	t.Helper()
	var body handler.ErrorBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body.Error
}

func TestWrap(t *testing.T) {
	t.Parallel()

	greet := handler.HandlerFunc[handler.Context, greetRequest](
		func(_ handler.Context, req greetRequest) handler.Response {
			switch req.Name {
			case "":
				return handler.Error(handler.NewHTTPError(http.StatusBadRequest, "bad_request", "name is required"))
			case "boom":
				return handler.Error(errors.New("database exploded"))
			case "nil":
				return nil
			}
			return handler.JSON(map[string]string{"hello": req.Name})
		},
	)
	h := handler.Wrap(greet, handler.WithBinders[handler.Context, greetRequest](binder.JSON()))

	do := func(body string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		h(rec, r)
		return rec
	}

	t.Run("success", func(t *testing.T) {
		t.Parallel()
		rec := do(`{"name":"ann"}`)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
		assert.JSONEq(t, `{"hello":"ann"}`, rec.Body.String())
	})

	t.Run("http error", func(t *testing.T) {
		t.Parallel()
		rec := do(`{}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, handler.ErrorDetail{Code: "bad_request", Message: "name is required"}, decodeError(t, rec))
	})

	t.Run("internal error is masked", func(t *testing.T) {
		t.Parallel()
		rec := do(`{"name":"boom"}`)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		detail := decodeError(t, rec)
		assert.Equal(t, "internal_error", detail.Code)
		assert.NotContains(t, detail.Message, "database")
	})

	t.Run("nil response", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, http.StatusInternalServerError, do(`{"name":"nil"}`).Code)
	})

	t.Run("binder error reaches error handler", func(t *testing.T) {
		t.Parallel()
		var got error
		h := handler.Wrap(greet,
			handler.WithBinders[handler.Context, greetRequest](binder.JSON()),
			handler.WithErrorHandler[handler.Context, greetRequest](func(ctx handler.Context, err error) {
				got = err
				ctx.ResponseWriter().WriteHeader(http.StatusTeapot)
			}),
		)
		rec := httptest.NewRecorder()
		h(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`)))
		assert.Equal(t, http.StatusTeapot, rec.Code)
		assert.ErrorIs(t, got, binder.ErrMissingContentType)
	})
}

func TestResponses(t *testing.T) {
	t.Parallel()

	t.Run("message", func(t *testing.T) {
		t.Parallel()
		rec := httptest.NewRecorder()
		require.NoError(t, handler.Message("Ok").Render(rec, httptest.NewRequest(http.MethodGet, "/", nil)))
		assert.JSONEq(t, `{"message":"Ok"}`, rec.Body.String())
	})

	t.Run("redirect", func(t *testing.T) {
		t.Parallel()
		rec := httptest.NewRecorder()
		require.NoError(t, handler.Redirect("https://example.com/auth").Render(rec, httptest.NewRequest(http.MethodGet, "/", nil)))
		assert.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "https://example.com/auth", rec.Header().Get("Location"))
	})

	t.Run("redirect with invalid status falls back to 302", func(t *testing.T) {
		t.Parallel()
		rec := httptest.NewRecorder()
		require.NoError(t, handler.RedirectWithStatus("/x", http.StatusOK).Render(rec, httptest.NewRequest(http.MethodGet, "/", nil)))
		assert.Equal(t, http.StatusFound, rec.Code)
	})

	t.Run("status text is the default message", func(t *testing.T) {
		t.Parallel()
		rec := httptest.NewRecorder()
		require.NoError(t, handler.JSONError(handler.HTTPError{Code: http.StatusNotFound, Key: "not_found"}).Render(rec, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "Not Found", decodeError(t, rec).Message)
	})
}
