package binder

import "net/http"

// Header binds fields tagged `header:"Name"`. Names are canonicalized.
func Header() func(r *http.Request, v any) error {
	return func(r *http.Request, v any) error {
		return bindToStruct(v, "header", r.Header.Values, ErrFailedToParseHeader)
	}
}
