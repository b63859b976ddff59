// Package binder fills request structs from HTTP requests.
//
// Each binder reads one source, selected by struct tag:
//
//	type LoginRequest struct {
//		ClientID string `header:"clientid"`
//		Email    string `json:"email"`
//		Password string `json:"password"`
//	}
//
//	r.Post("/authentication/local", handler.Wrap(login,
//		handler.WithBinders[handler.Context, LoginRequest](binder.Header(), binder.JSON()),
//	))
//
// JSON is strict: unknown fields, trailing data and bodies over
// DefaultMaxJSONSize fail with ErrFailedToParseJSON. Query, Path and Header
// only touch explicitly tagged fields and leave the rest untouched.
package binder
