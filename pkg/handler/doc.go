// Package handler wraps typed request handlers into http.HandlerFunc.
//
// A HandlerFunc receives a Context and a request struct filled by binders
// from pkg/binder, and returns a Response. Binder and render failures go to
// an ErrorHandler; DefaultErrorHandler writes HTTPError values as
//
//	{"error": {"code": "unauthorized", "message": "unauthorized"}}
//
// and masks any other error as a 500.
package handler
