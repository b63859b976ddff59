// Package authentication exposes the auth service over HTTP.
//
// Routes:
//
//	POST /authentication/local/new            register with email and password
//	POST /authentication/local                local login
//	POST /authentication/forgot-password      always "Ok"
//	POST /authentication/reset-password       consume a reset token
//	POST /authentication/verify-email/resend  reissue the verification email
//	POST /authentication/renew                rotate a refresh token
//	POST /authentication/{provider}           login with a provider token or code
//	GET  /authentication/init/{provider}      redirect to the provider
//	POST /authentication/logout               protected
//	GET  /authentication/user                 protected
//	POST /authentication/change-password      protected
//	GET  /hook/verify-email/{token}           confirm an email address
//	GET  /hook/authentication/{provider}      provider redirect callback
//	GET  /admin/authentication/config         masterkey header required
//	PUT  /admin/authentication/config         masterkey header required
//
// The calling client is identified by the clientid header (or the client_id
// query parameter on redirects). Every route reads the live settings
// snapshot, so disabling a method takes effect on the next request.
// Errors are translated once, in toHTTPError; every 401 renders the same
// "unauthorized" body.
package authentication
