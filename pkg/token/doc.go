// Package token provides compact signed tokens carrying a JSON payload.
//
// Format: base64url(payload).base64url(signature), where the signature is
// HMAC-SHA256 truncated to 16 bytes. Used for short-lived values that travel
// through a browser, such as the OAuth2 state parameter.
//
//	type state struct {
//		Provider string    `json:"p"`
//		Exp      time.Time `json:"e"`
//	}
//
//	func (s state) ExpiresAt() time.Time { return s.Exp }
//
//	tok, err := token.GenerateToken(state{"github", time.Now().Add(10 * time.Minute)}, secret)
//	s, err := token.ParseToken[state](tok, secret) // ErrTokenExpired after ten minutes
package token
