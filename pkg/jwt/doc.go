// Package jwt wraps github.com/golang-jwt/jwt/v5 with an HS256-only Service,
// bearer token extraction and context helpers.
//
//	svc, err := jwt.NewFromString(secret)
//	if err != nil {
//		return err
//	}
//
//	type claims struct {
//		UserID string `json:"id"`
//		jwt.RegisteredClaims
//	}
//
//	signed, err := svc.Generate(claims{UserID: id, RegisteredClaims: jwt.RegisteredClaims{
//		ExpiresAt: jwt.NumericDate(time.Now().Add(time.Hour)),
//	}})
//
//	var c claims
//	err = svc.Parse(signed, &c)
//
// Parse accepts only HS256 so "none" and RSA/HMAC confusion tokens fail.
package jwt
