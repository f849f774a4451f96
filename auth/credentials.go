package auth

import "strings"

const (
	// HeaderAuthorization carries the bearer token
	HeaderAuthorization = "Authorization"

	// BearerPrefix precedes the access token in the Authorization header
	BearerPrefix = "Bearer "
)

// Credentials is the token pair of one authenticated session
type Credentials struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// IsAuthenticated reports whether an access token is present
func (c Credentials) IsAuthenticated() bool {
	return c.AccessToken != ""
}

// IsZero reports whether neither token is present
func (c Credentials) IsZero() bool {
	return c.AccessToken == "" && c.RefreshToken == ""
}

// bearerToken extracts the token from an Authorization header value
func bearerToken(header string) string {
	if len(header) > len(BearerPrefix) && strings.EqualFold(header[:len(BearerPrefix)], BearerPrefix) {
		return header[len(BearerPrefix):]
	}
	return ""
}
