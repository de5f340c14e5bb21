package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt"
)

// ErrUnauthorized is returned when no valid user token is provided
var ErrUnauthorized = errors.New("unauthorized")

// Authenticator resolves the current user from a HS256 bearer token, user id is the `sub` claim
type Authenticator struct {
	secret []byte
}

// NewAuthenticator creates authenticator
func NewAuthenticator(secret string) (*Authenticator, error) {
	if secret == "" {
		return nil, fmt.Errorf("no secret")
	}
	return &Authenticator{secret: []byte(secret)}, nil
}

// Authenticate returns the user id.
// The token is taken from the Authorization header or from the `token` query param
func (a *Authenticator) Authenticate(r *http.Request) (string, error) {
	tStr := tokenFrom(r)
	if tStr == "" {
		return "", ErrUnauthorized
	}
	claims := &jwt.StandardClaims{}
	_, err := jwt.ParseWithClaims(tStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: no sub", ErrUnauthorized)
	}
	return claims.Subject, nil
}

func tokenFrom(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return r.URL.Query().Get("token")
}

// NewToken signs a token for the user, used by tools and tests
func NewToken(secret, userID string, expiresAt int64) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, &jwt.StandardClaims{Subject: userID, ExpiresAt: expiresAt})
	return t.SignedString([]byte(secret))
}
