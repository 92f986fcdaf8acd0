// Package auth inspects the device's session token. The remote store uses
// it to answer the account-status precondition before a pass touches the
// network.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrNoToken      = errors.New("no session token")
	ErrTokenExpired = errors.New("session token expired")
)

// Claims carries the registered claims plus the device identity the backend
// embeds when it issues a session token.
type Claims struct {
	jwt.RegisteredClaims
	DeviceID string `json:"device_id"`
}

// TokenSource supplies the current session token, empty when signed out.
type TokenSource interface {
	Token() string
}

// StaticToken is a fixed TokenSource for composition roots and tests.
type StaticToken string

func (s StaticToken) Token() string { return string(s) }

// Issue signs a session token for a device. Used by tests and local tooling;
// production tokens come from the backend.
func Issue(deviceID string, secretKey []byte, validity time.Duration, now time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(validity)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		DeviceID: deviceID,
	})
	return token.SignedString(secretKey)
}

// Inspect checks that a token is present and not expired, returning its
// claims. The signature is not verified here: that is the backend's job,
// the client only decides whether attempting a sync is worthwhile.
func Inspect(tokenString string, now time.Time) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrNoToken
	}

	claims := &Claims{}
	_, _, err := jwt.NewParser().ParseUnverified(tokenString, claims)
	if err != nil {
		return nil, err
	}

	if claims.ExpiresAt != nil && !claims.ExpiresAt.After(now) {
		return nil, ErrTokenExpired
	}
	return claims, nil
}
