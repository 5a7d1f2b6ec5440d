package auth

import (
	"cim/errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ResumeClaims is the content of the resumption token handed out by the server in the AUTH ACK.
type ResumeClaims struct {
	SessionID string `json:"sid"`
	Username  string `json:"usr"`
	jwt.RegisteredClaims
}

// Usable reports whether the token may still be presented at now.
// A token without expiry is always usable.
func (c *ResumeClaims) Usable(now time.Time) bool {
	if c.ExpiresAt == nil {
		return true
	}
	return now.Before(c.ExpiresAt.Time)
}

// ParseResumeToken reads the claims of a resumption token. The client never
// holds the server key: only the server verifies the signature.
func ParseResumeToken(token string) (*ResumeClaims, error) {
	claims := &ResumeClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrInvalidToken, err)
	}
	if claims.SessionID == "" {
		return nil, fmt.Errorf("%w: missing session id", errors.ErrInvalidToken)
	}
	return claims, nil
}

// GenerateResumeToken signs a resumption token with key, the way a server
// would. Used by test servers and the local tooling.
func GenerateResumeToken(sessionID, username string, ttl time.Duration, key []byte) (string, error) {
	now := time.Now()
	claims := &ResumeClaims{
		SessionID: sessionID,
		Username:  username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "cim",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(key)
}
