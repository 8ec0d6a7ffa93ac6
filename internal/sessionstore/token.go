package sessionstore

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenIssuer mints short-lived signed tokens bound to a session, so
// services that cannot reach the shared session store can still verify a
// caller's identity offline. The session id travels in the "sid" claim;
// revoking the session invalidates the token at the next store-backed
// check even if its signature is still valid.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenIssuer builds an issuer signing with HMAC-SHA256.
func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl}
}

// Issue signs a token for rec.
func (t *TokenIssuer) Issue(rec Record) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": rec.PrincipalID,
		"sid": rec.SessionID,
		"iat": now.Unix(),
		"exp": now.Add(t.ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Verify parses and validates a token, returning its principal and session
// ids.
func (t *TokenIssuer) Verify(token string) (principalID, sessionID string, err error) {
	parsed, err := jwt.Parse(token, func(tok *jwt.Token) (interface{}, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", tok.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil {
		return "", "", err
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return "", "", fmt.Errorf("invalid token claims")
	}
	principalID, _ = claims["sub"].(string)
	sessionID, _ = claims["sid"].(string)
	return principalID, sessionID, nil
}
