package api

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/profitwave/support-chat-api/api/chathub"
)

// SocketTokenTTL is how long a realtime handshake token stays valid. Tokens
// are minted per connection attempt; reconnects fetch a fresh one.
const SocketTokenTTL = time.Hour

// SocketTokenIssuer mints and verifies the short-lived JWTs that bind a
// realtime connection to a verified identity. The hub trusts only this
// binding for room routing, never event payloads.
type SocketTokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSocketTokenIssuer creates an issuer with the given HMAC secret
func NewSocketTokenIssuer(secret string) *SocketTokenIssuer {
	return &SocketTokenIssuer{
		secret: []byte(secret),
		ttl:    SocketTokenTTL,
		now:    time.Now,
	}
}

// Issue mints a handshake token for the given identity
func (i *SocketTokenIssuer) Issue(userID string, admin bool) (string, error) {
	now := i.now()
	claims := jwt.MapClaims{
		"sub": userID,
		"adm": admin,
		"iat": now.Unix(),
		"exp": now.Add(i.ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}

// Verify parses a handshake token and returns the identity it binds
func (i *SocketTokenIssuer) Verify(token string) (chathub.Identity, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(i.now))
	if err != nil {
		return chathub.Identity{}, err
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return chathub.Identity{}, fmt.Errorf("invalid token claims")
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return chathub.Identity{}, fmt.Errorf("token has no subject")
	}
	admin, _ := claims["adm"].(bool)

	return chathub.Identity{UserID: sub, Admin: admin}, nil
}
