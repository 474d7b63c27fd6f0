package access

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v4"

	"github.com/mediora-tech/mediora/core/logger"
)

// ErrUnauthorized is the only authentication failure ever surfaced to a
// caller. Provider errors are logged and mapped to it, fail-closed.
var ErrUnauthorized = errors.New("unauthorized")

// ErrNoSession is returned by a SessionProvider when the session does not
// exist. It is a miss, not a failure; the authenticator falls through to
// the API-key path.
var ErrNoSession = errors.New("no such session")

// ErrNoKey is returned by a KeyLookup when no principal owns the key.
var ErrNoKey = errors.New("no such api key")

// SessionProvider looks up the principal behind an opaque session ID.
type SessionProvider interface {
	Lookup(ctx context.Context, sessionID string) (Principal, error)
}

// KeyLookup looks up the principal owning an API key.
type KeyLookup interface {
	ByAPIKey(ctx context.Context, key string) (Principal, error)
}

// DefaultCookieName is the session cookie inspected by the authenticator.
const DefaultCookieName = "Mediora-Session"

// Authenticator turns a raw request into an authenticated principal. It
// never blocks for more than one session check plus at most one key lookup.
type Authenticator struct {
	sessions      SessionProvider
	keys          KeyLookup
	sessionSecret []byte
	cookieName    string
	cache         *PrincipalCache
}

// NewAuthenticator creates an authenticator. The session secret verifies
// bearer session JWTs; issuing such tokens is somebody else's business.
// Either provider may be nil, which disables its path.
func NewAuthenticator(sessions SessionProvider, keys KeyLookup, sessionSecret []byte) *Authenticator {
	return &Authenticator{
		sessions:      sessions,
		keys:          keys,
		sessionSecret: sessionSecret,
		cookieName:    DefaultCookieName,
		cache:         NewPrincipalCache(),
	}
}

// WithCookieName overrides the session cookie name.
func (a *Authenticator) WithCookieName(name string) *Authenticator {
	a.cookieName = name
	return a
}

type sessionClaims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// Authenticate resolves the request's principal. Order: session cookie or
// bearer session token, then API key. Both missing or failing yields
// ErrUnauthorized; internal detail is only ever logged, at debug level.
func (a *Authenticator) Authenticate(r *http.Request) (Principal, error) {
	ctx := r.Context()
	rlog := logger.FromContext(ctx)

	bearer := bearerToken(r)

	if a.sessions != nil {
		sessionID := a.sessionID(r, bearer)
		if sessionID != "" {
			p, err := a.sessions.Lookup(ctx, sessionID)
			if err == nil {
				return p, nil
			}
			if !errors.Is(err, ErrNoSession) {
				// transient provider failure, fail closed
				rlog.WithError(err).Debugln("session lookup failed")
				return Principal{}, ErrUnauthorized
			}
		}
	}

	if a.keys != nil && bearer != "" {
		if p, ok := a.cache.Read(bearer); ok {
			return p, nil
		}
		p, err := a.keys.ByAPIKey(ctx, bearer)
		if err == nil {
			a.cache.Write(bearer, p)
			return p, nil
		}
		if !errors.Is(err, ErrNoKey) {
			rlog.WithError(err).Debugln("api key lookup failed")
		}
	}

	return Principal{}, ErrUnauthorized
}

// sessionID extracts a session identifier from the cookie or from a signed
// bearer session token. A bearer that does not verify as a session JWT is
// left for the API-key path.
func (a *Authenticator) sessionID(r *http.Request, bearer string) string {
	if cookie, _ := r.Cookie(a.cookieName); cookie != nil && cookie.Value != "" {
		return cookie.Value
	}
	if bearer == "" || len(a.sessionSecret) == 0 {
		return ""
	}
	claims := sessionClaims{}
	token, err := jwt.ParseWithClaims(bearer, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.sessionSecret, nil
	})
	if err != nil || !token.Valid {
		return ""
	}
	return claims.SessionID
}

func bearerToken(r *http.Request) string {
	bearer := r.Header.Get("Authorization")
	if len(bearer) == 0 || bearer == "null" {
		return ""
	}
	if len(bearer) >= 8 && strings.ToLower(bearer[:7]) == "bearer " {
		return bearer[7:]
	}
	return bearer
}
