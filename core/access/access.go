/*Package access provides utilities for access control.

A Principal is the authenticated identity making a request, carrying the
role used for authorization. Principals are added to a request context with

  ctx = access.ContextWithPrincipal(ctx, principal)

and retrieved with

  principal, ok := access.PrincipalFromContext(ctx)

The Authenticator resolves principals from session cookies, bearer session
tokens, and API keys.
*/
package access

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/mediora-tech/mediora/core"
)

// contextKey is the type for context keys. Go linter does not like plain strings
type contextKey string

const contextKeyPrincipal contextKey = "_principal_"

// Principal is the authenticated identity of one request. It is never
// persisted by the dispatcher and owned exclusively by the request's
// lifetime.
type Principal struct {
	ID   uuid.UUID `json:"id"`
	Role core.Role `json:"role"`
}

// ContextWithPrincipal returns a new context with the principal added to it.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, contextKeyPrincipal, p)
}

// PrincipalFromContext retrieves a principal from the context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(contextKeyPrincipal).(Principal)
	return p, ok
}

// PrincipalCache is an in-memory cache for resolved API-key principals.
// Without the cache the authenticator would have to run a database lookup
// for every single request.
type PrincipalCache struct {
	mutex sync.RWMutex
	cache map[string]Principal
}

// NewPrincipalCache creates a new principal cache
func NewPrincipalCache() *PrincipalCache {
	return &PrincipalCache{cache: make(map[string]Principal)}
}

// Read returns a principal from in-process cache. Token should be the API
// key the principal was derived from. This function is go-routine safe.
func (c *PrincipalCache) Read(token string) (Principal, bool) {
	c.mutex.RLock()
	p, ok := c.cache[token]
	c.mutex.RUnlock()
	return p, ok
}

// Write stores a principal in the in-memory cache. This function is
// go-routine safe.
func (c *PrincipalCache) Write(token string, p Principal) {
	c.mutex.Lock()
	c.cache[token] = p
	c.mutex.Unlock()
}
