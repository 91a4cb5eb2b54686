// Package auth identifies the caller behind an HTTP or WebSocket request.
// It parses a bearer JWT when present and falls back to an anonymous
// caller id otherwise. There is no authorization model: identity is
// attached to the request context purely for audit log fields and never
// gates an operation.
package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// AnonymousCallerID is attached when a request carries no valid bearer
// token.
const AnonymousCallerID = "anonymous"

type callerIDKey struct{}

// Claims is the minimal claim set the panel expects in a bearer token:
// a subject identifying the caller, nothing more.
type Claims struct {
	jwt.RegisteredClaims
}

// Identifier validates bearer tokens against secret. An empty secret
// means no valid token can ever be presented; every caller is anonymous.
type Identifier struct {
	secret []byte
}

// New returns an Identifier keyed on secret.
func New(secret string) *Identifier {
	return &Identifier{secret: []byte(secret)}
}

// CallerID extracts the subject from req's Authorization header, falling
// back to AnonymousCallerID on a missing, malformed, or invalid token.
func (id *Identifier) CallerID(req *http.Request) string {
	header := req.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return AnonymousCallerID
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return id.secret, nil
	})
	if err != nil || !parsed.Valid || claims.Subject == "" {
		return AnonymousCallerID
	}
	return claims.Subject
}

// Middleware attaches the caller id to the gin context under the "callerID"
// key and to the request's context (read back with CallerIDFromContext),
// for downstream handlers to log but never to authorize on.
func (id *Identifier) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		callerID := id.CallerID(c.Request)
		c.Set("callerID", callerID)
		c.Request = c.Request.WithContext(WithCallerID(c.Request.Context(), callerID))
		c.Next()
	}
}

// WithCallerID returns a context carrying callerID, for non-gin call
// paths (the WebSocket handlers) that still want a uniform lookup.
func WithCallerID(ctx context.Context, callerID string) context.Context {
	return context.WithValue(ctx, callerIDKey{}, callerID)
}

// CallerIDFromContext returns the attached caller id, or
// AnonymousCallerID if none was attached.
func CallerIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(callerIDKey{}).(string); ok {
		return v
	}
	return AnonymousCallerID
}
