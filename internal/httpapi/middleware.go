package httpapi

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/forgehost/panel/internal/apierr"
	"github.com/forgehost/panel/internal/auth"
	"github.com/forgehost/panel/internal/engine"
)

// requestLogger logs one structured line per request, at a level derived
// from the response status, with the caller id attached for audit.
func requestLogger(eng *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		c.Next()

		status := c.Writer.Status()
		callerID, _ := c.Get("callerID")
		fields := []zap.Field{
			zap.Int("status", status),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Duration("latency", time.Since(start)),
			zap.Any("caller_id", callerID),
		}

		switch {
		case status >= 500:
			eng.Log.Error("http request", fields...)
		case status >= 400:
			eng.Log.Warn("http request", fields...)
		default:
			eng.Log.Info("http request", fields...)
		}
	}
}

// renderError writes err as {kind, message, context} with the status the
// error's Kind maps to. Non-apierr errors are wrapped as Internal first so
// their raw text never reaches the caller.
func renderError(c *gin.Context, err error) {
	ae := apierr.Wrap(err)
	c.AbortWithStatusJSON(ae.Kind.HTTPStatus(), ae)
}

func callerID(c *gin.Context) string {
	if v, ok := c.Get("callerID"); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return auth.AnonymousCallerID
}
