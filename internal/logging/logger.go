// Package logging constructs the process-wide zap logger. The Engine holds
// one *zap.Logger and threads it down to every component as an explicit
// root value, not a DI container or package-level global.
package logging

import "go.uber.org/zap"

// New builds a production zap logger in production, a development one
// otherwise.
func New(development bool) (*zap.Logger, error) {
	if development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// WithServerID returns a child logger scoped to one server.
func WithServerID(l *zap.Logger, serverID string) *zap.Logger {
	return l.With(zap.String("server_id", serverID))
}

// WithSession returns a child logger scoped to one provisioning session.
func WithSession(l *zap.Logger, sessionID string) *zap.Logger {
	return l.With(zap.String("session_id", sessionID))
}
