// Package apierr implements a closed set of error kinds as a single typed
// error, rather than one Go error type per kind, since the set is closed
// and every kind maps to exactly one HTTP status.
package apierr

import (
	"fmt"
	"net/http"
)

// Kind is one of the closed set of error kinds a caller can see.
type Kind string

const (
	NotFound            Kind = "NotFound"
	ConflictName        Kind = "ConflictName"
	ConflictPort        Kind = "ConflictPort"
	InvalidPath         Kind = "InvalidPath"
	InvalidRequest      Kind = "InvalidRequest"
	NotRunning          Kind = "NotRunning"
	AlreadyRunning      Kind = "AlreadyRunning"
	AlreadyStopped      Kind = "AlreadyStopped"
	InvalidTransition   Kind = "InvalidTransition"
	CatalogDisabled     Kind = "CatalogDisabled"
	UpstreamUnavailable Kind = "UpstreamUnavailable"
	DownloadTooLarge    Kind = "DownloadTooLarge"
	ChecksumMismatch    Kind = "ChecksumMismatch"
	InstallerFailed     Kind = "InstallerFailed"
	ManifestMissing     Kind = "ManifestMissing"
	ManifestInvalid     Kind = "ManifestInvalid"
	UnknownSession      Kind = "UnknownSession"
	SlowConsumer        Kind = "SlowConsumer"
	Timeout             Kind = "Timeout"
	CancelledByCaller   Kind = "CancelledByCaller"
	Internal            Kind = "Internal"
)

// Error is the user-visible error shape: {kind, message, context}.
type Error struct {
	Kind    Kind           `json:"kind"`
	Message string         `json:"message"`
	Context map[string]any `json:"context,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// New builds an Error. Internal assertions never surface their raw text;
// callers wrapping unexpected failures should use Wrap instead.
func New(kind Kind, message string, context map[string]any) *Error {
	return &Error{Kind: kind, Message: message, Context: context}
}

// Wrap converts an arbitrary error into an Internal apierr.Error, replacing
// its text with a stable message so internal assertions never leak
// implementation details to a caller.
func Wrap(err error) *Error {
	if err == nil {
		return nil
	}
	if ae, ok := err.(*Error); ok {
		return ae
	}
	return &Error{Kind: Internal, Message: "an internal error occurred"}
}

// HTTPStatus maps a Kind to the response status the gin handlers should use.
func (k Kind) HTTPStatus() int {
	switch k {
	case NotFound, UnknownSession:
		return http.StatusNotFound
	case ConflictName, ConflictPort, AlreadyRunning, AlreadyStopped, InvalidTransition:
		return http.StatusConflict
	case InvalidPath, InvalidRequest, ManifestInvalid, ManifestMissing, DownloadTooLarge, ChecksumMismatch:
		return http.StatusBadRequest
	case NotRunning:
		return http.StatusConflict
	case CatalogDisabled:
		return http.StatusServiceUnavailable
	case UpstreamUnavailable, InstallerFailed:
		return http.StatusBadGateway
	case Timeout:
		return http.StatusGatewayTimeout
	case CancelledByCaller:
		return 499
	case SlowConsumer:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
