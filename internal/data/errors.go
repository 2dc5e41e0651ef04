package data

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a domain failure so the transport layer can map it
// to a status code without string matching.
type ErrorKind string

const (
	// KindInvalidInput covers malformed ids, oversized content and missing
	// required fields. Always recoverable by correcting the request.
	KindInvalidInput ErrorKind = "INVALID_INPUT"

	// KindForbidden covers actors that are not participants/admins or act
	// on another user's message.
	KindForbidden ErrorKind = "FORBIDDEN"

	// KindNotFound covers absent conversations, messages and users, and
	// reply targets outside the conversation.
	KindNotFound ErrorKind = "NOT_FOUND"

	// KindExpired is a specialization of Forbidden for the edit window.
	KindExpired ErrorKind = "EXPIRED"

	// KindUploadFailed covers failures of the media collaborator. The whole
	// send is safe to retry.
	KindUploadFailed ErrorKind = "UPLOAD_FAILED"

	// KindCorrupt indicates stored content that no longer decodes. This is
	// data corruption, never a user mistake; it is logged and surfaced as a
	// generic failure.
	KindCorrupt ErrorKind = "CORRUPT"
)

// Error is the domain error carried across store boundaries.
type Error struct {
	Kind    ErrorKind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// NewError builds a domain error with the given kind and message.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// WrapError builds a domain error that keeps its cause for logging.
func WrapError(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// KindOf extracts the ErrorKind from err, or "" when err is not a domain
// error.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
