// Package errs defines the component-agnostic error taxonomy the gateway
// uses to decide how to react to a failure: retry, surface to the user,
// fail a transaction, or fail over. Callers should prefer errors.As over
// string-matching messages.
package errs

import "fmt"

// Kind is one of the component-agnostic error kinds.
type Kind string

const (
	KindValidation       Kind = "ValidationError"
	KindAuthFailed       Kind = "AuthFailed"
	KindNetworkTransient Kind = "NetworkTransient"
	KindNetworkPermanent Kind = "NetworkPermanent"
	KindCatalogConstraint Kind = "CatalogConstraint"
	KindCredentialIO     Kind = "CredentialIO"
	KindStreamStart      Kind = "StreamStart"
	KindStreamInterrupt  Kind = "StreamInterrupt"
	KindCapacityReached  Kind = "CapacityReached"
)

// Error wraps an underlying cause with a taxonomy kind and a generic,
// user-safe message. Internal diagnostics (status codes, URLs) belong in
// the wrapped cause, never credentials.
type Error struct {
	kind    Kind
	message string
	cause   error
}

func New(kind Kind, message string, cause error) *Error {
	return &Error{kind: kind, message: message, cause: cause}
}

func (e *Error) Kind() Kind { return e.kind }

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.kind, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.message)
}

func (e *Error) Unwrap() error { return e.cause }

// UserMessage returns the generic, credential-free string safe to surface
// to the control UI (§7 "user-facing strings are generic").
func (e *Error) UserMessage() string {
	switch e.kind {
	case KindAuthFailed:
		return "Invalid credentials"
	case KindNetworkTransient, KindNetworkPermanent:
		return "Cannot connect"
	case KindCredentialIO:
		return "Credential operation failed"
	case KindCapacityReached:
		return "No tuners available"
	case KindValidation:
		return e.message
	default:
		return "Internal error"
	}
}

func Validation(msg string) *Error        { return New(KindValidation, msg, nil) }
func AuthFailed(msg string) *Error        { return New(KindAuthFailed, msg, nil) }
func NetworkTransient(cause error) *Error { return New(KindNetworkTransient, "network error", cause) }
func NetworkPermanent(cause error) *Error { return New(KindNetworkPermanent, "network error", cause) }
func CatalogConstraint(msg string) *Error { return New(KindCatalogConstraint, msg, nil) }
func CredentialIO(cause error) *Error     { return New(KindCredentialIO, "credential operation failed", cause) }
func StreamStart(cause error) *Error      { return New(KindStreamStart, "stream start failed", cause) }
func StreamInterrupt(msg string) *Error   { return New(KindStreamInterrupt, msg, nil) }
func CapacityReached() *Error             { return New(KindCapacityReached, "at capacity", nil) }
