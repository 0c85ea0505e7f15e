package lora

import (
	"errors"
	"fmt"
)

// ErrorKind classifies every failure the protocol layers can produce.
// Callers decide retry and escalation policy by kind, never by message text.
type ErrorKind int

const (
	// KindTimeout means no (or only partial) response arrived within the
	// transport deadline. Retryable.
	KindTimeout ErrorKind = iota

	// KindMalformedResponse means the response was present but its header or
	// length did not match the request. Retryable.
	KindMalformedResponse

	// KindEchoDetected means the device returned the request bytes unchanged:
	// it is in pass-through mode, not configuration mode. Operator action is
	// required; never retried.
	KindEchoDetected

	// KindInvalidParameterRange means a caller-supplied field value is outside
	// the representable domain. Rejected before any bytes are sent.
	KindInvalidParameterRange

	// KindVariantMismatch means a symbolic value has no code in the active
	// variant's table. Rejected before any bytes are sent; a silent clamp
	// could set transmit power far outside the intended value.
	KindVariantMismatch

	// KindPersistenceMismatch means the post-write read-back disagrees with
	// the configuration that was written. Critical; never retried.
	KindPersistenceMismatch

	// KindUnsupportedCommand means the firmware does not implement the probe
	// (version and RSSI queries are vendor-undocumented on some models).
	KindUnsupportedCommand
)

func (k ErrorKind) String() string {
	switch k {
	case KindTimeout:
		return "TIMEOUT"
	case KindMalformedResponse:
		return "MALFORMED_RESPONSE"
	case KindEchoDetected:
		return "ECHO_DETECTED"
	case KindInvalidParameterRange:
		return "INVALID_PARAMETER_RANGE"
	case KindVariantMismatch:
		return "VARIANT_MISMATCH"
	case KindPersistenceMismatch:
		return "PERSISTENCE_MISMATCH"
	case KindUnsupportedCommand:
		return "UNSUPPORTED_COMMAND"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(k))
	}
}

// Retryable reports whether a bounded retry may resolve this kind of failure.
// EchoDetected and PersistenceMismatch require operator intervention.
func (k ErrorKind) Retryable() bool {
	return k == KindTimeout || k == KindMalformedResponse
}

// Error is the typed failure returned by the frame codec, register codec,
// detector and session. The codec layers never log; they return one of these.
type Error struct {
	Kind   ErrorKind
	Op     string
	Detail string
	Raw    []byte // offending response bytes, if any
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Detail)
}

// Errf builds a protocol error with a formatted detail message.
func Errf(kind ErrorKind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Detail: fmt.Sprintf(format, args...)}
}

// KindOf extracts the protocol error kind, unwrapping as needed, or -1 for
// foreign errors.
func KindOf(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ErrorKind(-1)
}

// IsKind reports whether err is, or wraps, a protocol error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Kind == kind
}
