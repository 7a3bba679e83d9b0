// Package wstserr defines the error kinds the WSTS core surfaces to the
// job-dispatch layer. Every error raised by pkg/wsts carries one of these
// kinds so a caller can classify failures with errors.Is without parsing
// strings.
package wstserr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind identifies the class of failure, per spec §7.
type Kind string

const (
	// KindSetup covers (n,k,t) invariant violations and unknown party ids.
	KindSetup Kind = "SetupError"
	// KindContext covers missing call ids, absent keygen state, and other
	// runtime lookup failures.
	KindContext Kind = "ContextError"
	// KindDelivery covers transport send failures.
	KindDelivery Kind = "DeliveryError"
	// KindMpc covers round timeout, malformed messages, secret computation
	// failure, and aggregator failure.
	KindMpc Kind = "MpcError"
	// KindSerialization covers failures encoding a result for return.
	KindSerialization Kind = "SerializationError"
	// KindInvalidPublicKey covers an operator or group key that isn't a
	// valid compressed secp256k1 point.
	KindInvalidPublicKey Kind = "InvalidPublicKey"
	// KindInvalidSignature covers WSTS-native post-aggregation verification
	// failure.
	KindInvalidSignature Kind = "InvalidSignature"
	// KindInvalidFrostSignature covers a 65-byte blob that doesn't parse as
	// a FROST-TR signature.
	KindInvalidFrostSignature Kind = "InvalidFrostSignature"
	// KindInvalidFrostVerifyingKey covers a group key that doesn't parse as
	// a FROST-TR verifying key.
	KindInvalidFrostVerifyingKey Kind = "InvalidFrostVerifyingKey"
	// KindInvalidFrostVerification covers a FROST-format verify failure.
	KindInvalidFrostVerification Kind = "InvalidFrostVerification"
)

// Error is the concrete error type carrying a Kind alongside its cause.
type Error struct {
	Kind  Kind
	cause error
}

func (e *Error) Error() string {
	if e.cause == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.cause)
}

func (e *Error) Unwrap() error { return e.cause }

// Is lets errors.Is(err, New(KindMpc, "")) match any *Error of that Kind,
// regardless of cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New builds an *Error of the given kind from a plain message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, cause: errors.Errorf(format, args...)}
}

// Wrap attaches kind and call-site context to an existing error without
// discarding it; errors.Is(result, New(kind, "")) still matches, and
// errors.Unwrap recovers the original cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, cause: errors.Wrapf(cause, format, args...)}
}

// Is reports whether err is (or wraps) a wstserr.Error of kind.
func Is(err error, kind Kind) bool {
	return errors.Is(err, &Error{Kind: kind})
}
