// Package kerr implements the KStor error-code taxonomy: a small, stable,
// slash-namespaced string per error kind, carried end to end from a
// controller to the wire response. The shape (a Code constant, a struct
// wrapping it, a constructor, an Error() method) is grounded on
// meszmate-xmpp-go's stream.Error, adapted from XML stream conditions to
// JSON error codes.
package kerr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Code is one of the stable, wire-visible error codes from spec.md §6.
type Code string

const (
	AuthForbidden   Code = "AUTH/FORBIDDEN"
	AuthBadSession  Code = "AUTH/BADSESSION"
	AuthMissing     Code = "AUTH/MISSING"
	ReqUnknown      Code = "REQ/UNKNOWN"
	ReqMissingArgs  Code = "REQ/MISSINGARGS"
	CryptoUnspecified Code = "CRYPTO/UNSPECIFIED"
	CryptoRbNaCl    Code = "CRYPTO/RBNACL"
	StoreUnknownGroup     Code = "STORE/UNKNOWNGROUP"
	StoreUnknownUser      Code = "STORE/UNKNOWNUSER"
	StoreGroupHasMembers  Code = "STORE/GROUPHASMEMBERS"
	StoreUnknownGroupPrivk Code = "STORE/UNKNOWNGROUPPRIVK"
	SecretNotFound  Code = "SECRET/NOTFOUND"
	MsgInvalid      Code = "MSG/INVALID"
	SQLCantOpen     Code = "SQL/CANTOPEN"

	// KDFFail, DecryptFail, EncryptFail and BadKey are internal crypto
	// failure kinds (spec.md §4.1); the dispatcher maps all of them to the
	// wire-visible CryptoUnspecified before a response is sent, logging
	// the concrete kind and stack trace first.
	KDFFail     Code = "crypto/kdffail"
	DecryptFail Code = "crypto/decryptfail"
	EncryptFail Code = "crypto/encryptfail"
	BadKey      Code = "crypto/badkey"
)

// formats holds one human-readable format string per code, filled in with
// Args at Error() time.
var formats = map[Code]string{
	AuthForbidden:  "user is not allowed to perform this request",
	AuthBadSession: "session is missing or expired",
	AuthMissing:    "this request requires login credentials",
	ReqUnknown:     "unknown request type %q",
	ReqMissingArgs: "missing required argument %q",
	CryptoUnspecified: "an internal cryptographic operation failed",
	CryptoRbNaCl:   "a low-level cryptographic library call failed",
	StoreUnknownGroup:      "group %q does not exist",
	StoreUnknownUser:       "user %q does not exist",
	StoreGroupHasMembers:   "group %q still has members other than the caller",
	StoreUnknownGroupPrivk: "no keychain entry for group %q",
	SecretNotFound: "secret %q not found or not reachable by this user",
	MsgInvalid:     "malformed request envelope",
	SQLCantOpen:    "could not open the database",
	KDFFail:        "key derivation failed",
	DecryptFail:    "decryption failed",
	EncryptFail:    "encryption failed",
	BadKey:         "malformed key material",
}

// Error is a wire-visible, taxonomy-coded error.
type Error struct {
	Code Code
	Args []any
	// cause, when present, carries the underlying low-level error and its
	// stack trace (via github.com/pkg/errors) for server-side logging; it
	// is never serialized onto the wire.
	cause error
}

// New builds a taxonomy error with the code's format string filled in by args.
func New(code Code, args ...any) *Error {
	return &Error{Code: code, Args: args}
}

// Wrap attaches a low-level cause (capturing a stack trace) to a taxonomy
// code, for errors that originate below the crypto/store boundary.
func Wrap(code Code, cause error) *Error {
	return &Error{Code: code, cause: errors.WithStack(cause)}
}

func (e *Error) Error() string {
	format, ok := formats[e.Code]
	if !ok {
		format = string(e.Code)
	}
	msg := fmt.Sprintf(format, e.Args...)
	if e.cause != nil {
		return fmt.Sprintf("%s: %s", msg, e.cause.Error())
	}
	return msg
}

// Message renders just the human-readable text (no cause), the form that
// is safe to put in a wire response's args.message field.
func (e *Error) Message() string {
	format, ok := formats[e.Code]
	if !ok {
		format = string(e.Code)
	}
	return fmt.Sprintf(format, e.Args...)
}

// Cause returns the wrapped low-level error, if any, with its stack trace.
func (e *Error) Cause() error {
	return e.cause
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Unspecified maps any internal crypto failure kind to the wire-visible
// CRYPTO/UNSPECIFIED code, per spec.md §7: "unexpected low-level crypto
// failures are mapped to CRYPTO/UNSPECIFIED ... the client sees only the
// generic code." The original code and cause are preserved for logging.
func (e *Error) Unspecified() *Error {
	switch e.Code {
	case KDFFail, DecryptFail, EncryptFail, BadKey:
		return &Error{Code: CryptoUnspecified, cause: e}
	default:
		return e
	}
}

// As reports whether err is a *Error, unwrapping standard error chains.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
