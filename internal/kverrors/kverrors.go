// Package kverrors gives the wire protocol and the CLI one place to classify
// a failure instead of string-matching error messages. It mirrors the
// wrap-a-cause-with-a-code shape used by the rest of the corpus (see
// iamNilotpal-ignite/pkg/errors), trimmed to the four categories kvd's error
// handling design actually needs.
package kverrors

import (
	"errors"
	"fmt"
)

// Code classifies a failure the way the wire protocol and CLI exit codes
// need it classified. It is not meant to be exhaustive.
type Code string

const (
	CodeKeyNotFound    Code = "KEY_NOT_FOUND"
	CodeIO             Code = "IO"
	CodeCodec          Code = "CODEC"
	CodeEngineMismatch Code = "ENGINE_MISMATCH"
	CodeInvalidInput   Code = "INVALID_INPUT"
	CodeInternal       Code = "INTERNAL"
)

// kvError wraps a cause with a classification code and a user-facing message.
type kvError struct {
	cause error
	code  Code
	msg   string
}

func (e *kvError) Error() string { return e.msg }
func (e *kvError) Unwrap() error { return e.cause }
func (e *kvError) Code() Code    { return e.code }

// New creates a kvError with no wrapped cause.
func New(code Code, msg string) error {
	return &kvError{code: code, msg: msg}
}

// Wrap classifies err under code, keeping err reachable via errors.Unwrap.
func Wrap(err error, code Code, msg string) error {
	if err == nil {
		return nil
	}
	return &kvError{cause: err, code: code, msg: fmt.Sprintf("%s: %v", msg, err)}
}

// ClassifyOf returns the Code carried by the first kvError in err's chain,
// or CodeInternal if nothing in the chain carries one.
func ClassifyOf(err error) Code {
	var ke *kvError
	if errors.As(err, &ke) {
		return ke.code
	}
	return CodeInternal
}

// ErrKeyNotFound is the sentinel both conforming engines return from Remove
// of an absent key. Neither engine returns it from Get.
var ErrKeyNotFound = New(CodeKeyNotFound, "key not found")
