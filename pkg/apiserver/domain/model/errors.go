package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies every failure the bridge can report.
type ErrorKind string

const (
	KindDivisionByZero       ErrorKind = "DivisionByZero"
	KindUnsupportedOperation ErrorKind = "UnsupportedOperation"
	KindMalformedRequest     ErrorKind = "MalformedRequest"
	KindChannelUnavailable   ErrorKind = "ChannelUnavailable"
	KindTimeout              ErrorKind = "Timeout"
	KindUnknownCorrelation   ErrorKind = "UnknownCorrelation"
	KindInternal             ErrorKind = "Internal"
)

// Messages carried on the wire for failures computed by the evaluator.
const (
	MessageDivisionByZero      = "Division by zero is not allowed"
	MessageInvalidNumberFormat = "Invalid number format"
	MessageUnsupportedPrefix   = "Operation not supported: "
	MessageProcessingError     = "Error in processing request"
	MessageOperandOutOfRange   = "Operand out of range"
)

// Error is a typed failure. Message is the human readable text surfaced to callers and,
// for evaluator failures, the exact text sent back on the wire.
type Error struct {
	Kind    ErrorKind
	Tag     string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind. A target with a Tag also requires the tag to match.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Tag == "" || t.Tag == e.Tag
}

// Sentinels for errors.Is checks.
var (
	ErrDivisionByZero       = &Error{Kind: KindDivisionByZero, Message: MessageDivisionByZero}
	ErrUnsupportedOperation = &Error{Kind: KindUnsupportedOperation, Message: "operation not supported"}
	ErrMalformedRequest     = &Error{Kind: KindMalformedRequest, Message: "malformed request"}
	ErrChannelUnavailable   = &Error{Kind: KindChannelUnavailable, Message: "channel unavailable"}
	ErrTimeout              = &Error{Kind: KindTimeout, Message: "no response received"}
	ErrUnknownCorrelation   = &Error{Kind: KindUnknownCorrelation, Message: "unknown correlation id"}
	ErrInternal             = &Error{Kind: KindInternal, Message: MessageProcessingError}
)

func NewDivisionByZero() *Error {
	return &Error{Kind: KindDivisionByZero, Message: MessageDivisionByZero}
}

func NewUnsupportedOperation(tag string) *Error {
	return &Error{Kind: KindUnsupportedOperation, Tag: tag, Message: MessageUnsupportedPrefix + tag}
}

// NewInvalidNumber reports an operand that is not a decimal number.
func NewInvalidNumber(err error) *Error {
	return &Error{Kind: KindMalformedRequest, Message: MessageInvalidNumberFormat, Err: err}
}

// NewOperandOutOfRange reports a well-formed operand too large or too small to evaluate.
func NewOperandOutOfRange(adjusted int64) *Error {
	return &Error{
		Kind:    KindMalformedRequest,
		Message: MessageOperandOutOfRange,
		Err:     fmt.Errorf("exponent %d outside ±%d", adjusted, MaxOperandExponent),
	}
}

// NewMalformedRequest reports a structurally broken message (field count, missing id).
func NewMalformedRequest(format string, args ...interface{}) *Error {
	return &Error{Kind: KindMalformedRequest, Message: fmt.Sprintf(format, args...)}
}

func NewChannelUnavailable(err error) *Error {
	return &Error{Kind: KindChannelUnavailable, Message: fmt.Sprintf("channel unavailable: %v", err), Err: err}
}

func NewTimeout(format string, args ...interface{}) *Error {
	return &Error{Kind: KindTimeout, Message: fmt.Sprintf(format, args...)}
}

func NewInternal(err error) *Error {
	return &Error{Kind: KindInternal, Message: MessageProcessingError, Err: err}
}

// ErrorFromMessage classifies a failure text received on the wire. Unrecognized text is
// kept verbatim as an internal failure so callers still see what the evaluator said.
func ErrorFromMessage(msg string) *Error {
	text := strings.TrimSpace(msg)
	switch {
	case text == MessageDivisionByZero:
		return NewDivisionByZero()
	case text == MessageInvalidNumberFormat:
		return &Error{Kind: KindMalformedRequest, Message: MessageInvalidNumberFormat}
	case text == MessageOperandOutOfRange:
		return &Error{Kind: KindMalformedRequest, Message: MessageOperandOutOfRange}
	case strings.HasPrefix(text, MessageUnsupportedPrefix):
		return NewUnsupportedOperation(strings.TrimPrefix(text, MessageUnsupportedPrefix))
	case text == MessageProcessingError:
		return &Error{Kind: KindInternal, Message: MessageProcessingError}
	default:
		return &Error{Kind: KindInternal, Message: text}
	}
}

// ErrorFromKind rebuilds a typed error from a structured (kind, message) pair.
func ErrorFromKind(kind ErrorKind, msg string) *Error {
	switch kind {
	case KindUnsupportedOperation:
		return NewUnsupportedOperation(strings.TrimPrefix(msg, MessageUnsupportedPrefix))
	case KindDivisionByZero, KindMalformedRequest, KindInternal:
		return &Error{Kind: kind, Message: msg}
	default:
		return &Error{Kind: KindInternal, Message: msg}
	}
}

// IsArithmetic reports whether err was computed by the evaluator and is therefore a caller mistake.
func IsArithmetic(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	switch e.Kind {
	case KindDivisionByZero, KindUnsupportedOperation, KindMalformedRequest:
		return true
	}
	return false
}
