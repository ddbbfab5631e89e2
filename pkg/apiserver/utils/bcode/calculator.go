package bcode

// ErrDivisionByZero the divisor was zero
var ErrDivisionByZero = NewBcode(400, 10001, "Division by zero is not allowed")

// ErrUnsupportedOperation the operation tag is not one of the four supported operations
var ErrUnsupportedOperation = NewBcode(400, 10002, "Operation not supported")

// ErrInvalidOperand an operand is missing or is not a decimal number
var ErrInvalidOperand = NewBcode(400, 10003, "Invalid number format")

// ErrMalformedRequest the request could not be put on the wire
var ErrMalformedRequest = NewBcode(400, 10004, "malformed request")

// ErrChannelUnavailable the broker rejected the request or the bridge is shutting down
var ErrChannelUnavailable = NewBcode(503, 20001, "messaging channel unavailable")

// ErrTimeout no outcome arrived before the request deadline
var ErrTimeout = NewBcode(504, 20002, "request timed out")
