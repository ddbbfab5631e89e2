package model

import (
	"github.com/shopspring/decimal"
)

// Outcome is the result of evaluating one OperationRequest: either a value or a failure.
type Outcome struct {
	CorrelationID string
	Value         decimal.Decimal
	Err           *Error
}

// Success builds a successful outcome.
func Success(id string, value decimal.Decimal) Outcome {
	return Outcome{CorrelationID: id, Value: value}
}

// Failure builds a failed outcome.
func Failure(id string, err *Error) Outcome {
	if err == nil {
		err = &Error{Kind: KindInternal, Message: MessageProcessingError}
	}
	return Outcome{CorrelationID: id, Err: err}
}

// Failed reports whether the outcome carries an error.
func (o Outcome) Failed() bool { return o.Err != nil }

// Result unpacks the outcome into Go's value/error convention.
func (o Outcome) Result() (decimal.Decimal, error) {
	if o.Err != nil {
		return decimal.Zero, o.Err
	}
	return o.Value, nil
}

// WithID returns a copy of the outcome addressed to id.
func (o Outcome) WithID(id string) Outcome {
	o.CorrelationID = id
	return o
}
