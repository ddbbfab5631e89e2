// Package wire holds the payload codecs used on the request and response topics.
package wire

import (
	"fmt"

	"calcbridge/pkg/apiserver/domain/model"
	"calcbridge/pkg/apiserver/infrastructure/messaging"
)

const (
	FormatLegacy = "legacy"
	FormatJSON   = "json"
)

// Format pairs the request and outcome codecs of one wire format.
type Format struct {
	Name     string
	Requests messaging.MessageCodec[model.OperationRequest]
	Outcomes messaging.MessageCodec[model.Outcome]
}

// Lookup returns the format registered under name.
func Lookup(name string) (Format, error) {
	switch name {
	case FormatLegacy, "":
		return Format{Name: FormatLegacy, Requests: LegacyRequestCodec{}, Outcomes: LegacyOutcomeCodec{}}, nil
	case FormatJSON:
		return Format{Name: FormatJSON, Requests: JSONRequestCodec{}, Outcomes: JSONOutcomeCodec{}}, nil
	default:
		return Format{}, fmt.Errorf("unknown wire format %q", name)
	}
}

// DecodeError reports a request payload that could not be decoded.
// ID is empty when the correlation id itself could not be recovered; such requests get no reply.
type DecodeError struct {
	ID  string
	Err *model.Error
}

func (e *DecodeError) Error() string {
	if e.ID == "" {
		return "undecodable request: " + e.Err.Error()
	}
	return fmt.Sprintf("undecodable request %s: %s", e.ID, e.Err.Error())
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Answerable reports whether a failure outcome can be sent back for this request.
func (e *DecodeError) Answerable() bool { return e.ID != "" }

func checkOperands(req model.OperationRequest) *model.Error {
	if err := model.CheckOperand(req.OperandA); err != nil {
		return err
	}
	return model.CheckOperand(req.OperandB)
}

func dropped(format string, args ...interface{}) *DecodeError {
	return &DecodeError{Err: model.NewMalformedRequest(format, args...)}
}
