package wire

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"calcbridge/pkg/apiserver/domain/model"
)

const legacyFieldCount = 4

// LegacyRequestCodec reads and writes `correlationId,operandA,operandB,operation`.
type LegacyRequestCodec struct{}

func (LegacyRequestCodec) Encode(req model.OperationRequest) ([]byte, error) {
	if strings.TrimSpace(req.CorrelationID) == "" || strings.Contains(req.CorrelationID, ",") {
		return nil, model.NewMalformedRequest("correlation id %q cannot be encoded", req.CorrelationID)
	}
	if err := checkOperands(req); err != nil {
		return nil, err
	}
	line := strings.Join([]string{
		req.CorrelationID,
		req.OperandA.String(),
		req.OperandB.String(),
		string(req.Operation),
	}, ",")
	return []byte(line), nil
}

// Decode parses operands before looking at the operation, so a request with both a bad
// number and an unknown operation reports the number. Unknown operations decode fine.
// Trailing empty fields are ignored, so `id,1,2,` has three fields and is dropped.
func (LegacyRequestCodec) Decode(payload []byte) (model.OperationRequest, error) {
	parts := splitFields(string(payload))
	if len(parts) != legacyFieldCount {
		return model.OperationRequest{}, dropped("expected %d fields, got %d", legacyFieldCount, len(parts))
	}
	id := strings.TrimSpace(parts[0])
	if id == "" {
		return model.OperationRequest{}, dropped("blank correlation id")
	}
	a, err := decimal.NewFromString(strings.TrimSpace(parts[1]))
	if err != nil {
		return model.OperationRequest{CorrelationID: id}, &DecodeError{ID: id, Err: model.NewInvalidNumber(err)}
	}
	b, err := decimal.NewFromString(strings.TrimSpace(parts[2]))
	if err != nil {
		return model.OperationRequest{CorrelationID: id}, &DecodeError{ID: id, Err: model.NewInvalidNumber(err)}
	}
	req := model.NewOperationRequest(id, a, b, parts[3])
	if err := checkOperands(req); err != nil {
		return model.OperationRequest{CorrelationID: id}, &DecodeError{ID: id, Err: err}
	}
	return req, nil
}

func splitFields(line string) []string {
	parts := strings.Split(line, ",")
	for len(parts) > 0 && parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	return parts
}

// LegacyOutcomeCodec writes the bare decimal on success or the failure message.
// The correlation id travels only as the message key.
type LegacyOutcomeCodec struct{}

func (LegacyOutcomeCodec) Encode(o model.Outcome) ([]byte, error) {
	if o.Err != nil {
		if o.Err.Message == "" {
			return nil, fmt.Errorf("outcome %s has an empty failure message", o.CorrelationID)
		}
		return []byte(o.Err.Message), nil
	}
	return []byte(o.Value.String()), nil
}

// Decode never fails: text that is not a decimal is a failure message.
func (LegacyOutcomeCodec) Decode(payload []byte) (model.Outcome, error) {
	text := strings.TrimSpace(string(payload))
	if v, err := decimal.NewFromString(text); err == nil {
		if rerr := model.CheckResult(v); rerr != nil {
			return model.Failure("", rerr), nil
		}
		return model.Success("", v), nil
	}
	return model.Failure("", model.ErrorFromMessage(text)), nil
}
