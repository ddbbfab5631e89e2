package wire

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"

	"calcbridge/pkg/apiserver/domain/model"
)

type jsonRequest struct {
	ID string `json:"id"`
	A  string `json:"a"`
	B  string `json:"b"`
	Op string `json:"op"`
}

type jsonError struct {
	Kind    model.ErrorKind `json:"kind"`
	Message string          `json:"message"`
}

type jsonOutcome struct {
	ID     string     `json:"id"`
	Result *string    `json:"result,omitempty"`
	Error  *jsonError `json:"error,omitempty"`
}

// JSONRequestCodec reads and writes {"id","a","b","op"}; operands are strings to keep precision.
type JSONRequestCodec struct{}

func (JSONRequestCodec) Encode(req model.OperationRequest) ([]byte, error) {
	if strings.TrimSpace(req.CorrelationID) == "" {
		return nil, model.NewMalformedRequest("correlation id %q cannot be encoded", req.CorrelationID)
	}
	if err := checkOperands(req); err != nil {
		return nil, err
	}
	return json.Marshal(jsonRequest{
		ID: req.CorrelationID,
		A:  req.OperandA.String(),
		B:  req.OperandB.String(),
		Op: string(req.Operation),
	})
}

func (JSONRequestCodec) Decode(payload []byte) (model.OperationRequest, error) {
	var in jsonRequest
	if err := json.Unmarshal(payload, &in); err != nil {
		return model.OperationRequest{}, dropped("invalid json: %v", err)
	}
	id := strings.TrimSpace(in.ID)
	if id == "" {
		return model.OperationRequest{}, dropped("blank correlation id")
	}
	a, err := decimal.NewFromString(strings.TrimSpace(in.A))
	if err != nil {
		return model.OperationRequest{CorrelationID: id}, &DecodeError{ID: id, Err: model.NewInvalidNumber(err)}
	}
	b, err := decimal.NewFromString(strings.TrimSpace(in.B))
	if err != nil {
		return model.OperationRequest{CorrelationID: id}, &DecodeError{ID: id, Err: model.NewInvalidNumber(err)}
	}
	req := model.NewOperationRequest(id, a, b, in.Op)
	if err := checkOperands(req); err != nil {
		return model.OperationRequest{CorrelationID: id}, &DecodeError{ID: id, Err: err}
	}
	return req, nil
}

// JSONOutcomeCodec reads and writes {"id","result"} or {"id","error":{"kind","message"}}.
type JSONOutcomeCodec struct{}

func (JSONOutcomeCodec) Encode(o model.Outcome) ([]byte, error) {
	out := jsonOutcome{ID: o.CorrelationID}
	if o.Err != nil {
		out.Error = &jsonError{Kind: o.Err.Kind, Message: o.Err.Message}
	} else {
		v := o.Value.String()
		out.Result = &v
	}
	return json.Marshal(out)
}

func (JSONOutcomeCodec) Decode(payload []byte) (model.Outcome, error) {
	var in jsonOutcome
	if err := json.Unmarshal(payload, &in); err != nil {
		return model.Outcome{}, model.NewMalformedRequest("invalid json outcome: %v", err)
	}
	if in.Error != nil {
		return model.Failure(in.ID, model.ErrorFromKind(in.Error.Kind, in.Error.Message)), nil
	}
	if in.Result == nil {
		return model.Outcome{CorrelationID: in.ID}, model.NewMalformedRequest("outcome %s has neither result nor error", in.ID)
	}
	v, err := decimal.NewFromString(*in.Result)
	if err != nil {
		return model.Outcome{CorrelationID: in.ID}, model.NewInvalidNumber(err)
	}
	if rerr := model.CheckResult(v); rerr != nil {
		return model.Failure(in.ID, rerr), nil
	}
	return model.Success(in.ID, v), nil
}
