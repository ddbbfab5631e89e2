package service

import (
	"context"

	"github.com/shopspring/decimal"

	"calcbridge/pkg/apiserver/domain/model"
)

// Executor performs one correlated request over the messaging bridge.
type Executor interface {
	Execute(ctx context.Context, op string, a, b decimal.Decimal) (string, decimal.Decimal, error)
}

// OperationResult is what the front door reports for one call.
type OperationResult struct {
	CorrelationID string
	Operation     model.Operation
	Value         decimal.Decimal
}

// OperationService is the gateway side entry point used by the HTTP API.
type OperationService interface {
	Calculate(ctx context.Context, op string, a, b decimal.Decimal) (*OperationResult, error)
}

type operationServiceImpl struct {
	Executor Executor `inject:"correlator"`
}

// NewOperationService new operation service
func NewOperationService() OperationService {
	return &operationServiceImpl{}
}

// Calculate validates the tag locally and waits for the remote outcome. The returned result
// carries the correlation id even on failure so callers can report it.
func (o *operationServiceImpl) Calculate(ctx context.Context, op string, a, b decimal.Decimal) (*OperationResult, error) {
	canonical, err := model.ParseOperation(op)
	if err != nil {
		return nil, err
	}
	id, v, err := o.Executor.Execute(ctx, string(canonical), a, b)
	res := &OperationResult{CorrelationID: id, Operation: canonical, Value: v}
	return res, err
}
