package service

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calcbridge/pkg/apiserver/config"
	"calcbridge/pkg/apiserver/domain/model"
)

type fakeExecutor struct {
	op string
}

func (f *fakeExecutor) Execute(ctx context.Context, op string, a, b decimal.Decimal) (string, decimal.Decimal, error) {
	f.op = op
	v, err := Compute(model.Operation(op), a, b)
	return "id-1", v, err
}

func TestCalculateSendsCanonicalTag(t *testing.T) {
	exec := &fakeExecutor{}
	svc := &operationServiceImpl{Executor: exec}

	res, err := svc.Calculate(context.Background(), " Division ", decimal.NewFromInt(10), decimal.NewFromInt(4))
	require.NoError(t, err)
	assert.Equal(t, "divide", exec.op)
	assert.Equal(t, model.OperationDivide, res.Operation)
	assert.Equal(t, "id-1", res.CorrelationID)
	assert.Equal(t, "2.5", res.Value.String())
}

func TestCalculateKeepsIDOnFailure(t *testing.T) {
	svc := &operationServiceImpl{Executor: &fakeExecutor{}}
	res, err := svc.Calculate(context.Background(), "divide", decimal.NewFromInt(1), decimal.Zero)
	require.ErrorIs(t, err, model.ErrDivisionByZero)
	require.NotNil(t, res)
	assert.Equal(t, "id-1", res.CorrelationID)
}

func TestCalculateRejectsUnknownTagLocally(t *testing.T) {
	exec := &fakeExecutor{}
	svc := &operationServiceImpl{Executor: exec}
	_, err := svc.Calculate(context.Background(), "mod", decimal.NewFromInt(1), decimal.NewFromInt(2))
	require.ErrorIs(t, err, model.NewUnsupportedOperation("mod"))
	assert.Empty(t, exec.op)
}

func TestInitServiceBeanByRole(t *testing.T) {
	cfg := *config.NewConfig()
	assert.Len(t, InitServiceBean(cfg), 2)
	cfg.Role = config.RoleGateway
	beans := InitServiceBean(cfg)
	require.Len(t, beans, 1)
	assert.Implements(t, (*OperationService)(nil), beans[0])
	cfg.Role = config.RoleCalculator
	beans = InitServiceBean(cfg)
	require.Len(t, beans, 1)
	assert.Implements(t, (*CalculatorService)(nil), beans[0])
}
