package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calcbridge/pkg/apiserver/domain/model"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCompute(t *testing.T) {
	tests := []struct {
		op   model.Operation
		a, b string
		want string
	}{
		{model.OperationDivide, "10", "2", "5"},
		{model.OperationDivide, "10", "3", "3.333333333"},
		{model.OperationDivide, "2", "3", "0.6666666667"},
		{model.OperationMultiply, "123456789", "987654321", "121932631100000000"},
		{model.OperationAdd, "0.12345678905", "0", "0.1234567891"},
		{model.OperationAdd, "1.5", "2.25", "3.75"},
		{model.OperationSubtract, "1", "3", "-2"},
		{model.OperationSubtract, "0.3", "0.1", "0.2"},
		{model.OperationMultiply, "-1", "0", "0"},
		{model.OperationDivide, "-1", "3", "-0.3333333333"},
		{model.OperationAdd, "9999999999", "1", "10000000000"},
		{model.OperationAdd, "99999999995", "0", "100000000000"},
	}
	for _, tt := range tests {
		t.Run(string(tt.op)+" "+tt.a+" "+tt.b, func(t *testing.T) {
			got, err := Compute(tt.op, dec(tt.a), dec(tt.b))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestComputeDivisionByZero(t *testing.T) {
	_, err := Compute(model.OperationDivide, dec("1"), dec("0.000"))
	require.ErrorIs(t, err, model.ErrDivisionByZero)
}

func TestComputeBoundsOperandExponent(t *testing.T) {
	for _, huge := range []string{"1e1000000", "1e5000000", "1e-2000000000", "1e10000"} {
		start := time.Now()
		_, err := Compute(model.OperationAdd, dec(huge), dec("1"))
		require.ErrorIs(t, err, model.ErrMalformedRequest, huge)
		var e *model.Error
		require.True(t, errors.As(err, &e))
		assert.Equal(t, model.MessageOperandOutOfRange, e.Message)
		assert.Less(t, time.Since(start), time.Second, huge)
	}

	got, err := Compute(model.OperationMultiply, dec("9.99e9999"), dec("9.99e9999"))
	require.NoError(t, err)
	assert.EqualValues(t, 19999, model.AdjustedExponent(got))
	assert.Nil(t, model.CheckResult(got))

	got, err = Compute(model.OperationDivide, dec("1e9999"), dec("3e-9999"))
	require.NoError(t, err)
	assert.EqualValues(t, 19997, model.AdjustedExponent(got))
	assert.Equal(t, "3333333333", got.Coefficient().String())

	got, err = Compute(model.OperationAdd, dec("1e9999"), dec("1"))
	require.NoError(t, err)
	assert.True(t, got.Equal(dec("1e9999")))
}

func TestEvaluate(t *testing.T) {
	svc := NewCalculatorService()
	ctx := context.Background()

	out := svc.Evaluate(ctx, model.NewOperationRequest("a", dec("10"), dec("4"), "Division"))
	require.False(t, out.Failed())
	assert.Equal(t, "a", out.CorrelationID)
	assert.Equal(t, "2.5", out.Value.String())

	out = svc.Evaluate(ctx, model.NewOperationRequest("b", dec("1"), dec("2"), "mod"))
	require.True(t, out.Failed())
	assert.Equal(t, "b", out.CorrelationID)
	assert.ErrorIs(t, out.Err, &model.Error{Kind: model.KindUnsupportedOperation, Tag: "mod"})
	assert.Equal(t, "Operation not supported: mod", out.Err.Message)

	out = svc.Evaluate(ctx, model.NewOperationRequest("c", dec("1"), dec("0"), "divide"))
	require.True(t, out.Failed())
	assert.Equal(t, model.MessageDivisionByZero, out.Err.Message)
}

type recordingExecutor struct {
	gotOp string
	id    string
	val   decimal.Decimal
	err   error
}

func (f *recordingExecutor) Execute(ctx context.Context, op string, a, b decimal.Decimal) (string, decimal.Decimal, error) {
	f.gotOp = op
	return f.id, f.val, f.err
}

func TestOperationServiceCalculate(t *testing.T) {
	exec := &recordingExecutor{id: "id-1", val: dec("3")}
	svc := &operationServiceImpl{Executor: exec}

	res, err := svc.Calculate(context.Background(), " SUM ", dec("1"), dec("2"))
	require.NoError(t, err)
	assert.Equal(t, "add", exec.gotOp)
	assert.Equal(t, "id-1", res.CorrelationID)
	assert.Equal(t, model.OperationAdd, res.Operation)

	exec.gotOp = ""
	_, err = svc.Calculate(context.Background(), "mod", dec("1"), dec("2"))
	require.ErrorIs(t, err, model.ErrUnsupportedOperation)
	assert.Empty(t, exec.gotOp, "unsupported tags never reach the bridge")

	exec.err = model.NewTimeout("no response for %s", "id-2")
	exec.id = "id-2"
	res, err = svc.Calculate(context.Background(), "divide", dec("1"), dec("2"))
	require.ErrorIs(t, err, model.ErrTimeout)
	assert.Equal(t, "id-2", res.CorrelationID)
}
