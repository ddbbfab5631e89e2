package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/cockroachdb/apd/v2"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"k8s.io/klog/v2"

	"calcbridge/pkg/apiserver/domain/model"
)

// Precision is the number of significant digits kept by every operation.
const Precision = 10

// CalculatorService evaluates operation requests on the calculator side.
type CalculatorService interface {
	// Evaluate never fails: every problem is reported as a failure outcome.
	Evaluate(ctx context.Context, req model.OperationRequest) model.Outcome
}

type calculatorServiceImpl struct{}

// NewCalculatorService new calculator service
func NewCalculatorService() CalculatorService {
	return &calculatorServiceImpl{}
}

func (c *calculatorServiceImpl) Evaluate(ctx context.Context, req model.OperationRequest) (out model.Outcome) {
	_, span := otel.Tracer("calcbridge/calculator").Start(ctx, "calculator.evaluate")
	span.SetAttributes(
		attribute.String("calc.correlation_id", req.CorrelationID),
		attribute.String("calc.operation", string(req.Operation)),
	)
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			klog.ErrorS(fmt.Errorf("%v", r), "panic while evaluating request", "correlationID", req.CorrelationID)
			out = model.Failure(req.CorrelationID, model.NewInternal(fmt.Errorf("panic: %v", r)))
		}
		if out.Err != nil {
			span.SetStatus(codes.Error, out.Err.Message)
		}
	}()

	op, err := model.ParseOperation(string(req.Operation))
	if err != nil {
		return model.Failure(req.CorrelationID, toModelError(err))
	}
	v, err := Compute(op, req.OperandA, req.OperandB)
	if err != nil {
		return model.Failure(req.CorrelationID, toModelError(err))
	}
	return model.Success(req.CorrelationID, v)
}

func toModelError(err error) *model.Error {
	var e *model.Error
	if errors.As(err, &e) {
		return e
	}
	return model.NewInternal(err)
}

// Compute applies op to a and b rounding half up to Precision significant digits.
func Compute(op model.Operation, a, b decimal.Decimal) (decimal.Decimal, error) {
	x, err := toAPD(a)
	if err != nil {
		return decimal.Zero, err
	}
	y, err := toAPD(b)
	if err != nil {
		return decimal.Zero, err
	}

	ctx := apd.BaseContext.WithPrecision(Precision)
	ctx.Rounding = apd.RoundHalfUp

	res := new(apd.Decimal)
	switch op {
	case model.OperationAdd:
		_, err = ctx.Add(res, x, y)
	case model.OperationSubtract:
		_, err = ctx.Sub(res, x, y)
	case model.OperationMultiply:
		_, err = ctx.Mul(res, x, y)
	case model.OperationDivide:
		if y.IsZero() {
			return decimal.Zero, model.NewDivisionByZero()
		}
		_, err = ctx.Quo(res, x, y)
	default:
		return decimal.Zero, model.NewUnsupportedOperation(string(op))
	}
	if err != nil {
		return decimal.Zero, model.NewInternal(err)
	}
	if res.Form != apd.Finite {
		return decimal.Zero, model.NewInternal(fmt.Errorf("non-finite result %s", res.String()))
	}
	return fromAPD(res), nil
}

func toAPD(d decimal.Decimal) (*apd.Decimal, error) {
	if err := model.CheckOperand(d); err != nil {
		return nil, err
	}
	return apd.NewWithBigInt(d.Coefficient(), d.Exponent()), nil
}

func fromAPD(v *apd.Decimal) decimal.Decimal {
	d := decimal.NewFromBigInt(&v.Coeff, v.Exponent)
	if v.Negative {
		return d.Neg()
	}
	return d
}
