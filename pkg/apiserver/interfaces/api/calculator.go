package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"k8s.io/klog/v2"

	"calcbridge/pkg/apiserver/domain/model"
	"calcbridge/pkg/apiserver/domain/service"
	apis "calcbridge/pkg/apiserver/interfaces/api/dto/v1"
	"calcbridge/pkg/apiserver/utils/bcode"
)

// RequestIDHeader carries the correlation id of the call back to the client.
const RequestIDHeader = "X-Request-ID"

type calculator struct {
	OperationService service.OperationService `inject:""`
}

// NewCalculator new arithmetic front door
func NewCalculator() Interface {
	return &calculator{}
}

func (c *calculator) RegisterRoutes(group *gin.RouterGroup) {
	for _, tag := range model.OperationTags() {
		group.GET("/"+tag, c.calculate(tag))
	}
}

func (c *calculator) calculate(tag string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		var q apis.OperationQuery
		if err := ctx.ShouldBindQuery(&q); err != nil {
			bcode.ReturnError(ctx, err)
			return
		}
		a, berr := parseOperand("a", q.A)
		if berr != nil {
			bcode.ReturnError(ctx, berr)
			return
		}
		b, berr := parseOperand("b", q.B)
		if berr != nil {
			bcode.ReturnError(ctx, berr)
			return
		}

		res, err := c.OperationService.Calculate(ctx.Request.Context(), tag, a, b)
		if res != nil && res.CorrelationID != "" {
			ctx.Header(RequestIDHeader, res.CorrelationID)
		}
		if err != nil {
			if !model.IsArithmetic(err) {
				klog.ErrorS(err, "calculation failed", "operation", tag)
			}
			bcode.ReturnError(ctx, err)
			return
		}
		ctx.JSON(http.StatusOK, apis.OperationResponse{Result: json.Number(res.Value.String())})
	}
}

// parseOperand reads a query operand and bounds its exponent before anything expands it.
func parseOperand(name, raw string) (decimal.Decimal, *bcode.Bcode) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, bcode.ErrInvalidOperand
	}
	if e := model.CheckOperand(d); e != nil {
		return decimal.Zero, bcode.ErrInvalidOperand.WithMessage(fmt.Sprintf("%s: %s (%v)", e.Message, name, e.Err))
	}
	return d, nil
}
