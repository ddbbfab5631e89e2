package bcode

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"calcbridge/pkg/apiserver/domain/model"
)

// Bcode business error code
type Bcode struct {
	HTTPCode     int32  `json:"-"`
	BusinessCode int32  `json:"code"`
	Message      string `json:"error"`
}

func (b Bcode) Error() string {
	return fmt.Sprintf("HTTPCode:%d BusinessCode:%d Message:%s", b.HTTPCode, b.BusinessCode, b.Message)
}

var bcodeMap map[int32]*Bcode

// NewBcode new business code
func NewBcode(httpCode, businessCode int32, message string) *Bcode {
	if bcodeMap == nil {
		bcodeMap = make(map[int32]*Bcode)
	}
	if _, exit := bcodeMap[businessCode]; exit {
		panic("bcode business code is exist")
	}
	bcode := &Bcode{HTTPCode: httpCode, BusinessCode: businessCode, Message: message}
	bcodeMap[businessCode] = bcode
	return bcode
}

// WithMessage copies b with a request specific message.
func (b *Bcode) WithMessage(msg string) *Bcode {
	c := *b
	c.Message = msg
	return &c
}

// FromModelError maps a domain failure to its business code. The message is kept as is.
func FromModelError(e *model.Error) *Bcode {
	var base *Bcode
	switch e.Kind {
	case model.KindDivisionByZero:
		base = ErrDivisionByZero
	case model.KindUnsupportedOperation:
		base = ErrUnsupportedOperation
	case model.KindMalformedRequest:
		base = ErrMalformedRequest
	case model.KindTimeout:
		base = ErrTimeout
	case model.KindChannelUnavailable:
		base = ErrChannelUnavailable
	default:
		base = ErrServer
	}
	if e.Message == "" {
		return base
	}
	return base.WithMessage(e.Message)
}

// ReturnError Unified handling of all types of errors, generating a standard return structure.
func ReturnError(c *gin.Context, err error) {
	var bcode *Bcode
	if errors.As(err, &bcode) {
		c.JSON(int(bcode.HTTPCode), bcode)
		return
	}

	var modelErr *model.Error
	if errors.As(err, &modelErr) {
		b := FromModelError(modelErr)
		c.JSON(int(b.HTTPCode), b)
		return
	}

	var validErr validator.ValidationErrors
	if errors.As(err, &validErr) {
		c.JSON(http.StatusBadRequest, ErrInvalidOperand.WithMessage(err.Error()))
		return
	}

	c.JSON(http.StatusInternalServerError, ErrServer.WithMessage(err.Error()))
}

// ErrServer an unexpected mistake.
var ErrServer = NewBcode(500, 500, "Error in processing request")

// ErrNotFound the request resource is not found
var ErrNotFound = NewBcode(404, 404, "404 Not Found")
