package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calcbridge/pkg/apiserver/domain/model"
	"calcbridge/pkg/apiserver/domain/service"
)

type fakeOperationService struct {
	lastOp string
	value  decimal.Decimal
	err    error
}

func (f *fakeOperationService) Calculate(ctx context.Context, op string, a, b decimal.Decimal) (*service.OperationResult, error) {
	f.lastOp = op
	canonical, err := model.ParseOperation(op)
	if err != nil {
		return nil, err
	}
	return &service.OperationResult{CorrelationID: "corr-1", Operation: canonical, Value: f.value}, f.err
}

func calculatorRouter(svc service.OperationService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	c := &calculator{OperationService: svc}
	for _, prefix := range GetAPIPrefix() {
		c.RegisterRoutes(r.Group(prefix))
	}
	return r
}

func get(r *gin.Engine, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCalculatorReturnsResultAsNumber(t *testing.T) {
	svc := &fakeOperationService{value: decimal.RequireFromString("3.333333333")}
	r := calculatorRouter(svc)

	w := get(r, "/api/v1/division?a=10&b=3")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"result":3.333333333}`, w.Body.String())
	assert.Equal(t, "corr-1", w.Header().Get(RequestIDHeader))
	assert.Equal(t, "division", svc.lastOp)
}

func TestCalculatorServesEveryAliasOnBothPrefixes(t *testing.T) {
	r := calculatorRouter(&fakeOperationService{value: decimal.NewFromInt(5)})
	for _, prefix := range []string{"/api/v1", "/api"} {
		for _, tag := range []string{"sum", "add", "subtraction", "subtract", "multiplication", "multiply", "division", "divide"} {
			w := get(r, prefix+"/"+tag+"?a=1&b=2")
			assert.Equal(t, http.StatusOK, w.Code, prefix+"/"+tag)
		}
	}
	assert.Equal(t, http.StatusNotFound, get(r, "/api/v1/mod?a=1&b=2").Code)
}

func TestCalculatorRejectsBadOperands(t *testing.T) {
	r := calculatorRouter(&fakeOperationService{})

	w := get(r, "/api/v1/add?a=1")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = get(r, "/api/v1/add?a=one&b=2")
	require.Equal(t, http.StatusBadRequest, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Invalid number format", body["error"])
}

func TestCalculatorRejectsOperandsOutOfRange(t *testing.T) {
	svc := &fakeOperationService{value: decimal.NewFromInt(1)}
	r := calculatorRouter(svc)

	for _, q := range []string{"a=1e2000000000&b=1", "a=1&b=1e-2000000000", "a=0e20000&b=1"} {
		w := get(r, "/api/v1/add?"+q)
		require.Equal(t, http.StatusBadRequest, w.Code, q)
		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Contains(t, body["error"], model.MessageOperandOutOfRange, q)
		assert.EqualValues(t, 10003, body["code"], q)
	}
	assert.Empty(t, svc.lastOp)

	w := get(r, "/api/v1/add?a=9.99e9999&b=1")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCalculatorMapsFailures(t *testing.T) {
	cases := []struct {
		err    error
		status int
		msg    string
	}{
		{model.NewDivisionByZero(), http.StatusBadRequest, "Division by zero is not allowed"},
		{model.NewTimeout("no response within %s", "30s"), http.StatusGatewayTimeout, "no response within 30s"},
		{model.NewChannelUnavailable(errors.New("broker down")), http.StatusServiceUnavailable, ""},
		{model.NewInternal(errors.New("boom")), http.StatusInternalServerError, "Error in processing request"},
	}
	for _, tc := range cases {
		r := calculatorRouter(&fakeOperationService{err: tc.err})
		w := get(r, "/api/v1/divide?a=5&b=0")
		assert.Equal(t, tc.status, w.Code, tc.err.Error())
		assert.Equal(t, "corr-1", w.Header().Get(RequestIDHeader))
		if tc.msg != "" {
			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tc.msg, body["error"])
		}
	}
}
