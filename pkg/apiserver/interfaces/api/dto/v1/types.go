package v1

import "encoding/json"

// OperationQuery carries the two operands of an arithmetic call.
type OperationQuery struct {
	A string `form:"a" binding:"required"`
	B string `form:"b" binding:"required"`
}

// OperationResponse is the success body. Result is written as a JSON number in plain notation.
type OperationResponse struct {
	Result json.Number `json:"result"`
}

// HealthResponse is returned by the liveness probe.
type HealthResponse struct {
	Status string `json:"status"`
}

// ReadyResponse is returned by the readiness probe.
type ReadyResponse struct {
	Status string                 `json:"status"`
	Role   string                 `json:"role,omitempty"`
	Error  string                 `json:"error,omitempty"`
	Stats  map[string]interface{} `json:"stats,omitempty"`
}
