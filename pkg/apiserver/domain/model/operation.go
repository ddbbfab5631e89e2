package model

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Operation is the canonical tag of an arithmetic operation.
type Operation string

const (
	OperationAdd      Operation = "add"
	OperationSubtract Operation = "subtract"
	OperationMultiply Operation = "multiply"
	OperationDivide   Operation = "divide"
)

// operationAliases maps every accepted lexical form to its canonical tag.
// The long forms are the names used by the legacy front door and evaluator.
var operationAliases = map[string]Operation{
	"add":            OperationAdd,
	"sum":            OperationAdd,
	"subtract":       OperationSubtract,
	"subtraction":    OperationSubtract,
	"multiply":       OperationMultiply,
	"multiplication": OperationMultiply,
	"divide":         OperationDivide,
	"division":       OperationDivide,
}

// NormalizeTag trims and lower-cases an operation tag without validating it.
func NormalizeTag(tag string) string {
	return strings.ToLower(strings.TrimSpace(tag))
}

// ParseOperation resolves tag (case-insensitive, trimmed) to its canonical operation.
// Unknown tags fail with an UnsupportedOperation error carrying the normalized tag.
func ParseOperation(tag string) (Operation, error) {
	norm := NormalizeTag(tag)
	if op, ok := operationAliases[norm]; ok {
		return op, nil
	}
	return "", NewUnsupportedOperation(norm)
}

// OperationTags returns every accepted tag, canonical forms and aliases alike.
func OperationTags() []string {
	tags := make([]string, 0, len(operationAliases))
	for tag := range operationAliases {
		tags = append(tags, tag)
	}
	return tags
}

// OperationRequest is the message sent to the evaluating side. It is never mutated after construction.
type OperationRequest struct {
	CorrelationID string
	OperandA      decimal.Decimal
	OperandB      decimal.Decimal
	// Operation holds the normalized tag as received; it is validated by the evaluator.
	Operation Operation
}

// NewOperationRequest builds a request, normalizing the operation tag.
func NewOperationRequest(id string, a, b decimal.Decimal, op string) OperationRequest {
	return OperationRequest{
		CorrelationID: strings.TrimSpace(id),
		OperandA:      a,
		OperandB:      b,
		Operation:     Operation(NormalizeTag(op)),
	}
}
