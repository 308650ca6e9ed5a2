package app

import (
	"fmt"
	"sort"
	"strings"
)

// Operation status values stored in the ledger's operations table.
const (
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusError   = "error"
)

// Operation tracks one CLI run that may mutate a ledger.
// Operations are created in memory with ID=0. Only mutating runs persist
// them, which gives them an auto-increment ID from the ledger they changed.
type Operation struct {
	ID         int64
	Name       string
	Parameters string
	Status     string
}

// NewOperation creates a new in-memory operation. params are rendered as
// sorted key=value pairs.
func NewOperation(name string, params map[string]any) *Operation {
	return &Operation{
		Name:       name,
		Parameters: FormatParameters(params),
		Status:     StatusSuccess,
	}
}

// Persisted returns true if this operation has been saved to a ledger.
func (op *Operation) Persisted() bool {
	return op.ID != 0
}

// Record marks the operation failed when err is non-nil and returns err.
func (op *Operation) Record(err error) error {
	if err != nil {
		op.Status = StatusError
	}
	return err
}

// FormatParameters renders params as "k1=v1 k2=v2" with keys sorted.
func FormatParameters(params map[string]any) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, params[k])
	}
	return strings.Join(parts, " ")
}
