package photodb

import (
	"context"
	"fmt"

	"photodb/internal/model"
)

// GetHistory returns the most recent operations recorded in a ledger, newest first.
func (s *PhotoService) GetHistory(ctx context.Context, ledger Ledger, limit int) ([]*model.Operation, error) {
	ops, err := ledger.ListOperations(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	return ops, nil
}
