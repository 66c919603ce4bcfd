package storage

import (
	"context"

	"aoratos/internal/model"
)

// Store persists the summaries of top-level computations.
type Store interface {
	Init(ctx context.Context) error
	SaveRun(ctx context.Context, run model.RunRecord) error
	GetRun(ctx context.Context, id string) (model.RunRecord, bool, error)
	ListRuns(ctx context.Context, limit int) ([]model.RunRecord, error)
}

// DefaultStoreKind is the backend used when the caller does not choose one.
func DefaultStoreKind() string {
	return "memory"
}
