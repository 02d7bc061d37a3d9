package storage

import (
	"context"
	"database/sql"

	"listings-ingest/models"
	"listings-ingest/utils"
)

// Querier is the read-only view of the store the report engine needs.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	Dialect() Dialect
}

// IDSource supplies the identifiers already present in the store.
type IDSource interface {
	ExistingIDs(ctx context.Context) (*utils.IDSet, error)
}

// PlanWriter is the interface any write backend must satisfy.
type PlanWriter interface {
	Apply(ctx context.Context, plan *models.Plan) (WriteResult, error)
}

// RejectSink persists rows the normalizer refused.
type RejectSink interface {
	Reject(rej Rejection) error
}

var (
	_ Querier    = (*Session)(nil)
	_ IDSource   = (*Session)(nil)
	_ PlanWriter = (*Writer)(nil)
	_ RejectSink = (*RejectsWriter)(nil)
)
