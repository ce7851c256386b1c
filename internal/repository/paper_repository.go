package repository

import (
	"context"

	"github.com/helixir/paper-etl/internal/domain"
)

// PaperRepository persists normalized papers keyed by their OpenAlex id.
type PaperRepository interface {
	// UpsertMany writes papers with a single multi-row INSERT ... ON CONFLICT
	// statement and returns the number of rows inserted or updated.
	// The caller must not pass two papers with the same ExternalID; Postgres
	// rejects a statement that touches the same conflict target twice.
	// Returns domain.ErrInvalidInput if any paper has an empty ExternalID.
	UpsertMany(ctx context.Context, papers []domain.Paper) (int64, error)

	// Upsert writes one paper. Every non-key column is overwritten and
	// updated_at is refreshed; created_at keeps its original value.
	Upsert(ctx context.Context, paper *domain.Paper) error

	// GetByExternalID retrieves one paper.
	// Returns domain.ErrNotFound if no row has that id.
	GetByExternalID(ctx context.Context, externalID string) (*domain.Paper, error)

	// TopCited returns the most cited papers, highest first.
	TopCited(ctx context.Context, limit int) ([]*domain.Paper, error)

	// Count returns the number of rows in the table.
	Count(ctx context.Context) (int64, error)

	// TableExists reports whether the table is present in the current schema search path.
	TableExists(ctx context.Context) (bool, error)
}
