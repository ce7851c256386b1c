// Package repository provides PostgreSQL data access for the papers table.
//
// # Repositories
//
//   - PaperRepository: upserts normalized papers and reads them back by key
//   - StatsRepository: read-only aggregates served by the dashboard
//
// # Table names
//
// Both implementations take the table name at construction so the pipeline
// can target a staging table. Names are quoted with pq.QuoteIdentifier before
// they are interpolated into SQL; values always travel as bind parameters.
//
// # Transactions
//
// Repositories accept DBTX, so the same type works on the pool or inside a
// transaction:
//
//	err := database.RunInTx(ctx, db, func(tx pgx.Tx) error {
//	    _, err := repository.NewPgPaperRepository(tx, "papers").UpsertMany(ctx, chunk)
//	    return err
//	})
package repository

import (
	"github.com/lib/pq"

	"github.com/helixir/paper-etl/internal/database"
)

// DBTX is the database interface supporting both pool and transaction contexts.
type DBTX = database.DBTX

// DefaultTable is used when a repository is constructed with an empty table name.
const DefaultTable = "papers"

// Limits for list-style queries.
const (
	defaultListLimit = 10
	maxListLimit     = 1000
)

// quoteTable returns the quoted table name, falling back to DefaultTable.
func quoteTable(table string) string {
	if table == "" {
		table = DefaultTable
	}
	return pq.QuoteIdentifier(table)
}

// clampLimit normalizes limit to [1, maxListLimit].
func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
