// Package store persists bulk runs and their item outcomes in PostgreSQL.
//
// The package follows the repository pattern: the PgRunStore works against the
// DBTX interface so it runs equally on a connection pool or inside a
// transaction, and tests substitute pgxmock. All methods return domain errors
// (domain.ErrNotFound, domain.ErrAlreadyExists) wrapped per call site.
package store

import (
	"github.com/sigagent/docrouter-go/internal/database"
)

// DBTX is the database interface supporting both pool and transaction
// contexts.
type DBTX = database.DBTX

// Pagination defaults for run listings.
const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// normalizePagination clamps limit to [1, maxListLimit] and offset to >= 0.
func normalizePagination(limit, offset *int) {
	if *limit <= 0 {
		*limit = defaultListLimit
	}
	if *limit > maxListLimit {
		*limit = maxListLimit
	}
	if *offset < 0 {
		*offset = 0
	}
}
