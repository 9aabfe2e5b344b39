package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/sigagent/docrouter-go/internal/bulk"
	"github.com/sigagent/docrouter-go/internal/domain"
)

// pgUniqueViolation is the PostgreSQL unique_violation error code.
const pgUniqueViolation = "23505"

// Compile-time interface verification.
var _ bulk.RunStore = (*PgRunStore)(nil)

// PgRunStore is the PostgreSQL implementation of bulk.RunStore.
type PgRunStore struct {
	db DBTX
}

// NewPgRunStore creates a PostgreSQL run store.
func NewPgRunStore(db DBTX) *PgRunStore {
	return &PgRunStore{db: db}
}

const runColumns = `id, org_id, kind, mode, tag_id, status,
		total_items, completed_items, failed_items, cancelled_items,
		error, created_at, started_at, finished_at`

// CreateRun inserts a new bulk run record.
func (s *PgRunStore) CreateRun(ctx context.Context, run *domain.BulkRun) error {
	if run == nil {
		return domain.NewValidationError("run", "run cannot be nil")
	}
	if run.ID == "" {
		return domain.NewValidationError("id", "run ID is required")
	}
	if run.OrgID == "" {
		return domain.NewValidationError("org_id", "organization ID is required")
	}

	query := `
		INSERT INTO bulk_runs (` + runColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err := s.db.Exec(ctx, query,
		run.ID, run.OrgID, string(run.Kind), string(run.Mode), run.TagID, string(run.Status),
		run.TotalItems, run.CompletedItems, run.FailedItems, run.CancelledItems,
		nullString(run.Error), run.CreatedAt, run.StartedAt, run.FinishedAt,
	)
	if err != nil {
		if isPgUniqueViolation(err) {
			return domain.NewAlreadyExistsError("bulk run", run.ID)
		}
		return fmt.Errorf("failed to create bulk run: %w", err)
	}
	return nil
}

// UpdateRun overwrites the mutable fields of a run record.
func (s *PgRunStore) UpdateRun(ctx context.Context, run *domain.BulkRun) error {
	if run == nil {
		return domain.NewValidationError("run", "run cannot be nil")
	}

	query := `
		UPDATE bulk_runs SET
			status = $1,
			total_items = $2,
			completed_items = $3,
			failed_items = $4,
			cancelled_items = $5,
			error = $6,
			started_at = $7,
			finished_at = $8
		WHERE id = $9`

	result, err := s.db.Exec(ctx, query,
		string(run.Status),
		run.TotalItems, run.CompletedItems, run.FailedItems, run.CancelledItems,
		nullString(run.Error), run.StartedAt, run.FinishedAt,
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update bulk run: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.NewNotFoundError("bulk run", run.ID)
	}
	return nil
}

// GetRun retrieves a run record by ID.
func (s *PgRunStore) GetRun(ctx context.Context, runID string) (*domain.BulkRun, error) {
	query := `SELECT ` + runColumns + ` FROM bulk_runs WHERE id = $1`

	run, err := scanRun(s.db.QueryRow(ctx, query, runID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("bulk run", runID)
		}
		return nil, fmt.Errorf("failed to get bulk run: %w", err)
	}
	return run, nil
}

// ListRuns lists an organization's runs, newest first.
func (s *PgRunStore) ListRuns(ctx context.Context, orgID string, limit, offset int) ([]domain.BulkRun, error) {
	if orgID == "" {
		return nil, domain.NewValidationError("org_id", "organization ID is required")
	}
	normalizePagination(&limit, &offset)

	query := `
		SELECT ` + runColumns + `
		FROM bulk_runs
		WHERE org_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := s.db.Query(ctx, query, orgID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list bulk runs: %w", err)
	}
	defer rows.Close()

	runs := make([]domain.BulkRun, 0, limit)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bulk run: %w", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bulk runs: %w", err)
	}
	return runs, nil
}

// SaveItems replaces the persisted item outcomes of a run with the given
// groups. Items are written in group-major order; positions reconstruct the
// groups on read.
func (s *PgRunStore) SaveItems(ctx context.Context, runID string, groups []domain.ExecutionGroup) error {
	if runID == "" {
		return domain.NewValidationError("run_id", "run ID is required")
	}

	batch := &pgx.Batch{}
	batch.Queue(`DELETE FROM bulk_run_items WHERE run_id = $1`, runID)

	insert := `
		INSERT INTO bulk_run_items (
			run_id, group_index, item_index,
			prompt_revid, prompt_id, prompt_name, prompt_version,
			document_id, document_name, status, error
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	for gi, group := range groups {
		for ii, item := range group.Items {
			batch.Queue(insert,
				runID, gi, ii,
				group.PromptRevisionID, group.PromptID, group.PromptName, group.PromptVersion,
				item.DocumentID, item.DocumentName, string(item.Status), item.Error,
			)
		}
	}

	results := s.db.SendBatch(ctx, batch)
	defer func() { _ = results.Close() }()

	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to save run items: %w", err)
		}
	}
	return nil
}

// GetItems reconstructs a run's execution groups from its persisted items.
// Group counters are recomputed from item statuses.
func (s *PgRunStore) GetItems(ctx context.Context, runID string) ([]domain.ExecutionGroup, error) {
	query := `
		SELECT group_index,
			prompt_revid, prompt_id, prompt_name, prompt_version,
			document_id, document_name, status, error
		FROM bulk_run_items
		WHERE run_id = $1
		ORDER BY group_index, item_index`

	rows, err := s.db.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query run items: %w", err)
	}
	defer rows.Close()

	var groups []domain.ExecutionGroup
	lastGroup := -1
	for rows.Next() {
		var (
			groupIndex int
			group      domain.ExecutionGroup
			item       domain.WorkItem
			status     string
			itemErr    string
		)
		if err := rows.Scan(
			&groupIndex,
			&group.PromptRevisionID, &group.PromptID, &group.PromptName, &group.PromptVersion,
			&item.DocumentID, &item.DocumentName, &status, &itemErr,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run item: %w", err)
		}

		item.Status = domain.ExecutionStatus(status)
		item.Error = itemErr
		// Download groups carry no prompt identity; these stay empty there.
		item.PromptRevisionID = group.PromptRevisionID
		item.PromptID = group.PromptID

		if groupIndex != lastGroup {
			groups = append(groups, group)
			lastGroup = groupIndex
		}

		last := &groups[len(groups)-1]
		last.Items = append(last.Items, item)
		last.TotalExecutions++
		if item.Status == domain.StatusCompleted {
			last.CompletedExecutions++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating run items: %w", err)
	}
	return groups, nil
}

// scanRun scans one bulk_runs row.
func scanRun(row pgx.Row) (*domain.BulkRun, error) {
	var (
		run          domain.BulkRun
		kind, status string
		mode, tagID  *string
		errMsg       *string
	)
	if err := row.Scan(
		&run.ID, &run.OrgID, &kind, &mode, &tagID, &status,
		&run.TotalItems, &run.CompletedItems, &run.FailedItems, &run.CancelledItems,
		&errMsg, &run.CreatedAt, &run.StartedAt, &run.FinishedAt,
	); err != nil {
		return nil, err
	}

	run.Kind = domain.RunKind(kind)
	run.Status = domain.RunStatus(status)
	if mode != nil {
		run.Mode = domain.ExecutionMode(*mode)
	}
	if tagID != nil {
		run.TagID = *tagID
	}
	if errMsg != nil {
		run.Error = *errMsg
	}
	return &run, nil
}

// isPgUniqueViolation checks for a PostgreSQL unique constraint violation.
func isPgUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	return false
}

// nullString returns a pointer to the string if non-empty, otherwise nil.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
