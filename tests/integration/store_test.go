//go:build integration

package integration

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigagent/docrouter-go/internal/domain"
	"github.com/sigagent/docrouter-go/internal/store"
)

func newRun(orgID string) *domain.BulkRun {
	return &domain.BulkRun{
		ID:        uuid.NewString(),
		OrgID:     orgID,
		Kind:      domain.RunKindLLM,
		Mode:      domain.ModeMissing,
		TagID:     "tag-invoices",
		Status:    domain.RunStatusPending,
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
}

func TestRunRoundTrip(t *testing.T) {
	cleanTable(t, "bulk_runs")
	ctx := context.Background()
	runStore := store.NewPgRunStore(testPool)

	run := newRun("org-rt")
	require.NoError(t, runStore.CreateRun(ctx, run))

	// Duplicate IDs are rejected.
	err := runStore.CreateRun(ctx, run)
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	got, err := runStore.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.OrgID, got.OrgID)
	assert.Equal(t, domain.RunStatusPending, got.Status)
	assert.Equal(t, domain.ModeMissing, got.Mode)

	// Drive the run to a terminal state.
	started := time.Now().UTC().Truncate(time.Microsecond)
	finished := started.Add(42 * time.Second)
	run.Status = domain.RunStatusCompleted
	run.TotalItems = 10
	run.CompletedItems = 8
	run.FailedItems = 2
	run.StartedAt = &started
	run.FinishedAt = &finished
	require.NoError(t, runStore.UpdateRun(ctx, run))

	got, err = runStore.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCompleted, got.Status)
	assert.Equal(t, 10, got.TotalItems)
	assert.Equal(t, 2, got.FailedItems)
	require.NotNil(t, got.FinishedAt)
	assert.WithinDuration(t, finished, *got.FinishedAt, time.Millisecond)
}

func TestRunNotFound(t *testing.T) {
	cleanTable(t, "bulk_runs")
	ctx := context.Background()
	runStore := store.NewPgRunStore(testPool)

	_, err := runStore.GetRun(ctx, uuid.NewString())
	assert.ErrorIs(t, err, domain.ErrNotFound)

	err = runStore.UpdateRun(ctx, newRun("org-missing"))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListRunsNewestFirst(t *testing.T) {
	cleanTable(t, "bulk_runs")
	ctx := context.Background()
	runStore := store.NewPgRunStore(testPool)

	old := newRun("org-list")
	old.CreatedAt = time.Now().UTC().Add(-time.Hour).Truncate(time.Microsecond)
	recent := newRun("org-list")
	other := newRun("org-other")

	require.NoError(t, runStore.CreateRun(ctx, old))
	require.NoError(t, runStore.CreateRun(ctx, recent))
	require.NoError(t, runStore.CreateRun(ctx, other))

	runs, err := runStore.ListRuns(ctx, "org-list", 10, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2, "listing is org-scoped")
	assert.Equal(t, recent.ID, runs[0].ID)
	assert.Equal(t, old.ID, runs[1].ID)

	page, err := runStore.ListRuns(ctx, "org-list", 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, old.ID, page[0].ID)
}

func TestSaveAndGetItems(t *testing.T) {
	cleanTable(t, "bulk_runs", "bulk_run_items")
	ctx := context.Background()
	runStore := store.NewPgRunStore(testPool)

	run := newRun("org-items")
	require.NoError(t, runStore.CreateRun(ctx, run))

	groups := []domain.ExecutionGroup{
		{
			PromptRevisionID: "rev-a2",
			PromptID:         "prompt-a",
			PromptName:       "Invoice extraction",
			PromptVersion:    2,
			TotalExecutions:  3,
			Items: []domain.WorkItem{
				{DocumentID: "doc-1", DocumentName: "a.pdf", PromptRevisionID: "rev-a2", PromptID: "prompt-a", Status: domain.StatusCompleted},
				{DocumentID: "doc-2", DocumentName: "b.pdf", PromptRevisionID: "rev-a2", PromptID: "prompt-a", Status: domain.StatusError, Error: "model overloaded"},
				{DocumentID: "doc-3", DocumentName: "c.pdf", PromptRevisionID: "rev-a2", PromptID: "prompt-a", Status: domain.StatusCancelled},
			},
		},
		{
			PromptRevisionID: "rev-b1",
			PromptID:         "prompt-b",
			PromptName:       "Totals check",
			PromptVersion:    1,
			TotalExecutions:  1,
			Items: []domain.WorkItem{
				{DocumentID: "doc-1", DocumentName: "a.pdf", PromptRevisionID: "rev-b1", PromptID: "prompt-b", Status: domain.StatusCompleted},
			},
		},
	}
	require.NoError(t, runStore.SaveItems(ctx, run.ID, groups))

	got, err := runStore.GetItems(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "rev-a2", got[0].PromptRevisionID)
	assert.Equal(t, 3, got[0].TotalExecutions)
	assert.Equal(t, 1, got[0].CompletedExecutions, "errors and cancellations do not count")
	require.Len(t, got[0].Items, 3)
	assert.Equal(t, "model overloaded", got[0].Items[1].Error)
	assert.Equal(t, domain.StatusCancelled, got[0].Items[2].Status)

	assert.Equal(t, "rev-b1", got[1].PromptRevisionID)
	assert.Equal(t, 1, got[1].CompletedExecutions)

	// Saving again replaces the previous snapshot.
	groups[0].Items[2].Status = domain.StatusCompleted
	require.NoError(t, runStore.SaveItems(ctx, run.ID, groups))

	got, err = runStore.GetItems(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got[0].CompletedExecutions)
}
