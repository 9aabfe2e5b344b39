package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExecutionStatusIsTerminal(t *testing.T) {
	tests := []struct {
		status   ExecutionStatus
		terminal bool
	}{
		{StatusPending, false},
		{StatusRunning, false},
		{StatusCompleted, true},
		{StatusError, true},
		{StatusCancelled, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.terminal, tt.status.IsTerminal())
		})
	}
}

func TestExecutionStatusCanTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    ExecutionStatus
		to      ExecutionStatus
		allowed bool
	}{
		{"pending to running", StatusPending, StatusRunning, true},
		{"pending to cancelled", StatusPending, StatusCancelled, true},
		{"pending to completed skips running", StatusPending, StatusCompleted, false},
		{"running to completed", StatusRunning, StatusCompleted, true},
		{"running to error", StatusRunning, StatusError, true},
		{"running to cancelled", StatusRunning, StatusCancelled, true},
		{"running back to pending", StatusRunning, StatusPending, false},
		{"completed is absorbing", StatusCompleted, StatusRunning, false},
		{"error is absorbing", StatusError, StatusRunning, false},
		{"cancelled is absorbing", StatusCancelled, StatusPending, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransition(tt.to))
		})
	}
}

func TestLatest(t *testing.T) {
	t.Run("keeps highest version per prompt id", func(t *testing.T) {
		prompts := []Prompt{
			{RevisionID: "r1", PromptID: "p1", Version: 1},
			{RevisionID: "r2", PromptID: "p2", Version: 1},
			{RevisionID: "r3", PromptID: "p1", Version: 3},
			{RevisionID: "r4", PromptID: "p1", Version: 2},
		}

		latest := Latest(prompts)

		assert.Len(t, latest, 2)
		assert.Equal(t, "r3", latest[0].RevisionID)
		assert.Equal(t, "r2", latest[1].RevisionID)
	})

	t.Run("preserves first-appearance order", func(t *testing.T) {
		prompts := []Prompt{
			{RevisionID: "b1", PromptID: "b", Version: 1},
			{RevisionID: "a1", PromptID: "a", Version: 1},
			{RevisionID: "b2", PromptID: "b", Version: 2},
		}

		latest := Latest(prompts)

		assert.Equal(t, "b", latest[0].PromptID)
		assert.Equal(t, "a", latest[1].PromptID)
	})

	t.Run("empty input", func(t *testing.T) {
		assert.Empty(t, Latest(nil))
	})
}

func TestRunKindValid(t *testing.T) {
	assert.True(t, RunKindDownload.Valid())
	assert.True(t, RunKindLLM.Valid())
	assert.False(t, RunKind("archive").Valid())
}

func TestExecutionModeValid(t *testing.T) {
	assert.True(t, ModeAll.Valid())
	assert.True(t, ModeMissing.Valid())
	assert.True(t, ModeOutdated.Valid())
	assert.False(t, ExecutionMode("stale").Valid())
}
