package domain

import (
	"time"
)

// RunKind identifies the type of bulk operation a run performs.
// These values must match the database enum run_kind.
type RunKind string

const (
	// RunKindDownload downloads every matching document's file.
	RunKindDownload RunKind = "download"

	// RunKindLLM executes prompts against matching documents.
	RunKindLLM RunKind = "llm"
)

// Valid reports whether k is a known run kind.
func (k RunKind) Valid() bool {
	return k == RunKindDownload || k == RunKindLLM
}

// ExecutionMode controls which (prompt, document) pairs the analysis phase keeps.
type ExecutionMode string

const (
	// ModeAll runs every pair regardless of existing results.
	ModeAll ExecutionMode = "all"

	// ModeMissing runs only pairs with no existing result for any version of
	// the prompt.
	ModeMissing ExecutionMode = "missing"

	// ModeOutdated runs pairs with no existing result, or whose existing
	// result was produced by an older prompt version than the latest.
	ModeOutdated ExecutionMode = "outdated"
)

// Valid reports whether m is a known execution mode.
func (m ExecutionMode) Valid() bool {
	switch m {
	case ModeAll, ModeMissing, ModeOutdated:
		return true
	default:
		return false
	}
}

// ExecutionStatus is the lifecycle state of one work item.
// These values must match the database enum execution_status.
type ExecutionStatus string

const (
	StatusPending   ExecutionStatus = "pending"
	StatusRunning   ExecutionStatus = "running"
	StatusCompleted ExecutionStatus = "completed"
	StatusError     ExecutionStatus = "error"
	StatusCancelled ExecutionStatus = "cancelled"
)

// IsTerminal returns true if the status represents a final state that will not change.
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusError, StatusCancelled:
		return true
	default:
		return false
	}
}

// CanTransition reports whether a transition from s to next is allowed.
// Terminal states absorb: no transition leaves them.
func (s ExecutionStatus) CanTransition(next ExecutionStatus) bool {
	if s.IsTerminal() {
		return false
	}
	switch s {
	case StatusPending:
		return next == StatusRunning || next == StatusCancelled
	case StatusRunning:
		return next == StatusCompleted || next == StatusError || next == StatusCancelled
	default:
		return false
	}
}

// RunStatus is the lifecycle state of a bulk run as a whole.
// These values must match the database enum run_status.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusAnalyzing RunStatus = "analyzing"
	RunStatusExecuting RunStatus = "executing"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// IsTerminal returns true if the status represents a final state that will not change.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusFailed, RunStatusCancelled:
		return true
	default:
		return false
	}
}

// WorkItem is one schedulable unit of bulk work: a document for downloads, or
// a (document, prompt revision) pair for LLM execution. Immutable once
// enumerated; only its status and error message change during a run.
type WorkItem struct {
	// DocumentID is the target document.
	DocumentID string `json:"document_id"`

	// DocumentName is carried for reporting and download file naming.
	DocumentName string `json:"document_name,omitempty"`

	// PromptRevisionID is the prompt revision to execute. Empty for downloads.
	PromptRevisionID string `json:"prompt_revid,omitempty"`

	// PromptID identifies the prompt across revisions. Empty for downloads.
	PromptID string `json:"prompt_id,omitempty"`

	// Status is the item's execution state.
	Status ExecutionStatus `json:"status"`

	// Error holds a human-readable message when Status is StatusError.
	Error string `json:"error,omitempty"`
}

// ExecutionGroup groups the work items of one latest-version prompt.
type ExecutionGroup struct {
	// PromptRevisionID is the latest revision of the grouping prompt.
	PromptRevisionID string `json:"prompt_revid"`

	// PromptID identifies the prompt across revisions.
	PromptID string `json:"prompt_id"`

	// PromptName is the user-visible prompt name.
	PromptName string `json:"prompt_name"`

	// PromptVersion is the latest version number.
	PromptVersion int `json:"prompt_version"`

	// Items are the work items for this prompt, in enumeration order.
	Items []WorkItem `json:"items"`

	// TotalExecutions is the number of items in the group.
	TotalExecutions int `json:"total_executions"`

	// CompletedExecutions counts items that completed successfully. Errored
	// items count toward run progress but not here. Monotonically increasing.
	CompletedExecutions int `json:"completed_executions"`
}

// BulkRun is the persisted record of one bulk operation.
type BulkRun struct {
	ID             string        `json:"id"`
	OrgID          string        `json:"org_id"`
	Kind           RunKind       `json:"kind"`
	Mode           ExecutionMode `json:"mode,omitempty"`
	TagID          string        `json:"tag_id,omitempty"`
	Status         RunStatus     `json:"status"`
	TotalItems     int           `json:"total_items"`
	CompletedItems int           `json:"completed_items"`
	FailedItems    int           `json:"failed_items"`
	CancelledItems int           `json:"cancelled_items"`
	Error          string        `json:"error,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	StartedAt      *time.Time    `json:"started_at,omitempty"`
	FinishedAt     *time.Time    `json:"finished_at,omitempty"`
}
