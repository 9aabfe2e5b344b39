package httpserver

import (
	"time"

	"github.com/sigagent/docrouter-go/internal/domain"
)

// Run response types for JSON serialization.

type runResponse struct {
	RunID          string     `json:"run_id"`
	Kind           string     `json:"kind"`
	Mode           string     `json:"mode,omitempty"`
	TagID          string     `json:"tag_id,omitempty"`
	Status         string     `json:"status"`
	TotalItems     int        `json:"total_items"`
	CompletedItems int        `json:"completed_items"`
	FailedItems    int        `json:"failed_items"`
	CancelledItems int        `json:"cancelled_items"`
	Error          string     `json:"error,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
	Duration       string     `json:"duration,omitempty"`
}

type runDetailResponse struct {
	runResponse
	Groups []groupResponse `json:"groups"`
}

type groupResponse struct {
	PromptRevisionID    string         `json:"prompt_revid,omitempty"`
	PromptID            string         `json:"prompt_id,omitempty"`
	PromptName          string         `json:"prompt_name,omitempty"`
	PromptVersion       int            `json:"prompt_version,omitempty"`
	TotalExecutions     int            `json:"total_executions"`
	CompletedExecutions int            `json:"completed_executions"`
	Items               []itemResponse `json:"items"`
}

type itemResponse struct {
	DocumentID   string `json:"document_id"`
	DocumentName string `json:"document_name,omitempty"`
	Status       string `json:"status"`
	Error        string `json:"error,omitempty"`
}

type listRunsResponse struct {
	Runs   []runResponse `json:"runs"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

type cancelRunResponse struct {
	RunID   string `json:"run_id"`
	Message string `json:"message"`
}

// Converter functions

func domainRunToResponse(r *domain.BulkRun) runResponse {
	resp := runResponse{
		RunID:          r.ID,
		Kind:           string(r.Kind),
		Mode:           string(r.Mode),
		TagID:          r.TagID,
		Status:         string(r.Status),
		TotalItems:     r.TotalItems,
		CompletedItems: r.CompletedItems,
		FailedItems:    r.FailedItems,
		CancelledItems: r.CancelledItems,
		Error:          r.Error,
		CreatedAt:      r.CreatedAt,
		StartedAt:      r.StartedAt,
		FinishedAt:     r.FinishedAt,
	}
	if r.StartedAt != nil && r.FinishedAt != nil {
		resp.Duration = r.FinishedAt.Sub(*r.StartedAt).String()
	}
	return resp
}

func domainRunToDetailResponse(r *domain.BulkRun, groups []domain.ExecutionGroup) runDetailResponse {
	resp := runDetailResponse{
		runResponse: domainRunToResponse(r),
		Groups:      make([]groupResponse, len(groups)),
	}
	for i := range groups {
		resp.Groups[i] = domainGroupToResponse(&groups[i])
	}
	return resp
}

func domainGroupToResponse(g *domain.ExecutionGroup) groupResponse {
	resp := groupResponse{
		PromptRevisionID:    g.PromptRevisionID,
		PromptID:            g.PromptID,
		PromptName:          g.PromptName,
		PromptVersion:       g.PromptVersion,
		TotalExecutions:     g.TotalExecutions,
		CompletedExecutions: g.CompletedExecutions,
		Items:               make([]itemResponse, len(g.Items)),
	}
	for i, item := range g.Items {
		resp.Items[i] = itemResponse{
			DocumentID:   item.DocumentID,
			DocumentName: item.DocumentName,
			Status:       string(item.Status),
			Error:        item.Error,
		}
	}
	return resp
}
