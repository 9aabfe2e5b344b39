// Package bulk implements the bulk-operation engine: paginated enumeration,
// chunk-synchronous batch execution with cooperative cancellation, the
// analysis phase that decides which (document, prompt) pairs need an LLM run,
// and bulk document download.
package bulk

import (
	"context"

	"github.com/sigagent/docrouter-go/internal/docrouter"
	"github.com/sigagent/docrouter-go/internal/domain"
)

// API is the slice of the DocRouter backend client the bulk engine depends on.
// *docrouter.Client satisfies it; tests substitute fakes.
type API interface {
	ListDocuments(ctx context.Context, orgID string, filters docrouter.DocumentFilters, page docrouter.ListParams) (*docrouter.DocumentList, error)
	ListPrompts(ctx context.Context, orgID string, filters docrouter.PromptFilters, page docrouter.ListParams) (*docrouter.PromptList, error)
	GetLLMResult(ctx context.Context, orgID, documentID, promptRevID string, fallback bool) (*domain.LLMResult, error)
	RunLLM(ctx context.Context, orgID, documentID, promptRevID string, force bool) (*docrouter.RunResponse, error)
	GetDocument(ctx context.Context, orgID, documentID, fileType string) (*docrouter.DocumentFile, error)
}

var _ API = (*docrouter.Client)(nil)
