package bulk

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/sigagent/docrouter-go/internal/docrouter"
	"github.com/sigagent/docrouter-go/internal/domain"
	"github.com/sigagent/docrouter-go/internal/observability"
)

// newTestMetrics builds a metrics set on a private registry so tests never
// collide on the default registerer.
func newTestMetrics() *observability.Metrics {
	return observability.NewMetricsWith("docrouter", prometheus.NewRegistry())
}

// counterValue reads the current value of a counter via the client_model DTO.
func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

// fakeAPI is an in-memory DocRouter backend for engine tests. It serves
// paginated listings from fixed slices, probes results keyed by
// (document, prompt), and records calls so tests can assert request counts.
type fakeAPI struct {
	mu sync.Mutex

	documents []domain.Document
	prompts   []domain.Prompt

	// results holds existing LLM results keyed by docID|promptID, emulating
	// the backend's fallback lookup across revisions of the same prompt.
	results map[string]domain.LLMResult

	// runErrs fails RunLLM for specific documents.
	runErrs map[string]error

	// docErrs fails GetDocument for specific documents.
	docErrs map[string]error

	// listErr aborts document listing when set.
	listErr error

	listDocumentCalls int
	listPromptCalls   int
	probeCalls        int
	runCalls          []string
	downloadCalls     []string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		results: make(map[string]domain.LLMResult),
		runErrs: make(map[string]error),
		docErrs: make(map[string]error),
	}
}

func (f *fakeAPI) resultKey(documentID, promptRevID string) string {
	promptID := promptRevID
	for _, p := range f.prompts {
		if p.RevisionID == promptRevID {
			promptID = p.PromptID
			break
		}
	}
	return documentID + "|" + promptID
}

func (f *fakeAPI) setResult(documentID, promptID string, version int) {
	f.results[documentID+"|"+promptID] = domain.LLMResult{
		PromptID:      promptID,
		PromptVersion: version,
		DocumentID:    documentID,
	}
}

func (f *fakeAPI) ListDocuments(_ context.Context, _ string, _ docrouter.DocumentFilters, page docrouter.ListParams) (*docrouter.DocumentList, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listDocumentCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return &docrouter.DocumentList{
		Documents:  pageOf(f.documents, page),
		TotalCount: len(f.documents),
		Skip:       page.Skip,
	}, nil
}

func (f *fakeAPI) ListPrompts(_ context.Context, _ string, _ docrouter.PromptFilters, page docrouter.ListParams) (*docrouter.PromptList, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listPromptCalls++
	return &docrouter.PromptList{
		Prompts:    pageOf(f.prompts, page),
		TotalCount: len(f.prompts),
		Skip:       page.Skip,
	}, nil
}

func (f *fakeAPI) GetLLMResult(_ context.Context, _ string, documentID, promptRevID string, _ bool) (*domain.LLMResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probeCalls++
	result, ok := f.results[f.resultKey(documentID, promptRevID)]
	if !ok {
		return nil, domain.NewNotFoundError("llm result", documentID)
	}
	copied := result
	return &copied, nil
}

func (f *fakeAPI) RunLLM(_ context.Context, _ string, documentID, promptRevID string, _ bool) (*docrouter.RunResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runCalls = append(f.runCalls, documentID+"|"+promptRevID)
	if err := f.runErrs[documentID]; err != nil {
		return nil, err
	}
	version := 0
	promptID := promptRevID
	for _, p := range f.prompts {
		if p.RevisionID == promptRevID {
			promptID, version = p.PromptID, p.Version
			break
		}
	}
	f.results[documentID+"|"+promptID] = domain.LLMResult{
		PromptID:      promptID,
		PromptVersion: version,
		DocumentID:    documentID,
	}
	return &docrouter.RunResponse{Status: "completed"}, nil
}

func (f *fakeAPI) GetDocument(_ context.Context, _ string, documentID, _ string) (*docrouter.DocumentFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloadCalls = append(f.downloadCalls, documentID)
	if err := f.docErrs[documentID]; err != nil {
		return nil, err
	}
	return &docrouter.DocumentFile{
		DocumentID:  documentID,
		Name:        documentID + ".pdf",
		ContentType: "application/pdf",
		Content:     []byte("content of " + documentID),
	}, nil
}

func pageOf[T any](items []T, page docrouter.ListParams) []T {
	if page.Skip >= len(items) {
		return nil
	}
	end := page.Skip + page.Limit
	if end > len(items) {
		end = len(items)
	}
	return items[page.Skip:end]
}

func makeDocuments(n int) []domain.Document {
	docs := make([]domain.Document, n)
	for i := range docs {
		docs[i] = domain.Document{
			ID:   fmt.Sprintf("doc-%03d", i),
			Name: fmt.Sprintf("report-%03d.pdf", i),
		}
	}
	return docs
}
