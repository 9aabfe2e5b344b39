package bulk

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/sigagent/docrouter-go/internal/docrouter"
	"github.com/sigagent/docrouter-go/internal/domain"
	"github.com/sigagent/docrouter-go/internal/observability"
)

// AnalyzeParams configures one analysis pass.
type AnalyzeParams struct {
	// OrgID is the tenant organization.
	OrgID string

	// TagID selects the prompts (and narrows the documents) to analyze.
	TagID string

	// Mode decides which pairs require execution.
	Mode domain.ExecutionMode

	// Filters narrows the document scan (name, tags, metadata).
	Filters docrouter.DocumentFilters
}

// Analyzer materializes the work of a bulk LLM run: the cross product of
// latest-version prompts tagged with the selected tag and documents matching
// the search filters, reduced to the pairs the execution mode requires.
//
// The analysis is cancellable through its context, independently of the
// execution phase's cancel flag. Probe batches reuse the chunk-synchronous
// execution strategy with no inter-chunk delay.
type Analyzer struct {
	api       API
	pageSize  int
	chunkSize int
	logger    zerolog.Logger
	metrics   *observability.Metrics
}

// NewAnalyzer creates an analyzer. metrics may be nil.
func NewAnalyzer(api API, pageSize, chunkSize int, logger zerolog.Logger, metrics *observability.Metrics) *Analyzer {
	if pageSize <= 0 || pageSize > docrouter.MaxPageSize {
		pageSize = docrouter.MaxPageSize
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Analyzer{
		api:       api,
		pageSize:  pageSize,
		chunkSize: chunkSize,
		logger:    logger.With().Str("component", "bulk-analyzer").Logger(),
		metrics:   metrics,
	}
}

// Analyze enumerates prompts and documents, probes existing results per pair
// according to the mode, and returns execution groups holding the pending
// work items. Groups follow prompt enumeration order; items follow document
// enumeration order. Prompts whose documents all have current results produce
// no group.
func (a *Analyzer) Analyze(ctx context.Context, params AnalyzeParams) ([]domain.ExecutionGroup, error) {
	if !params.Mode.Valid() {
		return nil, domain.NewValidationError("mode", fmt.Sprintf("unknown execution mode %q", params.Mode))
	}

	promptFilters := docrouter.PromptFilters{}
	if params.TagID != "" {
		promptFilters.TagIDs = []string{params.TagID}
	}
	revisions, err := EnumeratePages(ctx, a.pageSize, func(ctx context.Context, skip, limit int) ([]domain.Prompt, error) {
		page, err := a.api.ListPrompts(ctx, params.OrgID, promptFilters, docrouter.ListParams{Skip: skip, Limit: limit})
		if err != nil {
			return nil, err
		}
		a.countPage("prompts")
		return page.Prompts, nil
	})
	if err != nil {
		return nil, fmt.Errorf("enumerating prompts: %w", err)
	}

	// Only the highest version of each prompt participates; older revisions
	// are discarded before work items are built.
	prompts := domain.Latest(revisions)
	if len(prompts) == 0 {
		return nil, nil
	}

	docFilters := params.Filters
	if params.TagID != "" {
		docFilters.TagIDs = appendUnique(docFilters.TagIDs, params.TagID)
	}
	documents, err := EnumeratePages(ctx, a.pageSize, func(ctx context.Context, skip, limit int) ([]domain.Document, error) {
		page, err := a.api.ListDocuments(ctx, params.OrgID, docFilters, docrouter.ListParams{Skip: skip, Limit: limit})
		if err != nil {
			return nil, err
		}
		a.countPage("documents")
		return page.Documents, nil
	})
	if err != nil {
		return nil, fmt.Errorf("enumerating documents: %w", err)
	}

	keep, err := a.selectPairs(ctx, params, prompts, documents)
	if err != nil {
		return nil, err
	}

	groups := make([]domain.ExecutionGroup, 0, len(prompts))
	for pi, prompt := range prompts {
		group := domain.ExecutionGroup{
			PromptRevisionID: prompt.RevisionID,
			PromptID:         prompt.PromptID,
			PromptName:       prompt.Name,
			PromptVersion:    prompt.Version,
		}
		for di, doc := range documents {
			if !keep[pi*len(documents)+di] {
				continue
			}
			group.Items = append(group.Items, domain.WorkItem{
				DocumentID:       doc.ID,
				DocumentName:     doc.Name,
				PromptRevisionID: prompt.RevisionID,
				PromptID:         prompt.PromptID,
				Status:           domain.StatusPending,
			})
		}
		if len(group.Items) == 0 {
			continue
		}
		group.TotalExecutions = len(group.Items)
		groups = append(groups, group)
	}

	a.logger.Info().
		Str("org_id", params.OrgID).
		Str("tag_id", params.TagID).
		Str("mode", string(params.Mode)).
		Int("prompts", len(prompts)).
		Int("documents", len(documents)).
		Int("groups", len(groups)).
		Msg("analysis complete")

	return groups, nil
}

// selectPairs returns a prompt-major boolean mask over prompts × documents
// marking pairs that require execution under the mode. ModeAll skips probing
// entirely; the other modes probe existing results in chunk batches.
func (a *Analyzer) selectPairs(ctx context.Context, params AnalyzeParams, prompts []domain.Prompt, documents []domain.Document) ([]bool, error) {
	total := len(prompts) * len(documents)
	keep := make([]bool, total)

	if params.Mode == domain.ModeAll {
		for i := range keep {
			keep[i] = true
		}
		return keep, nil
	}

	var (
		mu       sync.Mutex
		firstErr error
	)

	executor := &Executor{ChunkSize: a.chunkSize}
	err := executor.Execute(ctx, total, nil, func(ctx context.Context, index int) {
		mu.Lock()
		failed := firstErr != nil
		mu.Unlock()
		if failed {
			return
		}

		prompt := prompts[index/len(documents)]
		doc := documents[index%len(documents)]

		needed, probeErr := a.probe(ctx, params.OrgID, params.Mode, prompt, doc)
		if probeErr != nil {
			mu.Lock()
			if firstErr == nil {
				firstErr = probeErr
			}
			mu.Unlock()
			return
		}
		keep[index] = needed
	}, nil)
	if err != nil {
		return nil, err
	}
	if firstErr != nil {
		return nil, fmt.Errorf("probing results: %w", firstErr)
	}

	return keep, nil
}

// probe decides whether one (prompt, document) pair needs execution. A missing
// result always needs one. Under ModeOutdated an existing result also needs one
// when its recorded prompt version is older than the latest version.
func (a *Analyzer) probe(ctx context.Context, orgID string, mode domain.ExecutionMode, prompt domain.Prompt, doc domain.Document) (bool, error) {
	result, err := a.api.GetLLMResult(ctx, orgID, doc.ID, prompt.RevisionID, true)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.countProbe("miss")
			return true, nil
		}
		return false, err
	}

	if mode == domain.ModeOutdated && result.PromptVersion < prompt.Version {
		a.countProbe("stale")
		return true, nil
	}

	a.countProbe("hit")
	return false, nil
}

func (a *Analyzer) countProbe(outcome string) {
	if a.metrics != nil {
		a.metrics.AnalysisProbes.WithLabelValues(outcome).Inc()
	}
}

func (a *Analyzer) countPage(endpoint string) {
	if a.metrics != nil {
		a.metrics.PagesFetched.WithLabelValues(endpoint).Inc()
	}
}

// appendUnique appends v to list unless already present.
func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(append([]string(nil), list...), v)
}
