package bulk

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/sigagent/docrouter-go/internal/domain"
	"github.com/sigagent/docrouter-go/internal/observability"
)

// itemRef addresses one work item inside a tracker, flattened in group-major
// order so chunks respect enumeration order across groups.
type itemRef struct {
	group, item int
	documentID  string
	promptRevID string
}

// flatten lists the pending items of all groups in order.
func flatten(groups []domain.ExecutionGroup) []itemRef {
	var refs []itemRef
	for gi, g := range groups {
		for ii, item := range g.Items {
			if item.Status != domain.StatusPending {
				continue
			}
			refs = append(refs, itemRef{
				group:       gi,
				item:        ii,
				documentID:  item.DocumentID,
				promptRevID: item.PromptRevisionID,
			})
		}
	}
	return refs
}

// Runner executes the LLM work items of a bulk run against the backend.
// Execution is at-most-once per item: failures are recorded, never retried.
type Runner struct {
	api      API
	executor *Executor
	logger   zerolog.Logger
	metrics  *observability.Metrics
}

// NewRunner creates a runner. chunkDelay is the inter-chunk pause; the LLM-run
// path defaults it to zero. metrics may be nil.
func NewRunner(api API, chunkSize int, chunkDelay time.Duration, logger zerolog.Logger, metrics *observability.Metrics) *Runner {
	return &Runner{
		api:      api,
		executor: &Executor{ChunkSize: chunkSize, ChunkDelay: chunkDelay},
		logger:   logger.With().Str("component", "bulk-runner").Logger(),
		metrics:  metrics,
	}
}

// Execute runs every pending item in the tracker through the backend's LLM
// endpoint with force=true (the analysis phase already decided the item needs
// a run). Item failures are recorded on the tracker and never abort the run.
// The flag suppresses not-yet-started items; the context error, if any, is
// returned.
func (r *Runner) Execute(ctx context.Context, orgID string, tracker *Tracker, flag *CancelFlag) error {
	refs := flatten(tracker.Snapshot())

	err := r.executor.Execute(ctx, len(refs), flag, func(ctx context.Context, index int) {
		ref := refs[index]
		tracker.MarkRunning(ref.group, ref.item)

		if _, runErr := r.api.RunLLM(ctx, orgID, ref.documentID, ref.promptRevID, true); runErr != nil {
			logger := observability.WithItemContext(r.logger, ref.documentID, ref.promptRevID)
			logger.Warn().Err(runErr).Msg("llm run failed")
			tracker.MarkError(ref.group, ref.item, runErr.Error())
			r.countItem(domain.StatusError)
			return
		}

		tracker.MarkCompleted(ref.group, ref.item)
		r.countItem(domain.StatusCompleted)
	}, func(index int) {
		ref := refs[index]
		tracker.MarkCancelled(ref.group, ref.item)
		r.countItem(domain.StatusCancelled)
	})

	if r.metrics != nil {
		r.metrics.ChunksExecuted.WithLabelValues(string(domain.RunKindLLM)).
			Add(float64(r.executor.ChunkCount(len(refs))))
	}

	return err
}

func (r *Runner) countItem(status domain.ExecutionStatus) {
	if r.metrics != nil {
		r.metrics.ItemsExecuted.WithLabelValues(string(domain.RunKindLLM), string(status)).Inc()
	}
}
