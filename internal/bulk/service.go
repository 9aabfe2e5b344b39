package bulk

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sigagent/docrouter-go/internal/docrouter"
	"github.com/sigagent/docrouter-go/internal/domain"
	"github.com/sigagent/docrouter-go/internal/observability"
)

// RunStore persists bulk runs and their item outcomes.
// Implemented by the postgres store; tests substitute fakes.
type RunStore interface {
	CreateRun(ctx context.Context, run *domain.BulkRun) error
	UpdateRun(ctx context.Context, run *domain.BulkRun) error
	SaveItems(ctx context.Context, runID string, groups []domain.ExecutionGroup) error
	GetRun(ctx context.Context, runID string) (*domain.BulkRun, error)
	ListRuns(ctx context.Context, orgID string, limit, offset int) ([]domain.BulkRun, error)
	GetItems(ctx context.Context, runID string) ([]domain.ExecutionGroup, error)
}

// EventPublisher publishes run lifecycle events. Implementations must be safe
// for concurrent use. A nil publisher disables events.
type EventPublisher interface {
	PublishRunEvent(ctx context.Context, eventType string, run *domain.BulkRun) error
}

// Run lifecycle event types.
const (
	EventRunStarted   = "run.started"
	EventRunCompleted = "run.completed"
	EventRunFailed    = "run.failed"
	EventRunCancelled = "run.cancelled"
)

// ServiceConfig holds bulk-engine tuning for the service.
type ServiceConfig struct {
	// PageSize is the enumerator page size (backend caps at 100).
	PageSize int

	// ChunkSize is the executor chunk width.
	ChunkSize int

	// DownloadChunkDelay is the pause between download chunks.
	DownloadChunkDelay time.Duration

	// RunChunkDelay is the pause between LLM-run chunks.
	RunChunkDelay time.Duration

	// DownloadDir is where bulk downloads are written.
	DownloadDir string
}

// StartParams describes a requested bulk run.
type StartParams struct {
	OrgID    string
	Kind     domain.RunKind
	Mode     domain.ExecutionMode
	TagID    string
	Filters  docrouter.DocumentFilters
	FileType string
}

// activeRun is the in-memory state of a run in flight. The cancel flag covers
// the execution phase; analysisCancel aborts the analysis scan. They are
// separate surfaces: cancelling mid-analysis stops the paginated scan between
// pages, cancelling mid-execution only suppresses not-yet-started items.
type activeRun struct {
	run            *domain.BulkRun
	tracker        *Tracker
	flag           *CancelFlag
	analysisCancel context.CancelFunc

	mu        sync.Mutex
	analyzing bool
}

// beginExecution transitions a run into the execution phase, installing its
// tracker. It refuses while the analysis phase still runs; the two phases must
// never overlap for a run.
func (ar *activeRun) beginExecution(tracker *Tracker) error {
	ar.mu.Lock()
	defer ar.mu.Unlock()
	if ar.analyzing {
		return domain.ErrAnalysisInProgress
	}
	ar.tracker = tracker
	ar.run.Status = domain.RunStatusExecuting
	ar.run.TotalItems = tracker.Total()
	return nil
}

// Service owns the lifecycle of bulk runs: it materializes work via the
// analyzer, executes it via the runner or downloader, records outcomes, and
// keeps a registry of in-flight runs for progress reads and cancellation.
type Service struct {
	api     API
	cfg     ServiceConfig
	store   RunStore
	events  EventPublisher
	logger  zerolog.Logger
	metrics *observability.Metrics

	mu     sync.Mutex
	active map[string]*activeRun
	wg     sync.WaitGroup
}

// NewService creates the bulk-run service. store is required; events and
// metrics may be nil.
func NewService(api API, cfg ServiceConfig, store RunStore, events EventPublisher, logger zerolog.Logger, metrics *observability.Metrics) *Service {
	if cfg.PageSize <= 0 || cfg.PageSize > docrouter.MaxPageSize {
		cfg.PageSize = docrouter.MaxPageSize
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	return &Service{
		api:     api,
		cfg:     cfg,
		store:   store,
		events:  events,
		logger:  logger.With().Str("component", "bulk-service").Logger(),
		metrics: metrics,
		active:  make(map[string]*activeRun),
	}
}

// StartRun validates the request, persists a pending run record, and launches
// the analysis and execution phases in the background. It returns immediately
// with the created run.
func (s *Service) StartRun(ctx context.Context, params StartParams) (*domain.BulkRun, error) {
	if params.OrgID == "" {
		return nil, domain.NewValidationError("org_id", "organization is required")
	}
	if !params.Kind.Valid() {
		return nil, domain.NewValidationError("kind", fmt.Sprintf("unknown run kind %q", params.Kind))
	}
	if params.Kind == domain.RunKindLLM {
		if params.Mode == "" {
			params.Mode = domain.ModeAll
		}
		if !params.Mode.Valid() {
			return nil, domain.NewValidationError("mode", fmt.Sprintf("unknown execution mode %q", params.Mode))
		}
		if params.TagID == "" {
			return nil, domain.NewValidationError("tag_id", "llm runs require a tag")
		}
	}

	run := &domain.BulkRun{
		ID:        uuid.NewString(),
		OrgID:     params.OrgID,
		Kind:      params.Kind,
		Mode:      params.Mode,
		TagID:     params.TagID,
		Status:    domain.RunStatusPending,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("persisting run: %w", err)
	}

	analysisCtx, analysisCancel := context.WithCancel(context.Background())
	ar := &activeRun{
		run:            run,
		flag:           &CancelFlag{},
		analysisCancel: analysisCancel,
	}

	s.mu.Lock()
	s.active[run.ID] = ar
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RunsStarted.WithLabelValues(string(run.Kind)).Inc()
	}
	s.publish(EventRunStarted, run)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer analysisCancel()
		s.execute(analysisCtx, ar, params)
	}()

	return snapshotRun(run), nil
}

// execute drives one run through analysis, execution, and finalization.
// Analysis must fully complete before execution begins; the two phases never
// overlap for a given run.
func (s *Service) execute(analysisCtx context.Context, ar *activeRun, params StartParams) {
	run := ar.run
	logger := observability.WithRunContext(s.logger, run.ID, run.OrgID, string(run.Kind))
	started := time.Now()

	ar.mu.Lock()
	ar.analyzing = true
	run.Status = domain.RunStatusAnalyzing
	run.StartedAt = &started
	ar.mu.Unlock()
	s.persist(run)

	groups, err := s.materialize(analysisCtx, params)

	ar.mu.Lock()
	ar.analyzing = false
	ar.mu.Unlock()

	if err != nil {
		if analysisCtx.Err() != nil || ar.flag.Cancelled() {
			s.finalize(ar, domain.RunStatusCancelled, "", logger, started)
			return
		}
		logger.Error().Err(err).Msg("analysis failed")
		s.finalize(ar, domain.RunStatusFailed, err.Error(), logger, started)
		return
	}

	tracker := NewTracker(groups, ProgressFunc(func(completed, total int) {
		logger.Debug().Int("completed", completed).Int("total", total).Msg("run progress")
	}))

	if err := ar.beginExecution(tracker); err != nil {
		logger.Error().Err(err).Msg("refusing execution")
		s.finalize(ar, domain.RunStatusFailed, err.Error(), logger, started)
		return
	}
	s.persist(run)

	// A cancellation that landed during analysis suppresses the whole
	// execution phase; the executor marks every item cancelled.
	switch run.Kind {
	case domain.RunKindDownload:
		downloader := NewDownloader(s.api, s.cfg.DownloadDir, params.FileType, s.cfg.ChunkSize, s.cfg.DownloadChunkDelay, s.logger, s.metrics)
		err = downloader.Run(context.Background(), run.OrgID, tracker, ar.flag)
	case domain.RunKindLLM:
		runner := NewRunner(s.api, s.cfg.ChunkSize, s.cfg.RunChunkDelay, s.logger, s.metrics)
		err = runner.Execute(context.Background(), run.OrgID, tracker, ar.flag)
	}
	if err != nil {
		logger.Warn().Err(err).Msg("execution interrupted")
	}

	status := domain.RunStatusCompleted
	if ar.flag.Cancelled() {
		status = domain.RunStatusCancelled
	}
	s.finalize(ar, status, "", logger, started)
}

// materialize builds the execution groups for a run: the analyzer for LLM
// runs, a single enumerated group for downloads.
func (s *Service) materialize(ctx context.Context, params StartParams) ([]domain.ExecutionGroup, error) {
	if params.Kind == domain.RunKindDownload {
		documents, err := EnumerateDocuments(ctx, s.api, params.OrgID, params.Filters, s.cfg.PageSize, s.metrics)
		if err != nil {
			return nil, err
		}
		return DownloadGroup(documents), nil
	}

	analyzer := NewAnalyzer(s.api, s.cfg.PageSize, s.cfg.ChunkSize, s.logger, s.metrics)
	return analyzer.Analyze(ctx, AnalyzeParams{
		OrgID:   params.OrgID,
		TagID:   params.TagID,
		Mode:    params.Mode,
		Filters: params.Filters,
	})
}

// finalize records the terminal state, persists items, publishes the
// lifecycle event, and drops the run from the active registry.
func (s *Service) finalize(ar *activeRun, status domain.RunStatus, errMsg string, logger zerolog.Logger, started time.Time) {
	run := ar.run
	finished := time.Now().UTC()

	ar.mu.Lock()
	run.Status = status
	run.Error = errMsg
	run.FinishedAt = &finished
	if ar.tracker != nil {
		completed, failed, cancelled := ar.tracker.Counts()
		run.CompletedItems = completed - failed
		run.FailedItems = failed
		run.CancelledItems = cancelled
	}
	ar.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if ar.tracker != nil {
		if err := s.store.SaveItems(ctx, run.ID, ar.tracker.Snapshot()); err != nil {
			logger.Error().Err(err).Msg("failed to persist run items")
		}
	}
	if err := s.store.UpdateRun(ctx, run); err != nil {
		logger.Error().Err(err).Msg("failed to persist run record")
	}

	if s.metrics != nil {
		switch status {
		case domain.RunStatusCompleted:
			s.metrics.RunsCompleted.WithLabelValues(string(run.Kind)).Inc()
		case domain.RunStatusFailed:
			s.metrics.RunsFailed.WithLabelValues(string(run.Kind)).Inc()
		case domain.RunStatusCancelled:
			s.metrics.RunsCancelled.WithLabelValues(string(run.Kind)).Inc()
		}
		s.metrics.RunDuration.WithLabelValues(string(run.Kind)).Observe(time.Since(started).Seconds())
	}

	switch status {
	case domain.RunStatusCompleted:
		s.publish(EventRunCompleted, run)
	case domain.RunStatusFailed:
		s.publish(EventRunFailed, run)
	case domain.RunStatusCancelled:
		s.publish(EventRunCancelled, run)
	}

	logger.Info().
		Str("status", string(status)).
		Int("total", run.TotalItems).
		Int("completed", run.CompletedItems).
		Int("failed", run.FailedItems).
		Int("cancelled", run.CancelledItems).
		Dur("duration", time.Since(started)).
		Msg("run finished")

	s.mu.Lock()
	delete(s.active, run.ID)
	s.mu.Unlock()
}

// GetRun returns a run and its groups. In-flight runs are served from memory
// with live progress; finished runs come from the store.
func (s *Service) GetRun(ctx context.Context, runID string) (*domain.BulkRun, []domain.ExecutionGroup, error) {
	s.mu.Lock()
	ar, ok := s.active[runID]
	s.mu.Unlock()

	if ok {
		ar.mu.Lock()
		run := snapshotRun(ar.run)
		tracker := ar.tracker
		ar.mu.Unlock()

		var groups []domain.ExecutionGroup
		if tracker != nil {
			completed, failed, cancelled := tracker.Counts()
			run.TotalItems = tracker.Total()
			run.CompletedItems = completed - failed
			run.FailedItems = failed
			run.CancelledItems = cancelled
			groups = tracker.Snapshot()
		}
		return run, groups, nil
	}

	run, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return nil, nil, err
	}
	groups, err := s.store.GetItems(ctx, runID)
	if err != nil {
		return nil, nil, err
	}
	return run, groups, nil
}

// ListRuns lists persisted runs for an organization, newest first.
func (s *Service) ListRuns(ctx context.Context, orgID string, limit, offset int) ([]domain.BulkRun, error) {
	return s.store.ListRuns(ctx, orgID, limit, offset)
}

// CancelRun cancels an in-flight run. Both cancellation surfaces fire: the
// analysis context (stops the paginated scan between pages) and the execution
// flag (suppresses not-yet-started items; in-flight calls finish naturally).
// Cancelling a finished run returns ErrRunTerminal.
func (s *Service) CancelRun(ctx context.Context, runID string) error {
	s.mu.Lock()
	ar, ok := s.active[runID]
	s.mu.Unlock()

	if !ok {
		run, err := s.store.GetRun(ctx, runID)
		if err != nil {
			return err
		}
		if run.Status.IsTerminal() {
			return domain.ErrRunTerminal
		}
		return domain.NewNotFoundError("active run", runID)
	}

	ar.flag.Cancel()
	ar.analysisCancel()
	return nil
}

// Shutdown waits for in-flight runs to finish, or for the context to end.
func (s *Service) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) persist(run *domain.BulkRun) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.store.UpdateRun(ctx, run); err != nil {
		s.logger.Error().Err(err).Str("run_id", run.ID).Msg("failed to persist run status")
	}
}

func (s *Service) publish(eventType string, run *domain.BulkRun) {
	if s.events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.events.PublishRunEvent(ctx, eventType, snapshotRun(run)); err != nil {
		s.logger.Warn().Err(err).Str("event", eventType).Msg("failed to publish run event")
	}
}

// snapshotRun copies a run record so callers never alias service-owned state.
func snapshotRun(run *domain.BulkRun) *domain.BulkRun {
	copied := *run
	return &copied
}
