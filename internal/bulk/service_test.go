package bulk

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigagent/docrouter-go/internal/docrouter"
	"github.com/sigagent/docrouter-go/internal/domain"
)

// memoryStore is an in-memory RunStore for service tests.
type memoryStore struct {
	mu    sync.Mutex
	runs  map[string]domain.BulkRun
	items map[string][]domain.ExecutionGroup
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		runs:  make(map[string]domain.BulkRun),
		items: make(map[string][]domain.ExecutionGroup),
	}
}

func (s *memoryStore) CreateRun(_ context.Context, run *domain.BulkRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.ID]; ok {
		return domain.ErrAlreadyExists
	}
	s.runs[run.ID] = *run
	return nil
}

func (s *memoryStore) UpdateRun(_ context.Context, run *domain.BulkRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.ID]; !ok {
		return domain.NewNotFoundError("bulk run", run.ID)
	}
	s.runs[run.ID] = *run
	return nil
}

func (s *memoryStore) SaveItems(_ context.Context, runID string, groups []domain.ExecutionGroup) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[runID] = groups
	return nil
}

func (s *memoryStore) GetRun(_ context.Context, runID string) (*domain.BulkRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return nil, domain.NewNotFoundError("bulk run", runID)
	}
	return &run, nil
}

func (s *memoryStore) ListRuns(_ context.Context, orgID string, _, _ int) ([]domain.BulkRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.BulkRun
	for _, run := range s.runs {
		if run.OrgID == orgID {
			out = append(out, run)
		}
	}
	return out, nil
}

func (s *memoryStore) GetItems(_ context.Context, runID string) ([]domain.ExecutionGroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.items[runID], nil
}

// recordingPublisher records run lifecycle events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPublisher) PublishRunEvent(_ context.Context, eventType string, _ *domain.BulkRun) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, eventType)
	return nil
}

func (p *recordingPublisher) recorded() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

func newTestService(api API, store RunStore, events EventPublisher) *Service {
	return NewService(api, ServiceConfig{
		PageSize:    100,
		ChunkSize:   10,
		DownloadDir: "",
	}, store, events, zerolog.Nop(), nil)
}

func TestStartRunValidation(t *testing.T) {
	svc := newTestService(newFakeAPI(), newMemoryStore(), nil)

	tests := []struct {
		name   string
		params StartParams
	}{
		{name: "missing org", params: StartParams{Kind: domain.RunKindLLM, TagID: "t", Mode: domain.ModeAll}},
		{name: "unknown kind", params: StartParams{OrgID: "org-1", Kind: domain.RunKind("reindex")}},
		{name: "unknown mode", params: StartParams{OrgID: "org-1", Kind: domain.RunKindLLM, TagID: "t", Mode: domain.ExecutionMode("sometimes")}},
		{name: "llm without tag", params: StartParams{OrgID: "org-1", Kind: domain.RunKindLLM, Mode: domain.ModeAll}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.StartRun(context.Background(), tt.params)
			require.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}

func TestServiceLLMRunLifecycle(t *testing.T) {
	api := newFakeAPI()
	api.documents = makeDocuments(3)
	api.prompts = []domain.Prompt{
		{RevisionID: "rev-a1", PromptID: "prompt-a", Version: 1, Name: "extract-parties"},
		{RevisionID: "rev-b1", PromptID: "prompt-b", Version: 1, Name: "summarize"},
	}
	store := newMemoryStore()
	events := &recordingPublisher{}
	svc := newTestService(api, store, events)

	run, err := svc.StartRun(context.Background(), StartParams{
		OrgID: "org-1",
		Kind:  domain.RunKindLLM,
		Mode:  domain.ModeAll,
		TagID: "tag-contracts",
	})
	require.NoError(t, err)
	require.NotEmpty(t, run.ID)
	assert.Equal(t, domain.RunStatusPending, run.Status)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, svc.Shutdown(ctx))

	final, groups, err := svc.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCompleted, final.Status)
	assert.Equal(t, 6, final.TotalItems)
	assert.Equal(t, 6, final.CompletedItems)
	assert.Zero(t, final.FailedItems)
	assert.Zero(t, final.CancelledItems)
	require.NotNil(t, final.FinishedAt)
	require.Len(t, groups, 2)
	assert.Len(t, api.runCalls, 6)
	assert.Equal(t, []string{EventRunStarted, EventRunCompleted}, events.recorded())
}

func TestServiceDownloadRunLifecycle(t *testing.T) {
	api := newFakeAPI()
	api.documents = makeDocuments(2)
	store := newMemoryStore()
	svc := NewService(api, ServiceConfig{
		PageSize:    100,
		ChunkSize:   10,
		DownloadDir: t.TempDir(),
	}, store, nil, zerolog.Nop(), nil)

	run, err := svc.StartRun(context.Background(), StartParams{
		OrgID: "org-1",
		Kind:  domain.RunKindDownload,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, svc.Shutdown(ctx))

	final, _, err := svc.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCompleted, final.Status)
	assert.Equal(t, 2, final.CompletedItems)
	assert.Len(t, api.downloadCalls, 2)
}

func TestServiceAnalysisFailureMarksRunFailed(t *testing.T) {
	api := newFakeAPI()
	api.documents = makeDocuments(2)
	api.prompts = []domain.Prompt{
		{RevisionID: "rev-a1", PromptID: "prompt-a", Version: 1, Name: "extract-parties"},
	}
	api.listErr = domain.ErrServiceUnavailable
	store := newMemoryStore()
	events := &recordingPublisher{}
	svc := newTestService(api, store, events)

	run, err := svc.StartRun(context.Background(), StartParams{
		OrgID: "org-1",
		Kind:  domain.RunKindLLM,
		Mode:  domain.ModeAll,
		TagID: "tag-contracts",
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, svc.Shutdown(ctx))

	final, _, err := svc.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusFailed, final.Status)
	assert.NotEmpty(t, final.Error)
	assert.Equal(t, []string{EventRunStarted, EventRunFailed}, events.recorded())
}

func TestServiceCancelRun(t *testing.T) {
	api := newFakeAPI()
	api.documents = makeDocuments(30)
	api.prompts = []domain.Prompt{
		{RevisionID: "rev-a1", PromptID: "prompt-a", Version: 1, Name: "extract-parties"},
	}
	store := newMemoryStore()
	events := &recordingPublisher{}

	started := make(chan struct{})
	release := make(chan struct{})
	blocking := &blockingAPI{fakeAPI: api, started: started, release: release}

	svc := NewService(blocking, ServiceConfig{
		PageSize:  100,
		ChunkSize: 5,
	}, store, events, zerolog.Nop(), nil)

	run, err := svc.StartRun(context.Background(), StartParams{
		OrgID: "org-1",
		Kind:  domain.RunKindLLM,
		Mode:  domain.ModeAll,
		TagID: "tag-contracts",
	})
	require.NoError(t, err)

	<-started
	require.NoError(t, svc.CancelRun(context.Background(), run.ID))
	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, svc.Shutdown(ctx))

	final, _, err := svc.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCancelled, final.Status)
	assert.Positive(t, final.CancelledItems)
	assert.Equal(t, 30, final.CompletedItems+final.FailedItems+final.CancelledItems)
	assert.Equal(t, []string{EventRunStarted, EventRunCancelled}, events.recorded())

	// Cancelling a finished run is rejected.
	require.ErrorIs(t, svc.CancelRun(context.Background(), run.ID), domain.ErrRunTerminal)
}

func TestBeginExecutionRefusesWhileAnalyzing(t *testing.T) {
	ar := &activeRun{
		run:       &domain.BulkRun{Status: domain.RunStatusAnalyzing},
		flag:      &CancelFlag{},
		analyzing: true,
	}
	tracker := NewTracker(DownloadGroup(makeDocuments(2)), nil)

	err := ar.beginExecution(tracker)
	require.ErrorIs(t, err, domain.ErrAnalysisInProgress)
	assert.Nil(t, ar.tracker)
	assert.Equal(t, domain.RunStatusAnalyzing, ar.run.Status)

	ar.analyzing = false
	require.NoError(t, ar.beginExecution(tracker))
	assert.Equal(t, domain.RunStatusExecuting, ar.run.Status)
	assert.Equal(t, 2, ar.run.TotalItems)
}

func TestServiceCancelUnknownRun(t *testing.T) {
	svc := newTestService(newFakeAPI(), newMemoryStore(), nil)
	err := svc.CancelRun(context.Background(), "no-such-run")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

// blockingAPI signals the first LLM call and then blocks every call until
// released, so tests can cancel a run while its first chunk is in flight.
type blockingAPI struct {
	*fakeAPI
	once    sync.Once
	started chan struct{}
	release chan struct{}
}

func (b *blockingAPI) RunLLM(ctx context.Context, orgID, documentID, promptRevID string, force bool) (*docrouter.RunResponse, error) {
	b.once.Do(func() { close(b.started) })
	<-b.release
	return b.fakeAPI.RunLLM(ctx, orgID, documentID, promptRevID, force)
}
