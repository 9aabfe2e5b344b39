package bulk

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/sigagent/docrouter-go/internal/docrouter"
	"github.com/sigagent/docrouter-go/internal/domain"
	"github.com/sigagent/docrouter-go/internal/observability"
)

// EnumerateDocuments scans every document matching the filters through the
// paginated enumerator. metrics may be nil.
func EnumerateDocuments(ctx context.Context, api API, orgID string, filters docrouter.DocumentFilters, pageSize int, metrics *observability.Metrics) ([]domain.Document, error) {
	if pageSize <= 0 || pageSize > docrouter.MaxPageSize {
		pageSize = docrouter.MaxPageSize
	}
	return EnumeratePages(ctx, pageSize, func(ctx context.Context, skip, limit int) ([]domain.Document, error) {
		page, err := api.ListDocuments(ctx, orgID, filters, docrouter.ListParams{Skip: skip, Limit: limit})
		if err != nil {
			return nil, err
		}
		if metrics != nil {
			metrics.PagesFetched.WithLabelValues("documents").Inc()
		}
		return page.Documents, nil
	})
}

// DownloadGroup builds the single execution group of a download run: one
// pending work item per document, in enumeration order.
func DownloadGroup(documents []domain.Document) []domain.ExecutionGroup {
	if len(documents) == 0 {
		return nil
	}
	group := domain.ExecutionGroup{
		PromptName: "download",
		Items:      make([]domain.WorkItem, 0, len(documents)),
	}
	for _, doc := range documents {
		group.Items = append(group.Items, domain.WorkItem{
			DocumentID:   doc.ID,
			DocumentName: doc.Name,
			Status:       domain.StatusPending,
		})
	}
	group.TotalExecutions = len(group.Items)
	return []domain.ExecutionGroup{group}
}

// Downloader fetches document files in chunk batches and writes each under
// <dir>/<documentID>/<filename>. The inter-chunk delay defaults to 500ms to
// keep pressure off the backend's file store; it is configurable per run.
type Downloader struct {
	api      API
	executor *Executor
	dir      string
	fileType string
	logger   zerolog.Logger
	metrics  *observability.Metrics
}

// NewDownloader creates a downloader writing into dir. fileType selects the
// backend rendition ("pdf" or "original"); empty means the original upload.
// metrics may be nil.
func NewDownloader(api API, dir, fileType string, chunkSize int, chunkDelay time.Duration, logger zerolog.Logger, metrics *observability.Metrics) *Downloader {
	return &Downloader{
		api:      api,
		executor: &Executor{ChunkSize: chunkSize, ChunkDelay: chunkDelay},
		dir:      dir,
		fileType: fileType,
		logger:   logger.With().Str("component", "bulk-downloader").Logger(),
		metrics:  metrics,
	}
}

// Run downloads every pending item in the tracker. Item failures are recorded
// and never abort the run; the flag suppresses not-yet-started downloads.
func (d *Downloader) Run(ctx context.Context, orgID string, tracker *Tracker, flag *CancelFlag) error {
	refs := flatten(tracker.Snapshot())

	err := d.executor.Execute(ctx, len(refs), flag, func(ctx context.Context, index int) {
		ref := refs[index]
		tracker.MarkRunning(ref.group, ref.item)

		if dlErr := d.downloadOne(ctx, orgID, ref.documentID); dlErr != nil {
			logger := observability.WithItemContext(d.logger, ref.documentID, "")
			logger.Warn().Err(dlErr).Msg("document download failed")
			tracker.MarkError(ref.group, ref.item, dlErr.Error())
			d.countItem(domain.StatusError)
			return
		}

		tracker.MarkCompleted(ref.group, ref.item)
		d.countItem(domain.StatusCompleted)
	}, func(index int) {
		ref := refs[index]
		tracker.MarkCancelled(ref.group, ref.item)
		d.countItem(domain.StatusCancelled)
	})

	if d.metrics != nil {
		d.metrics.ChunksExecuted.WithLabelValues(string(domain.RunKindDownload)).
			Add(float64(d.executor.ChunkCount(len(refs))))
	}

	return err
}

// downloadOne fetches a document and writes it to disk. The filename comes
// from the backend; filepath.Base strips any path components it might carry.
func (d *Downloader) downloadOne(ctx context.Context, orgID, documentID string) error {
	file, err := d.api.GetDocument(ctx, orgID, documentID, d.fileType)
	if err != nil {
		return fmt.Errorf("fetching document: %w", err)
	}

	target := filepath.Join(d.dir, documentID)
	if err := os.MkdirAll(target, 0o755); err != nil {
		return fmt.Errorf("creating download directory: %w", err)
	}

	name := filepath.Base(file.Name)
	if name == "." || name == string(filepath.Separator) || name == "" {
		name = documentID + ".pdf"
	}

	if err := os.WriteFile(filepath.Join(target, name), file.Content, 0o644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}
	return nil
}

func (d *Downloader) countItem(status domain.ExecutionStatus) {
	if d.metrics != nil {
		d.metrics.ItemsExecuted.WithLabelValues(string(domain.RunKindDownload), string(status)).Inc()
	}
}
