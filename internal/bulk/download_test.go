package bulk

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigagent/docrouter-go/internal/docrouter"
	"github.com/sigagent/docrouter-go/internal/domain"
)

func TestDownloadGroup(t *testing.T) {
	docs := makeDocuments(3)
	groups := DownloadGroup(docs)

	require.Len(t, groups, 1)
	group := groups[0]
	assert.Equal(t, 3, group.TotalExecutions)
	require.Len(t, group.Items, 3)
	for i, item := range group.Items {
		assert.Equal(t, docs[i].ID, item.DocumentID)
		assert.Equal(t, docs[i].Name, item.DocumentName)
		assert.Empty(t, item.PromptRevisionID)
		assert.Equal(t, domain.StatusPending, item.Status)
	}

	assert.Nil(t, DownloadGroup(nil))
}

func TestDownloaderWritesFiles(t *testing.T) {
	api := newFakeAPI()
	api.documents = makeDocuments(4)
	dir := t.TempDir()

	tracker := NewTracker(DownloadGroup(api.documents), nil)
	downloader := NewDownloader(api, dir, "", 2, 0, zerolog.Nop(), nil)
	require.NoError(t, downloader.Run(context.Background(), "org-1", tracker, &CancelFlag{}))

	completed, failed, cancelled := tracker.Counts()
	assert.Equal(t, 4, completed)
	assert.Zero(t, failed)
	assert.Zero(t, cancelled)

	for _, doc := range api.documents {
		content, err := os.ReadFile(filepath.Join(dir, doc.ID, doc.ID+".pdf"))
		require.NoError(t, err)
		assert.Equal(t, "content of "+doc.ID, string(content))
	}
}

func TestDownloaderIsolatesFailures(t *testing.T) {
	api := newFakeAPI()
	api.documents = makeDocuments(3)
	api.docErrs["doc-001"] = errors.New("file store unavailable")
	dir := t.TempDir()

	tracker := NewTracker(DownloadGroup(api.documents), nil)
	downloader := NewDownloader(api, dir, "", 10, 0, zerolog.Nop(), nil)
	require.NoError(t, downloader.Run(context.Background(), "org-1", tracker, &CancelFlag{}))

	completed, failed, _ := tracker.Counts()
	assert.Equal(t, 3, completed)
	assert.Equal(t, 1, failed)

	items := tracker.Snapshot()[0].Items
	assert.Equal(t, domain.StatusError, items[1].Status)
	assert.Contains(t, items[1].Error, "file store unavailable")

	_, err := os.Stat(filepath.Join(dir, "doc-001"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, "doc-002", "doc-002.pdf"))
	assert.NoError(t, err)
}

func TestDownloaderSanitizesFileName(t *testing.T) {
	api := newFakeAPI()
	api.documents = makeDocuments(1)
	dir := t.TempDir()

	hostile := &renamingAPI{fakeAPI: api, name: "../../etc/passwd"}
	tracker := NewTracker(DownloadGroup(api.documents), nil)
	downloader := NewDownloader(hostile, dir, "", 10, 0, zerolog.Nop(), nil)
	require.NoError(t, downloader.Run(context.Background(), "org-1", tracker, &CancelFlag{}))

	// Path components from the backend name are stripped.
	_, err := os.Stat(filepath.Join(dir, "doc-000", "passwd"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(filepath.Dir(dir), "etc", "passwd"))
	assert.True(t, os.IsNotExist(err))
}

func TestEnumerateDocuments(t *testing.T) {
	api := newFakeAPI()
	api.documents = makeDocuments(230)
	metrics := newTestMetrics()

	docs, err := EnumerateDocuments(context.Background(), api, "org-1", docrouter.DocumentFilters{}, 100, metrics)
	require.NoError(t, err)
	assert.Len(t, docs, 230)
	assert.Equal(t, 3, api.listDocumentCalls)
	assert.Equal(t, 3.0, counterValue(t, metrics.PagesFetched.WithLabelValues("documents")))
}

// renamingAPI serves files under a backend-controlled name.
type renamingAPI struct {
	*fakeAPI
	name string
}

func (r *renamingAPI) GetDocument(ctx context.Context, orgID, documentID, fileType string) (*docrouter.DocumentFile, error) {
	file, err := r.fakeAPI.GetDocument(ctx, orgID, documentID, fileType)
	if err != nil {
		return nil, err
	}
	file.Name = r.name
	return file, nil
}
