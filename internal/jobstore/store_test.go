package jobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DEFRA/content-reviewer-backend-sub000/internal/domain"
	"github.com/DEFRA/content-reviewer-backend-sub000/internal/logger"
	"github.com/DEFRA/content-reviewer-backend-sub000/internal/storage"
)

// memStorage is an in-memory ObjectStorage for tests. LastModified uses a
// logical clock so listing order is deterministic.
type memStorage struct {
	mu      sync.Mutex
	objects map[string]memObject
	clock   int64
}

type memObject struct {
	data     []byte
	modified time.Time
}

func newMemStorage() *memStorage {
	return &memStorage{objects: make(map[string]memObject)}
}

func (m *memStorage) Upload(_ context.Context, key string, reader io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clock++
	m.objects[key] = memObject{data: data, modified: time.Unix(m.clock, 0)}
	return nil
}

func (m *memStorage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	data, err := m.DownloadBytes(ctx, key)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memStorage) DownloadBytes(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrObjectNotFound, key)
	}
	return obj.data, nil
}

func (m *memStorage) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *memStorage) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok, nil
}

func (m *memStorage) List(_ context.Context, prefix string) ([]storage.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var infos []storage.ObjectInfo
	for key, obj := range m.objects {
		if strings.HasPrefix(key, prefix) {
			infos = append(infos, storage.ObjectInfo{
				Key:          key,
				Size:         int64(len(obj.data)),
				LastModified: obj.modified,
			})
		}
	}
	return infos, nil
}

func testLogger() *logger.Logger {
	return logger.New(&logger.Config{Level: "error", Output: io.Discard, ServiceName: "test"})
}

func newTestStore(t *testing.T) (*Store, *memStorage) {
	t.Helper()
	mem := newMemStorage()
	return New(mem, testLogger(), 0), mem
}

func pendingJob(id string) *domain.Job {
	return &domain.Job{
		ID:         id,
		Status:     domain.JobStatusPending,
		SourceType: domain.SourceTypeFile,
		FileName:   "report.pdf",
		ContentRef: "uploads/" + id + "/report.pdf",
		CreatedAt:  time.Now().UTC().Add(-time.Minute),
	}
}

func TestStore_CreateAndGet(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.Create(ctx, pendingJob("j1")); err != nil {
		t.Fatalf("create: %v", err)
	}

	job, err := store.Get(ctx, "j1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if job.Status != domain.JobStatusPending {
		t.Errorf("status = %q, want pending", job.Status)
	}
	if job.FileName != "report.pdf" {
		t.Errorf("fileName = %q", job.FileName)
	}
}

func TestStore_GetNotFound(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.Get(context.Background(), "missing")
	if !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestStore_StatusChain(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.Create(ctx, pendingJob("j1")); err != nil {
		t.Fatal(err)
	}

	job, err := store.UpdateStatus(ctx, "j1", domain.JobStatusProcessing, nil)
	if err != nil {
		t.Fatalf("to processing: %v", err)
	}
	if job.Status != domain.JobStatusProcessing {
		t.Fatalf("status = %q", job.Status)
	}
	if job.ProcessingStartedAt == nil {
		t.Fatal("processingStartedAt not stamped")
	}

	job, err = store.UpdateStatus(ctx, "j1", domain.JobStatusCompleted, &domain.StatusPatch{
		Result: &domain.ReviewResult{Raw: "fine"},
	})
	if err != nil {
		t.Fatalf("to completed: %v", err)
	}
	if job.ProcessingCompletedAt == nil {
		t.Fatal("processingCompletedAt not stamped")
	}
	if job.Result == nil || job.Result.Raw != "fine" {
		t.Fatalf("result not applied: %+v", job.Result)
	}

	// Terminal jobs never move again.
	job, err = store.UpdateStatus(ctx, "j1", domain.JobStatusFailed, &domain.StatusPatch{
		Error: domain.NewJobError(domain.ErrCodeTimeout, "late"),
	})
	if err != nil {
		t.Fatalf("terminal update errored: %v", err)
	}
	if job.Status != domain.JobStatusCompleted {
		t.Errorf("terminal status changed to %q", job.Status)
	}
	if job.Error != nil {
		t.Error("error recorded on a completed job")
	}
}

func TestStore_ProcessingStampSetOnce(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.Create(ctx, pendingJob("j1")); err != nil {
		t.Fatal(err)
	}

	first, err := store.UpdateStatus(ctx, "j1", domain.JobStatusProcessing, nil)
	if err != nil {
		t.Fatal(err)
	}

	// Redelivery marks processing again; the stamp must not move.
	time.Sleep(5 * time.Millisecond)
	second, err := store.UpdateStatus(ctx, "j1", domain.JobStatusProcessing, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !second.ProcessingStartedAt.Equal(*first.ProcessingStartedAt) {
		t.Errorf("processingStartedAt moved: %v -> %v",
			first.ProcessingStartedAt, second.ProcessingStartedAt)
	}
}

func TestStore_ImmutableFieldsSurviveUpdates(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	orig := pendingJob("j1")
	if err := store.Create(ctx, orig); err != nil {
		t.Fatal(err)
	}

	if _, err := store.UpdateStatus(ctx, "j1", domain.JobStatusProcessing, &domain.StatusPatch{
		Metadata: map[string]interface{}{
			// Identity keys in the metadata bag land in metadata only;
			// they must never leak into the top-level record.
			"fileName": "evil.pdf",
			"id":       "other",
		},
	}); err != nil {
		t.Fatal(err)
	}

	job, err := store.Get(ctx, "j1")
	if err != nil {
		t.Fatal(err)
	}
	if job.ID != "j1" || job.FileName != "report.pdf" ||
		job.ContentRef != orig.ContentRef || job.SourceType != orig.SourceType {
		t.Errorf("identity fields changed: %+v", job)
	}
	if !job.CreatedAt.Equal(orig.CreatedAt) {
		t.Errorf("createdAt changed: %v -> %v", orig.CreatedAt, job.CreatedAt)
	}
}

func TestStore_RestoreImmutable(t *testing.T) {
	store, _ := newTestStore(t)

	orig := pendingJob("j1")
	snap := snapshotImmutable(orig)

	tampered := orig.Clone()
	tampered.ID = "other"
	tampered.FileName = "evil.pdf"
	tampered.ContentRef = "uploads/other/evil.pdf"
	tampered.SourceType = domain.SourceTypeText
	tampered.CreatedAt = time.Now().Add(time.Hour)

	store.restoreImmutable(snap, tampered)

	if tampered.ID != orig.ID || tampered.FileName != orig.FileName ||
		tampered.ContentRef != orig.ContentRef || tampered.SourceType != orig.SourceType ||
		!tampered.CreatedAt.Equal(orig.CreatedAt) {
		t.Errorf("immutable fields not restored: %+v", tampered)
	}
}

func TestStore_UpdateMetadataAdditive(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.Create(ctx, pendingJob("j1")); err != nil {
		t.Fatal(err)
	}

	if _, err := store.UpdateMetadata(ctx, "j1", map[string]interface{}{"a": 1}); err != nil {
		t.Fatal(err)
	}
	job, err := store.UpdateMetadata(ctx, "j1", map[string]interface{}{"b": 2})
	if err != nil {
		t.Fatal(err)
	}

	if _, ok := job.Metadata["a"]; !ok {
		t.Error("existing metadata key was dropped")
	}
	if _, ok := job.Metadata["b"]; !ok {
		t.Error("new metadata key missing")
	}
}

func TestStore_ListRecentOrder(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if err := store.Create(ctx, pendingJob(id)); err != nil {
			t.Fatal(err)
		}
	}
	// Touch "a" so it becomes the most recently mutated.
	if _, err := store.UpdateStatus(ctx, "a", domain.JobStatusProcessing, nil); err != nil {
		t.Fatal(err)
	}

	jobs, next, err := store.ListRecent(ctx, 2, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 2 {
		t.Fatalf("got %d jobs, want 2", len(jobs))
	}
	if jobs[0].ID != "a" {
		t.Errorf("most recent = %q, want a", jobs[0].ID)
	}
	if next == "" {
		t.Error("expected a cursor while a record remains")
	}
}

func TestStore_ListRecentPagination(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c", "d", "e"} {
		if err := store.Create(ctx, pendingJob(id)); err != nil {
			t.Fatal(err)
		}
	}

	seen := make(map[string]bool)
	cursor := ""
	pages := 0
	for {
		jobs, next, err := store.ListRecent(ctx, 2, cursor)
		if err != nil {
			t.Fatal(err)
		}
		pages++
		for _, job := range jobs {
			if seen[job.ID] {
				t.Errorf("job %q returned twice", job.ID)
			}
			seen[job.ID] = true
		}
		if next == "" {
			break
		}
		cursor = next
		if pages > 5 {
			t.Fatal("pagination never terminated")
		}
	}

	if pages != 3 {
		t.Errorf("got %d pages, want 3", pages)
	}
	if len(seen) != 5 {
		t.Errorf("paged over %d jobs, want 5", len(seen))
	}
}

func TestStore_ListRecentBadCursor(t *testing.T) {
	store, _ := newTestStore(t)
	if _, _, err := store.ListRecent(context.Background(), 2, "%%garbage"); !errors.Is(err, ErrBadCursor) {
		t.Errorf("err = %v, want ErrBadCursor", err)
	}
}

func TestStore_DeleteRemovesContent(t *testing.T) {
	store, mem := newTestStore(t)
	ctx := context.Background()

	job := pendingJob("j1")
	if err := mem.Upload(ctx, job.ContentRef, strings.NewReader("raw"), 3, "application/pdf"); err != nil {
		t.Fatal(err)
	}
	if err := store.Create(ctx, job); err != nil {
		t.Fatal(err)
	}

	if err := store.Delete(ctx, "j1"); err != nil {
		t.Fatal(err)
	}

	if ok, _ := mem.Exists(ctx, storage.JobRecordKey("j1")); ok {
		t.Error("job record still stored")
	}
	if ok, _ := mem.Exists(ctx, job.ContentRef); ok {
		t.Error("content blob still stored")
	}
}

func TestStore_PruneToRetentionLimit(t *testing.T) {
	store, mem := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := store.Create(ctx, pendingJob(fmt.Sprintf("j%d", i))); err != nil {
			t.Fatal(err)
		}
	}

	deleted, err := store.PruneToRetentionLimit(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if deleted != 3 {
		t.Errorf("deleted = %d, want 3", deleted)
	}

	infos, _ := mem.List(ctx, storage.JobRecordPrefix())
	if len(infos) != 2 {
		t.Errorf("%d records remain, want 2", len(infos))
	}

	// The oldest were removed, the newest kept.
	for _, id := range []string{"j3", "j4"} {
		if _, err := store.Get(ctx, id); err != nil {
			t.Errorf("recent job %s pruned: %v", id, err)
		}
	}

	// A second pass has nothing left to remove.
	deleted, err = store.PruneToRetentionLimit(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if deleted != 0 {
		t.Errorf("second pass deleted %d, want 0", deleted)
	}
}

func TestStore_CreateTriggersBackgroundPrune(t *testing.T) {
	mem := newMemStorage()
	store := New(mem, testLogger(), 2)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if err := store.Create(ctx, pendingJob(fmt.Sprintf("j%d", i))); err != nil {
			t.Fatal(err)
		}
	}

	// The prune pass is asynchronous and best-effort; poll for it.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		infos, _ := mem.List(ctx, storage.JobRecordPrefix())
		if len(infos) <= 2 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Error("retention pass never brought record count down to the cap")
}
