// Package jobstore persists review job records as JSON blobs, one object
// per job, and is the single source of truth for job state. All mutation
// goes through its narrow update surface; identity fields can not be
// changed through any path.
package jobstore

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/DEFRA/content-reviewer-backend-sub000/internal/domain"
	"github.com/DEFRA/content-reviewer-backend-sub000/internal/logger"
	"github.com/DEFRA/content-reviewer-backend-sub000/internal/storage"
)

// ErrJobNotFound is returned when no record exists for a job id. It is
// distinct from transport errors and must not be retried blindly.
var ErrJobNotFound = errors.New("job not found")

// ErrBadCursor is returned when a ListRecent cursor can not be decoded.
// Cursors are opaque to callers; anything unparseable is a caller bug.
var ErrBadCursor = errors.New("malformed list cursor")

// getRetries bounds the eventual-consistency lookup: a record written
// moments ago may not be readable yet on a non-strongly-consistent store.
const (
	getRetries    = 3
	getRetryDelay = 150 * time.Millisecond
)

// statusRank orders the legal status chain. Transitions may only move
// forward along it; pending is never observed again after processing.
var statusRank = map[domain.JobStatus]int{
	domain.JobStatusPending:    0,
	domain.JobStatusProcessing: 1,
	domain.JobStatusCompleted:  2,
	domain.JobStatusFailed:     2,
}

// Store is the durable job record store backed by blob storage.
type Store struct {
	storage        storage.ObjectStorage
	logger         *logger.Logger
	retentionLimit int

	// pruneErrs surfaces failures from the background retention pass
	// without blocking the create path.
	pruneErrs chan error
}

// New creates a job store. retentionLimit caps how many jobs are kept;
// zero disables pruning.
func New(objectStorage storage.ObjectStorage, log *logger.Logger, retentionLimit int) *Store {
	return &Store{
		storage:        objectStorage,
		logger:         log,
		retentionLimit: retentionLimit,
		pruneErrs:      make(chan error, 8),
	}
}

// PruneErrors exposes failures from background retention passes so the
// owning process can observe and log them.
func (s *Store) PruneErrors() <-chan error {
	return s.pruneErrs
}

// Create writes a new record in pending state and kicks off a
// best-effort retention pass in the background.
func (s *Store) Create(ctx context.Context, job *domain.Job) error {
	if job.ID == "" {
		return fmt.Errorf("job has no id")
	}
	now := time.Now().UTC()
	if job.Status == "" {
		job.Status = domain.JobStatusPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now

	if err := s.put(ctx, job); err != nil {
		return err
	}

	if s.retentionLimit > 0 {
		go s.backgroundPrune()
	}
	return nil
}

// backgroundPrune runs one retention pass and reports its error, if any,
// on the prune error channel without ever blocking.
func (s *Store) backgroundPrune() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if _, err := s.PruneToRetentionLimit(ctx, s.retentionLimit); err != nil {
		select {
		case s.pruneErrs <- err:
		default:
		}
	}
}

// Get returns the record for a job id, retrying briefly to tolerate
// eventually-consistent lookups. A missing record is ErrJobNotFound; the
// store never invents one.
func (s *Store) Get(ctx context.Context, id string) (*domain.Job, error) {
	key := storage.JobRecordKey(id)

	var lastErr error
	for attempt := 0; attempt < getRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(getRetryDelay):
			}
		}

		data, err := s.storage.DownloadBytes(ctx, key)
		if err != nil {
			lastErr = err
			if errors.Is(err, storage.ErrObjectNotFound) {
				continue
			}
			return nil, fmt.Errorf("failed to load job %s: %w", id, err)
		}

		var job domain.Job
		if err := json.Unmarshal(data, &job); err != nil {
			return nil, fmt.Errorf("corrupt job record %s: %w", id, err)
		}
		return &job, nil
	}

	if errors.Is(lastErr, storage.ErrObjectNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return nil, fmt.Errorf("failed to load job %s: %w", id, lastErr)
}

// UpdateStatus transitions a job and applies the whitelisted patch in a
// single read-modify-write. Transitions only move forward along
// pending -> processing -> completed|failed; repeating the current status
// or updating a terminal job is a logged no-op, which makes the call
// idempotent under message redelivery.
func (s *Store) UpdateStatus(ctx context.Context, id string, status domain.JobStatus, patch *domain.StatusPatch) (*domain.Job, error) {
	rank, ok := statusRank[status]
	if !ok {
		return nil, fmt.Errorf("invalid job status %q", status)
	}

	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if current.Status.Terminal() || rank <= statusRank[current.Status] {
		s.logger.WithFields(logger.Fields{
			logger.FieldJobID: id,
			"from":            current.Status,
			"to":              status,
		}).Warn("Ignoring status transition outside the legal chain")
		return current, nil
	}

	merged := current.Clone()
	immutable := snapshotImmutable(current)

	if patch != nil {
		applyPatch(merged, patch, s.logger)
	}

	// Defense in depth: even if a merge above ever grows a path that
	// touches identity fields, the snapshot wins.
	s.restoreImmutable(immutable, merged)

	now := time.Now().UTC()
	if status == domain.JobStatusProcessing && merged.ProcessingStartedAt == nil {
		merged.ProcessingStartedAt = &now
	}
	if status.Terminal() && merged.ProcessingCompletedAt == nil {
		merged.ProcessingCompletedAt = &now
	}
	merged.Status = status
	merged.UpdatedAt = now

	if err := s.put(ctx, merged); err != nil {
		return nil, err
	}
	return merged, nil
}

// applyPatch merges the whitelisted patch fields, keeping result and
// error mutually exclusive over the job's lifetime.
func applyPatch(job *domain.Job, patch *domain.StatusPatch, log *logger.Logger) {
	if patch.Result != nil {
		if job.Error != nil {
			log.WithField(logger.FieldJobID, job.ID).
				Warn("Dropping result patch: job already carries an error")
		} else {
			job.Result = patch.Result
		}
	}
	if patch.Error != nil {
		if job.Result != nil {
			log.WithField(logger.FieldJobID, job.ID).
				Warn("Dropping error patch: job already carries a result")
		} else {
			job.Error = patch.Error
		}
	}
	if len(patch.Metadata) > 0 {
		mergeMetadata(job, patch.Metadata)
	}
}

// UpdateMetadata merges additional keys into the job's metadata bag.
// The merge is additive only; existing keys are never deleted.
func (s *Store) UpdateMetadata(ctx context.Context, id string, partial map[string]interface{}) (*domain.Job, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	merged := current.Clone()
	immutable := snapshotImmutable(current)
	mergeMetadata(merged, partial)
	s.restoreImmutable(immutable, merged)
	merged.UpdatedAt = time.Now().UTC()

	if err := s.put(ctx, merged); err != nil {
		return nil, err
	}
	return merged, nil
}

func mergeMetadata(job *domain.Job, partial map[string]interface{}) {
	if job.Metadata == nil {
		job.Metadata = make(map[string]interface{}, len(partial))
	}
	for k, v := range partial {
		job.Metadata[k] = v
	}
}

// ListRecent returns up to limit jobs ordered most-recently-mutated
// first, plus an opaque cursor for the next page ("" when exhausted).
// The sort key is the storage layer's own last-modified stamp, which
// the store controls, so ordering stays stable under concurrent writers
// regardless of client-supplied timestamps. An empty cursor starts from
// the newest record; an undecodable one is ErrBadCursor.
func (s *Store) ListRecent(ctx context.Context, limit int, cursor string) ([]*domain.Job, string, error) {
	infos, err := s.listRecordInfos(ctx)
	if err != nil {
		return nil, "", err
	}

	if cursor != "" {
		after, afterKey, err := decodeCursor(cursor)
		if err != nil {
			return nil, "", err
		}
		for len(infos) > 0 && !pastCursor(infos[0], after, afterKey) {
			infos = infos[1:]
		}
	}

	if limit <= 0 || limit > len(infos) {
		limit = len(infos)
	}

	jobs := make([]*domain.Job, 0, limit)
	for _, info := range infos[:limit] {
		job, err := s.loadByKey(ctx, info.Key)
		if err != nil {
			s.logger.WithField("key", info.Key).WithError(err).Warn("Skipping unreadable job record")
			continue
		}
		jobs = append(jobs, job)
	}

	next := ""
	if limit < len(infos) && limit > 0 {
		last := infos[limit-1]
		next = encodeCursor(last.LastModified, last.Key)
	}
	return jobs, next, nil
}

// encodeCursor packs a page boundary into an opaque token.
func encodeCursor(lastModified time.Time, key string) string {
	raw := fmt.Sprintf("%d|%s", lastModified.UnixNano(), key)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func decodeCursor(cursor string) (time.Time, string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("%w: %v", ErrBadCursor, err)
	}
	nanos, key, ok := strings.Cut(string(raw), "|")
	if !ok {
		return time.Time{}, "", ErrBadCursor
	}
	n, err := strconv.ParseInt(nanos, 10, 64)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("%w: %v", ErrBadCursor, err)
	}
	return time.Unix(0, n), key, nil
}

// pastCursor reports whether info sorts strictly after the cursor
// position in the newest-first ordering.
func pastCursor(info storage.ObjectInfo, after time.Time, afterKey string) bool {
	if info.LastModified.Before(after) {
		return true
	}
	return info.LastModified.Equal(after) && info.Key > afterKey
}

// listRecordInfos lists all job record objects, newest mutation first.
// Ties on the mutation stamp break on the key so pagination never skips
// or repeats a record.
func (s *Store) listRecordInfos(ctx context.Context) ([]storage.ObjectInfo, error) {
	infos, err := s.storage.List(ctx, storage.JobRecordPrefix())
	if err != nil {
		return nil, fmt.Errorf("failed to list job records: %w", err)
	}
	sort.Slice(infos, func(i, j int) bool {
		if !infos[i].LastModified.Equal(infos[j].LastModified) {
			return infos[i].LastModified.After(infos[j].LastModified)
		}
		return infos[i].Key < infos[j].Key
	})
	return infos, nil
}

func (s *Store) loadByKey(ctx context.Context, key string) (*domain.Job, error) {
	data, err := s.storage.DownloadBytes(ctx, key)
	if err != nil {
		return nil, err
	}
	var job domain.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("corrupt job record %s: %w", key, err)
	}
	return &job, nil
}

// Delete removes the job record and its referenced content blob.
func (s *Store) Delete(ctx context.Context, id string) error {
	job, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := s.storage.Delete(ctx, storage.JobRecordKey(id)); err != nil {
		return fmt.Errorf("failed to delete job record %s: %w", id, err)
	}
	if job.ContentRef != "" {
		if err := s.storage.Delete(ctx, job.ContentRef); err != nil {
			s.logger.WithFields(logger.Fields{
				logger.FieldJobID: id,
				"content_ref":     job.ContentRef,
			}).WithError(err).Warn("Failed to delete job content blob")
		}
	}
	return nil
}

// PruneToRetentionLimit deletes every job beyond the keep most-recent
// ones and returns how many were removed. Individual deletion failures
// are logged and skipped; the pass never aborts part-way.
func (s *Store) PruneToRetentionLimit(ctx context.Context, keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}

	infos, err := s.listRecordInfos(ctx)
	if err != nil {
		return 0, err
	}
	if len(infos) <= keep {
		return 0, nil
	}

	deleted := 0
	for _, info := range infos[keep:] {
		id := jobIDFromKey(info.Key)
		if id == "" {
			continue
		}
		if err := s.Delete(ctx, id); err != nil {
			s.logger.WithField(logger.FieldJobID, id).WithError(err).Warn("Retention prune failed for job")
			continue
		}
		deleted++
	}

	if deleted > 0 {
		s.logger.WithFields(logger.Fields{
			logger.FieldCount: deleted,
			"keep":            keep,
		}).Info("Retention prune removed jobs")
	}
	return deleted, nil
}

// jobIDFromKey recovers the job id from a record key like jobs/{id}.json.
func jobIDFromKey(key string) string {
	name := strings.TrimPrefix(key, storage.JobRecordPrefix())
	return strings.TrimSuffix(name, ".json")
}

// immutableFields is the snapshot of the identity fields no update may
// change after creation.
type immutableFields struct {
	id         string
	createdAt  time.Time
	fileName   string
	contentRef string
	sourceType domain.SourceType
}

func snapshotImmutable(job *domain.Job) immutableFields {
	return immutableFields{
		id:         job.ID,
		createdAt:  job.CreatedAt,
		fileName:   job.FileName,
		contentRef: job.ContentRef,
		sourceType: job.SourceType,
	}
}

// restoreImmutable force-restores the identity snapshot over a merged
// record, logging every blocked change attempt.
func (s *Store) restoreImmutable(snap immutableFields, job *domain.Job) {
	blocked := func(field string) {
		s.logger.WithFields(logger.Fields{
			logger.FieldJobID: snap.id,
			"field":           field,
		}).Warn("Blocked attempt to change immutable job field")
	}

	if job.ID != snap.id {
		blocked("id")
		job.ID = snap.id
	}
	if !job.CreatedAt.Equal(snap.createdAt) {
		blocked("createdAt")
		job.CreatedAt = snap.createdAt
	}
	if job.FileName != snap.fileName {
		blocked("fileName")
		job.FileName = snap.fileName
	}
	if job.ContentRef != snap.contentRef {
		blocked("contentRef")
		job.ContentRef = snap.contentRef
	}
	if job.SourceType != snap.sourceType {
		blocked("sourceType")
		job.SourceType = snap.sourceType
	}
}

// put serializes and writes a job record.
func (s *Store) put(ctx context.Context, job *domain.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to serialize job %s: %w", job.ID, err)
	}

	key := storage.JobRecordKey(job.ID)
	if err := s.storage.Upload(ctx, key, bytes.NewReader(data), int64(len(data)), "application/json"); err != nil {
		return fmt.Errorf("failed to store job %s: %w", job.ID, err)
	}
	return nil
}
