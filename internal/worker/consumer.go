// Package worker drives review jobs from queue intake to a terminal
// state. A single poll loop fetches messages and dispatches each one to
// its own goroutine under a fixed concurrency ceiling; messages received
// while at capacity wait in a local backlog instead of being re-queued.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/DEFRA/content-reviewer-backend-sub000/internal/domain"
	"github.com/DEFRA/content-reviewer-backend-sub000/internal/extract"
	"github.com/DEFRA/content-reviewer-backend-sub000/internal/jobstore"
	"github.com/DEFRA/content-reviewer-backend-sub000/internal/logger"
	"github.com/DEFRA/content-reviewer-backend-sub000/internal/queue"
	"github.com/DEFRA/content-reviewer-backend-sub000/internal/redact"
	"github.com/DEFRA/content-reviewer-backend-sub000/internal/reviewer"
	"github.com/DEFRA/content-reviewer-backend-sub000/internal/storage"
)

// Config holds queue consumer configuration.
type Config struct {
	MaxConcurrentRequests int
	BatchSize             int32         // max messages per receive, capped at 10 by SQS
	WaitSeconds           int32         // long-poll duration
	VisibilityTimeout     int32         // seconds a dispatched message stays hidden; 0 keeps the queue default
	BackoffMin            time.Duration // first retry delay after a transient queue error
	BackoffMax            time.Duration // retry delay cap
	MaxConsecutiveFatal   int           // fatal queue errors tolerated before stopping
}

func (c *Config) withDefaults() Config {
	cfg := *c
	if cfg.MaxConcurrentRequests <= 0 {
		cfg.MaxConcurrentRequests = 4
	}
	if cfg.BatchSize <= 0 || cfg.BatchSize > 10 {
		cfg.BatchSize = 10
	}
	if cfg.WaitSeconds <= 0 {
		cfg.WaitSeconds = 10
	}
	if cfg.BackoffMin <= 0 {
		cfg.BackoffMin = 5 * time.Second
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = 30 * time.Second
	}
	if cfg.MaxConsecutiveFatal <= 0 {
		cfg.MaxConsecutiveFatal = 3
	}
	return cfg
}

// Status is the read-only operational snapshot of a consumer.
type Status struct {
	Running                   bool `json:"running"`
	MaxConcurrentRequests     int  `json:"maxConcurrentRequests"`
	CurrentConcurrentRequests int  `json:"currentConcurrentRequests"`
	QueuedMessages            int  `json:"queuedMessages"`
}

// Consumer polls the message queue and resolves each message through
// extraction, redaction, review and persistence.
type Consumer struct {
	queue    queue.MessageQueue
	storage  storage.ObjectStorage
	jobs     *jobstore.Store
	reviewer reviewer.Reviewer
	logger   *logger.Logger
	cfg      Config

	mu       sync.Mutex
	running  bool
	inFlight int
	backlog  []queue.Message

	// slotFree is signalled by each finishing task so the loop can wake
	// up the moment capacity returns.
	slotFree chan struct{}
}

// New creates a queue consumer. All collaborators are injected so tests
// can substitute fakes.
func New(q queue.MessageQueue, objectStorage storage.ObjectStorage, jobs *jobstore.Store, rev reviewer.Reviewer, log *logger.Logger, cfg *Config) *Consumer {
	if cfg == nil {
		cfg = &Config{}
	}
	resolved := cfg.withDefaults()
	return &Consumer{
		queue:    q,
		storage:  objectStorage,
		jobs:     jobs,
		reviewer: rev,
		logger:   log,
		cfg:      resolved,
		slotFree: make(chan struct{}, resolved.MaxConcurrentRequests),
	}
}

// Status returns the current operational snapshot.
func (c *Consumer) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		Running:                   c.running,
		MaxConcurrentRequests:     c.cfg.MaxConcurrentRequests,
		CurrentConcurrentRequests: c.inFlight,
		QueuedMessages:            len(c.backlog),
	}
}

// Run polls the queue until the context is cancelled or the queue fails
// fatally too many times in a row. It returns after in-flight jobs have
// drained.
func (c *Consumer) Run(ctx context.Context) error {
	c.setRunning(true)
	defer c.setRunning(false)
	defer c.drain()

	c.logger.WithField("max_concurrent", c.cfg.MaxConcurrentRequests).Info("Queue consumer started")

	backoff := c.cfg.BackoffMin
	consecutiveFatal := 0
	for {
		if ctx.Err() != nil {
			c.logger.Info("Queue consumer stopping")
			return nil
		}

		c.dispatch(ctx)

		// Only fetch when spare capacity exists, counting both running
		// jobs and the local backlog, so the backlog stays bounded.
		spare := c.spareCapacity()
		if spare <= 0 {
			select {
			case <-ctx.Done():
			case <-c.slotFree:
			}
			continue
		}

		batch := c.cfg.BatchSize
		if int32(spare) < batch {
			batch = int32(spare)
		}

		messages, err := c.queue.Receive(ctx, batch, c.cfg.WaitSeconds)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("Queue consumer stopping")
				return nil
			}
			if queue.IsFatal(err) {
				consecutiveFatal++
				c.logger.WithError(err).WithField(logger.FieldCount, consecutiveFatal).
					Error("Fatal queue error")
				if consecutiveFatal >= c.cfg.MaxConsecutiveFatal {
					return fmt.Errorf("queue failed %d times in a row: %w", consecutiveFatal, err)
				}
			} else {
				c.logger.WithError(err).Warn("Transient queue error, backing off")
			}
			if !sleepCtx(ctx, backoff) {
				return nil
			}
			backoff = minDuration(backoff*2, c.cfg.BackoffMax)
			continue
		}

		consecutiveFatal = 0
		backoff = c.cfg.BackoffMin

		if len(messages) > 0 {
			c.mu.Lock()
			c.backlog = append(c.backlog, messages...)
			c.mu.Unlock()
			c.dispatch(ctx)
		}
	}
}

func (c *Consumer) setRunning(v bool) {
	c.mu.Lock()
	c.running = v
	c.mu.Unlock()
}

func (c *Consumer) spareCapacity() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg.MaxConcurrentRequests - c.inFlight - len(c.backlog)
}

// dispatch moves backlogged messages into running tasks while capacity
// allows. The loop goroutine is the only caller, so the in-flight
// counter only ever grows here and shrinks in task completion.
func (c *Consumer) dispatch(ctx context.Context) {
	for {
		c.mu.Lock()
		if c.inFlight >= c.cfg.MaxConcurrentRequests || len(c.backlog) == 0 {
			c.mu.Unlock()
			return
		}
		msg := c.backlog[0]
		c.backlog = c.backlog[1:]
		c.inFlight++
		c.mu.Unlock()

		go func(msg queue.Message) {
			defer func() {
				c.mu.Lock()
				c.inFlight--
				c.mu.Unlock()
				select {
				case c.slotFree <- struct{}{}:
				default:
				}
			}()
			c.processMessage(ctx, msg)
		}(msg)
	}
}

// drain waits for in-flight tasks to finish, bounded so shutdown cannot
// hang on a stuck pipeline.
func (c *Consumer) drain() {
	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		remaining := c.inFlight
		c.mu.Unlock()
		if remaining == 0 {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	c.logger.Warn("Shutdown drain timed out with jobs still in flight")
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

// pipelineFailure carries a user-safe job error plus the message
// disposition for one failed pipeline run.
type pipelineFailure struct {
	jobErr *domain.JobError

	// alwaysDelete marks deterministic failures (unsupported format,
	// corrupt document) where redelivery would only repeat the outcome.
	alwaysDelete bool

	cause error
}

// processMessage runs the full pipeline for one received message and
// settles the message's fate: deleted on success, deleted for poison
// input, or left for redelivery when a failure could not be recorded.
func (c *Consumer) processMessage(ctx context.Context, msg queue.Message) {
	parsed, err := domain.ParseQueueMessage(msg.Body)
	if err != nil {
		// Poison message: delete immediately so it never loops, and do
		// not touch the job store.
		c.logger.WithField(logger.FieldMessageID, msg.ID).WithError(err).
			Error("Deleting unparseable queue message")
		c.deleteMessage(ctx, msg)
		return
	}

	log := c.logger.WithFields(logger.Fields{
		logger.FieldJobID:     parsed.JobID,
		logger.FieldMessageID: msg.ID,
	})
	ctx = logger.SetJobID(ctx, parsed.JobID)

	if c.cfg.VisibilityTimeout > 0 {
		if err := c.queue.ChangeVisibility(ctx, msg.ReceiptHandle, c.cfg.VisibilityTimeout); err != nil {
			log.WithError(err).Warn("Failed to extend message visibility")
		}
	}

	// Losing the chance to process is worse than losing the status
	// update, so a failed transition is logged and the pipeline runs on.
	if _, err := c.jobs.UpdateStatus(ctx, parsed.JobID, domain.JobStatusProcessing, nil); err != nil {
		log.WithError(err).Error("Critical: could not mark job processing, continuing anyway")
	}

	started := time.Now()
	patch, failure := c.runPipeline(ctx, parsed, log)

	if failure == nil {
		if _, err := c.jobs.UpdateStatus(ctx, parsed.JobID, domain.JobStatusCompleted, patch); err != nil {
			log.WithError(err).Error("Critical: completed review could not be persisted, leaving message for redelivery")
			return
		}
		log.WithField(logger.FieldDurationMs, time.Since(started).Milliseconds()).
			Info("Review completed")
		c.deleteMessage(ctx, msg)
		return
	}

	log.WithError(failure.cause).WithField(logger.FieldStatus, failure.jobErr.Code).
		Error("Review failed")
	if c.recordFailure(ctx, parsed.JobID, failure, log) || failure.alwaysDelete {
		c.deleteMessage(ctx, msg)
	}
}

// runPipeline resolves text, redacts, reviews and redacts again. On
// success it returns the completed-status patch.
func (c *Consumer) runPipeline(ctx context.Context, msg *domain.QueueMessage, log *logger.Logger) (*domain.StatusPatch, *pipelineFailure) {
	text, failure := c.resolveText(ctx, msg)
	if failure != nil {
		return nil, failure
	}

	// Inbound redaction. The report is persisted before the review call
	// so redaction evidence survives even if the call fails.
	inbound := redact.Redact(text, nil)
	inboundReport := inbound.Report(text)
	if _, err := c.jobs.UpdateMetadata(ctx, msg.JobID, map[string]interface{}{
		"inboundPII": inboundReport,
	}); err != nil {
		log.WithError(err).Warn("Failed to persist inbound PII report")
	}

	review, err := c.reviewer.Review(ctx, inbound.RedactedText)
	if err != nil {
		return nil, &pipelineFailure{
			jobErr: domain.NewJobError(reviewer.CodeOf(err), userSafeMessage(err)),
			cause:  err,
		}
	}

	if review.Blocked {
		return nil, &pipelineFailure{
			jobErr: domain.NewJobError(domain.ErrCodeContentBlocked,
				"the review was blocked by the provider's safety policy"),
			cause: fmt.Errorf("guardrail verdict %q", review.SafetyVerdict),
		}
	}

	// Outbound redaction, merging the guardrail's own findings with the
	// redactor's.
	outbound := redact.Redact(review.Content, nil)
	outboundReport := outbound.Report(review.Content)
	outboundReport.DetectedTypes = mergeDetectedTypes(outboundReport.DetectedTypes, review.FlaggedEntities)
	outboundReport.HasPII = outboundReport.HasPII || len(review.FlaggedEntities) > 0

	result := &domain.ReviewResult{
		Raw:           outbound.RedactedText,
		Sections:      reviewer.ParseSections(outbound.RedactedText),
		SafetyVerdict: review.SafetyVerdict,
		StopReason:    review.StopReason,
		Usage:         review.Usage,
	}

	return &domain.StatusPatch{
		Result: result,
		Metadata: map[string]interface{}{
			"outboundPII": outboundReport,
		},
	}, nil
}

// resolveText fetches the referenced blob and, for file reviews, runs
// the content extractor on it.
func (c *Consumer) resolveText(ctx context.Context, msg *domain.QueueMessage) (string, *pipelineFailure) {
	data, err := c.storage.DownloadBytes(ctx, msg.ContentRef)
	if err != nil {
		code := domain.ErrCodeServiceUnavailable
		if errors.Is(err, storage.ErrObjectNotFound) {
			code = domain.ErrCodeResourceNotFound
		}
		return "", &pipelineFailure{
			jobErr: domain.NewJobError(code, "the submitted content could not be retrieved"),
			cause:  err,
		}
	}

	if msg.MessageType == domain.MessageTypeTextReview {
		return extract.Normalize(string(data)), nil
	}

	text, err := extract.Extract(data, msg.ContentType)
	if err != nil {
		if errors.Is(err, extract.ErrUnsupportedFormat) {
			return "", &pipelineFailure{
				jobErr: domain.NewJobError(domain.ErrCodeUnsupportedFormat,
					fmt.Sprintf("content type %q is not supported", msg.ContentType)),
				alwaysDelete: true,
				cause:        err,
			}
		}
		return "", &pipelineFailure{
			jobErr:       domain.NewJobError(domain.ErrCodeInvalidRequest, "the document could not be read"),
			alwaysDelete: true,
			cause:        err,
		}
	}
	return text, nil
}

// recordFailure persists the failed state and reports whether the write
// succeeded. A job that no longer exists counts as settled; anything
// else gets one last-resort retry with the minimal payload before the
// message is left for redelivery.
func (c *Consumer) recordFailure(ctx context.Context, jobID string, failure *pipelineFailure, log *logger.Logger) bool {
	patch := &domain.StatusPatch{
		Error: failure.jobErr,
		Metadata: map[string]interface{}{
			"failureCode": failure.jobErr.Code,
		},
	}
	if _, err := c.jobs.UpdateStatus(ctx, jobID, domain.JobStatusFailed, patch); err == nil {
		return true
	} else if errors.Is(err, jobstore.ErrJobNotFound) {
		log.WithError(err).Warn("Job vanished before its failure could be recorded")
		return true
	}

	if _, err := c.jobs.UpdateStatus(ctx, jobID, domain.JobStatusFailed,
		&domain.StatusPatch{Error: &domain.JobError{Message: failure.jobErr.Message, Code: failure.jobErr.Code}}); err != nil {
		log.WithError(err).Error("Critical: failure state could not be persisted, leaving message for redelivery")
		return false
	}
	return true
}

func (c *Consumer) deleteMessage(ctx context.Context, msg queue.Message) {
	if err := c.queue.Delete(ctx, msg.ReceiptHandle); err != nil {
		c.logger.WithField(logger.FieldMessageID, msg.ID).WithError(err).
			Error("Failed to delete queue message")
	}
}

// userSafeMessage keeps reviewer error text for the job record only when
// it came through the classifier; raw provider detail stays in logs.
func userSafeMessage(err error) string {
	var re *reviewer.Error
	if errors.As(err, &re) && re.Message != "" {
		return re.Message
	}
	return "the review could not be completed"
}

// mergeDetectedTypes appends guardrail entity labels that the pattern
// redactor did not already report.
func mergeDetectedTypes(detected []string, flagged []string) []string {
	seen := make(map[string]bool, len(detected))
	for _, t := range detected {
		seen[t] = true
	}
	for _, entity := range flagged {
		label := "guardrail:" + entity
		if !seen[label] {
			detected = append(detected, label)
			seen[label] = true
		}
	}
	return detected
}
