package domain

import "time"

// JobStatus represents the lifecycle state of a review job.
// The only legal path is pending -> processing -> completed|failed.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether the status is a final state.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// SourceType identifies how content was submitted for review.
type SourceType string

const (
	SourceTypeFile SourceType = "file"
	SourceTypeText SourceType = "text"
)

// Job is the durable record of one review request. It is created in
// pending state by the API layer and mutated only by the queue consumer
// until it reaches a terminal state.
//
// ID, CreatedAt, FileName, ContentRef and SourceType are immutable after
// creation; the job store refuses to change them through any update path.
type Job struct {
	ID         string     `json:"id"`
	Status     JobStatus  `json:"status"`
	SourceType SourceType `json:"sourceType"`

	FileName string `json:"fileName,omitempty"`
	FileSize int64  `json:"fileSize,omitempty"`
	MimeType string `json:"mimeType,omitempty"`

	// ContentRef is the blob key of the original submitted content.
	ContentRef string `json:"contentRef"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// Set exactly once, the first time the corresponding status is reached.
	ProcessingStartedAt   *time.Time `json:"processingStartedAt,omitempty"`
	ProcessingCompletedAt *time.Time `json:"processingCompletedAt,omitempty"`

	// Result and Error are mutually exclusive across the job's lifetime.
	Result *ReviewResult `json:"result,omitempty"`
	Error  *JobError     `json:"error,omitempty"`

	// Metadata is an open key/value bag for auxiliary findings, such as
	// PII reports. Merges into it are additive only.
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Clone returns a deep-enough copy for the read-modify-write cycle in the
// job store. Result and Error are treated as write-once values and shared.
func (j *Job) Clone() *Job {
	cp := *j
	if j.ProcessingStartedAt != nil {
		t := *j.ProcessingStartedAt
		cp.ProcessingStartedAt = &t
	}
	if j.ProcessingCompletedAt != nil {
		t := *j.ProcessingCompletedAt
		cp.ProcessingCompletedAt = &t
	}
	if j.Metadata != nil {
		cp.Metadata = make(map[string]interface{}, len(j.Metadata))
		for k, v := range j.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

// JobError is the user-safe failure recorded on a failed job. Message is
// truncated and Code is one of the stable ErrorCode labels; raw provider
// error text never lands here.
type JobError struct {
	Message string    `json:"message"`
	Code    ErrorCode `json:"code,omitempty"`
}

// StatusPatch is the whitelist of fields a status transition may change.
// Identity fields are deliberately absent, so a caller cannot corrupt
// them through this path even by accident.
type StatusPatch struct {
	Result   *ReviewResult
	Error    *JobError
	Metadata map[string]interface{}
}

// ReviewResult is the structured output of a completed review.
type ReviewResult struct {
	Raw           string         `json:"raw"`
	Sections      ReviewSections `json:"sections"`
	SafetyVerdict string         `json:"safetyVerdict,omitempty"`
	StopReason    string         `json:"stopReason,omitempty"`
	Usage         TokenUsage     `json:"usage"`
}

// ReviewSections holds the parsed sections of the reviewer's response.
type ReviewSections struct {
	Summary         string   `json:"summary,omitempty"`
	Issues          []string `json:"issues,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`
	Score           string   `json:"score,omitempty"`
}

// TokenUsage records model token consumption for one review call.
type TokenUsage struct {
	Input  int `json:"input"`
	Output int `json:"output"`
	Total  int `json:"total"`
}

// PIIReport summarises one redaction pass. Reports are produced for both
// the inbound content and the outbound reviewer response, and both are
// stored in job metadata even when empty.
type PIIReport struct {
	HasPII         bool     `json:"hasPII"`
	RedactionCount int      `json:"redactionCount"`
	DetectedTypes  []string `json:"detectedTypes"`
	OriginalLength int      `json:"originalLength"`
	RedactedLength int      `json:"redactedLength"`
}
