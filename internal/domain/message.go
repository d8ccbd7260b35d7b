package domain

import (
	"encoding/json"
	"fmt"
)

// MessageType discriminates the two kinds of review work a queue message
// can carry.
type MessageType string

const (
	MessageTypeFileReview MessageType = "file_review"
	MessageTypeTextReview MessageType = "text_review"
)

// QueueMessage is the ephemeral work handoff between submission and the
// worker. It is owned by the message queue and never persisted here; the
// job store remains the source of truth for job state.
type QueueMessage struct {
	JobID       string      `json:"jobId"`
	MessageType MessageType `json:"messageType"`
	ContentRef  string      `json:"contentRef"`
	ContentType string      `json:"contentType,omitempty"`
	FileName    string      `json:"filename,omitempty"`
}

// ParseQueueMessage decodes and validates a raw message body. A missing
// job id or an unknown message type makes the message a poison message:
// the caller must delete it without touching the job store.
func ParseQueueMessage(body string) (*QueueMessage, error) {
	var msg QueueMessage
	if err := json.Unmarshal([]byte(body), &msg); err != nil {
		return nil, fmt.Errorf("invalid message body: %w", err)
	}
	if msg.JobID == "" {
		return nil, fmt.Errorf("message has no job id")
	}
	switch msg.MessageType {
	case MessageTypeFileReview, MessageTypeTextReview:
	default:
		return nil, fmt.Errorf("unknown message type %q", msg.MessageType)
	}
	if msg.ContentRef == "" {
		return nil, fmt.Errorf("message has no content reference")
	}
	return &msg, nil
}
