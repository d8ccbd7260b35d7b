// Package queue provides the at-least-once message queue coordinating
// work handoff between submission and the worker.
package queue

import "context"

// Message is one received queue message. ReceiptHandle identifies this
// particular delivery and is required for Delete and ChangeVisibility.
type Message struct {
	ID            string
	ReceiptHandle string
	Body          string
}

// MessageQueue defines the queue operations the system consumes.
type MessageQueue interface {
	// Send enqueues a message body
	Send(ctx context.Context, body string) error

	// Receive long-polls for up to maxMessages messages
	Receive(ctx context.Context, maxMessages int32, waitSeconds int32) ([]Message, error)

	// Delete removes a delivered message so it is never redelivered
	Delete(ctx context.Context, receiptHandle string) error

	// ChangeVisibility extends or shortens the redelivery window of a
	// delivered message
	ChangeVisibility(ctx context.Context, receiptHandle string, timeoutSeconds int32) error
}
