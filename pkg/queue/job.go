package queue

import "context"

// Job defines a queue job handler.
type Job interface {
	// Name returns the unique identifier of the job.
	Name() string

	// Type returns the type of message that the job handles.
	Type() string

	// Handle processes one message. A returned error schedules a retry
	// until the queue's retry limit is reached.
	Handle(ctx context.Context, msg Message) error
}
