package iorderqueue

import "context"

// IOrderQueue is an interface for publishing order ids to the work queue.
type IOrderQueue interface {
	Publish(ctx context.Context, orderID int64) error
}

// IDeadLetterQueue is an interface for parking messages that ran out of retries.
type IDeadLetterQueue interface {
	DeadLetter(ctx context.Context, body []byte, reason string) error
}
