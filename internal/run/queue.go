package run

import (
	"context"
)

// Handler processes run ids delivered by a queue.
type Handler func(ctx context.Context, runID string) error

// Producer pushes run ids onto the queue.
type Producer interface {
	Publish(ctx context.Context, runID string) error
	Close() error
}

// Consumer pulls run ids off the queue and hands them to a handler.
type Consumer interface {
	Consume(ctx context.Context, workerCount int, handler Handler) error
	Close() error
}

// Queue is both ends at once.
type Queue interface {
	Producer
	Consumer
}
