package model

import "context"

// Sink receives the result of every completed job.
type Sink interface {
	Publish(ctx context.Context, result Result) error
}

type SinkCloser interface {
	Sink
	Close() error
}
