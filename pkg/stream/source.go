package stream

import "context"

// Source is a push-based stream of values.
//
// Subscribe starts delivery and returns a value channel and an error channel.
// A closed value channel means the stream completed; a value on the error
// channel means it failed. Either is terminal. Cancelling ctx releases the
// subscription; after that no further values are guaranteed.
type Source[T any] interface {
	Subscribe(ctx context.Context) (<-chan T, <-chan error)
}

// SourceFunc adapts a plain function to the Source interface.
type SourceFunc[T any] func(ctx context.Context) (<-chan T, <-chan error)

func (f SourceFunc[T]) Subscribe(ctx context.Context) (<-chan T, <-chan error) {
	return f(ctx)
}
