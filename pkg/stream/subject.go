package stream

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned when publishing to a Subject that already completed or failed.
var ErrClosed = errors.New("stream: subject closed")

// Subject is a hot, in-process Source. Values published before a subscriber
// joins are not replayed to it.
type Subject[T any] struct {
	pubMu sync.Mutex // serialises Publish, Fail and Complete

	mu   sync.Mutex
	subs map[*subscriber[T]]struct{}
	done bool
	err  error
}

type subscriber[T any] struct {
	ctx    context.Context
	values chan T
	errs   chan error
	closed chan struct{}
}

func NewSubject[T any]() *Subject[T] {
	return &Subject[T]{
		subs: make(map[*subscriber[T]]struct{}),
	}
}

// Subscribe registers a live subscriber. Subscribing to a terminated subject
// yields the terminal signal right away.
func (s *Subject[T]) Subscribe(ctx context.Context) (<-chan T, <-chan error) {
	sub := &subscriber[T]{
		ctx:    ctx,
		values: make(chan T),
		errs:   make(chan error, 1),
		closed: make(chan struct{}),
	}

	s.mu.Lock()
	if s.done {
		err := s.err
		s.mu.Unlock()
		if err != nil {
			sub.errs <- err
		} else {
			close(sub.values)
		}
		return sub.values, sub.errs
	}
	s.subs[sub] = struct{}{}
	s.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			s.remove(sub)
		case <-sub.closed:
		}
	}()

	return sub.values, sub.errs
}

// Publish hands v to every current subscriber, blocking until each one has
// received it or cancelled its subscription.
func (s *Subject[T]) Publish(v T) error {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	subs, ok := s.snapshot()
	if !ok {
		return ErrClosed
	}
	for _, sub := range subs {
		select {
		case sub.values <- v:
		case <-sub.ctx.Done():
		}
	}
	return nil
}

// Fail terminates every subscriber with err.
func (s *Subject[T]) Fail(err error) error {
	return s.terminate(err)
}

// Complete terminates every subscriber by closing its value channel.
func (s *Subject[T]) Complete() error {
	return s.terminate(nil)
}

// Subscribers returns the number of live subscribers.
func (s *Subject[T]) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *Subject[T]) terminate(err error) error {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return ErrClosed
	}
	s.done = true
	s.err = err
	subs := s.subs
	s.subs = make(map[*subscriber[T]]struct{})
	s.mu.Unlock()

	for sub := range subs {
		if err != nil {
			sub.errs <- err
		} else {
			close(sub.values)
		}
		close(sub.closed)
	}
	return nil
}

func (s *Subject[T]) snapshot() ([]*subscriber[T], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return nil, false
	}
	out := make([]*subscriber[T], 0, len(s.subs))
	for sub := range s.subs {
		out = append(out, sub)
	}
	return out, true
}

func (s *Subject[T]) remove(sub *subscriber[T]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, sub)
}
