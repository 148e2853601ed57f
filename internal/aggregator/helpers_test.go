package aggregator_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"pricestate/internal/aggregator"
	"pricestate/internal/price"
	"pricestate/pkg/stream"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const waitFor = time.Second

// recorder buffers everything an observer is told.
type recorder struct {
	snapshots chan price.Table
	errs      chan error
	completed chan struct{}
	once      sync.Once
}

func newRecorder() *recorder {
	return &recorder{
		snapshots: make(chan price.Table, 64),
		errs:      make(chan error, 4),
		completed: make(chan struct{}),
	}
}

func (r *recorder) OnSnapshot(t price.Table) { r.snapshots <- t }
func (r *recorder) OnError(err error)        { r.errs <- err }
func (r *recorder) OnComplete()              { r.once.Do(func() { close(r.completed) }) }

func (r *recorder) next(t *testing.T) price.Table {
	t.Helper()
	select {
	case tbl := <-r.snapshots:
		return tbl
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for snapshot")
		return nil
	}
}

func (r *recorder) requireNoSnapshot(t *testing.T) {
	t.Helper()
	select {
	case tbl := <-r.snapshots:
		t.Fatalf("unexpected snapshot: %v", tbl)
	case <-time.After(30 * time.Millisecond):
	}
}

func (r *recorder) requireNoError(t *testing.T) {
	t.Helper()
	select {
	case err := <-r.errs:
		t.Fatalf("unexpected error: %v", err)
	default:
	}
}

// countingSource wraps a Subject and tracks live upstream subscriptions.
type countingSource[T any] struct {
	*stream.Subject[T]
	subscribed atomic.Int32
	active     atomic.Int32
}

func newCountingSource[T any]() *countingSource[T] {
	return &countingSource[T]{Subject: stream.NewSubject[T]()}
}

func (s *countingSource[T]) Subscribe(ctx context.Context) (<-chan T, <-chan error) {
	s.subscribed.Add(1)
	s.active.Add(1)
	go func() {
		<-ctx.Done()
		s.active.Add(-1)
	}()
	return s.Subject.Subscribe(ctx)
}

type fixture struct {
	agg      *aggregator.Aggregator
	updates  *countingSource[price.Update]
	resets   *countingSource[price.Reset]
	external *countingSource[price.Reset]
}

func setup(t *testing.T) *fixture {
	updates := newCountingSource[price.Update]()
	resets := newCountingSource[price.Reset]()
	return &fixture{
		agg:     aggregator.New(updates, resets, zaptest.NewLogger(t)),
		updates: updates,
		resets:  resets,
	}
}

// setupExternal also wires an independently driven reset source.
func setupExternal(t *testing.T) *fixture {
	updates := newCountingSource[price.Update]()
	resets := newCountingSource[price.Reset]()
	external := newCountingSource[price.Reset]()
	return &fixture{
		agg: aggregator.New(updates, resets, zaptest.NewLogger(t),
			aggregator.WithExternalResets(external)),
		updates:  updates,
		resets:   resets,
		external: external,
	}
}

func (f *fixture) update(t *testing.T, symbol string, p float64) {
	t.Helper()
	require.NoError(t, f.updates.Publish(price.Update{Symbol: symbol, Price: p}))
}

func (f *fixture) reset(t *testing.T) {
	t.Helper()
	require.NoError(t, f.resets.Publish(price.Reset{}))
}
