package stream_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"pricestate/pkg/stream"

	"github.com/stretchr/testify/require"
)

const waitFor = time.Second

func recv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		require.True(t, ok, "channel closed unexpectedly")
		return v
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for value")
	}
	var zero T
	return zero
}

// go test -v --run TestSubject_DeliversToLiveSubscribers
func TestSubject_DeliversToLiveSubscribers(t *testing.T) {
	s := stream.NewSubject[int]()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, _ := s.Subscribe(ctx)
	b, _ := s.Subscribe(ctx)

	go func() { _ = s.Publish(7) }()

	// Publish hands off in no particular order, so drain both together.
	got := make([]int, 0, 2)
	for len(got) < 2 {
		select {
		case v := <-a:
			got = append(got, v)
			a = nil
		case v := <-b:
			got = append(got, v)
			b = nil
		case <-time.After(waitFor):
			t.Fatal("timed out waiting for fan-out")
		}
	}
	require.Equal(t, []int{7, 7}, got)
}

func TestSubject_DoesNotReplayToLateSubscriber(t *testing.T) {
	s := stream.NewSubject[int]()
	require.NoError(t, s.Publish(1)) // nobody listening

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	values, _ := s.Subscribe(ctx)

	go func() { _ = s.Publish(2) }()
	require.Equal(t, 2, recv(t, values))
}

func TestSubject_CancelledSubscriberDoesNotBlockPublish(t *testing.T) {
	s := stream.NewSubject[int]()
	ctx, cancel := context.WithCancel(context.Background())
	s.Subscribe(ctx)
	cancel()

	done := make(chan error, 1)
	go func() { done <- s.Publish(1) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("publish blocked on a cancelled subscriber")
	}
	require.Eventually(t, func() bool { return s.Subscribers() == 0 }, waitFor, 5*time.Millisecond)
}

func TestSubject_FailReachesCurrentAndLateSubscribers(t *testing.T) {
	s := stream.NewSubject[int]()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, errs := s.Subscribe(ctx)
	boom := errors.New("boom")
	require.NoError(t, s.Fail(boom))
	require.ErrorIs(t, recv(t, errs), boom)

	_, lateErrs := s.Subscribe(ctx)
	require.ErrorIs(t, recv(t, lateErrs), boom)

	require.ErrorIs(t, s.Publish(1), stream.ErrClosed)
	require.ErrorIs(t, s.Complete(), stream.ErrClosed)
}

func TestSubject_CompleteClosesValues(t *testing.T) {
	s := stream.NewSubject[int]()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	values, _ := s.Subscribe(ctx)
	require.NoError(t, s.Complete())

	_, ok := <-values
	require.False(t, ok)
}
