package stream

import (
	"context"
	"sync"
)

// Merge fans several sources of the same type into one, preserving the order
// in which each value arrives. The merged stream fails on the first upstream
// error and completes once every upstream has completed.
func Merge[T any](sources ...Source[T]) Source[T] {
	return SourceFunc[T](func(ctx context.Context) (<-chan T, <-chan error) {
		ctx, cancel := context.WithCancel(ctx)

		out := make(chan T)
		errs := make(chan error, 1)

		var (
			wg      sync.WaitGroup
			errOnce sync.Once
			failed  bool
		)
		fail := func(err error) {
			errOnce.Do(func() {
				failed = true
				errs <- err
				cancel()
			})
		}

		for _, src := range sources {
			values, upErrs := src.Subscribe(ctx)
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					select {
					case v, ok := <-values:
						if !ok {
							return
						}
						select {
						case out <- v:
						case <-ctx.Done():
							return
						}
					case err := <-upErrs:
						fail(err)
						return
					case <-ctx.Done():
						return
					}
				}
			}()
		}

		go func() {
			wg.Wait()
			// failed is only written inside errOnce, before cancel; every
			// forwarder has returned by now.
			if !failed && ctx.Err() == nil {
				close(out)
			}
			cancel()
		}()

		return out, errs
	})
}
