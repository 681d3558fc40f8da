// Package worker runs a per-key job loop with a shared concurrency cap.
package worker

import "context"

// Start consumes jobs from the channel on its own goroutine. Each job holds
// a slot in sem while handle runs, so the semaphore caps concurrency across
// all workers sharing it. The goroutine exits when ctx is cancelled or the
// channel closes.
func Start[J any](ctx context.Context, sem chan struct{}, jobs <-chan J, handle func(context.Context, J)) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case job, ok := <-jobs:
				if !ok {
					return
				}
				select {
				case sem <- struct{}{}:
				case <-ctx.Done():
					return
				}
				func() {
					defer func() { <-sem }()
					handle(ctx, job)
				}()
			}
		}
	}()
}

// Enqueue offers a job to the channel without blocking past ctx.
func Enqueue[J any](ctx context.Context, jobs chan<- J, job J) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case jobs <- job:
		return nil
	}
}
