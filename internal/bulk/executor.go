package bulk

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// Executor processes a list of work units in consecutive chunks of fixed
// width. Within a chunk all units are started concurrently and awaited
// jointly before the next chunk starts (bounded parallelism, chunk-synchronous
// — not a sliding window). An optional fixed delay is inserted between chunks.
//
// Cancellation is cooperative and checked at two points: before starting a new
// chunk, and before starting each unit inside a chunk. A cancellation observed
// mid-chunk lets already-started units finish naturally while not-yet-started
// units are reported as skipped instead of being invoked. In-flight operations
// are never aborted by the executor itself.
type Executor struct {
	// ChunkSize is the number of units started concurrently per chunk.
	// Defaults to 10 when zero or negative.
	ChunkSize int

	// ChunkDelay is the pause inserted after each fully-settled chunk, except
	// the last. Zero disables the delay.
	ChunkDelay time.Duration
}

// DefaultChunkSize is the executor's chunk width when none is configured.
const DefaultChunkSize = 10

// Execute runs total units through run, in chunks. flag may be nil when the
// caller has no cancellation surface (the context still applies). skip is
// invoked, in order, for every unit suppressed by cancellation; it may be nil.
//
// The returned error is ctx.Err() when the context ended the run early, nil
// otherwise. Unit failures are the caller's concern: run returns nothing, and
// recording outcomes happens inside it.
func (e *Executor) Execute(ctx context.Context, total int, flag *CancelFlag, run func(ctx context.Context, index int), skip func(index int)) error {
	chunkSize := e.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	skipFrom := func(start int) {
		if skip == nil {
			return
		}
		for i := start; i < total; i++ {
			skip(i)
		}
	}

	for start := 0; start < total; start += chunkSize {
		if flag != nil && flag.Cancelled() {
			skipFrom(start)
			return nil
		}
		if err := ctx.Err(); err != nil {
			skipFrom(start)
			return err
		}

		end := start + chunkSize
		if end > total {
			end = total
		}

		var g errgroup.Group
		for i := start; i < end; i++ {
			if flag != nil && flag.Cancelled() {
				if skip != nil {
					skip(i)
				}
				continue
			}
			index := i
			g.Go(func() error {
				run(ctx, index)
				return nil
			})
		}
		// Units never return errors; Wait only joins the chunk.
		_ = g.Wait()

		if e.ChunkDelay > 0 && end < total {
			if flag != nil && flag.Cancelled() {
				continue
			}
			timer := time.NewTimer(e.ChunkDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				skipFrom(end)
				return ctx.Err()
			case <-timer.C:
			}
		}
	}

	return nil
}

// ChunkCount returns the number of chunk-await cycles Execute performs for the
// given total, ⌈total/chunkSize⌉.
func (e *Executor) ChunkCount(total int) int {
	chunkSize := e.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if total <= 0 {
		return 0
	}
	return (total + chunkSize - 1) / chunkSize
}
