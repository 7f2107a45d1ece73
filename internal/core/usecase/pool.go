package usecase

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// runPool drives every item of the snapshot through the item pipeline
// with at most session.Concurrency parallel workers. Each worker claims
// the next unclaimed index from the shared cursor and finishes that item
// before claiming another. Item failures never abort the run.
func (c *PipelineController) runPool(ctx context.Context, session *Session) {
	queued := session.queuedIndexes()
	if len(queued) == 0 {
		return
	}

	workers := session.Concurrency
	if workers <= 0 {
		workers = defaultConcurrency
	}
	if workers > len(queued) {
		workers = len(queued)
	}

	var cursor atomic.Int64
	g, gCtx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for {
				if gCtx.Err() != nil {
					return nil
				}
				next := int(cursor.Add(1)) - 1
				if next >= len(queued) {
					return nil
				}
				index := queued[next]
				// Skip items moved out of queued since the snapshot,
				// e.g. a single retry driven outside this run.
				if !session.claim(index) {
					continue
				}
				c.processItem(gCtx, session, index)
			}
		})
	}
	_ = g.Wait()
}
