package usecase

import (
	"context"
	"time"
)

// processItem drives one claimed item through
// uploading -> converting -> done|failed. The caller must have claimed
// the index first; ownership is exclusive until a terminal state.
//
// A progressive-commit failure after a successful conversion never
// reverts the item: the converted file is already safely stored, only
// the record linkage is missing, and the final commit repairs it.
func (c *PipelineController) processItem(ctx context.Context, session *Session, index int) {
	raw, cls, _, ok := session.itemAt(index)
	if !ok {
		return
	}

	start := time.Now()
	if c.metrics != nil {
		c.metrics.ConversionStarted()
	}

	outputURL, err := c.gateway.Convert(ctx, raw, func(percent int) {
		session.setProgress(index, percent)
		if percent >= 100 {
			session.markConverting(index)
		}
	})

	if c.metrics != nil {
		c.metrics.ConversionFinished(time.Since(start), err)
	}
	if err != nil {
		session.markFailed(index, err.Error())
		c.logger.Warn("conversion_failed",
			"batch_id", session.ID,
			"index", index,
			"filename", raw.OriginalFilename,
			"error", err,
		)
		return
	}

	session.markDone(index, outputURL)

	// Progressive commit. Only classified items commit here; unmatched
	// items wait for the review stage. Failures are logged and swallowed.
	if cls.GroupKey == "" {
		return
	}
	if err := c.committer.Commit(ctx, cls.GroupKey, cls.GroupKey, cls.Subtype, outputURL, raw.OriginalFilename, commitModeProgressive); err != nil {
		c.logger.Error("progressive_commit_failed",
			"batch_id", session.ID,
			"index", index,
			"group_key", cls.GroupKey,
			"error", err,
		)
	}
}
