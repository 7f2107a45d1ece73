package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dmkorolev/imageflow/internal/core/domain"
	"github.com/dmkorolev/imageflow/internal/core/ports"
	"github.com/dmkorolev/imageflow/internal/observability/metrics"
)

// CommitCoordinator persists one successfully converted item into the
// record store. Replays are idempotent: an item already present under
// the resolved group with the same output URL is left untouched.
type CommitCoordinator struct {
	resolver *GroupResolver
	items    ports.ItemStore
	metrics  *metrics.PipelineMetrics
}

func NewCommitCoordinator(resolver *GroupResolver, items ports.ItemStore, m *metrics.PipelineMetrics) *CommitCoordinator {
	return &CommitCoordinator{
		resolver: resolver,
		items:    items,
		metrics:  m,
	}
}

// Commit resolves the group for groupKey (synthesizing a unique key when
// the classifier produced none, so unclassifiable items still get a
// group) and inserts the item unless it is already present.
func (c *CommitCoordinator) Commit(
	ctx context.Context,
	groupKey, displayName string,
	subtype domain.Subtype,
	outputURL, originalFilename string,
	mode string,
) error {
	if groupKey == "" {
		groupKey = fmt.Sprintf("%s-%s", domain.UnmatchedKey, uuid.NewString())
	}
	if displayName == "" {
		displayName = groupKey
	}

	groupID, err := c.resolver.Resolve(ctx, groupKey, displayName)
	if err != nil {
		return fmt.Errorf("resolve group %q: %w", groupKey, err)
	}

	existing, err := c.items.FindByGroupAndURL(ctx, groupID, outputURL)
	if err != nil && !domain.IsKind(err, domain.ErrItemNotFound) {
		return fmt.Errorf("check existing item: %w", err)
	}
	if existing != nil {
		if c.metrics != nil {
			c.metrics.DuplicateSuppressed()
		}
		return nil
	}

	item := &domain.Item{
		ID:               uuid.NewString(),
		GroupID:          groupID,
		Subtype:          subtype,
		OutputURL:        outputURL,
		OriginalFilename: originalFilename,
		CreatedAt:        time.Now().UTC(),
	}
	if err := c.items.Create(ctx, item); err != nil {
		return fmt.Errorf("insert item: %w", err)
	}
	if c.metrics != nil {
		c.metrics.ItemCommitted(mode)
	}
	return nil
}
