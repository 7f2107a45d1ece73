package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/dmkorolev/imageflow/internal/core/domain"
	"github.com/dmkorolev/imageflow/internal/core/ports"
	"github.com/dmkorolev/imageflow/internal/observability/metrics"
)

const (
	defaultConcurrency = 4

	commitModeProgressive = "progressive"
	commitModeFinal       = "final"
)

var (
	errUnknownBatch    = errors.New("unknown batch id")
	errIndexOutOfRange = errors.New("item index out of range")
	errNotRetryable    = errors.New("only failed items can be retried")
	errRunInFlight     = errors.New("conversion run already active")
	errNotAllTerminal  = errors.New("items still pending or in flight")
	errNothingDone     = errors.New("no item finished successfully")
	errUnknownDraft    = errors.New("unknown draft key")
	errEmptyGroupKey   = errors.New("empty group key")
)

// PipelineController orchestrates the convert, review and commit stages
// of submitted batches and owns the retry operations.
type PipelineController struct {
	registry  *SessionRegistry
	gateway   ports.ConversionGateway
	resolver  *GroupResolver
	committer *CommitCoordinator
	reporter  ports.CommitReporter
	metrics   *metrics.PipelineMetrics
	logger    *slog.Logger
}

func NewPipelineController(
	registry *SessionRegistry,
	gateway ports.ConversionGateway,
	resolver *GroupResolver,
	committer *CommitCoordinator,
	reporter ports.CommitReporter,
	m *metrics.PipelineMetrics,
	logger *slog.Logger,
) *PipelineController {
	if logger == nil {
		logger = slog.Default()
	}
	return &PipelineController{
		registry:  registry,
		gateway:   gateway,
		resolver:  resolver,
		committer: committer,
		reporter:  reporter,
		metrics:   m,
		logger:    logger,
	}
}

// Start runs the bounded-concurrency conversion over all queued items.
// It is idempotent while a run is active: the second call is a no-op.
func (c *PipelineController) Start(ctx context.Context, batchID string) error {
	session, err := c.registry.get(batchID)
	if err != nil {
		return err
	}
	if session.currentStage() != domain.StageConverting {
		return domain.WrapError(domain.ErrStageConflict, "start conversion", fmt.Errorf("stage is %s", session.currentStage()))
	}
	if !session.runActive.CompareAndSwap(false, true) {
		c.logger.Debug("start_skipped", "batch_id", batchID, "reason", errRunInFlight)
		return nil
	}
	defer session.runActive.Store(false)

	if c.metrics != nil {
		c.metrics.ObserveQueueLag(time.Since(session.CreatedAt))
	}
	c.logger.Info("conversion_run_started", "batch_id", batchID, "concurrency", session.Concurrency)
	c.runPool(ctx, session)
	c.logger.Info("conversion_run_finished", "batch_id", batchID)
	return nil
}

func (c *PipelineController) Snapshot(batchID string) (*domain.BatchView, error) {
	session, err := c.registry.get(batchID)
	if err != nil {
		return nil, err
	}
	return session.snapshot(), nil
}

// RetrySingle resets one failed item to queued and drives it through the
// item pipeline immediately, outside any bulk run. Other items are
// untouched; done items are never reset.
func (c *PipelineController) RetrySingle(ctx context.Context, batchID string, index int) error {
	session, err := c.registry.get(batchID)
	if err != nil {
		return err
	}
	if session.currentStage() != domain.StageConverting {
		return domain.WrapError(domain.ErrStageConflict, "retry item", fmt.Errorf("stage is %s", session.currentStage()))
	}
	if err := session.requeue(index); err != nil {
		return err
	}
	if !session.claim(index) {
		// Claimed by an overlapping bulk run between requeue and here;
		// the run will finish it.
		return nil
	}
	c.processItem(ctx, session, index)
	return nil
}

// RetryAllFailed resets every failed item to queued and starts a fresh
// bounded-concurrency run over exactly those items.
func (c *PipelineController) RetryAllFailed(ctx context.Context, batchID string) error {
	session, err := c.registry.get(batchID)
	if err != nil {
		return err
	}
	if session.currentStage() != domain.StageConverting {
		return domain.WrapError(domain.ErrStageConflict, "retry failed items", fmt.Errorf("stage is %s", session.currentStage()))
	}
	if len(session.requeueAllFailed()) == 0 {
		return nil
	}
	return c.Start(ctx, batchID)
}

// AdvanceToGrouping moves the session to the review stage and builds the
// in-memory group drafts. Allowed only when every item is terminal and
// at least one item is done.
func (c *PipelineController) AdvanceToGrouping(batchID string) error {
	session, err := c.registry.get(batchID)
	if err != nil {
		return err
	}

	session.mu.Lock()
	defer session.mu.Unlock()

	if session.stage != domain.StageConverting {
		return domain.WrapError(domain.ErrStageConflict, "advance to grouping", fmt.Errorf("stage is %s", session.stage))
	}
	doneCount := 0
	for _, it := range session.items {
		if !it.state.Status.Terminal() {
			return domain.WrapError(domain.ErrStageConflict, "advance to grouping", errNotAllTerminal)
		}
		if it.state.Status == domain.StatusDone {
			doneCount++
		}
	}
	if doneCount == 0 {
		return domain.WrapError(domain.ErrStageConflict, "advance to grouping", errNothingDone)
	}

	drafts := make(map[string]*domain.GroupDraft)
	for i, it := range session.items {
		if it.state.Status != domain.StatusDone {
			continue
		}
		key := domain.CanonicalGroupKey(it.classification.GroupKey)
		if key == "" {
			key = domain.UnmatchedKey
		}
		draft, ok := drafts[key]
		if !ok {
			draft = &domain.GroupDraft{Key: key, DisplayName: key}
			drafts[key] = draft
		}
		draft.ItemIndexes = append(draft.ItemIndexes, i)
	}
	session.drafts = drafts
	session.stage = domain.StageGrouping
	return nil
}

// BackToConverting discards the group drafts and returns to the
// conversion stage.
func (c *PipelineController) BackToConverting(batchID string) error {
	session, err := c.registry.get(batchID)
	if err != nil {
		return err
	}
	session.mu.Lock()
	defer session.mu.Unlock()
	if session.stage != domain.StageGrouping {
		return domain.WrapError(domain.ErrStageConflict, "back to converting", fmt.Errorf("stage is %s", session.stage))
	}
	session.drafts = nil
	session.stage = domain.StageConverting
	return nil
}

// RenameDraft edits the display name a draft group will be created with.
func (c *PipelineController) RenameDraft(batchID, key, displayName string) error {
	session, err := c.registry.get(batchID)
	if err != nil {
		return err
	}
	session.mu.Lock()
	defer session.mu.Unlock()
	if session.stage != domain.StageGrouping {
		return domain.WrapError(domain.ErrStageConflict, "rename draft", fmt.Errorf("stage is %s", session.stage))
	}
	draft, ok := session.drafts[domain.CanonicalGroupKey(key)]
	if !ok {
		return domain.WrapError(domain.ErrGroupNotFound, "rename draft", errUnknownDraft)
	}
	if displayName == "" {
		return domain.WrapError(domain.ErrInvalidInput, "rename draft", errors.New("display name is empty"))
	}
	draft.DisplayName = displayName
	return nil
}

// Commit performs the final commit: for every non-UNMATCHED draft it
// ensures group and items exist in the store, re-running the idempotent
// resolve/commit logic for anything progressive commit missed, with the
// possibly edited display name. On success the committed groups are
// returned and the session closes; on failure the session reverts to
// grouping so the whole commit can be retried.
func (c *PipelineController) Commit(ctx context.Context, batchID string) ([]domain.CommittedGroup, string, error) {
	session, err := c.registry.get(batchID)
	if err != nil {
		return nil, "", err
	}

	session.mu.Lock()
	if session.stage != domain.StageGrouping {
		stage := session.stage
		session.mu.Unlock()
		return nil, "", domain.WrapError(domain.ErrStageConflict, "final commit", fmt.Errorf("stage is %s", stage))
	}
	session.stage = domain.StageCommitting
	type draftItem struct {
		subtype  domain.Subtype
		url      string
		filename string
	}
	type draftPlan struct {
		key   string
		name  string
		items []draftItem
	}
	var plans []draftPlan
	for _, draft := range session.drafts {
		if draft.Key == domain.UnmatchedKey || len(draft.ItemIndexes) == 0 {
			continue
		}
		plan := draftPlan{key: draft.Key, name: draft.DisplayName}
		for _, idx := range draft.ItemIndexes {
			it := session.items[idx]
			if it.state.Status != domain.StatusDone {
				continue
			}
			plan.items = append(plan.items, draftItem{
				subtype:  it.classification.Subtype,
				url:      it.state.OutputURL,
				filename: it.raw.OriginalFilename,
			})
		}
		if len(plan.items) > 0 {
			plans = append(plans, plan)
		}
	}
	session.mu.Unlock()

	sort.Slice(plans, func(i, j int) bool { return plans[i].key < plans[j].key })

	committed := make([]domain.CommittedGroup, 0, len(plans))
	for _, plan := range plans {
		groupID, err := c.resolver.Resolve(ctx, plan.key, plan.name)
		if err != nil {
			session.setStage(domain.StageGrouping)
			return nil, "", fmt.Errorf("final commit: resolve group %q: %w", plan.key, err)
		}
		group := domain.CommittedGroup{GroupID: groupID, Name: plan.name}
		for _, item := range plan.items {
			if err := c.committer.Commit(ctx, plan.key, plan.name, item.subtype, item.url, item.filename, commitModeFinal); err != nil {
				session.setStage(domain.StageGrouping)
				return nil, "", fmt.Errorf("final commit: group %q: %w", plan.key, err)
			}
			group.Items = append(group.Items, domain.CommittedItem{
				OutputURL:        item.url,
				Subtype:          item.subtype,
				OriginalFilename: item.filename,
			})
		}
		committed = append(committed, group)
	}

	reportURL := ""
	if c.reporter != nil {
		url, err := c.reporter.WriteCommitReport(ctx, batchID, committed)
		if err != nil {
			c.logger.Error("commit_report_failed", "batch_id", batchID, "error", err)
		} else {
			reportURL = url
		}
	}

	session.setStage(domain.StageClosed)
	c.logger.Info("final_commit_done", "batch_id", batchID, "groups", len(committed))
	return committed, reportURL, nil
}

// Close discards the session. In-flight conversions are not force
// killed; their results are ignored on completion.
func (c *PipelineController) Close(batchID string) error {
	session, err := c.registry.get(batchID)
	if err != nil {
		return err
	}
	session.setStage(domain.StageClosed)
	c.registry.remove(batchID)
	return nil
}
