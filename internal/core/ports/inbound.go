package ports

import (
	"context"
	"io"

	"github.com/dmkorolev/imageflow/internal/core/domain"
)

// SubmittedFile is one file of an incoming batch.
type SubmittedFile struct {
	Filename    string
	ContentType string
	Body        io.Reader
}

// BatchSubmitter accepts a batch of raw files and enqueues it for
// conversion.
type BatchSubmitter interface {
	Submit(ctx context.Context, files []SubmittedFile, concurrency int) (*domain.BatchView, error)
}

// PipelineOperator drives a submitted batch through the convert, review
// and commit stages.
type PipelineOperator interface {
	Start(ctx context.Context, batchID string) error
	Snapshot(batchID string) (*domain.BatchView, error)
	RetrySingle(ctx context.Context, batchID string, index int) error
	RetryAllFailed(ctx context.Context, batchID string) error
	AdvanceToGrouping(batchID string) error
	BackToConverting(batchID string) error
	RenameDraft(batchID, key, displayName string) error
	Commit(ctx context.Context, batchID string) ([]domain.CommittedGroup, string, error)
	Close(batchID string) error
}
