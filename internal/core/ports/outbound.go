package ports

import (
	"context"
	"io"

	"github.com/dmkorolev/imageflow/internal/core/domain"
)

// GroupStore persists groups. FindByKey matches the canonical key column
// or the display-name-derived key and returns domain.ErrGroupNotFound
// when neither matches.
type GroupStore interface {
	FindByKey(ctx context.Context, key string) (*domain.Group, error)
	Create(ctx context.Context, group *domain.Group) error
}

// ItemStore persists converted items under their group.
type ItemStore interface {
	FindByGroupAndURL(ctx context.Context, groupID, outputURL string) (*domain.Item, error)
	Create(ctx context.Context, item *domain.Item) error
}

// ObjectStorage stores raw uploads, staged transfers, converted output
// and commit reports.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader, contentType string) (int64, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	PublicURL(key string) string
}

// ConversionGateway turns one raw file into the URL of its converted
// output, reporting transfer progress as 0-100.
type ConversionGateway interface {
	Convert(ctx context.Context, file domain.RawFile, progress func(percent int)) (string, error)
}

// FilenameClassifier infers a view subtype and group key from an
// original filename. Pure and total: never fails.
type FilenameClassifier interface {
	Classify(filename string) domain.Classification
}

// MessageQueue publishes/consumes batch submission events.
type MessageQueue interface {
	PublishBatchSubmitted(ctx context.Context, batchID string) error
	SubscribeBatchSubmitted(ctx context.Context, handler func(context.Context, string) error) error
}

// CommitReporter writes a post-commit report artifact and returns its URL.
type CommitReporter interface {
	WriteCommitReport(ctx context.Context, batchID string, groups []domain.CommittedGroup) (string, error)
}
