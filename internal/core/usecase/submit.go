package usecase

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/dmkorolev/imageflow/internal/core/domain"
	"github.com/dmkorolev/imageflow/internal/core/ports"
)

// SubmitBatchUseCase accepts a batch of raw files: stores the raw bytes,
// classifies each filename, registers an in-memory pipeline session and
// publishes the submission event that triggers the conversion run.
type SubmitBatchUseCase struct {
	registry   *SessionRegistry
	storage    ports.ObjectStorage
	queue      ports.MessageQueue
	classifier ports.FilenameClassifier

	defaultConcurrency int
}

func NewSubmitBatchUseCase(
	registry *SessionRegistry,
	storage ports.ObjectStorage,
	queue ports.MessageQueue,
	classifier ports.FilenameClassifier,
	concurrency int,
) *SubmitBatchUseCase {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &SubmitBatchUseCase{
		registry:           registry,
		storage:            storage,
		queue:              queue,
		classifier:         classifier,
		defaultConcurrency: concurrency,
	}
}

func (uc *SubmitBatchUseCase) Submit(ctx context.Context, files []ports.SubmittedFile, concurrency int) (*domain.BatchView, error) {
	if len(files) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "submit batch", errors.New("batch has no files"))
	}
	if concurrency <= 0 {
		concurrency = uc.defaultConcurrency
	}

	session := newSession(uuid.NewString(), concurrency)
	for _, f := range files {
		id := uuid.NewString()
		storageKey := fmt.Sprintf("raw/%s_%s", id, sanitizeFilename(f.Filename))
		size, err := uc.storage.Save(ctx, storageKey, f.Body, f.ContentType)
		if err != nil {
			return nil, fmt.Errorf("save raw file %q: %w", f.Filename, err)
		}
		raw := domain.RawFile{
			ID:               id,
			OriginalFilename: f.Filename,
			StoragePath:      storageKey,
			ContentType:      f.ContentType,
			Size:             size,
		}
		session.addItem(raw, uc.classifier.Classify(f.Filename))
	}
	uc.registry.add(session)

	if err := uc.queue.PublishBatchSubmitted(ctx, session.ID); err != nil {
		return nil, fmt.Errorf("publish batch submitted: %w", err)
	}
	return session.snapshot(), nil
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" {
		return "upload.bin"
	}
	return base
}
