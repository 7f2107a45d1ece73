package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmkorolev/imageflow/internal/core/domain"
	"github.com/dmkorolev/imageflow/internal/core/ports"
	"github.com/dmkorolev/imageflow/internal/observability/metrics"
)

// resolveCall is one in-flight resolution shared by every concurrent
// caller of the same key.
type resolveCall struct {
	done    chan struct{}
	groupID string
	err     error
}

// GroupResolver maps group keys to persisted group ids, collapsing
// concurrent resolutions of one key into a single store round trip so at
// most one create is issued per key per process lifetime. The store
// lookup inside the resolution is the second line of defense against
// independent processes racing each other.
type GroupResolver struct {
	groups  ports.GroupStore
	metrics *metrics.PipelineMetrics

	mu       sync.Mutex
	cache    map[string]string
	inflight map[string]*resolveCall
}

func NewGroupResolver(groups ports.GroupStore, m *metrics.PipelineMetrics) *GroupResolver {
	return &GroupResolver{
		groups:   groups,
		metrics:  m,
		cache:    make(map[string]string),
		inflight: make(map[string]*resolveCall),
	}
}

// Resolve returns the persisted group id for key, creating the group
// with displayName on first use. Different keys resolve independently;
// callers of the same key share one resolution.
func (r *GroupResolver) Resolve(ctx context.Context, key, displayName string) (string, error) {
	canonical := domain.CanonicalGroupKey(key)
	if canonical == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "resolve group", errEmptyGroupKey)
	}

	r.mu.Lock()
	if id, ok := r.cache[canonical]; ok {
		r.mu.Unlock()
		return id, nil
	}
	if call, ok := r.inflight[canonical]; ok {
		r.mu.Unlock()
		if r.metrics != nil {
			r.metrics.GroupResolveCollapsed()
		}
		select {
		case <-call.done:
			return call.groupID, call.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	call := &resolveCall{done: make(chan struct{})}
	r.inflight[canonical] = call
	r.mu.Unlock()

	groupID, err := r.resolveOnce(ctx, canonical, displayName)

	r.mu.Lock()
	delete(r.inflight, canonical)
	if err == nil {
		r.cache[canonical] = groupID
	}
	r.mu.Unlock()

	call.groupID = groupID
	call.err = err
	close(call.done)
	return groupID, err
}

func (r *GroupResolver) resolveOnce(ctx context.Context, canonical, displayName string) (string, error) {
	// Defensive re-check: a concurrent call may have populated the cache
	// between the inflight registration and this point.
	r.mu.Lock()
	if id, ok := r.cache[canonical]; ok {
		r.mu.Unlock()
		return id, nil
	}
	r.mu.Unlock()

	group, err := r.groups.FindByKey(ctx, canonical)
	if err == nil {
		return group.ID, nil
	}
	if !domain.IsKind(err, domain.ErrGroupNotFound) {
		return "", fmt.Errorf("find group by key: %w", err)
	}

	name := displayName
	if name == "" {
		name = canonical
	}
	created := &domain.Group{
		ID:        uuid.NewString(),
		Key:       canonical,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	if err := r.groups.Create(ctx, created); err != nil {
		return "", fmt.Errorf("create group: %w", err)
	}
	if r.metrics != nil {
		r.metrics.GroupCreated()
	}
	return created.ID, nil
}
