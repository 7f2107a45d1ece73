package usecase

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	"github.com/dmkorolev/imageflow/internal/core/domain"
	"github.com/dmkorolev/imageflow/internal/core/ports"
)

type fakeGroupStore struct {
	mu          sync.Mutex
	groups      map[string]*domain.Group
	findCalls   int
	createCalls int
	findGate    chan struct{}
	createErr   error
}

func newFakeGroupStore() *fakeGroupStore {
	return &fakeGroupStore{groups: make(map[string]*domain.Group)}
}

func (s *fakeGroupStore) FindByKey(ctx context.Context, key string) (*domain.Group, error) {
	s.mu.Lock()
	s.findCalls++
	gate := s.findGate
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range s.groups {
		if g.Key == key || domain.CanonicalGroupKey(g.Name) == key {
			copied := *g
			return &copied, nil
		}
	}
	return nil, domain.WrapError(domain.ErrGroupNotFound, "find group by key", domain.ErrGroupNotFound)
}

func (s *fakeGroupStore) Create(_ context.Context, group *domain.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createCalls++
	if s.createErr != nil {
		return s.createErr
	}
	copied := *group
	s.groups[group.ID] = &copied
	return nil
}

func (s *fakeGroupStore) counts() (finds, creates int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findCalls, s.createCalls
}

type fakeItemStore struct {
	mu          sync.Mutex
	items       map[string]*domain.Item
	createCalls int
	createErr   error
}

func newFakeItemStore() *fakeItemStore {
	return &fakeItemStore{items: make(map[string]*domain.Item)}
}

func itemKey(groupID, outputURL string) string {
	return groupID + "|" + outputURL
}

func (s *fakeItemStore) FindByGroupAndURL(_ context.Context, groupID, outputURL string) (*domain.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item, ok := s.items[itemKey(groupID, outputURL)]; ok {
		copied := *item
		return &copied, nil
	}
	return nil, domain.WrapError(domain.ErrItemNotFound, "find item", domain.ErrItemNotFound)
}

func (s *fakeItemStore) Create(_ context.Context, item *domain.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	s.createCalls++
	copied := *item
	s.items[itemKey(item.GroupID, item.OutputURL)] = &copied
	return nil
}

func (s *fakeItemStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

type fakeGateway struct {
	mu       sync.Mutex
	inFlight int
	peak     int
	convert  func(ctx context.Context, file domain.RawFile, progress func(int)) (string, error)
}

func (g *fakeGateway) Convert(ctx context.Context, file domain.RawFile, progress func(int)) (string, error) {
	g.mu.Lock()
	g.inFlight++
	if g.inFlight > g.peak {
		g.peak = g.inFlight
	}
	g.mu.Unlock()
	defer func() {
		g.mu.Lock()
		g.inFlight--
		g.mu.Unlock()
	}()

	if g.convert != nil {
		return g.convert(ctx, file, progress)
	}
	time.Sleep(time.Millisecond)
	if progress != nil {
		progress(100)
	}
	return "https://cdn.example.com/converted/" + file.ID + ".jpg", nil
}

func (g *fakeGateway) peakConcurrency() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.peak
}

type fakeQueue struct {
	mu        sync.Mutex
	published []string
	err       error
}

func (q *fakeQueue) PublishBatchSubmitted(_ context.Context, batchID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.published = append(q.published, batchID)
	return nil
}

func (q *fakeQueue) SubscribeBatchSubmitted(ctx context.Context, _ func(context.Context, string) error) error {
	<-ctx.Done()
	return nil
}

type fakeStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: make(map[string][]byte)}
}

func (s *fakeStorage) Save(_ context.Context, key string, data io.Reader, _ string) (int64, error) {
	raw, err := io.ReadAll(data)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = raw
	return int64(len(raw)), nil
}

func (s *fakeStorage) Open(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.objects[key]
	if !ok {
		return nil, domain.WrapError(domain.ErrItemNotFound, "open object", domain.ErrItemNotFound)
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func (s *fakeStorage) PublicURL(key string) string {
	return "https://cdn.example.com/" + key
}

type fakeClassifier struct {
	byName map[string]domain.Classification
}

func (c *fakeClassifier) Classify(filename string) domain.Classification {
	if cls, ok := c.byName[filename]; ok {
		return cls
	}
	return domain.Classification{Subtype: domain.SubtypeUnassigned}
}

type fakeReporter struct {
	mu     sync.Mutex
	calls  int
	groups []domain.CommittedGroup
	err    error
}

func (r *fakeReporter) WriteCommitReport(_ context.Context, batchID string, groups []domain.CommittedGroup) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.groups = groups
	if r.err != nil {
		return "", r.err
	}
	return "https://cdn.example.com/reports/" + batchID + ".xlsx", nil
}

var _ ports.GroupStore = (*fakeGroupStore)(nil)
var _ ports.ItemStore = (*fakeItemStore)(nil)
var _ ports.ConversionGateway = (*fakeGateway)(nil)
var _ ports.MessageQueue = (*fakeQueue)(nil)
var _ ports.ObjectStorage = (*fakeStorage)(nil)
var _ ports.FilenameClassifier = (*fakeClassifier)(nil)
var _ ports.CommitReporter = (*fakeReporter)(nil)
