package usecase

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmkorolev/imageflow/internal/core/domain"
)

// trackedItem pairs one raw file with its mutable conversion state.
// State fields are guarded by the owning Session's mutex; while a worker
// holds an item's index it is the only writer.
type trackedItem struct {
	raw            domain.RawFile
	classification domain.Classification
	state          domain.ConversionState
}

// Session is the ephemeral aggregate over one submitted batch.
type Session struct {
	ID          string
	Concurrency int
	CreatedAt   time.Time

	mu     sync.Mutex
	stage  domain.Stage
	items  []*trackedItem
	drafts map[string]*domain.GroupDraft

	// runActive is the re-entrancy guard for conversion runs.
	runActive atomic.Bool
}

func newSession(id string, concurrency int) *Session {
	return &Session{
		ID:          id,
		Concurrency: concurrency,
		CreatedAt:   time.Now().UTC(),
		stage:       domain.StageConverting,
	}
}

func (s *Session) addItem(raw domain.RawFile, cls domain.Classification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, &trackedItem{
		raw:            raw,
		classification: cls,
		state:          domain.ConversionState{Status: domain.StatusQueued},
	})
}

// queuedIndexes snapshots the indices currently queued. Items enqueued
// after the snapshot are not picked up by the run that took it.
func (s *Session) queuedIndexes() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var idxs []int
	for i, it := range s.items {
		if it.state.Status == domain.StatusQueued {
			idxs = append(idxs, i)
		}
	}
	return idxs
}

// claim moves a queued item to uploading, granting the caller exclusive
// ownership of that index. Returns false when the item is no longer queued.
func (s *Session) claim(index int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.items) {
		return false
	}
	it := s.items[index]
	if it.state.Status != domain.StatusQueued {
		return false
	}
	it.state.Status = domain.StatusUploading
	it.state.ErrorMessage = ""
	it.state.ProgressPercent = 0
	return true
}

func (s *Session) setProgress(index, percent int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	s.items[index].state.ProgressPercent = percent
}

func (s *Session) markConverting(index int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[index].state.Status = domain.StatusConverting
}

func (s *Session) markDone(index int, outputURL string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it := s.items[index]
	it.state.Status = domain.StatusDone
	it.state.OutputURL = outputURL
	it.state.ProgressPercent = 100
	it.state.ErrorMessage = ""
}

func (s *Session) markFailed(index int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it := s.items[index]
	it.state.Status = domain.StatusFailed
	it.state.ErrorMessage = message
}

// requeue resets a failed item back to queued. Done is terminal: a done
// item is never requeued.
func (s *Session) requeue(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.items) {
		return domain.WrapError(domain.ErrItemNotFound, "requeue", errIndexOutOfRange)
	}
	it := s.items[index]
	if it.state.Status != domain.StatusFailed {
		return domain.WrapError(domain.ErrStageConflict, "requeue", errNotRetryable)
	}
	it.state.Status = domain.StatusQueued
	it.state.ErrorMessage = ""
	it.state.ProgressPercent = 0
	return nil
}

// requeueAllFailed resets every failed item and returns their indices.
func (s *Session) requeueAllFailed() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var idxs []int
	for i, it := range s.items {
		if it.state.Status == domain.StatusFailed {
			it.state.Status = domain.StatusQueued
			it.state.ErrorMessage = ""
			it.state.ProgressPercent = 0
			idxs = append(idxs, i)
		}
	}
	return idxs
}

func (s *Session) itemAt(index int) (domain.RawFile, domain.Classification, domain.ConversionState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.items) {
		return domain.RawFile{}, domain.Classification{}, domain.ConversionState{}, false
	}
	it := s.items[index]
	return it.raw, it.classification, it.state, true
}

func (s *Session) currentStage() domain.Stage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stage
}

func (s *Session) setStage(stage domain.Stage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stage = stage
}

func (s *Session) snapshot() *domain.BatchView {
	s.mu.Lock()
	defer s.mu.Unlock()

	view := &domain.BatchView{
		ID:        s.ID,
		Stage:     s.stage,
		CreatedAt: s.CreatedAt,
		Items:     make([]domain.ItemView, 0, len(s.items)),
	}
	for i, it := range s.items {
		view.Items = append(view.Items, domain.ItemView{
			Index:            i,
			OriginalFilename: it.raw.OriginalFilename,
			Subtype:          it.classification.Subtype,
			GroupKey:         it.classification.GroupKey,
			Status:           it.state.Status,
			ProgressPercent:  it.state.ProgressPercent,
			OutputURL:        it.state.OutputURL,
			Error:            it.state.ErrorMessage,
		})
	}
	for _, d := range s.drafts {
		copyDraft := *d
		view.Groups = append(view.Groups, copyDraft)
	}
	return view
}

// SessionRegistry owns all live pipeline sessions of the process.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[string]*Session)}
}

func (r *SessionRegistry) add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
}

func (r *SessionRegistry) get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrSessionNotFound, "lookup session", errUnknownBatch)
	}
	return s, nil
}

func (r *SessionRegistry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}
