package appstate

import (
	"slices"
	"sync"
	"time"

	"github.com/Telestream/srtStreamer/internal/model"
)

// Snapshot is a deep copy of the shared state. Streams already carry the
// Stopping override.
type Snapshot struct {
	Streams   []model.StreamRecord
	Bandwidth map[string]model.Bandwidth
	Files     []string
	Loaded    bool
	UpdatedAt time.Time
}

// State is the process-wide store of everything the pollers learn.
// Only copies leave the lock.
type State struct {
	mu        sync.RWMutex
	streams   []model.StreamRecord
	ids       map[string]int
	bandwidth map[string]model.Bandwidth
	stopping  map[string]struct{}
	files     []string
	loaded    bool
	updatedAt time.Time

	issued  uint64
	applied uint64
	epoch   uint64
	now     func() time.Time
}

// New creates an empty state.
func New() *State {
	return NewWithNow(time.Now)
}

// NewWithNow returns a state with a custom time source (for tests).
func NewWithNow(now func() time.Time) *State {
	if now == nil {
		now = time.Now
	}
	return &State{
		ids:       make(map[string]int),
		bandwidth: make(map[string]model.Bandwidth),
		stopping:  make(map[string]struct{}),
		now:       now,
	}
}

// NextSeq reserves the sequence number for a directory request about to be sent.
func (s *State) NextSeq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issued++
	return s.issued
}

// Epoch identifies the current contents; Reset moves to a new epoch.
func (s *State) Epoch() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.epoch
}

// ReplaceStreams installs a fresh directory if seq is newer than the last one
// applied. Samples of vanished streams are dropped and every Stopping override
// is cleared. Returns false when the response was stale and ignored.
func (s *State) ReplaceStreams(seq uint64, records []model.StreamRecord) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq <= s.applied {
		return false
	}
	s.applied = seq

	s.streams = model.CloneRecords(records)
	s.ids = make(map[string]int, len(s.streams))
	for i, r := range s.streams {
		s.ids[r.ID] = i
	}
	for id := range s.bandwidth {
		if _, ok := s.ids[id]; !ok {
			delete(s.bandwidth, id)
		}
	}
	clear(s.stopping)
	s.loaded = true
	s.updatedAt = s.now()
	return true
}

// MarkStopping flags a stream as being stopped until the next directory replacement.
func (s *State) MarkStopping(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopping[id] = struct{}{}
}

// MergeBandwidth writes the latest rates for a stream. It is a no-op when the
// state moved to a new epoch since the request was issued or the stream is no
// longer listed.
func (s *State) MergeBandwidth(epoch uint64, id string, rates model.Bandwidth) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch {
		return false
	}
	if _, ok := s.ids[id]; !ok {
		return false
	}
	cur := s.bandwidth[id]
	if cur == nil {
		cur = make(model.Bandwidth, len(rates))
		s.bandwidth[id] = cur
	}
	for dest, rate := range rates {
		cur[dest] = rate
	}
	return true
}

// Stream returns a copy of one record as reported by the service.
func (s *State) Stream(id string) (model.StreamRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.ids[id]
	if !ok {
		return model.StreamRecord{}, false
	}
	return s.streams[i].Clone(), true
}

// StreamIDs returns the current ids in server order.
func (s *State) StreamIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, len(s.streams))
	for i, r := range s.streams {
		ids[i] = r.ID
	}
	return ids
}

// SetFiles installs the media catalog fetched during epoch. It returns false
// and leaves the state alone when a Reset happened since.
func (s *State) SetFiles(epoch uint64, files []string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch {
		return false
	}
	s.files = slices.Clone(files)
	return true
}

func (s *State) Files() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.files)
}

// Snapshot returns a deep copy for rendering.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	streams := model.CloneRecords(s.streams)
	for i := range streams {
		if _, ok := s.stopping[streams[i].ID]; ok {
			streams[i].Status = model.Stopping()
		}
	}
	bw := make(map[string]model.Bandwidth, len(s.bandwidth))
	for id, rates := range s.bandwidth {
		bw[id] = rates.Clone()
	}
	return Snapshot{
		Streams:   streams,
		Bandwidth: bw,
		Files:     slices.Clone(s.files),
		Loaded:    s.loaded,
		UpdatedAt: s.updatedAt,
	}
}

// Reset forgets everything, e.g. on logout. Directory requests issued before the
// reset can no longer be applied and bandwidth writes from the old epoch are refused.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streams = nil
	s.ids = make(map[string]int)
	s.bandwidth = make(map[string]model.Bandwidth)
	clear(s.stopping)
	s.files = nil
	s.loaded = false
	s.updatedAt = time.Time{}
	s.applied = s.issued
	s.epoch++
}
