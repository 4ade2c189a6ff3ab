package metrics

import (
	"sync"
	"time"

	"coolgate/internal/model"
)

// Store tracks per-identity trigger and rejection counters for
// diagnostics. Bounded; the least recently updated identity is evicted
// once the limit is exceeded.
type Store struct {
	mu         sync.RWMutex
	byIdentity map[string]model.GateStats
	updatedAt  map[string]time.Time
	limit      int
}

func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = 5000
	}
	return &Store{
		byIdentity: make(map[string]model.GateStats),
		updatedAt:  make(map[string]time.Time),
		limit:      limit,
	}
}

func (s *Store) RecordTrigger(identity string, expiry uint64) {
	if identity == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.byIdentity[identity]
	st.Triggers++
	st.LastExpiry = expiry
	s.byIdentity[identity] = st
	s.updatedAt[identity] = time.Now().UTC()
	if len(s.byIdentity) > s.limit {
		s.evictOldest()
	}
}

func (s *Store) RecordRejection(identity string) {
	if identity == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.byIdentity[identity]
	st.Rejections++
	s.byIdentity[identity] = st
	s.updatedAt[identity] = time.Now().UTC()
	if len(s.byIdentity) > s.limit {
		s.evictOldest()
	}
}

func (s *Store) Get(identity string) (model.GateStats, time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.byIdentity[identity]
	if !ok {
		return model.GateStats{}, time.Time{}, false
	}
	return st, s.updatedAt[identity], true
}

func (s *Store) GetAll() map[string]model.GateStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]model.GateStats, len(s.byIdentity))
	for identity, st := range s.byIdentity {
		out[identity] = st
	}
	return out
}

func (s *Store) evictOldest() {
	var oldestIdentity string
	var oldest time.Time
	for identity, ts := range s.updatedAt {
		if oldestIdentity == "" || ts.Before(oldest) {
			oldestIdentity = identity
			oldest = ts
		}
	}
	if oldestIdentity != "" {
		delete(s.byIdentity, oldestIdentity)
		delete(s.updatedAt, oldestIdentity)
	}
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byIdentity = make(map[string]model.GateStats)
	s.updatedAt = make(map[string]time.Time)
}
