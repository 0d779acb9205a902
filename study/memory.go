package study

import (
	"context"
	"sync"
)

// MemoryStore keeps records in process memory.
type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	order       []string
	records     map[string]Record
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Init prepares the store for use.
func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return nil
	}
	s.initialized = true
	s.records = make(map[string]Record)
	return nil
}

// Save stores a copy of rec, replacing a record with the same ID in place.
func (s *MemoryStore) Save(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	if _, ok := s.records[rec.ID]; !ok {
		s.order = append(s.order, rec.ID)
	}
	s.records[rec.ID] = cloneRecord(rec)
	return nil
}

// Get returns a copy of the record with the given ID.
func (s *MemoryStore) Get(_ context.Context, id string) (Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return Record{}, false, errNotInitialized
	}
	rec, ok := s.records[id]
	if !ok {
		return Record{}, false, nil
	}
	return cloneRecord(rec), true, nil
}

// List returns copies of every record in insertion order.
func (s *MemoryStore) List(_ context.Context) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return nil, errNotInitialized
	}
	out := make([]Record, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, cloneRecord(s.records[id]))
	}
	return out, nil
}

func cloneRecord(r Record) Record {
	r.Coordinates = append([]float64(nil), r.Coordinates...)
	if r.Parameters != nil {
		p := make(map[string]float64, len(r.Parameters))
		for k, v := range r.Parameters {
			p[k] = v
		}
		r.Parameters = p
	}
	if r.Error != nil {
		e := *r.Error
		r.Error = &e
	}
	return r
}
