package api

import (
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/samcharles93/fmha/internal/fmha"
)

type configRecord struct {
	ID        string
	CreatedAt time.Time
	Config    *fmha.Config
}

// ConfigStore keeps derived configs so clients can refer to them by id.
type ConfigStore struct {
	mu      sync.Mutex
	configs map[string]*configRecord
	order   []string
}

func NewConfigStore() *ConfigStore {
	return &ConfigStore{configs: make(map[string]*configRecord)}
}

func (s *ConfigStore) Put(cfg *fmha.Config, now time.Time) *configRecord {
	rec := &configRecord{ID: "cfg_" + uuid.NewString(), CreatedAt: now, Config: cfg}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs[rec.ID] = rec
	s.order = append(s.order, rec.ID)
	return rec
}

func (s *ConfigStore) Get(id string) (*configRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.configs[id]
	return rec, ok
}

func (s *ConfigStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.configs[id]; !ok {
		return false
	}
	delete(s.configs, id)
	s.order = slices.DeleteFunc(s.order, func(v string) bool { return v == id })
	return true
}

// List returns records in insertion order.
func (s *ConfigStore) List() []*configRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*configRecord, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.configs[id])
	}
	return out
}
