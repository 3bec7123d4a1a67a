package store

import (
	"fmt"
	"sync"

	"github.com/kilnworks/kiln/internal/domain"
)

// MemStore is an in-memory Store for tests.
type MemStore struct {
	mu      sync.Mutex
	records map[string]*domain.WorkerRecord
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{records: make(map[string]*domain.WorkerRecord)}
}

func key(repo string, issue int) string {
	return fmt.Sprintf("%s#%d", repo, issue)
}

func (s *MemStore) Load(repo string, issue int) (*domain.WorkerRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[key(repo, issue)]
	if !ok {
		return nil, nil
	}
	copied := *record
	return &copied, nil
}

func (s *MemStore) Save(record *domain.WorkerRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *record
	s.records[key(record.Repo, record.IssueNum)] = &copied
	return nil
}

func (s *MemStore) ListActive() ([]*domain.WorkerRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var active []*domain.WorkerRecord
	for _, record := range s.records {
		if record.Status.IsActive() {
			copied := *record
			active = append(active, &copied)
		}
	}
	return active, nil
}
