package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kilnworks/kiln/internal/domain"
)

// FileStore keeps one JSON object per file under Dir. Malformed files are
// skipped during listing so one bad record never aborts a cycle.
type FileStore struct {
	Dir string
}

// NewFileStore returns a FileStore rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{Dir: dir}
}

func (s *FileStore) path(repo string, issue int) string {
	return filepath.Join(s.Dir, fmt.Sprintf("%s-%d.json", domain.RepoSlug(repo), issue))
}

// Load reads the record for (repo, issue). A missing file is not an error.
func (s *FileStore) Load(repo string, issue int) (*domain.WorkerRecord, error) {
	data, err := os.ReadFile(s.path(repo, issue))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read worker record: %w", err)
	}
	var record domain.WorkerRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decode worker record %s-%d: %w", domain.RepoSlug(repo), issue, err)
	}
	return &record, nil
}

// Save writes the record, replacing any previous version.
func (s *FileStore) Save(record *domain.WorkerRecord) error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return err
	}
	path := s.path(record.Repo, record.IssueNum)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write worker record: %w", err)
	}
	return os.Rename(tmp, path)
}

// ListActive returns every non-terminal record. Files that do not decode
// are skipped, never fatal.
func (s *FileStore) ListActive() ([]*domain.WorkerRecord, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list state dir: %w", err)
	}

	var active []*domain.WorkerRecord
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.Dir, entry.Name()))
		if err != nil {
			continue
		}
		var record domain.WorkerRecord
		if err := json.Unmarshal(data, &record); err != nil {
			continue
		}
		if record.Status.IsActive() {
			active = append(active, &record)
		}
	}
	return active, nil
}

// ListAll returns every decodable record, active and terminal.
func (s *FileStore) ListAll() ([]*domain.WorkerRecord, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list state dir: %w", err)
	}

	var records []*domain.WorkerRecord
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.Dir, entry.Name()))
		if err != nil {
			continue
		}
		var record domain.WorkerRecord
		if err := json.Unmarshal(data, &record); err != nil {
			continue
		}
		records = append(records, &record)
	}
	return records, nil
}
