package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kilnworks/kiln/internal/domain"
)

func TestFileStore_SaveAndLoad(t *testing.T) {
	s := NewFileStore(t.TempDir())

	record := &domain.WorkerRecord{
		Repo:          "acme/widgets",
		IssueNum:      42,
		IssueTitle:    "Fix the flange",
		Branch:        "kiln/issue-42",
		ContainerName: "kiln-acme-widgets-42",
		Status:        domain.WorkerRunning,
		StartedAt:     time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC),
		LogPath:       "/tmp/kiln-42.log",
	}
	if err := s.Save(record); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := s.Load("acme/widgets", 42)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got == nil {
		t.Fatal("Load() = nil for saved record")
	}
	if got.ContainerName != record.ContainerName || got.Branch != record.Branch {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if got.EndedAt != nil || got.ExitCode != nil {
		t.Error("absent optional fields must decode to nil")
	}
}

func TestFileStore_LoadMissing(t *testing.T) {
	s := NewFileStore(t.TempDir())
	got, err := s.Load("acme/widgets", 99)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got != nil {
		t.Errorf("Load() = %+v, want nil", got)
	}
}

func TestFileStore_ListActiveSkipsMalformed(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(dir)

	now := time.Now()
	running := &domain.WorkerRecord{Repo: "acme/widgets", IssueNum: 1, Status: domain.WorkerRunning, StartedAt: now}
	recovering := &domain.WorkerRecord{Repo: "acme/widgets", IssueNum: 2, Status: domain.WorkerRecovering, StartedAt: now}
	done := &domain.WorkerRecord{Repo: "acme/widgets", IssueNum: 3, Status: domain.WorkerDone, StartedAt: now}
	for _, r := range []*domain.WorkerRecord{running, recovering, done} {
		if err := s.Save(r); err != nil {
			t.Fatal(err)
		}
	}

	// A malformed file must be skipped, not abort the listing.
	if err := os.WriteFile(filepath.Join(dir, "garbage.json"), []byte("{nope"), 0o644); err != nil {
		t.Fatal(err)
	}

	active, err := s.ListActive()
	if err != nil {
		t.Fatalf("ListActive() error = %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("active count = %d, want 2 (running + legacy recovering)", len(active))
	}
}

func TestFileStore_ListActiveEmptyDir(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "does-not-exist"))
	active, err := s.ListActive()
	if err != nil {
		t.Fatalf("ListActive() error = %v", err)
	}
	if len(active) != 0 {
		t.Errorf("active count = %d, want 0", len(active))
	}
}
