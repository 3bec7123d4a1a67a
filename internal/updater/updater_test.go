package updater

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"
)

func TestNeedsUpdate(t *testing.T) {
	tests := []struct {
		name    string
		current string
		latest  string
		want    bool
	}{
		{"same version", "v0.2.4", "v0.2.4", false},
		{"patch update", "v0.2.4", "v0.2.5", true},
		{"minor update", "v0.2.4", "v0.3.0", true},
		{"major update", "v0.2.4", "v1.0.0", true},
		{"current is newer", "v0.3.0", "v0.2.9", false},
		{"without v prefix", "0.2.4", "0.2.5", true},
		{"mixed prefixes", "v0.2.4", "0.2.5", true},
		{"dev build wants release", "dev", "v0.2.5", true},
		{"dev to dev", "dev", "dev", false},
		{"multi-digit compare is numeric", "v0.2.9", "v0.2.10", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NeedsUpdate(tt.current, tt.latest)
			if got != tt.want {
				t.Errorf("NeedsUpdate(%q, %q) = %v, want %v", tt.current, tt.latest, got, tt.want)
			}
		})
	}
}

func TestExtractTarGz(t *testing.T) {
	dir := t.TempDir()

	// Build an archive with the binary nested in a directory, the way
	// release tooling packs it.
	var buf bytes.Buffer
	gzw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gzw)
	content := []byte("#!/bin/sh\necho kiln\n")
	tw.WriteHeader(&tar.Header{Name: "kiln_0.2.5/kiln", Mode: 0o755, Size: int64(len(content)), Typeflag: tar.TypeReg})
	tw.Write(content)
	tw.Close()
	gzw.Close()

	archive := filepath.Join(dir, "kiln.tar.gz")
	if err := os.WriteFile(archive, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := extractTarGz(archive, dir, "kiln"); err != nil {
		t.Fatalf("extractTarGz: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(dir, "kiln"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, content) {
		t.Errorf("extracted content mismatch")
	}

	if err := extractTarGz(archive, dir, "other"); err == nil {
		t.Error("expected error for missing file in archive")
	}
}
