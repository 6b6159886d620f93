package atomicwrite

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteFile_CreatesWithContent(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "sub", "out.yaml")

	if err := WriteFile(path, []byte("a: 1\n"), 0o644); err != nil {
		t.Fatalf("WriteFile err: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "a: 1\n" {
		t.Fatalf("content mismatch: %q", b)
	}
}

func TestWriteFile_OverwritesExisting(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "out.yaml")
	if err := WriteFile(path, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := WriteFile(path, []byte("new"), 0o644); err != nil {
		t.Fatalf("overwrite err: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "new" {
		t.Fatalf("content mismatch: %q", b)
	}
}

func TestWriteFile_NoTempLeftovers(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	if err := WriteFile(filepath.Join(dir, "out.yaml"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("temp file leaked: %v", entries)
	}
}
