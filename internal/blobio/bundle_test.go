package blobio

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteOpenLookupRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bundle.cdds")

	blobs := map[string][]byte{
		"Point":  {1, 2, 3, 4},
		"Vector": {5, 6, 7, 8, 9, 10},
		"Empty":  {},
	}
	if err := Write(path, blobs); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	b, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer b.Close()

	for name, want := range blobs {
		got, ok := b.Lookup(name)
		if !ok {
			t.Errorf("Lookup(%q) not found", name)
			continue
		}
		if len(got) != len(want) {
			t.Errorf("Lookup(%q) length = %d, want %d", name, len(got), len(want))
			continue
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("Lookup(%q)[%d] = %d, want %d", name, i, got[i], want[i])
			}
		}
	}

	if _, ok := b.Lookup("Missing"); ok {
		t.Errorf("Lookup(%q) should not be found", "Missing")
	}
}

func TestEntriesListsAllBlobs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bundle.cdds")
	if err := Write(path, map[string][]byte{"A": {1}, "B": {2}}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	b, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer b.Close()

	entries := b.Entries()
	if len(entries) != 2 {
		t.Fatalf("Entries() length = %d, want 2", len(entries))
	}
	names := map[string]bool{}
	for _, e := range entries {
		names[e.Name] = true
	}
	if !names["A"] || !names["B"] {
		t.Errorf("Entries() = %+v, want A and B", entries)
	}
}

func TestOpenRejectsBadMagic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.cdds")
	if err := os.WriteFile(path, []byte("XXXX\x01\x00\x00\x00\x00\x00\x00\x00"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	_, err := Open(path, Options{})
	if err != ErrBadMagic {
		t.Fatalf("Open() error = %v, want ErrBadMagic", err)
	}
}

func TestOpenRejectsBadVersion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.cdds")
	header := append([]byte{'C', 'D', 'D', 'S'}, 99, 0, 0, 0, 0, 0, 0, 0)
	if err := os.WriteFile(path, header, 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	_, err := Open(path, Options{})
	if err != ErrBadVersion {
		t.Fatalf("Open() error = %v, want ErrBadVersion", err)
	}
}

func TestOpenRejectsTruncated(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "short.cdds")
	if err := os.WriteFile(path, []byte{'C', 'D', 'D', 'S'}, 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	_, err := Open(path, Options{})
	if err != ErrTruncated {
		t.Fatalf("Open() error = %v, want ErrTruncated", err)
	}
}

func TestWriteEmptyBundle(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.cdds")
	if err := Write(path, nil); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	b, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer b.Close()
	if len(b.Entries()) != 0 {
		t.Errorf("Entries() length = %d, want 0", len(b.Entries()))
	}
}
