package localfs

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSaveAndOpenRoundTrip(t *testing.T) {
	storage, err := New(t.TempDir(), "http://localhost:8080/files")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	written, err := storage.Save(context.Background(), "raw/f1_test.cr2", strings.NewReader("rawbytes"), "image/x-canon-cr2")
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if written != 8 {
		t.Errorf("written = %d, want 8", written)
	}

	r, err := storage.Open(context.Background(), "raw/f1_test.cr2")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer r.Close()
	raw, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(raw) != "rawbytes" {
		t.Errorf("content = %q", raw)
	}
}

func TestSaveRemovesPartialFileOnReadError(t *testing.T) {
	dir := t.TempDir()
	storage, err := New(dir, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	broken := io.MultiReader(strings.NewReader("partial"), &failingReader{})
	if _, err := storage.Save(context.Background(), "staging/f2.cr2", broken, ""); err == nil {
		t.Fatal("expected error")
	}
	if _, err := os.Stat(filepath.Join(dir, "staging", "f2.cr2")); !os.IsNotExist(err) {
		t.Error("partial file not removed")
	}
}

func TestPublicURL(t *testing.T) {
	storage, err := New(t.TempDir(), "http://localhost:8080/files/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := storage.PublicURL("converted/f1.jpg"); got != "http://localhost:8080/files/converted/f1.jpg" {
		t.Errorf("url = %q", got)
	}

	plain, err := New(t.TempDir(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := plain.PublicURL("converted/f1.jpg"); !strings.HasPrefix(got, "file://") {
		t.Errorf("url = %q, want file:// fallback", got)
	}
}

type failingReader struct{}

func (*failingReader) Read([]byte) (int, error) {
	return 0, errors.New("stream interrupted")
}
