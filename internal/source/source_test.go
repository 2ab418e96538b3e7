package source

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"
)

func writeSpoolFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestSpoolFetch(t *testing.T) {
	dir := t.TempDir()
	writeSpoolFile(t, dir, "20240101000001.txt", "공시 본문")
	writeSpoolFile(t, dir, "20240101000002", "확장자 없는 본문")
	writeSpoolFile(t, dir, "20240101000003_005930.txt", "접미사 붙은 본문")

	s := NewSpool(dir)
	ctx := context.Background()

	tests := []struct {
		name string
		ref  string
		want string
	}{
		{name: "exact txt name", ref: "20240101000001", want: "공시 본문"},
		{name: "bare file name", ref: "20240101000002", want: "확장자 없는 본문"},
		{name: "prefix fallback", ref: "20240101000003", want: "접미사 붙은 본문"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := s.Fetch(ctx, tt.ref)
			if err != nil {
				t.Fatalf("Fetch(%s) failed: %v", tt.ref, err)
			}
			if string(b) != tt.want {
				t.Errorf("Fetch(%s) = %q, want %q", tt.ref, b, tt.want)
			}
		})
	}
}

func TestSpoolFetchNotFound(t *testing.T) {
	s := NewSpool(t.TempDir())
	_, err := s.Fetch(context.Background(), "99999999999999")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSpoolFetchRejectsPathSeparators(t *testing.T) {
	s := NewSpool(t.TempDir())
	for _, ref := range []string{"../etc/passwd", `..\secret`, "a/b"} {
		if _, err := s.Fetch(context.Background(), ref); !errors.Is(err, ErrNotFound) {
			t.Errorf("Fetch(%q): expected ErrNotFound, got %v", ref, err)
		}
	}
}

func TestSpoolList(t *testing.T) {
	dir := t.TempDir()
	writeSpoolFile(t, dir, "a.txt", "x")
	writeSpoolFile(t, dir, "b.txt", "y")

	refs, err := NewSpool(dir).List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	sort.Strings(refs)
	if len(refs) != 2 || refs[0] != "a" || refs[1] != "b" {
		t.Errorf("List = %v, want [a b]", refs)
	}
}
