package storage

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestSourceKey(t *testing.T) {
	cases := map[string]string{
		"strip.png":              "creations/42/strip.png",
		"../../etc/passwd":       "creations/42/passwd",
		`C:\Users\me\label.pdf`:  "creations/42/label.pdf",
		"":                       "creations/42/upload",
	}
	for in, want := range cases {
		if got := SourceKey("42", in); got != want {
			t.Fatalf("SourceKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMemoryArchive(t *testing.T) {
	ctx := context.Background()
	a := NewMemoryArchive()
	if _, err := a.PresignGet(ctx, "missing", 0); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := a.Put(ctx, "creations/1/a.png", strings.NewReader("png"), 3, "image/png"); err != nil {
		t.Fatalf("put: %v", err)
	}
	data, ct, ok := a.Object("creations/1/a.png")
	if !ok || string(data) != "png" || ct != "image/png" {
		t.Fatalf("unexpected object %q %q %v", data, ct, ok)
	}
	u, err := a.PresignGet(ctx, "creations/1/a.png", 0)
	if err != nil || u != "memory://creations/1/a.png" {
		t.Fatalf("presign = %q, %v", u, err)
	}
}
