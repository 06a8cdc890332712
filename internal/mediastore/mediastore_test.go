package mediastore

import (
	"context"
	"strings"
	"testing"
)

func TestObjectKeyShape(t *testing.T) {
	t.Parallel()

	key := ObjectKey("videos", "clip.mp4")
	if !strings.HasPrefix(key, "videos/") {
		t.Fatalf("expected category prefix, got %q", key)
	}
	if !strings.HasSuffix(key, ".mp4") {
		t.Fatalf("expected original extension, got %q", key)
	}
	if key == ObjectKey("videos", "clip.mp4") {
		t.Fatalf("expected unique keys for repeated uploads")
	}
}

func TestObjectKeyWithoutExtension(t *testing.T) {
	t.Parallel()

	key := ObjectKey("avatars", "noext")
	if strings.Contains(key, ".") {
		t.Fatalf("expected no extension, got %q", key)
	}
}

func TestMemoryStoreRoundtrip(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	url, err := store.Upload(context.Background(), "videos/a", "video/mp4", strings.NewReader("payload"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if url != "memory://videos/a" {
		t.Fatalf("unexpected url %q", url)
	}
	payload, present := store.Object("videos/a")
	if !present || string(payload) != "payload" {
		t.Fatalf("expected stored payload, got %q present=%v", payload, present)
	}
	if store.Count() != 1 {
		t.Fatalf("expected one object, got %d", store.Count())
	}
}
