package mediastore

import (
	"context"
	"io"
	"sync"
)

// MemoryStore keeps uploaded objects in a map. Intended for tests and dev.
type MemoryStore struct {
	mutex   sync.Mutex
	objects map[string][]byte
}

// NewMemoryStore constructs an empty in-memory media store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

// Upload stores the object bytes and returns a synthetic URL.
func (store *MemoryStore) Upload(ctx context.Context, key string, contentType string, body io.Reader) (string, error) {
	payload, readErr := io.ReadAll(body)
	if readErr != nil {
		return "", readErr
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.objects[key] = payload
	return "memory://" + key, nil
}

// Object returns the stored bytes for a key.
func (store *MemoryStore) Object(key string) ([]byte, bool) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	payload, present := store.objects[key]
	return payload, present
}

// Count reports how many objects have been uploaded.
func (store *MemoryStore) Count() int {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	return len(store.objects)
}
