package asset

import (
	"context"
	"net/http"
	"strings"
	"sync"
)

type object struct {
	data        []byte
	contentType string
}

// MemoryStore keeps images in process memory. It backs development setups
// and tests, and can inject failures.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]object
	baseURL string
	prefix  string

	putErr    error
	deleteErr error
	deletes   int
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store whose URLs start with baseURL.
func NewMemoryStore(baseURL string) *MemoryStore {
	return &MemoryStore{objects: map[string]object{}, baseURL: baseURL, prefix: "images"}
}

// Put stores a copy of data.
func (m *MemoryStore) Put(_ context.Context, data []byte, contentType string) (string, error) {
	key, err := NewKey(m.prefix, contentType)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.putErr != nil {
		return "", m.putErr
	}
	m.objects[key] = object{data: append([]byte(nil), data...), contentType: strings.ToLower(contentType)}
	return key, nil
}

// Delete removes key; missing keys are not an error.
func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.deletes++
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.objects, key)
	return nil
}

// Exists reports whether key is stored.
func (m *MemoryStore) Exists(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.objects[key]
	return ok, nil
}

// URL returns baseURL/key.
func (m *MemoryStore) URL(key string) string {
	return joinURL(m.baseURL, key)
}

// Len returns the number of stored objects.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}

// Deletes returns how many Delete calls were made.
func (m *MemoryStore) Deletes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.deletes
}

// FailPuts makes every Put return err until called with nil.
func (m *MemoryStore) FailPuts(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putErr = err
}

// FailDeletes makes every Delete return err until called with nil.
func (m *MemoryStore) FailDeletes(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteErr = err
}

// ServeHTTP serves stored objects by key. Mount it under the path the
// store's baseURL points to, with that prefix stripped.
func (m *MemoryStore) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, "/")

	m.mu.RLock()
	obj, ok := m.objects[key]
	m.mu.RUnlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", obj.contentType)
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	_, _ = w.Write(obj.data)
}
