// Package store keeps invoice PDFs.
package store

import (
	"context"
	"sync"

	"github.com/smallbiznis/allotment/internal/invoice/domain"
)

// Memory keeps documents in process. It serves tests and deployments
// without a bucket.
type Memory struct {
	mu      sync.RWMutex
	baseURL string
	objects map[string][]byte
}

func NewMemory(baseURL string) *Memory {
	return &Memory{baseURL: baseURL, objects: make(map[string][]byte)}
}

func (m *Memory) Put(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = append([]byte(nil), data...)
	return nil
}

func (m *Memory) SignedURL(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.objects[key]; !ok {
		return "", domain.ErrDocumentNotFound
	}
	return m.baseURL + "/" + key, nil
}

func (m *Memory) Get(key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[key]
	return data, ok
}

var _ domain.Store = (*Memory)(nil)
