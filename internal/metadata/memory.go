package metadata

import (
	"context"
	"sync"
	"time"
)

// MemoryDocumentVectors is an in-process DocumentVectorStore for tests and
// ephemeral runs.
type MemoryDocumentVectors struct {
	mu     sync.Mutex
	nextID int64
	rows   []DocumentVector
	// Err, when set, is returned by every call.
	Err error
}

func NewMemoryDocumentVectors() *MemoryDocumentVectors {
	return &MemoryDocumentVectors{}
}

func (m *MemoryDocumentVectors) BulkInsert(_ context.Context, rows []DocumentVector) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	for _, r := range rows {
		m.nextID++
		r.ID = m.nextID
		r.CreatedAt = time.Now()
		m.rows = append(m.rows, r)
	}
	return nil
}

func (m *MemoryDocumentVectors) Where(_ context.Context, docID string) ([]DocumentVector, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	var out []DocumentVector
	for _, r := range m.rows {
		if r.DocID == docID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *MemoryDocumentVectors) DeleteForDocument(_ context.Context, docID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	kept := m.rows[:0]
	for _, r := range m.rows {
		if r.DocID != docID {
			kept = append(kept, r)
		}
	}
	m.rows = kept
	return nil
}

// Len returns the number of stored rows.
func (m *MemoryDocumentVectors) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

// MemorySettings is an in-process SettingsProvider.
type MemorySettings struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemorySettings seeds the provider with values.
func NewMemorySettings(values map[string]string) *MemorySettings {
	m := &MemorySettings{values: map[string]string{}}
	for k, v := range values {
		m.values[k] = v
	}
	return m
}

func (m *MemorySettings) GetValueOrFallback(_ context.Context, label, fallback string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if v := m.values[label]; v != "" {
		return v, nil
	}
	return fallback, nil
}

func (m *MemorySettings) SetValue(_ context.Context, label, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[label] = value
	return nil
}
