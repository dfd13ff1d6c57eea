package storage

import (
	"context"
	"sync"
)

// MemoryIndex is a VectorIndex held entirely in memory. It answers queries
// by exhaustive cosine scan and loses its contents when the process exits.
type MemoryIndex struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	vector   []float32
	metadata map[string]string
}

// NewMemoryIndex creates an empty in-memory vector index
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{entries: make(map[string]memoryEntry)}
}

// Volatile reports that the index does not survive restarts
func (m *MemoryIndex) Volatile() bool {
	return true
}

func (m *MemoryIndex) Insert(ctx context.Context, id string, vector []float32, metadata map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	vec := make([]float32, len(vector))
	copy(vec, vector)
	var md map[string]string
	if metadata != nil {
		md = make(map[string]string, len(metadata))
		for k, v := range metadata {
			md[k] = v
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[id] = memoryEntry{vector: vec, metadata: md}
	return nil
}

func (m *MemoryIndex) Query(ctx context.Context, vector []float32, k int, candidates []string) ([]VectorMatch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 || (candidates != nil && len(candidates) == 0) {
		return []VectorMatch{}, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	scored := make([]VectorMatch, 0)
	score := func(id string, e memoryEntry) {
		if len(e.vector) != len(vector) {
			return
		}
		scored = append(scored, VectorMatch{ID: id, Score: cosineSimilarity(vector, e.vector), Metadata: e.metadata})
	}

	if candidates != nil {
		seen := make(map[string]struct{}, len(candidates))
		for _, id := range candidates {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			if e, ok := m.entries[id]; ok {
				score(id, e)
			}
		}
	} else {
		for id, e := range m.entries {
			score(id, e)
		}
	}

	return topK(scored, k), nil
}

func (m *MemoryIndex) Delete(ctx context.Context, ids ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.entries, id)
	}
	return nil
}

func (m *MemoryIndex) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]memoryEntry)
	return nil
}

func (m *MemoryIndex) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries), nil
}
