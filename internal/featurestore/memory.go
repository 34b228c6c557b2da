package featurestore

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Memory keeps a whole population in process memory.
type Memory struct {
	mu        sync.RWMutex
	features  int64
	vectors   [][]int
	stats     []ExampleStats
	sorted    [][]ExampleValue
	organized bool
}

// NewMemory creates an empty store for vectors of the given length.
func NewMemory(features int64) *Memory {
	return &Memory{features: features}
}

// NewMemoryFromVectors stores and organizes the given vectors.
func NewMemoryFromVectors(vectors [][]int) (*Memory, error) {
	var features int64
	if len(vectors) > 0 {
		features = int64(len(vectors[0]))
	}

	m := NewMemory(features)
	ctx := context.Background()
	for i, v := range vectors {
		if err := m.PutExample(ctx, i, Record{Values: v}); err != nil {
			return nil, err
		}
	}
	if err := m.Organize(ctx); err != nil {
		return nil, err
	}

	return m, nil
}

// PutExample implements Writer.
func (m *Memory) PutExample(_ context.Context, idx int, r Record) error {
	if int64(len(r.Values)) != m.features {
		return fmt.Errorf("example %d has %d values, want %d", idx, len(r.Values), m.features)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for len(m.vectors) <= idx {
		m.vectors = append(m.vectors, nil)
		m.stats = append(m.stats, ExampleStats{})
	}

	vec := make([]int, len(r.Values))
	copy(vec, r.Values)
	m.vectors[idx] = vec
	m.stats[idx] = StatsOf(vec, r.Uniform)
	m.organized = false

	return nil
}

// Organize implements Writer.
func (m *Memory) Organize(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, v := range m.vectors {
		if v == nil {
			return fmt.Errorf("example %d was never stored", i)
		}
	}

	m.sorted = make([][]ExampleValue, m.features)
	for f := range m.sorted {
		list := make([]ExampleValue, len(m.vectors))
		for e, vec := range m.vectors {
			list[e] = ExampleValue{Example: e, Value: vec[f]}
		}
		sort.Slice(list, func(i, j int) bool { return Less(list[i], list[j]) })
		m.sorted[f] = list
	}
	m.organized = true

	return nil
}

// ValueAt implements Source.
func (m *Memory) ValueAt(_ context.Context, featureIndex int64, example int) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if example < 0 || example >= len(m.vectors) || featureIndex < 0 || featureIndex >= m.features {
		return 0, fmt.Errorf("%w: feature %d, example %d", ErrRange, featureIndex, example)
	}
	return m.vectors[example][featureIndex], nil
}

// SortedValues implements Source. The returned slice must not be modified.
func (m *Memory) SortedValues(_ context.Context, featureIndex int64) ([]ExampleValue, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.organized {
		return nil, ErrNotOrganized
	}
	if featureIndex < 0 || featureIndex >= m.features {
		return nil, fmt.Errorf("%w: feature %d", ErrRange, featureIndex)
	}
	return m.sorted[featureIndex], nil
}

// Stats implements Source.
func (m *Memory) Stats(_ context.Context, example int) (ExampleStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if example < 0 || example >= len(m.stats) {
		return ExampleStats{}, fmt.Errorf("%w: example %d", ErrRange, example)
	}
	return m.stats[example], nil
}

// Examples implements Source.
func (m *Memory) Examples() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.vectors)
}

// Features implements Source.
func (m *Memory) Features() int64 {
	return m.features
}
