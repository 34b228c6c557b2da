// Package featurestore defines how the trainer reads precomputed feature
// values and provides the in-memory backend and population pipeline.
package featurestore

import (
	"context"
	"errors"
	"math"
)

// ErrNotOrganized is returned when sorted per-feature lists are requested
// before the population has been organized.
var ErrNotOrganized = errors.New("feature store not organized")

// ErrRange is returned for a feature index or example outside the population.
var ErrRange = errors.New("index out of range")

// ExampleValue is the value of one feature on one example.
type ExampleValue struct {
	Example int
	Value   int
}

// ExampleStats summarises the feature vector of one example.
type ExampleStats struct {
	Sum   float64
	SumSq float64
	Count int64
	// Uniform is set when every pixel of the source patch has the same intensity.
	Uniform bool
}

// StatsOf summarises a feature vector.
func StatsOf(values []int, uniform bool) ExampleStats {
	st := ExampleStats{Uniform: uniform}
	for _, v := range values {
		st.Add(v)
	}
	return st
}

// Add accumulates a feature value.
func (s *ExampleStats) Add(v int) {
	f := float64(v)
	s.Sum += f
	s.SumSq += f * f
	s.Count++
}

// Dispersion returns sqrt(sumSq/n^2 - (sum/n^2)^2) over the feature vector.
// The value is used as a flatness score; it is NaN when the radicand is
// negative and +Inf for an empty vector.
func (s ExampleStats) Dispersion() float64 {
	n := float64(s.Count)
	if n == 0 {
		return math.Inf(1)
	}
	n2 := n * n
	mean := s.Sum / n2
	return math.Sqrt(s.SumSq/n2 - mean*mean)
}

// Source is read access to the feature values of a population.
// Implementations must be safe for concurrent readers.
type Source interface {
	// ValueAt returns the value of a feature on an example.
	ValueAt(ctx context.Context, featureIndex int64, example int) (int, error)
	// SortedValues returns every example's value of a feature, in ascending
	// value order with ties broken by example index.
	SortedValues(ctx context.Context, featureIndex int64) ([]ExampleValue, error)
	// Stats returns the summary of an example's feature vector.
	Stats(ctx context.Context, example int) (ExampleStats, error)
	// Examples returns the number of examples.
	Examples() int
	// Features returns the number of features per example.
	Features() int64
}

// Record is the populated form of one example.
type Record struct {
	Positive bool
	Path     string
	Values   []int
	// Uniform marks a constant-intensity patch.
	Uniform bool
}

// Writer receives feature vectors during population.
type Writer interface {
	// PutExample stores the feature vector of the example at position idx.
	PutExample(ctx context.Context, idx int, r Record) error
	// Organize builds the per-feature sorted lists once every example is stored.
	Organize(ctx context.Context) error
}

// Less orders example values by value, then by example index.
func Less(a, b ExampleValue) bool {
	if a.Value != b.Value {
		return a.Value < b.Value
	}
	return a.Example < b.Example
}
