// Package cascade trains attentional cascade layers and classifies patches
// with a trained cascade.
package cascade

import (
	"github.com/ayusman/facecascade/internal/boost"
)

// Layer is one committee of the cascade with its decision bias.
type Layer struct {
	Rules []boost.StumpRule `json:"rules"`
	Tweak float64           `json:"tweak"`
}

// Cascade is an ordered list of layers for a fixed frame size.
type Cascade struct {
	Width  int     `json:"width"`
	Height int     `json:"height"`
	Layers []Layer `json:"layers"`
}

// Tweaks returns the per-layer decision biases.
func (c *Cascade) Tweaks() []float64 {
	tweaks := make([]float64, len(c.Layers))
	for i, l := range c.Layers {
		tweaks[i] = l.Tweak
	}
	return tweaks
}

// CommitteeSizes returns the number of rules in every layer.
func (c *Cascade) CommitteeSizes() []int {
	sizes := make([]int, len(c.Layers))
	for i, l := range c.Layers {
		sizes[i] = len(l.Rules)
	}
	return sizes
}

// Rules returns the total number of rules across layers.
func (c *Cascade) Rules() int {
	var n int
	for _, l := range c.Layers {
		n += len(l.Rules)
	}
	return n
}
