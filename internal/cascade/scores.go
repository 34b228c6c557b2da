package cascade

import (
	"github.com/ayusman/facecascade/internal/boost"
)

// PoolScores tracks how a pool of examples fares against the cascade being
// trained. Finished layers are folded into a survival mask; the layer under
// construction keeps per-example partial sums so that its score at any
// tweak is sum + tweak*alpha.
type PoolScores struct {
	labels    []bool
	rejected  []bool
	alive     []bool
	positives int
	negatives int

	sums     []float64
	alpha    float64
	members  int
	decisive []int8
}

// NewPoolScores creates the scores of a pool. rejected marks examples that
// never pass, such as flat patches; it may be nil.
func NewPoolScores(labels []bool, rejected []bool) *PoolScores {
	p := &PoolScores{
		labels:   labels,
		rejected: rejected,
		alive:    make([]bool, len(labels)),
		sums:     make([]float64, len(labels)),
	}
	for i, l := range labels {
		p.alive[i] = true
		if l {
			p.positives++
		} else {
			p.negatives++
		}
	}
	return p
}

// Len returns the number of examples.
func (p *PoolScores) Len() int {
	return len(p.labels)
}

// AddMember folds a new committee member's votes into the current layer.
func (p *PoolScores) AddMember(rule boost.StumpRule, votes []int8) {
	if p.members == 0 && rule.Error == 0 {
		p.decisive = votes
	}
	p.members++
	if p.decisive != nil {
		return
	}

	a := rule.Alpha()
	p.alpha += a
	for i, v := range votes {
		p.sums[i] += a * float64(v)
	}
}

// Score returns the current layer's score of example i at a tweak.
func (p *PoolScores) Score(i int, tweak float64) float64 {
	if p.decisive != nil {
		return float64(p.decisive[i]) + tweak
	}
	return p.sums[i] + tweak*p.alpha
}

func (p *PoolScores) passes(i int, tweak float64) bool {
	if !p.alive[i] || (p.rejected != nil && p.rejected[i]) {
		return false
	}
	if p.members == 0 {
		return true
	}
	return boost.Accepts(p.Score(i, tweak), p.decisive != nil)
}

// Rates returns the pool's rates through every finished layer and the
// current one at tweak.
func (p *PoolScores) Rates(tweak float64) Rates {
	var truePos, falsePos int
	for i, positive := range p.labels {
		if !p.passes(i, tweak) {
			continue
		}
		if positive {
			truePos++
		} else {
			falsePos++
		}
	}

	var r Rates
	if p.negatives > 0 {
		r.FalsePositive = float64(falsePos) / float64(p.negatives)
	}
	if p.positives > 0 {
		r.Detection = float64(truePos) / float64(p.positives)
	}
	return r
}

// Freeze closes the current layer at tweak: examples it rejects stay
// rejected for every later layer.
func (p *PoolScores) Freeze(tweak float64) {
	for i := range p.alive {
		p.alive[i] = p.passes(i, tweak)
		p.sums[i] = 0
	}
	p.alpha = 0
	p.members = 0
	p.decisive = nil
}
