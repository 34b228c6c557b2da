package cascade

import (
	"fmt"
	"math"

	"github.com/ayusman/facecascade/internal/boost"
	"github.com/ayusman/facecascade/internal/featurestore"
)

// DefaultFlatThreshold is the dispersion under which a patch counts as flat.
const DefaultFlatThreshold = 1

// Verdict is the outcome of classifying one patch.
type Verdict struct {
	Face bool `json:"face"`
	// RejectedBy is the index of the rejecting layer, or -1.
	RejectedBy int  `json:"rejected_by"`
	Flat       bool `json:"flat"`
	// Layers is the number of layers that were evaluated.
	Layers int `json:"layers"`
}

// IsFlat reports whether an example carries too little signal to be
// classified: a constant-intensity patch, or a feature vector whose
// dispersion is non-finite or below threshold.
func IsFlat(stats featurestore.ExampleStats, threshold float64) bool {
	if stats.Uniform {
		return true
	}
	d := stats.Dispersion()
	return math.IsNaN(d) || math.IsInf(d, 0) || d < threshold
}

// Classify runs the cascade on a complete feature vector. uniform marks a
// constant-intensity patch. A negative layerLimit evaluates every layer;
// larger limits are clamped. A rule whose feature is not in values yields
// featurestore.ErrRange.
func Classify(c *Cascade, values []int, uniform bool, layerLimit int, flatThreshold float64) (Verdict, error) {
	stats := featurestore.StatsOf(values, uniform)
	return ClassifyWith(c, stats, func(f int64) (int, error) {
		if f < 0 || f >= int64(len(values)) {
			return 0, fmt.Errorf("%w: feature %d of %d", featurestore.ErrRange, f, len(values))
		}
		return values[f], nil
	}, layerLimit, flatThreshold)
}

// ClassifyWith runs the cascade reading feature values on demand.
// Flat examples are rejected before any layer runs; otherwise a layer whose
// score is negative rejects the example and later layers are skipped.
func ClassifyWith(c *Cascade, stats featurestore.ExampleStats, value func(featureIndex int64) (int, error), layerLimit int, flatThreshold float64) (Verdict, error) {
	if IsFlat(stats, flatThreshold) {
		return Verdict{Face: false, RejectedBy: -1, Flat: true}, nil
	}

	limit := len(c.Layers)
	if layerLimit >= 0 && layerLimit < limit {
		limit = layerLimit
	}

	for l := 0; l < limit; l++ {
		layer := c.Layers[l]
		votes := make([]int, len(layer.Rules))
		for m, r := range layer.Rules {
			v, err := value(r.FeatureIndex)
			if err != nil {
				return Verdict{}, err
			}
			votes[m] = r.Predict(v)
			// A perfect first member decides the layer alone.
			if m == 0 && r.Error == 0 {
				break
			}
		}

		score := boost.Score(layer.Rules, func(m int) int { return votes[m] }, layer.Tweak)
		if !boost.Accepts(score, boost.Decisive(layer.Rules)) {
			return Verdict{Face: false, RejectedBy: l, Layers: l + 1}, nil
		}
	}

	return Verdict{Face: true, RejectedBy: -1, Layers: limit}, nil
}
