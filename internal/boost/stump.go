// Package boost implements the decision stump learner and the AdaBoost round
// that grows a layer committee.
package boost

import (
	"fmt"
	"math"

	"github.com/ayusman/facecascade/internal/featurestore"
)

// StumpRule is a one-feature weak classifier: a value above Threshold votes
// Toggle, a value at or below it votes -Toggle.
type StumpRule struct {
	FeatureIndex int64   `json:"feature_index"`
	Threshold    float64 `json:"threshold"`
	Toggle       int     `json:"toggle"`
	Error        float64 `json:"error"`
	Margin       float64 `json:"margin"`
}

// Predict returns the rule's vote, +1 for face and -1 for non-face.
func (r StumpRule) Predict(value int) int {
	if float64(value) > r.Threshold {
		return r.Toggle
	}
	return -r.Toggle
}

// Alpha is the weight of the rule's vote in its committee, log(1/err - 1).
// A zero error saturates instead of overflowing.
func (r StumpRule) Alpha() float64 {
	return math.Log(Saturate(r.Error))
}

// Saturate returns 1/err - 1, or math.MaxFloat64-1 when err is zero.
func Saturate(err float64) float64 {
	if err == 0 {
		return math.MaxFloat64 - 1
	}
	return 1/err - 1
}

// StumpInput is the read-only snapshot one stump search works on.
type StumpInput struct {
	FeatureIndex   int64
	Labels         []bool
	Weights        []float64
	TotalWeightPos float64
	TotalWeightNeg float64
	MinWeight      float64
}

// Tolerance is the slack used when comparing errors built from running sums.
func (in StumpInput) Tolerance() float64 {
	return in.MinWeight * 1e-9
}

// LearnStump finds the threshold and polarity of one feature with the lowest
// weighted error. sorted must list every example once, ordered by value then
// example index.
//
// Candidate thresholds sit below every value, halfway between consecutive
// distinct values and above every value. With W+ and W- the weights of
// positives and negatives at or below the cursor, the toggle +1 error is
// W+ + (W-total - W-) and the toggle -1 error is W- + (W+total - W+).
// Margin is the gap to the best other candidate. Earlier candidates win
// ties, so the rule is deterministic for a given input.
func LearnStump(in StumpInput, sorted []featurestore.ExampleValue) (StumpRule, error) {
	n := len(in.Labels)
	if len(in.Weights) != n {
		return StumpRule{}, fmt.Errorf("feature %d: %d weights for %d labels", in.FeatureIndex, len(in.Weights), n)
	}
	if len(sorted) != n {
		return StumpRule{}, fmt.Errorf("feature %d: %d values for %d examples", in.FeatureIndex, len(sorted), n)
	}
	if n == 0 {
		return StumpRule{}, fmt.Errorf("feature %d: no examples", in.FeatureIndex)
	}
	for i := 1; i < n; i++ {
		if featurestore.Less(sorted[i], sorted[i-1]) {
			return StumpRule{}, fmt.Errorf("feature %d: values not sorted at position %d", in.FeatureIndex, i)
		}
	}

	tol := in.Tolerance()
	best := StumpRule{FeatureIndex: in.FeatureIndex, Error: math.Inf(1)}
	second := math.Inf(1)

	consider := func(threshold float64, toggle int, err float64) {
		if err < best.Error-tol {
			second = best.Error
			best.Threshold = threshold
			best.Toggle = toggle
			best.Error = err
			return
		}
		if err < second {
			second = err
		}
	}

	var posBelow, negBelow float64
	for k := 0; k <= n; k++ {
		if k > 0 {
			ev := sorted[k-1]
			if ev.Example < 0 || ev.Example >= n {
				return StumpRule{}, fmt.Errorf("feature %d: example %d out of range", in.FeatureIndex, ev.Example)
			}
			if in.Labels[ev.Example] {
				posBelow += in.Weights[ev.Example]
			} else {
				negBelow += in.Weights[ev.Example]
			}
		}

		var threshold float64
		switch {
		case k == 0:
			threshold = float64(sorted[0].Value) - 1
		case k == n:
			threshold = float64(sorted[n-1].Value) + 1
		case sorted[k-1].Value == sorted[k].Value:
			continue
		default:
			threshold = (float64(sorted[k-1].Value) + float64(sorted[k].Value)) / 2
		}

		consider(threshold, 1, posBelow+(in.TotalWeightNeg-negBelow))
		consider(threshold, -1, negBelow+(in.TotalWeightPos-posBelow))
	}

	best.Error = clampError(best.Error)
	best.Margin = math.Max(0, clampError(second)-best.Error)

	return best, nil
}

// clampError removes negative drift left by the running sums.
func clampError(err float64) float64 {
	if err < 0 {
		return 0
	}
	return err
}

// Better reports whether a beats b: lower error, then wider margin, then
// lower feature index. Errors closer than tol count as equal.
func Better(a, b StumpRule, tol float64) bool {
	if math.Abs(a.Error-b.Error) > tol {
		return a.Error < b.Error
	}
	if a.Margin != b.Margin {
		return a.Margin > b.Margin
	}
	return a.FeatureIndex < b.FeatureIndex
}
