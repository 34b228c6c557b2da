package boost

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// TrainingState is the example weight distribution of one layer. Rounds
// take a state and return the next one; a state is never modified in place.
type TrainingState struct {
	Weights        []float64
	TotalWeightPos float64
	TotalWeightNeg float64
	MinWeight      float64
	MaxWeight      float64
}

// NewTrainingState spreads initialPositiveWeight evenly over the positives
// and the remainder evenly over the negatives.
func NewTrainingState(labels []bool, initialPositiveWeight float64) (TrainingState, error) {
	if initialPositiveWeight <= 0 || initialPositiveWeight >= 1 {
		return TrainingState{}, fmt.Errorf("initial positive weight %g outside (0, 1)", initialPositiveWeight)
	}

	var pos, neg int
	for _, l := range labels {
		if l {
			pos++
		} else {
			neg++
		}
	}
	if pos == 0 || neg == 0 {
		return TrainingState{}, errors.New("training needs both positive and negative examples")
	}

	avgPos := initialPositiveWeight / float64(pos)
	avgNeg := (1 - initialPositiveWeight) / float64(neg)

	weights := make([]float64, len(labels))
	for i, l := range labels {
		if l {
			weights[i] = avgPos
		} else {
			weights[i] = avgNeg
		}
	}

	return TrainingState{
		Weights:        weights,
		TotalWeightPos: initialPositiveWeight,
		TotalWeightNeg: 1 - initialPositiveWeight,
		MinWeight:      floats.Min(weights),
		MaxWeight:      floats.Max(weights),
	}, nil
}

// Reweight multiplies the weight of every misclassified example by factor,
// renormalises to a sum of 1 and recomputes the totals and extremes.
// Without any misclassified example the state is returned unchanged.
func (s TrainingState) Reweight(labels, misclassified []bool, factor float64) TrainingState {
	found := false
	for _, m := range misclassified {
		if m {
			found = true
			break
		}
	}
	if !found {
		return s
	}

	weights := make([]float64, len(s.Weights))
	copy(weights, s.Weights)
	for i, m := range misclassified {
		if m {
			weights[i] *= factor
		}
	}
	floats.Scale(1/floats.Sum(weights), weights)

	var pos float64
	for i, l := range labels {
		if l {
			pos += weights[i]
		}
	}

	return TrainingState{
		Weights:        weights,
		TotalWeightPos: pos,
		TotalWeightNeg: 1 - pos,
		MinWeight:      floats.Min(weights),
		MaxWeight:      floats.Max(weights),
	}
}

// Input builds the stump search snapshot for one feature.
func (s TrainingState) Input(featureIndex int64, labels []bool) StumpInput {
	return StumpInput{
		FeatureIndex:   featureIndex,
		Labels:         labels,
		Weights:        s.Weights,
		TotalWeightPos: s.TotalWeightPos,
		TotalWeightNeg: s.TotalWeightNeg,
		MinWeight:      s.MinWeight,
	}
}
