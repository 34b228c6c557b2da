package boost

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ayusman/facecascade/internal/featurestore"
)

// Trainer runs AdaBoost rounds over a training population.
type Trainer struct {
	Source featurestore.Source
	Labels []bool
	Pool   *Pool
	Log    zerolog.Logger
}

// NewTrainer creates a trainer for the examples of src labelled by labels.
func NewTrainer(src featurestore.Source, labels []bool, pool *Pool, log zerolog.Logger) (*Trainer, error) {
	if src.Examples() != len(labels) {
		return nil, fmt.Errorf("source has %d examples, %d labels given", src.Examples(), len(labels))
	}
	return &Trainer{Source: src, Labels: labels, Pool: pool, Log: log}, nil
}

// BestStump learns a stump for every feature on the pool and returns the
// best one. Every feature must succeed.
func (t *Trainer) BestStump(ctx context.Context, state TrainingState) (StumpRule, error) {
	features := t.Source.Features()
	if features <= 0 {
		return StumpRule{}, fmt.Errorf("source has no features")
	}

	results := make([]StumpRule, features)
	err := t.Pool.Run(int(features), func(i int) error {
		sorted, err := t.Source.SortedValues(ctx, int64(i))
		if err != nil {
			return fmt.Errorf("read feature %d: %w", i, err)
		}
		rule, err := LearnStump(state.Input(int64(i), t.Labels), sorted)
		if err != nil {
			return err
		}
		results[i] = rule
		return nil
	})
	if err != nil {
		return StumpRule{}, err
	}

	tol := state.MinWeight * 1e-9
	best := results[0]
	for _, r := range results[1:] {
		if Better(r, best, tol) {
			best = r
		}
	}

	return best, nil
}

// Round adds the best stump to the committee and returns the reweighted state.
//
// The committee's combined verdict decides which examples were
// misclassified; their weights are multiplied by 1/err - 1 of the new member.
func (t *Trainer) Round(ctx context.Context, round int, c *Committee, state TrainingState) (TrainingState, error) {
	start := time.Now()

	best, err := t.BestStump(ctx, state)
	if err != nil {
		return state, err
	}

	if best.Error >= 0.5 {
		return state, &InvariantError{
			Round: round, Member: c.Len(), FeatureIndex: best.FeatureIndex, WeightedError: best.Error,
			Reason: "no feature beats random guessing",
		}
	}
	if best.Error == 0 && c.Len() > 0 {
		return state, &InvariantError{
			Round: round, Member: c.Len(), FeatureIndex: best.FeatureIndex, WeightedError: best.Error,
			Reason: "zero error on a member other than the first",
		}
	}

	t.Log.Info().
		Int("round", round).
		Int("member", c.Len()).
		Int64("feature", best.FeatureIndex).
		Float64("threshold", best.Threshold).
		Int("toggle", best.Toggle).
		Float64("error", best.Error).
		Float64("margin", best.Margin).
		Dur("elapsed", time.Since(start)).
		Msg("Found best stump")

	votes, err := MemberVotes(ctx, t.Source, best)
	if err != nil {
		return state, err
	}
	c.Add(best, votes)

	misclassified := make([]bool, len(t.Labels))
	for i, positive := range t.Labels {
		misclassified[i] = (c.Predict(i) == 1) != positive
	}

	next := state.Reweight(t.Labels, misclassified, Saturate(best.Error))
	t.Log.Debug().
		Float64("total_pos", next.TotalWeightPos).
		Float64("total_neg", next.TotalWeightNeg).
		Float64("min", next.MinWeight).
		Float64("max", next.MaxWeight).
		Msg("Updated weights")

	return next, nil
}
