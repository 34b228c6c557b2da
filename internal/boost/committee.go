package boost

import (
	"context"
	"fmt"

	"github.com/ayusman/facecascade/internal/featurestore"
)

// Score is the weighted vote of a committee on one example. vote(m) is
// member m's +1/-1 verdict and tweak is added to every member vote before
// weighting. A first member with zero error decides alone.
func Score(rules []StumpRule, vote func(m int) int, tweak float64) float64 {
	if Decisive(rules) {
		return float64(vote(0)) + tweak
	}

	var score float64
	for m, r := range rules {
		score += r.Alpha() * (float64(vote(m)) + tweak)
	}
	return score
}

// Decisive reports whether the committee's first member has zero error and
// so decides the committee alone.
func Decisive(rules []StumpRule) bool {
	return len(rules) > 0 && rules[0].Error == 0
}

// Accepts reports whether a committee score lets an example through. A
// weighted score of exactly zero passes; a decisive member's vote must be
// strictly positive after the tweak.
func Accepts(score float64, decisive bool) bool {
	if decisive {
		return score > 0
	}
	return score >= 0
}

// MemberVotes evaluates a rule on every example of a source.
func MemberVotes(ctx context.Context, src featurestore.Source, rule StumpRule) ([]int8, error) {
	sorted, err := src.SortedValues(ctx, rule.FeatureIndex)
	if err != nil {
		return nil, fmt.Errorf("read feature %d: %w", rule.FeatureIndex, err)
	}

	votes := make([]int8, src.Examples())
	if len(sorted) != len(votes) {
		return nil, fmt.Errorf("feature %d has %d values for %d examples", rule.FeatureIndex, len(sorted), len(votes))
	}
	for _, ev := range sorted {
		votes[ev.Example] = int8(rule.Predict(ev.Value))
	}
	return votes, nil
}

// Committee is the growing member list of one layer together with each
// member's votes on the training examples.
type Committee struct {
	Rules []StumpRule
	votes [][]int8
}

// Len returns the number of members.
func (c *Committee) Len() int {
	return len(c.Rules)
}

// Votes returns member m's votes on the training examples.
func (c *Committee) Votes(m int) []int8 {
	return c.votes[m]
}

// Add appends a member with its training votes.
func (c *Committee) Add(rule StumpRule, votes []int8) {
	c.Rules = append(c.Rules, rule)
	c.votes = append(c.votes, votes)
}

// Score returns the committee score of training example i.
func (c *Committee) Score(i int, tweak float64) float64 {
	return Score(c.Rules, func(m int) int { return int(c.votes[m][i]) }, tweak)
}

// Predict returns the combined +1/-1 verdict on training example i with no tweak.
func (c *Committee) Predict(i int) int {
	if Accepts(c.Score(i, 0), Decisive(c.Rules)) {
		return 1
	}
	return -1
}
