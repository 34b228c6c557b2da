package boost

import (
	"errors"
	"fmt"
)

// ErrBoostingInvariant marks a round that cannot produce a valid weak classifier.
var ErrBoostingInvariant = errors.New("boosting invariant violated")

// InvariantError describes why a round had to abort. Training cannot
// continue past it.
type InvariantError struct {
	Round         int
	Member        int
	FeatureIndex  int64
	WeightedError float64
	Reason        string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("%s: round %d member %d feature %d error %g: %s",
		ErrBoostingInvariant, e.Round, e.Member, e.FeatureIndex, e.WeightedError, e.Reason)
}

// Unwrap lets errors.Is match ErrBoostingInvariant.
func (e *InvariantError) Unwrap() error {
	return ErrBoostingInvariant
}
