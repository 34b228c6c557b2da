package cascade

import (
	"math"
)

// Rates are the empirical rates of a pool at one tweak.
type Rates struct {
	FalsePositive float64 `json:"false_positive"`
	Detection     float64 `json:"detection"`
}

// Worst combines training and validation rates pessimistically.
func Worst(train, test Rates) Rates {
	return Rates{
		FalsePositive: math.Max(train.FalsePositive, test.FalsePositive),
		Detection:     math.Min(train.Detection, test.Detection),
	}
}

// Assessor returns the worst-case rates of the layer under construction at a tweak.
type Assessor func(tweak float64) Rates

// SearchParams configures SearchTweak.
type SearchParams struct {
	// Targets a layer must reach: detection at least TargetDetection and
	// false positives at most TargetFalsePositive.
	TargetDetection     float64
	TargetFalsePositive float64
	// Step is the initial tweak unit, Floor the smallest unit before the
	// search falls back to the final sweep.
	Step  float64
	Floor float64
	// Bound limits |tweak|.
	Bound float64
	// FinalDetection ends the final sweep.
	FinalDetection float64
	// Final starts directly with the final sweep.
	Final bool
}

// Phase tells which part of the search produced a step.
type Phase int

const (
	PhaseSearch Phase = iota
	PhaseFinal
)

func (p Phase) String() string {
	if p == PhaseFinal {
		return "final"
	}
	return "search"
}

// Step is one assessed tweak.
type Step struct {
	Tweak float64
	Unit  float64
	Phase Phase
	Rates Rates
}

// SearchResult is the outcome of a tweak search.
type SearchResult struct {
	// Tweak is the last assessed tweak, which the layer keeps.
	Tweak float64
	Rates Rates
	// Satisfied is set when both targets were met.
	Satisfied bool
	// Final is set when the search ended in the final sweep.
	Final bool
	// Backtracks counts unit halvings.
	Backtracks int
	Trace      []Step
}

// SearchTweak looks for a tweak meeting both targets.
//
// Detection too low moves the tweak up, false positives too high move it
// down. When the last two moves cancel out the unit is halved and the tweak
// steps back by the new unit; a unit under Floor switches to the final
// sweep. The final sweep also starts when neither target holds. It walks
// up from -1 by Step until detection reaches FinalDetection or the tweak
// leaves the bound.
func SearchTweak(assess Assessor, p SearchParams) SearchResult {
	var res SearchResult

	final := p.Final
	tweak := 0.0
	if final {
		tweak = -1
	}
	unit := p.Step

	var (
		counter     int
		oscillation [2]int
	)

	for math.Abs(tweak) < p.Bound {
		res.Tweak = tweak
		rates := assess(tweak)
		res.Rates = rates

		phase := PhaseSearch
		if final {
			phase = PhaseFinal
		}
		res.Trace = append(res.Trace, Step{Tweak: tweak, Unit: unit, Phase: phase, Rates: rates})

		if final {
			if rates.Detection >= p.FinalDetection {
				break
			}
			tweak += p.Step
			continue
		}

		detectionOK := rates.Detection >= p.TargetDetection
		falsePositiveOK := rates.FalsePositive <= p.TargetFalsePositive

		switch {
		case detectionOK && falsePositiveOK:
			res.Satisfied = true
			res.Final = false
			return res
		case detectionOK:
			tweak -= unit
			counter++
			oscillation[counter%2] = -1
		case falsePositiveOK:
			tweak += unit
			counter++
			oscillation[counter%2] = 1
		default:
			final = true
			tweak = -1
			continue
		}

		if counter > 1 && oscillation[0]+oscillation[1] == 0 {
			unit /= 2
			res.Backtracks++
			if oscillation[counter%2] == 1 {
				tweak -= unit
			} else {
				tweak += unit
			}
			if unit < p.Floor {
				final = true
				tweak = -1
			}
		}
	}

	res.Final = final
	return res
}
