package cascade

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ayusman/facecascade/internal/boost"
	"github.com/ayusman/facecascade/internal/featurestore"
)

// LayerState is the progress of the layer under construction.
type LayerState int

const (
	StateGrowing LayerState = iota
	StateSizeCapped
	StateTweaking
	StateDone
)

func (s LayerState) String() string {
	switch s {
	case StateGrowing:
		return "growing"
	case StateSizeCapped:
		return "size-capped"
	case StateTweaking:
		return "tweaking"
	case StateDone:
		return "done"
	}
	return fmt.Sprintf("LayerState(%d)", int(s))
}

// LayerParams configures the layer trainer.
type LayerParams struct {
	CommitteeBase int
	CommitteeStep int
	CommitteeMax  int
	Search        SearchParams
}

// SizeGuide returns the committee size above which a layer is closed.
func (p LayerParams) SizeGuide(round int) int {
	guide := p.CommitteeBase + round*p.CommitteeStep
	if guide > p.CommitteeMax {
		return p.CommitteeMax
	}
	return guide
}

// LayerResult describes a finished layer.
type LayerResult struct {
	Layer Layer
	// TargetsMet is false when the layer was closed by the size guide.
	TargetsMet bool
	// Train and Test are the cumulative cascade rates at the kept tweak.
	Train    Rates
	Test     Rates
	State    boost.TrainingState
	Searches []SearchResult
	States   []LayerState
}

// LayerTrainer grows one committee per round and calibrates its tweak
// against a training and a validation pool.
type LayerTrainer struct {
	Booster    *boost.Trainer
	TestSource featurestore.Source
	Train      *PoolScores
	Test       *PoolScores
	Params     LayerParams
	Log        zerolog.Logger
}

// NewLayerTrainer wires the pools of a training run. Flat validation
// examples are rejected up front, as the evaluator does.
func NewLayerTrainer(ctx context.Context, booster *boost.Trainer, testSource featurestore.Source, testLabels []bool, flatThreshold float64, params LayerParams, log zerolog.Logger) (*LayerTrainer, error) {
	if testSource.Examples() != len(testLabels) {
		return nil, fmt.Errorf("validation source has %d examples, %d labels given", testSource.Examples(), len(testLabels))
	}

	flat := make([]bool, len(testLabels))
	var flats int
	for i := range testLabels {
		stats, err := testSource.Stats(ctx, i)
		if err != nil {
			return nil, fmt.Errorf("read validation example %d: %w", i, err)
		}
		flat[i] = IsFlat(stats, flatThreshold)
		if flat[i] {
			flats++
		}
	}
	if flats > 0 {
		log.Warn().Int("flat", flats).Msg("Validation examples rejected as flat")
	}

	return &LayerTrainer{
		Booster:    booster,
		TestSource: testSource,
		Train:      NewPoolScores(booster.Labels, nil),
		Test:       NewPoolScores(testLabels, flat),
		Params:     params,
		Log:        log,
	}, nil
}

// assess returns the worst of the training and validation rates at tweak.
func (t *LayerTrainer) assess(tweak float64) Rates {
	return Worst(t.Train.Rates(tweak), t.Test.Rates(tweak))
}

// TrainLayer builds the layer of the given round starting from state.
//
// Each AdaBoost round is followed by a tweak search. The layer is done once
// a search meets both targets, or after the first search that follows the
// committee outgrowing the size guide. Both pools are frozen at the kept
// tweak before returning.
func (t *LayerTrainer) TrainLayer(ctx context.Context, round int, state boost.TrainingState) (LayerResult, error) {
	guide := t.Params.SizeGuide(round)
	t.Log.Info().Int("round", round).Int("size_guide", guide).Msg("Training layer")

	var (
		res       LayerResult
		committee boost.Committee
	)
	res.States = append(res.States, StateGrowing)

	for {
		start := time.Now()
		next, err := t.Booster.Round(ctx, round, &committee, state)
		if err != nil {
			return res, err
		}
		state = next

		m := committee.Len() - 1
		rule := committee.Rules[m]
		t.Train.AddMember(rule, committee.Votes(m))
		testVotes, err := boost.MemberVotes(ctx, t.TestSource, rule)
		if err != nil {
			return res, err
		}
		t.Test.AddMember(rule, testVotes)

		overSized := committee.Len() > guide
		if overSized {
			res.States = append(res.States, StateSizeCapped)
		}
		res.States = append(res.States, StateTweaking)

		params := t.Params.Search
		params.Final = overSized
		search := SearchTweak(t.assess, params)
		res.Searches = append(res.Searches, search)

		t.Log.Debug().
			Int("round", round).
			Int("committee", committee.Len()).
			Float64("tweak", search.Tweak).
			Bool("satisfied", search.Satisfied).
			Bool("final", search.Final).
			Int("steps", len(search.Trace)).
			Int("backtracks", search.Backtracks).
			Dur("elapsed", time.Since(start)).
			Msg("Tweak search finished")

		if search.Final && !overSized {
			t.Log.Warn().
				Int("round", round).
				Int("committee", committee.Len()).
				Float64("tweak", search.Tweak).
				Msg("Tweak search fell back to the final sweep")
		}

		res.Layer = Layer{Rules: committee.Rules, Tweak: search.Tweak}
		if search.Satisfied {
			res.TargetsMet = true
			break
		}
		if overSized {
			break
		}
		res.States = append(res.States, StateGrowing)
	}
	res.States = append(res.States, StateDone)
	res.State = state

	res.Train = t.Train.Rates(res.Layer.Tweak)
	res.Test = t.Test.Rates(res.Layer.Tweak)
	t.Train.Freeze(res.Layer.Tweak)
	t.Test.Freeze(res.Layer.Tweak)

	return res, nil
}
