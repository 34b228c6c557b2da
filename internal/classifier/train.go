package classifier

import (
	"context"
	"fmt"
	"time"

	"github.com/ayusman/facecascade/internal/boost"
	"github.com/ayusman/facecascade/internal/cascade"
	"github.com/ayusman/facecascade/internal/config"
	"github.com/ayusman/facecascade/internal/publish"
	"github.com/ayusman/facecascade/internal/store"
)

// TrainRequest names the datasets of a training run.
type TrainRequest struct {
	TrainDir string
	TestDir  string
	// Rounds caps the number of layers; zero uses EstimateRounds.
	Rounds int
}

// TrainResult describes a finished training run.
type TrainResult struct {
	RunID         string
	Cascade       *cascade.Cascade
	Layers        []cascade.LayerResult
	Rounds        int
	AccumulatedFP float64
	GoalReached   bool
	ExportedTo    string
}

// LayerParams derives the layer trainer settings from a training profile.
func LayerParams(t config.Training) cascade.LayerParams {
	return cascade.LayerParams{
		CommitteeBase: t.CommitteeBase,
		CommitteeStep: t.CommitteeStep,
		CommitteeMax:  t.CommitteeMax,
		Search: cascade.SearchParams{
			TargetDetection:     t.OverallDetectionRate,
			TargetFalsePositive: t.OverallFalsePositiveRate,
			Step:                t.TweakStep,
			Floor:               t.TweakFloor,
			Bound:               t.TweakBound,
			FinalDetection:      t.FinalDetectionRate,
		},
	}
}

// Train builds a cascade layer by layer until the accumulated validation
// false positive rate reaches the goal or the round budget runs out.
//
// Every layer is persisted as soon as it is finished, so a failed run keeps
// the layers it completed. A *boost.InvariantError stops the run.
func (c *Classifier) Train(ctx context.Context, req TrainRequest) (*TrainResult, error) {
	start := time.Now()
	t := c.Training
	if err := t.Validate(); err != nil {
		return nil, err
	}

	trainData, trainLabels, err := c.Population(ctx, "train", req.TrainDir)
	if err != nil {
		return nil, fmt.Errorf("training pool: %w", err)
	}
	testData, testLabels, err := c.Population(ctx, "validation", req.TestDir)
	if err != nil {
		return nil, fmt.Errorf("validation pool: %w", err)
	}

	booster, err := boost.NewTrainer(c.source(trainData), trainLabels, boost.NewPool(c.Workers), c.Log)
	if err != nil {
		return nil, err
	}
	layers, err := cascade.NewLayerTrainer(ctx, booster, c.source(testData), testLabels, t.FlatThreshold, LayerParams(t), c.Log)
	if err != nil {
		return nil, err
	}

	run := &store.Run{
		Width:       c.Catalog.Width(),
		Height:      c.Catalog.Height(),
		TrainPoolID: trainData.Pool().ID,
		TestPoolID:  testData.Pool().ID,
	}
	if err := c.Store.Runs().Create(run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}

	rounds := req.Rounds
	if rounds <= 0 {
		rounds = EstimateRounds(t.OverallFalsePositiveRate, t.RoundFalsePositiveRate, t.RoundMargin)
	}
	c.Log.Info().Str("run", run.ID).Int("rounds", rounds).Float64("goal", t.Goal).Msg("Training classifier")

	res := &TrainResult{
		RunID:         run.ID,
		Cascade:       &cascade.Cascade{Width: run.Width, Height: run.Height},
		Rounds:        rounds,
		AccumulatedFP: 1,
	}

	for round := 0; round < rounds && res.AccumulatedFP > t.Goal; round++ {
		roundStart := time.Now()

		// AdaBoost weights restart from the initial split every round.
		state, err := boost.NewTrainingState(trainLabels, t.InitialPositiveWeight)
		if err != nil {
			return nil, c.fail(run.ID, err)
		}

		layer, err := layers.TrainLayer(ctx, round, state)
		if err != nil {
			return nil, c.fail(run.ID, fmt.Errorf("round %d: %w", round, err))
		}
		if err := c.Store.Runs().AppendLayer(ctx, run.ID, round, layer.Layer); err != nil {
			return nil, c.fail(run.ID, fmt.Errorf("persist layer %d: %w", round, err))
		}

		res.Cascade.Layers = append(res.Cascade.Layers, layer.Layer)
		res.Layers = append(res.Layers, layer)
		res.AccumulatedFP *= layer.Test.FalsePositive

		event := publish.LayerEvent{
			RunID:         run.ID,
			Layer:         round,
			CommitteeSize: len(layer.Layer.Rules),
			Tweak:         layer.Layer.Tweak,
			TargetsMet:    layer.TargetsMet,
			TrainFP:       layer.Train.FalsePositive,
			TrainDetect:   layer.Train.Detection,
			TestFP:        layer.Test.FalsePositive,
			TestDetect:    layer.Test.Detection,
			AccumulatedFP: res.AccumulatedFP,
			Elapsed:       time.Since(roundStart).Seconds(),
			Time:          time.Now(),
		}
		if err := c.Notifier.LayerCompleted(ctx, event); err != nil {
			c.Log.Warn().Err(err).Int("layer", round).Msg("Could not publish layer event")
		}
	}

	if err := c.Store.Runs().SetTweaks(ctx, run.ID, res.Cascade.Tweaks()); err != nil {
		return nil, c.fail(run.ID, fmt.Errorf("persist tweaks: %w", err))
	}
	res.GoalReached = res.AccumulatedFP <= t.Goal

	if c.Exporter != nil {
		loc, err := c.Exporter.Export(ctx, run.ID, res.Cascade)
		if err != nil {
			c.Log.Warn().Err(err).Str("run", run.ID).Msg("Could not export cascade")
		} else {
			res.ExportedTo = loc
		}
	}

	finished := publish.RunEvent{
		RunID:         run.ID,
		Layers:        len(res.Cascade.Layers),
		Rules:         res.Cascade.Rules(),
		AccumulatedFP: res.AccumulatedFP,
		GoalReached:   res.GoalReached,
		Elapsed:       time.Since(start).Seconds(),
		Time:          time.Now(),
	}
	if err := c.Notifier.TrainingFinished(ctx, finished); err != nil {
		c.Log.Warn().Err(err).Msg("Could not publish run event")
	}

	return res, nil
}

// fail marks the run as failed and returns err.
func (c *Classifier) fail(runID string, err error) error {
	if serr := c.Store.Runs().SetStatus(runID, store.RunStatusFailed); serr != nil {
		c.Log.Error().Err(serr).Str("run", runID).Msg("Could not mark run as failed")
	}
	return err
}
