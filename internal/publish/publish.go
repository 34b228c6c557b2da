// Package publish reports training progress and exports finished cascades.
package publish

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// LayerEvent reports one finished cascade layer.
type LayerEvent struct {
	RunID         string    `json:"run_id"`
	Layer         int       `json:"layer"`
	CommitteeSize int       `json:"committee_size"`
	Tweak         float64   `json:"tweak"`
	TargetsMet    bool      `json:"targets_met"`
	TrainFP       float64   `json:"train_false_positive"`
	TrainDetect   float64   `json:"train_detection"`
	TestFP        float64   `json:"test_false_positive"`
	TestDetect    float64   `json:"test_detection"`
	AccumulatedFP float64   `json:"accumulated_false_positive"`
	Elapsed       float64   `json:"elapsed_seconds"`
	Time          time.Time `json:"time"`
}

// RunEvent reports the end of a training run.
type RunEvent struct {
	RunID         string    `json:"run_id"`
	Layers        int       `json:"layers"`
	Rules         int       `json:"rules"`
	AccumulatedFP float64   `json:"accumulated_false_positive"`
	GoalReached   bool      `json:"goal_reached"`
	Elapsed       float64   `json:"elapsed_seconds"`
	Time          time.Time `json:"time"`
}

// Notifier receives training progress.
type Notifier interface {
	LayerCompleted(ctx context.Context, e LayerEvent) error
	TrainingFinished(ctx context.Context, e RunEvent) error
}

// LogNotifier writes events to a logger.
type LogNotifier struct {
	Log zerolog.Logger
}

// LayerCompleted implements Notifier.
func (n LogNotifier) LayerCompleted(_ context.Context, e LayerEvent) error {
	n.Log.Info().
		Str("run", e.RunID).
		Int("layer", e.Layer).
		Int("committee", e.CommitteeSize).
		Float64("tweak", e.Tweak).
		Bool("targets_met", e.TargetsMet).
		Float64("train_fp", e.TrainFP).
		Float64("train_detection", e.TrainDetect).
		Float64("test_fp", e.TestFP).
		Float64("test_detection", e.TestDetect).
		Float64("accumulated_fp", e.AccumulatedFP).
		Float64("elapsed_s", e.Elapsed).
		Msg("Layer completed")
	return nil
}

// TrainingFinished implements Notifier.
func (n LogNotifier) TrainingFinished(_ context.Context, e RunEvent) error {
	n.Log.Info().
		Str("run", e.RunID).
		Int("layers", e.Layers).
		Int("rules", e.Rules).
		Float64("accumulated_fp", e.AccumulatedFP).
		Bool("goal_reached", e.GoalReached).
		Float64("elapsed_s", e.Elapsed).
		Msg("Training finished")
	return nil
}

// Multi fans events out to several notifiers. Every notifier is called even
// when an earlier one fails.
type Multi []Notifier

// LayerCompleted implements Notifier.
func (m Multi) LayerCompleted(ctx context.Context, e LayerEvent) error {
	var errs []error
	for _, n := range m {
		if err := n.LayerCompleted(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// TrainingFinished implements Notifier.
func (m Multi) TrainingFinished(ctx context.Context, e RunEvent) error {
	var errs []error
	for _, n := range m {
		if err := n.TrainingFinished(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
