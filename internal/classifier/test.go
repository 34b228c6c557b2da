package classifier

import (
	"context"
	"fmt"

	"github.com/ayusman/facecascade/internal/cascade"
	"github.com/ayusman/facecascade/internal/store"
)

// TestRequest selects the held-out dataset and the cascade to evaluate.
type TestRequest struct {
	Dir string
	// RunID selects the cascade; empty uses the latest completed run.
	RunID string
	// LayerLimit evaluates only the first layers; negative uses all.
	LayerLimit int
}

// Confusion counts the verdicts on a labelled dataset.
type Confusion struct {
	TruePositive  int `json:"true_positive"`
	FalseNegative int `json:"false_negative"`
	FalsePositive int `json:"false_positive"`
	TrueNegative  int `json:"true_negative"`
	// Flat counts examples rejected by the flatness gate, whatever their label.
	Flat int `json:"flat"`
}

// Add records the verdict on an example.
func (c *Confusion) Add(positive bool, v cascade.Verdict) {
	if v.Flat {
		c.Flat++
	}
	switch {
	case positive && v.Face:
		c.TruePositive++
	case positive:
		c.FalseNegative++
	case v.Face:
		c.FalsePositive++
	default:
		c.TrueNegative++
	}
}

func ratio(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}

// DetectionRate is the fraction of positives accepted.
func (c Confusion) DetectionRate() float64 {
	return ratio(c.TruePositive, c.TruePositive+c.FalseNegative)
}

// FalsePositiveRate is the fraction of negatives accepted.
func (c Confusion) FalsePositiveRate() float64 {
	return ratio(c.FalsePositive, c.FalsePositive+c.TrueNegative)
}

// Accuracy is the fraction of correct verdicts.
func (c Confusion) Accuracy() float64 {
	return ratio(c.TruePositive+c.TrueNegative, c.TruePositive+c.FalseNegative+c.FalsePositive+c.TrueNegative)
}

// TestResult is the evaluation of a cascade on a dataset.
type TestResult struct {
	RunID     string    `json:"run_id"`
	Layers    int       `json:"layers"`
	Confusion Confusion `json:"confusion"`
}

// Test evaluates a persisted cascade on the dataset in req.Dir.
func (c *Classifier) Test(ctx context.Context, req TestRequest) (*TestResult, error) {
	runs := c.Store.Runs()

	var (
		run *store.Run
		err error
	)
	if req.RunID != "" {
		run, err = runs.GetByID(req.RunID)
	} else {
		run, err = runs.Latest()
	}
	if err != nil {
		return nil, fmt.Errorf("select run: %w", err)
	}

	model, err := runs.LoadCascade(ctx, run.ID)
	if err != nil {
		return nil, fmt.Errorf("load cascade %s: %w", run.ID, err)
	}
	if model.Width != c.Catalog.Width() || model.Height != c.Catalog.Height() {
		return nil, fmt.Errorf("run %s was trained on %dx%d patches, catalog is %dx%d",
			run.ID, model.Width, model.Height, c.Catalog.Width(), c.Catalog.Height())
	}

	data, labels, err := c.Population(ctx, "test", req.Dir)
	if err != nil {
		return nil, fmt.Errorf("test pool: %w", err)
	}

	res := &TestResult{RunID: run.ID, Layers: len(model.Layers)}
	for i, positive := range labels {
		stats, err := data.Stats(ctx, i)
		if err != nil {
			return nil, err
		}
		example := i
		v, err := cascade.ClassifyWith(model, stats, func(f int64) (int, error) {
			return data.ValueAt(ctx, f, example)
		}, req.LayerLimit, c.Training.FlatThreshold)
		if err != nil {
			return nil, fmt.Errorf("classify example %d: %w", i, err)
		}
		res.Confusion.Add(positive, v)
	}

	conf := res.Confusion
	c.Log.Info().
		Str("run", run.ID).
		Int("true_positive", conf.TruePositive).
		Int("false_negative", conf.FalseNegative).
		Int("false_positive", conf.FalsePositive).
		Int("true_negative", conf.TrueNegative).
		Int("flat", conf.Flat).
		Float64("detection_rate", conf.DetectionRate()).
		Float64("false_positive_rate", conf.FalsePositiveRate()).
		Float64("accuracy", conf.Accuracy()).
		Msg("Test finished")

	return res, nil
}
