// Package classifier drives cascade training over on-disk datasets and
// evaluates persisted cascades.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/rs/zerolog"

	"github.com/ayusman/facecascade/internal/cascade"
	"github.com/ayusman/facecascade/internal/config"
	"github.com/ayusman/facecascade/internal/feature"
	"github.com/ayusman/facecascade/internal/featurestore"
	"github.com/ayusman/facecascade/internal/integral"
	"github.com/ayusman/facecascade/internal/patch"
	"github.com/ayusman/facecascade/internal/publish"
	"github.com/ayusman/facecascade/internal/store"
)

// Exporter ships a finished cascade somewhere outside the database.
type Exporter interface {
	Export(ctx context.Context, runID string, c *cascade.Cascade) (string, error)
}

// SourceWrapper decorates the feature source of a pool, for example with a cache.
type SourceWrapper func(src featurestore.Source, pool *store.Pool) featurestore.Source

// Classifier trains and tests cascades for one frame size.
type Classifier struct {
	Store    *store.Store
	Catalog  *feature.Catalog
	Loader   patch.Loader
	Workers  int
	Training config.Training
	Notifier publish.Notifier
	// Exporter and Wrap are optional.
	Exporter Exporter
	Wrap     SourceWrapper
	Log      zerolog.Logger
}

// New creates a classifier that reports progress to the log.
func New(s *store.Store, catalog *feature.Catalog, loader patch.Loader, training config.Training, log zerolog.Logger) *Classifier {
	return &Classifier{
		Store:    s,
		Catalog:  catalog,
		Loader:   loader,
		Workers:  1,
		Training: training,
		Notifier: publish.LogNotifier{Log: log},
		Log:      log,
	}
}

// EstimateRounds returns the number of layers needed to bring per-layer
// false positive rates of roundFP down to overallFP, plus margin.
func EstimateRounds(overallFP, roundFP float64, margin int) int {
	return int(math.Ceil(math.Log(overallFP)/math.Log(roundFP))) + margin
}

// Population returns the feature data of the dataset in dir and its labels.
// A stored pool with the same fingerprint is reused; otherwise the dataset
// is decoded and a new pool is populated. Replacing, renaming or touching a
// file produces a new fingerprint.
func (c *Classifier) Population(ctx context.Context, name, dir string) (*store.PoolData, []bool, error) {
	examples, err := patch.ListDataset(dir)
	if err != nil {
		return nil, nil, err
	}
	labels := make([]bool, len(examples))
	for i, e := range examples {
		labels[i] = e.Positive
	}

	fp := featurestore.Fingerprint(c.Catalog.Width(), c.Catalog.Height(), c.Catalog.Len(), examples)
	pools := c.Store.Pools()

	existing, err := pools.GetByFingerprint(fp)
	if err == nil {
		c.Log.Info().Str("pool", existing.ID).Str("name", name).Str("fingerprint", fp).Msg("Reusing populated pool")
		return pools.Data(existing), labels, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, nil, fmt.Errorf("look up pool %s: %w", fp, err)
	}

	positives, negatives := patch.Count(examples)
	pool := &store.Pool{
		Name:         name,
		Width:        c.Catalog.Width(),
		Height:       c.Catalog.Height(),
		FeatureCount: c.Catalog.Len(),
		Fingerprint:  fp,
		Positives:    positives,
		Negatives:    negatives,
	}
	if err := pools.Create(pool); err != nil {
		return nil, nil, fmt.Errorf("create pool: %w", err)
	}

	c.Log.Info().
		Str("pool", pool.ID).
		Str("name", name).
		Str("dir", dir).
		Int("positives", positives).
		Int("negatives", negatives).
		Int64("features", pool.FeatureCount).
		Msg("Populating pool")

	data := pools.Data(pool)
	populator := featurestore.Populator{
		Catalog: c.Catalog,
		Loader:  c.Loader,
		Workers: c.Workers,
		Log:     c.Log,
	}
	if err := populator.Populate(ctx, examples, data); err != nil {
		if derr := pools.Delete(pool.ID); derr != nil {
			c.Log.Warn().Err(derr).Str("pool", pool.ID).Msg("Could not remove partial pool")
		}
		return nil, nil, fmt.Errorf("populate %s: %w", dir, err)
	}

	return data, labels, nil
}

func (c *Classifier) source(data *store.PoolData) featurestore.Source {
	if c.Wrap == nil {
		return data
	}
	return c.Wrap(data, data.Pool())
}

// ClassifyImage runs a cascade on a single patch.
func (c *Classifier) ClassifyImage(model *cascade.Cascade, img *image.Gray, layerLimit int) (cascade.Verdict, error) {
	if model.Width != c.Catalog.Width() || model.Height != c.Catalog.Height() {
		return cascade.Verdict{}, fmt.Errorf("cascade frame %dx%d does not match catalog %dx%d",
			model.Width, model.Height, c.Catalog.Width(), c.Catalog.Height())
	}
	b := img.Bounds()
	if b.Dx() != model.Width || b.Dy() != model.Height {
		return cascade.Verdict{}, fmt.Errorf("%w: got %dx%d, want %dx%d", patch.ErrSize, b.Dx(), b.Dy(), model.Width, model.Height)
	}

	ii := integral.FromGray(img)
	values, err := c.Catalog.Compute(ii)
	if err != nil {
		return cascade.Verdict{}, err
	}
	return cascade.Classify(model, values, ii.Uniform(), layerLimit, c.Training.FlatThreshold)
}
