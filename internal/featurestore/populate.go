package featurestore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ayusman/facecascade/internal/feature"
	"github.com/ayusman/facecascade/internal/integral"
	"github.com/ayusman/facecascade/internal/patch"
)

// Populator computes the feature vectors of a dataset and hands them to a Writer.
type Populator struct {
	Catalog *feature.Catalog
	Loader  patch.Loader
	Workers int
	Log     zerolog.Logger
}

type populated struct {
	idx     int
	values  []int
	uniform bool
	err     error
}

// Populate decodes every example, computes its feature vector on a pool of
// workers and writes the vectors in example order. The Writer is organized
// once all examples are stored.
func (p *Populator) Populate(ctx context.Context, examples []patch.Example, w Writer) error {
	start := time.Now()
	workers := p.Workers
	if workers <= 0 {
		workers = 1
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan int)
	results := make(chan populated)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				values, uniform, err := p.compute(examples[idx].Path)
				results <- populated{idx: idx, values: values, uniform: uniform, err: err}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for idx := range examples {
			select {
			case jobs <- idx:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	// Results arrive out of order; hold them until their turn so the
	// writer always sees ascending indices.
	pending := make(map[int]populated)
	next := 0
	var firstErr error
	for r := range results {
		if firstErr != nil {
			continue
		}
		if r.err != nil {
			firstErr = r.err
			cancel()
			continue
		}
		pending[r.idx] = r
		for {
			done, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			e := examples[next]
			rec := Record{Positive: e.Positive, Path: e.Path, Values: done.values, Uniform: done.uniform}
			if err := w.PutExample(ctx, next, rec); err != nil {
				firstErr = fmt.Errorf("store example %d: %w", next, err)
				cancel()
				break
			}
			next++
		}
	}
	if firstErr != nil {
		return firstErr
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	p.Log.Info().
		Int("examples", len(examples)).
		Int64("features", p.Catalog.Len()).
		Dur("elapsed", time.Since(start)).
		Msg("Computed feature vectors")

	if err := w.Organize(ctx); err != nil {
		return fmt.Errorf("organize features: %w", err)
	}

	p.Log.Info().Dur("elapsed", time.Since(start)).Msg("Organized feature store")
	return nil
}

func (p *Populator) compute(path string) ([]int, bool, error) {
	img, err := p.Loader.Load(path)
	if err != nil {
		return nil, false, err
	}
	ii := integral.FromGray(img)
	values, err := p.Catalog.Compute(ii)
	if err != nil {
		return nil, false, fmt.Errorf("compute features of %s: %w", path, err)
	}
	return values, ii.Uniform(), nil
}
