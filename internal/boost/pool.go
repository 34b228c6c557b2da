package boost

import (
	"runtime"
	"sync"
)

// maxWorkers bounds the pool width regardless of configuration.
const maxWorkers = 256

// Pool runs independent tasks on a fixed number of goroutines.
type Pool struct {
	workers int
}

// NewPool creates a pool of the given width. Zero or negative selects runtime.NumCPU.
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > maxWorkers {
		workers = maxWorkers
	}
	return &Pool{workers: workers}
}

// Workers returns the pool width.
func (p *Pool) Workers() int {
	return p.workers
}

// Run calls task(i) for every i in [0, n) and returns once all calls have
// finished. Each task must only write to its own result slot. After the
// first failure no new tasks start; the error of the lowest failing index
// is returned.
func (p *Pool) Run(n int, task func(i int) error) error {
	if n <= 0 {
		return nil
	}

	indexes := make(chan int)
	done := make(chan struct{})
	errs := make([]error, n)

	var once sync.Once
	stop := func() { once.Do(func() { close(done) }) }

	workers := p.workers
	if workers > n {
		workers = n
	}

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range indexes {
				if err := task(i); err != nil {
					errs[i] = err
					stop()
				}
			}
		}()
	}

producer:
	for i := 0; i < n; i++ {
		select {
		case indexes <- i:
		case <-done:
			break producer
		}
	}
	close(indexes)
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
