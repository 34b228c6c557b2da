package patch

import (
	"fmt"
	"image"
	"sync"
)

// MockLoader serves in-memory patches keyed by path, for testing
type MockLoader struct {
	mu      sync.Mutex
	patches map[string]*image.Gray
	loads   int
}

func NewMockLoader(patches map[string]*image.Gray) *MockLoader {
	if patches == nil {
		patches = make(map[string]*image.Gray)
	}
	return &MockLoader{patches: patches}
}

// Add registers a patch under path
func (l *MockLoader) Add(path string, img *image.Gray) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.patches[path] = img
}

func (l *MockLoader) Load(path string) (*image.Gray, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	img, ok := l.patches[path]
	if !ok {
		return nil, fmt.Errorf("no patch registered for %s", path)
	}
	l.loads++

	// Copy so callers cannot modify the registered patch
	dup := image.NewGray(img.Bounds())
	copy(dup.Pix, img.Pix)
	return dup, nil
}

// Loads returns the number of successful Load calls
func (l *MockLoader) Loads() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loads
}
