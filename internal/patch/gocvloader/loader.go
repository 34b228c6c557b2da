// Package gocvloader decodes patches with OpenCV. It needs cgo and is kept
// out of the core packages; only the command imports it.
package gocvloader

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/ayusman/facecascade/internal/patch"
)

// Loader implements patch.Loader with gocv.
type Loader struct {
	Width  int
	Height int
}

var _ patch.Loader = (*Loader)(nil)

// New creates an OpenCV backed loader for width x height patches.
func New(width, height int) *Loader {
	return &Loader{Width: width, Height: height}
}

// Load reads the file at path as a single channel image.
func (l *Loader) Load(path string) (*image.Gray, error) {
	mat := gocv.IMRead(path, gocv.IMReadGrayScale)
	defer mat.Close()

	if mat.Empty() {
		return nil, fmt.Errorf("open patch %s: unreadable image", path)
	}

	src, err := mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("convert patch %s: %w", path, err)
	}

	return patch.Gray(src, l.Width, l.Height, path)
}
