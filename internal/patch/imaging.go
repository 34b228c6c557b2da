package patch

import (
	"fmt"
	"image"
	"io"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
)

// ImagingLoader decodes patches in pure Go (PNG, JPEG, GIF, TIFF and BMP).
type ImagingLoader struct {
	Width  int
	Height int
}

// NewImagingLoader creates a loader that rejects patches not sized width x height.
// A zero size disables the check.
func NewImagingLoader(width, height int) *ImagingLoader {
	return &ImagingLoader{Width: width, Height: height}
}

// Load decodes the file at path and converts it to grayscale.
func (l *ImagingLoader) Load(path string) (*image.Gray, error) {
	src, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open patch %s: %w", path, err)
	}

	return Gray(imaging.Grayscale(src), l.Width, l.Height, path)
}

// Decode reads a single patch from r and converts it to grayscale. The
// frame size is not checked.
func Decode(r io.Reader) (*image.Gray, error) {
	src, err := imaging.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode patch: %w", err)
	}
	return toGray(imaging.Grayscale(src)), nil
}
