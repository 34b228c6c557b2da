// Package integral provides the summed-area table used to compute rectangle sums in constant time.
package integral

import (
	"errors"
	"fmt"
	"image"
)

var (
	// ErrOutOfBounds is returned when a queried rectangle does not fit inside the frame.
	ErrOutOfBounds = errors.New("rectangle out of bounds")
	// ErrDimensions is returned when the pixel buffer does not match the declared frame size.
	ErrDimensions = errors.New("invalid image dimensions")
)

// Image is the integral image of a grayscale patch.
// The table has (width+1)*(height+1) entries and entry (x, y) holds the
// sum of every source pixel with coordinates strictly below (x, y).
type Image struct {
	width  int
	height int
	table  []int64
}

// New builds the integral image of a row-major pixel buffer.
func New(pixels []int, width, height int) (*Image, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrDimensions, width, height)
	}
	if len(pixels) != width*height {
		return nil, fmt.Errorf("%w: got %d pixels, expected %d", ErrDimensions, len(pixels), width*height)
	}

	img := &Image{
		width:  width,
		height: height,
		table:  make([]int64, (width+1)*(height+1)),
	}

	stride := width + 1
	for y := 1; y <= height; y++ {
		var rowSum int64
		for x := 1; x <= width; x++ {
			rowSum += int64(pixels[(y-1)*width+(x-1)])
			img.table[y*stride+x] = img.table[(y-1)*stride+x] + rowSum
		}
	}

	return img, nil
}

// FromGray builds the integral image of a grayscale image.
func FromGray(src *image.Gray) *Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()

	pixels := make([]int, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			pixels[y*w+x] = int(src.GrayAt(b.Min.X+x, b.Min.Y+y).Y)
		}
	}

	// Dimensions always match here.
	img, _ := New(pixels, w, h)
	return img
}

// Width returns the width of the source patch.
func (img *Image) Width() int {
	return img.width
}

// Height returns the height of the source patch.
func (img *Image) Height() int {
	return img.height
}

// At returns table entry (x, y), with 0 <= x <= width and 0 <= y <= height.
func (img *Image) At(x, y int) int64 {
	return img.table[y*(img.width+1)+x]
}

// RectangleSum returns the sum of pixels in [x, x+w) x [y, y+h).
func (img *Image) RectangleSum(x, y, w, h int) (int64, error) {
	if x < 0 || y < 0 || w <= 0 || h <= 0 || x+w > img.width || y+h > img.height {
		return 0, fmt.Errorf("%w: (%d,%d,%d,%d) in %dx%d", ErrOutOfBounds, x, y, w, h, img.width, img.height)
	}
	return img.sum(x, y, w, h), nil
}

// sum is RectangleSum without the bounds check.
func (img *Image) sum(x, y, w, h int) int64 {
	return img.At(x+w, y+h) - img.At(x, y+h) - img.At(x+w, y) + img.At(x, y)
}

// Contains reports whether the rectangle lies inside the frame.
func (img *Image) Contains(x, y, w, h int) bool {
	return x >= 0 && y >= 0 && w > 0 && h > 0 && x+w <= img.width && y+h <= img.height
}

// UncheckedSum is RectangleSum for callers that validated the enclosing rectangle with Contains.
func (img *Image) UncheckedSum(x, y, w, h int) int64 {
	return img.sum(x, y, w, h)
}

// Uniform reports whether every pixel of the source patch has the same intensity.
func (img *Image) Uniform() bool {
	if img.width == 0 || img.height == 0 {
		return true
	}
	first := img.sum(0, 0, 1, 1)
	for y := 0; y < img.height; y++ {
		for x := 0; x < img.width; x++ {
			if img.sum(x, y, 1, 1) != first {
				return false
			}
		}
	}
	return true
}
