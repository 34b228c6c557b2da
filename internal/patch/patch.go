// Package patch loads the fixed-size grayscale patches used as training and test examples.
package patch

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Dataset sub-directories holding positive and negative examples.
const (
	FacesDir    = "faces"
	NonFacesDir = "non-faces"
)

// ErrSize is returned when a decoded patch does not match the expected frame.
var ErrSize = errors.New("patch size does not match frame")

// Example is one labelled patch on disk. Size and ModTime are recorded by
// ListDataset so that a rewritten file changes the population fingerprint.
type Example struct {
	Path     string
	Positive bool
	Size     int64
	ModTime  time.Time
}

// Loader decodes a patch file into a grayscale image.
type Loader interface {
	Load(path string) (*image.Gray, error)
}

// ListDataset returns the examples below dir, positives first.
// Each sub-directory is listed in file-name order.
func ListDataset(dir string) ([]Example, error) {
	faces, err := listFiles(filepath.Join(dir, FacesDir), true)
	if err != nil {
		return nil, err
	}
	nonFaces, err := listFiles(filepath.Join(dir, NonFacesDir), false)
	if err != nil {
		return nil, err
	}

	return append(faces, nonFaces...), nil
}

// Count returns the number of positive and negative examples.
func Count(examples []Example) (positives, negatives int) {
	for _, e := range examples {
		if e.Positive {
			positives++
		} else {
			negatives++
		}
	}
	return positives, negatives
}

func listFiles(dir string, positive bool) ([]Example, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}

	var examples []Example
	for _, entry := range entries {
		if entry.IsDir() || entry.Name()[0] == '.' {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", entry.Name(), err)
		}
		examples = append(examples, Example{
			Path:     filepath.Join(dir, entry.Name()),
			Positive: positive,
			Size:     info.Size(),
			ModTime:  info.ModTime(),
		})
	}
	sort.Slice(examples, func(i, j int) bool { return examples[i].Path < examples[j].Path })

	return examples, nil
}

// checkSize enforces the frame size when one is configured.
func checkSize(img *image.Gray, width, height int, path string) error {
	if width == 0 && height == 0 {
		return nil
	}
	b := img.Bounds()
	if b.Dx() != width || b.Dy() != height {
		return fmt.Errorf("%w: %s is %dx%d, want %dx%d", ErrSize, path, b.Dx(), b.Dy(), width, height)
	}
	return nil
}

// Gray converts a decoded image into a patch and checks that it is
// width x height. name identifies the source in errors.
func Gray(src image.Image, width, height int, name string) (*image.Gray, error) {
	img := toGray(src)
	if err := checkSize(img, width, height, name); err != nil {
		return nil, err
	}
	return img, nil
}

// toGray converts any image to 8-bit luminance with its origin at (0, 0).
func toGray(src image.Image) *image.Gray {
	b := src.Bounds()
	if g, ok := src.(*image.Gray); ok && b.Min == (image.Point{}) {
		return g
	}

	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			r, g, bl, _ := src.At(b.Min.X+x, b.Min.Y+y).RGBA()
			lum := (299*r + 587*g + 114*bl) / 1000
			dst.Pix[y*dst.Stride+x] = uint8(lum >> 8)
		}
	}
	return dst
}
