// Package feature enumerates Haar-like features over a fixed frame and evaluates them on integral images.
package feature

import (
	"errors"
	"fmt"

	"github.com/ayusman/facecascade/internal/integral"
)

// ErrInvalidFeature is returned when a feature does not fit its type's cell grid or the frame.
var ErrInvalidFeature = errors.New("invalid feature")

// Type identifies the shape of a Haar-like feature.
type Type int

const (
	// TypeA is two side-by-side halves.
	TypeA Type = iota + 1
	// TypeB is three side-by-side thirds.
	TypeB
	// TypeC is two stacked halves.
	TypeC
	// TypeD is three stacked thirds.
	TypeD
	// TypeE is a 2x2 grid of quadrants.
	TypeE
)

// Types lists every feature type in catalog order.
var Types = []Type{TypeA, TypeB, TypeC, TypeD, TypeE}

// Unit returns the number of cells of the type along x and y.
func (t Type) Unit() (int, int) {
	switch t {
	case TypeA:
		return 2, 1
	case TypeB:
		return 3, 1
	case TypeC:
		return 1, 2
	case TypeD:
		return 1, 3
	case TypeE:
		return 2, 2
	}
	return 0, 0
}

func (t Type) String() string {
	switch t {
	case TypeA:
		return "A"
	case TypeB:
		return "B"
	case TypeC:
		return "C"
	case TypeD:
		return "D"
	case TypeE:
		return "E"
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// Rectangle is the area covered by a feature inside the frame.
type Rectangle struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Feature is one placement of a feature type.
type Feature struct {
	Type Type      `json:"type"`
	Rect Rectangle `json:"rect"`
}

func (f Feature) String() string {
	return fmt.Sprintf("%s(%d,%d,%d,%d)", f.Type, f.Rect.X, f.Rect.Y, f.Rect.Width, f.Rect.Height)
}

// Evaluate computes the value of a feature on an integral image.
//
// The cell sums alternate in sign: A r1-r2, B r1-r2+r3, C r2-r1,
// D r1-r2+r3 and E r1-r2-r3+r4 (cells in row-major order).
func Evaluate(img *integral.Image, f Feature) (int, error) {
	ux, uy := f.Type.Unit()
	r := f.Rect
	if ux == 0 || r.Width%ux != 0 || r.Height%uy != 0 {
		return 0, fmt.Errorf("%w: %s", ErrInvalidFeature, f)
	}
	if !img.Contains(r.X, r.Y, r.Width, r.Height) {
		return 0, fmt.Errorf("%w: %s", integral.ErrOutOfBounds, f)
	}

	w := r.Width / ux
	h := r.Height / uy

	var v int64
	switch f.Type {
	case TypeA:
		r1 := img.UncheckedSum(r.X, r.Y, w, h)
		r2 := img.UncheckedSum(r.X+w, r.Y, w, h)
		v = r1 - r2
	case TypeB:
		r1 := img.UncheckedSum(r.X, r.Y, w, h)
		r2 := img.UncheckedSum(r.X+w, r.Y, w, h)
		r3 := img.UncheckedSum(r.X+2*w, r.Y, w, h)
		v = r1 - r2 + r3
	case TypeC:
		r1 := img.UncheckedSum(r.X, r.Y, w, h)
		r2 := img.UncheckedSum(r.X, r.Y+h, w, h)
		v = r2 - r1
	case TypeD:
		r1 := img.UncheckedSum(r.X, r.Y, w, h)
		r2 := img.UncheckedSum(r.X, r.Y+h, w, h)
		r3 := img.UncheckedSum(r.X, r.Y+2*h, w, h)
		v = r1 - r2 + r3
	case TypeE:
		r1 := img.UncheckedSum(r.X, r.Y, w, h)
		r2 := img.UncheckedSum(r.X+w, r.Y, w, h)
		r3 := img.UncheckedSum(r.X, r.Y+h, w, h)
		r4 := img.UncheckedSum(r.X+w, r.Y+h, w, h)
		v = r1 - r2 - r3 + r4
	}

	return int(v), nil
}
