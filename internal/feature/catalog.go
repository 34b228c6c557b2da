package feature

import (
	"fmt"

	"github.com/ayusman/facecascade/internal/integral"
)

// Iterator walks every valid placement of one feature type in a frame.
// Placements are ordered by width, then height, then x, then y.
type Iterator struct {
	frameW, frameH int
	ux, uy         int
	w, h, x, y     int
	done           bool
}

// Enumerate returns an iterator over the placements of t in a frameW x frameH frame.
func Enumerate(t Type, frameW, frameH int) *Iterator {
	ux, uy := t.Unit()
	it := &Iterator{frameW: frameW, frameH: frameH, ux: ux, uy: uy}
	it.Reset()
	return it
}

// Reset rewinds the iterator to the first placement.
func (it *Iterator) Reset() {
	it.w, it.h, it.x, it.y = it.ux, it.uy, 0, 0
	it.done = it.ux == 0 || it.ux > it.frameW || it.uy > it.frameH
}

// Next returns the next placement, or false once the sequence is exhausted.
func (it *Iterator) Next() (Rectangle, bool) {
	if it.done {
		return Rectangle{}, false
	}

	r := Rectangle{X: it.x, Y: it.y, Width: it.w, Height: it.h}

	it.y++
	if it.y > it.frameH-it.h {
		it.y = 0
		it.x++
		if it.x > it.frameW-it.w {
			it.x = 0
			it.h += it.uy
			if it.h > it.frameH {
				it.h = it.uy
				it.w += it.ux
				if it.w > it.frameW {
					it.done = true
				}
			}
		}
	}

	return r, true
}

// arithmetic returns the number of multiples m of unit (m <= size) weighted by size-m+1.
func arithmetic(unit, size int) int64 {
	if unit <= 0 || unit > size {
		return 0
	}
	n := int64(size / unit)
	return n*int64(size+1) - int64(unit)*n*(n+1)/2
}

// Count returns the number of placements of t in a frameW x frameH frame.
func Count(t Type, frameW, frameH int) int64 {
	ux, uy := t.Unit()
	return arithmetic(ux, frameW) * arithmetic(uy, frameH)
}

// CountAll returns the number of features of all types in a frameW x frameH frame.
func CountAll(frameW, frameH int) int64 {
	var total int64
	for _, t := range Types {
		total += Count(t, frameW, frameH)
	}
	return total
}

// Catalog is the ordered set of all features for a fixed frame.
// The position of a feature in the catalog is its feature index.
type Catalog struct {
	width  int
	height int
	count  int64
}

// NewCatalog creates the catalog for a frame.
func NewCatalog(width, height int) *Catalog {
	return &Catalog{
		width:  width,
		height: height,
		count:  CountAll(width, height),
	}
}

// Width returns the frame width.
func (c *Catalog) Width() int { return c.width }

// Height returns the frame height.
func (c *Catalog) Height() int { return c.height }

// Len returns the number of features in the catalog.
func (c *Catalog) Len() int64 { return c.count }

// CatalogIterator walks the catalog in index order.
type CatalogIterator struct {
	catalog *Catalog
	typeIdx int
	current *Iterator
	index   int64
}

// Iterator returns a fresh iterator positioned at feature index 0.
func (c *Catalog) Iterator() *CatalogIterator {
	it := &CatalogIterator{catalog: c}
	it.Reset()
	return it
}

// Reset rewinds to feature index 0.
func (it *CatalogIterator) Reset() {
	it.typeIdx = 0
	it.index = 0
	it.current = Enumerate(Types[0], it.catalog.width, it.catalog.height)
}

// Next returns the next feature and its index.
func (it *CatalogIterator) Next() (int64, Feature, bool) {
	for it.typeIdx < len(Types) {
		if r, ok := it.current.Next(); ok {
			idx := it.index
			it.index++
			return idx, Feature{Type: Types[it.typeIdx], Rect: r}, true
		}
		it.typeIdx++
		if it.typeIdx < len(Types) {
			it.current = Enumerate(Types[it.typeIdx], it.catalog.width, it.catalog.height)
		}
	}
	return 0, Feature{}, false
}

// Feature returns the feature at a catalog index without walking the catalog.
func (c *Catalog) Feature(index int64) (Feature, error) {
	if index < 0 || index >= c.count {
		return Feature{}, fmt.Errorf("%w: index %d outside [0, %d)", ErrInvalidFeature, index, c.count)
	}

	for _, t := range Types {
		n := Count(t, c.width, c.height)
		if index >= n {
			index -= n
			continue
		}

		ux, uy := t.Unit()
		heights := arithmetic(uy, c.height)
		for w := ux; w <= c.width; w += ux {
			perWidth := int64(c.width-w+1) * heights
			if index >= perWidth {
				index -= perWidth
				continue
			}
			for h := uy; h <= c.height; h += uy {
				ys := int64(c.height - h + 1)
				perHeight := int64(c.width-w+1) * ys
				if index >= perHeight {
					index -= perHeight
					continue
				}
				return Feature{
					Type: t,
					Rect: Rectangle{X: int(index / ys), Y: int(index % ys), Width: w, Height: h},
				}, nil
			}
		}
	}

	// Unreachable while Count agrees with the iterator.
	return Feature{}, fmt.Errorf("%w: index %d not located", ErrInvalidFeature, index)
}

// Compute evaluates every catalog feature on an integral image, in index order.
func (c *Catalog) Compute(img *integral.Image) ([]int, error) {
	if img.Width() != c.width || img.Height() != c.height {
		return nil, fmt.Errorf("image is %dx%d, catalog frame is %dx%d",
			img.Width(), img.Height(), c.width, c.height)
	}

	values := make([]int, 0, c.count)
	it := c.Iterator()
	for {
		_, f, ok := it.Next()
		if !ok {
			break
		}
		v, err := Evaluate(img, f)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}

	return values, nil
}
