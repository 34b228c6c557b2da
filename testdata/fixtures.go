package testdata

import (
	"fmt"
	"image"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
)

// Face renders a synthetic face-like patch: a bright face with a dark eye
// band across the upper half and a darker mouth bar below it.
func Face(width, height int, seed int64) *image.Gray {
	rng := rand.New(rand.NewSource(seed))
	img := image.NewGray(image.Rect(0, 0, width, height))

	eyeTop, eyeBottom := height/4, height/2
	mouthTop, mouthBottom := 3*height/4, 3*height/4+max(1, height/10)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := 170 + rng.Intn(30)
			switch {
			case y >= eyeTop && y < eyeBottom:
				v = 40 + rng.Intn(30)
			case y >= mouthTop && y < mouthBottom && x >= width/4 && x < 3*width/4:
				v = 80 + rng.Intn(20)
			}
			img.Pix[y*img.Stride+x] = uint8(v)
		}
	}

	return img
}

// NonFace renders a textured patch without the face layout.
func NonFace(width, height int, seed int64) *image.Gray {
	rng := rand.New(rand.NewSource(seed))
	img := image.NewGray(image.Rect(0, 0, width, height))

	kind := rng.Intn(3)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			var v int
			switch kind {
			case 0:
				v = rng.Intn(256)
			case 1:
				v = (x*255)/max(1, width-1) + rng.Intn(20) - 10
			default:
				v = (y*255)/max(1, height-1) + rng.Intn(20) - 10
				if kind == 2 && y < height/2 {
					v = 255 - v
				}
			}
			img.Pix[y*img.Stride+x] = uint8(min(255, max(0, v)))
		}
	}

	return img
}

// Flat renders a patch of constant intensity.
func Flat(width, height int, value uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, width, height))
	for i := range img.Pix {
		img.Pix[i] = value
	}
	return img
}

// WriteDataset writes faces and non-faces as PNG files below dir in the
// faces/ and non-faces/ layout.
func WriteDataset(dir string, width, height, faces, nonFaces int, seed int64) error {
	write := func(sub string, n int, render func(int, int, int64) *image.Gray) error {
		target := filepath.Join(dir, sub)
		if err := os.MkdirAll(target, 0o755); err != nil {
			return err
		}
		for i := 0; i < n; i++ {
			path := filepath.Join(target, fmt.Sprintf("%04d.png", i))
			if err := WritePNG(path, render(width, height, seed+int64(i))); err != nil {
				return err
			}
		}
		return nil
	}

	if err := write("faces", faces, Face); err != nil {
		return err
	}
	return write("non-faces", nonFaces, NonFace)
}

// WritePNG saves a single fixture.
func WritePNG(path string, img image.Image) error {
	if err := imaging.Save(img, path); err != nil {
		return fmt.Errorf("write fixture %s: %w", path, err)
	}
	return nil
}
