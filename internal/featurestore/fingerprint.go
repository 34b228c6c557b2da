package featurestore

import (
	"encoding/binary"
	"strconv"

	"github.com/twmb/murmur3"

	"github.com/ayusman/facecascade/internal/patch"
)

// Fingerprint identifies a population: frame size, feature count and the
// ordered example list with each file's size and modification time. A file
// rewritten in place with the same size and timestamp is not detected.
func Fingerprint(width, height int, features int64, examples []patch.Example) string {
	hash := murmur3.New64()

	var header [24]byte
	binary.LittleEndian.PutUint64(header[0:], uint64(width))
	binary.LittleEndian.PutUint64(header[8:], uint64(height))
	binary.LittleEndian.PutUint64(header[16:], uint64(features))
	_, _ = hash.Write(header[:])

	for _, e := range examples {
		label := byte('-')
		if e.Positive {
			label = '+'
		}
		_, _ = hash.Write([]byte{label})
		_, _ = hash.Write([]byte(e.Path))
		_, _ = hash.Write([]byte{0})

		var meta [16]byte
		binary.LittleEndian.PutUint64(meta[0:], uint64(e.Size))
		binary.LittleEndian.PutUint64(meta[8:], uint64(e.ModTime.UnixNano()))
		_, _ = hash.Write(meta[:])
	}

	return strconv.FormatUint(hash.Sum64(), 16)
}
