package featurestore

import (
	"encoding/binary"
	"fmt"
)

// Feature values are packed as little-endian int32 so that blobs written by
// the SQLite store and the Redis cache share one layout.

// EncodeValues packs a feature vector.
func EncodeValues(values []int) []byte {
	buf := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[4*i:], uint32(int32(v)))
	}
	return buf
}

// DecodeValues unpacks a feature vector.
func DecodeValues(buf []byte) ([]int, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("value blob length %d is not a multiple of 4", len(buf))
	}
	values := make([]int, len(buf)/4)
	for i := range values {
		values[i] = int(int32(binary.LittleEndian.Uint32(buf[4*i:])))
	}
	return values, nil
}

// ValueAt unpacks a single entry of a packed feature vector.
func ValueAt(buf []byte, i int64) (int, error) {
	if i < 0 || 4*i+4 > int64(len(buf)) {
		return 0, fmt.Errorf("%w: value %d of %d", ErrRange, i, len(buf)/4)
	}
	return int(int32(binary.LittleEndian.Uint32(buf[4*i:]))), nil
}

// EncodeSorted packs a sorted per-feature list as (example, value) pairs.
func EncodeSorted(list []ExampleValue) []byte {
	buf := make([]byte, 8*len(list))
	for i, ev := range list {
		binary.LittleEndian.PutUint32(buf[8*i:], uint32(ev.Example))
		binary.LittleEndian.PutUint32(buf[8*i+4:], uint32(int32(ev.Value)))
	}
	return buf
}

// DecodeSorted unpacks a list written by EncodeSorted.
func DecodeSorted(buf []byte) ([]ExampleValue, error) {
	if len(buf)%8 != 0 {
		return nil, fmt.Errorf("sorted blob length %d is not a multiple of 8", len(buf))
	}
	list := make([]ExampleValue, len(buf)/8)
	for i := range list {
		list[i] = ExampleValue{
			Example: int(binary.LittleEndian.Uint32(buf[8*i:])),
			Value:   int(int32(binary.LittleEndian.Uint32(buf[8*i+4:]))),
		}
	}
	return list, nil
}
