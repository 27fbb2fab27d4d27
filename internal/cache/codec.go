package cache

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// Vector entries are stored compactly as:
//
//	[uint32 dimension][int64 created-at unix seconds][dimension × float32]
//
// all little-endian. The dimension prefix is validated on read so a
// model-version bump with a different dimensionality can never hand a
// mis-sized vector to the retrieval stage.
const headerSize = 4 + 8

func encodeVector(vector []float32, createdAt time.Time) ([]byte, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("empty vector")
	}
	buf := make([]byte, headerSize+4*len(vector))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(vector)))
	binary.LittleEndian.PutUint64(buf[4:12], uint64(createdAt.Unix()))
	for i, f := range vector {
		binary.LittleEndian.PutUint32(buf[headerSize+4*i:], math.Float32bits(f))
	}
	return buf, nil
}

func decodeVector(raw []byte) ([]float32, error) {
	if len(raw) < headerSize {
		return nil, fmt.Errorf("embedding entry too short: %d bytes", len(raw))
	}
	dim := int(binary.LittleEndian.Uint32(raw[0:4]))
	if dim == 0 || len(raw) != headerSize+4*dim {
		return nil, fmt.Errorf("embedding entry dimension mismatch: header says %d, payload has %d bytes",
			dim, len(raw)-headerSize)
	}
	vec := make([]float32, dim)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[headerSize+4*i:]))
	}
	return vec, nil
}

// Normalize returns the L2-normalized copy of v, so downstream similarity is
// a plain dot product. A zero vector is returned unchanged.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	if sum == 0 {
		return v
	}
	norm := math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(float64(f) / norm)
	}
	return out
}
