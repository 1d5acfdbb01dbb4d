package sketches

import (
	"fmt"
)

// CountMinSketch implements the Count-Min Sketch for frequency estimation
// without top-n tracking. Composite items are accepted.
type CountMinSketch struct {
	m matrix
}

// NewCountMinSketch creates a new Count-Min Sketch
// errorBound: relative error bound (e.g., 0.001 for 0.1% of all insertions)
// confidenceInterval: probability that the bound holds (e.g., 0.99)
func NewCountMinSketch(errorBound, confidenceInterval float64) (*CountMinSketch, error) {
	depth, width, err := Dimensions(errorBound, confidenceInterval)
	if err != nil {
		return nil, err
	}
	return &CountMinSketch{m: newMatrix(depth, width)}, nil
}

// Add counts one occurrence of item and returns its new estimated frequency
func (cms *CountMinSketch) Add(item Item) uint64 {
	return cms.m.increment(hashBytes(item.Bytes))
}

// Query estimates the frequency of item
func (cms *CountMinSketch) Query(item Item) uint64 {
	return cms.m.estimate(hashBytes(item.Bytes))
}

// Merge adds the counters of other into this sketch (must have same shape)
func (cms *CountMinSketch) Merge(other *CountMinSketch) error {
	if !cms.m.sameShape(&other.m) {
		return fmt.Errorf("cannot merge count-min sketches with different parameters: %w", ErrConfiguration)
	}
	cms.m.add(&other.m)
	return nil
}

// Depth returns the number of rows.
func (cms *CountMinSketch) Depth() uint32 { return cms.m.depth }

// Width returns the number of counters per row.
func (cms *CountMinSketch) Width() uint32 { return cms.m.width }

// Size returns the encoded size in bytes.
func (cms *CountMinSketch) Size() int {
	return plainHeaderSize + cms.m.byteSize()
}

// Info describes the sketch shape.
func (cms *CountMinSketch) Info() Info {
	return Info{Depth: cms.m.depth, Width: cms.m.width, ByteSize: cms.Size()}
}

// Serialize returns the sketch as bytes: length, depth, width, then the
// row-major counters, all little-endian.
func (cms *CountMinSketch) Serialize() []byte {
	return encodePlain(&cms.m)
}

// DeserializeCountMinSketch loads a sketch written by Serialize.
func DeserializeCountMinSketch(data []byte) (*CountMinSketch, error) {
	m, err := decodePlain(data)
	if err != nil {
		return nil, fmt.Errorf("count-min sketch: %w", err)
	}
	return &CountMinSketch{m: m}, nil
}
