package sketches

import (
	"fmt"
	"math/bits"
)

// MinMaskSketch has the shape of a count-min sketch but each cell holds a
// bitmask. Masks are combined with OR and ranked by their number of set bits,
// which approximates the set of tags an item has been seen with.
type MinMaskSketch struct {
	m matrix
}

// NewMinMaskSketch creates an empty mask sketch sized like a count-min sketch
// with the same error bound and confidence interval.
func NewMinMaskSketch(errorBound, confidenceInterval float64) (*MinMaskSketch, error) {
	depth, width, err := Dimensions(errorBound, confidenceInterval)
	if err != nil {
		return nil, err
	}
	return &MinMaskSketch{m: newMatrix(depth, width)}, nil
}

// Add ORs mask into the item's current mask and returns the result.
func (mms *MinMaskSketch) Add(item Item, mask uint64) uint64 {
	return mms.m.orMask(hashBytes(item.Bytes), mask)
}

// Mask returns the estimated mask of item: the row target with the fewest
// set bits.
func (mms *MinMaskSketch) Mask(item Item) uint64 {
	return mms.m.minMask(hashBytes(item.Bytes))
}

// Tags returns the bit positions set in the item's estimated mask.
func (mms *MinMaskSketch) Tags(item Item) []int {
	mask := mms.Mask(item)
	tags := make([]int, 0, bits.OnesCount64(mask))
	for mask != 0 {
		tag := bits.TrailingZeros64(mask)
		tags = append(tags, tag)
		mask &^= 1 << tag
	}
	return tags
}

// Merge ORs the cells of other into this sketch (must have same shape).
func (mms *MinMaskSketch) Merge(other *MinMaskSketch) error {
	if !mms.m.sameShape(&other.m) {
		return fmt.Errorf("cannot merge min-mask sketches with different parameters: %w", ErrConfiguration)
	}
	mms.m.or(&other.m)
	return nil
}

func (mms *MinMaskSketch) Depth() uint32 { return mms.m.depth }

func (mms *MinMaskSketch) Width() uint32 { return mms.m.width }

// Size returns the encoded size in bytes.
func (mms *MinMaskSketch) Size() int {
	return plainHeaderSize + mms.m.byteSize()
}

// Info describes the sketch shape.
func (mms *MinMaskSketch) Info() Info {
	return Info{Depth: mms.m.depth, Width: mms.m.width, ByteSize: mms.Size()}
}

// Serialize encodes the sketch with the same layout as a plain count-min sketch.
func (mms *MinMaskSketch) Serialize() []byte {
	return encodePlain(&mms.m)
}

// DeserializeMinMaskSketch loads a sketch written by Serialize.
func DeserializeMinMaskSketch(data []byte) (*MinMaskSketch, error) {
	m, err := decodePlain(data)
	if err != nil {
		return nil, fmt.Errorf("min-mask sketch: %w", err)
	}
	return &MinMaskSketch{m: m}, nil
}
