// Package sketches provides fixed-memory streaming sketches: a count-min
// sketch with bounded top-n tracking, a plain count-min sketch and a min-mask
// sketch. All sketches hash items with the same 128-bit hash and seed so that
// independently built sketches of equal shape can be merged.
package sketches

import "fmt"

// SketchType represents the type of sketch
type SketchType string

const (
	CmsTopNType        SketchType = "cms_topn"
	CountMinSketchType SketchType = "countmin"
	MinMaskSketchType  SketchType = "minmask"
)

// ParseSketchType validates a sketch type name.
func ParseSketchType(name string) (SketchType, error) {
	switch t := SketchType(name); t {
	case CmsTopNType, CountMinSketchType, MinMaskSketchType:
		return t, nil
	default:
		return "", fmt.Errorf("unsupported sketch type %q: %w", name, ErrConfiguration)
	}
}

// Info contains the shape of a sketch
type Info struct {
	Depth    uint32 `json:"depth"`
	Width    uint32 `json:"width"`
	ByteSize int    `json:"byte_size"`
}

func (i Info) String() string {
	return fmt.Sprintf("Sketch depth = %d, Sketch width = %d, Size = %dkB", i.Depth, i.Width, i.ByteSize/1024)
}

// Sketch interface for all sketch types
type Sketch interface {
	// Serialize returns the sketch as bytes for storage
	Serialize() []byte

	// Type returns the sketch type
	Type() SketchType

	// Info returns the sketch shape
	Info() Info
}

// Ensure implementations satisfy interfaces
var (
	_ Sketch = (*CmsTopN)(nil)
	_ Sketch = (*CountMinSketch)(nil)
	_ Sketch = (*MinMaskSketch)(nil)
)

// Type implementations
func (s *CmsTopN) Type() SketchType {
	return CmsTopNType
}

func (cms *CountMinSketch) Type() SketchType {
	return CountMinSketchType
}

func (mms *MinMaskSketch) Type() SketchType {
	return MinMaskSketchType
}

// Deserialize decodes a sketch of the given type.
func Deserialize(t SketchType, data []byte) (Sketch, error) {
	var (
		s   Sketch
		err error
	)
	switch t {
	case CmsTopNType:
		s, err = DeserializeCmsTopN(data)
	case CountMinSketchType:
		s, err = DeserializeCountMinSketch(data)
	case MinMaskSketchType:
		s, err = DeserializeMinMaskSketch(data)
	default:
		return nil, fmt.Errorf("unsupported sketch type %q: %w", t, ErrConfiguration)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}
