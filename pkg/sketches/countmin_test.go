package sketches

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDimensions(t *testing.T) {
	depth, width, err := Dimensions(0.001, 0.99)
	require.NoError(t, err)
	assert.Equal(t, uint32(5), depth)
	assert.Equal(t, uint32(2719), width)

	depth, width, err = Dimensions(0.01, 0.01)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), depth)
	assert.Equal(t, uint32(272), width)
}

func TestDimensionsRejectsOutOfRange(t *testing.T) {
	for _, tc := range []struct{ e, p float64 }{
		{0, 0.99}, {1, 0.99}, {-0.5, 0.99}, {0.01, 0}, {0.01, 1}, {0.01, 1.5}, {1e-12, 0.99},
	} {
		t.Run(fmt.Sprintf("e=%v,p=%v", tc.e, tc.p), func(t *testing.T) {
			_, _, err := Dimensions(tc.e, tc.p)
			assert.ErrorIs(t, err, ErrConfiguration)
		})
	}
}

func TestCountMinSketch(t *testing.T) {
	t.Run("Selective Update", func(t *testing.T) {
		cms, err := NewCountMinSketch(0.001, 0.99)
		require.NoError(t, err)

		item := MustItem(Text, "x")
		assert.Equal(t, uint64(1), cms.Add(item))
		assert.Equal(t, uint64(2), cms.Add(item))
		assert.Equal(t, uint64(2), cms.Query(item))
		assert.Equal(t, uint64(0), cms.Query(MustItem(Text, "never added")))
	})

	t.Run("Never Underestimates", func(t *testing.T) {
		cms, err := NewCountMinSketch(0.05, 0.9)
		require.NoError(t, err)

		// narrow sketch so collisions are certain
		counts := map[int]uint64{}
		for i := 0; i < 2000; i++ {
			v := i % 300
			cms.Add(MustItem(Int64, v))
			counts[v]++
		}
		for v, n := range counts {
			assert.GreaterOrEqual(t, cms.Query(MustItem(Int64, v)), n, "item %d", v)
		}
	})

	t.Run("Bounded Overestimate", func(t *testing.T) {
		const e = 0.01
		cms, err := NewCountMinSketch(e, 0.99)
		require.NoError(t, err)

		total := 0
		for i := 0; i < 5000; i++ {
			cms.Add(MustItem(Int64, i%500))
			total++
		}
		bound := uint64(10 + e*float64(total))
		violations := 0
		for v := 0; v < 500; v++ {
			if cms.Query(MustItem(Int64, v)) > bound {
				violations++
			}
		}
		assert.LessOrEqual(t, violations, 5)
	})

	t.Run("Composite Items", func(t *testing.T) {
		cms, err := NewCountMinSketch(0.001, 0.99)
		require.NoError(t, err)

		codec := Record(Int32, Text)
		cms.Add(MustItem(codec, []any{1, "a"}))
		cms.Add(MustItem(codec, []any{1, "a"}))
		assert.Equal(t, uint64(2), cms.Query(MustItem(codec, []any{1, "a"})))
		assert.Equal(t, uint64(0), cms.Query(MustItem(codec, []any{nil, "a"})))
	})

	t.Run("Merge", func(t *testing.T) {
		a, _ := NewCountMinSketch(0.001, 0.99)
		b, _ := NewCountMinSketch(0.001, 0.99)
		item := MustItem(Text, "shared")
		a.Add(item)
		b.Add(item)
		b.Add(item)

		require.NoError(t, a.Merge(b))
		assert.Equal(t, uint64(3), a.Query(item))

		other, _ := NewCountMinSketch(0.01, 0.99)
		assert.ErrorIs(t, a.Merge(other), ErrConfiguration)
	})

	t.Run("Serialize", func(t *testing.T) {
		cms, _ := NewCountMinSketch(0.01, 0.9)
		item := MustItem(Text, "k")
		cms.Add(item)

		data := cms.Serialize()
		assert.Len(t, data, cms.Size())

		restored, err := DeserializeCountMinSketch(data)
		require.NoError(t, err)
		assert.Equal(t, cms.Info(), restored.Info())
		assert.Equal(t, uint64(1), restored.Query(item))

		_, err = DeserializeCountMinSketch(data[:len(data)-1])
		assert.ErrorIs(t, err, ErrInvalidEncoding)
	})

	t.Run("Info", func(t *testing.T) {
		cms, _ := NewCountMinSketch(0.001, 0.99)
		info := cms.Info()
		assert.Equal(t, 12+5*2719*8, info.ByteSize)
		assert.Equal(t, "Sketch depth = 5, Sketch width = 2719, Size = 106kB", info.String())
		assert.Equal(t, CountMinSketchType, cms.Type())
	})
}
