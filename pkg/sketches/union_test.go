package sketches

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func int64Stream(t *testing.T, capacity int, from, to int, times func(int) int) *CmsTopN {
	t.Helper()
	s := newTopN(t, capacity)
	for i := from; i < to; i++ {
		for k := 0; k < times(i); k++ {
			s = addAll(t, s, MustItem(Int64, i))
		}
	}
	return s
}

func frequency(t *testing.T, s *CmsTopN, item Item) uint64 {
	t.Helper()
	f, err := s.Frequency(item)
	require.NoError(t, err)
	return f
}

func TestUnionWithEmptySide(t *testing.T) {
	empty := newTopN(t, 3)
	full := addAll(t, newTopN(t, 3), texts("a", "a", "b")...)

	for name, u := range map[string]func() (*CmsTopN, error){
		"Empty Left":  func() (*CmsTopN, error) { return Union(empty, full) },
		"Empty Right": func() (*CmsTopN, error) { return Union(full, empty) },
	} {
		t.Run(name, func(t *testing.T) {
			merged, err := u()
			require.NoError(t, err)
			assert.NotSame(t, full, merged)
			assert.Equal(t, []string{"a:2", "b:1"}, entryStrings(merged.TopN()))
			assert.Equal(t, TypeID("text"), merged.ItemType())
		})
	}

	merged, err := Union(empty, empty)
	require.NoError(t, err)
	assert.Equal(t, 0, merged.Len())
}

func TestUnionTopN(t *testing.T) {
	t.Run("Disjoint Items At Capacity", func(t *testing.T) {
		a := addAll(t, newTopN(t, 1), MustItem(Int64, 2))
		b := addAll(t, newTopN(t, 1), MustItem(Int64, 3))

		merged, err := Union(a, b)
		require.NoError(t, err)
		require.Len(t, merged.TopN(), 1)
		assert.Equal(t, MustItem(Int64, 2).Bytes, merged.TopN()[0].Item.Bytes)
		assert.Equal(t, uint64(1), merged.TopN()[0].Frequency)

		merged, err = Union(b, a)
		require.NoError(t, err)
		assert.Equal(t, MustItem(Int64, 3).Bytes, merged.TopN()[0].Item.Bytes)
	})

	t.Run("Shared Item", func(t *testing.T) {
		a := addAll(t, newTopN(t, 1), MustItem(Int64, 2))
		b := addAll(t, newTopN(t, 1), MustItem(Int64, 2))

		merged, err := Union(a, b)
		require.NoError(t, err)
		entries := merged.TopN()
		require.Len(t, entries, 1)
		assert.Equal(t, MustItem(Int64, 2).Bytes, entries[0].Item.Bytes)
		assert.Equal(t, uint64(2), entries[0].Frequency)
	})
}

func TestUnionIsAdditive(t *testing.T) {
	a := int64Stream(t, 5, 0, 50, func(i int) int { return i%7 + 1 })
	b := int64Stream(t, 5, 25, 75, func(i int) int { return i%5 + 1 })

	merged, err := Union(a, b)
	require.NoError(t, err)
	for i := 0; i < 80; i++ {
		item := MustItem(Int64, i)
		assert.Equal(t, frequency(t, a, item)+frequency(t, b, item), frequency(t, merged, item), "item %d", i)
	}

	entries := merged.TopN()
	require.Len(t, entries, 5)
	assert.Equal(t, MustItem(Int64, 34).Bytes, entries[0].Item.Bytes)
	assert.Equal(t, uint64(12), entries[0].Frequency)

	// inputs are left alone
	assert.Equal(t, uint64(7), frequency(t, a, MustItem(Int64, 34)))
	assert.Equal(t, uint64(5), frequency(t, b, MustItem(Int64, 34)))
}

func TestUnionWithItself(t *testing.T) {
	a := int64Stream(t, 5, 0, 50, func(i int) int { return i%7 + 1 })
	before := a.TopN()

	merged, err := Union(a, a)
	require.NoError(t, err)

	after := merged.TopN()
	require.Len(t, after, len(before))
	for i := range before {
		assert.Equal(t, before[i].Item.Bytes, after[i].Item.Bytes)
		assert.Equal(t, 2*before[i].Frequency, after[i].Frequency)
	}
	assert.Equal(t, before, a.TopN())
}

func TestUnionRefreshesMinFrequency(t *testing.T) {
	s := addAll(t, newTopN(t, 3), texts("a", "a", "a", "b", "b", "c", "c")...)

	merged, err := Union(s, s)
	require.NoError(t, err)
	assert.Equal(t, []string{"a:6", "b:4", "c:4"}, entryStrings(merged.TopN()))
	assert.Equal(t, uint64(4), merged.MinFrequency())

	// the stored header carries the refreshed minimum
	assert.Equal(t, uint64(4), binary.LittleEndian.Uint64(merged.Serialize()[20:]))
	assert.Equal(t, uint64(2), s.MinFrequency())
}

func TestUnionRejectsMismatch(t *testing.T) {
	a := addAll(t, newTopN(t, 3), MustItem(Text, "a"))

	t.Run("Capacity", func(t *testing.T) {
		_, err := Union(a, addAll(t, newTopN(t, 4), MustItem(Text, "a")))
		assert.ErrorIs(t, err, ErrConfiguration)
	})

	t.Run("Shape", func(t *testing.T) {
		other, err := NewCmsTopN(3, 0.01, 0.99)
		require.NoError(t, err)
		_, err = Union(a, other)
		assert.ErrorIs(t, err, ErrConfiguration)
	})

	t.Run("Item Type", func(t *testing.T) {
		_, err := Union(a, addAll(t, newTopN(t, 3), MustItem(Int64, 1)))
		assert.ErrorIs(t, err, ErrTypeMismatch)
	})
}
