package sketches

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTopN(t *testing.T, capacity int) *CmsTopN {
	t.Helper()
	s, err := NewCmsTopN(capacity, DefaultErrorBound, DefaultConfidenceInterval)
	require.NoError(t, err)
	return s
}

func addAll(t *testing.T, s *CmsTopN, items ...Item) *CmsTopN {
	t.Helper()
	var err error
	for _, item := range items {
		s, err = s.Add(item)
		require.NoError(t, err)
	}
	return s
}

func texts(values ...string) []Item {
	items := make([]Item, len(values))
	for i, v := range values {
		items[i] = MustItem(Text, v)
	}
	return items
}

func entryStrings(entries []TopNEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = fmt.Sprintf("%s:%d", e.Item.Bytes, e.Frequency)
	}
	return out
}

func TestNewCmsTopNRejectsConfiguration(t *testing.T) {
	for _, tc := range []struct {
		name     string
		capacity int
		e, p     float64
	}{
		{"zero capacity", 0, 0.01, 0.99},
		{"negative capacity", -3, 0.01, 0.99},
		{"zero error bound", 5, 0, 0.99},
		{"error bound of one", 5, 1, 0.99},
		{"zero confidence", 5, 0.01, 0},
		{"confidence of one", 5, 0.01, 1},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewCmsTopN(tc.capacity, tc.e, tc.p)
			assert.ErrorIs(t, err, ErrConfiguration)
		})
	}
}

func TestCmsTopNEmpty(t *testing.T) {
	s := newTopN(t, 3)
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, 3, s.Capacity())
	assert.Empty(t, s.ItemType())
	assert.Equal(t, uint64(0), s.MinFrequency())
	assert.Empty(t, s.TopN())

	f, err := s.Frequency(MustItem(Int64, 7))
	require.NoError(t, err)
	assert.Equal(t, uint64(0), f)

	assert.Equal(t, uint32(5), s.Depth())
	assert.Equal(t, uint32(2719), s.Width())
	assert.Equal(t, topnHeaderSize+5*2719*8+3*DefaultItemByteBudget, s.Size())
}

func TestCmsTopNSingleItem(t *testing.T) {
	s := newTopN(t, 1)
	s, f, err := s.AddWithFrequency(MustItem(Int64, 4))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), f)

	entries := s.TopN()
	require.Len(t, entries, 1)
	assert.Equal(t, MustItem(Int64, 4).Bytes, entries[0].Item.Bytes)
	assert.Equal(t, TypeID("int8"), entries[0].Item.Type)
	assert.Equal(t, uint64(1), entries[0].Frequency)
	assert.Equal(t, TypeID("int8"), s.ItemType())
}

func TestCmsTopNTracksDuplicatesOnce(t *testing.T) {
	s := newTopN(t, 3)
	for i := 0; i < 10; i++ {
		s = addAll(t, s, MustItem(Text, "same"))
	}
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, []string{"same:10"}, entryStrings(s.TopN()))
}

func TestCmsTopNOrdering(t *testing.T) {
	t.Run("Descending Frequency", func(t *testing.T) {
		s := addAll(t, newTopN(t, 3), texts("x", "y", "y", "y", "z", "z")...)
		assert.Equal(t, []string{"y:3", "z:2", "x:1"}, entryStrings(s.TopN()))
	})

	t.Run("Ties Keep Storage Order", func(t *testing.T) {
		s := addAll(t, newTopN(t, 3), texts("a", "b", "c", "c")...)
		assert.Equal(t, []string{"c:2", "a:1", "b:1"}, entryStrings(s.TopN()))
	})
}

func TestCmsTopNReplacement(t *testing.T) {
	s := addAll(t, newTopN(t, 2), texts("a", "b", "c")...)
	// c ties the minimum and is not admitted
	assert.Equal(t, []string{"a:1", "b:1"}, entryStrings(s.TopN()))
	assert.Equal(t, uint64(1), s.MinFrequency())

	// the second c beats the first minimum, which is a
	s = addAll(t, s, MustItem(Text, "c"))
	assert.Equal(t, []string{"c:2", "b:1"}, entryStrings(s.TopN()))
	assert.Equal(t, uint64(1), s.MinFrequency())
	assert.Equal(t, 2, s.Len())
}

func TestCmsTopNMinFrequencyFollowsCounters(t *testing.T) {
	// repeats of tracked items leave the top-n untouched but raise its minimum
	s := addAll(t, newTopN(t, 3), texts("a", "a", "a", "b", "b", "c", "c")...)
	assert.Equal(t, []string{"a:3", "b:2", "c:2"}, entryStrings(s.TopN()))
	assert.Equal(t, uint64(2), s.MinFrequency())

	loaded, err := DeserializeCmsTopN(s.Serialize())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), loaded.MinFrequency())
}

func TestCmsTopNHeavyHitters(t *testing.T) {
	s := newTopN(t, 3)
	for r := 0; r < 200; r++ {
		s = addAll(t, s, texts("alpha", "beta", "gamma", fmt.Sprintf("noise-%d", r%100))...)
	}

	assert.Equal(t, 3, s.Len())
	assert.Equal(t, []string{"alpha:200", "beta:200", "gamma:200"}, entryStrings(s.TopN()))

	f, err := s.Frequency(MustItem(Text, "noise-7"))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, f, uint64(2))
}

func TestCmsTopNNeverExceedsCapacity(t *testing.T) {
	s := newTopN(t, 4)
	for i := 0; i < 500; i++ {
		var err error
		s, err = s.Add(MustItem(Int32, i%37))
		require.NoError(t, err)
		require.LessOrEqual(t, s.Len(), 4)
	}
	entries := s.TopN()
	require.Len(t, entries, 4)
	for _, e := range entries {
		assert.GreaterOrEqual(t, e.Frequency, s.MinFrequency())
	}
}

func TestCmsTopNTypeChecks(t *testing.T) {
	s := addAll(t, newTopN(t, 3), MustItem(Text, "a"))

	_, err := s.Add(MustItem(Int64, 1))
	assert.ErrorIs(t, err, ErrTypeMismatch)

	_, err = s.Frequency(MustItem(Int64, 1))
	assert.ErrorIs(t, err, ErrTypeMismatch)

	f, err := s.Frequency(MustItem(Text, "a"))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), f)
}

func TestCmsTopNRejectsCompositeItems(t *testing.T) {
	s := newTopN(t, 3)
	item := MustItem(Record(Int32, Text), []any{1, "a"})

	_, err := s.Add(item)
	assert.ErrorIs(t, err, ErrUnsupportedItem)
	assert.Equal(t, 0, s.Len())
	assert.Empty(t, s.ItemType())

	// counters are untouched
	f, err := s.Frequency(item)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), f)
}

func TestCmsTopNGrowsItemBuffer(t *testing.T) {
	t.Run("Append", func(t *testing.T) {
		s := addAll(t, newTopN(t, 2), MustItem(Text, "x"))
		long := strings.Repeat("y", 40)

		grown, err := s.Add(MustItem(Text, long))
		require.NoError(t, err)
		assert.NotSame(t, s, grown)
		assert.Equal(t, uint32(42), grown.ItemByteBudget())
		assert.Equal(t, topnHeaderSize+5*2719*8+84, grown.Size())
		assert.Equal(t, []string{"x:1", long + ":1"}, entryStrings(grown.TopN()))
	})

	t.Run("Replace", func(t *testing.T) {
		s := addAll(t, newTopN(t, 1), MustItem(Text, "a"))
		long := strings.Repeat("b", 40)

		s = addAll(t, s, MustItem(Text, long))
		assert.Equal(t, []string{"a:1"}, entryStrings(s.TopN()))
		assert.Equal(t, uint32(DefaultItemByteBudget), s.ItemByteBudget())

		s = addAll(t, s, MustItem(Text, long))
		assert.Equal(t, []string{long + ":2"}, entryStrings(s.TopN()))
		assert.Equal(t, uint32(80), s.ItemByteBudget())
		assert.Equal(t, uint64(2), s.MinFrequency())
	})

	t.Run("In Place", func(t *testing.T) {
		s := addAll(t, newTopN(t, 2), MustItem(Text, "x"))
		same, err := s.Add(MustItem(Text, "short"))
		require.NoError(t, err)
		assert.Same(t, s, same)
	})
}

func TestCmsTopNInfo(t *testing.T) {
	s, err := NewCmsTopN(10, 0.01, 0.99)
	require.NoError(t, err)
	info := s.Info()
	assert.Equal(t, uint32(5), info.Depth)
	assert.Equal(t, uint32(272), info.Width)
	assert.Equal(t, topnHeaderSize+5*272*8+10*DefaultItemByteBudget, info.ByteSize)
	assert.Equal(t, "Sketch depth = 5, Sketch width = 272, Size = 10kB", info.String())
}
