package sketches

import (
	"bytes"
	"fmt"
	"math"
)

// maxReservedBytes caps the up-front top-n reservation; larger collections
// still grow through resizeAndCopy.
const maxReservedBytes = 1 << 26

// CmsTopN is a count-min sketch that also tracks its N most frequent items.
//
// The record is one logical unit: a fixed header (capacity, item byte
// budget, minimum top-n frequency), the counter grid and the top-n buffer.
// Mutating operations return the authoritative post-state; the receiver may
// be reused or replaced and must not be used after a successful mutation.
type CmsTopN struct {
	capacity       uint32
	itemByteBudget uint32
	minFrequency   uint64
	m              matrix
	topn           itemBuffer
}

// TopNEntry is a top-n item with its frequency estimated from the sketch at
// read time.
type TopNEntry struct {
	Item      Item
	Frequency uint64
}

// NewCmsTopN creates an empty sketch tracking topnCapacity items.
func NewCmsTopN(topnCapacity int, errorBound, confidenceInterval float64) (*CmsTopN, error) {
	if topnCapacity <= 0 || uint64(topnCapacity) > math.MaxUint32 {
		return nil, fmt.Errorf("number of top items has to be positive, got %d: %w", topnCapacity, ErrConfiguration)
	}
	depth, width, err := Dimensions(errorBound, confidenceInterval)
	if err != nil {
		return nil, err
	}

	s := &CmsTopN{
		capacity:       uint32(topnCapacity),
		itemByteBudget: DefaultItemByteBudget,
		m:              newMatrix(depth, width),
	}
	s.topn = newItemBuffer(reservedBytes(s.capacity, s.itemByteBudget, 0))
	return s, nil
}

// Add inserts one occurrence of item.
func (s *CmsTopN) Add(item Item) (*CmsTopN, error) {
	out, _, err := s.AddWithFrequency(item)
	return out, err
}

// AddWithFrequency inserts one occurrence of item and also returns its new
// estimated frequency.
func (s *CmsTopN) AddWithFrequency(item Item) (*CmsTopN, uint64, error) {
	if item.Composite {
		return nil, 0, fmt.Errorf("composite type %s cannot be tracked in top-n: %w", item.Type, ErrUnsupportedItem)
	}
	if err := s.checkType(item.Type); err != nil {
		return nil, 0, err
	}

	frequency := s.m.increment(hashBytes(item.Bytes))
	if s.topn.len() == 0 {
		s.topn.itemType = item.Type
	}
	out, _ := s.updateTopN(item.Bytes, frequency)
	return out, frequency, nil
}

// Frequency estimates how often item was added.
func (s *CmsTopN) Frequency(item Item) (uint64, error) {
	if err := s.checkType(item.Type); err != nil {
		return 0, err
	}
	return s.m.estimate(hashBytes(item.Bytes)), nil
}

func (s *CmsTopN) checkType(t TypeID) error {
	if s.topn.len() > 0 && s.topn.itemType != t {
		return fmt.Errorf("sketch holds %s items, got %s: %w", s.topn.itemType, t, ErrTypeMismatch)
	}
	return nil
}

// updateTopN offers candidate with its current frequency to the top-n
// collection. Frequencies of stored items are always re-read from the matrix
// since shared counters grow with unrelated inserts.
func (s *CmsTopN) updateTopN(candidate []byte, frequency uint64) (*CmsTopN, bool) {
	n := s.topn.len()
	full := uint32(n) >= s.capacity
	if full && frequency <= s.minFrequency {
		return s, false
	}

	estimates := make([]uint64, n)
	minIndex := -1
	minFrequency := uint64(math.MaxUint64)
	for i := 0; i < n; i++ {
		item := s.topn.item(i)
		if bytes.Equal(item, candidate) {
			return s, false
		}
		estimates[i] = s.m.estimate(hashBytes(item))
		if estimates[i] < minFrequency {
			minFrequency = estimates[i]
			minIndex = i
		}
	}

	if !full {
		out := s.reserve(candidate, -1)
		out.topn.append(candidate)
		out.minFrequency = min(minFrequency, frequency)
		return out, true
	}

	if frequency <= minFrequency {
		s.minFrequency = minFrequency
		return s, false
	}

	out := s.reserve(candidate, minIndex)
	out.topn.replace(minIndex, candidate)
	estimates[minIndex] = frequency
	out.minFrequency = minOf(estimates)
	return out, true
}

// reserve returns a record able to hold candidate in place of item i (or in
// addition when i < 0), reallocating the whole record when the top-n buffer
// is too small.
func (s *CmsTopN) reserve(candidate []byte, i int) *CmsTopN {
	if s.topn.fits(candidate, i) {
		return s
	}
	need := s.topn.used() + len(candidate)
	if i >= 0 {
		need -= s.topn.spans[i].n
	}
	return s.resizeAndCopy(s.topn.grownBudget(candidate, i), need)
}

// resizeAndCopy allocates a new record with the given per-item budget and
// copies header, counters and top-n items into it.
func (s *CmsTopN) resizeAndCopy(itemByteBudget uint32, minReserved int) *CmsTopN {
	return &CmsTopN{
		capacity:       s.capacity,
		itemByteBudget: itemByteBudget,
		minFrequency:   s.minFrequency,
		m:              s.m.clone(),
		topn:           s.topn.copyTo(reservedBytes(s.capacity, itemByteBudget, minReserved)),
	}
}

func (s *CmsTopN) clone() *CmsTopN {
	return s.resizeAndCopy(s.itemByteBudget, s.topn.reserved())
}

// TopN returns the tracked items ordered by descending estimated frequency.
// Items with equal frequency keep their storage order.
func (s *CmsTopN) TopN() []TopNEntry {
	entries := make([]TopNEntry, s.topn.len())
	for i := range entries {
		b := s.topn.item(i)
		entries[i] = TopNEntry{
			Item:      Item{Type: s.topn.itemType, Bytes: append([]byte(nil), b...)},
			Frequency: s.m.estimate(hashBytes(b)),
		}
	}

	// selection sort; the selected entry is rotated into place so that equal
	// frequencies keep their storage order
	for i := range entries {
		maxIndex := i
		for j := i + 1; j < len(entries); j++ {
			if entries[j].Frequency > entries[maxIndex].Frequency {
				maxIndex = j
			}
		}
		selected := entries[maxIndex]
		copy(entries[i+1:maxIndex+1], entries[i:maxIndex])
		entries[i] = selected
	}
	return entries
}

// Len returns the number of tracked top-n items.
func (s *CmsTopN) Len() int { return s.topn.len() }

// Capacity returns the maximum number of tracked items.
func (s *CmsTopN) Capacity() int { return int(s.capacity) }

// ItemType returns the type of the tracked items, empty until the first add.
func (s *CmsTopN) ItemType() TypeID { return s.topn.itemType }

// MinFrequency returns the smallest frequency among top-n items, re-estimated
// from the counters, 0 when none are tracked.
func (s *CmsTopN) MinFrequency() uint64 {
	if s.topn.len() == 0 {
		return 0
	}
	return s.lowestEstimate()
}

func (s *CmsTopN) lowestEstimate() uint64 {
	m := uint64(math.MaxUint64)
	for i := 0; i < s.topn.len(); i++ {
		m = min(m, s.m.estimate(hashBytes(s.topn.item(i))))
	}
	return m
}

// ItemByteBudget returns the per-item reservation of the top-n buffer.
func (s *CmsTopN) ItemByteBudget() uint32 { return s.itemByteBudget }

func (s *CmsTopN) Depth() uint32 { return s.m.depth }

func (s *CmsTopN) Width() uint32 { return s.m.width }

// Size returns the size of the record: header, counters and reserved top-n buffer.
func (s *CmsTopN) Size() int {
	return topnHeaderSize + s.m.byteSize() + s.topn.reserved()
}

// Info describes the sketch shape.
func (s *CmsTopN) Info() Info {
	return Info{Depth: s.m.depth, Width: s.m.width, ByteSize: s.Size()}
}

func reservedBytes(capacity, itemByteBudget uint32, minReserved int) int {
	reserved := uint64(capacity) * uint64(itemByteBudget)
	if reserved > maxReservedBytes {
		reserved = maxReservedBytes
	}
	return max(int(reserved), minReserved)
}

func minOf(values []uint64) uint64 {
	m := uint64(math.MaxUint64)
	for _, v := range values {
		m = min(m, v)
	}
	return m
}
