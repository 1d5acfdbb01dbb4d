package sketches

import (
	"fmt"
	"math"
	"math/bits"
)

const (
	// DefaultErrorBound is used when a sketch is built without explicit parameters
	DefaultErrorBound = 0.001
	// DefaultConfidenceInterval is used when a sketch is built without explicit parameters
	DefaultConfidenceInterval = 0.99

	// maxCells caps depth*width so a sketch stays addressable (2 GiB of counters).
	maxCells = 1 << 28
)

// Dimensions returns the matrix shape for the given error bound e and
// confidence p: width = ceil(e_const/e), depth = ceil(ln(1/(1-p))).
func Dimensions(errorBound, confidenceInterval float64) (depth, width uint32, err error) {
	if !(errorBound > 0 && errorBound < 1) {
		return 0, 0, fmt.Errorf("error bound has to be between 0 and 1, got %v: %w", errorBound, ErrConfiguration)
	}
	if !(confidenceInterval > 0 && confidenceInterval < 1) {
		return 0, 0, fmt.Errorf("confidence interval has to be between 0 and 1, got %v: %w", confidenceInterval, ErrConfiguration)
	}

	w := math.Ceil(math.E / errorBound)
	d := math.Ceil(math.Log(1 / (1 - confidenceInterval)))
	if w*math.Max(d, 1) > maxCells {
		return 0, 0, fmt.Errorf("sketch of depth %v and width %v is too large: %w", d, w, ErrConfiguration)
	}

	width = uint32(w)
	depth = uint32(math.Max(d, 1))
	return depth, width, nil
}

// matrix is the depth x width counter grid, stored row-major.
type matrix struct {
	depth uint32
	width uint32
	cells []uint64
}

func newMatrix(depth, width uint32) matrix {
	return matrix{
		depth: depth,
		width: width,
		cells: make([]uint64, int(depth)*int(width)),
	}
}

func (m *matrix) cell(row uint32, h hashPair) int {
	return int(row)*int(m.width) + int(h.column(row, m.width))
}

// estimate returns the minimum counter across all rows.
func (m *matrix) estimate(h hashPair) uint64 {
	minFrequency := uint64(math.MaxUint64)
	for i := uint32(0); i < m.depth; i++ {
		if c := m.cells[m.cell(i, h)]; c < minFrequency {
			minFrequency = c
		}
	}
	return minFrequency
}

// increment raises the item's counters to estimate+1 with selective update:
// counters already above the new frequency were inflated by collisions and
// are left alone.
func (m *matrix) increment(h hashPair) uint64 {
	newFrequency := m.estimate(h) + 1
	for i := uint32(0); i < m.depth; i++ {
		idx := m.cell(i, h)
		if newFrequency > m.cells[idx] {
			m.cells[idx] = newFrequency
		}
	}
	return newFrequency
}

// minMask returns the row target with the fewest set bits, first row winning
// ties.
func (m *matrix) minMask(h hashPair) uint64 {
	minMask := m.cells[m.cell(0, h)]
	for i := uint32(1); i < m.depth; i++ {
		if c := m.cells[m.cell(i, h)]; bits.OnesCount64(c) < bits.OnesCount64(minMask) {
			minMask = c
		}
	}
	return minMask
}

// orMask ORs mask into the item's minimal mask and overwrites every row
// target holding fewer set bits than the result.
func (m *matrix) orMask(h hashPair, mask uint64) uint64 {
	newMask := m.minMask(h) | mask
	newBits := bits.OnesCount64(newMask)
	for i := uint32(0); i < m.depth; i++ {
		idx := m.cell(i, h)
		if newBits > bits.OnesCount64(m.cells[idx]) {
			m.cells[idx] = newMask
		}
	}
	return newMask
}

func (m *matrix) sameShape(other *matrix) bool {
	return m.depth == other.depth && m.width == other.width
}

func (m *matrix) add(other *matrix) {
	for i := range m.cells {
		m.cells[i] += other.cells[i]
	}
}

func (m *matrix) or(other *matrix) {
	for i := range m.cells {
		m.cells[i] |= other.cells[i]
	}
}

func (m *matrix) clone() matrix {
	return matrix{
		depth: m.depth,
		width: m.width,
		cells: append([]uint64(nil), m.cells...),
	}
}

func (m *matrix) byteSize() int {
	return len(m.cells) * 8
}
