package sketches

import (
	"encoding/binary"
	"fmt"
	"math"
)

const (
	// length, depth, width
	plainHeaderSize = 12
	// length, depth, width, topn capacity, item byte budget, min frequency
	topnHeaderSize = 28
)

type encoder struct {
	buf []byte
}

func newEncoder(size int) *encoder {
	return &encoder{buf: make([]byte, 0, size)}
}

func (e *encoder) uint16(v uint16) { e.buf = binary.LittleEndian.AppendUint16(e.buf, v) }

func (e *encoder) uint32(v uint32) { e.buf = binary.LittleEndian.AppendUint32(e.buf, v) }

func (e *encoder) uint64(v uint64) { e.buf = binary.LittleEndian.AppendUint64(e.buf, v) }

func (e *encoder) bytes(p []byte) { e.buf = append(e.buf, p...) }

func (e *encoder) cells(m *matrix) {
	for _, c := range m.cells {
		e.uint64(c)
	}
}

type decoder struct {
	data []byte
	off  int
	err  error
}

func (d *decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || len(d.data)-d.off < n {
		d.err = fmt.Errorf("truncated at offset %d: %w", d.off, ErrInvalidEncoding)
		return nil
	}
	p := d.data[d.off : d.off+n]
	d.off += n
	return p
}

func (d *decoder) uint16() uint16 {
	if p := d.take(2); p != nil {
		return binary.LittleEndian.Uint16(p)
	}
	return 0
}

func (d *decoder) uint32() uint32 {
	if p := d.take(4); p != nil {
		return binary.LittleEndian.Uint32(p)
	}
	return 0
}

func (d *decoder) uint64() uint64 {
	if p := d.take(8); p != nil {
		return binary.LittleEndian.Uint64(p)
	}
	return 0
}

// header reads the length prefix and the matrix shape.
func (d *decoder) header() (depth, width uint32) {
	length := d.uint32()
	depth = d.uint32()
	width = d.uint32()
	if d.err != nil {
		return 0, 0
	}
	switch {
	case int(length) != len(d.data):
		d.err = fmt.Errorf("length prefix %d does not match %d bytes: %w", length, len(d.data), ErrInvalidEncoding)
	case depth == 0 || width == 0:
		d.err = fmt.Errorf("empty matrix %dx%d: %w", depth, width, ErrInvalidEncoding)
	case uint64(depth)*uint64(width) > maxCells:
		d.err = fmt.Errorf("matrix %dx%d too large: %w", depth, width, ErrInvalidEncoding)
	}
	return depth, width
}

func (d *decoder) matrix(depth, width uint32) matrix {
	if d.err != nil {
		return matrix{}
	}
	m := newMatrix(depth, width)
	raw := d.take(len(m.cells) * 8)
	if raw == nil {
		return matrix{}
	}
	for i := range m.cells {
		m.cells[i] = binary.LittleEndian.Uint64(raw[i*8:])
	}
	return m
}

func (d *decoder) finish() error {
	if d.err == nil && d.off != len(d.data) {
		d.err = fmt.Errorf("%d trailing bytes: %w", len(d.data)-d.off, ErrInvalidEncoding)
	}
	return d.err
}

func encodePlain(m *matrix) []byte {
	size := plainHeaderSize + m.byteSize()
	e := newEncoder(size)
	e.uint32(uint32(size))
	e.uint32(m.depth)
	e.uint32(m.width)
	e.cells(m)
	return e.buf
}

func decodePlain(data []byte) (matrix, error) {
	d := &decoder{data: data}
	depth, width := d.header()
	m := d.matrix(depth, width)
	if err := d.finish(); err != nil {
		return matrix{}, err
	}
	return m, nil
}

// Serialize encodes the sketch as one record: header, row-major counters and
// the top-n envelope (item count, item type, length-prefixed items), all
// little-endian.
func (s *CmsTopN) Serialize() []byte {
	size := topnHeaderSize + s.m.byteSize() + 4 + 2 + len(s.topn.itemType)
	for i := 0; i < s.topn.len(); i++ {
		size += 4 + s.topn.spans[i].n
	}

	e := newEncoder(size)
	e.uint32(uint32(size))
	e.uint32(s.m.depth)
	e.uint32(s.m.width)
	e.uint32(s.capacity)
	e.uint32(s.itemByteBudget)
	e.uint64(s.minFrequency)
	e.cells(&s.m)

	e.uint32(uint32(s.topn.len()))
	e.uint16(uint16(len(s.topn.itemType)))
	e.bytes([]byte(s.topn.itemType))
	for i := 0; i < s.topn.len(); i++ {
		item := s.topn.item(i)
		e.uint32(uint32(len(item)))
		e.bytes(item)
	}
	return e.buf
}

// DeserializeCmsTopN loads a sketch written by Serialize.
func DeserializeCmsTopN(data []byte) (*CmsTopN, error) {
	d := &decoder{data: data}
	depth, width := d.header()
	capacity := d.uint32()
	itemByteBudget := d.uint32()
	minFrequency := d.uint64()
	m := d.matrix(depth, width)

	count := d.uint32()
	itemType := TypeID(d.take(int(d.uint16())))
	if d.err == nil && (capacity == 0 || itemByteBudget == 0 || count > capacity) {
		d.err = fmt.Errorf("capacity %d, budget %d, %d items: %w", capacity, itemByteBudget, count, ErrInvalidEncoding)
	}

	var items [][]byte
	seen := make(map[string]struct{})
	used := 0
	for i := uint32(0); i < count && d.err == nil; i++ {
		n := d.uint32()
		if n > math.MaxInt32 {
			d.err = fmt.Errorf("item of %d bytes: %w", n, ErrInvalidEncoding)
			break
		}
		item := d.take(int(n))
		if d.err != nil {
			break
		}
		if _, ok := seen[string(item)]; ok {
			d.err = fmt.Errorf("top-n item %d is a duplicate: %w", i, ErrInvalidEncoding)
			break
		}
		seen[string(item)] = struct{}{}
		items = append(items, item)
		used += len(item)
	}
	if err := d.finish(); err != nil {
		return nil, fmt.Errorf("cms_topn: %w", err)
	}

	s := &CmsTopN{
		capacity:       capacity,
		itemByteBudget: itemByteBudget,
		minFrequency:   minFrequency,
		m:              m,
		topn:           newItemBuffer(reservedBytes(capacity, itemByteBudget, used)),
	}
	s.topn.itemType = itemType
	for _, item := range items {
		s.topn.append(item)
	}
	return s, nil
}
