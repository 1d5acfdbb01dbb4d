package sketches

import "math"

// DefaultItemByteBudget is the per-item reservation made for the top-n buffer
// when a sketch is created.
const DefaultItemByteBudget = 16

// span locates one item inside the arena.
type span struct {
	off int
	n   int
}

// itemBuffer is the variable-length top-n collection. Items live in a single
// arena whose capacity is the reserved byte budget; spans keep collection
// order independent from arena order.
type itemBuffer struct {
	itemType TypeID
	arena    []byte
	spans    []span
}

func newItemBuffer(reserved int) itemBuffer {
	return itemBuffer{arena: make([]byte, 0, reserved)}
}

func (b *itemBuffer) len() int { return len(b.spans) }

func (b *itemBuffer) used() int { return len(b.arena) }

func (b *itemBuffer) reserved() int { return cap(b.arena) }

func (b *itemBuffer) item(i int) []byte {
	s := b.spans[i]
	return b.arena[s.off : s.off+s.n : s.off+s.n]
}

// fits reports whether p can be written, replacing item i when i >= 0,
// without growing the arena.
func (b *itemBuffer) fits(p []byte, i int) bool {
	need := b.used() + len(p)
	if i >= 0 {
		need -= b.spans[i].n
	}
	return need <= b.reserved()
}

func (b *itemBuffer) append(p []byte) {
	b.spans = append(b.spans, span{off: len(b.arena), n: len(p)})
	b.arena = append(b.arena, p...)
}

// replace swaps item i for p in place. The old bytes are compacted out of the
// arena and p is written at its end.
func (b *itemBuffer) replace(i int, p []byte) {
	old := b.spans[i]
	copy(b.arena[old.off:], b.arena[old.off+old.n:])
	b.arena = b.arena[:len(b.arena)-old.n]
	for j := range b.spans {
		if b.spans[j].off > old.off {
			b.spans[j].off -= old.n
		}
	}
	b.spans[i] = span{off: len(b.arena), n: len(p)}
	b.arena = append(b.arena, p...)
}

// copyTo writes the collection, in order and compacted, into a new arena of
// the given capacity.
func (b *itemBuffer) copyTo(reserved int) itemBuffer {
	if reserved < b.used() {
		reserved = b.used()
	}
	out := itemBuffer{
		itemType: b.itemType,
		arena:    make([]byte, 0, reserved),
		spans:    make([]span, 0, len(b.spans)),
	}
	for i := range b.spans {
		out.append(b.item(i))
	}
	return out
}

// grownBudget returns the per-item budget used when the buffer has to grow:
// twice the average item size of the collection once p is written.
func (b *itemBuffer) grownBudget(p []byte, i int) uint32 {
	total := b.used() + len(p)
	count := b.len() + 1
	if i >= 0 {
		total -= b.spans[i].n
		count--
	}
	avg := (total + count - 1) / count
	budget := 2 * uint64(avg)
	if budget > math.MaxUint32 {
		budget = math.MaxUint32
	}
	if budget == 0 {
		budget = 1
	}
	return uint32(budget)
}
