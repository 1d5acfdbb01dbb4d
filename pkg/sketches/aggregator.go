package sketches

// Aggregator threads a codec and creation parameters through a sequence of
// adds, so the item type is resolved once instead of on every call. The
// sketch is created on the first non-nil value.
type Aggregator struct {
	codec              Codec
	topnCapacity       int
	errorBound         float64
	confidenceInterval float64
	sketch             *CmsTopN
}

// AggregatorOption customizes an Aggregator.
type AggregatorOption func(*Aggregator)

// WithErrorBound overrides DefaultErrorBound.
func WithErrorBound(e float64) AggregatorOption {
	return func(a *Aggregator) { a.errorBound = e }
}

// WithConfidenceInterval overrides DefaultConfidenceInterval.
func WithConfidenceInterval(p float64) AggregatorOption {
	return func(a *Aggregator) { a.confidenceInterval = p }
}

// NewAggregator returns an aggregator building a CmsTopN of the given capacity
// over values understood by codec.
func NewAggregator(codec Codec, topnCapacity int, opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		codec:              codec,
		topnCapacity:       topnCapacity,
		errorBound:         DefaultErrorBound,
		confidenceInterval: DefaultConfidenceInterval,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Add canonicalizes v and inserts it. Nil values are skipped.
func (a *Aggregator) Add(v any) error {
	if v == nil {
		return nil
	}
	item, err := NewItem(a.codec, v)
	if err != nil {
		return err
	}
	if a.sketch == nil {
		s, err := NewCmsTopN(a.topnCapacity, a.errorBound, a.confidenceInterval)
		if err != nil {
			return err
		}
		a.sketch = s
	}

	s, err := a.sketch.Add(item)
	if err != nil {
		return err
	}
	a.sketch = s
	return nil
}

// Sketch returns the current sketch, nil when no value has been added.
func (a *Aggregator) Sketch() *CmsTopN {
	return a.sketch
}

// UnionAll folds sketches with Union, skipping nil entries. It returns nil
// when every entry is nil.
func UnionAll(sketches ...*CmsTopN) (*CmsTopN, error) {
	var acc *CmsTopN
	for _, s := range sketches {
		switch {
		case s == nil:
			continue
		case acc == nil:
			acc = s.clone()
		default:
			merged, err := Union(acc, s)
			if err != nil {
				return nil, err
			}
			acc = merged
		}
	}
	return acc, nil
}
