package sketches

import "fmt"

// Union merges two sketches built with the same parameters. Counters are
// summed cell by cell, then every top-n item of b is offered to the merged
// top-n with its frequency re-estimated from the summed counters.
//
// When one side has no top-n items yet, a copy of the other side is returned.
// Neither input is modified.
//
// Sketches that differ in depth, width or top-n capacity are rejected with
// ErrConfiguration. Sketches tracking different item types are rejected with
// ErrTypeMismatch.
func Union(a, b *CmsTopN) (*CmsTopN, error) {
	if !a.m.sameShape(&b.m) || a.capacity != b.capacity {
		return nil, fmt.Errorf("cannot merge cms_topns with different parameters: %w", ErrConfiguration)
	}
	if a.topn.len() == 0 {
		return b.clone(), nil
	}
	if b.topn.len() == 0 {
		return a.clone(), nil
	}
	if a.topn.itemType != b.topn.itemType {
		return nil, fmt.Errorf("cannot merge cms_topns of %s and %s items: %w", a.topn.itemType, b.topn.itemType, ErrTypeMismatch)
	}

	merged := a.clone()
	merged.m.add(&b.m)
	for i := 0; i < b.topn.len(); i++ {
		item := b.topn.item(i)
		merged, _ = merged.updateTopN(item, merged.m.estimate(hashBytes(item)))
	}
	merged.minFrequency = merged.lowestEstimate()
	return merged, nil
}
