// Package pairs provides the traversal engine for decoded name/value
// parameter sequences: a source contract that supports one-at-a-time
// advancement and work splitting, plus combinators over it.
package pairs

// Pair is one decoded name/value parameter. Slices of Pair keep the
// encounter order of the input.
type Pair struct {
	Name  string
	Value string
}

// Source produces decoded pairs one at a time.
//
// A source is stateful and single-owner: advancing consumes it. Decoding
// work happens inside TryAdvance, so pairs that are never advanced over
// are never decoded.
type Source interface {
	// TryAdvance hands the next pair to fn and reports whether a pair was
	// produced. A decode or read failure ends the traversal with an error;
	// pairs handed to fn before the failure stay delivered.
	TryAdvance(fn func(name, value string)) (bool, error)

	// TrySplit carves a prefix of the remaining pairs into its own source
	// and narrows the receiver to the suffix. Together the two sources
	// cover exactly the pairs the receiver covered before the call, in
	// order, with no overlap. TrySplit returns nil when the remaining
	// work cannot split; inherently sequential sources always return nil.
	TrySplit() Source
}

// Empty returns a source with no pairs.
func Empty() Source { return emptySource{} }

type emptySource struct{}

func (emptySource) TryAdvance(func(name, value string)) (bool, error) { return false, nil }
func (emptySource) TrySplit() Source                                  { return nil }

// FromPairs returns a splittable source over ps. The slice is not copied;
// callers hand over ownership.
func FromPairs(ps []Pair) Source {
	return &sliceSource{pairs: ps, end: len(ps)}
}

type sliceSource struct {
	pairs []Pair
	index int
	end   int
}

func (s *sliceSource) TryAdvance(fn func(name, value string)) (bool, error) {
	if s.index >= s.end {
		return false, nil
	}
	p := &s.pairs[s.index]
	s.index++
	fn(p.Name, p.Value)
	return true, nil
}

func (s *sliceSource) TrySplit() Source {
	mid := (s.index + s.end) / 2
	if mid <= s.index || mid >= s.end {
		return nil
	}
	prefix := &sliceSource{pairs: s.pairs, index: s.index, end: mid}
	s.index = mid
	return prefix
}

// Concat returns a source yielding every pair of a, then every pair of b.
func Concat(a, b Source) Source {
	return &concatSource{a: a, b: b}
}

type concatSource struct {
	a Source // nil once drained or handed off by TrySplit
	b Source
}

func (s *concatSource) TryAdvance(fn func(name, value string)) (bool, error) {
	if s.a != nil {
		ok, err := s.a.TryAdvance(fn)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
		s.a = nil
	}
	return s.b.TryAdvance(fn)
}

// TrySplit hands the untouched first half off as the prefix. Once only the
// second half remains, splitting delegates to it.
func (s *concatSource) TrySplit() Source {
	if s.a != nil {
		prefix := s.a
		s.a = nil
		return prefix
	}
	return s.b.TrySplit()
}

// ForEach drains src sequentially, handing every pair to fn in source order.
func ForEach(src Source, fn func(name, value string)) error {
	for {
		ok, err := src.TryAdvance(fn)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}
}

// Collect drains src sequentially into a slice.
func Collect(src Source) ([]Pair, error) {
	var out []Pair
	err := ForEach(src, func(name, value string) {
		out = append(out, Pair{Name: name, Value: value})
	})
	return out, err
}
