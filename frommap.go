package uriutils

import (
	"iter"
	"maps"
	"slices"

	"github.com/robtimus/uri-utils/core/pairs"
)

// FromMap returns a sequential stream over m's entries as parameters, one
// pair per entry. Go maps have no encounter order, so names traverse in
// lexicographic order. The map is read when a terminal operation runs.
func FromMap(m map[string]string) *ParameterStream {
	return newStream(func() pairs.Source {
		names := slices.Sorted(maps.Keys(m))
		ps := make([]pairs.Pair, len(names))
		for i, n := range names {
			ps[i] = pairs.Pair{Name: n, Value: m[n]}
		}
		return pairs.FromPairs(ps)
	})
}

// FromMultiMap returns a sequential stream over m's entries, one pair per
// value, names in lexicographic order and values in slice order. A nil
// values slice fails with a NilValuesError when a terminal operation
// reaches that entry; an empty one contributes no pairs.
func FromMultiMap(m map[string][]string) *ParameterStream {
	return newStream(func() pairs.Source {
		return &valuesSource{
			names: slices.Sorted(maps.Keys(m)),
			load: func(name string) ([]string, error) {
				vs := m[name]
				if vs == nil {
					return nil, &NilValuesError{Name: name}
				}
				return vs, nil
			},
		}
	})
}

// FromValueSeqs is FromMultiMap for iterator-valued maps: one pair per
// yielded value. A value sequence is consumed when a terminal operation
// reaches its entry; a nil sequence fails there with a NilValuesError.
func FromValueSeqs(m map[string]iter.Seq[string]) *ParameterStream {
	return newStream(func() pairs.Source {
		return &valuesSource{
			names: slices.Sorted(maps.Keys(m)),
			load: func(name string) ([]string, error) {
				seq := m[name]
				if seq == nil {
					return nil, &NilValuesError{Name: name}
				}
				return slices.Collect(seq), nil
			},
		}
	})
}

// valuesSource walks a name list, loading each name's values when first
// reached and emitting one pair per value.
type valuesSource struct {
	names   []string
	index   int
	load    func(name string) ([]string, error)
	cur     []string
	started bool
}

func (s *valuesSource) TryAdvance(fn func(name, value string)) (bool, error) {
	for s.index < len(s.names) {
		name := s.names[s.index]
		if !s.started {
			vs, err := s.load(name)
			if err != nil {
				return false, err
			}
			s.cur = vs
			s.started = true
		}
		if len(s.cur) == 0 {
			s.index++
			s.started = false
			continue
		}
		v := s.cur[0]
		s.cur = s.cur[1:]
		fn(name, v)
		return true, nil
	}
	return false, nil
}

// TrySplit bisects the not yet traversed part of the name list. It returns
// nil while a name's values are mid-traversal, so one name's pairs never
// split across sources.
func (s *valuesSource) TrySplit() pairs.Source {
	if s.started {
		return nil
	}
	mid := (s.index + len(s.names)) / 2
	if mid <= s.index || mid >= len(s.names) {
		return nil
	}
	prefix := &valuesSource{names: s.names[s.index:mid], load: s.load}
	s.names = s.names[mid:]
	s.index = 0
	return prefix
}
