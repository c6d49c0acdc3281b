package uriutils_test

import (
	"errors"
	"fmt"
	"iter"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/rohanthewiz/assert"

	uriutils "github.com/robtimus/uri-utils"
)

// numberedQuery builds "n000=v000&n001=v001&..." so lexicographic name
// order equals build order.
func numberedQuery(n int) string {
	var sb strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			sb.WriteByte('&')
		}
		fmt.Fprintf(&sb, "n%03d=v%03d", i, i)
	}
	return sb.String()
}

func numberedPairs(n int) []pair {
	ps := make([]pair, n)
	for i := range ps {
		ps[i] = pair{fmt.Sprintf("n%03d", i), fmt.Sprintf("v%03d", i)}
	}
	return ps
}

func orderedPairs(t *testing.T, s *uriutils.ParameterStream) []pair {
	t.Helper()
	var out []pair
	err := s.ForEachOrdered(func(name, value string) {
		out = append(out, pair{name, value})
	})
	assert.Nil(t, err)
	return out
}

func TestStreamFilter(t *testing.T) {
	s := uriutils.Parse("a=1&b=2&c=3").Stream().Filter(func(name, value string) bool {
		return name != "b"
	})
	assert.DeepEqual(t, orderedPairs(t, s), []pair{{"a", "1"}, {"c", "3"}})
}

func TestStreamMapNameAndValue(t *testing.T) {
	s := uriutils.Parse("a=1&b=2").Stream().
		MapName(strings.ToUpper).
		MapValue(func(value string) string { return value + "!" })
	assert.DeepEqual(t, orderedPairs(t, s), []pair{{"A", "1!"}, {"B", "2!"}})
}

func TestStreamDistinct(t *testing.T) {
	s := uriutils.Parse("b=2&a=1&b=2&a=9&a=1").Stream().Distinct()
	assert.DeepEqual(t, orderedPairs(t, s), []pair{{"b", "2"}, {"a", "1"}, {"a", "9"}})
}

func TestStreamDistinctThenSorted(t *testing.T) {
	s := uriutils.Parse("b=2&a=1&b=2&a=9").Stream().Distinct().Sorted()
	assert.DeepEqual(t, orderedPairs(t, s), []pair{{"a", "1"}, {"a", "9"}, {"b", "2"}})
}

func TestStreamSorted(t *testing.T) {
	s := uriutils.Parse("c=3&a=2&a=1&b=9").Stream().Sorted()
	assert.DeepEqual(t, orderedPairs(t, s), []pair{{"a", "1"}, {"a", "2"}, {"b", "9"}, {"c", "3"}})
}

func TestStreamSortedByNameIsStable(t *testing.T) {
	// equal names keep their encounter order
	s := uriutils.Parse("k=2&k=1&a=x").Stream().SortedByName(strings.Compare)
	assert.DeepEqual(t, orderedPairs(t, s), []pair{{"a", "x"}, {"k", "2"}, {"k", "1"}})
}

func TestStreamSortedByNameValue(t *testing.T) {
	desc := func(a, b string) int { return strings.Compare(b, a) }
	s := uriutils.Parse("k=1&k=2&a=x").Stream().SortedByNameValue(strings.Compare, desc)
	assert.DeepEqual(t, orderedPairs(t, s), []pair{{"a", "x"}, {"k", "2"}, {"k", "1"}})
}

func TestStreamPeekSeesOnlyWhatFlows(t *testing.T) {
	var seen []string
	s := uriutils.Parse("a=1&b=2&c=3").Stream().
		Peek(func(name, value string) { seen = append(seen, name) }).
		Limit(2)

	n, err := s.Count()
	assert.Nil(t, err)
	assert.Equal(t, n, int64(2))
	// the third pair was never parsed, so peek never saw it
	assert.DeepEqual(t, seen, []string{"a", "b"})
}

func TestStreamLimitSkip(t *testing.T) {
	s := uriutils.Parse("a=1&b=2&c=3&d=4").Stream().Skip(1).Limit(2)
	assert.DeepEqual(t, orderedPairs(t, s), []pair{{"b", "2"}, {"c", "3"}})

	expectPanic(t, func() { uriutils.Parse("a=1").Stream().Limit(-1) })
	expectPanic(t, func() { uriutils.Parse("a=1").Stream().Skip(-1) })
}

func TestStreamLimitSkipsLaterFailure(t *testing.T) {
	// the malformed pair sits beyond the limit, so it is never decoded
	s := uriutils.Parse("a=1&bad=%2").Stream().Limit(1)
	assert.DeepEqual(t, orderedPairs(t, s), []pair{{"a", "1"}})
}

func TestStreamCount(t *testing.T) {
	n, err := uriutils.Parse(sampleInput).Stream().Count()
	assert.Nil(t, err)
	assert.Equal(t, n, int64(7))

	n, err = uriutils.Parse(sampleInput).Stream().Filter(func(name, value string) bool {
		return name == ""
	}).Count()
	assert.Nil(t, err)
	assert.Equal(t, n, int64(2))
}

func TestStreamMatchers(t *testing.T) {
	any, err := uriutils.Parse("a=1&b=2").Stream().AnyMatch(func(name, value string) bool { return value == "2" })
	assert.Nil(t, err)
	assert.True(t, any)

	all, err := uriutils.Parse("a=1&b=2").Stream().AllMatch(func(name, value string) bool { return value != "" })
	assert.Nil(t, err)
	assert.True(t, all)

	none, err := uriutils.Parse("a=1&b=2").Stream().NoneMatch(func(name, value string) bool { return name == "z" })
	assert.Nil(t, err)
	assert.True(t, none)

	// empty streams
	any, err = uriutils.Parse("").Stream().AnyMatch(func(name, value string) bool { return true })
	assert.Nil(t, err)
	assert.False(t, any)

	all, err = uriutils.Parse("").Stream().AllMatch(func(name, value string) bool { return false })
	assert.Nil(t, err)
	assert.True(t, all)
}

func TestMatcherShortCircuitSkipsLaterFailure(t *testing.T) {
	found, err := uriutils.Parse("a=1&bad=%2").Stream().AnyMatch(func(name, value string) bool {
		return name == "a"
	})
	assert.Nil(t, err)
	assert.True(t, found)

	ok, err := uriutils.Parse("a=1&bad=%2").Stream().AllMatch(func(name, value string) bool {
		return name != "a"
	})
	assert.Nil(t, err)
	assert.False(t, ok)
}

func TestMatcherSurfacesFailure(t *testing.T) {
	_, err := uriutils.Parse("bad=%2&a=1").Stream().NoneMatch(func(name, value string) bool {
		return name == "a"
	})
	var decodeErr *uriutils.DecodeError
	assert.True(t, errors.As(err, &decodeErr))
}

func TestStreamToMap(t *testing.T) {
	m, err := uriutils.Parse("a=1&A=2").Stream().MapName(strings.ToLower).ToMap(uriutils.KeepLast)
	assert.Nil(t, err)
	assert.DeepEqual(t, m, map[string]string{"a": "2"})

	_, err = uriutils.Parse("a=1&A=2").Stream().MapName(strings.ToLower).ToMap()
	var dupErr *uriutils.DuplicateNameError
	assert.True(t, errors.As(err, &dupErr))
	assert.Equal(t, dupErr.Name, "a")
	assert.Equal(t, dupErr.Existing, "1")
	assert.Equal(t, dupErr.Incoming, "2")
}

func TestStreamToMultiMap(t *testing.T) {
	m, err := uriutils.Parse("a=1&b=2&a=3").Stream().ToMultiMap()
	assert.Nil(t, err)
	assert.DeepEqual(t, m, map[string][]string{"a": {"1", "3"}, "b": {"2"}})
}

func TestStreamExhaustion(t *testing.T) {
	s := uriutils.Parse("a=1&b=2").Stream()

	n, err := s.Count()
	assert.Nil(t, err)
	assert.Equal(t, n, int64(2))

	n, err = s.Count()
	assert.Nil(t, err)
	assert.Equal(t, n, int64(0))

	m, err := s.ToMultiMap()
	assert.Nil(t, err)
	assert.Equal(t, len(m), 0)
}

func TestStreamParallelForEachOrdered(t *testing.T) {
	s := uriutils.Parse(numberedQuery(200)).Stream().Parallel()
	assert.True(t, s.IsParallel())
	assert.DeepEqual(t, orderedPairs(t, s), numberedPairs(200))
}

func TestStreamParallelForEachMultiset(t *testing.T) {
	s := uriutils.Parse(numberedQuery(200)).Stream().Parallel()

	var mu sync.Mutex
	var got []pair
	err := s.ForEach(func(name, value string) {
		mu.Lock()
		got = append(got, pair{name, value})
		mu.Unlock()
	})
	assert.Nil(t, err)

	slices.SortFunc(got, func(a, b pair) int { return strings.Compare(a.name, b.name) })
	assert.DeepEqual(t, got, numberedPairs(200))
}

func TestStreamParallelSortedLimit(t *testing.T) {
	// names arrive in descending order; Sorted must still win
	var sb strings.Builder
	for i := 99; i >= 0; i-- {
		if i < 99 {
			sb.WriteByte('&')
		}
		fmt.Fprintf(&sb, "n%03d=v%03d", i, i)
	}

	s := uriutils.Parse(sb.String()).Stream().Parallel().Sorted().Limit(3)
	assert.DeepEqual(t, orderedPairs(t, s), numberedPairs(3))
}

func TestStreamParallelDistinctKeepsFirst(t *testing.T) {
	q := numberedQuery(50) + "&" + numberedQuery(50)
	s := uriutils.Parse(q).Stream().Parallel().Distinct()
	assert.DeepEqual(t, orderedPairs(t, s), numberedPairs(50))
}

func TestStreamParallelUnorderedDistinct(t *testing.T) {
	q := strings.Repeat("dup=x&", 64) + numberedQuery(50)
	s := uriutils.Parse(q).Stream().Parallel().Unordered().Distinct()

	var mu sync.Mutex
	var got []pair
	err := s.ForEach(func(name, value string) {
		mu.Lock()
		got = append(got, pair{name, value})
		mu.Unlock()
	})
	assert.Nil(t, err)

	slices.SortFunc(got, func(a, b pair) int { return strings.Compare(a.name, b.name) })
	assert.DeepEqual(t, got, append([]pair{{"dup", "x"}}, numberedPairs(50)...))
}

func TestStreamParallelCount(t *testing.T) {
	n, err := uriutils.Parse(numberedQuery(500)).Stream().Parallel().Count()
	assert.Nil(t, err)
	assert.Equal(t, n, int64(500))
}

func TestStreamParallelReaderDegradesSequential(t *testing.T) {
	p := uriutils.ParseReader(strings.NewReader(numberedQuery(20)))
	s := p.Stream().Parallel()
	assert.DeepEqual(t, orderedPairs(t, s), numberedPairs(20))
}

func TestStreamParallelSurfacesFailure(t *testing.T) {
	q := numberedQuery(100) + "&bad=%2"
	err := uriutils.Parse(q).Stream().Parallel().ForEach(func(name, value string) {})
	var decodeErr *uriutils.DecodeError
	assert.True(t, errors.As(err, &decodeErr))
}

func TestConcat(t *testing.T) {
	a := uriutils.Parse("a=1&b=2").Stream()
	b := uriutils.Parse("c=3").Stream()
	s := uriutils.Concat(a, b)
	assert.DeepEqual(t, orderedPairs(t, s), []pair{{"a", "1"}, {"b", "2"}, {"c", "3"}})
}

func TestConcatKeepsOperandOps(t *testing.T) {
	a := uriutils.Parse("a=1&b=2&c=3").Stream().
		Filter(func(name, value string) bool { return name != "b" }).
		MapValue(func(value string) string { return value + "!" })
	b := uriutils.Parse("d=4&e=5").Stream().Limit(1)

	s := uriutils.Concat(a, b)
	assert.DeepEqual(t, orderedPairs(t, s), []pair{{"a", "1!"}, {"c", "3!"}, {"d", "4"}})
}

func TestConcatOperandWithSorted(t *testing.T) {
	a := uriutils.Parse("b=2&a=1").Stream().Sorted()
	b := uriutils.Parse("z=9").Stream()
	s := uriutils.Concat(a, b)
	assert.DeepEqual(t, orderedPairs(t, s), []pair{{"a", "1"}, {"b", "2"}, {"z", "9"}})
}

func TestConcatExhaustsOperands(t *testing.T) {
	p1 := uriutils.Parse("a=1")
	p2 := uriutils.Parse("b=2")
	a, b := p1.Stream(), p2.Stream()

	n, err := uriutils.Concat(a, b).Count()
	assert.Nil(t, err)
	assert.Equal(t, n, int64(2))

	// both operands, and their parsers, are spent
	m, err := p1.ToMultiMap()
	assert.Nil(t, err)
	assert.Equal(t, len(m), 0)

	n, err = b.Count()
	assert.Nil(t, err)
	assert.Equal(t, n, int64(0))
}

func TestConcatConsumedOperandIsEmpty(t *testing.T) {
	a := uriutils.Parse("a=1").Stream()
	_, err := a.Count()
	assert.Nil(t, err)

	b := uriutils.Parse("b=2").Stream()
	s := uriutils.Concat(a, b)
	assert.DeepEqual(t, orderedPairs(t, s), []pair{{"b", "2"}})
}

func TestConcatParallelWhenEitherIs(t *testing.T) {
	a := uriutils.Parse("a=1").Stream().Parallel()
	b := uriutils.Parse("b=2").Stream()
	assert.True(t, uriutils.Concat(a, b).IsParallel())
}

func TestMapTyped(t *testing.T) {
	s := uriutils.Parse("a=x&bb=yy&ccc=zzz").Stream()
	var lengths []int
	for n, err := range uriutils.Map(s, func(name, value string) int { return len(name) + len(value) }) {
		assert.Nil(t, err)
		lengths = append(lengths, n)
	}
	assert.DeepEqual(t, lengths, []int{2, 4, 6})
}

func TestMapTypedStopsEarly(t *testing.T) {
	s := uriutils.Parse("a=1&bad=%2").Stream()
	for range uriutils.Map(s, func(name, value string) string { return name }) {
		break // abandoning the sequence must not panic or decode further
	}
}

func TestMapTypedError(t *testing.T) {
	s := uriutils.Parse("a=1&bad=%2").Stream()
	var vals []string
	var lastErr error
	for v, err := range uriutils.Map(s, func(name, value string) string { return name + ":" + value }) {
		if err != nil {
			lastErr = err
			continue
		}
		vals = append(vals, v)
	}
	assert.DeepEqual(t, vals, []string{"a:1"})
	var decodeErr *uriutils.DecodeError
	assert.True(t, errors.As(lastErr, &decodeErr))
}

func TestFromMap(t *testing.T) {
	s := uriutils.FromMap(map[string]string{"b": "2", "a": "1", "c": "3"})
	assert.DeepEqual(t, orderedPairs(t, s), []pair{{"a", "1"}, {"b", "2"}, {"c", "3"}})
}

func TestFromMapLateBinding(t *testing.T) {
	m := map[string]string{"a": "1"}
	s := uriutils.FromMap(m)
	m["b"] = "2" // the map is read at the terminal operation, not before

	got, err := s.ToMultiMap()
	assert.Nil(t, err)
	assert.DeepEqual(t, got, map[string][]string{"a": {"1"}, "b": {"2"}})
}

func TestFromMultiMapOrder(t *testing.T) {
	s := uriutils.FromMultiMap(map[string][]string{"foo": {"bar", "bar"}, "q": {"a"}})
	assert.DeepEqual(t, orderedPairs(t, s), []pair{{"foo", "bar"}, {"foo", "bar"}, {"q", "a"}})
}

func TestFromMultiMapEmptyValues(t *testing.T) {
	s := uriutils.FromMultiMap(map[string][]string{"a": {}, "b": {"1"}})
	assert.DeepEqual(t, orderedPairs(t, s), []pair{{"b", "1"}})
}

func TestFromMultiMapNilValues(t *testing.T) {
	s := uriutils.FromMultiMap(map[string][]string{"a": {"1"}, "broken": nil})

	var got []pair
	err := s.ForEachOrdered(func(name, value string) {
		got = append(got, pair{name, value})
	})

	// "a" sorts first and stays delivered; the nil entry fails on reach
	assert.DeepEqual(t, got, []pair{{"a", "1"}})
	var nilErr *uriutils.NilValuesError
	assert.True(t, errors.As(err, &nilErr))
	assert.Equal(t, nilErr.Name, "broken")
}

func TestFromMultiMapNilValuesNotReached(t *testing.T) {
	// the nil entry sorts last and the limit stops before it
	s := uriutils.FromMultiMap(map[string][]string{"a": {"1"}, "z": nil}).Limit(1)
	n, err := s.Count()
	assert.Nil(t, err)
	assert.Equal(t, n, int64(1))
}

func TestFromMultiMapParallel(t *testing.T) {
	m := make(map[string][]string)
	for i := 0; i < 100; i++ {
		name := fmt.Sprintf("n%03d", i)
		m[name] = []string{"x", "y"}
	}
	n, err := uriutils.FromMultiMap(m).Parallel().Count()
	assert.Nil(t, err)
	assert.Equal(t, n, int64(200))
}

func TestFromValueSeqs(t *testing.T) {
	s := uriutils.FromValueSeqs(map[string]iter.Seq[string]{
		"a": slices.Values([]string{"1", "2"}),
		"b": slices.Values([]string{"3"}),
	})
	assert.DeepEqual(t, orderedPairs(t, s), []pair{{"a", "1"}, {"a", "2"}, {"b", "3"}})
}

func TestFromValueSeqsNil(t *testing.T) {
	s := uriutils.FromValueSeqs(map[string]iter.Seq[string]{"a": nil})
	err := s.ForEach(func(name, value string) {})
	var nilErr *uriutils.NilValuesError
	assert.True(t, errors.As(err, &nilErr))
	assert.Equal(t, nilErr.Name, "a")
}
