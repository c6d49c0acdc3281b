package uriutils

import (
	"fmt"
	"iter"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/robtimus/uri-utils/core/pairs"
)

// ParameterStream is a lazy, composable pipeline over decoded parameters.
//
// Intermediate operations only record work and never fail; all parsing,
// decoding, and failure surfacing happens when a terminal operation runs.
// A stream is single-pass: the first terminal operation consumes it (and
// the parser it came from), later terminal operations observe no pairs.
type ParameterStream struct {
	acquire   func() pairs.Source
	ops       []streamOp
	claimed   bool
	parallel  bool
	unordered bool
}

func newStream(acquire func() pairs.Source) *ParameterStream {
	return &ParameterStream{acquire: acquire}
}

type opKind int

const (
	opFilter opKind = iota
	opMapName
	opMapValue
	opPeek
	opDistinct
	opSorted
	opLimit
	opSkip
)

type streamOp struct {
	kind     opKind
	pred     func(name, value string) bool
	mapper   func(string) string
	action   func(name, value string)
	n        int64
	nameCmp  func(a, b string) int
	valueCmp func(a, b string) int
	dshared  *distinctState // set per run for parallel unordered Distinct
}

// distinctState is a seen set shared by all workers of one parallel run.
type distinctState struct {
	mu   sync.Mutex
	seen map[pairs.Pair]struct{}
}

// streamPair carries one pair through a pipeline run. The shared instance
// is reused between advances; stages that retain elements take owned copies
// first. It never escapes the pipeline.
type streamPair struct {
	name   string
	value  string
	shared bool
}

func (p *streamPair) owned() *streamPair {
	if !p.shared {
		return p
	}
	return &streamPair{name: p.name, value: p.value}
}

func (p *streamPair) withName(name string) *streamPair {
	if p.shared {
		p.name = name
		return p
	}
	if name == p.name {
		return p
	}
	return &streamPair{name: name, value: p.value}
}

func (p *streamPair) withValue(value string) *streamPair {
	if p.shared {
		p.value = value
		return p
	}
	if value == p.value {
		return p
	}
	return &streamPair{name: p.name, value: value}
}

// Filter keeps only pairs for which pred returns true.
func (s *ParameterStream) Filter(pred func(name, value string) bool) *ParameterStream {
	if pred == nil {
		panic("uriutils: nil predicate")
	}
	s.ops = append(s.ops, streamOp{kind: opFilter, pred: pred})
	return s
}

// MapName replaces each pair's name with fn(name).
func (s *ParameterStream) MapName(fn func(name string) string) *ParameterStream {
	if fn == nil {
		panic("uriutils: nil mapper")
	}
	s.ops = append(s.ops, streamOp{kind: opMapName, mapper: fn})
	return s
}

// MapValue replaces each pair's value with fn(value).
func (s *ParameterStream) MapValue(fn func(value string) string) *ParameterStream {
	if fn == nil {
		panic("uriutils: nil mapper")
	}
	s.ops = append(s.ops, streamOp{kind: opMapValue, mapper: fn})
	return s
}

// Peek hands each pair to action as it flows past, unchanged.
func (s *ParameterStream) Peek(action func(name, value string)) *ParameterStream {
	if action == nil {
		panic("uriutils: nil action")
	}
	s.ops = append(s.ops, streamOp{kind: opPeek, action: action})
	return s
}

// Distinct drops pairs whose name and value were both seen before. From
// this stage on, pairs are individually owned rather than cursor-shared.
func (s *ParameterStream) Distinct() *ParameterStream {
	s.ops = append(s.ops, streamOp{kind: opDistinct})
	return s
}

// Sorted sorts pairs by name, then by value.
func (s *ParameterStream) Sorted() *ParameterStream {
	s.ops = append(s.ops, streamOp{kind: opSorted, nameCmp: strings.Compare, valueCmp: strings.Compare})
	return s
}

// SortedByName sorts pairs by name only, keeping the incoming order of
// equal names.
func (s *ParameterStream) SortedByName(nameCmp func(a, b string) int) *ParameterStream {
	if nameCmp == nil {
		panic("uriutils: nil comparator")
	}
	s.ops = append(s.ops, streamOp{kind: opSorted, nameCmp: nameCmp})
	return s
}

// SortedByNameValue sorts pairs by name, breaking ties by value.
func (s *ParameterStream) SortedByNameValue(nameCmp, valueCmp func(a, b string) int) *ParameterStream {
	if nameCmp == nil || valueCmp == nil {
		panic("uriutils: nil comparator")
	}
	s.ops = append(s.ops, streamOp{kind: opSorted, nameCmp: nameCmp, valueCmp: valueCmp})
	return s
}

// Limit truncates the stream to at most n pairs.
func (s *ParameterStream) Limit(n int64) *ParameterStream {
	if n < 0 {
		panic(fmt.Sprintf("uriutils: Limit requires a non-negative count, got %d", n))
	}
	s.ops = append(s.ops, streamOp{kind: opLimit, n: n})
	return s
}

// Skip discards the first n pairs.
func (s *ParameterStream) Skip(n int64) *ParameterStream {
	if n < 0 {
		panic(fmt.Sprintf("uriutils: Skip requires a non-negative count, got %d", n))
	}
	s.ops = append(s.ops, streamOp{kind: opSkip, n: n})
	return s
}

// Parallel marks the stream for parallel terminal execution. Sources that
// cannot split, and stages that cannot run split (Limit, Skip), still
// execute sequentially.
func (s *ParameterStream) Parallel() *ParameterStream {
	s.parallel = true
	return s
}

// Sequential marks the stream for sequential terminal execution.
func (s *ParameterStream) Sequential() *ParameterStream {
	s.parallel = false
	return s
}

// Unordered gives up encounter-order guarantees. Its one observable effect
// is on parallel runs: Distinct keeps an arbitrary occurrence of each pair
// instead of the first, without buffering the whole stream.
func (s *ParameterStream) Unordered() *ParameterStream {
	s.unordered = true
	return s
}

// IsParallel reports whether a terminal operation would try to run split.
func (s *ParameterStream) IsParallel() bool {
	return s.parallel
}

// Concat returns a stream over all of a's pairs followed by all of b's.
// Each operand keeps its own pending operations and its own exhaustion
// ownership. The result is parallel when either operand is.
func Concat(a, b *ParameterStream) *ParameterStream {
	if a == nil || b == nil {
		panic("uriutils: nil stream")
	}
	out := newStream(func() pairs.Source {
		return pairs.Concat(a.asSource(), b.asSource())
	})
	out.parallel = a.parallel || b.parallel
	return out
}

// Map ends the pair abstraction, producing a lazily evaluated sequence of
// mapped values in encounter order. Iteration yields each mapped value with
// a nil error; a parse failure yields one (zero value, error) element and
// the sequence ends. Like the stream it consumes, the sequence is
// single-use.
func Map[R any](s *ParameterStream, fn func(name, value string) R) iter.Seq2[R, error] {
	if fn == nil {
		panic("uriutils: nil mapper")
	}
	return func(yield func(R, error) bool) {
		err := s.terminalRun(true, func(p *streamPair) bool {
			return yield(fn(p.name, p.value), nil)
		})
		if err != nil {
			var zero R
			yield(zero, err)
		}
	}
}

// ForEach is a terminal operation handing every pair to action. On a
// parallel run with a splittable source, action may be called from multiple
// goroutines at once and in no particular order; use ForEachOrdered for
// encounter order.
func (s *ParameterStream) ForEach(action func(name, value string)) error {
	if action == nil {
		panic("uriutils: nil action")
	}
	return s.terminalRun(false, func(p *streamPair) bool {
		action(p.name, p.value)
		return true
	})
}

// ForEachOrdered hands every pair to action in encounter order, one call
// at a time, regardless of parallelism.
func (s *ParameterStream) ForEachOrdered(action func(name, value string)) error {
	if action == nil {
		panic("uriutils: nil action")
	}
	return s.terminalRun(true, func(p *streamPair) bool {
		action(p.name, p.value)
		return true
	})
}

// Count returns the number of pairs reaching the end of the pipeline.
func (s *ParameterStream) Count() (int64, error) {
	var n atomic.Int64
	err := s.terminalRun(false, func(p *streamPair) bool {
		n.Add(1)
		return true
	})
	if err != nil {
		return 0, err
	}
	return n.Load(), nil
}

// AnyMatch reports whether any pair satisfies pred, stopping at the first
// match.
func (s *ParameterStream) AnyMatch(pred func(name, value string) bool) (bool, error) {
	if pred == nil {
		panic("uriutils: nil predicate")
	}
	var found atomic.Bool
	err := s.terminalRun(false, func(p *streamPair) bool {
		if pred(p.name, p.value) {
			found.Store(true)
			return false
		}
		return true
	})
	if err != nil {
		return false, err
	}
	return found.Load(), nil
}

// AllMatch reports whether every pair satisfies pred, stopping at the
// first violation. An empty stream matches.
func (s *ParameterStream) AllMatch(pred func(name, value string) bool) (bool, error) {
	if pred == nil {
		panic("uriutils: nil predicate")
	}
	var violated atomic.Bool
	err := s.terminalRun(false, func(p *streamPair) bool {
		if !pred(p.name, p.value) {
			violated.Store(true)
			return false
		}
		return true
	})
	if err != nil {
		return false, err
	}
	return !violated.Load(), nil
}

// NoneMatch reports whether no pair satisfies pred, stopping at the first
// match.
func (s *ParameterStream) NoneMatch(pred func(name, value string) bool) (bool, error) {
	matched, err := s.AnyMatch(pred)
	if err != nil {
		return false, err
	}
	return !matched, nil
}

// ToMap collapses the stream into a single-valued map, like
// ParameterParser.ToMap.
func (s *ParameterStream) ToMap(strategy ...DuplicateNameStrategy) (map[string]string, error) {
	st := FailOnDuplicate
	if len(strategy) > 0 {
		st = strategy[0]
	}
	m := make(map[string]string)
	var addErr error
	err := s.terminalRun(true, func(p *streamPair) bool {
		addErr = st.add(m, p.name, p.value)
		return addErr == nil
	})
	if err != nil {
		return nil, err
	}
	if addErr != nil {
		return nil, addErr
	}
	return m, nil
}

// ToMultiMap collects every pair into a name to values map, values in
// encounter order.
func (s *ParameterStream) ToMultiMap() (map[string][]string, error) {
	m := make(map[string][]string)
	err := s.terminalRun(true, func(p *streamPair) bool {
		m[p.name] = append(m[p.name], p.value)
		return true
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// ---- execution ----

// emitFn pushes one pair down a fused stage chain. Returning false stops
// the traversal feeding it.
type emitFn func(p *streamPair) bool

// terminalRun claims the source and drives it through the recorded
// operations into sink. ordered requests single-goroutine delivery in
// encounter order; otherwise a parallel run may call sink concurrently.
func (s *ParameterStream) terminalRun(ordered bool, sink emitFn) error {
	var src pairs.Source
	if s.claimed {
		src = pairs.Empty()
	} else {
		s.claimed = true
		src = s.acquire()
	}

	segs := segmentsOf(s.prepared(), s.parallel)
	for _, seg := range segs[:len(segs)-1] {
		buf, err := s.gather(src, seg.stages)
		if err != nil {
			return err
		}
		src = pairs.FromPairs(applyBarrier(*seg.barrier, buf))
	}
	return s.drain(src, segs[len(segs)-1].stages, ordered, sink)
}

// prepared returns run-scoped operations. Under a parallel unordered run,
// Distinct trades its buffering barrier for an inline stage with one seen
// set shared across workers.
func (s *ParameterStream) prepared() []streamOp {
	if !s.parallel || !s.unordered {
		return s.ops
	}
	ops := slices.Clone(s.ops)
	for i := range ops {
		if ops[i].kind == opDistinct {
			ops[i].dshared = &distinctState{seen: make(map[pairs.Pair]struct{})}
		}
	}
	return ops
}

// segment is a run of inline stages ending at a buffering barrier. Only
// the last segment of a pipeline has none.
type segment struct {
	stages  []streamOp
	barrier *streamOp
}

func segmentsOf(ops []streamOp, parallel bool) []segment {
	segs := []segment{{}}
	for _, op := range ops {
		if op.kind == opSorted || (op.kind == opDistinct && parallel && op.dshared == nil) {
			op := op
			segs[len(segs)-1].barrier = &op
			segs = append(segs, segment{})
			continue
		}
		segs[len(segs)-1].stages = append(segs[len(segs)-1].stages, op)
	}
	return segs
}

func hasTruncation(ops []streamOp) bool {
	for _, op := range ops {
		if op.kind == opLimit || op.kind == opSkip {
			return true
		}
	}
	return false
}

// applyBarrier runs a buffering operation over the gathered pairs.
func applyBarrier(b streamOp, buf []pairs.Pair) []pairs.Pair {
	switch b.kind {
	case opSorted:
		slices.SortStableFunc(buf, func(x, y pairs.Pair) int {
			if c := b.nameCmp(x.Name, y.Name); c != 0 {
				return c
			}
			if b.valueCmp == nil {
				return 0
			}
			return b.valueCmp(x.Value, y.Value)
		})
	case opDistinct:
		seen := make(map[pairs.Pair]struct{}, len(buf))
		out := buf[:0]
		for _, p := range buf {
			if _, dup := seen[p]; dup {
				continue
			}
			seen[p] = struct{}{}
			out = append(out, p)
		}
		buf = out
	}
	return buf
}

// gather materializes the pairs surviving stages, in encounter order,
// running split when the stream and stages allow it.
func (s *ParameterStream) gather(src pairs.Source, stages []streamOp) ([]pairs.Pair, error) {
	if !s.parallel || hasTruncation(stages) {
		var out []pairs.Pair
		err := drive(src, chainOps(stages, collectInto(&out)))
		return out, err
	}
	subs := pairs.Split(src, pairs.DefaultParallelism())
	parts := make([][]pairs.Pair, len(subs))
	err := pairs.Traverse(subs, func(part int, sub pairs.Source) error {
		var out []pairs.Pair
		err := drive(sub, chainOps(stages, collectInto(&out)))
		parts[part] = out
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	var all []pairs.Pair
	for _, part := range parts {
		all = append(all, part...)
	}
	return all, nil
}

// drain pushes the final segment into sink. An ordered parallel run
// buffers per split piece and delivers on the calling goroutine in split
// order; an unordered one calls sink concurrently with a shared stop flag.
func (s *ParameterStream) drain(src pairs.Source, stages []streamOp, ordered bool, sink emitFn) error {
	if !s.parallel || hasTruncation(stages) {
		return drive(src, chainOps(stages, sink))
	}
	subs := pairs.Split(src, pairs.DefaultParallelism())
	if len(subs) == 1 {
		return drive(subs[0], chainOps(stages, sink))
	}
	if ordered {
		parts := make([][]pairs.Pair, len(subs))
		err := pairs.Traverse(subs, func(part int, sub pairs.Source) error {
			var out []pairs.Pair
			err := drive(sub, chainOps(stages, collectInto(&out)))
			parts[part] = out
			return err
		})
		if err != nil {
			return err
		}
		for _, part := range parts {
			for i := range part {
				if !sink(&streamPair{name: part[i].Name, value: part[i].Value}) {
					return nil
				}
			}
		}
		return nil
	}
	var done atomic.Bool
	return pairs.Traverse(subs, func(part int, sub pairs.Source) error {
		return drive(sub, chainOps(stages, func(p *streamPair) bool {
			if done.Load() {
				return false
			}
			if !sink(p) {
				done.Store(true)
				return false
			}
			return true
		}))
	})
}

// drive advances src into sink until the source ends, sink stops the
// traversal, or an error surfaces. One shared cursor is reused across all
// advances of the traversal.
func drive(src pairs.Source, sink emitFn) error {
	cursor := &streamPair{shared: true}
	for {
		stop := false
		ok, err := src.TryAdvance(func(name, value string) {
			cursor.name, cursor.value = name, value
			stop = !sink(cursor)
		})
		if err != nil {
			return err
		}
		if !ok || stop {
			return nil
		}
	}
}

func collectInto(out *[]pairs.Pair) emitFn {
	return func(p *streamPair) bool {
		*out = append(*out, pairs.Pair{Name: p.name, Value: p.value})
		return true
	}
}

// chainOps fuses inline stages into one push function ending at down.
func chainOps(ops []streamOp, down emitFn) emitFn {
	for i := len(ops) - 1; i >= 0; i-- {
		down = ops[i].stage(down)
	}
	return down
}

func (op streamOp) stage(down emitFn) emitFn {
	switch op.kind {
	case opFilter:
		pred := op.pred
		return func(p *streamPair) bool {
			if !pred(p.name, p.value) {
				return true
			}
			return down(p)
		}
	case opMapName:
		fn := op.mapper
		return func(p *streamPair) bool {
			return down(p.withName(fn(p.name)))
		}
	case opMapValue:
		fn := op.mapper
		return func(p *streamPair) bool {
			return down(p.withValue(fn(p.value)))
		}
	case opPeek:
		action := op.action
		return func(p *streamPair) bool {
			action(p.name, p.value)
			return down(p)
		}
	case opDistinct:
		if shared := op.dshared; shared != nil {
			return func(p *streamPair) bool {
				key := pairs.Pair{Name: p.name, Value: p.value}
				shared.mu.Lock()
				_, dup := shared.seen[key]
				if !dup {
					shared.seen[key] = struct{}{}
				}
				shared.mu.Unlock()
				if dup {
					return true
				}
				return down(p.owned())
			}
		}
		seen := make(map[pairs.Pair]struct{})
		return func(p *streamPair) bool {
			key := pairs.Pair{Name: p.name, Value: p.value}
			if _, dup := seen[key]; dup {
				return true
			}
			seen[key] = struct{}{}
			return down(p.owned())
		}
	case opLimit:
		left := op.n
		return func(p *streamPair) bool {
			if left <= 0 {
				return false
			}
			left--
			if !down(p) {
				return false
			}
			return left > 0
		}
	case opSkip:
		toSkip := op.n
		return func(p *streamPair) bool {
			if toSkip > 0 {
				toSkip--
				return true
			}
			return down(p)
		}
	}
	// opSorted never fuses; barriers are split out by segmentsOf
	return down
}

// asSource adapts the stream, with its pending operations, into a source
// usable as an operand of another stream. The stream is claimed when this
// runs, so it happens inside the combined stream's terminal operation.
func (s *ParameterStream) asSource() pairs.Source {
	var src pairs.Source
	if s.claimed {
		src = pairs.Empty()
	} else {
		s.claimed = true
		src = s.acquire()
	}
	if len(s.ops) == 0 {
		return src
	}
	return &stagedSource{ops: s.ops, src: src}
}

// stagedSource pulls pairs through pending intermediate operations one at
// a time, sequentially. Barriers materialize lazily on the first advance.
type stagedSource struct {
	ops      []streamOp
	src      pairs.Source
	chain    emitFn
	cursor   *streamPair
	outName  string
	outValue string
	produced bool
	done     bool
}

func (s *stagedSource) init() error {
	if s.chain != nil {
		return nil
	}
	segs := segmentsOf(s.ops, false)
	for _, seg := range segs[:len(segs)-1] {
		var buf []pairs.Pair
		if err := drive(s.src, chainOps(seg.stages, collectInto(&buf))); err != nil {
			return err
		}
		s.src = pairs.FromPairs(applyBarrier(*seg.barrier, buf))
	}
	s.cursor = &streamPair{shared: true}
	s.chain = chainOps(segs[len(segs)-1].stages, func(p *streamPair) bool {
		s.outName, s.outValue = p.name, p.value
		s.produced = true
		return true
	})
	return nil
}

func (s *stagedSource) TryAdvance(fn func(name, value string)) (bool, error) {
	if s.done {
		return false, nil
	}
	if err := s.init(); err != nil {
		s.done = true
		return false, err
	}
	for {
		s.produced = false
		stop := false
		ok, err := s.src.TryAdvance(func(name, value string) {
			s.cursor.name, s.cursor.value = name, value
			stop = !s.chain(s.cursor)
		})
		if err != nil {
			s.done = true
			return false, err
		}
		if s.produced {
			if stop {
				s.done = true
			}
			fn(s.outName, s.outValue)
			return true, nil
		}
		if stop || !ok {
			s.done = true
			return false, nil
		}
	}
}

func (s *stagedSource) TrySplit() pairs.Source { return nil }
