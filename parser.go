// Package uriutils parses and builds URL-encoded parameters and HTTP URIs.
package uriutils

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding"

	"github.com/robtimus/uri-utils/consts"
	"github.com/robtimus/uri-utils/core/pairs"
)

// DuplicateNameStrategy controls what happens when parameters collapse into
// a single-valued map and the same name occurs more than once.
type DuplicateNameStrategy int

const (
	// FailOnDuplicate fails the operation with a DuplicateNameError.
	FailOnDuplicate DuplicateNameStrategy = iota
	// KeepFirst keeps the first value seen for a name.
	KeepFirst
	// KeepLast keeps the last value seen for a name.
	KeepLast
)

// add records one occurrence in m under the strategy.
func (s DuplicateNameStrategy) add(m map[string]string, name, value string) error {
	existing, ok := m[name]
	switch {
	case !ok:
		m[name] = value
	case s == KeepLast:
		m[name] = value
	case s == KeepFirst:
		// keep the existing value
	default:
		return &DuplicateNameError{Name: name, Existing: existing, Incoming: value}
	}
	return nil
}

// ParameterParser parses URL-encoded parameters, as found in query strings
// and form-post bodies, from a string range or an io.Reader.
//
// A parser is a stateful, single-owner, single-pass resource: the first
// terminal operation (ToMap, ToMultiMap, ForEach, or any terminal operation
// on a stream obtained from Stream) consumes it. Later terminal operations
// observe no parameters and no error. Parsing and decoding happen lazily,
// while a terminal operation runs.
type ParameterParser struct {
	noCopy noCopy //nolint:unused

	codec    transcoder
	consumed bool

	// string input
	text  string
	index int
	end   int

	// reader input; nil when parsing a string
	rd       *bufio.Reader
	nameBuf  []byte
	valueBuf []byte
}

// Parse returns a parser over all of s.
func Parse(s string) *ParameterParser {
	return &ParameterParser{text: s, end: len(s)}
}

// ParseRange returns a parser over s[start:end]. It panics when the bounds
// do not describe a range within s.
func ParseRange(s string, start, end int) *ParameterParser {
	if start < 0 || end < start || end > len(s) {
		panic(fmt.Sprintf("uriutils: invalid range [%d, %d) for input of length %d", start, end, len(s)))
	}
	return &ParameterParser{text: s, index: start, end: end}
}

// ParseReader returns a parser reading parameters from r. The reader is
// buffered unless it already is a *bufio.Reader.
func ParseReader(r io.Reader) *ParameterParser {
	if r == nil {
		panic("uriutils: nil reader")
	}
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	return &ParameterParser{rd: br}
}

// WithEncoding sets the character encoding used to decode parameter names
// and values. The default is UTF-8. The encoding is read when a terminal
// operation runs; setting it on an exhausted parser has no effect.
func (p *ParameterParser) WithEncoding(enc encoding.Encoding) *ParameterParser {
	if enc == nil {
		panic("uriutils: nil encoding")
	}
	p.codec.enc = enc
	return p
}

// claim marks the parser consumed and reports whether the caller is the
// first terminal operation to do so.
func (p *ParameterParser) claim() bool {
	if p.consumed {
		return false
	}
	p.consumed = true
	return true
}

// source returns the pair source over the remaining input. The caller must
// have claimed the parser.
func (p *ParameterParser) source() pairs.Source {
	if p.rd != nil {
		return &readerSource{p: p}
	}
	return &textSource{p: p, index: p.index, end: p.end}
}

// collect claims the parser and feeds every parameter to add, stopping at
// the first error from either parsing or add itself.
func (p *ParameterParser) collect(add func(name, value string) error) error {
	if !p.claim() {
		return nil
	}
	src := p.source()
	for {
		var addErr error
		ok, err := src.TryAdvance(func(name, value string) {
			addErr = add(name, value)
		})
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if addErr != nil {
			return addErr
		}
	}
}

// ForEach hands every parameter to action in input order. On a decode or
// read failure, parameters already handed out stay delivered and the
// failure is returned.
func (p *ParameterParser) ForEach(action func(name, value string)) error {
	return p.collect(func(name, value string) error {
		action(name, value)
		return nil
	})
}

// ToMap collapses the parameters into a single-valued map. With no strategy
// a duplicate name fails with a DuplicateNameError; pass KeepFirst or
// KeepLast to resolve duplicates instead. An exhausted parser yields an
// empty map.
func (p *ParameterParser) ToMap(strategy ...DuplicateNameStrategy) (map[string]string, error) {
	st := FailOnDuplicate
	if len(strategy) > 0 {
		st = strategy[0]
	}
	m := make(map[string]string)
	err := p.collect(func(name, value string) error {
		return st.add(m, name, value)
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// ToMultiMap collects every parameter occurrence into a name to values map.
// Values of the same name keep their input order.
func (p *ParameterParser) ToMultiMap() (map[string][]string, error) {
	m := make(map[string][]string)
	err := p.collect(func(name, value string) error {
		m[name] = append(m[name], value)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Stream returns a lazy stream over the parameters. The stream shares the
// parser's exhaustion state: a terminal operation on the stream consumes
// the parser, and a stream from an already consumed parser is empty.
func (p *ParameterParser) Stream() *ParameterStream {
	return newStream(func() pairs.Source {
		if !p.claim() {
			return pairs.Empty()
		}
		return p.source()
	})
}

// segmentEnd returns the position of the '&' closing the segment that
// starts at from, or to when the segment runs to the end of the range.
func segmentEnd(s string, from, to int) int {
	if i := strings.IndexByte(s[from:to], consts.RuneAmp); i >= 0 {
		return from + i
	}
	return to
}

// decodeSegment splits the non-empty segment s[from:to] at its first '='
// and decodes both halves. A segment without '=' is all name; later '='
// bytes belong to the value.
func decodeSegment(t transcoder, s string, from, to int) (name, value string, err error) {
	nameEnd := to
	if i := strings.IndexByte(s[from:to], consts.RuneEquals); i >= 0 {
		nameEnd = from + i
	}
	name, err = t.decode(s[from:nameEnd])
	if err != nil {
		return "", "", err
	}
	if nameEnd < to {
		value, err = t.decode(s[nameEnd+1 : to])
		if err != nil {
			return "", "", err
		}
	}
	return name, value, nil
}

// textSource walks a string range segment by segment, decoding on advance.
type textSource struct {
	p     *ParameterParser
	index int
	end   int
}

func (s *textSource) TryAdvance(fn func(name, value string)) (bool, error) {
	for s.index < s.end {
		segEnd := segmentEnd(s.p.text, s.index, s.end)
		if s.index == segEnd {
			s.index = segEnd + 1 // empty segment, no pair
			continue
		}
		name, value, err := decodeSegment(s.p.codec, s.p.text, s.index, segEnd)
		if err != nil {
			return false, err
		}
		s.index = segEnd + 1
		fn(name, value)
		return true, nil
	}
	return false, nil
}

// TrySplit bisects the remaining range at the first segment boundary at or
// after the midpoint, so no segment is cut in half.
func (s *textSource) TrySplit() pairs.Source {
	mid := (s.index + s.end) / 2
	boundary := segmentEnd(s.p.text, mid, s.end)
	if boundary == s.end {
		return nil
	}
	prefix := &textSource{p: s.p, index: s.index, end: boundary}
	s.index = boundary + 1
	return prefix
}

// readerSource reads one parameter per advance from the buffered reader.
// It never splits: the input can only be read forward.
type readerSource struct {
	p *ParameterParser
}

func (s *readerSource) TryAdvance(fn func(name, value string)) (bool, error) {
	name, value, ok, err := s.p.readNextPair()
	if err != nil || !ok {
		return false, err
	}
	fn(name, value)
	return true, nil
}

func (s *readerSource) TrySplit() pairs.Source { return nil }

// readNextPair consumes bytes up to and including the next '&' (or the end
// of input) and decodes the parameter they form. It reports ok=false at end
// of input when no parameter is pending. Empty segments produce no pair; a
// segment holding just '=' produces ("", "").
func (p *ParameterParser) readNextPair() (name, value string, ok bool, err error) {
	p.nameBuf = p.nameBuf[:0]
	p.valueBuf = p.valueBuf[:0]
	inValue := false

	for {
		c, rerr := p.rd.ReadByte()
		if rerr == io.EOF {
			if len(p.nameBuf) == 0 && len(p.valueBuf) == 0 && !inValue {
				return "", "", false, nil
			}
			name, value, err = p.decodeBuffered()
			return name, value, err == nil, err
		}
		if rerr != nil {
			return "", "", false, &ReadError{Err: rerr}
		}

		switch c {
		case consts.RuneAmp:
			if len(p.nameBuf) == 0 && len(p.valueBuf) == 0 && !inValue {
				continue // empty segment
			}
			name, value, err = p.decodeBuffered()
			return name, value, err == nil, err
		case consts.RuneEquals:
			if !inValue {
				inValue = true // later '=' bytes are value text
			} else {
				p.valueBuf = append(p.valueBuf, c)
			}
		default:
			if inValue {
				p.valueBuf = append(p.valueBuf, c)
			} else {
				p.nameBuf = append(p.nameBuf, c)
			}
		}
	}
}

func (p *ParameterParser) decodeBuffered() (name, value string, err error) {
	name, err = p.codec.decodeBuf(p.nameBuf)
	if err != nil {
		return "", "", err
	}
	value, err = p.codec.decodeBuf(p.valueBuf)
	if err != nil {
		return "", "", err
	}
	return name, value, nil
}
