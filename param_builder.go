package uriutils

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding"

	"github.com/robtimus/uri-utils/consts"
)

// ParameterBuilder composes URL-encoded parameter strings, the inverse of
// ParameterParser: names and values are percent/plus-encoded independently
// and joined with '=' and '&'.
//
// All values of a name render together, at the position of the name's
// first appearance. Values are kept as given and converted with fmt.Sprint
// when the parameters render, using the encoding configured by then.
type ParameterBuilder struct {
	codec  transcoder
	names  []string // first-appearance order
	values map[string][]any
}

// NewParameterBuilder returns an empty builder.
func NewParameterBuilder() *ParameterBuilder {
	return &ParameterBuilder{values: make(map[string][]any)}
}

// WithEncoding sets the character encoding used to encode names and
// values. The default is UTF-8.
func (b *ParameterBuilder) WithEncoding(enc encoding.Encoding) *ParameterBuilder {
	if enc == nil {
		panic("uriutils: nil encoding")
	}
	b.codec.enc = enc
	return b
}

// WithParameter adds one value for name. A nil value panics.
func (b *ParameterBuilder) WithParameter(name string, value any) *ParameterBuilder {
	if value == nil {
		panic("uriutils: nil parameter value")
	}
	if _, ok := b.values[name]; !ok {
		b.names = append(b.names, name)
	}
	b.values[name] = append(b.values[name], value)
	return b
}

// WithParameters adds all values for name, in order.
func (b *ParameterBuilder) WithParameters(name string, values ...any) *ParameterBuilder {
	for _, v := range values {
		b.WithParameter(name, v)
	}
	return b
}

// Count returns the number of name/value pairs added.
func (b *ParameterBuilder) Count() int64 {
	var n int64
	for _, vs := range b.values {
		n += int64(len(vs))
	}
	return n
}

// HasParameters reports whether any pair was added.
func (b *ParameterBuilder) HasParameters() bool {
	return len(b.names) > 0
}

// String renders the parameters as name=value segments joined with '&'.
// An empty builder renders "".
func (b *ParameterBuilder) String() string {
	var sb strings.Builder
	b.appendTo(&sb)
	return sb.String()
}

// WriteTo writes the rendered parameters to w.
func (b *ParameterBuilder) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(s2b(b.String()))
	return int64(n), err
}

func (b *ParameterBuilder) appendTo(sb *strings.Builder) {
	first := true
	for _, name := range b.names {
		encName := b.codec.encode(name)
		for _, v := range b.values[name] {
			if !first {
				sb.WriteByte(consts.RuneAmp)
			}
			first = false
			sb.WriteString(encName)
			sb.WriteByte(consts.RuneEquals)
			sb.WriteString(b.encodeValue(v))
		}
	}
}

func (b *ParameterBuilder) encodeValue(v any) string {
	s := fmt.Sprint(v)
	if noEncodingNeeded(v) {
		return s
	}
	return b.codec.encode(s)
}

// noEncodingNeeded reports whether v's string form can never contain
// characters that percent-encoding would change.
func noEncodingNeeded(v any) bool {
	switch v.(type) {
	case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	}
	return false
}
