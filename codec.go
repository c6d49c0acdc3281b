package uriutils

import (
	"bytes"
	"net/url"

	"golang.org/x/text/encoding"

	"github.com/robtimus/uri-utils/consts"
)

// transcoder percent-decodes and percent-encodes parameter text in a
// configurable character encoding. A nil encoding means UTF-8, which
// needs no transformation beyond the percent codec itself.
type transcoder struct {
	enc encoding.Encoding
}

// decode percent/plus-decodes s, then converts from the configured
// encoding to UTF-8. Malformed escapes fail with a DecodeError; bytes
// invalid in the configured encoding are replaced, never failed.
func (t transcoder) decode(s string) (string, error) {
	raw, err := url.QueryUnescape(s)
	if err != nil {
		return "", &DecodeError{Token: s, Err: err}
	}
	if t.enc == nil {
		return raw, nil
	}
	out, err := t.enc.NewDecoder().String(raw)
	if err != nil {
		return "", &DecodeError{Token: s, Err: err}
	}
	return out, nil
}

// decodeBuf decodes a reusable buffer. The result never aliases buf, so
// callers may truncate and refill it after the call.
func (t transcoder) decodeBuf(buf []byte) (string, error) {
	if bytes.IndexByte(buf, consts.RunePercent) < 0 && bytes.IndexByte(buf, consts.RunePlus) < 0 {
		if t.enc == nil {
			return string(buf), nil
		}
		out, err := t.enc.NewDecoder().Bytes(buf)
		if err != nil {
			return "", &DecodeError{Token: string(buf), Err: err}
		}
		return b2s(out), nil
	}
	return t.decode(string(buf))
}

// encode converts s to the configured encoding, then percent/plus-encodes.
// Unrepresentable runes are substituted rather than failed, so encoding
// never errors.
func (t transcoder) encode(s string) string {
	return url.QueryEscape(t.recode(s))
}

// encodePath percent-encodes s as a single path segment: spaces become
// %20 rather than '+', and '/' is escaped so the segment cannot split.
func (t transcoder) encodePath(s string) string {
	return url.PathEscape(t.recode(s))
}

func (t transcoder) recode(s string) string {
	if t.enc != nil {
		if out, err := encoding.ReplaceUnsupported(t.enc.NewEncoder()).String(s); err == nil {
			s = out
		}
	}
	return s
}
