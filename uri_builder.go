package uriutils

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/rohanthewiz/serr"
	"golang.org/x/text/encoding"

	"github.com/robtimus/uri-utils/consts"
)

// pathParamPattern matches {param} placeholders in path segments.
var pathParamPattern = regexp.MustCompile(`\{([^}]*)\}`)

// HttpUriBuilder assembles http and https URIs from parts.
//
// A fresh builder has scheme https, no port, no user info, an empty path
// (which renders as "/"), no query, and no fragment. Path and query parts
// are percent-encoded with the configured character encoding; the host is
// taken as given and only validated when the URI is assembled.
type HttpUriBuilder struct {
	codec       transcoder
	scheme      string
	userInfo    *url.Userinfo
	host        string
	port        int // 0 means none
	segments    []string
	query       *ParameterBuilder
	fragment    string
	hasFragment bool
}

// ForHost returns a builder for an https URI at host.
func ForHost(host string) *HttpUriBuilder {
	return &HttpUriBuilder{
		scheme: consts.SchemeHTTPS,
		host:   host,
		query:  NewParameterBuilder(),
	}
}

// WithEncoding sets the character encoding used to encode path segments,
// query parameters, and the fragment. The default is UTF-8.
func (b *HttpUriBuilder) WithEncoding(enc encoding.Encoding) *HttpUriBuilder {
	if enc == nil {
		panic("uriutils: nil encoding")
	}
	b.codec.enc = enc
	b.query.WithEncoding(enc)
	return b
}

// Scheme sets the scheme; only http and https are allowed.
func (b *HttpUriBuilder) Scheme(scheme string) *HttpUriBuilder {
	if scheme != consts.SchemeHTTP && scheme != consts.SchemeHTTPS {
		panic(fmt.Sprintf("uriutils: unsupported scheme %q", scheme))
	}
	b.scheme = scheme
	return b
}

// Port sets an explicit port between 1 and 65535. Port 0 clears it, so the
// URI renders without one.
func (b *HttpUriBuilder) Port(port int) *HttpUriBuilder {
	if port != 0 && (port < consts.MinPort || port > consts.MaxPort) {
		panic(fmt.Sprintf("uriutils: port %d out of range", port))
	}
	b.port = port
	return b
}

// UserInfo sets the user info part. Text after the first ':' is treated as
// a password so the ':' renders unescaped.
func (b *HttpUriBuilder) UserInfo(userInfo string) *HttpUriBuilder {
	if user, password, ok := strings.Cut(userInfo, ":"); ok {
		b.userInfo = url.UserPassword(user, password)
	} else {
		b.userInfo = url.User(userInfo)
	}
	return b
}

// UserPassword sets the user info part from a user name and password.
func (b *HttpUriBuilder) UserPassword(userName, password string) *HttpUriBuilder {
	b.userInfo = url.UserPassword(userName, password)
	return b
}

// Path appends path segments, splitting each argument on '/'. Interior
// empty segments are dropped when the URI renders; an empty segment at the
// very end renders as a trailing '/'. Segments "." and ".." panic.
func (b *HttpUriBuilder) Path(paths ...string) *HttpUriBuilder {
	for _, p := range paths {
		for _, seg := range strings.Split(p, "/") {
			validatePathSegment(seg)
			b.segments = append(b.segments, seg)
		}
	}
	return b
}

// PathSegment appends segments verbatim: a '/' inside a segment is
// percent-encoded instead of splitting it. Segments "." and ".." panic.
func (b *HttpUriBuilder) PathSegment(segments ...string) *HttpUriBuilder {
	for _, seg := range segments {
		validatePathSegment(seg)
		b.segments = append(b.segments, seg)
	}
	return b
}

// ClearPath removes all path segments.
func (b *HttpUriBuilder) ClearPath() *HttpUriBuilder {
	b.segments = nil
	return b
}

// QueryParameter adds one query parameter value. A nil value panics.
func (b *HttpUriBuilder) QueryParameter(name string, value any) *HttpUriBuilder {
	b.query.WithParameter(name, value)
	return b
}

// QueryParameters adds all values for one query parameter name.
func (b *HttpUriBuilder) QueryParameters(name string, values ...any) *HttpUriBuilder {
	b.query.WithParameters(name, values...)
	return b
}

// Fragment sets the fragment. An empty fragment is distinct from none: it
// renders as a bare '#'.
func (b *HttpUriBuilder) Fragment(fragment string) *HttpUriBuilder {
	b.fragment = fragment
	b.hasFragment = true
	return b
}

// URI assembles the URI. Placeholders like {param} in path segments are
// kept literally (percent-encoded); use URIReplacingPathParams to fill
// them in.
func (b *HttpUriBuilder) URI() (*url.URL, error) {
	return b.buildURI(nil)
}

// URIReplacingPathParams assembles the URI, replacing every {param}
// placeholder in path segments with replacer(param) before encoding.
func (b *HttpUriBuilder) URIReplacingPathParams(replacer func(name string) string) (*url.URL, error) {
	if replacer == nil {
		panic("uriutils: nil replacer")
	}
	return b.buildURI(replacer)
}

// String assembles the URI as a string without parsing it. An empty
// fragment stays visible as a bare '#', which url.URL cannot represent.
func (b *HttpUriBuilder) String() string {
	return b.assemble(nil)
}

func (b *HttpUriBuilder) buildURI(replacer func(name string) string) (*url.URL, error) {
	u, err := url.Parse(b.assemble(replacer))
	if err != nil {
		return nil, serr.Wrap(err, "assembling http uri")
	}
	return u, nil
}

func (b *HttpUriBuilder) assemble(replacer func(name string) string) string {
	var sb strings.Builder
	sb.WriteString(b.scheme)
	sb.WriteString(consts.SchemeDelimiter)
	if b.userInfo != nil {
		sb.WriteString(b.userInfo.String())
		sb.WriteByte(consts.RuneAt)
	}
	sb.WriteString(b.host)
	if b.port != 0 {
		sb.WriteByte(consts.RuneColon)
		sb.WriteString(strconv.Itoa(b.port))
	}

	b.appendPath(&sb, replacer)

	if b.query.HasParameters() {
		sb.WriteByte(consts.RuneQuestion)
		b.query.appendTo(&sb)
	}
	if b.hasFragment {
		sb.WriteByte(consts.RuneHash)
		sb.WriteString(b.codec.encodePath(b.fragment))
	}
	return sb.String()
}

func (b *HttpUriBuilder) appendPath(sb *strings.Builder, replacer func(name string) string) {
	pathStart := sb.Len()
	last := len(b.segments) - 1
	for i, seg := range b.segments {
		if seg == "" {
			if i == last {
				sb.WriteByte(consts.RuneFwdSlash)
			}
			continue
		}
		if replacer != nil {
			seg = pathParamPattern.ReplaceAllStringFunc(seg, func(m string) string {
				return replacer(m[1 : len(m)-1])
			})
		}
		sb.WriteByte(consts.RuneFwdSlash)
		sb.WriteString(b.codec.encodePath(seg))
	}
	if sb.Len() == pathStart {
		sb.WriteByte(consts.RuneFwdSlash)
	}
}

func validatePathSegment(seg string) {
	if seg == consts.CurrentDir || seg == consts.ParentDir {
		panic(fmt.Sprintf("uriutils: path segment %q is not allowed", seg))
	}
}
