package csrf

import (
	"fmt"
	"net/url"
	"strings"
)

// Pattern is a compiled path template: an ordered sequence of segments, each
// either a literal or a named single-segment capture written as <name>.
// Patterns are compiled once at startup and never change.
type Pattern struct {
	raw      string
	segments []segment
}

type segment struct {
	value   string // decoded literal text, or the capture name
	capture bool
}

// CompilePattern splits pattern on "/" and compiles each segment. A segment
// wrapped in angle brackets becomes a capture of that name; anything else is
// a literal, percent-decoded at compile time so encoded and unencoded forms
// compare equal at match time.
func CompilePattern(pattern string) (*Pattern, error) {
	parts := strings.Split(pattern, "/")
	segments := make([]segment, 0, len(parts))
	for _, part := range parts {
		if len(part) >= 2 && strings.HasPrefix(part, "<") && strings.HasSuffix(part, ">") {
			segments = append(segments, segment{value: part[1 : len(part)-1], capture: true})
			continue
		}
		decoded, err := url.PathUnescape(part)
		if err != nil {
			return nil, fmt.Errorf("%w: bad escape in pattern %q: %v", ErrConfig, pattern, err)
		}
		segments = append(segments, segment{value: decoded})
	}
	return &Pattern{raw: pattern, segments: segments}, nil
}

// Match compares path against the pattern segment by segment. Literal
// segments must compare equal after percent-decoding; each capture segment
// binds exactly one path segment. The second return value is false on any
// mismatch, including differing segment counts or an undecodable path.
func (p *Pattern) Match(path string) (map[string]string, bool) {
	parts := strings.Split(path, "/")
	if len(parts) != len(p.segments) {
		return nil, false
	}
	captures := make(map[string]string)
	for i, seg := range p.segments {
		decoded, err := url.PathUnescape(parts[i])
		if err != nil {
			return nil, false
		}
		if seg.capture {
			captures[seg.value] = decoded
			continue
		}
		if decoded != seg.value {
			return nil, false
		}
	}
	return captures, true
}

// Render emits literal segments verbatim and substitutes each capture with
// its value from captures, percent-encoded for safe inclusion in a path.
// Returns false if any referenced capture name is absent.
func (p *Pattern) Render(captures map[string]string) (string, bool) {
	var b strings.Builder
	for i, seg := range p.segments {
		if i > 0 {
			b.WriteByte('/')
		}
		if !seg.capture {
			b.WriteString(seg.value)
			continue
		}
		value, ok := captures[seg.value]
		if !ok {
			return "", false
		}
		b.WriteString(url.PathEscape(value))
	}
	return b.String(), true
}

// String returns the original pattern text.
func (p *Pattern) String() string { return p.raw }

// compileTarget compiles a violation target pattern and enforces that it
// references at most the <uri> capture. Any other capture name is a
// configuration error, surfaced before any traffic is served.
func compileTarget(pattern string) (*Pattern, error) {
	p, err := CompilePattern(pattern)
	if err != nil {
		return nil, err
	}
	if _, ok := p.Render(map[string]string{"uri": ""}); !ok {
		return nil, fmt.Errorf("%w: target %q may only reference <uri>", ErrConfig, pattern)
	}
	return p, nil
}
