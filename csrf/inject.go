package csrf

import (
	"encoding/base64"
	"io"
)

// formPrefix is the byte sequence opening a form element, matched
// case-insensitively. One extra boundary byte is buffered after it to rule
// out longer tag names such as <formula>.
var formPrefix = []byte("<form")

type injectState int

const (
	stateScanning injectState = iota
	statePendingPrefix
	stateInsideTag
)

// machine is the chunk-boundary-invariant scanner that inserts a hidden
// input immediately after every form opening tag. It retains only the
// unconfirmed prefix bytes between feeds, so output is identical no matter
// how the input is split across calls, and memory stays bounded regardless
// of body size.
//
// A machine serializes a single body and must not be shared across
// goroutines.
type machine struct {
	insertion []byte
	pending   []byte // partial form-prefix match, at most len(formPrefix) bytes
	state     injectState
	quote     byte // active attribute quote inside a tag, 0 when none
}

// hiddenInput builds the literal inserted after each form tag:
// <input type="hidden" name="<field>" value="<base64url(token)>"/>.
func hiddenInput(field string, token []byte) []byte {
	encoded := base64.RawURLEncoding.EncodeToString(token)
	out := make([]byte, 0, len(`<input type="hidden" name="" value=""/>`)+len(field)+len(encoded))
	out = append(out, `<input type="hidden" name="`...)
	out = append(out, field...)
	out = append(out, `" value="`...)
	out = append(out, encoded...)
	out = append(out, `"/>`...)
	return out
}

func newMachine(field string, token []byte) *machine {
	return &machine{
		insertion: hiddenInput(field, token),
		pending:   make([]byte, 0, len(formPrefix)),
	}
}

// feed transforms chunk, appending output bytes to dst.
func (m *machine) feed(dst, chunk []byte) []byte {
	for i := 0; i < len(chunk); {
		var consumed bool
		dst, consumed = m.step(dst, chunk[i])
		if consumed {
			i++
		}
	}
	return dst
}

// finish flushes any still-buffered prefix bytes at end of stream. An
// unterminated tag is passed through unmodified.
func (m *machine) finish(dst []byte) []byte {
	dst = append(dst, m.pending...)
	m.pending = m.pending[:0]
	m.state = stateScanning
	return dst
}

// step processes one byte. It returns the grown output and whether the byte
// was consumed; an unconsumed byte is reprocessed after a state change (a
// rejected prefix may itself open a new one, as in "<fo<form>").
func (m *machine) step(dst []byte, c byte) ([]byte, bool) {
	switch m.state {
	case stateScanning:
		if c == '<' {
			m.state = statePendingPrefix
			m.pending = append(m.pending[:0], c)
			return dst, true
		}
		return append(dst, c), true

	case statePendingPrefix:
		if len(m.pending) < len(formPrefix) {
			if lower(c) == formPrefix[len(m.pending)] {
				m.pending = append(m.pending, c)
				return dst, true
			}
			dst = append(dst, m.pending...)
			m.pending = m.pending[:0]
			m.state = stateScanning
			return dst, false
		}
		// Full prefix matched; c decides whether this really is a form tag.
		switch {
		case c == '>':
			dst = append(dst, m.pending...)
			dst = append(dst, '>')
			dst = append(dst, m.insertion...)
			m.pending = m.pending[:0]
			m.state = stateScanning
			return dst, true
		case c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '/':
			dst = append(dst, m.pending...)
			dst = append(dst, c)
			m.pending = m.pending[:0]
			m.state = stateInsideTag
			m.quote = 0
			return dst, true
		default:
			// Longer tag name, e.g. <formula>.
			dst = append(dst, m.pending...)
			m.pending = m.pending[:0]
			m.state = stateScanning
			return dst, false
		}

	default: // stateInsideTag
		dst = append(dst, c)
		switch {
		case m.quote != 0:
			if c == m.quote {
				m.quote = 0
			}
		case c == '"' || c == '\'':
			m.quote = c
		case c == '>':
			dst = append(dst, m.insertion...)
			m.state = stateScanning
		}
		return dst, true
	}
}

func lower(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c + 'a' - 'A'
	}
	return c
}

// Injector wraps a byte source and yields the same stream with a hidden
// token input inserted after every form opening tag. It reads lazily: each
// Read pulls at most one chunk from the source, so memory use is O(read
// size), independent of body length. I/O errors from the source propagate
// unchanged.
//
// An Injector is owned by the single goroutine serializing one response
// body; it must not be shared.
type Injector struct {
	src io.Reader
	m   *machine
	buf []byte
	out []byte
	err error
}

// NewInjector returns an Injector inserting the raw token bytes (base64url
// encoded on the wire) under the given form field name into everything read
// from src.
func NewInjector(src io.Reader, field string, token []byte) *Injector {
	return &Injector{
		src: src,
		m:   newMachine(field, token),
		buf: make([]byte, 4096),
	}
}

// Read implements io.Reader.
func (inj *Injector) Read(p []byte) (int, error) {
	for len(inj.out) == 0 {
		if inj.err != nil {
			return 0, inj.err
		}
		n, err := inj.src.Read(inj.buf)
		inj.out = inj.m.feed(inj.out[:0], inj.buf[:n])
		if err != nil {
			if err == io.EOF {
				inj.out = inj.m.finish(inj.out)
			}
			inj.err = err
		}
	}
	n := copy(p, inj.out)
	inj.out = inj.out[n:]
	return n, nil
}

// InjectToken is the eager counterpart of Injector for small bodies of known
// size: it transforms body in one pass and returns the result. The output
// for a document with N form tags contains N independently injected copies
// of the same markup.
func InjectToken(body []byte, field string, token []byte) []byte {
	m := newMachine(field, token)
	out := m.feed(make([]byte, 0, len(body)+len(m.insertion)), body)
	return m.finish(out)
}
