package csrf

import (
	"bytes"
	"net/http"
	"strconv"
	"strings"
)

// injectingWriter pipes a response body through the injection machine. The
// decision whether to rewrite at all is taken once, from the headers visible
// at the first write: only text/html bodies are touched, everything else
// passes through untouched.
//
// Bodies with a declared Content-Length at or under maxBuffer are buffered
// and rewritten eagerly so the corrected length can be sent. Larger or
// unknown-length bodies are streamed through the machine with the
// Content-Length header dropped, keeping memory bounded by the write size.
type injectingWriter struct {
	rw        http.ResponseWriter
	m         *machine
	maxBuffer int64

	decided     bool
	inject      bool
	eager       bool
	status      int
	wroteHeader bool
	buf         bytes.Buffer
	scratch     []byte
}

func newInjectingWriter(rw http.ResponseWriter, field string, token []byte, maxBuffer int64) *injectingWriter {
	return &injectingWriter{rw: rw, m: newMachine(field, token), maxBuffer: maxBuffer}
}

func (w *injectingWriter) Header() http.Header { return w.rw.Header() }

func (w *injectingWriter) WriteHeader(status int) {
	w.decide()
	w.status = status
	if w.inject && w.eager {
		// Held back until finish so Content-Length can be corrected.
		return
	}
	w.sendHeader()
}

func (w *injectingWriter) Write(b []byte) (int, error) {
	if !w.decided {
		w.decide()
	}
	if !w.inject {
		return w.rw.Write(b)
	}
	if w.eager {
		if int64(w.buf.Len()+len(b)) > w.maxBuffer {
			// Declared length was wrong; fall back to streaming.
			w.spill()
			return w.stream(b)
		}
		return w.buf.Write(b)
	}
	return w.stream(b)
}

// finish completes the response once the handler returns: eager bodies are
// rewritten and sent in one piece, streamed bodies get the machine's pending
// tail flushed.
func (w *injectingWriter) finish() error {
	if !w.decided {
		w.decide()
	}
	if !w.inject {
		return nil
	}
	if w.eager {
		out := w.m.feed(make([]byte, 0, w.buf.Len()+len(w.m.insertion)), w.buf.Bytes())
		out = w.m.finish(out)
		w.rw.Header().Set("Content-Length", strconv.Itoa(len(out)))
		w.sendHeader()
		_, err := w.rw.Write(out)
		return err
	}
	w.sendHeader()
	tail := w.m.finish(w.scratch[:0])
	if len(tail) == 0 {
		return nil
	}
	_, err := w.rw.Write(tail)
	return err
}

// Flush forwards to the underlying writer when it supports it. Bytes still
// held in the machine's pending buffer stay put: they are part of an
// unconfirmed tag prefix and cannot be emitted yet.
func (w *injectingWriter) Flush() {
	if w.eager {
		return
	}
	if f, ok := w.rw.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *injectingWriter) decide() {
	if w.decided {
		return
	}
	w.decided = true

	mt := w.rw.Header().Get("Content-Type")
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = mt[:i]
	}
	if !strings.EqualFold(strings.TrimSpace(mt), "text/html") {
		return
	}
	w.inject = true

	if cl := w.rw.Header().Get("Content-Length"); cl != "" {
		if n, err := strconv.ParseInt(cl, 10, 64); err == nil && n <= w.maxBuffer {
			w.eager = true
			return
		}
	}
	// Streaming rewrite changes the length unpredictably.
	w.rw.Header().Del("Content-Length")
}

func (w *injectingWriter) stream(b []byte) (int, error) {
	w.sendHeader()
	w.scratch = w.m.feed(w.scratch[:0], b)
	if _, err := w.rw.Write(w.scratch); err != nil {
		return 0, err
	}
	return len(b), nil
}

// spill converts an eager writer to streaming after its declared length
// turned out to be wrong, replaying the buffered bytes through the machine.
func (w *injectingWriter) spill() {
	w.eager = false
	w.rw.Header().Del("Content-Length")
	w.sendHeader()
	buffered := w.buf.Bytes()
	w.scratch = w.m.feed(w.scratch[:0], buffered)
	w.rw.Write(w.scratch)
	w.buf.Reset()
}

func (w *injectingWriter) sendHeader() {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true
	if w.status == 0 {
		w.status = http.StatusOK
	}
	w.rw.WriteHeader(w.status)
}
