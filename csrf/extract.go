package csrf

import (
	"bytes"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
)

// peekLimit bounds how much of a request body is inspected for the token
// field. The token is expected near the front of the form payload.
const peekLimit = 64 << 10

// extractClientToken returns the encoded token presented by the client, in
// priority order: header, urlencoded form field, multipart form part. The
// request body is peeked non-destructively and restored so downstream
// handlers can still consume it. An empty string means no token was
// presented.
func extractClientToken(r *http.Request, headerName, formField string) string {
	if h := r.Header.Get(headerName); h != "" {
		return h
	}
	if r.Body == nil {
		return ""
	}

	peeked, err := io.ReadAll(io.LimitReader(r.Body, peekLimit))
	rest := r.Body
	r.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(peeked), rest), rest}
	if err != nil {
		return ""
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		return multipartToken(peeked, formField)
	}
	return formToken(peeked, formField)
}

// formToken scans an x-www-form-urlencoded payload for the token field.
func formToken(body []byte, formField string) string {
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return ""
	}
	return values.Get(formField)
}

// multipartToken locates the form part whose field name equals formField and
// returns its literal part body up to the first line terminator. The scan is
// line-oriented rather than a full multipart parse: the token value is a
// single base64url line, and anything else in that position simply fails
// verification downstream.
func multipartToken(body []byte, formField string) string {
	needle := `name="` + formField + `"`
	lines := splitLines(body)
	for i, line := range lines {
		if !strings.HasPrefix(line, "Content-Disposition:") || !strings.Contains(line, needle) {
			continue
		}
		if i+1 < len(lines) {
			return lines[i+1]
		}
		return ""
	}
	return ""
}

// splitLines splits on CR or LF and drops empty lines, mirroring how the
// part value follows its disposition header with blank separators between.
func splitLines(body []byte) []string {
	raw := strings.FieldsFunc(string(body), func(r rune) bool {
		return r == '\n' || r == '\r'
	})
	return raw
}
