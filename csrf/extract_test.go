package csrf

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractClientToken(t *testing.T) {
	t.Parallel()

	t.Run("header wins over body", func(t *testing.T) {
		t.Parallel()

		form := url.Values{}
		form.Set(DefaultFormField, "from-form")
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(form.Encode()))
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		r.Header.Set(DefaultHeaderName, "from-header")

		require.Equal(t, "from-header", extractClientToken(r, DefaultHeaderName, DefaultFormField))
	})

	t.Run("urlencoded form field", func(t *testing.T) {
		t.Parallel()

		body := "key1=value1&" + DefaultFormField + "=the-token&key2=value2"
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		require.Equal(t, "the-token", extractClientToken(r, DefaultHeaderName, DefaultFormField))
	})

	t.Run("body stays readable downstream", func(t *testing.T) {
		t.Parallel()

		body := DefaultFormField + "=the-token&key=value"
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		_ = extractClientToken(r, DefaultHeaderName, DefaultFormField)

		rest, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.Equal(t, body, string(rest))
	})

	t.Run("no token presented", func(t *testing.T) {
		t.Parallel()

		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("key=value"))
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		require.Empty(t, extractClientToken(r, DefaultHeaderName, DefaultFormField))
	})

	t.Run("multipart part body up to line terminator", func(t *testing.T) {
		t.Parallel()

		boundary := "-----------------------------9051914041544843365972754266"
		body := boundary + "\r\n" +
			`Content-Disposition: form-data; name="something"` + "\r\n" +
			"\r\n" +
			"value\r\n" +
			boundary + "\r\n" +
			`Content-Disposition: form-data; name="` + DefaultFormField + `"` + "\r\n" +
			"\r\n" +
			"the-token\r\n" +
			boundary + "--\r\n"
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		r.Header.Set("Content-Type", "multipart/form-data; boundary="+boundary[2:])

		require.Equal(t, "the-token", extractClientToken(r, DefaultHeaderName, DefaultFormField))
	})

	t.Run("multipart without the field", func(t *testing.T) {
		t.Parallel()

		boundary := "----boundary"
		body := boundary + "\r\n" +
			`Content-Disposition: form-data; name="other"` + "\r\n" +
			"\r\n" +
			"value\r\n" +
			boundary + "--\r\n"
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		r.Header.Set("Content-Type", "multipart/form-data; boundary="+boundary[2:])

		require.Empty(t, extractClientToken(r, DefaultHeaderName, DefaultFormField))
	})

	t.Run("nil body", func(t *testing.T) {
		t.Parallel()

		r := &http.Request{Header: http.Header{}}
		require.Empty(t, extractClientToken(r, DefaultHeaderName, DefaultFormField))
	})
}
