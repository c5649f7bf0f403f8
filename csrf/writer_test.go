package csrf

import (
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInjectingWriterSpill(t *testing.T) {
	t.Parallel()

	// The handler declares a small Content-Length but writes past it; the
	// writer must fall back to streaming instead of truncating.
	token := []byte("spill-test-token")
	body := strings.Repeat("x", 64) + "<form>" + strings.Repeat("y", 64)

	rec := httptest.NewRecorder()
	w := newInjectingWriter(rec, DefaultFormField, token, 16)
	w.Header().Set("Content-Type", "text/html")
	w.Header().Set("Content-Length", strconv.Itoa(10))

	for i := 0; i < len(body); i += 8 {
		end := min(i+8, len(body))
		_, err := w.Write([]byte(body[i:end]))
		require.NoError(t, err)
	}
	require.NoError(t, w.finish())

	want := string(InjectToken([]byte(body), DefaultFormField, token))
	require.Equal(t, want, rec.Body.String())
	require.Empty(t, rec.Result().Header.Get("Content-Length"))
}

func TestInjectingWriterExplicitStatus(t *testing.T) {
	t.Parallel()

	token := []byte("status-test-token")
	rec := httptest.NewRecorder()
	w := newInjectingWriter(rec, DefaultFormField, token, DefaultMaxBufferSize)
	w.Header().Set("Content-Type", "text/html")
	w.Header().Set("Content-Length", strconv.Itoa(len("<form></form>")))
	w.WriteHeader(418)
	_, err := w.Write([]byte("<form></form>"))
	require.NoError(t, err)
	require.NoError(t, w.finish())

	require.Equal(t, 418, rec.Code)
	require.Equal(t, string(InjectToken([]byte("<form></form>"), DefaultFormField, token)), rec.Body.String())
}
