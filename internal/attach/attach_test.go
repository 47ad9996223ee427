package attach

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// smallest valid PNG header is enough for content sniffing
var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "photo.png")
	require.NoError(t, os.WriteFile(path, pngBytes, 0o644))

	got, err := New().Load(context.Background(), path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(got, "data:image/png;base64,"))
}

func TestLoadRejectsNonImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("plain text"), 0o644))

	_, err := New().Load(context.Background(), path)
	assert.ErrorIs(t, err, ErrNotImage)

	_, err = New().Load(context.Background(), "data:text/plain;base64,aGk=")
	assert.ErrorIs(t, err, ErrNotImage)
}

func TestLoadDataURLPassesThrough(t *testing.T) {
	ref := "data:image/jpeg;base64,/9j/4AAQ"
	got, err := New().Load(context.Background(), "  "+ref)
	require.NoError(t, err)
	assert.Equal(t, ref, got)
}

func TestLoadURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.png" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(pngBytes)
	}))
	defer server.Close()

	got, err := New().Load(context.Background(), server.URL+"/img.png")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(got, "data:image/png;base64,"))

	_, err = New().Load(context.Background(), server.URL+"/missing.png")
	assert.ErrorContains(t, err, "HTTP 404")
}

func TestLoadTooLarge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.png")
	require.NoError(t, os.WriteFile(path, append(pngBytes, make([]byte, 64)...), 0o644))

	l := New()
	l.maxBytes = 32
	_, err := l.Load(context.Background(), path)
	assert.ErrorContains(t, err, "larger than")
}

func TestIsURL(t *testing.T) {
	assert.True(t, IsURL("https://example.com/a.png"))
	assert.True(t, IsURL("www.example.com/a.png"))
	assert.False(t, IsURL("/tmp/a.png"))
	assert.True(t, IsDataURL("data:image/png;base64,AA"))
}
