// Package attach turns an image reference (local path, http(s) URL or data
// URL) into the data URL sent with a question.
package attach

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// MaxImageBytes caps what a single attachment may weigh
const MaxImageBytes = 5 * 1024 * 1024

// ErrNotImage is returned when the content is not an image
var ErrNotImage = errors.New("not an image")

// Loader reads attachments from disk or the network
type Loader struct {
	client   *http.Client
	maxBytes int64
}

// New creates a Loader with a 30s fetch timeout
func New() *Loader {
	return &Loader{
		client:   &http.Client{Timeout: 30 * time.Second},
		maxBytes: MaxImageBytes,
	}
}

// Load resolves ref into a base64 data URL
func (l *Loader) Load(ctx context.Context, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	switch {
	case ref == "":
		return "", fmt.Errorf("empty image reference")
	case IsDataURL(ref):
		if !strings.HasPrefix(ref, "data:image/") {
			return "", fmt.Errorf("data url: %w", ErrNotImage)
		}
		return ref, nil
	case IsURL(ref):
		data, err := l.fetch(ctx, ref)
		if err != nil {
			return "", err
		}
		return encode(data)
	default:
		data, err := l.readFile(ref)
		if err != nil {
			return "", err
		}
		return encode(data)
	}
}

// IsURL checks if a string looks like a URL
func IsURL(s string) bool {
	s = strings.TrimSpace(s)
	return strings.HasPrefix(s, "http://") ||
		strings.HasPrefix(s, "https://") ||
		strings.HasPrefix(s, "www.")
}

// IsDataURL reports whether s is already a data URL
func IsDataURL(s string) bool {
	return strings.HasPrefix(strings.TrimSpace(s), "data:")
}

func (l *Loader) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme == "" {
		u, err = url.Parse("https://" + rawURL)
		if err != nil {
			return nil, fmt.Errorf("invalid URL: %w", err)
		}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "studylog/1.0")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}
	return l.readLimited(resp.Body)
}

func (l *Loader) readFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()
	return l.readLimited(f)
}

// readLimited reads at most maxBytes and fails if there is more
func (l *Loader) readLimited(r io.Reader) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, l.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if int64(len(body)) > l.maxBytes {
		return nil, fmt.Errorf("image larger than %d bytes", l.maxBytes)
	}
	return body, nil
}

func encode(data []byte) (string, error) {
	mime := http.DetectContentType(data)
	if !strings.HasPrefix(mime, "image/") {
		return "", fmt.Errorf("detected %s: %w", mime, ErrNotImage)
	}

	var buf bytes.Buffer
	buf.WriteString("data:")
	buf.WriteString(mime)
	buf.WriteString(";base64,")
	buf.WriteString(base64.StdEncoding.EncodeToString(data))
	return buf.String(), nil
}
