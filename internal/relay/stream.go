package relay

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"
)

var doneMarker = []byte("[DONE]")

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Stream is a lazy, finite, non-restartable sequence of answer fragments.
// Fragments must be concatenated in arrival order.
type Stream struct {
	body   io.ReadCloser
	reader *sseReader
	client *Client

	mu      sync.Mutex
	done    bool
	dropped int
}

func newStream(body io.ReadCloser, c *Client) *Stream {
	return &Stream{body: body, reader: newSSEReader(body), client: c}
}

// Next returns the next non-empty text fragment. It returns io.EOF after
// the [DONE] marker or the end of the body. Malformed fragments are skipped.
func (s *Stream) Next() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done {
		return "", io.EOF
	}

	for {
		data, err := s.reader.readData()
		if errors.Is(err, io.EOF) {
			s.finish(nil)
			return "", io.EOF
		}
		if err != nil {
			err = fmt.Errorf("read stream: %w", err)
			s.finish(err)
			return "", err
		}

		if bytes.Equal(data, doneMarker) {
			s.finish(nil)
			return "", io.EOF
		}

		var chunk streamChunk
		if err := json.Unmarshal(data, &chunk); err != nil {
			s.dropped++
			s.client.metrics.FragmentsDropped.Inc()
			s.client.logger.Debug("dropped malformed stream fragment",
				zap.Error(err),
				zap.String("fragment", truncate(string(data), 120)),
			)
			continue
		}
		if chunk.Error != nil {
			err := &UpstreamError{Status: 200, Message: chunk.Error.Message}
			s.finish(err)
			return "", err
		}
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
			continue
		}
		return chunk.Choices[0].Delta.Content, nil
	}
}

// Dropped reports how many malformed fragments were skipped so far
func (s *Stream) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Close releases the response body. Safe to call more than once.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return nil
	}
	s.done = true
	return s.body.Close()
}

func (s *Stream) finish(err error) {
	s.done = true
	_ = s.body.Close()
	s.client.record("stream", err)
}
