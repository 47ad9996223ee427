package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNoAPIKey is returned when the client is built without credentials
var ErrNoAPIKey = errors.New("OPENAI_API_KEY environment variable not set")

// UpstreamError is a non-success response from the completions API.
// Message is the human-readable text shown to the user.
type UpstreamError struct {
	Status  int
	Message string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("api error (status %d): %s", e.Status, e.Message)
}

// upstreamError extracts error.message from the payload, else uses the raw body
func upstreamError(status int, body []byte) *UpstreamError {
	msg := strings.TrimSpace(string(body))

	var payload struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && len(payload.Error) > 0 {
		var obj struct {
			Message string `json:"message"`
		}
		var str string
		switch {
		case json.Unmarshal(payload.Error, &obj) == nil && obj.Message != "":
			msg = obj.Message
		case json.Unmarshal(payload.Error, &str) == nil && str != "":
			msg = str
		}
	}
	if msg == "" {
		msg = fmt.Sprintf("request failed with status %d", status)
	}
	return &UpstreamError{Status: status, Message: msg}
}

// UserMessage returns the text to surface for err: the upstream message
// when err wraps an UpstreamError, else err's own text.
func UserMessage(err error) string {
	var up *UpstreamError
	if errors.As(err, &up) {
		return up.Message
	}
	return err.Error()
}
