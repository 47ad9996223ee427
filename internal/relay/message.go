package relay

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Chat roles
const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// Message is one role-tagged chat message
type Message struct {
	Role    string  `json:"role"`
	Content Content `json:"content"`
}

// Content is either plain text or a list of text/image parts.
// It encodes as a JSON string or array accordingly.
type Content struct {
	Text  string
	Parts []Part
}

// Part is a mixed-content element
type Part struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL points at an image, usually a data URL
type ImageURL struct {
	URL string `json:"url"`
}

// TextMessage builds a plain text message
func TextMessage(role, text string) Message {
	return Message{Role: role, Content: Content{Text: text}}
}

// ImageMessage builds a user message with an image followed by text
func ImageMessage(role, imageURL, text string) Message {
	return Message{Role: role, Content: Content{Parts: []Part{
		{Type: "image_url", ImageURL: &ImageURL{URL: imageURL}},
		{Type: "text", Text: text},
	}}}
}

// HasImage reports whether any message carries an image part
func HasImage(messages []Message) bool {
	for _, m := range messages {
		for _, p := range m.Content.Parts {
			if p.Type == "image_url" && p.ImageURL != nil && p.ImageURL.URL != "" {
				return true
			}
		}
	}
	return false
}

func (c Content) MarshalJSON() ([]byte, error) {
	if c.Parts != nil {
		return json.Marshal(c.Parts)
	}
	return json.Marshal(c.Text)
}

func (c *Content) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*c = Content{}
		return nil
	}
	switch data[0] {
	case '"':
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return err
		}
		*c = Content{Text: text}
		return nil
	case '[':
		var parts []Part
		if err := json.Unmarshal(data, &parts); err != nil {
			return err
		}
		*c = Content{Parts: parts}
		return nil
	}
	return fmt.Errorf("message content must be a string or an array, got %s", string(data[:1]))
}
