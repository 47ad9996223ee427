// Package classify splits the model's classification line off an answer
// and builds the prompt that asks for it.
package classify

import (
	"encoding/json"
	"strings"

	"github.com/pbaille/studylog/internal/domain"
)

// Delimiter is the separator between the classification line and the answer
type Delimiter string

const (
	Paragraph Delimiter = "\n\n"
	Line      Delimiter = "\n"
)

// Result is a parsed answer
type Result struct {
	Subject   string `json:"subject"`
	Unit      string `json:"unit"`
	Remainder string `json:"remainder"`
	// Classified is false when the Unsorted fallback was used
	Classified bool `json:"classified"`
}

func fallback(text string) Result {
	return Result{
		Subject:   domain.UnsortedSubject,
		Unit:      domain.UnsortedUnit,
		Remainder: text,
	}
}

// Parse splits text at the first delim. A first segment of the form
// "Subject,Unit[,...]" naming a unit present in taxonomy becomes the classification
// and the rest is the answer. Anything else falls back to Unsorted with the
// entire original text as the answer.
func Parse(text string, taxonomy domain.Taxonomy, delim Delimiter) Result {
	if delim == "" {
		delim = Paragraph
	}

	head, rest, _ := strings.Cut(text, string(delim))
	fields := strings.Split(head, ",")
	if len(fields) < 2 {
		return fallback(text)
	}

	// fields past the second are ignored
	subject := domain.NormalizeName(fields[0])
	unit := domain.NormalizeName(fields[1])
	if subject == "" || unit == "" || !taxonomy.Has(subject, unit) {
		return fallback(text)
	}

	return Result{
		Subject:    subject,
		Unit:       unit,
		Remainder:  strings.TrimSpace(rest),
		Classified: true,
	}
}

type structuredAnswer struct {
	Subject *string `json:"subject"`
	Unit    *string `json:"unit"`
	Answer  *string `json:"answer"`
}

// ParseStructured reads a {"subject","unit","answer"} object. Bad JSON, a
// missing field or an empty answer falls back to Unsorted with the entire text
// as the answer. An unknown unit falls back to Unsorted with the answer field.
func ParseStructured(text string, taxonomy domain.Taxonomy) Result {
	payload := stripFence(text)

	dec := json.NewDecoder(strings.NewReader(payload))
	dec.DisallowUnknownFields()

	var ans structuredAnswer
	if err := dec.Decode(&ans); err != nil {
		return fallback(text)
	}
	if ans.Subject == nil || ans.Unit == nil || ans.Answer == nil {
		return fallback(text)
	}

	answer := strings.TrimSpace(*ans.Answer)
	if answer == "" {
		return fallback(text)
	}

	subject := domain.NormalizeName(*ans.Subject)
	unit := domain.NormalizeName(*ans.Unit)
	if !taxonomy.Has(subject, unit) {
		// the answer is still usable, only the bucket is unknown
		return fallback(answer)
	}

	return Result{Subject: subject, Unit: unit, Remainder: answer, Classified: true}
}

// stripFence removes a surrounding markdown code block if present
func stripFence(resp string) string {
	resp = strings.TrimSpace(resp)
	resp = strings.TrimPrefix(resp, "```json")
	resp = strings.TrimPrefix(resp, "```")
	resp = strings.TrimSuffix(resp, "```")
	return strings.TrimSpace(resp)
}
