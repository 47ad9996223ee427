package domain

import (
	"strings"
	"time"
)

// Reserved fallback bucket for answers that could not be classified
const (
	UnsortedSubject = "Unsorted"
	UnsortedUnit    = "미분류"
)

// EmptyAnswerPlaceholder is shown in place of an answer with no text
const EmptyAnswerPlaceholder = "(no answer text, ask again to retry)"

// DayLayout is the calendar-date key format for day transcripts
const DayLayout = "2006-01-02"

// Sender identifies who wrote a transcript entry
type Sender string

const (
	SenderUser  Sender = "user"
	SenderModel Sender = "model"
)

// Entry is one side of a question/answer pair
type Entry struct {
	Sender    Sender     `json:"sender"`
	Text      string     `json:"text"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
	Collapsed bool       `json:"collapsed,omitempty"`
	Image     string     `json:"image,omitempty"`
	Memo      string     `json:"memo,omitempty"`
}

// Display returns the text a view should render for the entry.
// Model entries never render as an empty bubble.
func (e Entry) Display() string {
	if e.Sender == SenderModel && strings.TrimSpace(e.Text) == "" && e.Image == "" {
		return EmptyAnswerPlaceholder
	}
	return e.Text
}

// PairStatus tracks whether a pair has been filed into a unit
type PairStatus string

const (
	PairPending   PairStatus = "pending"
	PairCommitted PairStatus = "committed"
)

// Pair is a user question immediately followed by the model answer
type Pair struct {
	ID        string     `json:"id"`
	Day       string     `json:"day"`
	Subject   string     `json:"subject,omitempty"`
	Unit      string     `json:"unit,omitempty"`
	Status    PairStatus `json:"status"`
	Question  Entry      `json:"question"`
	Answer    Entry      `json:"answer"`
	CreatedAt time.Time  `json:"created_at"`
}

// Filed reports whether the pair belongs to a unit transcript
func (p Pair) Filed() bool {
	return p.Status == PairCommitted && p.Subject != "" && p.Unit != ""
}

// Entries flattens the pair into transcript order
func (p Pair) Entries() []Entry {
	return []Entry{p.Question, p.Answer}
}

// Flatten turns an ordered list of pairs into a flat transcript
func Flatten(pairs []Pair) []Entry {
	entries := make([]Entry, 0, len(pairs)*2)
	for _, p := range pairs {
		entries = append(entries, p.Question, p.Answer)
	}
	return entries
}

// DayOf returns the day key for a timestamp in local time
func DayOf(t time.Time) string {
	return t.Local().Format(DayLayout)
}
