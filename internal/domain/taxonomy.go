package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeName is the single key convention for subject and unit names:
// outer whitespace trimmed, Unicode composed to NFC.
func NormalizeName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

// Subject is one taxonomy subject with its ordered units
type Subject struct {
	Name  string   `json:"name"`
	Units []string `json:"units"`
}

// Taxonomy is the ordered subject -> units map.
// It encodes to JSON as an object whose key order is the subject order.
type Taxonomy struct {
	Subjects []Subject
}

// Has reports whether unit is listed under subject
func (t Taxonomy) Has(subject, unit string) bool {
	subject, unit = NormalizeName(subject), NormalizeName(unit)
	for _, s := range t.Subjects {
		if s.Name != subject {
			continue
		}
		for _, u := range s.Units {
			if u == unit {
				return true
			}
		}
		return false
	}
	return false
}

// HasSubject reports whether the subject exists
func (t Taxonomy) HasSubject(subject string) bool {
	subject = NormalizeName(subject)
	for _, s := range t.Subjects {
		if s.Name == subject {
			return true
		}
	}
	return false
}

// Units returns the units of a subject, nil if unknown
func (t Taxonomy) Units(subject string) []string {
	subject = NormalizeName(subject)
	for _, s := range t.Subjects {
		if s.Name == subject {
			return s.Units
		}
	}
	return nil
}

// Candidates lists every "Subject > Unit" pair in order
func (t Taxonomy) Candidates() []string {
	var out []string
	for _, s := range t.Subjects {
		for _, u := range s.Units {
			out = append(out, s.Name+" > "+u)
		}
	}
	return out
}

// IsReserved reports whether subject (and unit, if given) is the Unsorted bucket
func IsReserved(subject, unit string) bool {
	if NormalizeName(subject) != UnsortedSubject {
		return false
	}
	return unit == "" || NormalizeName(unit) == UnsortedUnit
}

func (t Taxonomy) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, s := range t.Subjects {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(s.Name)
		if err != nil {
			return nil, err
		}
		units := s.Units
		if units == nil {
			units = []string{}
		}
		val, err := json.Marshal(units)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a subject -> units object and keeps key order
func (t *Taxonomy) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("read taxonomy: %w", err)
	}
	if tok == nil {
		t.Subjects = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("read taxonomy: expected object, got %v", tok)
	}

	var subjects []Subject
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("read subject: %w", err)
		}
		name, _ := keyTok.(string)
		var units []string
		if err := dec.Decode(&units); err != nil {
			return fmt.Errorf("read units of %q: %w", name, err)
		}
		subjects = append(subjects, Subject{Name: name, Units: units})
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("read taxonomy: %w", err)
	}
	t.Subjects = subjects
	return nil
}
