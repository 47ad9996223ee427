package domain

import "fmt"

// Location addresses a transcript: either a calendar day or a (subject, unit)
type Location struct {
	Day     string `json:"day,omitempty"`
	Subject string `json:"subject,omitempty"`
	Unit    string `json:"unit,omitempty"`
}

// DayLocation addresses the transcript of one calendar day
func DayLocation(day string) Location {
	return Location{Day: day}
}

// UnitLocation addresses the transcript filed under subject/unit
func UnitLocation(subject, unit string) Location {
	return Location{Subject: NormalizeName(subject), Unit: NormalizeName(unit)}
}

// IsDay reports whether the location is a day transcript
func (l Location) IsDay() bool {
	return l.Day != ""
}

// IsUnit reports whether the location is a unit transcript
func (l Location) IsUnit() bool {
	return l.Day == "" && l.Subject != "" && l.Unit != ""
}

// Valid reports whether exactly one kind of location is set
func (l Location) Valid() bool {
	if l.IsDay() {
		return l.Subject == "" && l.Unit == ""
	}
	return l.IsUnit()
}

func (l Location) String() string {
	if l.IsDay() {
		return "day " + l.Day
	}
	return fmt.Sprintf("%s > %s", l.Subject, l.Unit)
}
