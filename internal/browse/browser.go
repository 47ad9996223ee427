// Package browse groups filed questions by unit for listing and search, and
// aggregates question counts for the weekly chart.
package browse

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/pbaille/studylog/internal/domain"
	"github.com/pbaille/studylog/internal/store"
)

// Source is the read side of the question store
type Source interface {
	Taxonomy(ctx context.Context) (domain.Taxonomy, error)
	Pairs(ctx context.Context, loc domain.Location) ([]domain.Pair, error)
	CountQuestions(ctx context.Context, from, to string) ([]store.DayCount, error)
}

// Question is a user entry with its index in the unit transcript
type Question struct {
	Index  int          `json:"index"`
	PairID string       `json:"pair_id"`
	Entry  domain.Entry `json:"entry"`
}

// Group is the questions of one unit
type Group struct {
	Subject   string     `json:"subject"`
	Unit      string     `json:"unit"`
	Count     int        `json:"count"`
	Questions []Question `json:"questions"`
}

// Browser reads the store without mutating it
type Browser struct {
	src Source
}

// New creates a Browser over src
func New(src Source) *Browser {
	return &Browser{src: src}
}

// fold prepares text for case-insensitive matching. Casers are stateful, so
// each call gets its own.
func fold(s string) string {
	return cases.Fold().String(norm.NFC.String(s))
}

// Questions returns one group per unit in taxonomy order. A non-empty filter
// keeps only questions whose text contains it, case-insensitively, and hides
// units left with no match.
func (b *Browser) Questions(ctx context.Context, filter string) ([]Group, error) {
	tax, err := b.src.Taxonomy(ctx)
	if err != nil {
		return nil, err
	}

	filter = strings.TrimSpace(filter)
	needle := fold(filter)

	var groups []Group
	for _, subj := range tax.Subjects {
		for _, unit := range subj.Units {
			pairs, err := b.src.Pairs(ctx, domain.UnitLocation(subj.Name, unit))
			if err != nil {
				return nil, fmt.Errorf("list %s > %s: %w", subj.Name, unit, err)
			}

			g := Group{Subject: subj.Name, Unit: unit, Questions: []Question{}}
			for i, p := range pairs {
				if needle != "" && !strings.Contains(fold(p.Question.Text), needle) {
					continue
				}
				g.Questions = append(g.Questions, Question{Index: 2 * i, PairID: p.ID, Entry: p.Question})
			}
			g.Count = len(g.Questions)

			if filter != "" && g.Count == 0 {
				continue
			}
			groups = append(groups, g)
		}
	}
	return groups, nil
}

// DayStats is the per-subject question count of one day
type DayStats struct {
	Day      string         `json:"day"`
	Subjects map[string]int `json:"subjects"`
	Total    int            `json:"total"`
}

// WeeklyCounts returns one entry per day for the days ending at today,
// oldest first. Detached questions count under the Unsorted subject.
func (b *Browser) WeeklyCounts(ctx context.Context, today time.Time, days int) ([]DayStats, error) {
	if days <= 0 {
		days = 7
	}
	first := today.AddDate(0, 0, -(days - 1))

	counts, err := b.src.CountQuestions(ctx, domain.DayOf(first), domain.DayOf(today))
	if err != nil {
		return nil, err
	}

	out := make([]DayStats, days)
	index := make(map[string]int, days)
	for i := range out {
		day := domain.DayOf(first.AddDate(0, 0, i))
		out[i] = DayStats{Day: day, Subjects: map[string]int{}}
		index[day] = i
	}
	for _, c := range counts {
		i, ok := index[c.Day]
		if !ok {
			continue
		}
		subject := c.Subject
		if subject == "" {
			subject = domain.UnsortedSubject
		}
		out[i].Subjects[subject] += c.Count
		out[i].Total += c.Count
	}
	return out, nil
}
