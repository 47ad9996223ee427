package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pbaille/studylog/internal/domain"
)

// Key names of the browser local-storage layout
const (
	legacyMapKey      = "question_unit_map"
	legacyDayPrefix   = "chat_"
	legacyUnitPrefix  = "question_by_unit_"
	legacyModelSender = "gpt"
)

// LegacySnapshot is a dump of browser local storage: key to stored value.
// Values may be the JSON document itself or a JSON string holding it.
type LegacySnapshot map[string]json.RawMessage

// ImportReport counts what ImportLegacy wrote
type ImportReport struct {
	Subjects int `json:"subjects"`
	Units    int `json:"units"`
	Pairs    int `json:"pairs"`
	Detached int `json:"detached"`
}

type legacyMessage struct {
	Sender    string `json:"sender"`
	Text      string `json:"text"`
	Date      string `json:"date"`
	Collapsed bool   `json:"collapsed"`
	Image     string `json:"image"`
	Memo      string `json:"memo"`
}

func (m legacyMessage) entry(sender domain.Sender) domain.Entry {
	e := domain.Entry{
		Sender:    sender,
		Text:      m.Text,
		Collapsed: m.Collapsed,
		Image:     m.Image,
		Memo:      m.Memo,
	}
	if t, err := time.Parse(time.RFC3339Nano, m.Date); err == nil {
		e.Timestamp = &t
	}
	return e
}

// legacyPairs groups a flat message list into (user, model) pairs.
// A user message with no following answer gets an empty one; stray answers are skipped.
func legacyPairs(msgs []legacyMessage) [][2]legacyMessage {
	var out [][2]legacyMessage
	for i := 0; i < len(msgs); i++ {
		if msgs[i].Sender != string(domain.SenderUser) {
			continue
		}
		pair := [2]legacyMessage{msgs[i], {Sender: legacyModelSender}}
		if i+1 < len(msgs) && msgs[i+1].Sender != string(domain.SenderUser) {
			pair[1] = msgs[i+1]
			i++
		}
		out = append(out, pair)
	}
	return out
}

func decodeLegacy(raw json.RawMessage, v any) error {
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, `"`) {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return err
		}
		return json.Unmarshal([]byte(inner), v)
	}
	return json.Unmarshal(raw, v)
}

// legacyUnitKey finds the stored key of a unit under either historical
// convention: the raw subject name or the subject with whitespace removed.
func legacyUnitKey(snap LegacySnapshot, subject, unit string) (string, bool) {
	candidates := []string{
		legacyUnitPrefix + subject + "_" + unit,
		legacyUnitPrefix + strings.Join(strings.Fields(subject), "") + "_" + unit,
	}
	for _, key := range candidates {
		if _, ok := snap[key]; ok {
			return key, true
		}
	}
	return "", false
}

type legacyUnitPair struct {
	subject, unit string
	pair          [2]legacyMessage
	matched       bool
}

func joinKey(m legacyMessage) string {
	return m.Text + "\x00" + m.Date
}

// ImportLegacy copies a browser local-storage snapshot into the store in one
// transaction. Day entries are joined to unit entries by question text and
// timestamp. Day pairs with no unit match are imported detached; unit pairs
// with no day match are placed on the day of their timestamp.
func (s *Store) ImportLegacy(ctx context.Context, snap LegacySnapshot) (*ImportReport, error) {
	var tax domain.Taxonomy
	if raw, ok := snap[legacyMapKey]; ok {
		if err := decodeLegacy(raw, &tax); err != nil {
			return nil, fmt.Errorf("%w: read %s: %v", ErrInvalid, legacyMapKey, err)
		}
	}
	if _, ok := legacyUnitKey(snap, domain.UnsortedSubject, domain.UnsortedUnit); ok && !tax.Has(domain.UnsortedSubject, domain.UnsortedUnit) {
		tax.Subjects = append(tax.Subjects, domain.Subject{Name: domain.UnsortedSubject, Units: []string{domain.UnsortedUnit}})
	}

	// unit transcripts, in taxonomy order
	var unitPairs []*legacyUnitPair
	byJoin := map[string][]*legacyUnitPair{}
	for _, subj := range tax.Subjects {
		for _, unit := range subj.Units {
			key, ok := legacyUnitKey(snap, subj.Name, unit)
			if !ok {
				continue
			}
			var msgs []legacyMessage
			if err := decodeLegacy(snap[key], &msgs); err != nil {
				return nil, fmt.Errorf("%w: read %s: %v", ErrInvalid, key, err)
			}
			for _, pair := range legacyPairs(msgs) {
				up := &legacyUnitPair{
					subject: domain.NormalizeName(subj.Name),
					unit:    domain.NormalizeName(unit),
					pair:    pair,
				}
				unitPairs = append(unitPairs, up)
				k := joinKey(pair[0])
				byJoin[k] = append(byJoin[k], up)
			}
		}
	}

	// day transcripts, oldest day first
	var days []string
	for key := range snap {
		if day, ok := strings.CutPrefix(key, legacyDayPrefix); ok {
			days = append(days, day)
		}
	}
	sort.Strings(days)

	type planned struct {
		day  string
		pair [2]legacyMessage
		unit *legacyUnitPair
	}
	var plan []planned
	for _, day := range days {
		if validDay(day) != nil {
			continue
		}
		var msgs []legacyMessage
		if err := decodeLegacy(snap[legacyDayPrefix+day], &msgs); err != nil {
			return nil, fmt.Errorf("%w: read %s%s: %v", ErrInvalid, legacyDayPrefix, day, err)
		}
		for _, pair := range legacyPairs(msgs) {
			p := planned{day: day, pair: pair}
			k := joinKey(pair[0])
			for _, up := range byJoin[k] {
				if !up.matched {
					up.matched = true
					p.unit = up
					break
				}
			}
			plan = append(plan, p)
		}
	}
	for _, up := range unitPairs {
		if up.matched {
			continue
		}
		up.matched = true
		day := s.dayFor(up.pair[0].entry(domain.SenderUser))
		plan = append(plan, planned{day: day, pair: up.pair, unit: up})
	}

	report := &ImportReport{}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, subj := range tax.Subjects {
			name := domain.NormalizeName(subj.Name)
			if name == "" {
				continue
			}
			ok, err := subjectExists(ctx, tx, name)
			if err != nil {
				return err
			}
			if !ok {
				if err := insertSubject(ctx, tx, name); err != nil {
					return err
				}
				report.Subjects++
			}
			for _, unit := range subj.Units {
				unit = domain.NormalizeName(unit)
				if unit == "" {
					continue
				}
				ok, err := unitExists(ctx, tx, name, unit)
				if err != nil {
					return err
				}
				if !ok {
					if err := insertUnit(ctx, tx, name, unit); err != nil {
						return err
					}
					report.Units++
				}
			}
		}

		// unit positions follow the order of the legacy unit lists
		unitPos := map[*legacyUnitPair]int64{}
		next := map[[2]string]int64{}
		for _, up := range unitPairs {
			k := [2]string{up.subject, up.unit}
			if _, ok := next[k]; !ok {
				base, err := nextUnitPos(ctx, tx, up.subject, up.unit)
				if err != nil {
					return err
				}
				next[k] = int64(base)
			}
			unitPos[up] = next[k]
			next[k]++
		}

		now := s.now()
		for _, p := range plan {
			rec := pairRecord{pair: domain.Pair{
				ID:        uuid.New().String(),
				Day:       p.day,
				Status:    domain.PairCommitted,
				Question:  p.pair[0].entry(domain.SenderUser),
				Answer:    p.pair[1].entry(domain.SenderModel),
				CreatedAt: now,
			}}
			if p.unit != nil {
				rec.pair.Subject, rec.pair.Unit = p.unit.subject, p.unit.unit
				rec.unitPos = sql.NullInt64{Int64: unitPos[p.unit], Valid: true}
			} else {
				report.Detached++
			}
			if err := insertPair(ctx, tx, rec); err != nil {
				return err
			}
			report.Pairs++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}
