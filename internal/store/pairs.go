package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pbaille/studylog/internal/domain"
)

const pairColumns = `id, day, day_pos, subject, unit, status, created_at,
	q_text, q_ts, q_collapsed, q_image, q_memo,
	a_text, a_ts, a_collapsed, a_image, a_memo`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPair(sc rowScanner) (domain.Pair, error) {
	var (
		p                 domain.Pair
		dayPos            int
		subject, unit     sql.NullString
		status, created   string
		qTS, aTS          sql.NullString
		qCollapsed, aColl int
	)
	err := sc.Scan(
		&p.ID, &p.Day, &dayPos, &subject, &unit, &status, &created,
		&p.Question.Text, &qTS, &qCollapsed, &p.Question.Image, &p.Question.Memo,
		&p.Answer.Text, &aTS, &aColl, &p.Answer.Image, &p.Answer.Memo,
	)
	if err != nil {
		return domain.Pair{}, err
	}

	p.Subject = subject.String
	p.Unit = unit.String
	p.Status = domain.PairStatus(status)
	if t := parseTime(sql.NullString{String: created, Valid: true}); t != nil {
		p.CreatedAt = *t
	}
	p.Question.Sender = domain.SenderUser
	p.Question.Timestamp = parseTime(qTS)
	p.Question.Collapsed = qCollapsed != 0
	p.Answer.Sender = domain.SenderModel
	p.Answer.Timestamp = parseTime(aTS)
	p.Answer.Collapsed = aColl != 0
	return p, nil
}

func queryPairs(ctx context.Context, q querier, query string, args ...any) ([]domain.Pair, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query pairs: %w", err)
	}
	defer rows.Close()

	var pairs []domain.Pair
	for rows.Next() {
		p, err := scanPair(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pair: %w", err)
		}
		pairs = append(pairs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query pairs: %w", err)
	}
	return pairs, nil
}

func getPair(ctx context.Context, q querier, id string) (domain.Pair, error) {
	p, err := scanPair(q.QueryRowContext(ctx, "SELECT "+pairColumns+" FROM pairs WHERE id = ?", id))
	if isNoRows(err) {
		return domain.Pair{}, fmt.Errorf("pair %s: %w", id, ErrNoPair)
	}
	if err != nil {
		return domain.Pair{}, fmt.Errorf("get pair: %w", err)
	}
	return p, nil
}

func locationWhere(loc domain.Location) (string, []any, string, error) {
	switch {
	case !loc.Valid():
		return "", nil, "", fmt.Errorf("%w: location %+v", ErrInvalid, loc)
	case loc.IsDay():
		return "day = ?", []any{loc.Day}, "day_pos", nil
	default:
		return "subject = ? AND unit = ? AND status = 'committed'",
			[]any{loc.Subject, loc.Unit}, "unit_pos", nil
	}
}

// pairAt returns the pair containing the flattened entry index of loc
func pairAt(ctx context.Context, q querier, loc domain.Location, index int) (domain.Pair, error) {
	if index < 0 {
		return domain.Pair{}, fmt.Errorf("index %d: %w", index, ErrNoEntry)
	}
	where, args, order, err := locationWhere(loc)
	if err != nil {
		return domain.Pair{}, err
	}

	query := "SELECT " + pairColumns + " FROM pairs WHERE " + where + " ORDER BY " + order + " LIMIT 1 OFFSET ?"
	p, err := scanPair(q.QueryRowContext(ctx, query, append(args, index/2)...))
	if isNoRows(err) {
		return domain.Pair{}, fmt.Errorf("%s index %d: %w", loc, index, ErrNoEntry)
	}
	if err != nil {
		return domain.Pair{}, fmt.Errorf("find pair: %w", err)
	}
	return p, nil
}

func nextDayPos(ctx context.Context, q querier, day string) (int, error) {
	var pos int
	err := q.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(day_pos), -1) + 1 FROM pairs WHERE day = ?", day,
	).Scan(&pos)
	if err != nil {
		return 0, fmt.Errorf("next day position: %w", err)
	}
	return pos, nil
}

func nextUnitPos(ctx context.Context, q querier, subject, unit string) (int, error) {
	var pos int
	err := q.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(unit_pos), -1) + 1 FROM pairs WHERE subject = ? AND unit = ?", subject, unit,
	).Scan(&pos)
	if err != nil {
		return 0, fmt.Errorf("next unit position: %w", err)
	}
	return pos, nil
}

func validDay(day string) error {
	if _, err := time.ParseInLocation(domain.DayLayout, day, time.Local); err != nil {
		return fmt.Errorf("%w: day %q", ErrInvalid, day)
	}
	return nil
}

func (s *Store) dayFor(e domain.Entry) string {
	if e.Timestamp != nil && !e.Timestamp.IsZero() {
		return domain.DayOf(*e.Timestamp)
	}
	return domain.DayOf(s.now())
}

type pairRecord struct {
	pair    domain.Pair
	unitPos sql.NullInt64
}

func insertPair(ctx context.Context, q querier, rec pairRecord) error {
	p := rec.pair
	dayPos, err := nextDayPos(ctx, q, p.Day)
	if err != nil {
		return err
	}

	var subject, unit sql.NullString
	if p.Subject != "" && p.Unit != "" {
		subject = sql.NullString{String: p.Subject, Valid: true}
		unit = sql.NullString{String: p.Unit, Valid: true}
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO pairs (`+pairColumns+`, unit_pos)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Day, dayPos, subject, unit, string(p.Status), p.CreatedAt.Format(time.RFC3339Nano),
		p.Question.Text, formatTime(p.Question.Timestamp), boolInt(p.Question.Collapsed), p.Question.Image, p.Question.Memo,
		p.Answer.Text, formatTime(p.Answer.Timestamp), boolInt(p.Answer.Collapsed), p.Answer.Image, p.Answer.Memo,
		rec.unitPos,
	)
	if err != nil {
		return fmt.Errorf("insert pair: %w", err)
	}
	return nil
}

func normalizeEntry(e domain.Entry, sender domain.Sender) domain.Entry {
	e.Sender = sender
	return e
}

// AppendPair stores a committed pair at the end of its day transcript and of
// the (subject, unit) transcript. An unknown unit files it under Unsorted.
func (s *Store) AppendPair(ctx context.Context, subject, unit string, user, model domain.Entry) (*domain.Pair, error) {
	p := domain.Pair{
		ID:        uuid.New().String(),
		Day:       s.dayFor(user),
		Status:    domain.PairCommitted,
		Question:  normalizeEntry(user, domain.SenderUser),
		Answer:    normalizeEntry(model, domain.SenderModel),
		CreatedAt: s.now(),
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		p.Subject, p.Unit, err = resolveUnit(ctx, tx, subject, unit)
		if err != nil {
			return err
		}
		pos, err := nextUnitPos(ctx, tx, p.Subject, p.Unit)
		if err != nil {
			return err
		}
		return insertPair(ctx, tx, pairRecord{pair: p, unitPos: sql.NullInt64{Int64: int64(pos), Valid: true}})
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// BeginPair stores a pending pair with an empty answer at the end of the day
// transcript. It is not part of any unit transcript until committed.
// An empty day is derived from the question timestamp.
func (s *Store) BeginPair(ctx context.Context, day string, user domain.Entry) (*domain.Pair, error) {
	if day == "" {
		day = s.dayFor(user)
	}
	if err := validDay(day); err != nil {
		return nil, err
	}

	p := domain.Pair{
		ID:        uuid.New().String(),
		Day:       day,
		Status:    domain.PairPending,
		Question:  normalizeEntry(user, domain.SenderUser),
		Answer:    domain.Entry{Sender: domain.SenderModel},
		CreatedAt: s.now(),
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		return insertPair(ctx, tx, pairRecord{pair: p})
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CommitPair replaces the placeholder answer of a pending pair and files the
// pair under (subject, unit), falling back to Unsorted.
func (s *Store) CommitPair(ctx context.Context, id, subject, unit string, answer domain.Entry) (*domain.Pair, error) {
	var p domain.Pair
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		p, err = getPair(ctx, tx, id)
		if err != nil {
			return err
		}
		if p.Status != domain.PairPending {
			return fmt.Errorf("pair %s is not pending: %w", id, ErrNoPair)
		}

		p.Subject, p.Unit, err = resolveUnit(ctx, tx, subject, unit)
		if err != nil {
			return err
		}
		pos, err := nextUnitPos(ctx, tx, p.Subject, p.Unit)
		if err != nil {
			return err
		}

		p.Answer = normalizeEntry(answer, domain.SenderModel)
		p.Status = domain.PairCommitted
		_, err = tx.ExecContext(ctx, `
			UPDATE pairs SET subject = ?, unit = ?, unit_pos = ?, status = ?,
				a_text = ?, a_ts = ?, a_collapsed = ?, a_image = ?, a_memo = ?
			WHERE id = ?`,
			p.Subject, p.Unit, pos, string(p.Status),
			p.Answer.Text, formatTime(p.Answer.Timestamp), boolInt(p.Answer.Collapsed), p.Answer.Image, p.Answer.Memo,
			id,
		)
		if err != nil {
			return fmt.Errorf("commit pair: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// DiscardPair removes a pending pair, restoring the day transcript
func (s *Store) DiscardPair(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM pairs WHERE id = ? AND status = 'pending'", id)
	if err != nil {
		return fmt.Errorf("discard pair: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("pending pair %s: %w", id, ErrNoPair)
	}
	return nil
}

// DeletePair removes the pair whose user entry is at index of loc.
// The pair leaves both its day and unit transcripts.
func (s *Store) DeletePair(ctx context.Context, loc domain.Location, index int) error {
	if index%2 != 0 {
		return fmt.Errorf("%s index %d: %w", loc, index, ErrNoPair)
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		p, err := pairAt(ctx, tx, loc, index)
		if err != nil {
			if IsMatchError(err) {
				return fmt.Errorf("%s index %d: %w", loc, index, ErrNoPair)
			}
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM pairs WHERE id = ?", p.ID); err != nil {
			return fmt.Errorf("delete pair: %w", err)
		}
		return nil
	})
}

// MovePair files the pair whose user entry is at index of from under the
// unit location to, appending it to the destination transcript.
func (s *Store) MovePair(ctx context.Context, from, to domain.Location, index int) (*domain.Pair, error) {
	if from == to {
		return nil, fmt.Errorf("move to %s: %w", to, ErrSameLocation)
	}
	if !to.IsUnit() {
		return nil, fmt.Errorf("move to %s: %w", to, ErrUnknownLocation)
	}
	if index%2 != 0 {
		return nil, fmt.Errorf("%s index %d: %w", from, index, ErrNoPair)
	}

	var p domain.Pair
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		ok, err := unitExists(ctx, tx, to.Subject, to.Unit)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("move to %s: %w", to, ErrUnknownLocation)
		}

		p, err = pairAt(ctx, tx, from, index)
		if err != nil {
			if IsMatchError(err) {
				return fmt.Errorf("%s index %d: %w", from, index, ErrNoPair)
			}
			return err
		}
		if p.Status != domain.PairCommitted {
			return fmt.Errorf("pair %s is pending: %w", p.ID, ErrNoPair)
		}
		if p.Subject == to.Subject && p.Unit == to.Unit {
			return fmt.Errorf("move to %s: %w", to, ErrSameLocation)
		}

		pos, err := nextUnitPos(ctx, tx, to.Subject, to.Unit)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE pairs SET subject = ?, unit = ?, unit_pos = ? WHERE id = ?",
			to.Subject, to.Unit, pos, p.ID,
		); err != nil {
			return fmt.Errorf("move pair: %w", err)
		}
		p.Subject, p.Unit = to.Subject, to.Unit
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// SetCollapsed sets the collapsed flag of the entry at index of loc
func (s *Store) SetCollapsed(ctx context.Context, loc domain.Location, index int, collapsed bool) error {
	return s.setEntryField(ctx, loc, index, "collapsed", boolInt(collapsed))
}

// SetMemo sets the memo of the entry at index of loc
func (s *Store) SetMemo(ctx context.Context, loc domain.Location, index int, memo string) error {
	return s.setEntryField(ctx, loc, index, "memo", strings.TrimSpace(memo))
}

func (s *Store) setEntryField(ctx context.Context, loc domain.Location, index int, field string, value any) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		p, err := pairAt(ctx, tx, loc, index)
		if err != nil {
			return err
		}
		prefix := "q_"
		if index%2 == 1 {
			prefix = "a_"
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE pairs SET "+prefix+field+" = ? WHERE id = ?", value, p.ID,
		); err != nil {
			return fmt.Errorf("update entry %s: %w", field, err)
		}
		return nil
	})
}

// Pair returns a pair by id
func (s *Store) Pair(ctx context.Context, id string) (*domain.Pair, error) {
	p, err := getPair(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Pairs returns the pairs of a location in transcript order
func (s *Store) Pairs(ctx context.Context, loc domain.Location) ([]domain.Pair, error) {
	where, args, order, err := locationWhere(loc)
	if err != nil {
		return nil, err
	}
	return queryPairs(ctx, s.db, "SELECT "+pairColumns+" FROM pairs WHERE "+where+" ORDER BY "+order, args...)
}

// Transcript returns the flattened entries of a location
func (s *Store) Transcript(ctx context.Context, loc domain.Location) ([]domain.Entry, error) {
	pairs, err := s.Pairs(ctx, loc)
	if err != nil {
		return nil, err
	}
	return domain.Flatten(pairs), nil
}

// DayTranscript returns the entries of a day, pending pairs included
func (s *Store) DayTranscript(ctx context.Context, day string) ([]domain.Entry, error) {
	return s.Transcript(ctx, domain.DayLocation(day))
}

// UnitTranscript returns the committed entries filed under subject/unit
func (s *Store) UnitTranscript(ctx context.Context, subject, unit string) ([]domain.Entry, error) {
	return s.Transcript(ctx, domain.UnitLocation(subject, unit))
}

// Days lists the days that have at least one pair, most recent first
func (s *Store) Days(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT day FROM pairs ORDER BY day DESC")
	if err != nil {
		return nil, fmt.Errorf("list days: %w", err)
	}
	defer rows.Close()

	var days []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan day: %w", err)
		}
		days = append(days, d)
	}
	return days, rows.Err()
}

// DayCount is the number of committed questions of one subject on one day.
// Subject is empty for detached pairs.
type DayCount struct {
	Day     string `json:"day"`
	Subject string `json:"subject"`
	Count   int    `json:"count"`
}

// CountQuestions counts committed pairs per day and subject in [from, to]
func (s *Store) CountQuestions(ctx context.Context, from, to string) ([]DayCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT day, COALESCE(subject, ''), COUNT(1)
		FROM pairs
		WHERE status = 'committed' AND day >= ? AND day <= ?
		GROUP BY day, COALESCE(subject, '')
		ORDER BY day, COALESCE(subject, '')
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("count questions: %w", err)
	}
	defer rows.Close()

	var counts []DayCount
	for rows.Next() {
		var c DayCount
		if err := rows.Scan(&c.Day, &c.Subject, &c.Count); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}
