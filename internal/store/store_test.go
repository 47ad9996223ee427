package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pbaille/studylog/internal/domain"
)

var fixedNow = time.Date(2025, 3, 14, 10, 0, 0, 0, time.Local)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	s.now = func() time.Time { return fixedNow }
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedTaxonomy(t *testing.T, s *Store, subject string, units ...string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.CreateSubject(ctx, subject))
	for _, u := range units {
		require.NoError(t, s.CreateUnit(ctx, subject, u))
	}
}

func userEntry(text string) domain.Entry {
	ts := fixedNow
	return domain.Entry{Sender: domain.SenderUser, Text: text, Timestamp: &ts}
}

func modelEntry(text string) domain.Entry {
	return domain.Entry{Sender: domain.SenderModel, Text: text}
}

func texts(entries []domain.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Text
	}
	return out
}

func TestOpenPathWithURICharacters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes?v=1#draft", "100%.db")
	s, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, path, s.Path())

	seedTaxonomy(t, s, "Math", "Algebra")
	require.NoError(t, s.Close())

	_, err = os.Stat(path)
	require.NoError(t, err, "database file is created at the exact path")

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	tax, err := s.Taxonomy(context.Background())
	require.NoError(t, err)
	assert.True(t, tax.Has("Math", "Algebra"))
}

func TestOpenRejectsOtherSchemaVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.db")
	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.db.Exec("UPDATE schema_version SET version = 99")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = Open(path)
	assert.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestOpenReusesExistingDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "studylog.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.CreateSubject(context.Background(), "Math"))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	tax, err := s.Taxonomy(context.Background())
	require.NoError(t, err)
	assert.True(t, tax.HasSubject("Math"))
}

func TestAppendPairEndsBothTranscripts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedTaxonomy(t, s, "Math", "Algebra")

	_, err := s.AppendPair(ctx, "Math", "Algebra", userEntry("q1"), modelEntry("a1"))
	require.NoError(t, err)
	p, err := s.AppendPair(ctx, "Math", "Algebra", userEntry("q2"), modelEntry("a2"))
	require.NoError(t, err)
	assert.Equal(t, "2025-03-14", p.Day)
	assert.Equal(t, domain.PairCommitted, p.Status)

	unit, err := s.UnitTranscript(ctx, "Math", "Algebra")
	require.NoError(t, err)
	assert.Equal(t, []string{"q1", "a1", "q2", "a2"}, texts(unit))

	day, err := s.DayTranscript(ctx, "2025-03-14")
	require.NoError(t, err)
	assert.Equal(t, []string{"q1", "a1", "q2", "a2"}, texts(day))
	assert.Equal(t, domain.SenderUser, day[2].Sender)
	assert.Equal(t, domain.SenderModel, day[3].Sender)
	require.NotNil(t, day[2].Timestamp)
	assert.True(t, fixedNow.Equal(*day[2].Timestamp))
}

func TestAppendPairUnknownUnitGoesToUnsorted(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p, err := s.AppendPair(ctx, "Physics", "Optics", userEntry("q"), modelEntry("a"))
	require.NoError(t, err)
	assert.Equal(t, domain.UnsortedSubject, p.Subject)
	assert.Equal(t, domain.UnsortedUnit, p.Unit)

	tax, err := s.Taxonomy(ctx)
	require.NoError(t, err)
	assert.True(t, tax.Has(domain.UnsortedSubject, domain.UnsortedUnit))
	assert.False(t, tax.HasSubject("Physics"))
}

func TestPendingPairLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedTaxonomy(t, s, "Math", "Algebra")

	p, err := s.BeginPair(ctx, "2025-03-14", userEntry("q"))
	require.NoError(t, err)
	assert.Equal(t, domain.PairPending, p.Status)

	day, err := s.DayTranscript(ctx, "2025-03-14")
	require.NoError(t, err)
	require.Len(t, day, 2)
	assert.Equal(t, "", day[1].Text)
	assert.Equal(t, domain.EmptyAnswerPlaceholder, day[1].Display())

	unit, err := s.UnitTranscript(ctx, "Math", "Algebra")
	require.NoError(t, err)
	assert.Empty(t, unit, "pending pairs are not filed")

	committed, err := s.CommitPair(ctx, p.ID, "Math", "Algebra", modelEntry("x = 2"))
	require.NoError(t, err)
	assert.Equal(t, domain.PairCommitted, committed.Status)

	unit, err = s.UnitTranscript(ctx, "Math", "Algebra")
	require.NoError(t, err)
	assert.Equal(t, []string{"q", "x = 2"}, texts(unit))

	_, err = s.CommitPair(ctx, p.ID, "Math", "Algebra", modelEntry("again"))
	assert.ErrorIs(t, err, ErrNoPair)
	assert.ErrorIs(t, s.DiscardPair(ctx, p.ID), ErrNoPair, "committed pairs cannot be discarded")
}

func TestDiscardPairRestoresDay(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.AppendPair(ctx, "", "", userEntry("before"), modelEntry("ok"))
	require.NoError(t, err)
	before, err := s.DayTranscript(ctx, "2025-03-14")
	require.NoError(t, err)

	p, err := s.BeginPair(ctx, "", userEntry("q"))
	require.NoError(t, err)
	require.NoError(t, s.DiscardPair(ctx, p.ID))

	after, err := s.DayTranscript(ctx, "2025-03-14")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestBeginPairRejectsBadDay(t *testing.T) {
	s := newTestStore(t)
	_, err := s.BeginPair(context.Background(), "14/03/2025", userEntry("q"))
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestDeletePair(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedTaxonomy(t, s, "Math", "Algebra")

	for _, q := range []string{"q1", "q2", "q3"} {
		_, err := s.AppendPair(ctx, "Math", "Algebra", userEntry(q), modelEntry("a"+q[1:]))
		require.NoError(t, err)
	}
	unitLoc := domain.UnitLocation("Math", "Algebra")
	dayLoc := domain.DayLocation("2025-03-14")

	t.Run("model index is a no-op", func(t *testing.T) {
		before, err := s.Transcript(ctx, unitLoc)
		require.NoError(t, err)

		err = s.DeletePair(ctx, unitLoc, 1)
		assert.ErrorIs(t, err, ErrNoPair)
		assert.True(t, IsMatchError(err))

		after, err := s.Transcript(ctx, unitLoc)
		require.NoError(t, err)
		assert.Equal(t, before, after)
	})

	t.Run("out of range is a no-op", func(t *testing.T) {
		before, err := s.Transcript(ctx, dayLoc)
		require.NoError(t, err)

		assert.ErrorIs(t, s.DeletePair(ctx, dayLoc, 6), ErrNoPair)
		assert.ErrorIs(t, s.DeletePair(ctx, dayLoc, -2), ErrNoPair)

		after, err := s.Transcript(ctx, dayLoc)
		require.NoError(t, err)
		assert.Equal(t, before, after)
	})

	t.Run("removes from both transcripts", func(t *testing.T) {
		require.NoError(t, s.DeletePair(ctx, unitLoc, 2))

		unit, err := s.Transcript(ctx, unitLoc)
		require.NoError(t, err)
		assert.Equal(t, []string{"q1", "a1", "q3", "a3"}, texts(unit))

		day, err := s.Transcript(ctx, dayLoc)
		require.NoError(t, err)
		assert.Equal(t, []string{"q1", "a1", "q3", "a3"}, texts(day))
	})
}

func TestMovePair(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedTaxonomy(t, s, "Math", "Algebra", "Geometry")

	a := domain.UnitLocation("Math", "Algebra")
	b := domain.UnitLocation("Math", "Geometry")

	for _, q := range []string{"q1", "q2"} {
		_, err := s.AppendPair(ctx, "Math", "Algebra", userEntry(q), modelEntry("a"+q[1:]))
		require.NoError(t, err)
	}
	_, err := s.AppendPair(ctx, "Math", "Geometry", userEntry("g1"), modelEntry("b1"))
	require.NoError(t, err)

	origA, err := s.Transcript(ctx, a)
	require.NoError(t, err)
	origB, err := s.Transcript(ctx, b)
	require.NoError(t, err)

	_, err = s.MovePair(ctx, a, a, 0)
	assert.ErrorIs(t, err, ErrSameLocation)
	_, err = s.MovePair(ctx, a, b, 1)
	assert.ErrorIs(t, err, ErrNoPair)
	_, err = s.MovePair(ctx, a, b, 8)
	assert.ErrorIs(t, err, ErrNoPair)
	_, err = s.MovePair(ctx, a, domain.UnitLocation("Math", "Calculus"), 0)
	assert.ErrorIs(t, err, ErrUnknownLocation)

	moved, err := s.MovePair(ctx, a, b, 0)
	require.NoError(t, err)
	assert.Equal(t, "Geometry", moved.Unit)

	gotB, err := s.Transcript(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, []string{"g1", "b1", "q1", "a1"}, texts(gotB))

	_, err = s.MovePair(ctx, b, a, 2)
	require.NoError(t, err)

	gotA, err := s.Transcript(ctx, a)
	require.NoError(t, err)
	gotB, err = s.Transcript(ctx, b)
	require.NoError(t, err)
	assert.ElementsMatch(t, origA, gotA)
	assert.Equal(t, origB, gotB)

	day, err := s.DayTranscript(ctx, "2025-03-14")
	require.NoError(t, err)
	assert.Equal(t, []string{"q1", "a1", "q2", "a2", "g1", "b1"}, texts(day), "moving does not reorder the day")
}

func TestSetCollapsedAndMemo(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedTaxonomy(t, s, "Math", "Algebra")

	_, err := s.AppendPair(ctx, "Math", "Algebra", userEntry("q"), modelEntry("a"))
	require.NoError(t, err)
	loc := domain.UnitLocation("Math", "Algebra")

	require.NoError(t, s.SetCollapsed(ctx, loc, 1, true))
	require.NoError(t, s.SetMemo(ctx, domain.DayLocation("2025-03-14"), 0, "  review  "))

	entries, err := s.Transcript(ctx, loc)
	require.NoError(t, err)
	assert.False(t, entries[0].Collapsed)
	assert.Equal(t, "review", entries[0].Memo)
	assert.True(t, entries[1].Collapsed)

	assert.ErrorIs(t, s.SetCollapsed(ctx, loc, 2, true), ErrNoEntry)
	assert.ErrorIs(t, s.SetMemo(ctx, loc, -1, "x"), ErrNoEntry)
}

func TestDaysAndCounts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedTaxonomy(t, s, "Math", "Algebra")

	earlier := fixedNow.AddDate(0, 0, -2)
	_, err := s.AppendPair(ctx, "Math", "Algebra", domain.Entry{Text: "old", Timestamp: &earlier}, modelEntry("a"))
	require.NoError(t, err)
	_, err = s.AppendPair(ctx, "Math", "Algebra", userEntry("q"), modelEntry("a"))
	require.NoError(t, err)
	_, err = s.AppendPair(ctx, "Nope", "Nope", userEntry("q"), modelEntry("a"))
	require.NoError(t, err)
	_, err = s.BeginPair(ctx, "", userEntry("pending"))
	require.NoError(t, err)

	days, err := s.Days(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-03-14", "2025-03-12"}, days)

	counts, err := s.CountQuestions(ctx, "2025-03-12", "2025-03-14")
	require.NoError(t, err)
	assert.Equal(t, []DayCount{
		{Day: "2025-03-12", Subject: "Math", Count: 1},
		{Day: "2025-03-14", Subject: "Math", Count: 1},
		{Day: "2025-03-14", Subject: domain.UnsortedSubject, Count: 1},
	}, counts)
}

func TestPairLookup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p, err := s.AppendPair(ctx, "", "", userEntry("q"), modelEntry("a"))
	require.NoError(t, err)

	got, err := s.Pair(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "q", got.Question.Text)
	assert.Equal(t, "a", got.Answer.Text)

	_, err = s.Pair(ctx, "missing")
	assert.ErrorIs(t, err, ErrNoPair)
	assert.False(t, isNoRows(err))
	assert.NotErrorIs(t, err, sql.ErrNoRows)
}
