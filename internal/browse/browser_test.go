package browse

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pbaille/studylog/internal/domain"
	"github.com/pbaille/studylog/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "browse.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	ctx := context.Background()
	require.NoError(t, s.CreateSubject(ctx, "Math"))
	require.NoError(t, s.CreateUnit(ctx, "Math", "Algebra"))
	require.NoError(t, s.CreateUnit(ctx, "Math", "Geometry"))
	require.NoError(t, s.CreateSubject(ctx, "History"))
	require.NoError(t, s.CreateUnit(ctx, "History", "Joseon"))
	return s
}

func add(t *testing.T, s *store.Store, subject, unit, question string, at time.Time) {
	t.Helper()
	_, err := s.AppendPair(context.Background(), subject, unit,
		domain.Entry{Text: question, Timestamp: &at},
		domain.Entry{Text: "answer to " + question},
	)
	require.NoError(t, err)
}

func TestQuestionsWithoutFilterShowsEmptyUnits(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()
	add(t, s, "Math", "Algebra", "Solve x^2 = 4", now)
	add(t, s, "Math", "Algebra", "Factor x^2 - 1", now)

	groups, err := New(s).Questions(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, groups, 3)

	assert.Equal(t, "Algebra", groups[0].Unit)
	assert.Equal(t, 2, groups[0].Count)
	assert.Equal(t, 0, groups[0].Questions[0].Index)
	assert.Equal(t, 2, groups[0].Questions[1].Index)
	assert.Equal(t, "Factor x^2 - 1", groups[0].Questions[1].Entry.Text)

	assert.Equal(t, "Geometry", groups[1].Unit)
	assert.Equal(t, 0, groups[1].Count)
	assert.Equal(t, "Joseon", groups[2].Unit)
}

func TestQuestionsFilter(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()
	add(t, s, "Math", "Algebra", "Solve X^2 = 4", now)
	add(t, s, "Math", "Algebra", "Factor a polynomial", now)
	add(t, s, "History", "Joseon", "Who founded Joseon?", now)

	b := New(s)

	groups, err := b.Questions(context.Background(), "  x^2 ")
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "Algebra", groups[0].Unit)
	require.Len(t, groups[0].Questions, 1)
	assert.Equal(t, 0, groups[0].Questions[0].Index, "index addresses the unit transcript")

	groups, err = b.Questions(context.Background(), "JOSEON")
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "History", groups[0].Subject)

	groups, err = b.Questions(context.Background(), "nothing matches")
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestQuestionsDoesNotMutate(t *testing.T) {
	s := newTestStore(t)
	add(t, s, "Math", "Algebra", "q", time.Now())

	before, err := s.UnitTranscript(context.Background(), "Math", "Algebra")
	require.NoError(t, err)

	_, err = New(s).Questions(context.Background(), "q")
	require.NoError(t, err)

	after, err := s.UnitTranscript(context.Background(), "Math", "Algebra")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestWeeklyCounts(t *testing.T) {
	s := newTestStore(t)
	today := time.Date(2025, 3, 14, 15, 0, 0, 0, time.Local)

	add(t, s, "Math", "Algebra", "a", today)
	add(t, s, "Math", "Geometry", "b", today)
	add(t, s, "History", "Joseon", "c", today.AddDate(0, 0, -1))
	add(t, s, "Nowhere", "Nowhere", "d", today.AddDate(0, 0, -6))
	add(t, s, "Math", "Algebra", "too old", today.AddDate(0, 0, -7))

	require.NoError(t, s.DeleteUnit(context.Background(), "History", "Joseon"))

	stats, err := New(s).WeeklyCounts(context.Background(), today, 7)
	require.NoError(t, err)
	require.Len(t, stats, 7)

	assert.Equal(t, "2025-03-08", stats[0].Day)
	assert.Equal(t, map[string]int{domain.UnsortedSubject: 1}, stats[0].Subjects)

	assert.Equal(t, "2025-03-13", stats[5].Day)
	assert.Equal(t, map[string]int{domain.UnsortedSubject: 1}, stats[5].Subjects, "detached questions count as unsorted")

	assert.Equal(t, "2025-03-14", stats[6].Day)
	assert.Equal(t, 2, stats[6].Subjects["Math"])
	assert.Equal(t, 2, stats[6].Total)

	assert.Equal(t, 0, stats[3].Total)
	assert.NotNil(t, stats[3].Subjects)
}
