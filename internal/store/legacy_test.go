package store

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pbaille/studylog/internal/domain"
)

// stored mimics localStorage, where every value is a JSON string
func stored(t *testing.T, v any) json.RawMessage {
	t.Helper()
	inner, err := json.Marshal(v)
	require.NoError(t, err)
	outer, err := json.Marshal(string(inner))
	require.NoError(t, err)
	return outer
}

func TestImportLegacy(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	q1 := map[string]any{"sender": "user", "text": "what is x?", "date": "2025-03-10T09:00:00.000Z"}
	a1 := map[string]any{"sender": "gpt", "text": "x is 2"}
	q2 := map[string]any{"sender": "user", "text": "who was Sejong?", "date": "2025-03-10T09:05:00.000Z"}
	a2 := map[string]any{"sender": "gpt", "text": "a king", "collapsed": true}
	q3 := map[string]any{"sender": "user", "text": "day only", "date": "2025-03-10T09:10:00.000Z"}
	a3 := map[string]any{"sender": "gpt", "text": "unfiled"}
	q4 := map[string]any{"sender": "user", "text": "unit only", "date": "2025-03-01T12:00:00Z"}
	a4 := map[string]any{"sender": "gpt", "text": "orphan"}

	snap := LegacySnapshot{
		"question_unit_map": json.RawMessage(`{"Math":["Algebra"],"Korean History":["조선"]}`),
		"chat_2025-03-10":   stored(t, []any{q1, a1, q2, a2, q3, a3}),
		"chat_garbage":      stored(t, []any{q1, a1}),
		// raw subject name
		"question_by_unit_Math_Algebra": stored(t, []any{q1, a1, q4, a4}),
		// whitespace-stripped subject name
		"question_by_unit_KoreanHistory_조선": stored(t, []any{q2, a2}),
		"unrelated": json.RawMessage(`"ignored"`),
	}

	report, err := s.ImportLegacy(ctx, snap)
	require.NoError(t, err)
	assert.Equal(t, &ImportReport{Subjects: 2, Units: 2, Pairs: 4, Detached: 1}, report)

	tax, err := s.Taxonomy(ctx)
	require.NoError(t, err)
	assert.True(t, tax.Has("Math", "Algebra"))
	assert.True(t, tax.Has("Korean History", "조선"))

	day, err := s.DayTranscript(ctx, "2025-03-10")
	require.NoError(t, err)
	assert.Equal(t, []string{"what is x?", "x is 2", "who was Sejong?", "a king", "day only", "unfiled"}, texts(day))
	assert.Equal(t, domain.SenderModel, day[1].Sender)
	assert.True(t, day[3].Collapsed)
	require.NotNil(t, day[0].Timestamp)

	alg, err := s.UnitTranscript(ctx, "Math", "Algebra")
	require.NoError(t, err)
	assert.Equal(t, []string{"what is x?", "x is 2", "unit only", "orphan"}, texts(alg))

	hist, err := s.UnitTranscript(ctx, "Korean History", "조선")
	require.NoError(t, err)
	assert.Equal(t, []string{"who was Sejong?", "a king"}, texts(hist))

	orphanDay := domain.DayOf(*alg[2].Timestamp)
	orphan, err := s.DayTranscript(ctx, orphanDay)
	require.NoError(t, err)
	assert.Equal(t, []string{"unit only", "orphan"}, texts(orphan))
}

func TestLegacyPairs(t *testing.T) {
	msgs := []legacyMessage{
		{Sender: "gpt", Text: "stray"},
		{Sender: "user", Text: "q1"},
		{Sender: "user", Text: "q2"},
		{Sender: "gpt", Text: "a2"},
	}
	pairs := legacyPairs(msgs)
	require.Len(t, pairs, 2)
	assert.Equal(t, "q1", pairs[0][0].Text)
	assert.Equal(t, "", pairs[0][1].Text)
	assert.Equal(t, "a2", pairs[1][1].Text)
}

func TestImportLegacyBadValue(t *testing.T) {
	s := newTestStore(t)
	_, err := s.ImportLegacy(context.Background(), LegacySnapshot{
		"question_unit_map": json.RawMessage(`"not json"`),
	})
	assert.ErrorIs(t, err, ErrInvalid)
}
