package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/unicode/norm"
)

func TestTaxonomyJSONKeepsOrder(t *testing.T) {
	raw := `{"Physics":["Mechanics","Optics"],"Math":["Algebra"],"Unsorted":["미분류"]}`

	var tax Taxonomy
	require.NoError(t, json.Unmarshal([]byte(raw), &tax))
	require.Len(t, tax.Subjects, 3)
	assert.Equal(t, "Physics", tax.Subjects[0].Name)
	assert.Equal(t, "Math", tax.Subjects[1].Name)
	assert.Equal(t, []string{"Mechanics", "Optics"}, tax.Units("Physics"))

	out, err := json.Marshal(tax)
	require.NoError(t, err)
	assert.JSONEq(t, raw, string(out))
	assert.Equal(t, raw, string(out))
}

func TestTaxonomyHas(t *testing.T) {
	tax := Taxonomy{Subjects: []Subject{{Name: "Math", Units: []string{"Algebra"}}}}

	assert.True(t, tax.Has("Math", "Algebra"))
	assert.True(t, tax.Has("  Math ", "Algebra "))
	assert.False(t, tax.Has("Math", "Geometry"))
	assert.False(t, tax.Has("Physics", "Algebra"))
	assert.Equal(t, []string{"Math > Algebra"}, tax.Candidates())
}

func TestNormalizeNameComposesHangul(t *testing.T) {
	decomposed := norm.NFD.String(UnsortedUnit)
	require.NotEqual(t, UnsortedUnit, decomposed)
	assert.Equal(t, UnsortedUnit, NormalizeName(" "+decomposed+" "))
	assert.True(t, IsReserved("Unsorted", decomposed))
	assert.True(t, IsReserved("Unsorted", ""))
	assert.False(t, IsReserved("Math", ""))
}

func TestEntryDisplayPlaceholder(t *testing.T) {
	assert.Equal(t, EmptyAnswerPlaceholder, Entry{Sender: SenderModel}.Display())
	assert.Equal(t, "", Entry{Sender: SenderUser}.Display())
	assert.Equal(t, "hi", Entry{Sender: SenderModel, Text: "hi"}.Display())
}

func TestLocationValid(t *testing.T) {
	assert.True(t, DayLocation("2025-01-02").Valid())
	assert.True(t, UnitLocation("Math", "Algebra").Valid())
	assert.False(t, Location{Day: "2025-01-02", Subject: "Math"}.Valid())
	assert.False(t, Location{Subject: "Math"}.Valid())
}
