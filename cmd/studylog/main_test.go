package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pbaille/studylog/internal/domain"
)

func TestLocationFlags(t *testing.T) {
	tests := []struct {
		name    string
		flags   locationFlags
		want    domain.Location
		wantErr string
	}{
		{name: "day", flags: locationFlags{day: "2025-03-14"}, want: domain.DayLocation("2025-03-14")},
		{name: "unit", flags: locationFlags{subject: "Math", unit: "Algebra"}, want: domain.UnitLocation("Math", "Algebra")},
		{name: "both", flags: locationFlags{day: "2025-03-14", subject: "Math"}, wantErr: "either"},
		{name: "subject only", flags: locationFlags{subject: "Math"}, wantErr: "required"},
		{name: "none", wantErr: "required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.flags.location()
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseIndex(t *testing.T) {
	i, err := parseIndex("4")
	require.NoError(t, err)
	assert.Equal(t, 4, i)

	_, err = parseIndex("four")
	assert.Error(t, err)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "a b", truncate("a\n  b", 10))
	assert.Equal(t, "조선 왕...", truncate("조선 왕조 실록", 7))
}

func TestRenderTable(t *testing.T) {
	out := renderTable([]string{"#", "Text"}, [][]string{{"0", "hello"}, {"1"}}, 0)
	assert.Contains(t, out, "hello")
	assert.Contains(t, out, "TEXT")
	assert.Empty(t, renderTable(nil, nil))
}
