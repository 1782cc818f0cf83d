package fieldparse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeTime(t *testing.T) {
	tests := []struct {
		input    string
		expected string
		ok       bool
	}{
		{"9:05", "09:05", true},
		{"09:5", "09:05", true},
		{"9:5", "09:05", true},
		{"23:59", "23:59", true},
		{"00:00", "00:00", true},
		{"17:15:30", "17:15", true},
		{"  |07:40. ", "07:40", true},
		{"Horário: 6:30", "06:30", true},
		{"24:00", "", false},
		{"12:60", "", false},
		{"123:45", "", false},
		{"17:155", "", false},
		{"1715", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := NormalizeTime(tt.input)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestFindTime_SkipsInvalidFirstMatch(t *testing.T) {
	tok, ok := FindTime("99:99 then 8:15")
	assert.True(t, ok)
	assert.Equal(t, "08:15", tok.Value)
	assert.Equal(t, 11, tok.Offset)
}

func TestFindFleetIDs(t *testing.T) {
	tokens := FindFleetIDs("13:00 40167 x 4611 123 123456")
	if assert.Len(t, tokens, 2) {
		assert.Equal(t, "40167", tokens[0].Value)
		assert.Equal(t, 6, tokens[0].Offset)
		assert.Equal(t, "4611", tokens[1].Value)
	}
}

func TestIsMealBreak(t *testing.T) {
	assert.True(t, IsMealBreak("12:00 REFEIÇÃO"))
	assert.True(t, IsMealBreak("refeição"))
	assert.True(t, IsMealBreak("REFEICAO 12:00"))
	assert.False(t, IsMealBreak("12:00 4611"))
}

func TestParseLines(t *testing.T) {
	text := "FROTA HORÁRIO\n" +
		"07:30 4611 PREVENTIVA\n" +
		"8:5 40167 40168 LAVAGEM GERAL\n" +
		"\n" +
		"12:00 REFEIÇÃO 5000 GARAGEM\n" +
		"4612\n" +
		"13:00 ................................................ 4613\n"

	got := ParseLines(text)

	assert.Equal(t, []Candidate{
		{TimeOfDay: "07:30", FleetID: "4611", Line: 1},
		{TimeOfDay: "08:05", FleetID: "40167", Line: 2},
		{TimeOfDay: "08:05", FleetID: "40168", Line: 2},
	}, got)
}

func TestParseLines_OffsetDistance(t *testing.T) {
	tests := []struct {
		name string
		line string
		want []Candidate
	}{
		// 10 characters, limit 5, starts 6 apart.
		{"bare pair is too far apart", "07:30 4611", nil},
		// 12 characters, limit 6, starts 6 apart.
		{"distance equal to limit", "07:30 4611 X", nil},
		// 14 characters, limit 7, starts 6 apart.
		{"distance just under limit", "07:30 4611 XYZ", []Candidate{{TimeOfDay: "07:30", FleetID: "4611"}}},
		// 26 characters, limit 13, starts 17 apart.
		{"filler between tokens", "17:15 .......... 4611 ....", nil},
		{"fleet before time", "4611 07:30 PREVENTIVA", []Candidate{{TimeOfDay: "07:30", FleetID: "4611"}}},
		// 13 characters (15 bytes), limit 6.
		{"multibyte characters count once", "07:30 4611 ÇÃ", nil},
		// Time starts at character 3, fleet at 9, 13 characters.
		{"multibyte prefix", "ÇÃÉ07:30 4611", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLines(tt.line))
		})
	}
}

func TestTokenDistance(t *testing.T) {
	line := "ÇÃ 07:30 4611"
	tm, ok := FindTime(line)
	require.True(t, ok)
	fleet := FindFleetIDs(line)
	require.Len(t, fleet, 1)

	assert.Equal(t, 6, tm.Distance(fleet[0], line))
	assert.Equal(t, 6, fleet[0].Distance(tm, line))
}

func TestParseCellPair(t *testing.T) {
	tests := []struct {
		name      string
		timeText  string
		fleetText string
		want      Candidate
		ok        bool
	}{
		{"plain", "9:05", "4611", Candidate{TimeOfDay: "09:05", FleetID: "4611", Line: -1}, true},
		{"noisy", " 17:15\n", "|40167|", Candidate{TimeOfDay: "17:15", FleetID: "40167", Line: -1}, true},
		{"meal break in fleet cell", "12:00", "REFEIÇÃO", Candidate{}, false},
		{"meal break in time cell", "REFEIÇÃO 12:00", "4611", Candidate{}, false},
		{"no time", "xx", "4611", Candidate{}, false},
		{"no fleet", "10:00", "12", Candidate{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseCellPair(tt.timeText, tt.fleetText)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidators(t *testing.T) {
	assert.True(t, ValidTimeOfDay("09:05"))
	assert.False(t, ValidTimeOfDay("9:05"))
	assert.False(t, ValidTimeOfDay("25:00"))

	assert.True(t, ValidFleetID("4611"))
	assert.True(t, ValidFleetID("40167"))
	assert.False(t, ValidFleetID("461"))
	assert.False(t, ValidFleetID("401677"))
	assert.False(t, ValidFleetID("46a1"))
}
