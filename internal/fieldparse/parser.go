package fieldparse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// MealBreakMarker marks rows that hold a meal break instead of a fleet.
const MealBreakMarker = "REFEIÇÃO"

// OCR often loses the diacritics.
const mealBreakPlain = "REFEICAO"

var (
	timePattern  = regexp.MustCompile(`\b(\d{1,2}):(\d{1,2})(?::(\d{2}))?\b`)
	fleetPattern = regexp.MustCompile(`\b\d{4,5}\b`)
)

// Token is a match together with its byte span in the source line.
type Token struct {
	Value  string
	Offset int
	End    int
}

// Distance returns the number of characters between the starts of two tokens
// in line.
func (t Token) Distance(o Token, line string) int {
	a := utf8.RuneCountInString(line[:t.Offset])
	b := utf8.RuneCountInString(line[:o.Offset])
	if a > b {
		return a - b
	}
	return b - a
}

// Candidate is a (time, fleet) pair found in OCR text.
type Candidate struct {
	TimeOfDay string
	FleetID   string
	// Line is the zero-based source line, or -1 for cell pairs.
	Line int
}

// NormalizeTime parses H:M, HH:MM or HH:MM:SS (with surrounding noise) and
// returns zero-padded HH:MM. Seconds are dropped.
func NormalizeTime(s string) (string, bool) {
	tok, ok := FindTime(s)
	if !ok {
		return "", false
	}
	return tok.Value, true
}

// FindTime returns the first valid time token in s.
func FindTime(s string) (Token, bool) {
	for _, m := range timePattern.FindAllStringSubmatchIndex(s, -1) {
		hour, err := strconv.Atoi(s[m[2]:m[3]])
		if err != nil || hour > 23 {
			continue
		}
		minute, err := strconv.Atoi(s[m[4]:m[5]])
		if err != nil || minute > 59 {
			continue
		}
		if m[6] >= 0 {
			if sec, err := strconv.Atoi(s[m[6]:m[7]]); err != nil || sec > 59 {
				continue
			}
		}
		return Token{Value: fmt.Sprintf("%02d:%02d", hour, minute), Offset: m[0], End: m[1]}, true
	}
	return Token{}, false
}

// FindFleetIDs returns every bare 4-5 digit run in s.
func FindFleetIDs(s string) []Token {
	matches := fleetPattern.FindAllStringIndex(s, -1)
	tokens := make([]Token, 0, len(matches))
	for _, m := range matches {
		tokens = append(tokens, Token{Value: s[m[0]:m[1]], Offset: m[0], End: m[1]})
	}
	return tokens
}

// ParseFleetID returns the first fleet ID in s.
func ParseFleetID(s string) (string, bool) {
	tokens := FindFleetIDs(s)
	if len(tokens) == 0 {
		return "", false
	}
	return tokens[0].Value, true
}

// IsMealBreak reports whether s mentions the meal break marker.
func IsMealBreak(s string) bool {
	upper := strings.ToUpper(s)
	return strings.Contains(upper, MealBreakMarker) || strings.Contains(upper, mealBreakPlain)
}

// ParseLines extracts candidates from free text. On each line the first time
// token is paired with every fleet token whose start lies less than half the
// line length (in characters) away from the time token's start.
func ParseLines(text string) []Candidate {
	var out []Candidate
	for i, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || IsMealBreak(line) {
			continue
		}
		t, ok := FindTime(line)
		if !ok {
			continue
		}
		limit := utf8.RuneCountInString(line) / 2
		for _, f := range FindFleetIDs(line) {
			if t.Distance(f, line) < limit {
				out = append(out, Candidate{TimeOfDay: t.Value, FleetID: f.Value, Line: i})
			}
		}
	}
	return out
}

// ParseCellPair pairs the text of a time cell with the text of a fleet cell.
func ParseCellPair(timeText, fleetText string) (Candidate, bool) {
	if IsMealBreak(timeText) || IsMealBreak(fleetText) {
		return Candidate{}, false
	}
	t, ok := NormalizeTime(timeText)
	if !ok {
		return Candidate{}, false
	}
	f, ok := ParseFleetID(fleetText)
	if !ok {
		return Candidate{}, false
	}
	return Candidate{TimeOfDay: t, FleetID: f, Line: -1}, true
}

// ValidTimeOfDay reports whether s is already a zero-padded HH:MM.
func ValidTimeOfDay(s string) bool {
	if len(s) != 5 || s[2] != ':' {
		return false
	}
	t, ok := NormalizeTime(s)
	return ok && t == s
}

// ValidFleetID reports whether s is exactly a 4-5 digit fleet number.
func ValidFleetID(s string) bool {
	if len(s) < 4 || len(s) > 5 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
