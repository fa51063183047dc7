// Package floor canonicalizes the free-text floor labels used by reservations
// and staff assignments so that "2nd", "Second Floor" and "Floor 2" compare equal.
// Room labels get a lighter folding that only ignores case and spacing.
package floor

import (
	"strconv"
	"strings"
)

// Ground is the canonical key for ground-level variants ("G", "GF", "ground", "0").
const Ground = "ground"

var fillerWords = map[string]struct{}{
	"floor":  {},
	"flr":    {},
	"fl":     {},
	"level":  {},
	"lvl":    {},
	"storey": {},
	"story":  {},
	"the":    {},
}

var numberWords = map[string]int{
	"one": 1, "first": 1,
	"two": 2, "second": 2,
	"three": 3, "third": 3,
	"four": 4, "fourth": 4,
	"five": 5, "fifth": 5,
	"six": 6, "sixth": 6,
	"seven": 7, "seventh": 7,
	"eight": 8, "eighth": 8,
	"nine": 9, "ninth": 9,
	"ten": 10, "tenth": 10,
	"eleven": 11, "eleventh": 11,
	"twelve": 12, "twelfth": 12,
	"thirteen": 13, "thirteenth": 13,
	"fourteen": 14, "fourteenth": 14,
	"fifteen": 15, "fifteenth": 15,
	"sixteen": 16, "sixteenth": 16,
	"seventeen": 17, "seventeenth": 17,
	"eighteen": 18, "eighteenth": 18,
	"nineteen": 19, "nineteenth": 19,
	"twenty": 20, "twentieth": 20,
}

var groundWords = map[string]struct{}{
	"g":      {},
	"gf":     {},
	"ground": {},
	"lobby":  {},
}

// Normalize returns the canonical key for a floor label. Numeric floors map to
// their decimal form ("2"), ground variants to Ground, basements to "b<n>".
// Labels that match no known pattern are lower-cased with whitespace collapsed.
func Normalize(label string) string {
	tokens := tokenize(label)
	if len(tokens) == 0 {
		return ""
	}

	if tokens[0] == "basement" {
		if len(tokens) == 1 {
			return "b1"
		}
		if n, ok := parseNumber(tokens[1]); ok && n > 0 {
			return "b" + strconv.Itoa(n)
		}
	}

	if len(tokens) == 1 {
		if key, ok := canonicalToken(tokens[0]); ok {
			return key
		}
	}

	return strings.Join(tokens, " ")
}

// NormalizeRoom lower-cases a room label and collapses its whitespace, so "Room 101"
// and " room  101" name the same room. Numbering is kept as written.
func NormalizeRoom(label string) string {
	return strings.ToLower(strings.Join(strings.Fields(label), " "))
}

// Equal reports whether two labels denote the same floor.
func Equal(a, b string) bool {
	left := Normalize(a)
	return left != "" && left == Normalize(b)
}

func tokenize(label string) []string {
	lowered := strings.ToLower(strings.TrimSpace(label))
	replacer := strings.NewReplacer("-", " ", "_", " ", ".", " ", ",", " ", "/", " ", "#", " ")
	fields := strings.Fields(replacer.Replace(lowered))

	tokens := make([]string, 0, len(fields))
	for _, field := range fields {
		if _, skip := fillerWords[field]; skip {
			continue
		}
		tokens = append(tokens, field)
	}
	return tokens
}

func canonicalToken(token string) (string, bool) {
	if _, ok := groundWords[token]; ok {
		return Ground, true
	}
	if token == "b" {
		return "b1", true
	}
	if strings.HasPrefix(token, "b") {
		if n, err := strconv.Atoi(token[1:]); err == nil && n > 0 {
			return "b" + strconv.Itoa(n), true
		}
	}

	n, ok := parseNumber(token)
	if !ok {
		return "", false
	}
	if n == 0 {
		return Ground, true
	}
	return strconv.Itoa(n), true
}

// parseNumber accepts "2", "02", "2nd", "2f", "f2", "l2" and spelled-out forms.
func parseNumber(token string) (int, bool) {
	if n, ok := numberWords[token]; ok {
		return n, true
	}

	trimmed := token
	for _, suffix := range []string{"st", "nd", "rd", "th", "f"} {
		if strings.HasSuffix(trimmed, suffix) && len(trimmed) > len(suffix) {
			trimmed = strings.TrimSuffix(trimmed, suffix)
			break
		}
	}
	for _, prefix := range []string{"f", "l"} {
		if strings.HasPrefix(trimmed, prefix) && len(trimmed) > len(prefix) {
			trimmed = strings.TrimPrefix(trimmed, prefix)
			break
		}
	}

	n, err := strconv.Atoi(trimmed)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
