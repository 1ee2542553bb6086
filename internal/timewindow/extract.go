// Package timewindow parses an informal phrase into a trailing number of
// days, tolerant of typos, number words and relative-date phrasing.
// Malformed input never errors; it is simply unresolved and the caller
// applies its own default.
package timewindow

import (
	"strings"
	"time"
	"unicode"
)

var unitDays = map[string]int{
	"day":   1,
	"week":  7,
	"month": 30,
	"year":  365,
}

var qualifiers = []string{"last", "past", "previous"}

var monthsByName = map[string]time.Month{
	"january": time.January, "february": time.February, "march": time.March,
	"april": time.April, "may": time.May, "june": time.June,
	"july": time.July, "august": time.August, "september": time.September,
	"october": time.October, "november": time.November, "december": time.December,
}

// ExtractDays resolves text to a positive count of trailing days. The second
// return is false when no window could be recognized. Resolution order:
// fuzzy "last N units", relative-date phrases, fixed phrase fallbacks.
func ExtractDays(text string, now time.Time) (int, bool) {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return 0, false
	}

	if days, ok := matchFuzzyDuration(tokens); ok {
		return days, true
	}
	if days, ok := matchRelativeDate(tokens, now); ok {
		return days, true
	}
	if days, ok := matchFixedPhrase(tokens, now); ok {
		return days, true
	}

	return 0, false
}

// tokenize lowercases, treats hyphens as separators and splits on anything
// that is not a letter or digit.
func tokenize(text string) []string {
	lowered := strings.ToLower(strings.ReplaceAll(text, "-", " "))
	return strings.FieldsFunc(lowered, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// matchFuzzyDuration recognizes "last/past/previous [N] day|week|month|year"
// with small typos and pluralization in any token. A missing magnitude means
// 1 ("last week" = 7).
func matchFuzzyDuration(tokens []string) (int, bool) {
	qualifierAt := -1
	for i, tok := range tokens {
		for _, q := range qualifiers {
			if fuzzyEqual(tok, q) {
				qualifierAt = i
				break
			}
		}
		if qualifierAt >= 0 {
			break
		}
	}
	if qualifierAt < 0 {
		return 0, false
	}

	for j := qualifierAt + 1; j < len(tokens); j++ {
		days, ok := matchUnit(tokens[j])
		if !ok {
			continue
		}

		magnitude := 1
		for k := qualifierAt + 1; k < j; k++ {
			if value, _, ok := parseMagnitude(tokens, k); ok && value > 0 {
				magnitude = value
				break
			}
		}
		return magnitude * days, true
	}

	return 0, false
}

// matchRelativeDate recognizes "N units ago" and "since <month> [day]".
func matchRelativeDate(tokens []string, now time.Time) (int, bool) {
	for i, tok := range tokens {
		if tok != "ago" || i < 1 {
			continue
		}
		days, ok := matchUnit(tokens[i-1])
		if !ok {
			continue
		}
		// Scan forward so a compound number word ("twenty one") is read
		// from its first token rather than ending at its last.
		magnitude := 1
		for k := 0; k <= i-2; k++ {
			if value, consumed, ok := parseMagnitude(tokens, k); ok && k+consumed == i-1 && value > 0 {
				magnitude = value
				break
			}
		}
		if total := magnitude * days; total > 0 {
			return total, true
		}
	}

	for i, tok := range tokens {
		if tok != "since" && tok != "from" {
			continue
		}
		if i+1 >= len(tokens) {
			continue
		}
		month, ok := matchMonth(tokens[i+1])
		if !ok {
			continue
		}
		day := 1
		if i+2 < len(tokens) {
			if value, _, ok := parseMagnitude(tokens, i+2); ok && value >= 1 && value <= 31 {
				day = value
			}
		}
		ref := time.Date(now.Year(), month, day, 0, 0, 0, 0, now.Location())
		if ref.After(now) {
			ref = ref.AddDate(-1, 0, 0)
		}
		if days := int(now.Sub(ref).Hours() / 24); days > 0 {
			return days, true
		}
	}

	return 0, false
}

// matchFixedPhrase applies the fuzzy fixed fallbacks.
func matchFixedPhrase(tokens []string, now time.Time) (int, bool) {
	for _, tok := range tokens {
		if fuzzyEqual(tok, "fortnight") {
			return 14, true
		}
		if fuzzyEqual(tok, "yesterday") {
			return 1, true
		}
	}

	for i, tok := range tokens {
		if tok != "this" || i+1 >= len(tokens) {
			continue
		}
		next := tokens[i+1]
		if fuzzyEqual(next, "week") {
			return 7, true
		}
		if fuzzyEqual(next, "month") {
			elapsed := now.Day() - 1
			if elapsed < 1 {
				elapsed = 1
			}
			return elapsed, true
		}
	}

	return 0, false
}

func matchUnit(token string) (int, bool) {
	for unit, days := range unitDays {
		if fuzzyEqual(token, unit) {
			return days, true
		}
		// Plural forms: compare with the trailing s stripped too.
		if strings.HasSuffix(token, "s") && fuzzyEqual(strings.TrimSuffix(token, "s"), unit) {
			return days, true
		}
	}
	return 0, false
}

func matchMonth(token string) (time.Month, bool) {
	for name, month := range monthsByName {
		if token == name {
			return month, true
		}
		if len(token) == 3 && strings.HasPrefix(name, token) {
			return month, true
		}
	}
	return 0, false
}

// fuzzyEqual allows one edit for short words and two for words of five or
// more letters, counting an adjacent transposition as a single edit.
func fuzzyEqual(a, b string) bool {
	if a == b {
		return true
	}
	if len(a) < 3 {
		return false
	}
	limit := 1
	if len(b) >= 5 {
		limit = 2
	}
	return osaDistance(a, b) <= limit
}

// osaDistance is the optimal string alignment distance: Levenshtein plus
// adjacent transpositions.
func osaDistance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	la, lb := len(ra), len(rb)

	prev2 := make([]int, lb+1)
	prev := make([]int, lb+1)
	curr := make([]int, lb+1)

	for j := 0; j <= lb; j++ {
		prev[j] = j
	}

	for i := 1; i <= la; i++ {
		curr[0] = i
		for j := 1; j <= lb; j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
			if i > 1 && j > 1 && ra[i-1] == rb[j-2] && ra[i-2] == rb[j-1] {
				if t := prev2[j-2] + 1; t < curr[j] {
					curr[j] = t
				}
			}
		}
		prev2, prev, curr = prev, curr, prev2
	}

	return prev[lb]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
