package timewindow

import "strconv"

var smallNumbers = map[string]int{
	"zero": 0, "one": 1, "two": 2, "three": 3, "four": 4,
	"five": 5, "six": 6, "seven": 7, "eight": 8, "nine": 9,
	"ten": 10, "eleven": 11, "twelve": 12, "thirteen": 13, "fourteen": 14,
	"fifteen": 15, "sixteen": 16, "seventeen": 17, "eighteen": 18, "nineteen": 19,
}

var tensNumbers = map[string]int{
	"twenty": 20, "thirty": 30, "forty": 40, "fifty": 50,
	"sixty": 60, "seventy": 70, "eighty": 80, "ninety": 90,
}

// parseMagnitude reads a number starting at tokens[i]: either a digit literal
// or an English number word, with tens compounds ("twenty one") consuming two
// tokens. Returns the value and how many tokens it spanned.
func parseMagnitude(tokens []string, i int) (value, consumed int, ok bool) {
	if i >= len(tokens) {
		return 0, 0, false
	}

	if n, err := strconv.Atoi(tokens[i]); err == nil && n >= 0 {
		return n, 1, true
	}

	if n, found := smallNumbers[tokens[i]]; found {
		return n, 1, true
	}

	if t, found := tensNumbers[tokens[i]]; found {
		if i+1 < len(tokens) {
			if u, unitFound := smallNumbers[tokens[i+1]]; unitFound && u >= 1 && u <= 9 {
				return t + u, 2, true
			}
		}
		return t, 1, true
	}

	return 0, 0, false
}
